/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * IXFRLoader: spec §2's 6%-share component, "fetch journal changesets for a
 * serial range; signal fallback-to-AXFR when history is incomplete."
 * Thin wrapper over Store.LoadChangesets that turns its LoadStatus into the
 * explicit fallback decision internal/xfr's IXFR_OUT path needs, grounded
 * in the teacher's pattern of small single-purpose wrapper types around
 * the KeyDB (e.g. readkey.go's helpers around db.go's raw queries).
 */

package journal

import "fmt"

// Outcome is IXFRLoader.Fetch's result: either a usable changeset sequence
// or a reason the caller must fall back to AXFR, per spec §4.4/§6.
type Outcome struct {
	Changesets []Changeset
	// Fallback is true when the loader could not produce a contiguous
	// changeset sequence covering [from, to] and the caller should serve
	// AXFR instead (spec §8 property 8: IXFR fallback must still be a
	// valid AXFR of current contents).
	Fallback bool
	Reason   string
}

// IXFRLoader fetches changeset history for IXFR_OUT serving and for
// IXFR_IN determinism checks, isolating internal/xfr from Store's raw
// LoadStatus enum.
type IXFRLoader struct {
	store Store
}

// NewIXFRLoader wraps store for changeset-range loading.
func NewIXFRLoader(store Store) *IXFRLoader {
	return &IXFRLoader{store: store}
}

// Fetch loads the changeset sequence covering [fromSerial, toSerial]. A
// Range or NotFound status (journal gap, or no history at all) is not an
// error: it signals the caller to fall back to AXFR, per spec §4.4's
// "IXFR_OUT lacking a reconstructible history (journal gap) falls through
// to AXFR_OUT."
func (l *IXFRLoader) Fetch(zoneName string, fromSerial, toSerial uint32) (Outcome, error) {
	if fromSerial == toSerial {
		return Outcome{}, nil
	}
	result, err := l.store.LoadChangesets(zoneName, fromSerial, toSerial)
	if err != nil {
		return Outcome{}, err
	}
	switch result.Status {
	case StatusOK:
		return Outcome{Changesets: result.Changesets}, nil
	case StatusRange:
		return Outcome{Fallback: true, Reason: fmt.Sprintf("journal for %s has a gap before reaching serial %d", zoneName, toSerial)}, nil
	case StatusNotFound:
		return Outcome{Fallback: true, Reason: fmt.Sprintf("no journal history for %s", zoneName)}, nil
	default:
		return Outcome{Fallback: true, Reason: fmt.Sprintf("journal for %s is malformed", zoneName)}, nil
	}
}
