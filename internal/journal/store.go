/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Journal: sqlite3-backed changeset persistence behind the storage
 * collaborator contract from spec §6 (save_zone / load_changesets /
 * store_and_apply). Grounded in the teacher's KeyDB (db.go/db_schema.go):
 * same "CREATE TABLE IF NOT EXISTS" schema-map bootstrap, the same
 * single-*sql.DB-plus-mutex shape, generalized from DNSSEC key material to
 * IXFR changesets.
 */

package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/miekg/dns"
)

// LoadStatus is the enumerated outcome of LoadChangesets, driving the
// IXFR→AXFR fallback decision in internal/xfr (spec §6).
type LoadStatus uint8

const (
	StatusOK LoadStatus = iota
	StatusRange    // the requested serial range is only partially covered
	StatusNotFound // no history at all for this zone
	StatusMalformed
)

// Changeset is one (remove set, add set) step between two SOA serials,
// mirroring teacher_ref/ixfr's DiffSequence shape generalized with an
// explicit zone name for storage.
type Changeset struct {
	Zone       string
	FromSerial uint32
	ToSerial   uint32
	Removed    []dns.RR
	Added      []dns.RR
}

// LoadResult wraps LoadChangesets' outcome.
type LoadResult struct {
	Status     LoadStatus
	Changesets []Changeset
}

// Store is the storage collaborator contract from spec §6. AXFR/IXFR zone
// loaders call it to persist and retrieve history; this core does not
// define the journal's on-disk byte layout beyond what this contract
// requires ("journal byte layout is opaque to this core" — spec §6).
type Store interface {
	SaveZone(zoneName string, serial uint32, rrs []dns.RR) error
	LoadChangesets(zoneName string, fromSerial, toSerial uint32) (LoadResult, error)
	StoreAndApply(cs Changeset) error
	Close() error
}

var schema = map[string]string{
	"ZoneSnapshots": `CREATE TABLE IF NOT EXISTS 'ZoneSnapshots' (
id		INTEGER PRIMARY KEY,
zone		TEXT,
serial		INTEGER,
rrs		TEXT,
UNIQUE (zone)
)`,
	"Changesets": `CREATE TABLE IF NOT EXISTS 'Changesets' (
id		INTEGER PRIMARY KEY,
zone		TEXT,
from_serial	INTEGER,
to_serial	INTEGER,
added		TEXT,
removed		TEXT,
UNIQUE (zone, from_serial, to_serial)
)`,
}

// SqliteStore is the sqlite3-backed Store implementation.
type SqliteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the sqlite3 journal database at path
// and ensures its schema exists, mirroring the teacher's NewKeyDB/
// dbSetupTables pattern.
func Open(path string) (*SqliteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: empty db path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: sql.Open: %w", err)
	}
	for name, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("journal: creating table %s: %w", name, err)
		}
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error { return s.db.Close() }

// SaveZone persists a freshly assembled zone's full RR set as its current
// snapshot, per spec §6's storage.save_zone(task) contract.
func (s *SqliteStore) SaveZone(zoneName string, serial uint32, rrs []dns.RR) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := encodeRRs(rrs)
	_, err := s.db.Exec(
		`INSERT INTO ZoneSnapshots (zone, serial, rrs) VALUES (?, ?, ?)
		 ON CONFLICT(zone) DO UPDATE SET serial=excluded.serial, rrs=excluded.rrs`,
		zoneName, serial, encoded,
	)
	return err
}

// LoadChangesets returns the sequence of changesets covering
// [fromSerial, toSerial], or a LoadStatus explaining why it cannot, per
// spec §6's enumerated statuses driving the IXFR fallback decision.
func (s *SqliteStore) LoadChangesets(zoneName string, fromSerial, toSerial uint32) (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT from_serial, to_serial, added, removed FROM Changesets
		 WHERE zone = ? AND from_serial >= ? ORDER BY from_serial ASC`,
		zoneName, fromSerial,
	)
	if err != nil {
		return LoadResult{Status: StatusMalformed}, err
	}
	defer rows.Close()

	var out []Changeset
	cursor := fromSerial
	for rows.Next() {
		var from, to uint32
		var addedStr, removedStr string
		if err := rows.Scan(&from, &to, &addedStr, &removedStr); err != nil {
			return LoadResult{Status: StatusMalformed}, err
		}
		if from != cursor {
			// A gap in the serial chain: we have some history but not a
			// contiguous path to toSerial.
			return LoadResult{Status: StatusRange, Changesets: out}, nil
		}
		added, err := decodeRRs(addedStr)
		if err != nil {
			return LoadResult{Status: StatusMalformed}, err
		}
		removed, err := decodeRRs(removedStr)
		if err != nil {
			return LoadResult{Status: StatusMalformed}, err
		}
		out = append(out, Changeset{Zone: zoneName, FromSerial: from, ToSerial: to, Added: added, Removed: removed})
		cursor = to
		if cursor == toSerial {
			return LoadResult{Status: StatusOK, Changesets: out}, nil
		}
	}
	if len(out) == 0 {
		return LoadResult{Status: StatusNotFound}, nil
	}
	return LoadResult{Status: StatusRange, Changesets: out}, nil
}

// StoreAndApply appends a single changeset step, per spec §6's
// storage.store_and_apply contract (the atomic zone-generation publish
// itself happens in the caller, internal/xfr, once this returns).
func (s *SqliteStore) StoreAndApply(cs Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO Changesets (zone, from_serial, to_serial, added, removed) VALUES (?, ?, ?, ?, ?)`,
		cs.Zone, cs.FromSerial, cs.ToSerial, encodeRRs(cs.Added), encodeRRs(cs.Removed),
	)
	return err
}

// encodeRRs/decodeRRs serialize an RR slice as newline-separated
// presentation-format text, the simplest encoding that round-trips through
// miekg/dns's own parser and keeps the journal's byte layout opaque to the
// rest of this core, per spec §6.
func encodeRRs(rrs []dns.RR) string {
	lines := make([]string, len(rrs))
	for i, rr := range rrs {
		lines[i] = rr.String()
	}
	return strings.Join(lines, "\n")
}

func decodeRRs(s string) ([]dns.RR, error) {
	if s == "" {
		return nil, nil
	}
	lines := strings.Split(s, "\n")
	out := make([]dns.RR, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		rr, err := dns.NewRR(line)
		if err != nil {
			return nil, fmt.Errorf("journal: decoding stored rr %q: %w", line, err)
		}
		out = append(out, rr)
	}
	return out, nil
}
