/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Per-kind watchdog durations, per spec §5: "NOTIFY uses a short initial
 * timer (0-5s jittered) with up to retries resends; SOA/FORWARD use
 * max_conn_reply; AXFR/IXFR use an extended watchdog that is refreshed on
 * every successful receive." No teacher analogue exists (the teacher's
 * refreshengine.go relies on dns.Client's own per-call timeout instead of
 * an armed per-fd deadline); the jitter itself is grounded in the teacher's
 * own jitter pattern for signature timing (tdns/sign.go: sigJitter :=
 * time.Duration(rand.Intn(61)) * time.Second).
 */

package xfr

import (
	"math/rand"
	"time"
)

// Timeouts holds the configured watchdog durations a Task is armed with at
// creation and re-armed with on every successful receive.
type Timeouts struct {
	MaxConnReply time.Duration // SOA probes and UPDATE forwarding
	Transfer     time.Duration // AXFR_IN/IXFR_IN/AXFR_OUT/IXFR_OUT, refreshed per message
	NotifyRetry  time.Duration // upper bound of NOTIFY's jittered retry timer
}

// DefaultTimeouts is used whenever a caller does not have a configured
// Timeouts to hand (tests, and NewTask's own zero-value fallback).
func DefaultTimeouts() Timeouts {
	return Timeouts{
		MaxConnReply: 10 * time.Second,
		Transfer:     20 * time.Minute,
		NotifyRetry:  5 * time.Second,
	}
}

// WatchdogFor returns the watchdog duration a Task of the given kind should
// be armed with.
func (to Timeouts) WatchdogFor(kind Kind) time.Duration {
	switch kind {
	case AxfrIn, IxfrIn, AxfrOut, IxfrOut:
		return to.Transfer
	case Notify:
		return jitter(to.NotifyRetry)
	default: // Soa, UpdateForward
		return to.MaxConnReply
	}
}

// jitter returns a random duration uniformly distributed in [0, max).
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
