/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Logging setup, per SPEC_FULL.md §2.1. Directly grounded in the teacher's
 * logging.go: log.SetFlags plus lumberjack.v2 as the rotating sink when a
 * log file is configured, a concise stderr format otherwise.
 */

package server

import (
	"fmt"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging points the standard logger at a rotating file sink, mirroring
// the teacher's SetupLogging (logging.go).
func SetupLogging(logfile string) error {
	log.SetFlags(log.Lshortfile | log.Ltime)
	if logfile == "" {
		return fmt.Errorf("server: no log file configured")
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   logfile,
		MaxSize:    20,
		MaxBackups: 3,
		MaxAge:     14,
	})
	return nil
}

// SetupCliLogging configures logging for one-shot CLI invocations (e.g.
// `-V`/`-h`) that may run before a config file has even been read, per the
// teacher's SetupCliLogging.
func SetupCliLogging(verbose, debug bool) {
	if verbose || debug {
		log.SetFlags(log.Lshortfile | log.Ltime)
		return
	}
	log.SetFlags(0)
}

// TaskLogPrefix builds the per-task log message prefix spec §7 requires:
// direction, zone name, peer, and TSIG key tag when applicable.
func TaskLogPrefix(direction, zoneName, peer, keyName string) string {
	if keyName == "" {
		return fmt.Sprintf("[%s %s %s]", direction, zoneName, peer)
	}
	return fmt.Sprintf("[%s %s %s key=%s]", direction, zoneName, peer, keyName)
}
