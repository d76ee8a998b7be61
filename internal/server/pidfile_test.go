/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package server

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWritePidFileThenRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knotd.pid")

	if err := WritePidFile(path); err != nil {
		t.Fatalf("WritePidFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading pid file: %v", err)
	}
	if strconv.Itoa(os.Getpid())+"\n" != string(data) {
		t.Fatalf("pid file content = %q, want current pid", data)
	}

	if err := RemovePidFile(path); err != nil {
		t.Fatalf("RemovePidFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err = %v", err)
	}
}

func TestWritePidFileRefusesWhenLiveProcessOwnsIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knotd.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WritePidFile(path); err == nil {
		t.Fatal("expected WritePidFile to refuse overwriting a live process's pid file")
	}
}

func TestWritePidFileEmptyPathIsNoop(t *testing.T) {
	if err := WritePidFile(""); err != nil {
		t.Fatalf("WritePidFile(\"\"): %v", err)
	}
	if err := RemovePidFile(""); err != nil {
		t.Fatalf("RemovePidFile(\"\"): %v", err)
	}
}

func TestRemovePidFileMissingIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.pid")
	if err := RemovePidFile(path); err != nil {
		t.Fatalf("RemovePidFile on missing file: %v", err)
	}
}
