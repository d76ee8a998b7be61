/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package config

import "testing"

func validConfig() *Config {
	return &Config{
		Service: ServiceConf{Name: "knotd-test"},
		Log:     LogConf{File: "/tmp/knotd-test.log"},
		Db:      DbConf{File: "/tmp/knotd-test.db"},
		Zones: map[string]ZoneConf{
			"example.com.": {Name: "example.com.", Type: "primary"},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsSecondaryWithoutPrimary(t *testing.T) {
	c := validConfig()
	c.Zones["slave.example."] = ZoneConf{Name: "slave.example.", Type: "secondary"}
	if err := Validate(c); err == nil {
		t.Fatal("expected error for secondary zone missing primary")
	}
}

func TestValidateRejectsMissingLogFile(t *testing.T) {
	c := validConfig()
	c.Log.File = ""
	if err := Validate(c); err == nil {
		t.Fatal("expected error for missing log file")
	}
}
