/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Config: the server's YAML-backed configuration, per SPEC_FULL.md §2.2.
 * Grounded in the teacher's config.go (top-level Config struct unmarshalled
 * by viper, section structs carrying `validate:"required"` tags) and
 * tsig_utils.go's ParseTsigKeys (key-list config shape), restructured
 * around this core's narrower domain (zones + TSIG keys + XFR tuning, no
 * DNSSEC policy/multisigner/API-server sections, which belong to the
 * excluded management-API and signing-orchestration layers).
 */

package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/nice-redbull/knot/internal/xfr"
)

// Config is the top-level unmarshal target for the YAML config file.
type Config struct {
	Service ServiceConf `validate:"required"`
	Log     LogConf     `validate:"required"`
	Zones   map[string]ZoneConf
	Keys    []KeyConf
	Xfr     XfrConf
	Db      DbConf

	// Internal carries runtime-only state that is not unmarshalled from
	// YAML: CLI flag overrides, the resolved config file path, and so on.
	Internal InternalConf `yaml:"-"`
}

// ServiceConf names the running instance, mirroring the teacher's
// ServiceConf (config.go).
type ServiceConf struct {
	Name string `validate:"required"`
}

// LogConf configures the rotating log sink (SPEC_FULL.md §2.1).
type LogConf struct {
	File string `validate:"required"`
}

// DbConf names the sqlite3 journal database file, per spec §6's storage
// collaborator contract.
type DbConf struct {
	File string `validate:"required"`
}

// XfrConf tunes the XFR worker pool, per spec §4.5/§5. The three timeout
// fields feed xfr.Timeouts, which arms every Task's per-kind watchdog
// (spec §5: "NOTIFY uses a short initial timer ... SOA/FORWARD use
// max_conn_reply; AXFR/IXFR use an extended watchdog").
type XfrConf struct {
	Workers         int `yaml:"workers"`
	ConfiguredXfers int `yaml:"configured_xfers"`

	MaxConnReplySeconds int `yaml:"max_conn_reply_seconds"` // SOA probes, UPDATE forwarding
	TransferSeconds     int `yaml:"transfer_seconds"`       // AXFR/IXFR extended watchdog
	NotifyRetrySeconds  int `yaml:"notify_retry_seconds"`   // upper bound of NOTIFY's jittered retry timer
}

// ZoneConf is one configured zone's external configuration — whether it is
// a primary (authoritative source) or secondary (pulls AXFR/IXFR from
// Primary, per spec §4.4's bootstrap/refresh path), its notify targets,
// and its TSIG key for XFR authentication. Modeled on the teacher's
// ZoneConf (structs.go) trimmed to this core's scope (no DNSSEC policy,
// update policy, or multisigner fields — those belong to the excluded
// signing-orchestration and DNS UPDATE policy layers).
type ZoneConf struct {
	Name    string   `validate:"required"`
	Type    string   `yaml:"type" validate:"required,oneof=primary secondary"`
	Primary string   `yaml:"primary"` // upstream master, required when Type == secondary
	Notify  []string `yaml:"notify"`  // secondaries to NOTIFY on serial bump
	Key     string   `yaml:"key"`     // TSIG key name for XFR with Primary/Notify peers, "" if unauthenticated
}

// KeyConf is one configured TSIG key, mirroring the teacher's KeyConf.Tsig
// entries (tsig_utils.go).
type KeyConf struct {
	Name      string `validate:"required"`
	Algorithm string `validate:"required"`
	Secret    string `validate:"required"`
}

// InternalConf holds runtime-only state populated by the CLI layer, not by
// YAML unmarshalling.
type InternalConf struct {
	CfgFile string
	PidFile string
	Daemon  bool
	Verbose bool
	Debug   bool
}

// Load reads and unmarshals the YAML config at path via viper, per
// SPEC_FULL.md §2.2.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshalling %q: %w", path, err)
	}
	c.Internal.CfgFile = path
	if c.Xfr.Workers <= 0 {
		c.Xfr.Workers = 4
	}
	if c.Xfr.ConfiguredXfers <= 0 {
		c.Xfr.ConfiguredXfers = 32
	}
	if c.Xfr.MaxConnReplySeconds <= 0 {
		c.Xfr.MaxConnReplySeconds = 10
	}
	if c.Xfr.TransferSeconds <= 0 {
		c.Xfr.TransferSeconds = 1200
	}
	if c.Xfr.NotifyRetrySeconds <= 0 {
		c.Xfr.NotifyRetrySeconds = 5
	}
	return &c, nil
}

// Timeouts converts the configured XFR timeout section into xfr.Timeouts,
// per spec §5.
func (c *Config) Timeouts() xfr.Timeouts {
	return xfr.Timeouts{
		MaxConnReply: time.Duration(c.Xfr.MaxConnReplySeconds) * time.Second,
		Transfer:     time.Duration(c.Xfr.TransferSeconds) * time.Second,
		NotifyRetry:  time.Duration(c.Xfr.NotifyRetrySeconds) * time.Second,
	}
}

// Validate checks every required section and every configured zone/key,
// per the teacher's ValidateConfig/ValidateZones/ValidateBySection
// (config_validate.go), generalized into one call that validates this
// core's narrower section set.
func Validate(c *Config) error {
	validate := validator.New()

	sections := map[string]interface{}{
		"service": c.Service,
		"log":     c.Log,
		"db":      c.Db,
	}
	for name, data := range sections {
		if err := validate.Struct(data); err != nil {
			return fmt.Errorf("config: section %q: %w", name, err)
		}
	}

	for zoneName, zc := range c.Zones {
		if err := validate.Struct(zc); err != nil {
			return fmt.Errorf("config: zone %q: %w", zoneName, err)
		}
		if zc.Type == "secondary" && zc.Primary == "" {
			return fmt.Errorf("config: zone %q: type=secondary requires primary", zoneName)
		}
	}

	for _, k := range c.Keys {
		if err := validate.Struct(k); err != nil {
			return fmt.Errorf("config: key %q: %w", k.Name, err)
		}
	}

	return nil
}

// LogValidation logs a single line naming the configuration file being
// validated and then runs Validate; it does not log each section.
func LogValidation(c *Config) error {
	log.Printf("%s: validating configuration %q", c.Service.Name, c.Internal.CfgFile)
	return Validate(c)
}
