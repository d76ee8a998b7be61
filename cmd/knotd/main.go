/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gookit/goutil/dump"
	"github.com/spf13/pflag"

	"github.com/nice-redbull/knot/internal/config"
	"github.com/nice-redbull/knot/internal/journal"
	"github.com/nice-redbull/knot/internal/server"
	"github.com/nice-redbull/knot/internal/tsig"
	"github.com/nice-redbull/knot/internal/zone"
)

const (
	appName    = "knotd"
	appVersion = "0.1.0"
)

const defaultCfgFile = "/etc/knotd/knotd.yaml"

func main() {
	var cfgFile, pidFile string
	var verbose, debug, showVersion, daemonize, reexeced bool

	pflag.StringVarP(&cfgFile, "config", "c", defaultCfgFile, "config file path")
	pflag.StringVar(&pidFile, "pidfile", "/var/run/knotd.pid", "pid file path")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pflag.BoolVarP(&debug, "debug", "d", false, "debug output")
	pflag.BoolVarP(&showVersion, "version", "V", false, "print version and exit")
	pflag.BoolVar(&daemonize, "daemon", false, "daemonize: re-exec detached from the controlling terminal")
	pflag.BoolVar(&reexeced, "daemon-child", false, "internal: marks the re-exec’d daemon child")
	pflag.Parse()

	server.SetupCliLogging(verbose, debug)

	if showVersion {
		fmt.Printf("%s %s\n", appName, appVersion)
		return
	}

	if daemonize && !reexeced {
		daemonizeSelf()
		return
	}

	// SIGPIPE fires when a peer closes an XFR/UPDATE connection mid-write;
	// the affected net.Conn call already returns EPIPE, so the process
	// default (terminate) would be wrong here.
	signal.Ignore(syscall.SIGPIPE)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("%s: %v", appName, err)
	}
	if err := config.LogValidation(cfg); err != nil {
		log.Fatalf("%s: invalid configuration: %v", appName, err)
	}
	if debug {
		dump.P(cfg)
	}

	if err := server.SetupLogging(cfg.Log.File); err != nil {
		log.Fatalf("%s: %v", appName, err)
	}

	cfg.Internal.PidFile = pidFile
	cfg.Internal.Verbose = verbose
	cfg.Internal.Debug = debug

	if err := server.WritePidFile(cfg.Internal.PidFile); err != nil {
		log.Fatalf("%s: %v", appName, err)
	}
	defer server.RemovePidFile(cfg.Internal.PidFile)

	store, err := journal.Open(cfg.Db.File)
	if err != nil {
		log.Fatalf("%s: opening journal %q: %v", appName, cfg.Db.File, err)
	}

	keys := buildKeyStore(cfg.Keys)

	ns, err := server.New(cfg.Xfr.Workers, cfg.Xfr.ConfiguredXfers, store, keys, cfg.Timeouts(), log.Default())
	if err != nil {
		log.Fatalf("%s: %v", appName, err)
	}

	registerConfiguredZones(ns, cfg)

	ns.Start()
	log.Printf("%s: started, serving %d configured zone(s)", appName, len(cfg.Zones))

	for name, zc := range cfg.Zones {
		if zc.Type == "secondary" {
			if err := ns.ScheduleRefresh(name); err != nil {
				log.Printf("%s: zone %s: initial refresh: %v", appName, name, err)
			}
		}
	}

	runMainLoop(ns, cfg)

	ns.Stop()
	log.Printf("%s: shut down cleanly", appName)
}

// buildKeyStore turns the configured TSIG keys into the in-memory KeyStore
// the XFR/NOTIFY/UPDATE paths authenticate against.
func buildKeyStore(keys []config.KeyConf) tsig.MapKeyStore {
	store := make(tsig.MapKeyStore, len(keys))
	for _, k := range keys {
		store[k.Name] = tsig.Key{Name: k.Name, Algorithm: k.Algorithm, Secret: k.Secret}
	}
	return store
}

// registerConfiguredZones creates an empty generation-zero ZoneContents for
// every configured zone and registers it with ns. Zone-file text parsing is
// out of scope (SPEC_FULL.md §6): a secondary zone's real content only
// arrives via its first AXFR; a primary zone configured here starts empty
// until populated by some other collaborator outside this core's scope.
func registerConfiguredZones(ns *server.Nameserver, cfg *config.Config) {
	for name, zc := range cfg.Zones {
		zc := zc
		contents, err := zone.NewZoneContents(name)
		if err != nil {
			log.Printf("%s: zone %s: %v", appName, name, err)
			continue
		}
		handle := zone.NewZoneHandle(name, contents)
		ns.RegisterZone(zc, handle)
		if cfg.Internal.Debug {
			dump.P(zc)
		}
	}
}

// runMainLoop dispatches process signals onto a select loop, grounded in
// the teacher's MainLoop (main_initfuncs.go): SIGHUP reloads the config and
// re-registers zones, SIGUSR2 forces a refresh probe of every secondary,
// and a second SIGINT/SIGTERM forces immediate exit if graceful shutdown
// hangs.
func runMainLoop(ns *server.Nameserver, cfg *config.Config) {
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exit)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	refresh := make(chan os.Signal, 1)
	signal.Notify(refresh, syscall.SIGUSR2)
	defer signal.Stop(refresh)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-exit:
				log.Printf("%s: exit signal received, shutting down", appName)
				go func() {
					<-exit
					log.Printf("%s: second exit signal received, forcing immediate exit", appName)
					os.Exit(1)
				}()
				return
			case <-hup:
				log.Printf("%s: SIGHUP received, reloading configuration", appName)
				reloaded, err := config.Load(cfg.Internal.CfgFile)
				if err != nil {
					log.Printf("%s: reload failed: %v", appName, err)
					continue
				}
				if err := config.Validate(reloaded); err != nil {
					log.Printf("%s: reload rejected: %v", appName, err)
					continue
				}
				*cfg = *reloaded
				registerConfiguredZones(ns, cfg)
			case <-refresh:
				log.Printf("%s: SIGUSR2 received, forcing refresh of all secondary zones", appName)
				for name, zc := range cfg.Zones {
					if zc.Type != "secondary" {
						continue
					}
					if err := ns.ScheduleRefresh(name); err != nil {
						log.Printf("%s: zone %s: forced refresh: %v", appName, name, err)
					}
				}
			}
		}
	}()
	wg.Wait()
}

// daemonizeSelf re-execs the current binary with --daemon-child set and its
// standard streams detached, mirroring the teacher's StartDaemon
// (start_utils.go) without that version's HTTP status-poll handshake (no
// management API in this core). The parent exits as soon as the child is
// launched; it does not wait for the child to finish starting.
func daemonizeSelf() {
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a == "--daemon" {
			continue
		}
		args = append(args, a)
	}
	args = append(args, "--daemon-child")

	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		log.Fatalf("%s: daemonize: %v", appName, err)
	}
	fmt.Printf("%s: daemonized as pid %d\n", appName, cmd.Process.Pid)
}
