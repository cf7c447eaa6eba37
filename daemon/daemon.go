//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package daemon wires the scheduler, the serde and the HTTP service
// together and runs them until a signal says to stop.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/kineticmon/kinetic/metrics"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/scheduler"
	"github.com/kineticmon/kinetic/serde"
)

var savePid = func(pidPath string) error {
	f, err := os.Create(pidPath)
	if err != nil {
		return fmt.Errorf("Unable to create pid file '%s': (%v)", pidPath, err)
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
	log.Printf("Pid saved in %s.", pidPath)
	return nil
}

var getCwd = func() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Unable to determine current directory: %v", err)
		return ""
	}
	return wd
}

// initDb returns the PostgreSQL serde, or an in-memory one holding
// the definitions of the config if there is no connect string.
var initDb = func(cfg *Config) (serde.SerDe, error) {
	if cfg.DbConnectString != "" {
		return serde.InitDb(cfg.DbConnectString, cfg.DbTablePrefix)
	}
	return memSerDeFromConfig(cfg)
}

func memSerDeFromConfig(cfg *Config) (serde.SerDe, error) {
	db := serde.NewMemSerDe()
	for _, a := range cfg.Agents {
		db.AddAgent(monitor.Agent{ID: a.ID, Name: a.Name, Active: !a.Disabled})
	}
	for _, t := range cfg.Targets {
		db.AddTarget(monitor.Target{ID: t.ID, Name: t.Name, Address: t.Address})
	}
	for _, cm := range cfg.Monitors {
		m, err := cm.Monitor()
		if err != nil {
			return nil, fmt.Errorf("monitor %v: %v", cm.ID, err)
		}
		if err := db.AddMonitor(m); err != nil {
			return nil, err
		}
	}
	return db, nil
}

var createScheduler = func(cfg *Config, db serde.SerDe, obs scheduler.Observer) *scheduler.Scheduler {
	return scheduler.New(db, scheduler.Config{
		Archives:       cfg.RRASpecs(),
		CacheSize:      cfg.StreamCacheSize,
		SubmitTimeout:  cfg.SubmitTimeout.Duration,
		NotifyInterval: cfg.NotifyInterval.Duration,
		Observer:       obs,
	})
}

var startBackground = func(ctx context.Context, cfg *Config, s *scheduler.Scheduler, c *metrics.Collector) {
	go s.RunNotifier(ctx, cfg.DownCheckInterval.Duration)
	go c.RunRuntimeReporter(ctx, cfg.RuntimeStatsInterval.Duration)
}

// Init reads the config, starts everything and blocks until told to
// exit. It returns the config if Finish needs to be called.
func Init(cfgPath string) (cfg *Config) { // not to be confused with init()
	log.Printf("Kinetic starting.")

	runtime.GOMAXPROCS(runtime.NumCPU())

	// Read the config
	cfg, err := readConfig(cfgPath)
	if err != nil {
		log.Printf("Error reading config file %q: %v", cfgPath, err)
		return nil
	}

	// This validates the config and starts logging to the log file
	if err := processConfig(cfg, getCwd()); err != nil {
		log.Printf("Error in config file %s: %v", cfgPath, err)
		return nil
	}

	if err := savePid(cfg.PidPath); err != nil {
		log.Printf("Error saving pid: %v", err)
		return nil
	}

	// Initialize Database
	db, err := initDb(cfg)
	if err != nil {
		log.Printf("Error connecting to the DB: %v", err)
		return cfg
	}
	log.Printf("Initialized DB connection.")

	collector := metrics.NewCollector()
	sched := createScheduler(cfg, db, collector)

	// Create and run the Service Manager
	www := &wwwServer{svc: sched, collector: collector, listenSpec: cfg.HttpListenSpec}
	sm := newServiceManager(serviceMap{"www": www})
	if err := sm.run(); err != nil {
		log.Printf("Could not run the service manager: %v", err)
		db.Close()
		return cfg
	}

	ctx, cancel := context.WithCancel(context.Background())
	startBackground(ctx, cfg, sched, collector)

	waitForSignal(sm)

	gracefulExit(cancel, sm, db)
	return cfg
}

var waitForSignal = func(sm *serviceManager) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		s := <-ch
		log.Printf("Got signal: %v", s)
		if s == syscall.SIGHUP {
			select {
			case cycleLogCh <- 1:
			default:
				log.Printf("Log cycling not running or busy, ignoring SIGHUP.")
			}
			continue
		}
		return
	}
}

func gracefulExit(cancel context.CancelFunc, sm *serviceManager, db serde.SerDe) {
	log.Printf("Gracefully exiting...")

	log.Printf("Waiting for all TCP connections to finish...")
	sm.closeListeners(true)
	log.Printf("TCP connections finished.")

	cancel()

	if err := db.Close(); err != nil {
		log.Printf("Error closing the DB: %v", err)
	}
}

func Finish(cfg *Config) {
	quit()
	log.Println("main: All goroutines finished, exiting.")

	// Close log
	log.SetOutput(os.Stderr)
	if logFile != nil {
		logFile.Close()
	}

	if cfg.PidPath != "" {
		os.Remove(cfg.PidPath)
	}
}
