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

package daemon

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/misc"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
)

type Config struct { // Needs to be exported for TOML to work
	PidPath              string          `toml:"pid-file"`
	LogPath              string          `toml:"log-file"`
	LogCycle             duration        `toml:"log-cycle-interval"`
	HttpListenSpec       string          `toml:"http-listen-spec"`
	DbConnectString      string          `toml:"db-connect-string"`
	DbTablePrefix        string          `toml:"db-table-prefix"`
	StreamCacheSize      int             `toml:"stream-cache-size"`
	SubmitTimeout        duration        `toml:"submit-timeout"`
	NotifyInterval       duration        `toml:"notify-interval"`
	DownCheckInterval    duration        `toml:"down-check-interval"`
	RuntimeStatsInterval duration        `toml:"runtime-stats-interval"`
	Archives             []ConfigRRASpec `toml:"archives"`

	// Definitions for the in-memory serde
	Agents   []ConfigAgent   `toml:"agent"`
	Targets  []ConfigTarget  `toml:"target"`
	Monitors []ConfigMonitor `toml:"monitor"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = misc.BetterParseDuration(string(text))
	return err
}

// ConfigRRASpec is an archive, specified as "CF:steps:rows[:xff]",
// e.g. "MAX:12:4320", where steps is the number of stream steps per
// row.
type ConfigRRASpec struct {
	rrd.RRASpec
}

func (r *ConfigRRASpec) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ":")
	if len(parts) < 3 || len(parts) > 4 {
		return fmt.Errorf("Invalid archive specification (not enough or too many elements): %q", string(text))
	}

	var err error
	if r.Function, err = rrd.ParseConsolidation(parts[0]); err != nil {
		return fmt.Errorf("Invalid archive %q: %v (valid funcs: average, min, max)", string(text), err)
	}
	if r.Steps, err = strconv.ParseInt(parts[1], 10, 64); err != nil || r.Steps < 1 {
		return fmt.Errorf("Invalid archive %q: steps must be a positive integer", string(text))
	}
	if r.Size, err = strconv.ParseInt(parts[2], 10, 64); err != nil || r.Size < 1 {
		return fmt.Errorf("Invalid archive %q: rows must be a positive integer", string(text))
	}
	if len(parts) == 4 {
		xff, err := strconv.ParseFloat(parts[3], 32)
		if err != nil || xff < 0 || xff > 1 {
			return fmt.Errorf("Invalid archive %q: xff must be between 0 and 1", string(text))
		}
		r.Xff = float32(xff)
	}
	return nil
}

var defaultArchives = []string{
	"AVERAGE:1:1008",
	"AVERAGE:12:4320",
	"MIN:12:4320",
	"MAX:12:4320",
	"AVERAGE:144:720",
	"MIN:144:720",
	"MAX:144:720",
}

type ConfigAgent struct {
	ID       uuid.UUID `toml:"id"`
	Name     string    `toml:"name"`
	Disabled bool      `toml:"disabled"`
}

type ConfigTarget struct {
	ID      uuid.UUID `toml:"id"`
	Name    string    `toml:"name"`
	Address string    `toml:"address"`
}

type ConfigMonitor struct {
	ID           uuid.UUID `toml:"id"`
	Agent        uuid.UUID `toml:"agent"`
	Target       uuid.UUID `toml:"target"`
	Protocol     string    `toml:"protocol"`
	Port         int       `toml:"port"`
	DSCP         string    `toml:"dscp"`
	PollCount    int       `toml:"pollcount"`
	PollInterval duration  `toml:"pollinterval"`
	Disabled     bool      `toml:"disabled"`
}

// Monitor converts the config entry to a monitor.
func (m *ConfigMonitor) Monitor() (monitor.Monitor, error) {
	proto, err := monitor.ParseProtocol(m.Protocol)
	if err != nil {
		return monitor.Monitor{}, err
	}
	if m.PollInterval.Duration%time.Second != 0 {
		return monitor.Monitor{}, fmt.Errorf("pollinterval %v is not a whole number of seconds", m.PollInterval.Duration)
	}
	mon := monitor.Monitor{
		ID:           m.ID,
		AgentID:      m.Agent,
		TargetID:     m.Target,
		Protocol:     proto,
		Port:         m.Port,
		DSCP:         m.DSCP,
		PollCount:    m.PollCount,
		PollInterval: int(m.PollInterval.Duration / time.Second),
		Active:       !m.Disabled,
	}
	return mon, mon.Validate()
}

var readConfig = func(cfgPath string) (*Config, error) {
	cfg := &Config{}
	_, err := toml.DecodeFile(cfgPath, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) processConfigPidFile(wd string) error {
	if c.PidPath == "" {
		return fmt.Errorf("pid-file setting empty")
	}
	if !filepath.IsAbs(c.PidPath) {
		if wd == "" {
			return fmt.Errorf("pid-file must be absolute path if working directory cannot be determined")
		}
		c.PidPath = filepath.Join(wd, c.PidPath)
	}
	pidDir, _ := filepath.Split(c.PidPath)
	if err := os.MkdirAll(pidDir, 0755); err != nil {
		return fmt.Errorf("Unable to create directory: '%s' (%v).", pidDir, err)
	}
	return nil
}

func (c *Config) processConfigLogFile(wd string) error {
	if c.LogPath == "" {
		return fmt.Errorf("log-file setting empty")
	}
	if !filepath.IsAbs(c.LogPath) {
		if wd == "" {
			return fmt.Errorf("log-file must be absolute path if working directory cannot be determined")
		}
		c.LogPath = filepath.Join(wd, c.LogPath)
	}
	logDir, _ := filepath.Split(c.LogPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("Unable to create directory: '%s' (%v).", logDir, err)
	}

	log.Printf("Logs will be written to '%s'.", c.LogPath)
	return nil
}

func (c *Config) processConfigLogCycleInterval() error {
	if c.LogCycle.Duration == 0 {
		return fmt.Errorf("log-cycle-interval setting empty")
	}
	log.Printf("Will cycle logs every %v (log-cycle-interval).", c.LogCycle.Duration)

	logDir, _ := filepath.Split(c.LogPath)
	log.Printf("All further status messages will be written to log file(s) in '%s'.", logDir)
	logFileCycler(c.LogPath, c.LogCycle.Duration)
	log.Print("Server starting.")

	return nil
}

func (c *Config) processDbConnectString() error {
	if c.DbConnectString == "" {
		log.Printf("db-connect-string is empty, everything will be kept in memory and lost on exit.")
	}
	return nil
}

func (c *Config) processStreamCacheSize() error {
	if c.StreamCacheSize == 0 {
		log.Printf("stream-cache-size unspecified, defaulting to 10000.")
		c.StreamCacheSize = 10000
	} else if c.StreamCacheSize < 0 {
		log.Printf("Stream cache is disabled (stream-cache-size %d).", c.StreamCacheSize)
		c.StreamCacheSize = 0
	} else {
		log.Printf("Up to %d streams will be cached (stream-cache-size).", c.StreamCacheSize)
	}
	return nil
}

func (c *Config) processIntervals() error {
	for _, d := range []struct {
		name string
		d    *duration
		dft  time.Duration
	}{
		{"submit-timeout", &c.SubmitTimeout, 10 * time.Second},
		{"notify-interval", &c.NotifyInterval, time.Hour},
		{"down-check-interval", &c.DownCheckInterval, time.Minute},
		{"runtime-stats-interval", &c.RuntimeStatsInterval, 5 * time.Second},
	} {
		if d.d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
		if d.d.Duration == 0 {
			d.d.Duration = d.dft
		}
		log.Printf("%s is %v.", d.name, d.d.Duration)
	}
	return nil
}

func (c *Config) processArchives() error {
	if len(c.Archives) == 0 {
		log.Printf("archives unspecified, using defaults: %v", defaultArchives)
		for _, s := range defaultArchives {
			var r ConfigRRASpec
			if err := r.UnmarshalText([]byte(s)); err != nil {
				return err
			}
			c.Archives = append(c.Archives, r)
		}
	}
	return nil
}

// processDefinitions checks that the monitors refer to agents and
// targets that are defined.
func (c *Config) processDefinitions() error {
	if len(c.Agents)+len(c.Targets)+len(c.Monitors) == 0 {
		return nil
	}
	if c.DbConnectString != "" {
		log.Printf("Ignoring %d agent, %d target and %d monitor definitions, they are read from the database.",
			len(c.Agents), len(c.Targets), len(c.Monitors))
		return nil
	}

	agents := make(map[uuid.UUID]bool)
	for _, a := range c.Agents {
		if a.ID == uuid.Nil {
			return fmt.Errorf("agent %q: missing id", a.Name)
		}
		agents[a.ID] = true
	}
	targets := make(map[uuid.UUID]bool)
	for _, t := range c.Targets {
		if t.ID == uuid.Nil || t.Address == "" {
			return fmt.Errorf("target %q: id and address are required", t.Name)
		}
		targets[t.ID] = true
	}
	for _, m := range c.Monitors {
		if m.ID == uuid.Nil {
			return fmt.Errorf("monitor: missing id")
		}
		if !agents[m.Agent] {
			return fmt.Errorf("monitor %v: unknown agent %v", m.ID, m.Agent)
		}
		if !targets[m.Target] {
			return fmt.Errorf("monitor %v: unknown target %v", m.ID, m.Target)
		}
		if _, err := m.Monitor(); err != nil {
			return fmt.Errorf("monitor %v: %v", m.ID, err)
		}
	}
	log.Printf("%d agent(s), %d target(s) and %d monitor(s) defined.", len(c.Agents), len(c.Targets), len(c.Monitors))
	return nil
}

// RRASpecs returns the archives of every stream.
func (c *Config) RRASpecs() []rrd.RRASpec {
	result := make([]rrd.RRASpec, len(c.Archives))
	for i, a := range c.Archives {
		result[i] = a.RRASpec
	}
	return result
}

type configer interface {
	processConfigPidFile(string) error
	processConfigLogFile(string) error
	processConfigLogCycleInterval() error
	processDbConnectString() error
	processStreamCacheSize() error
	processIntervals() error
	processArchives() error
	processDefinitions() error
}

var processConfig = func(c configer, wd string) error {

	if err := c.processConfigPidFile(wd); err != nil {
		return err
	}
	if err := c.processConfigLogFile(wd); err != nil {
		return err
	}
	if err := c.processConfigLogCycleInterval(); err != nil {
		return err
	}
	if err := c.processDbConnectString(); err != nil {
		return err
	}
	if err := c.processStreamCacheSize(); err != nil {
		return err
	}
	if err := c.processIntervals(); err != nil {
		return err
	}
	if err := c.processArchives(); err != nil {
		return err
	}
	if err := c.processDefinitions(); err != nil {
		return err
	}
	return nil
}
