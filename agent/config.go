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

package agent

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "./etc/kinetic-agent.yaml"

type Config struct {
	Server         string        `yaml:"server"`
	AgentID        uuid.UUID     `yaml:"agent_id"`
	Workers        int           `yaml:"workers"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ICMPTimeout    time.Duration `yaml:"icmp_timeout"`
	TCPTimeout     time.Duration `yaml:"tcp_timeout"`
	ProbeRate      float64       `yaml:"probe_rate"` // probes per second within a volley, 0 is unlimited
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxPending     int           `yaml:"max_pending"` // results kept for resubmission
}

func Load(path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 16
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ICMPTimeout <= 0 {
		c.ICMPTimeout = time.Second
	}
	if c.TCPTimeout <= 0 {
		c.TCPTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 1000
	}
}

func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server is required")
	}
	if c.AgentID == uuid.Nil {
		return fmt.Errorf("agent_id is required")
	}
	if c.ProbeRate < 0 {
		return fmt.Errorf("probe_rate must not be negative")
	}
	return nil
}
