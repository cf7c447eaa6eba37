//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
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

// Package serde knows how to load and save monitor definitions,
// monitor statistics and their time series streams.
package serde

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/stats"
)

// MonitorRepo is read access to agent, target and monitor
// definitions, which are maintained elsewhere. A Fetch of something
// that does not exist returns nil and no error.
type MonitorRepo interface {
	FetchAgent(ctx context.Context, id uuid.UUID) (*monitor.Agent, error)
	FetchTarget(ctx context.Context, id uuid.UUID) (*monitor.Target, error)
	FetchMonitor(ctx context.Context, id uuid.UUID) (*monitor.Monitor, error)
	// Monitors bound to an agent, active or not.
	FetchAgentMonitors(ctx context.Context, agentID uuid.UUID) ([]*monitor.Monitor, error)
	// All monitors.
	FetchMonitors(ctx context.Context) ([]*monitor.Monitor, error)
}

// AgentRegistry keeps track of where and when agents were last seen.
type AgentRegistry interface {
	TouchAgent(ctx context.Context, id uuid.UUID, addr string, now time.Time) error
}

// StreamRepo persists monitor statistics and time series streams. A
// Fetch of something that does not exist returns nil and no error.
type StreamRepo interface {
	FetchState(ctx context.Context, monitorID uuid.UUID) (*stats.State, error)
	FetchStream(ctx context.Context, key string) (*rrd.Stream, error)

	// SaveVolley saves the state and the stream change together,
	// either both are saved or neither. The change is not yet
	// committed to the stream when this is called and may be nil.
	// With replace, whatever is stored under key is deleted first,
	// in the same transaction.
	SaveVolley(ctx context.Context, monitorID uuid.UUID, key string, st *stats.State, s *rrd.Stream, c *rrd.Change, replace bool) error

	SaveState(ctx context.Context, monitorID uuid.UUID, st *stats.State) error

	// DeleteMonitorData removes the state and all streams of a monitor.
	DeleteMonitorData(ctx context.Context, monitorID uuid.UUID) error
}

// SerDe is everything a storage backend provides.
type SerDe interface {
	MonitorRepo
	AgentRegistry
	StreamRepo
	Close() error
}
