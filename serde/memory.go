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

package serde

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/stats"
)

type agentSeen struct {
	addr string
	when time.Time
}

type memSerDe struct {
	*sync.RWMutex
	agents   map[uuid.UUID]*monitor.Agent
	targets  map[uuid.UUID]*monitor.Target
	monitors map[uuid.UUID]*monitor.Monitor
	seen     map[uuid.UUID]agentSeen
	states   map[uuid.UUID]*stats.State
	streams  map[string]*rrd.Stream
	owners   map[string]uuid.UUID // stream key -> monitor
}

// Returns a SerDe which keeps everything in memory. Streams are kept
// by reference, the caller must serialize changes to them.
func NewMemSerDe() *memSerDe {
	return &memSerDe{
		RWMutex:  &sync.RWMutex{},
		agents:   make(map[uuid.UUID]*monitor.Agent),
		targets:  make(map[uuid.UUID]*monitor.Target),
		monitors: make(map[uuid.UUID]*monitor.Monitor),
		seen:     make(map[uuid.UUID]agentSeen),
		states:   make(map[uuid.UUID]*stats.State),
		streams:  make(map[string]*rrd.Stream),
		owners:   make(map[string]uuid.UUID),
	}
}

func (m *memSerDe) Close() error { return nil }

// AddAgent adds or replaces an agent definition.
func (m *memSerDe) AddAgent(a monitor.Agent) {
	m.Lock()
	defer m.Unlock()
	m.agents[a.ID] = &a
}

// AddTarget adds or replaces a target definition.
func (m *memSerDe) AddTarget(t monitor.Target) {
	m.Lock()
	defer m.Unlock()
	m.targets[t.ID] = &t
}

// AddMonitor adds or replaces a monitor definition. The agent and
// the target must already be known.
func (m *memSerDe) AddMonitor(mon monitor.Monitor) error {
	if err := mon.Validate(); err != nil {
		return fmt.Errorf("monitor %v: %v", mon.ID, err)
	}
	m.Lock()
	defer m.Unlock()
	if _, ok := m.agents[mon.AgentID]; !ok {
		return fmt.Errorf("monitor %v: unknown agent %v", mon.ID, mon.AgentID)
	}
	if _, ok := m.targets[mon.TargetID]; !ok {
		return fmt.Errorf("monitor %v: unknown target %v", mon.ID, mon.TargetID)
	}
	m.monitors[mon.ID] = &mon
	return nil
}

// RemoveMonitor removes a monitor definition (but not its data).
func (m *memSerDe) RemoveMonitor(id uuid.UUID) {
	m.Lock()
	defer m.Unlock()
	delete(m.monitors, id)
}

// LastSeen returns what was last recorded by TouchAgent.
func (m *memSerDe) LastSeen(id uuid.UUID) (string, time.Time) {
	m.RLock()
	defer m.RUnlock()
	s := m.seen[id]
	return s.addr, s.when
}

func (m *memSerDe) FetchAgent(ctx context.Context, id uuid.UUID) (*monitor.Agent, error) {
	m.RLock()
	defer m.RUnlock()
	if a, ok := m.agents[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *memSerDe) FetchTarget(ctx context.Context, id uuid.UUID) (*monitor.Target, error) {
	m.RLock()
	defer m.RUnlock()
	if t, ok := m.targets[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *memSerDe) FetchMonitor(ctx context.Context, id uuid.UUID) (*monitor.Monitor, error) {
	m.RLock()
	defer m.RUnlock()
	if mon, ok := m.monitors[id]; ok {
		cp := *mon
		return &cp, nil
	}
	return nil, nil
}

func (m *memSerDe) FetchAgentMonitors(ctx context.Context, agentID uuid.UUID) ([]*monitor.Monitor, error) {
	m.RLock()
	defer m.RUnlock()
	result := []*monitor.Monitor{}
	for _, mon := range m.monitors {
		if mon.AgentID == agentID {
			cp := *mon
			result = append(result, &cp)
		}
	}
	sortMonitors(result)
	return result, nil
}

func (m *memSerDe) FetchMonitors(ctx context.Context) ([]*monitor.Monitor, error) {
	m.RLock()
	defer m.RUnlock()
	result := make([]*monitor.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		cp := *mon
		result = append(result, &cp)
	}
	sortMonitors(result)
	return result, nil
}

// Map iteration order is random, keep results stable.
func sortMonitors(ms []*monitor.Monitor) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID.String() < ms[j].ID.String() })
}

func (m *memSerDe) TouchAgent(ctx context.Context, id uuid.UUID, addr string, now time.Time) error {
	m.Lock()
	defer m.Unlock()
	m.seen[id] = agentSeen{addr: addr, when: now}
	return nil
}

func (m *memSerDe) FetchState(ctx context.Context, monitorID uuid.UUID) (*stats.State, error) {
	m.RLock()
	defer m.RUnlock()
	if st, ok := m.states[monitorID]; ok {
		return st.Copy(), nil
	}
	return nil, nil
}

func (m *memSerDe) FetchStream(ctx context.Context, key string) (*rrd.Stream, error) {
	m.RLock()
	defer m.RUnlock()
	return m.streams[key], nil
}

func (m *memSerDe) SaveVolley(ctx context.Context, monitorID uuid.UUID, key string, st *stats.State, s *rrd.Stream, c *rrd.Change, replace bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.states[monitorID] = st.Copy()
	if replace {
		delete(m.streams, key)
		delete(m.owners, key)
	}
	if s != nil {
		m.streams[key] = s
		m.owners[key] = monitorID
	}
	return nil
}

func (m *memSerDe) SaveState(ctx context.Context, monitorID uuid.UUID, st *stats.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.states[monitorID] = st.Copy()
	return nil
}

func (m *memSerDe) DeleteMonitorData(ctx context.Context, monitorID uuid.UUID) error {
	m.Lock()
	defer m.Unlock()
	delete(m.states, monitorID)
	for key, owner := range m.owners {
		if owner == monitorID {
			delete(m.streams, key)
			delete(m.owners, key)
		}
	}
	return nil
}
