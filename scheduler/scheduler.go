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

// Package scheduler hands out due jobs to agents and processes the
// volley results they submit.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/health"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/serde"
	"github.com/kineticmon/kinetic/stats"
)

// Observer is told about things worth counting. It must be safe
// for concurrent use.
type Observer interface {
	VolleyAccepted(d time.Duration)
	StaleWrite()
	StorageError(op string)
	CacheHit()
	CacheMiss()
	CacheEviction()
	DownNotified(n int)
}

type nopObserver struct{}

func (nopObserver) VolleyAccepted(time.Duration) {}
func (nopObserver) StaleWrite()                  {}
func (nopObserver) StorageError(string)          {}
func (nopObserver) CacheHit()                    {}
func (nopObserver) CacheMiss()                   {}
func (nopObserver) CacheEviction()               {}
func (nopObserver) DownNotified(int)             {}

type Config struct {
	Archives       []rrd.RRASpec // archives of every stream channel
	CacheSize      int           // number of streams kept in memory, 0 disables
	SubmitTimeout  time.Duration // 0 means no timeout
	NotifyInterval time.Duration
	Observer       Observer
}

// Scheduler is safe for concurrent use. Submissions for the same
// monitor are serialized, different monitors proceed in parallel.
type Scheduler struct {
	db       serde.SerDe
	cfg      Config
	obs      Observer
	locks    *keyedMutex
	streams  *streamCache
	throttle *health.Throttle

	mu     sync.RWMutex
	states map[uuid.UUID]*stats.State // never modified once stored
}

func New(db serde.SerDe, cfg Config) *Scheduler {
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Scheduler{
		db:       db,
		cfg:      cfg,
		obs:      obs,
		locks:    newKeyedMutex(),
		streams:  newStreamCache(db, cfg.Archives, cfg.CacheSize, obs),
		throttle: &health.Throttle{Interval: cfg.NotifyInterval},
		states:   make(map[uuid.UUID]*stats.State),
	}
}

func storageError(op string, err error) error {
	return &monitor.StorageError{Op: op, Err: err}
}

// state returns the state of a monitor, which must not be modified.
// A monitor that has no state yet gets a zero one. A state loaded
// from the serde is only kept if keep is true, which requires the
// monitor lock.
func (s *Scheduler) state(ctx context.Context, monitorID uuid.UUID, keep bool) (*stats.State, error) {
	s.mu.RLock()
	st, ok := s.states[monitorID]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	st, err := s.db.FetchState(ctx, monitorID)
	if err != nil {
		s.obs.StorageError("fetch state")
		return nil, storageError("fetch state", err)
	}
	if st == nil {
		return &stats.State{}, nil
	}
	if keep {
		s.setState(monitorID, st)
	}
	return st, nil
}

func (s *Scheduler) setState(monitorID uuid.UUID, st *stats.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == nil {
		delete(s.states, monitorID)
	} else {
		s.states[monitorID] = st
	}
}

// fetchAgent returns an active agent or a NotFoundError.
func (s *Scheduler) fetchAgent(ctx context.Context, agentID uuid.UUID) (*monitor.Agent, error) {
	a, err := s.db.FetchAgent(ctx, agentID)
	if err != nil {
		return nil, storageError("fetch agent", err)
	}
	if a == nil || !a.Active {
		return nil, &monitor.NotFoundError{Kind: "agent", ID: agentID.String()}
	}
	return a, nil
}

// fetchMonitor returns a monitor or a NotFoundError.
func (s *Scheduler) fetchMonitor(ctx context.Context, monitorID uuid.UUID) (*monitor.Monitor, error) {
	m, err := s.db.FetchMonitor(ctx, monitorID)
	if err != nil {
		return nil, storageError("fetch monitor", err)
	}
	if m == nil {
		return nil, &monitor.NotFoundError{Kind: "monitor", ID: monitorID.String()}
	}
	return m, nil
}

// PullJobs returns the jobs of every active monitor of the agent that
// is due at now. Nothing due is an empty list.
func (s *Scheduler) PullJobs(ctx context.Context, agentID uuid.UUID, now time.Time) ([]monitor.JobSpec, error) {
	if _, err := s.fetchAgent(ctx, agentID); err != nil {
		return nil, err
	}

	mons, err := s.db.FetchAgentMonitors(ctx, agentID)
	if err != nil {
		return nil, storageError("fetch monitors", err)
	}

	jobs := []monitor.JobSpec{}
	for _, m := range mons {
		if !m.Active {
			continue
		}
		t, err := s.db.FetchTarget(ctx, m.TargetID)
		if err != nil {
			return nil, storageError("fetch target", err)
		}
		if t == nil {
			continue
		}
		st, err := s.state(ctx, m.ID, false)
		if err != nil {
			return nil, err
		}
		if m.Due(st.LastUpdate, now) {
			jobs = append(jobs, monitor.NewJobSpec(m, t))
		}
	}
	return jobs, nil
}

// TouchAgent records where an agent was seen. Failure is only logged.
func (s *Scheduler) TouchAgent(ctx context.Context, agentID uuid.UUID, addr string, now time.Time) {
	if err := s.db.TouchAgent(ctx, agentID, addr, now); err != nil {
		log.Printf("TouchAgent(): error updating agent %v: %v", agentID, err)
	}
}
