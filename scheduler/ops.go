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

package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/health"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/stats"
)

// ClearStats resets the running statistics of a monitor.
func (s *Scheduler) ClearStats(ctx context.Context, monitorID uuid.UUID, now time.Time) error {
	if _, err := s.fetchMonitor(ctx, monitorID); err != nil {
		return err
	}

	unlock := s.locks.Lock(monitorID)
	defer unlock()

	cur, err := s.state(ctx, monitorID, true)
	if err != nil {
		return err
	}
	st := cur.Copy()
	stats.Clear(st, now)
	if err := s.db.SaveState(ctx, monitorID, st); err != nil {
		s.obs.StorageError("save state")
		return storageError("save state", err)
	}
	s.setState(monitorID, st)
	return nil
}

// DeleteMonitor removes the statistics and the streams of a
// monitor. The monitor definition itself is not touched and need
// not exist anymore.
func (s *Scheduler) DeleteMonitor(ctx context.Context, monitorID uuid.UUID) error {
	unlock := s.locks.Lock(monitorID)
	defer unlock()

	if err := s.db.DeleteMonitorData(ctx, monitorID); err != nil {
		s.obs.StorageError("delete monitor")
		return storageError("delete monitor", err)
	}
	s.streams.removeMonitor(monitorID)
	s.setState(monitorID, nil)
	return nil
}

// Stats is the state of a monitor as it is shown.
type Stats struct {
	ID      uuid.UUID     `json:"id"`
	Stats   *stats.View   `json:"stats"`
	Health  health.Report `json:"health"`
	Overall health.Level  `json:"overall"`
}

// Stats returns the rounded state of a monitor and its health.
func (s *Scheduler) Stats(ctx context.Context, monitorID uuid.UUID) (*Stats, error) {
	m, err := s.fetchMonitor(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	st, err := s.state(ctx, monitorID, false)
	if err != nil {
		return nil, err
	}
	report := health.Classify(health.FactsOf(st, m.PollCount))
	return &Stats{
		ID:      monitorID,
		Stats:   st.Display(m.PollCount),
		Health:  report,
		Overall: report.Worst(),
	}, nil
}

// Series returns the points of a stream channel of a monitor between
// from and until.
func (s *Scheduler) Series(ctx context.Context, monitorID uuid.UUID, channel string, cf rrd.Consolidation, from, until time.Time) ([]rrd.Point, error) {
	m, err := s.fetchMonitor(ctx, monitorID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(monitorID)
	defer unlock()

	key := monitor.StreamKey(m.AgentID, m.ID)
	stream, err := s.streams.fetch(ctx, m.ID, key)
	if err != nil {
		s.obs.StorageError("fetch stream")
		return nil, storageError("fetch stream", err)
	}
	if stream == nil {
		return nil, &monitor.NotFoundError{Kind: "stream", ID: key}
	}

	points, err := stream.Query(channel, cf, from, until)
	if err != nil {
		if errors.Is(err, rrd.ErrUnknownChannel) {
			return nil, &monitor.NotFoundError{Kind: "channel", ID: channel}
		}
		return nil, &monitor.ValidationError{What: "series", Err: err}
	}
	return points, nil
}

// DownReport lists the active monitors whose last two volleys were
// fully lost.
func (s *Scheduler) DownReport(ctx context.Context, now time.Time) (*health.DownReport, error) {
	mons, err := s.db.FetchMonitors(ctx)
	if err != nil {
		return nil, storageError("fetch monitors", err)
	}

	agents := make(map[uuid.UUID]string)
	var candidates []health.Candidate
	for _, m := range mons {
		if !m.Active {
			continue
		}
		st, err := s.state(ctx, m.ID, false)
		if err != nil {
			return nil, err
		}
		if !st.StillDown(m.PollCount) {
			continue
		}

		name, ok := agents[m.AgentID]
		if !ok {
			if a, err := s.db.FetchAgent(ctx, m.AgentID); err != nil {
				return nil, storageError("fetch agent", err)
			} else if a != nil {
				name = a.Name
			}
			agents[m.AgentID] = name
		}
		var address string
		if t, err := s.db.FetchTarget(ctx, m.TargetID); err != nil {
			return nil, storageError("fetch target", err)
		} else if t != nil {
			address = t.Address
		}

		candidates = append(candidates, health.Candidate{
			ID:        m.ID,
			Agent:     name,
			Address:   address,
			PollCount: m.PollCount,
			State:     st,
		})
	}
	return health.NewDownReport(now, candidates), nil
}

// NotifyDown builds the down report and tells whether it warrants a
// notification, which is logged.
func (s *Scheduler) NotifyDown(ctx context.Context, now time.Time) (bool, error) {
	r, err := s.DownReport(ctx, now)
	if err != nil {
		return false, err
	}
	if !s.throttle.Allow(r.Digest(), now) {
		return false, nil
	}
	log.Printf("Down report: %d monitor(s) down.", len(r.Monitors))
	for _, d := range r.Monitors {
		log.Printf("Down report:   %v agent %q address %s since %v (%v)", d.ID, d.Agent, d.Address, d.Since, d.Level)
	}
	s.obs.DownNotified(len(r.Monitors))
	return true, nil
}

// RunNotifier calls NotifyDown every interval until ctx is done.
func (s *Scheduler) RunNotifier(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if _, err := s.NotifyDown(ctx, now); err != nil {
				log.Printf("RunNotifier(): %v", err)
			}
		}
	}
}
