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
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/stats"
	"github.com/kineticmon/kinetic/volley"
)

// Submission is the result of one job.
type Submission struct {
	MonitorID uuid.UUID
	Results   volley.Volley
}

// SubmitResult processes the volley of one monitor run by agent.
func (s *Scheduler) SubmitResult(ctx context.Context, agentID, monitorID uuid.UUID, v volley.Volley, now time.Time) error {
	return s.SubmitResults(ctx, agentID, []Submission{{MonitorID: monitorID, Results: v}}, now)
}

// SubmitResults validates and resolves every submission before any
// of them is applied, so that a ValidationError or a NotFoundError
// means nothing was changed. Submissions are then applied in order;
// a StorageError stops at the failing one, those before it stay
// applied. A monitor already updated in the slot of now is skipped,
// so the whole batch can be sent again after a failure.
func (s *Scheduler) SubmitResults(ctx context.Context, agentID uuid.UUID, subs []Submission, now time.Time) error {
	seen := make(map[uuid.UUID]bool, len(subs))
	for i, sub := range subs {
		if seen[sub.MonitorID] {
			return &monitor.ValidationError{
				What: fmt.Sprintf("entry %d (%v)", i, sub.MonitorID),
				Err:  fmt.Errorf("duplicate monitor in batch"),
			}
		}
		seen[sub.MonitorID] = true
		if err := sub.Results.Validate(); err != nil {
			return &monitor.ValidationError{What: fmt.Sprintf("entry %d (%v)", i, sub.MonitorID), Err: err}
		}
	}

	if _, err := s.fetchAgent(ctx, agentID); err != nil {
		return err
	}

	mons := make([]*monitor.Monitor, len(subs))
	for i, sub := range subs {
		m, err := s.fetchMonitor(ctx, sub.MonitorID)
		if err != nil {
			return err
		}
		if !m.Active || m.AgentID != agentID {
			return &monitor.NotFoundError{Kind: "monitor", ID: sub.MonitorID.String()}
		}
		if len(sub.Results) != m.PollCount {
			return &monitor.ValidationError{
				What: fmt.Sprintf("entry %d (%v)", i, sub.MonitorID),
				Err:  fmt.Errorf("%d results for pollcount %d", len(sub.Results), m.PollCount),
			}
		}
		mons[i] = m
	}

	for i, sub := range subs {
		if err := s.apply(ctx, agentID, mons[i], sub.Results, now); err != nil {
			return err
		}
	}
	return nil
}

// apply runs a volley through the aggregator and the tracker, and
// writes it to the archive. The new state and the archive change are
// persisted together before either is made visible in memory. A
// volley whose slot is not after the last update is not applied.
func (s *Scheduler) apply(ctx context.Context, agentID uuid.UUID, m *monitor.Monitor, v volley.Volley, now time.Time) error {
	start := time.Now()

	if s.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()
	}

	unlock := s.locks.Lock(m.ID)
	defer unlock()

	cur, err := s.state(ctx, m.ID, true)
	if err != nil {
		return err
	}
	key := monitor.StreamKey(agentID, m.ID)
	if applied(cur, m.Interval(), now) {
		log.Printf("Submit: %v", &monitor.StaleWriteError{Key: key, Err: rrd.ErrStale})
		s.obs.StaleWrite()
		return nil
	}

	st := cur.Copy()
	stats.Update(st, v, m.PollCount, m.Interval(), now)

	stream, replace, err := s.streams.fetchOrCreate(ctx, m, key)
	if err != nil {
		s.obs.StorageError("fetch stream")
		return storageError("fetch stream", err)
	}

	valid := v.Valid()
	values := streamValues(floats(v), st.CurrentLoss, st.CurrentMedian, len(valid) > 0)
	change, err := stream.Prepare(now, values)
	if err != nil {
		if !errors.Is(err, rrd.ErrStale) {
			return fmt.Errorf("archive write for monitor %v: %v", m.ID, err)
		}
		log.Printf("Submit: %v", &monitor.StaleWriteError{Key: key, Err: err})
		s.obs.StaleWrite()
		change = nil
	}

	if err := s.db.SaveVolley(ctx, m.ID, key, st, stream, change, replace); err != nil {
		s.obs.StorageError("save volley")
		return storageError("save volley", err)
	}
	s.streams.add(m.ID, key, stream)

	if change != nil {
		if err := stream.Commit(change); err != nil {
			// Only possible if the stream changed without the lock,
			// the serde has it right, reload on next use.
			log.Printf("Submit: commit to stream %s failed: %v", key, err)
			s.streams.remove(key)
		}
	}
	s.setState(m.ID, st)

	s.obs.VolleyAccepted(time.Since(start))
	return nil
}

// applied reports whether st was already updated in the slot of now.
func applied(st *stats.State, step time.Duration, now time.Time) bool {
	return !st.LastUpdate.IsZero() && !now.Truncate(step).After(st.LastUpdate.Truncate(step))
}

// Lost samples are NaN.
func floats(v volley.Volley) []float64 {
	result := make([]float64, len(v))
	for i, sample := range v {
		result[i] = sample.Float()
	}
	return result
}
