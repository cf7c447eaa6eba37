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

package health

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/stats"
)

// How long a monitor has been down before it is shown at a level.
var (
	DownInfo    = 2 * time.Hour
	DownWarning = 5 * time.Hour
	DownDanger  = 12 * time.Hour
)

// Candidate is a monitor considered for the down report.
type Candidate struct {
	ID        uuid.UUID
	Agent     string
	Address   string
	PollCount int
	State     *stats.State
}

// Down is a monitor that has been fully down for two volleys or more.
type Down struct {
	ID       uuid.UUID `json:"id"`
	Agent    string    `json:"agent"`
	Address  string    `json:"address"`
	Since    time.Time `json:"since"`
	Duration int64     `json:"duration"` // seconds
	Level    Level     `json:"level"`
}

type DownReport struct {
	Time     time.Time `json:"time"`
	Monitors []Down    `json:"monitors"`
}

// DownLevel is the level of a monitor down for d.
func DownLevel(d time.Duration) Level {
	switch {
	case d > DownDanger:
		return Danger
	case d > DownWarning:
		return Warning
	case d > DownInfo:
		return Info
	}
	return Success
}

// NewDownReport lists the candidates whose last two volleys were
// fully lost, ordered by ID.
func NewDownReport(now time.Time, candidates []Candidate) *DownReport {
	r := &DownReport{Time: now, Monitors: []Down{}}
	for _, c := range candidates {
		if c.State == nil || !c.State.StillDown(c.PollCount) {
			continue
		}
		d := now.Sub(c.State.LastDown)
		r.Monitors = append(r.Monitors, Down{
			ID:       c.ID,
			Agent:    c.Agent,
			Address:  c.Address,
			Since:    c.State.LastDown,
			Duration: int64(d / time.Second),
			Level:    DownLevel(d),
		})
	}
	sort.Slice(r.Monitors, func(i, j int) bool {
		return r.Monitors[i].ID.String() < r.Monitors[j].ID.String()
	})
	return r
}

// Digest identifies the set of down monitors. It is empty when
// nothing is down.
func (r *DownReport) Digest() string {
	if len(r.Monitors) == 0 {
		return ""
	}
	h := sha256.New()
	for _, m := range r.Monitors {
		h.Write(m.ID[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Throttle decides when a down report is worth a notification: the
// set of down monitors must have changed and Interval must have
// passed since the last notification.
type Throttle struct {
	Interval time.Duration

	mu     sync.Mutex
	digest string
	last   time.Time
}

// Allow returns true if a report with digest should be sent at now,
// in which case it is remembered as sent.
func (t *Throttle) Allow(digest string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if digest == "" || digest == t.digest {
		return false
	}
	if !t.last.IsZero() && now.Sub(t.last) < t.Interval {
		return false
	}
	t.digest = digest
	t.last = now
	return true
}
