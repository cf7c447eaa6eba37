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

// Package rrd contains the logic for storing a set of parallel time
// series channels at several resolutions with bounded retention in
// the manner of RRDTool.
package rrd

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrStale is returned when a write falls into a step that is
	// not after the most recently written one.
	ErrStale = errors.New("stale write")
	// ErrInvalidRange is returned by Query for a bad time range.
	ErrInvalidRange = errors.New("invalid range")
	// ErrUnknownChannel is returned for a channel the stream does not have.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrConflict is returned by Commit when the stream was changed
	// after the Change was prepared.
	ErrConflict = errors.New("stream changed since change was prepared")
)

// MaxQueryPoints limits the number of points a single Query may return.
var MaxQueryPoints = 100000

// Point is a single consolidated value. Unknown values are NaN.
type Point struct {
	Time  time.Time
	Value float64
}

// StreamSpec describes a Stream. Every channel gets an RRA for each
// of the RRAs specs.
type StreamSpec struct {
	Step     time.Duration
	Channels []string
	RRAs     []RRASpec

	// Can be used to fill the initial value
	LastUpdate time.Time
}

// Stream is a set of channels sharing one step and one time axis.
type Stream struct {
	step       time.Duration
	lastUpdate time.Time // beginning of the most recently written step
	dss        []*DataSource
	byName     map[string]*DataSource
}

// NewStream returns a new Stream in accordance with the spec.
func NewStream(spec *StreamSpec) *Stream {
	s := &Stream{
		step:       spec.Step,
		lastUpdate: spec.LastUpdate,
		dss:        make([]*DataSource, len(spec.Channels)),
		byName:     make(map[string]*DataSource, len(spec.Channels)),
	}
	for i, name := range spec.Channels {
		ds := NewDataSource(name, spec.Step, spec.RRAs)
		s.dss[i] = ds
		s.byName[name] = ds
	}
	return s
}

func (s *Stream) Step() time.Duration { return s.step }

// LastUpdate returns the beginning of the most recently written step.
func (s *Stream) LastUpdate() time.Time { return s.lastUpdate }

// Channels returns the channel names in order.
func (s *Stream) Channels() []string {
	result := make([]string, len(s.dss))
	for i, ds := range s.dss {
		result[i] = ds.name
	}
	return result
}

// DataSources returns the channels of the stream.
func (s *Stream) DataSources() []*DataSource { return s.dss }

// DataSource returns the named channel or nil.
func (s *Stream) DataSource(name string) *DataSource { return s.byName[name] }

// Copy returns a complete copy of the stream.
func (s *Stream) Copy() *Stream {
	newS := &Stream{
		step:       s.step,
		lastUpdate: s.lastUpdate,
		dss:        make([]*DataSource, len(s.dss)),
		byName:     make(map[string]*DataSource, len(s.dss)),
	}
	for i, ds := range s.dss {
		cp := ds.Copy()
		newS.dss[i] = cp
		newS.byName[cp.name] = cp
	}
	return newS
}

// PointCount is the total of rows stored across all channels.
func (s *Stream) PointCount() int {
	total := 0
	for _, ds := range s.dss {
		total += ds.PointCount()
	}
	return total
}

// Change is a prepared but not yet applied write. It can be
// inspected (and persisted) before Commit.
type Change struct {
	stream  *Stream
	base    time.Time
	slot    time.Time
	updates [][]*rraUpdate // per channel, per rra
}

// ArchiveChange describes the new state of one RRA after a Change.
type ArchiveChange struct {
	Channel  string
	Index    int // position of the RRA within the channel
	Spec     RRASpec
	Latest   time.Time
	PdpBegin time.Time
	Value    float64
	Duration time.Duration
	Rows     []Row
}

// Slot is the beginning of the step the change writes.
func (c *Change) Slot() time.Time { return c.slot }

// Archives lists the resulting state of every RRA touched by the change.
func (c *Change) Archives() []ArchiveChange {
	var result []ArchiveChange
	for i, ups := range c.updates {
		for j, u := range ups {
			result = append(result, ArchiveChange{
				Channel:  c.stream.dss[i].name,
				Index:    j,
				Spec:     u.rra.Spec(),
				Latest:   u.latest,
				PdpBegin: u.pdpBegin,
				Value:    u.pdp.value,
				Duration: u.pdp.duration,
				Rows:     u.rows,
			})
		}
	}
	return result
}

// Prepare computes the effect of writing values at ts without
// modifying the stream. Channels missing from values and NaN values
// are unknown for this step. A step that is not after the last
// written one results in ErrStale.
func (s *Stream) Prepare(ts time.Time, values map[string]float64) (*Change, error) {
	slot := ts.Truncate(s.step)
	if !s.lastUpdate.IsZero() && !slot.After(s.lastUpdate) {
		return nil, fmt.Errorf("%w: step %v is not after last update %v", ErrStale, slot, s.lastUpdate)
	}

	for name, v := range values {
		if _, ok := s.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}
		if math.IsInf(v, 0) {
			return nil, fmt.Errorf("±Inf is not a valid data point value for %q: %v", name, v)
		}
	}

	c := &Change{
		stream:  s,
		base:    s.lastUpdate,
		slot:    slot,
		updates: make([][]*rraUpdate, len(s.dss)),
	}
	for i, ds := range s.dss {
		v, ok := values[ds.name]
		if !ok {
			v = math.NaN()
		}
		c.updates[i] = ds.plan(slot, v)
	}
	return c, nil
}

// Commit applies a Change prepared by this stream.
func (s *Stream) Commit(c *Change) error {
	if c.stream != s || !c.base.Equal(s.lastUpdate) {
		return ErrConflict
	}
	for _, ups := range c.updates {
		for _, u := range ups {
			u.apply()
		}
	}
	s.lastUpdate = c.slot
	return nil
}

// Write is Prepare followed by Commit.
func (s *Stream) Write(ts time.Time, values map[string]float64) error {
	c, err := s.Prepare(ts, values)
	if err != nil {
		return err
	}
	return s.Commit(c)
}

// Query returns the consolidated points of a channel for every row
// beginning in [start, end) of the best matching RRA. If start and
// end are equal, the single row containing start is returned.
func (s *Stream) Query(channel string, cf Consolidation, start, end time.Time) ([]Point, error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %v is after end %v", ErrInvalidRange, start, end)
	}

	ds := s.byName[channel]
	if ds == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	rra := ds.BestRRA(cf, start, s.lastUpdate)
	if rra == nil {
		return nil, fmt.Errorf("no %v archive for channel %q", cf, channel)
	}

	first := start.Truncate(rra.step)
	n := int64(end.Sub(first)/rra.step) + 1
	if n > int64(MaxQueryPoints) {
		return nil, fmt.Errorf("%w: %d points exceeds limit of %d", ErrInvalidRange, n, MaxQueryPoints)
	}

	result := make([]Point, 0, n)
	for t := first; t.Before(end) || t.Equal(first); t = t.Add(rra.step) {
		result = append(result, Point{Time: t, Value: rra.valueAt(t)})
	}
	return result, nil
}
