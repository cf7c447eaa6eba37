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

package rrd

import (
	"time"
)

// DataSource is a single channel of a Stream together with its
// Round Robin Archives. All DataSources of a Stream share the step
// and the time axis, which is kept by the Stream.
type DataSource struct {
	name string
	step time.Duration
	rras []*RoundRobinArchive
}

// NewDataSource returns a new DataSource with an RRA for each of
// the given specs.
func NewDataSource(name string, step time.Duration, specs []RRASpec) *DataSource {
	ds := &DataSource{
		name: name,
		step: step,
		rras: make([]*RoundRobinArchive, len(specs)),
	}
	for i, spec := range specs {
		ds.rras[i] = NewRoundRobinArchive(spec, step)
	}
	return ds
}

// Name of the channel
func (ds *DataSource) Name() string { return ds.name }

// Step returns the step, i.e. the size of a finest interval. All
// RRAs this DS has have steps that are a multiple of this Step.
func (ds *DataSource) Step() time.Duration { return ds.step }

// List of Round Robin Archives this Data Source has
func (ds *DataSource) RRAs() []*RoundRobinArchive { return ds.rras }

// Returns a complete copy of this Data Source
func (ds *DataSource) Copy() *DataSource {
	newDs := &DataSource{
		name: ds.name,
		step: ds.step,
		rras: make([]*RoundRobinArchive, len(ds.rras)),
	}
	for n, rra := range ds.rras {
		newDs.rras[n] = rra.Copy()
	}
	return newDs
}

// BestRRA examines the RRAs with the given consolidation function
// and returns the finest one whose retention still covers start,
// assuming now is the most recent stream step. If none cover start,
// the one with the longest span is returned. Nil is returned if
// there are no RRAs for cf at all.
func (ds *DataSource) BestRRA(cf Consolidation, start, now time.Time) *RoundRobinArchive {
	var (
		best, longest *RoundRobinArchive
	)

	for _, rra := range ds.rras {
		if rra.cf != cf {
			continue
		}
		if longest == nil || longest.Span() < rra.Span() {
			longest = rra
		}
		if start.Truncate(rra.step).Before(rra.Begins(now)) {
			continue
		}
		if best == nil || best.step > rra.step {
			best = rra
		}
	}

	if best == nil {
		return longest
	}
	return best
}

// PointCount returns the sum of all point counts of every RRA in this
// DS.
func (ds *DataSource) PointCount() int {
	total := 0
	for _, rra := range ds.rras {
		total += rra.PointCount()
	}
	return total
}

// plan computes the change to every RRA caused by value arriving for
// the step beginning at slot.
func (ds *DataSource) plan(slot time.Time, value float64) []*rraUpdate {
	result := make([]*rraUpdate, len(ds.rras))
	for i, rra := range ds.rras {
		result[i] = rra.plan(slot, ds.step, value)
	}
	return result
}
