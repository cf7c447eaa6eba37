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

// Package stats turns probe volleys into current and running
// statistics of a monitor, and keeps track of up/down transitions.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/kineticmon/kinetic/volley"
)

// State is the mutable statistics of one monitor. All values are
// kept at full precision, use Display to get the rounded ones.
type State struct {
	Sample int64 // number of volleys processed

	CurrentLoss   int // lost samples in the last volley
	CurrentMedian float64
	CurrentMin    float64
	CurrentMax    float64
	CurrentStdDev float64

	AvgLoss   float64
	AvgMedian float64
	AvgMin    float64
	AvgMax    float64
	AvgStdDev float64

	PrevLoss   int
	LastDown   time.Time // most recent transition, either direction
	TotalDown  int64     // seconds spent fully down
	LastUpdate time.Time
	LastClear  time.Time
}

// Copy returns a copy of the state.
func (st *State) Copy() *State {
	cp := *st
	return &cp
}

// Down tells whether the last volley was fully lost.
func (st *State) Down(pollcount int) bool {
	return st.CurrentLoss == pollcount
}

// StillDown tells whether the last two volleys were fully lost.
func (st *State) StillDown(pollcount int) bool {
	return st.CurrentLoss == pollcount && st.PrevLoss == pollcount
}

// Aggregate computes the current statistics of a volley of pollcount
// probes and folds them into the running averages. The previous loss
// is saved in PrevLoss before CurrentLoss is overwritten. The median
// is the lower median and the standard deviation is around the
// median rather than the mean.
func Aggregate(st *State, v volley.Volley, pollcount int) {
	valid := v.Valid()

	st.PrevLoss = st.CurrentLoss
	st.CurrentLoss = pollcount - len(valid)

	if len(valid) > 0 {
		sort.Float64s(valid)
		n := len(valid)
		median := valid[n/2]

		var sum float64
		for _, x := range valid {
			sum += (x - median) * (x - median)
		}

		st.CurrentMedian = median
		st.CurrentMin = valid[0]
		st.CurrentMax = valid[n-1]
		st.CurrentStdDev = math.Sqrt(sum / float64(n))
	}

	st.Sample++

	st.AvgLoss = runningMean(st.AvgLoss, float64(st.CurrentLoss), st.Sample)
	if len(valid) > 0 {
		st.AvgMedian = runningMean(st.AvgMedian, st.CurrentMedian, st.Sample)
		st.AvgMin = runningMean(st.AvgMin, st.CurrentMin, st.Sample)
		st.AvgMax = runningMean(st.AvgMax, st.CurrentMax, st.Sample)
		st.AvgStdDev = runningMean(st.AvgStdDev, st.CurrentStdDev, st.Sample)
	}
}

// runningMean is the cumulative average after sample values.
func runningMean(prev, cur float64, sample int64) float64 {
	if sample <= 1 {
		return cur
	}
	return (prev*float64(sample-1) + cur) / float64(sample)
}

// Track records an up/down edge in LastDown and accumulates the
// time spent fully down. It expects Aggregate to have run for the
// volley.
func Track(st *State, pollcount int, interval time.Duration, now time.Time) {
	down := st.CurrentLoss == pollcount
	wasDown := st.PrevLoss == pollcount

	if down != wasDown {
		st.LastDown = now
	}
	if down {
		st.TotalDown += int64(interval / time.Second)
	}
}

// Update runs the aggregator and the tracker for a volley and marks
// the state as updated at now.
func Update(st *State, v volley.Volley, pollcount int, interval time.Duration, now time.Time) {
	Aggregate(st, v, pollcount)
	Track(st, pollcount, interval, now)
	st.LastUpdate = now
}

// Clear resets the running statistics, keeping the current ones.
func Clear(st *State, now time.Time) {
	st.Sample = 0
	st.AvgLoss = 0
	st.AvgMedian = 0
	st.AvgMin = 0
	st.AvgMax = 0
	st.AvgStdDev = 0
	st.TotalDown = 0
	st.LastClear = now
}
