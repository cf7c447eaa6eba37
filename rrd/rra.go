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
	"fmt"
	"math"
	"strings"
	"time"
)

type Consolidation int

const (
	AVERAGE Consolidation = iota // Time-weighted average
	MAX                          // Max
	MIN                          // Min
)

func (cf Consolidation) String() string {
	switch cf {
	case AVERAGE:
		return "AVERAGE"
	case MAX:
		return "MAX"
	case MIN:
		return "MIN"
	}
	return fmt.Sprintf("Consolidation(%d)", int(cf))
}

// ParseConsolidation is the inverse of Consolidation.String(). It is
// case-insensitive.
func ParseConsolidation(s string) (Consolidation, error) {
	switch strings.ToUpper(s) {
	case "AVERAGE", "AVG":
		return AVERAGE, nil
	case "MAX":
		return MAX, nil
	case "MIN":
		return MIN, nil
	}
	return AVERAGE, fmt.Errorf("invalid consolidation function: %q", s)
}

// A Round Robin Archive and all its parameters.
type RoundRobinArchive struct {
	// The open (not yet flushed) row. Whatever stream steps fall
	// inside the row that begins at pdpBegin are consolidated here
	// until the row boundary is crossed.
	Pdp
	pdpBegin time.Time

	// Consolidation function (CF). How stream steps are aggregated
	// into a row. Must be AVERAGE, MAX or MIN.
	cf Consolidation
	// Resolution factor, i.e. number of stream steps per row.
	steps int64
	// The RRA step (row duration), stream step * steps.
	step time.Duration
	// Number of rows in the RRA.
	size int64
	// Time at which the most recently flushed row begins.
	latest time.Time
	// X-Files Factor (XFF). When a row is closed, how much of it
	// (as a value between 0 and 1) must be known for the row not to
	// be considered unknown. Note that this is inverse of the RRDTool
	// definition of XFF, the Go zero value means any known step is
	// enough.
	xff float32

	// The rows (as a map so that it's sparse). Slots are
	// time-aligned starting at zero time, so if latest is known we
	// can compute any slot's timestamp without having to store it.
	dps map[int64]float64
}

// Row is a single archive row change. A NaN value means the row is
// unknown and should be removed.
type Row struct {
	Slot  int64
	Begin time.Time
	Value float64
}

// Returns a new RRA in accordance with the provided RRASpec and
// stream step.
func NewRoundRobinArchive(spec RRASpec, streamStep time.Duration) *RoundRobinArchive {
	steps := spec.Steps
	if steps < 1 {
		steps = 1
	}
	result := &RoundRobinArchive{
		cf:       spec.Function,
		steps:    steps,
		step:     streamStep * time.Duration(steps),
		size:     spec.Size,
		xff:      spec.Xff,
		latest:   spec.Latest,
		pdpBegin: spec.PdpBegin,
		Pdp: Pdp{
			value:    spec.Value,
			duration: spec.Duration,
		},
		dps: make(map[int64]float64),
	}
	if len(spec.DPs) > 0 {
		result.dps = spec.DPs
	}
	return result
}

// Function returns the consolidation function of the RRA.
func (rra *RoundRobinArchive) Function() Consolidation { return rra.cf }

// Latest returns the time on which the last flushed row begins.
func (rra *RoundRobinArchive) Latest() time.Time { return rra.latest }

// PdpBegin returns the time on which the open row begins, or zero
// time if there is no open row.
func (rra *RoundRobinArchive) PdpBegin() time.Time { return rra.pdpBegin }

// Step of this RRA
func (rra *RoundRobinArchive) Step() time.Duration { return rra.step }

// Steps is the resolution factor of this RRA.
func (rra *RoundRobinArchive) Steps() int64 { return rra.steps }

// Number of rows in this RRA
func (rra *RoundRobinArchive) Size() int64 { return rra.size }

func (rra *RoundRobinArchive) Xff() float32 { return rra.xff }

// DPs returns rows as a map of floats keyed by slot.
func (rra *RoundRobinArchive) DPs() map[int64]float64 { return rra.dps }

// PointCount returns the number of known rows in this RRA.
func (rra *RoundRobinArchive) PointCount() int { return len(rra.dps) }

// Returns a complete copy of the RRA.
func (rra *RoundRobinArchive) Copy() *RoundRobinArchive {
	newRRA := &RoundRobinArchive{
		Pdp:      Pdp{value: rra.value, duration: rra.duration},
		pdpBegin: rra.pdpBegin,
		cf:       rra.cf,
		steps:    rra.steps,
		step:     rra.step,
		size:     rra.size,
		latest:   rra.latest,
		xff:      rra.xff,
		dps:      make(map[int64]float64, len(rra.dps)),
	}
	for k, v := range rra.dps {
		newRRA.dps[k] = v
	}
	return newRRA
}

// SetState fills the RRA with previously saved state. Rows are
// keyed by slot, see SlotIndex.
func (rra *RoundRobinArchive) SetState(latest, pdpBegin time.Time, value float64, duration time.Duration, dps map[int64]float64) {
	rra.latest = latest
	rra.pdpBegin = pdpBegin
	rra.Pdp = Pdp{value: value, duration: duration}
	rra.dps = dps
	if rra.dps == nil {
		rra.dps = make(map[int64]float64)
	}
}

// Spec matching this RRA, without the data.
func (rra *RoundRobinArchive) Spec() RRASpec {
	return RRASpec{
		Function: rra.cf,
		Steps:    rra.steps,
		Size:     rra.size,
		Xff:      rra.xff,
	}
}

// Begins returns the beginning of the earliest row that is retained
// given that the row containing now is the most recent one.
func (rra *RoundRobinArchive) Begins(now time.Time) time.Time {
	return now.Truncate(rra.step).Add(-rra.step * time.Duration(rra.size-1))
}

// Span is the time covered by the whole RRA.
func (rra *RoundRobinArchive) Span() time.Duration {
	return rra.step * time.Duration(rra.size)
}

// valueAt returns the value of the row beginning at t. The open row
// reports its consolidated value so far.
func (rra *RoundRobinArchive) valueAt(t time.Time) float64 {
	if !rra.pdpBegin.IsZero() && t.Equal(rra.pdpBegin) {
		return rra.Pdp.Value()
	}
	if rra.latest.IsZero() || t.After(rra.latest) || t.Before(rra.Begins(rra.latest)) {
		return math.NaN()
	}
	if v, ok := rra.dps[SlotIndex(t, rra.step, rra.size)]; ok {
		return v
	}
	return math.NaN()
}

// rraUpdate is the pending effect of one stream step on an RRA. It
// is computed without touching the RRA so that the change can be
// persisted before it is applied.
type rraUpdate struct {
	rra      *RoundRobinArchive
	pdp      Pdp
	pdpBegin time.Time
	latest   time.Time
	rows     []Row
}

// plan computes what adding value for the stream step beginning at
// slot would do to the RRA.
func (rra *RoundRobinArchive) plan(slot time.Time, streamStep time.Duration, value float64) *rraUpdate {
	u := &rraUpdate{
		rra:      rra,
		pdp:      rra.Pdp,
		pdpBegin: rra.pdpBegin,
		latest:   rra.latest,
	}

	begin := slot.Truncate(rra.step)

	// The open row is behind, close it even though it is incomplete.
	if !u.pdpBegin.IsZero() && begin.After(u.pdpBegin) {
		u.flush()
	}

	u.pdpBegin = begin
	u.pdp.Consolidate(rra.cf, value, streamStep)

	// Last step of the row, it is complete.
	if !slot.Add(streamStep).Before(begin.Add(rra.step)) {
		u.flush()
	}
	return u
}

// flush moves the open row into its slot, clearing any slots that
// were skipped since latest.
func (u *rraUpdate) flush() {
	rra := u.rra

	value := u.pdp.Value()
	known := float64(u.pdp.Duration()) / float64(rra.step)
	if known < float64(rra.xff) {
		value = math.NaN()
	}

	if !u.latest.IsZero() {
		gap := int64(u.pdpBegin.Sub(u.latest)/rra.step) - 1
		if gap > rra.size-1 {
			gap = rra.size - 1
		}
		for i := int64(1); i <= gap; i++ {
			t := u.pdpBegin.Add(-rra.step * time.Duration(i))
			u.rows = append(u.rows, Row{Slot: SlotIndex(t, rra.step, rra.size), Begin: t, Value: math.NaN()})
		}
	}

	u.rows = append(u.rows, Row{Slot: SlotIndex(u.pdpBegin, rra.step, rra.size), Begin: u.pdpBegin, Value: value})
	u.latest = u.pdpBegin
	u.pdpBegin = time.Time{}
	u.pdp.Reset()
}

// apply makes the planned change permanent.
func (u *rraUpdate) apply() {
	rra := u.rra
	if rra.dps == nil {
		rra.dps = make(map[int64]float64)
	}
	for _, row := range u.rows {
		if math.IsNaN(row.Value) {
			// No value is better than storing a NaN
			delete(rra.dps, row.Slot)
		} else {
			rra.dps[row.Slot] = row.Value
		}
	}
	rra.Pdp = u.pdp
	rra.pdpBegin = u.pdpBegin
	rra.latest = u.latest
}

// Given a row begin timestamp, RRA step and size, return the slot's
// (0-based) index in the rows map. Size of zero causes a division by
// zero panic.
func SlotIndex(slotBegin time.Time, step time.Duration, size int64) int64 {
	return ((slotBegin.UnixNano() / 1e6) / (step.Nanoseconds() / 1e6)) % size
}

// Distance between i and j indexes in an RRA. If i > j (the RRA wraps
// around) then it is the sum of the distance from i to the end and
// the beginning to j. Size of 0 causes a division by zero panic.
func IndexDistance(i, j, size int64) int64 {
	return (size + j - i) % size
}

// Given time of the latest slot, step and size, return the timestamp
// on which slot n begins. Size of zero causes a division by zero
// panic.
func SlotTime(n int64, latest time.Time, step time.Duration, size int64) time.Time {
	latestN := SlotIndex(latest, step, size)
	distance := IndexDistance(n, latestN, size)
	return latest.Add(time.Duration(distance*-1) * step)
}

// RRASpec is the RRA definition for NewRoundRobinArchive.
type RRASpec struct {
	Function Consolidation
	Steps    int64 // resolution factor, stream steps per row
	Size     int64 // number of rows retained
	Xff      float32

	// These can be used to fill the initial value
	Latest   time.Time
	PdpBegin time.Time
	Value    float64
	Duration time.Duration
	DPs      map[int64]float64 // Careful, these are round-robin
}
