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
	"math"
	"time"
)

// Pdp is a Primary Data Point. It holds the intermediate state of an
// archive row that is still open, i.e. the consolidation of the
// stream steps seen so far inside the row.
//
// This is an illustration of how stream steps are consolidated into
// a PDP using AVERAGE. The PDP below is 4 steps long. Three steps
// arrived: 1.0, 3.0 (twice) and 2.0. The value of this PDP is 2.25.
//
//  ||    +---------+    ||
//  ||    |     3.0 +----||
//  ||----+         | 2.0||
//  || 1.0|         |    ||
//  ||====+====+====+====||
//   0    1    2    3     4  ---> steps
//
// If a part of the data point is NaN (a lost probe, or a step that
// was never written), then that part does not count:
//
//  ||    +---------+    ||
//  ||    |      3.0|    ||
//  ||----+         | NaN||
//  || 1.0|         |    ||
//  ||====+====+====+====||
//   0    1    2    3     4  ---> steps
//
// In the above PDP 1/3 of the value is 1.0 and 2/3 of the value is
// 3.0, for a total of 2.33333. The duration of the PDP is the known
// part only, which is what the XFF is checked against when the row
// is closed.
//
// A datapoint must be all NaN for its value to be NaN. If duration is
// 0, then the value is irrelevant.
//
// To create an "empty" Pdp, simply use its zero value.
type Pdp struct {
	value    float64
	duration time.Duration
}

func (p *Pdp) Value() float64 {
	if p.duration == 0 {
		return math.NaN()
	}
	return p.value
}
func (p *Pdp) Duration() time.Duration { return p.duration }

// SetValue sets both value and duration of the PDP
func (p *Pdp) SetValue(val float64, dur time.Duration) {
	p.value = val
	p.duration = dur
}

// AddValue adds a value to a PDP using weighted mean.
func (p *Pdp) AddValue(val float64, dur time.Duration) {
	if !math.IsNaN(val) && dur > 0 {
		if math.IsNaN(p.value) {
			p.value = 0
		}
		p.value = p.value*float64(p.duration)/float64(p.duration+dur) +
			val*float64(dur)/float64(p.duration+dur)
		p.duration = p.duration + dur
	}
}

// AddValueMax adds a value using max. A non-NaN value is considered
// greater than zero value (duration 0) or NaN.
func (p *Pdp) AddValueMax(val float64, dur time.Duration) {
	if !math.IsNaN(val) && dur > 0 {
		if math.IsNaN(p.value) || p.duration == 0 {
			p.value = val // val "wins" over NaN
		} else if p.value < val {
			p.value = val
		}
		p.duration = p.duration + dur
	}
}

// AddValueMin adds a value using min. A non-NaN value is considered
// lesser than zero value (duration 0) or NaN.
func (p *Pdp) AddValueMin(val float64, dur time.Duration) {
	if !math.IsNaN(val) && dur > 0 {
		if math.IsNaN(p.value) || p.duration == 0 {
			p.value = val // val "wins" over NaN
		} else if p.value > val {
			p.value = val
		}
		p.duration = p.duration + dur
	}
}

// Consolidate adds a value using the given consolidation function.
func (p *Pdp) Consolidate(cf Consolidation, val float64, dur time.Duration) {
	switch cf {
	case AVERAGE:
		p.AddValue(val, dur)
	case MAX:
		p.AddValueMax(val, dur)
	case MIN:
		p.AddValueMin(val, dur)
	}
}

// Reset sets the value to zero value and returns the value of
// the PDP before Reset.
func (p *Pdp) Reset() float64 {
	result := p.Value()
	p.value = 0 // superfluous, but just in case
	p.duration = 0
	return result
}
