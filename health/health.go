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

// Package health classifies monitor statistics into severity levels.
package health

import (
	"encoding/json"
	"fmt"

	"github.com/kineticmon/kinetic/stats"
)

type Level int

const (
	Success Level = iota
	Info
	Warning
	Danger
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Danger:
		return "danger"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Loss percentage bands.
const (
	LossInfo    = 2.0
	LossWarning = 5.0
	LossDanger  = 13.0
)

// Facts are the inputs of Classify. Loss is given in percent.
type Facts struct {
	CurrentMedian      float64
	CurrentMin         float64
	CurrentMax         float64
	CurrentStdDev      float64
	CurrentLossPercent float64

	AvgMedian      float64
	AvgStdDev      float64
	AvgMin         float64
	AvgMax         float64
	AvgLossPercent float64
}

// FactsOf returns the facts of a monitor state.
func FactsOf(st *stats.State, pollcount int) Facts {
	return Facts{
		CurrentMedian:      st.CurrentMedian,
		CurrentMin:         st.CurrentMin,
		CurrentMax:         st.CurrentMax,
		CurrentStdDev:      st.CurrentStdDev,
		CurrentLossPercent: stats.Percent(float64(st.CurrentLoss), pollcount),
		AvgMedian:          st.AvgMedian,
		AvgStdDev:          st.AvgStdDev,
		AvgMin:             st.AvgMin,
		AvgMax:             st.AvgMax,
		AvgLossPercent:     stats.Percent(st.AvgLoss, pollcount),
	}
}

// Report is a level per facet.
type Report struct {
	Median  Level `json:"median"`
	Loss    Level `json:"loss"`
	AvgLoss Level `json:"avg_loss"`
	Min     Level `json:"min"`
	Max     Level `json:"max"`
	StdDev  Level `json:"stddev"`
}

// Worst returns the most severe level of the report.
func (r Report) Worst() Level {
	worst := r.Median
	for _, l := range []Level{r.Loss, r.AvgLoss, r.Min, r.Max, r.StdDev} {
		if l > worst {
			worst = l
		}
	}
	return worst
}

// Classify is deterministic, it depends on nothing but f.
func Classify(f Facts) Report {
	return Report{
		Median:  Median(f.CurrentMedian, f.AvgMedian, f.AvgStdDev),
		Loss:    Loss(f.CurrentLossPercent),
		AvgLoss: Loss(f.AvgLossPercent),
		Min:     Deviation(f.AvgMedian-f.CurrentMin, f.AvgStdDev),
		Max:     Deviation(f.CurrentMax-f.AvgMedian, f.AvgStdDev),
		StdDev:  Deviation(f.CurrentStdDev, f.AvgStdDev),
	}
}

// Median compares the current median to the average. Equality is
// checked on the displayed (rounded) values.
func Median(cur, avg, stddev float64) Level {
	switch {
	case cur > avg+2*stddev:
		return Danger
	case cur > avg+stddev:
		return Warning
	case stats.Round(cur) == stats.Round(avg):
		return Info
	}
	return Success
}

// Loss classifies a loss percentage.
func Loss(percent float64) Level {
	switch {
	case percent < LossInfo:
		return Success
	case percent < LossWarning:
		return Info
	case percent < LossDanger:
		return Warning
	}
	return Danger
}

// Deviation classifies d in multiples of stddev. Within one stddev
// is Success, beyond three is Danger. A zero stddev leaves no room
// for any deviation.
func Deviation(d, stddev float64) Level {
	if stddev <= 0 {
		if d <= 0 {
			return Success
		}
		return Danger
	}
	switch {
	case d <= stddev:
		return Success
	case d <= 2*stddev:
		return Info
	case d <= 3*stddev:
		return Warning
	}
	return Danger
}
