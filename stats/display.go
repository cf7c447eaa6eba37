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

package stats

import (
	"math"
	"time"
)

// View is the state as it is shown, with values rounded to two
// decimal places and loss also given as a percentage.
type View struct {
	Sample int64 `json:"sample"`

	CurrentLoss        int     `json:"current_loss"`
	CurrentLossPercent float64 `json:"current_loss_percent"`
	CurrentMedian      float64 `json:"current_median"`
	CurrentMin         float64 `json:"current_min"`
	CurrentMax         float64 `json:"current_max"`
	CurrentStdDev      float64 `json:"current_stddev"`

	AvgLoss        float64 `json:"avg_loss"`
	AvgLossPercent float64 `json:"avg_loss_percent"`
	AvgMedian      float64 `json:"avg_median"`
	AvgMin         float64 `json:"avg_min"`
	AvgMax         float64 `json:"avg_max"`
	AvgStdDev      float64 `json:"avg_stddev"`

	PrevLoss   int        `json:"prev_loss"`
	LastDown   *time.Time `json:"last_down,omitempty"`
	TotalDown  int64      `json:"total_down"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
	LastClear  *time.Time `json:"last_clear,omitempty"`
}

// Round rounds to 2 decimal places.
func Round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Percent returns loss out of pollcount as a percentage.
func Percent(loss float64, pollcount int) float64 {
	if pollcount <= 0 {
		return 0
	}
	return loss * 100 / float64(pollcount)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Display returns the rounded view of the state.
func (st *State) Display(pollcount int) *View {
	return &View{
		Sample:             st.Sample,
		CurrentLoss:        st.CurrentLoss,
		CurrentLossPercent: Round(Percent(float64(st.CurrentLoss), pollcount)),
		CurrentMedian:      Round(st.CurrentMedian),
		CurrentMin:         Round(st.CurrentMin),
		CurrentMax:         Round(st.CurrentMax),
		CurrentStdDev:      Round(st.CurrentStdDev),
		AvgLoss:            Round(st.AvgLoss),
		AvgLossPercent:     Round(Percent(st.AvgLoss, pollcount)),
		AvgMedian:          Round(st.AvgMedian),
		AvgMin:             Round(st.AvgMin),
		AvgMax:             Round(st.AvgMax),
		AvgStdDev:          Round(st.AvgStdDev),
		PrevLoss:           st.PrevLoss,
		LastDown:           timePtr(st.LastDown),
		TotalDown:          st.TotalDown,
		LastUpdate:         timePtr(st.LastUpdate),
		LastClear:          timePtr(st.LastClear),
	}
}
