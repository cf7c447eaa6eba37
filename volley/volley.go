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

// Package volley contains the result of one poll cycle, a sequence
// of probe samples each of which is either a latency or lost.
package volley

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

const (
	// MinSamples and MaxSamples bound the length of a volley.
	MinSamples = 1
	MaxSamples = 35

	// LostSentinel is how a lost sample appears on the wire.
	LostSentinel = "U"
)

// Sample is either a latency in milliseconds or Lost. The zero value
// is a 0ms latency.
type Sample struct {
	ms   float64
	lost bool
}

// Lost is a probe that received no reply within its timeout.
var Lost = Sample{lost: true}

// Value returns a Sample for a latency in milliseconds.
func Value(ms float64) Sample { return Sample{ms: ms} }

func (s Sample) IsLost() bool { return s.lost }

// Value returns the latency and true, or 0 and false if the sample
// is lost.
func (s Sample) Value() (float64, bool) {
	if s.lost {
		return 0, false
	}
	return s.ms, true
}

// Float returns the latency or NaN if lost.
func (s Sample) Float() float64 {
	if s.lost {
		return math.NaN()
	}
	return s.ms
}

func (s Sample) String() string {
	if s.lost {
		return LostSentinel
	}
	return fmt.Sprintf("%g", s.ms)
}

func (s Sample) MarshalJSON() ([]byte, error) {
	if s.lost {
		return []byte(`"` + LostSentinel + `"`), nil
	}
	return json.Marshal(s.ms)
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("invalid sample null, must be a number or %q", LostSentinel)
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if str != LostSentinel {
			return fmt.Errorf("invalid sample %q, must be a number or %q", str, LostSentinel)
		}
		*s = Lost
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid sample %s, must be a number or %q", data, LostSentinel)
	}
	*s = Value(f)
	return nil
}

// Volley is the ordered list of samples of one poll cycle.
type Volley []Sample

// Validate checks the length and every sample of the volley.
func (v Volley) Validate() error {
	if len(v) < MinSamples || len(v) > MaxSamples {
		return fmt.Errorf("volley length %d is not in [%d, %d]", len(v), MinSamples, MaxSamples)
	}
	for i, s := range v {
		if s.lost {
			continue
		}
		if math.IsNaN(s.ms) || math.IsInf(s.ms, 0) {
			return fmt.Errorf("sample %d is not a finite number: %v", i, s.ms)
		}
		if s.ms < 0 {
			return fmt.Errorf("sample %d is negative: %v", i, s.ms)
		}
	}
	return nil
}

// Valid returns the latencies of the samples that are not lost, in
// their original order.
func (v Volley) Valid() []float64 {
	result := make([]float64, 0, len(v))
	for _, s := range v {
		if !s.lost {
			result = append(result, s.ms)
		}
	}
	return result
}

// Lost returns the number of lost samples.
func (v Volley) Lost() int {
	n := 0
	for _, s := range v {
		if s.lost {
			n++
		}
	}
	return n
}
