//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
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

package misc

import (
	"testing"
	"time"
)

func TestBetterParseDuration(t *testing.T) {
	for _, c := range []struct {
		in   string
		want time.Duration
	}{
		{"10s", 10 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"5min", 5 * time.Minute},
		{"2hour", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1mon", 30 * 24 * time.Hour},
		{"1y", 365 * 24 * time.Hour},
		{"0.5d", 12 * time.Hour},
	} {
		got, err := BetterParseDuration(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("%q: expected %v, got %v", c.in, c.want, got)
		}
	}

	for _, bad := range []string{"", "d", "1x", "abc"} {
		if _, err := BetterParseDuration(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestParseTime(t *testing.T) {
	now := time.Unix(100000, 0)
	for _, c := range []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"now", now},
		{"-1h", now.Add(-time.Hour)},
		{"-1d", now.Add(-24 * time.Hour)},
		{"5000", time.Unix(5000, 0)},
	} {
		got, err := ParseTime(c.in, now)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("%q: expected %v, got %v", c.in, c.want, got)
		}
	}
	if _, err := ParseTime("yesterday", now); err == nil {
		t.Errorf("expected error")
	}
}
