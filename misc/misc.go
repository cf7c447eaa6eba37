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

// Package misc is misc stuff.
package misc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var longUnitRegex = regexp.MustCompile(`^([0-9]*\.?[0-9]+)(d|w|y|mon|min|hour)$`)

// BetterParseDuration is time.ParseDuration which also understands
// "min", "hour", "d" (day), "w" (week), "mon" (30 days) and "y" (365
// days), the way RRDTool and Graphite spell them. The long units
// cannot be combined with others.
func BetterParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	m := longUnitRegex.FindStringSubmatch(s)
	if m == nil {
		return time.ParseDuration(s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %v", s, err)
	}
	var unit time.Duration
	switch m[2] {
	case "min":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 168 * time.Hour
	case "mon":
		unit = 30 * 24 * time.Hour
	case "y":
		unit = 8760 * time.Hour
	}
	return time.Duration(n * float64(unit)), nil
}

// ParseTime parses a Graphite style time: "now", a unix timestamp in
// seconds or a relative time such as "-2h", relative to now. An empty
// string is the zero time.
func ParseTime(s string, now time.Time) (time.Time, error) {
	switch {
	case s == "":
		return time.Time{}, nil
	case s == "now":
		return now, nil
	case s[0] == '-':
		dur, err := BetterParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("error parsing relative time %q: %v", s, err)
		}
		return now.Add(-dur), nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing absolute time %q: %v", s, err)
	}
	return time.Unix(i, 0), nil
}
