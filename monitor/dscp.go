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

package monitor

import (
	"fmt"
	"sort"
	"strings"
)

// dscp maps DSCP names to the value of the IP TOS byte (DSCP << 2).
var dscp = map[string]int{
	"BE":   0x00,
	"CS0":  0x00,
	"CS1":  0x20,
	"AF11": 0x28,
	"AF12": 0x30,
	"AF13": 0x38,
	"CS2":  0x40,
	"AF21": 0x48,
	"AF22": 0x50,
	"AF23": 0x58,
	"CS3":  0x60,
	"AF31": 0x68,
	"AF32": 0x70,
	"AF33": 0x78,
	"CS4":  0x80,
	"AF41": 0x88,
	"AF42": 0x90,
	"AF43": 0x98,
	"CS5":  0xA0,
	"EF":   0xB8,
	"CS6":  0xC0,
	"CS7":  0xE0,
}

// TOS returns the TOS byte for a DSCP name. An empty name is best
// effort.
func TOS(name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	tos, ok := dscp[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("unknown DSCP name: %q", name)
	}
	return tos, nil
}

// DSCPNames returns all known DSCP names, sorted.
func DSCPNames() []string {
	result := make([]string, 0, len(dscp))
	for name := range dscp {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
