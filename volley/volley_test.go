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

package volley

import (
	"encoding/json"
	"math"
	"testing"
)

func TestVolley_UnmarshalJSON(t *testing.T) {
	var v Volley
	if err := json.Unmarshal([]byte(`[1.0, 2, "U", 4.5, 0]`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(v) != 5 {
		t.Fatalf("Unmarshal: expected 5 samples, got %d", len(v))
	}
	if !v[2].IsLost() {
		t.Errorf("Unmarshal: sample 2 should be lost")
	}
	if ms, ok := v[3].Value(); !ok || ms != 4.5 {
		t.Errorf("Unmarshal: sample 3 expected 4.5, got %v %v", ms, ok)
	}
	if v.Lost() != 1 {
		t.Errorf("Lost: expected 1, got %d", v.Lost())
	}
	if valid := v.Valid(); len(valid) != 4 || valid[2] != 4.5 {
		t.Errorf("Valid: unexpected %v", valid)
	}

	for _, bad := range []string{`["X"]`, `[true]`, `[null]`, `[{}]`} {
		if err := json.Unmarshal([]byte(bad), &v); err == nil {
			t.Errorf("Unmarshal(%s): expected error", bad)
		}
	}
}

func TestVolley_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Volley{Value(1.5), Lost, Value(3)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `[1.5,"U",3]` {
		t.Errorf("Marshal: unexpected %s", b)
	}
}

func TestVolley_Validate(t *testing.T) {
	long := make(Volley, MaxSamples+1)
	for _, tc := range []struct {
		v  Volley
		ok bool
	}{
		{Volley{Value(1)}, true},
		{Volley{Lost, Lost}, true},
		{Volley{}, false},
		{long, false},
		{long[:MaxSamples], true},
		{Volley{Value(-1)}, false},
		{Volley{Value(math.NaN())}, false},
		{Volley{Value(math.Inf(1))}, false},
	} {
		err := tc.v.Validate()
		if tc.ok && err != nil {
			t.Errorf("Validate(%v): unexpected error %v", tc.v, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("Validate(%v): expected error", tc.v)
		}
	}
}

func TestSample_Float(t *testing.T) {
	if !math.IsNaN(Lost.Float()) {
		t.Errorf("Lost.Float() is not NaN")
	}
	if Value(2).Float() != 2 {
		t.Errorf("Value(2).Float() != 2")
	}
	if Lost.String() != "U" {
		t.Errorf("Lost.String(): %q", Lost.String())
	}
}
