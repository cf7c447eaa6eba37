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

package serde

import (
	"database/sql"
	"fmt"
	"testing"
	"time"
)

func Test_InitDb_openError(t *testing.T) {
	save_sqlOpen := sqlOpen
	defer func() { sqlOpen = save_sqlOpen }()

	var driver string
	sqlOpen = func(d, connect string) (*sql.DB, error) {
		driver = d
		return nil, fmt.Errorf("cannot open")
	}

	if _, err := InitDb("host=localhost", "kn"); err == nil {
		t.Errorf("expected an error")
	}
	if driver != "postgres" {
		t.Errorf("expected the postgres driver, got %q", driver)
	}
}

func Test_nullTime(t *testing.T) {
	if nt := nullTime(time.Time{}); nt.Valid {
		t.Errorf("zero time should be NULL")
	}
	now := time.Unix(1000, 0)
	nt := nullTime(now)
	if !nt.Valid || !timeOf(nt).Equal(now) {
		t.Errorf("unexpected %v", nt)
	}
	nt.Valid = false
	if !timeOf(nt).IsZero() {
		t.Errorf("NULL should be the zero time")
	}
}
