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

import "fmt"

// ValidationError is a malformed request. Nothing was changed.
type ValidationError struct {
	What string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.What == "" {
		return fmt.Sprintf("validation error: %v", e.Err)
	}
	return fmt.Sprintf("validation error: %s: %v", e.What, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError is an unknown (or inactive) agent or monitor.
type NotFoundError struct {
	Kind string // "agent", "monitor", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// StaleWriteError is an out of order archive write. It is never
// fatal to the submission that caused it.
type StaleWriteError struct {
	Key string
	Err error
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale write to stream %s: %v", e.Key, e.Err)
}

func (e *StaleWriteError) Unwrap() error { return e.Err }

// StorageError is a failure to load or save state. The operation
// that returned it was not applied and can be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
