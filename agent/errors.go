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

package agent

import (
	"fmt"
	"net/http"

	"github.com/kineticmon/kinetic/monitor"
)

func errUnsupported(p monitor.Protocol) error {
	return fmt.Errorf("unsupported protocol %q", p)
}

func errPollCount(n int) error {
	return fmt.Errorf("pollcount %d is not in [%d, %d]", n, monitor.MinPollCount, monitor.MaxPollCount)
}

// StatusError is a response from the server other than the one
// expected.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Retryable tells whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}
