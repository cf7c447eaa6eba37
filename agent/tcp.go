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
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/kineticmon/kinetic/monitor"
)

// TCPProber measures the time it takes to establish a TCP
// connection. The address is resolved before the clock starts.
type TCPProber struct {
	Timeout time.Duration
}

func (p *TCPProber) Probe(ctx context.Context, job *monitor.JobSpec, tos, seq int) (time.Duration, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{
		Timeout: timeout,
		Control: func(network, address string, c syscall.RawConn) error {
			if tos == 0 {
				return nil
			}
			return setTOS(network, c, tos)
		},
	}

	ip, err := resolveIPAddr(ctx, job.Address)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(job.Port)))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	conn.Close()
	return rtt, nil
}
