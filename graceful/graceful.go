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

// Package graceful provides a listener which keeps track of the
// connections it accepted so that a server can wait for them to
// finish before exiting.
package graceful

import (
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

type gracefulConn struct {
	net.Conn
	gl   *Listener
	once sync.Once
}

func (c *gracefulConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() {
		atomic.AddInt64(&c.gl.active, -1)
		c.gl.wg.Done()
	})
	return err
}

type Listener struct {
	net.Listener
	wg     sync.WaitGroup
	active int64

	mu      sync.Mutex
	stopped bool
}

func NewListener(l net.Listener) *Listener {
	return &Listener{Listener: l}
}

// Close stops accepting new connections. Closing twice is EINVAL.
func (gl *Listener) Close() error {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	if gl.stopped {
		return syscall.EINVAL
	}
	gl.stopped = true
	return gl.Listener.Close()
}

func (gl *Listener) Accept() (net.Conn, error) {
	c, err := gl.Listener.Accept()
	if err != nil {
		return nil, err
	}
	gl.wg.Add(1)
	atomic.AddInt64(&gl.active, 1)
	return &gracefulConn{Conn: c, gl: gl}, nil
}

// Wait blocks until every accepted connection is closed.
func (gl *Listener) Wait() {
	gl.wg.Wait()
}

// Active is the number of open accepted connections.
func (gl *Listener) Active() int {
	return int(atomic.LoadInt64(&gl.active))
}
