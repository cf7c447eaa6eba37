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

package graceful

import (
	"net"
	"testing"
	"time"
)

func TestListener(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	gl := NewListener(l)

	accepted := make(chan net.Conn)
	go func() {
		c, err := gl.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err := net.Dial("tcp", gl.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	c := <-accepted
	if c == nil {
		t.Fatal("Accept failed")
	}
	if gl.Active() != 1 {
		t.Errorf("Active: expected 1, got %d", gl.Active())
	}

	if err := gl.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := gl.Close(); err == nil {
		t.Errorf("second Close should fail")
	}

	done := make(chan struct{})
	go func() {
		gl.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Wait returned with a connection open")
	case <-time.After(50 * time.Millisecond):
	}

	c.Close()
	c.Close() // only counted once
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the connection closed")
	}
	if gl.Active() != 0 {
		t.Errorf("Active: expected 0, got %d", gl.Active())
	}
}
