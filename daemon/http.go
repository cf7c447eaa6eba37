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

package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/kineticmon/kinetic/graceful"
	h "github.com/kineticmon/kinetic/http"
	"github.com/kineticmon/kinetic/metrics"
)

type wwwServer struct {
	svc        h.Service
	collector  *metrics.Collector
	listener   *graceful.Listener
	server     *http.Server
	listenSpec string
	stop       int32
}

func (g *wwwServer) Stop() {
	if g.stopped() {
		return
	}
	atomic.StoreInt32(&(g.stop), 1)
	if g.listener != nil {
		log.Printf("Closing listener %s\n", g.listenSpec)
		g.listener.Close()
	}
}

func (g *wwwServer) stopped() bool {
	return atomic.LoadInt32(&(g.stop)) != 0
}

// Wait closes idle connections and blocks until all connections
// accepted so far are closed.
func (g *wwwServer) Wait() {
	if g.server != nil {
		// the listener is already closed, the error says so
		g.server.Shutdown(context.Background())
	}
	if g.listener != nil {
		g.listener.Wait()
	}
}

// Addr is the address the server is listening on, nil if not started.
func (g *wwwServer) Addr() net.Addr {
	if g.listener != nil {
		return g.listener.Addr()
	}
	return nil
}

func (g *wwwServer) Start() error {
	if g.listenSpec == "" {
		log.Printf("Not starting HTTP server because http-listen-spec is blank.")
		return nil
	}

	gl, err := net.Listen("tcp", processListenSpec(g.listenSpec))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting HTTP protocol: %v\n", err)
		return fmt.Errorf("Error starting HTTP protocol: %v", err)
	}

	g.listener = graceful.NewListener(gl)

	log.Printf("HTTP protocol Listening on %s\n", processListenSpec(g.listenSpec))

	g.server = &http.Server{
		Handler:        h.NewRouter(g.svc, g.collector.Handler(), g.collector),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 16}

	go func() {
		if err := g.server.Serve(g.listener); err != nil && !g.stopped() {
			log.Printf("HTTP server: %v", err)
		}
	}()

	return nil
}
