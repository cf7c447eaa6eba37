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

// Package http serves the agent job protocol and read access to
// monitor statistics.
package http

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kineticmon/kinetic/health"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/scheduler"
)

// Service is what the handlers need from the scheduler.
type Service interface {
	PullJobs(ctx context.Context, agentID uuid.UUID, now time.Time) ([]monitor.JobSpec, error)
	SubmitResults(ctx context.Context, agentID uuid.UUID, subs []scheduler.Submission, now time.Time) error
	TouchAgent(ctx context.Context, agentID uuid.UUID, addr string, now time.Time)
	ClearStats(ctx context.Context, monitorID uuid.UUID, now time.Time) error
	DeleteMonitor(ctx context.Context, monitorID uuid.UUID) error
	Stats(ctx context.Context, monitorID uuid.UUID) (*scheduler.Stats, error)
	Series(ctx context.Context, monitorID uuid.UUID, channel string, cf rrd.Consolidation, from, until time.Time) ([]rrd.Point, error)
	DownReport(ctx context.Context, now time.Time) (*health.DownReport, error)
}

// Recorder counts requests.
type Recorder interface {
	HTTPRequest(handler string, code int)
}

// Stubbable clock.
var now = time.Now

// Largest accepted request body.
const maxBodySize = 1 << 20

// NewRouter returns the handler of all endpoints. The metrics handler
// and the recorder may be nil.
func NewRouter(svc Service, metrics http.Handler, rec Recorder) *mux.Router {
	r := mux.NewRouter()
	handle := func(path, name string, fn http.HandlerFunc, methods ...string) {
		r.HandleFunc(path, counted(rec, name, fn)).Methods(methods...)
	}

	handle("/agent/{agentID}", "agent_get", AgentPullHandler(svc), http.MethodGet)
	handle("/agent/{agentID}", "agent_put", AgentSubmitHandler(svc), http.MethodPut)
	handle("/monitor/{monitorID}/stats", "monitor_stats", MonitorStatsHandler(svc), http.MethodGet)
	handle("/monitor/{monitorID}", "monitor_clear", MonitorClearHandler(svc), http.MethodPatch)
	handle("/monitor/{monitorID}", "monitor_delete", MonitorDeleteHandler(svc), http.MethodDelete)
	handle("/monitor/{monitorID}/series/{channel}", "monitor_series", makeGzipHandler(MonitorSeriesHandler(svc)), http.MethodGet)
	handle("/down", "down", DownHandler(svc), http.MethodGet)
	r.HandleFunc("/ping", PingHandler).Methods(http.MethodGet, http.MethodHead)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return r
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "OK\n")
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func counted(rec Recorder, name string, fn http.HandlerFunc) http.HandlerFunc {
	if rec == nil {
		return fn
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		rec.HTTPRequest(name, sw.status)
	}
}

// pathID parses a UUID path variable.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, &monitor.ValidationError{What: name, Err: err}
	}
	return id, nil
}

// statusOf maps errors to HTTP status codes.
func statusOf(err error) int {
	var (
		ve *monitor.ValidationError
		nf *monitor.NotFoundError
		se *monitor.StorageError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &se):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON(): %v", err)
	}
}

func writeError(w http.ResponseWriter, handler string, err error) {
	status := statusOf(err)
	if status >= 500 {
		log.Printf("%s: %v", handler, err)
	}
	writeJSON(w, status, statusResponse{Status: "error", Error: err.Error()})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Gzip Compression
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func makeGzipHandler(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fn(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		gzr := gzipResponseWriter{Writer: gz, ResponseWriter: w}
		fn(gzr, r)
	}
}
