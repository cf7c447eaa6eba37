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

// Package agent pulls probing jobs from the server, runs them and
// submits the results.
package agent

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kineticmon/kinetic/monitor"
)

// Agent runs the pull, probe and submit cycle.
type Agent struct {
	client   *Client
	executor *Executor
	cfg      Config
	pending  []Result // accepted by nobody yet, sent first next time
}

func New(cfg Config) *Agent {
	return &Agent{
		client: NewClient(cfg.Server, cfg.AgentID, &http.Client{Timeout: cfg.RequestTimeout}),
		executor: &Executor{
			Probers: map[monitor.Protocol]Prober{
				monitor.ICMP: &ICMPProber{Timeout: cfg.ICMPTimeout},
				monitor.TCP:  &TCPProber{Timeout: cfg.TCPTimeout},
			},
			Workers:   cfg.Workers,
			ProbeRate: cfg.ProbeRate,
		},
		cfg: cfg,
	}
}

// Run runs a cycle every poll interval until ctx is done.
func (a *Agent) Run(ctx context.Context) {
	log.Printf("Agent %v polling %s every %v.", a.cfg.AgentID, a.cfg.Server, a.cfg.PollInterval)

	tick := time.NewTicker(a.cfg.PollInterval)
	defer tick.Stop()
	for {
		if err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Agent: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// RunOnce resubmits pending results, then pulls the due jobs, runs
// them and submits their results.
func (a *Agent) RunOnce(ctx context.Context) error {
	if len(a.pending) > 0 {
		if err := a.submit(ctx, a.pending); err != nil {
			return err
		}
		a.pending = nil
	}

	jobs, err := a.client.Pull(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	volleys := a.executor.Run(ctx, jobs)
	results := make([]Result, 0, len(jobs))
	for i, v := range volleys {
		if v != nil {
			results = append(results, Result{ID: jobs[i].ID, Results: v})
		}
	}
	if len(results) == 0 {
		return nil
	}

	if err := a.submit(ctx, results); err != nil {
		a.keep(results)
		return err
	}
	return nil
}

func (a *Agent) submit(ctx context.Context, results []Result) error {
	err := a.client.Submit(ctx, results)
	var serr *StatusError
	if errors.As(err, &serr) && !serr.Retryable() {
		// the server will never take these
		log.Printf("Agent: dropping %d result(s): %v", len(results), err)
		return nil
	}
	return err
}

func (a *Agent) keep(results []Result) {
	a.pending = append(a.pending, results...)
	if over := len(a.pending) - a.cfg.MaxPending; over > 0 {
		log.Printf("Agent: too many pending results, dropping %d oldest.", over)
		a.pending = a.pending[over:]
	}
}
