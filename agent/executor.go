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
	"log"
	"time"

	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/volley"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Prober sends a single probe and returns the round trip time. Any
// error means the probe is lost. seq is the index of the probe in
// its volley.
type Prober interface {
	Probe(ctx context.Context, job *monitor.JobSpec, tos, seq int) (time.Duration, error)
}

// Executor runs the volleys of jobs on a bounded number of workers.
type Executor struct {
	Probers   map[monitor.Protocol]Prober
	Workers   int
	ProbeRate float64 // per volley, 0 is unlimited
}

// Run runs one volley per job. The result at index i belongs to
// jobs[i]. A job that cannot be run at all is skipped and has a nil
// volley.
func (e *Executor) Run(ctx context.Context, jobs []monitor.JobSpec) []volley.Volley {
	results := make([]volley.Volley, len(jobs))

	grp, ctx := errgroup.WithContext(ctx)
	if e.Workers > 0 {
		grp.SetLimit(e.Workers)
	}
	for i := range jobs {
		i := i
		grp.Go(func() error {
			v, err := e.volley(ctx, &jobs[i])
			if err != nil {
				log.Printf("Executor: job %v skipped: %v", jobs[i].ID, err)
				return nil
			}
			results[i] = v
			return nil
		})
	}
	grp.Wait() // tasks never fail

	return results
}

// volley sends PollCount probes one after another. A probe that
// fails or times out is lost, the volley itself only fails if the
// job cannot be probed at all.
func (e *Executor) volley(ctx context.Context, job *monitor.JobSpec) (volley.Volley, error) {
	prober, ok := e.Probers[job.Protocol]
	if !ok {
		return nil, &monitor.ValidationError{What: "protocol", Err: errUnsupported(job.Protocol)}
	}
	tos, err := monitor.TOS(job.DSCP)
	if err != nil {
		return nil, &monitor.ValidationError{What: "dscp", Err: err}
	}
	if job.PollCount < volley.MinSamples || job.PollCount > volley.MaxSamples {
		return nil, &monitor.ValidationError{What: "pollcount", Err: errPollCount(job.PollCount)}
	}

	limit := rate.Inf
	if e.ProbeRate > 0 {
		limit = rate.Limit(e.ProbeRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	v := make(volley.Volley, job.PollCount)
	for n := range v {
		if err := limiter.Wait(ctx); err != nil {
			// cancelled, the rest is lost
			for ; n < len(v); n++ {
				v[n] = volley.Lost
			}
			break
		}
		rtt, err := prober.Probe(ctx, job, tos, n)
		if err != nil {
			v[n] = volley.Lost
			continue
		}
		v[n] = volley.Value(float64(rtt.Microseconds()) / 1000.0)
	}
	return v, nil
}
