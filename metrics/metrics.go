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

// Package metrics exposes the internal counters of the server to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kinetic"

// Collector counts what the scheduler and the HTTP service do. It
// has its own registry so that more than one can exist.
type Collector struct {
	registry *prometheus.Registry

	volleysAccepted prometheus.Counter
	volleyDuration  prometheus.Histogram
	staleWrites     prometheus.Counter
	storageErrors   *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	cacheEvictions  prometheus.Counter
	downNotified    prometheus.Counter
	monitorsDown    prometheus.Gauge
	httpRequests    *prometheus.CounterVec

	cpuPercent  prometheus.Gauge
	memAlloc    prometheus.Gauge
	memUsedPerc prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		volleysAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volleys_accepted_total",
			Help:      "Total number of volleys accepted",
		}),
		volleyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "volley_processing_seconds",
			Help:      "Time to process and persist a volley",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		staleWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_writes_total",
			Help:      "Archive writes ignored because they were not after the last one",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failures to load or save state",
		}, []string{"op"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_cache_requests_total",
			Help:      "Stream cache lookups",
		}, []string{"result"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_cache_evictions_total",
			Help:      "Streams evicted from the cache",
		}),
		downNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "down_notifications_total",
			Help:      "Down reports that warranted a notification",
		}),
		monitorsDown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitors_down",
			Help:      "Monitors down as of the last notification",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by handler and status code",
		}, []string{"handler", "code"}),

		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runtime_cpu_percent",
			Help:      "System CPU utilization",
		}),
		memAlloc: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runtime_mem_alloc_bytes",
			Help:      "Bytes of allocated heap objects",
		}),
		memUsedPerc: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runtime_mem_used_percent",
			Help:      "System memory utilization",
		}),
	}

	c.registry.MustRegister(
		c.volleysAccepted, c.volleyDuration, c.staleWrites, c.storageErrors,
		c.cacheRequests, c.cacheEvictions, c.downNotified, c.monitorsDown,
		c.httpRequests, c.cpuPercent, c.memAlloc, c.memUsedPerc,
	)
	return c
}

// Registry returns the registry all collectors are registered with.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) VolleyAccepted(d time.Duration) {
	c.volleysAccepted.Inc()
	c.volleyDuration.Observe(d.Seconds())
}

func (c *Collector) StaleWrite()            { c.staleWrites.Inc() }
func (c *Collector) StorageError(op string) { c.storageErrors.WithLabelValues(op).Inc() }
func (c *Collector) CacheHit()              { c.cacheRequests.WithLabelValues("hit").Inc() }
func (c *Collector) CacheMiss()             { c.cacheRequests.WithLabelValues("miss").Inc() }
func (c *Collector) CacheEviction()         { c.cacheEvictions.Inc() }

// HTTPRequest counts a request served by handler h.
func (c *Collector) HTTPRequest(h string, code int) {
	c.httpRequests.WithLabelValues(h, strconv.Itoa(code)).Inc()
}

func (c *Collector) DownNotified(n int) {
	c.downNotified.Inc()
	c.monitorsDown.Set(float64(n))
}
