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

package scheduler

import (
	"context"
	"log"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/serde"
)

type cachedStream struct {
	monitorID uuid.UUID
	stream    *rrd.Stream
}

// streamCache keeps recently used streams in memory. The serde
// is the source of truth, an evicted stream is simply loaded again.
// Callers must hold the monitor lock for the key they ask for.
type streamCache struct {
	*lru.Cache // nil when caching is disabled
	db         serde.StreamRepo
	specs      []rrd.RRASpec
	obs        Observer
}

func newStreamCache(db serde.StreamRepo, specs []rrd.RRASpec, size int, obs Observer) *streamCache {
	c := &streamCache{db: db, specs: specs, obs: obs}
	// 0 size == disable LRU
	if size > 0 {
		c.Cache, _ = lru.NewWithEvict(size, c.evicted)
	}
	return c
}

func (c *streamCache) evicted(key, _ interface{}) {
	c.obs.CacheEviction()
}

// fetch returns the stream for key, from the cache or the serde, or
// nil if there is none.
func (c *streamCache) fetch(ctx context.Context, monitorID uuid.UUID, key string) (*rrd.Stream, error) {
	if c.Cache != nil {
		if val, ok := c.Get(key); ok {
			c.obs.CacheHit()
			return val.(*cachedStream).stream, nil
		}
	}
	c.obs.CacheMiss()
	s, err := c.db.FetchStream(ctx, key)
	if err != nil || s == nil {
		return nil, err
	}
	c.add(monitorID, key, s)
	return s, nil
}

// fetchOrCreate is like fetch, but makes a new stream if there is
// none or if the existing one does not fit the monitor anymore. A
// new stream is not cached, the caller adds it once it is saved.
// replace is true if the new stream supersedes a stored one.
func (c *streamCache) fetchOrCreate(ctx context.Context, m *monitor.Monitor, key string) (s *rrd.Stream, replace bool, err error) {
	s, err = c.fetch(ctx, m.ID, key)
	if err != nil {
		return nil, false, err
	}
	channels := monitor.Channels(m.PollCount)
	if s != nil && (len(s.Channels()) != len(channels) || s.Step() != m.Interval()) {
		log.Printf("Stream %s of monitor %v no longer matches pollcount %d interval %v, recreating.",
			key, m.ID, m.PollCount, m.Interval())
		s, replace = nil, true
	}
	if s == nil {
		s = rrd.NewStream(&rrd.StreamSpec{
			Step:     m.Interval(),
			Channels: channels,
			RRAs:     c.specs,
		})
	}
	return s, replace, nil
}

func (c *streamCache) add(monitorID uuid.UUID, key string, s *rrd.Stream) {
	if c.Cache != nil {
		c.Add(key, &cachedStream{monitorID: monitorID, stream: s})
	}
}

func (c *streamCache) remove(key string) {
	if c.Cache != nil {
		c.Remove(key)
	}
}

// removeMonitor drops every stream of a monitor.
func (c *streamCache) removeMonitor(monitorID uuid.UUID) {
	if c.Cache == nil {
		return
	}
	for _, key := range c.Keys() {
		if val, ok := c.Peek(key); ok && val.(*cachedStream).monitorID == monitorID {
			c.Remove(key)
		}
	}
}

// streamValues are the values written to a stream for a volley.
func streamValues(v []float64, loss int, median float64, valid bool) map[string]float64 {
	values := make(map[string]float64, len(v)+2)
	values[monitor.ChannelLoss] = float64(loss)
	if valid {
		values[monitor.ChannelMedian] = median
	}
	for i, x := range v {
		values[monitor.SampleChannel(i+1)] = x
	}
	return values
}
