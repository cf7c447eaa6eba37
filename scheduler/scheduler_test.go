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
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/serde"
	"github.com/kineticmon/kinetic/stats"
	"github.com/kineticmon/kinetic/volley"
)

// fakeSerde is the memory serde which can be made to fail saves,
// either all of them or only the failOn-th one.
type fakeSerde struct {
	serde.SerDe
	mu          sync.Mutex
	failSave    bool
	failOn      int
	saveCalled  int
	saving      map[uuid.UUID]bool
	overlapping bool
}

func (f *fakeSerde) SaveVolley(ctx context.Context, monitorID uuid.UUID, key string, st *stats.State, s *rrd.Stream, c *rrd.Change, replace bool) error {
	f.mu.Lock()
	f.saveCalled++
	fail := f.failSave || f.saveCalled == f.failOn
	if f.saving == nil {
		f.saving = make(map[uuid.UUID]bool)
	}
	if f.saving[monitorID] {
		f.overlapping = true
	}
	f.saving[monitorID] = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.saving, monitorID)
		f.mu.Unlock()
	}()
	if fail {
		return fmt.Errorf("connection refused")
	}
	time.Sleep(time.Millisecond)
	return f.SerDe.SaveVolley(ctx, monitorID, key, st, s, c, replace)
}

type fakeObserver struct {
	nopObserver
	mu       sync.Mutex
	stale    int
	accepted int
	notified int
}

func (o *fakeObserver) StaleWrite() {
	o.mu.Lock()
	o.stale++
	o.mu.Unlock()
}

func (o *fakeObserver) VolleyAccepted(time.Duration) {
	o.mu.Lock()
	o.accepted++
	o.mu.Unlock()
}

func (o *fakeObserver) DownNotified(int) {
	o.mu.Lock()
	o.notified++
	o.mu.Unlock()
}

type fixture struct {
	db    *fakeSerde
	obs   *fakeObserver
	s     *Scheduler
	agent monitor.Agent
	mon   monitor.Monitor
}

// Minute aligned
var base = time.Unix(6000, 0)

func setup(t *testing.T, pollcount, interval int) *fixture {
	mem := serde.NewMemSerDe()
	a := monitor.Agent{ID: uuid.New(), Name: "agent1", Active: true}
	tg := monitor.Target{ID: uuid.New(), Name: "gw", Address: "192.0.2.1"}
	m := monitor.Monitor{
		ID:           uuid.New(),
		AgentID:      a.ID,
		TargetID:     tg.ID,
		Protocol:     monitor.ICMP,
		PollCount:    pollcount,
		PollInterval: interval,
		Active:       true,
	}
	mem.AddAgent(a)
	mem.AddTarget(tg)
	if err := mem.AddMonitor(m); err != nil {
		t.Fatal(err)
	}
	db := &fakeSerde{SerDe: mem}
	obs := &fakeObserver{}
	s := New(db, Config{
		Archives:       []rrd.RRASpec{{Function: rrd.AVERAGE, Steps: 1, Size: 10}},
		CacheSize:      16,
		SubmitTimeout:  time.Second,
		NotifyInterval: time.Hour,
		Observer:       obs,
	})
	return &fixture{db: db, obs: obs, s: s, agent: a, mon: m}
}

// addMonitor adds another monitor of the fixture agent.
func (f *fixture) addMonitor(t *testing.T) monitor.Monitor {
	m := f.mon
	m.ID = uuid.New()
	if err := f.db.SerDe.(interface{ AddMonitor(monitor.Monitor) error }).AddMonitor(m); err != nil {
		t.Fatal(err)
	}
	return m
}

func ms(fs ...float64) volley.Volley {
	v := make(volley.Volley, len(fs))
	for i, f := range fs {
		if math.IsNaN(f) {
			v[i] = volley.Lost
		} else {
			v[i] = volley.Value(f)
		}
	}
	return v
}

var U = math.NaN()

func TestPullJobs_Due(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()

	jobs, err := f.s.PullJobs(ctx, f.agent.ID, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != f.mon.ID || jobs[0].Address != "192.0.2.1" || jobs[0].PollCount != 3 {
		t.Fatalf("never updated monitor should be due: %+v", jobs)
	}

	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base); err != nil {
		t.Fatal(err)
	}

	jobs, _ = f.s.PullJobs(ctx, f.agent.ID, base.Add(30*time.Second))
	if jobs == nil || len(jobs) != 0 {
		t.Errorf("expected empty non-nil list 30s later, got %v", jobs)
	}
	jobs, _ = f.s.PullJobs(ctx, f.agent.ID, base.Add(60*time.Second))
	if len(jobs) != 1 {
		t.Errorf("expected monitor due after interval, got %v", jobs)
	}
}

func TestPullJobs_UnknownAgent(t *testing.T) {
	f := setup(t, 3, 60)
	_, err := f.s.PullJobs(context.Background(), uuid.New(), base)
	var nf *monitor.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "agent" {
		t.Errorf("expected agent NotFoundError, got %v", err)
	}
}

func TestPullJobs_InactiveMonitor(t *testing.T) {
	f := setup(t, 3, 60)
	mem := f.db.SerDe.(interface{ AddMonitor(monitor.Monitor) error })
	m := f.mon
	m.Active = false
	if err := mem.AddMonitor(m); err != nil {
		t.Fatal(err)
	}
	jobs, err := f.s.PullJobs(context.Background(), f.agent.ID, base)
	if err != nil || len(jobs) != 0 {
		t.Errorf("inactive monitor should not be due: %v %v", jobs, err)
	}
	err = f.s.SubmitResult(context.Background(), f.agent.ID, f.mon.ID, ms(1, 2, 3), base)
	var nf *monitor.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("submit for inactive monitor: expected NotFoundError, got %v", err)
	}
}

func TestSubmit_ValidationBeforeMutation(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()

	for _, v := range []volley.Volley{
		ms(1, -2, 3),          // negative
		ms(1, 2),              // not pollcount
		ms(1, math.Inf(1), 3), // infinite
		{},                    // empty
	} {
		err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, v, base)
		var ve *monitor.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%v: expected ValidationError, got %v", v, err)
		}
	}

	// A bad entry fails the whole batch, the good one is not applied
	err := f.s.SubmitResults(ctx, f.agent.ID, []Submission{
		{MonitorID: f.mon.ID, Results: ms(1, 2, 3)},
		{MonitorID: uuid.New(), Results: ms(1, 2, 3)},
	}, base)
	var nf *monitor.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	if f.db.saveCalled != 0 {
		t.Errorf("nothing should have been saved, SaveVolley called %d times", f.db.saveCalled)
	}
	st, _ := f.s.Stats(ctx, f.mon.ID)
	if st.Stats.Sample != 0 {
		t.Errorf("state changed: %+v", st.Stats)
	}
}

func TestSubmit_OtherAgent(t *testing.T) {
	f := setup(t, 3, 60)
	other := monitor.Agent{ID: uuid.New(), Name: "agent2", Active: true}
	f.db.SerDe.(interface{ AddAgent(monitor.Agent) }).AddAgent(other)

	err := f.s.SubmitResult(context.Background(), other.ID, f.mon.ID, ms(1, 2, 3), base)
	var nf *monitor.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "monitor" {
		t.Errorf("expected monitor NotFoundError, got %v", err)
	}
}

func TestSubmit_StorageFailure(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()

	f.db.failSave = true
	err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base)
	var se *monitor.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}

	st, _ := f.s.Stats(ctx, f.mon.ID)
	if st.Stats.Sample != 0 || st.Stats.LastUpdate != nil {
		t.Errorf("state changed after storage failure: %+v", st.Stats)
	}
	// Still due
	if jobs, _ := f.s.PullJobs(ctx, f.agent.ID, base); len(jobs) != 1 {
		t.Errorf("job should still be due after storage failure")
	}

	// The retry is not a stale write
	f.db.failSave = false
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base); err != nil {
		t.Fatal(err)
	}
	if f.obs.stale != 0 {
		t.Errorf("retry after failure was stale")
	}
	points, err := f.s.Series(ctx, f.mon.ID, monitor.ChannelMedian, rrd.AVERAGE, base, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 || points[0].Value != 2 {
		t.Errorf("expected median 2 archived once, got %v", points)
	}
}

func TestSubmit_Stale(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()

	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base); err != nil {
		t.Fatal(err)
	}
	// Same step, nothing is applied.
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(4, 5, 6), base.Add(10*time.Second)); err != nil {
		t.Fatalf("stale write should not fail the submission: %v", err)
	}
	if f.obs.stale != 1 {
		t.Errorf("expected 1 stale write, got %d", f.obs.stale)
	}
	st, _ := f.s.Stats(ctx, f.mon.ID)
	if st.Stats.Sample != 1 || st.Stats.CurrentMedian != 2 || st.Stats.AvgMedian != 2 {
		t.Errorf("stale volley changed the stats: %+v", st.Stats)
	}
	points, _ := f.s.Series(ctx, f.mon.ID, monitor.ChannelMedian, rrd.AVERAGE, base, base)
	if len(points) != 1 || points[0].Value != 2 {
		t.Errorf("archive should keep the first value: %v", points)
	}

	// Earlier step
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(7, 8, 9), base.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if st, _ := f.s.Stats(ctx, f.mon.ID); st.Stats.Sample != 1 {
		t.Errorf("earlier volley applied: %+v", st.Stats)
	}
}

func TestSubmit_BatchResent(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()
	mon2 := f.addMonitor(t)
	batch := []Submission{
		{MonitorID: f.mon.ID, Results: ms(1, 2, 3)},
		{MonitorID: mon2.ID, Results: ms(U, U, U)},
	}

	f.db.failOn = 2
	err := f.s.SubmitResults(ctx, f.agent.ID, batch, base)
	var se *monitor.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}

	// The agent sends the whole batch again
	if err := f.s.SubmitResults(ctx, f.agent.ID, batch, base.Add(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	st, _ := f.s.Stats(ctx, f.mon.ID)
	if st.Stats.Sample != 1 || st.Stats.AvgMedian != 2 {
		t.Errorf("first monitor applied twice: %+v", st.Stats)
	}
	st, _ = f.s.Stats(ctx, mon2.ID)
	if st.Stats.Sample != 1 || st.Stats.TotalDown != 60 {
		t.Errorf("second monitor not applied once: %+v", st.Stats)
	}
	if f.obs.stale != 1 {
		t.Errorf("expected 1 stale write, got %d", f.obs.stale)
	}
}

func TestSubmit_DuplicateInBatch(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()

	err := f.s.SubmitResults(ctx, f.agent.ID, []Submission{
		{MonitorID: f.mon.ID, Results: ms(1, 2, 3)},
		{MonitorID: f.mon.ID, Results: ms(4, 5, 6)},
	}, base)
	var ve *monitor.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if f.db.saveCalled != 0 {
		t.Errorf("nothing should have been saved, SaveVolley called %d times", f.db.saveCalled)
	}
	if st, _ := f.s.Stats(ctx, f.mon.ID); st.Stats.Sample != 0 {
		t.Errorf("state changed: %+v", st.Stats)
	}
}

func TestSubmit_Timeout(t *testing.T) {
	f := setup(t, 3, 60)
	ctx, cancel := context.WithDeadline(context.Background(), base)
	defer cancel()

	err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base)
	var se *monitor.StorageError
	if !errors.As(err, &se) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected StorageError wrapping DeadlineExceeded, got %v", err)
	}

	bg := context.Background()
	st, _ := f.s.Stats(bg, f.mon.ID)
	if st.Stats.Sample != 0 || st.Stats.LastUpdate != nil {
		t.Errorf("state changed after timeout: %+v", st.Stats)
	}
	if jobs, _ := f.s.PullJobs(bg, f.agent.ID, base); len(jobs) != 1 {
		t.Errorf("job should still be due after timeout")
	}
	if f.s.locks.Len() != 0 {
		t.Errorf("lock not released: %d", f.s.locks.Len())
	}
}

func TestSubmit_Scenario(t *testing.T) {
	f := setup(t, 5, 60)
	ctx := context.Background()

	volleys := []volley.Volley{
		ms(10, 12, 11, 13, 14),
		ms(U, U, U, U, U),
		ms(U, U, U, U, U),
		ms(20, 22, U, 21, 23),
	}
	for i, v := range volleys {
		if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, v, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	st, err := f.s.Stats(ctx, f.mon.ID)
	if err != nil {
		t.Fatal(err)
	}
	v := st.Stats
	if v.Sample != 4 || v.CurrentLoss != 1 || v.PrevLoss != 5 {
		t.Errorf("unexpected counts: %+v", v)
	}
	if v.TotalDown != 120 {
		t.Errorf("TotalDown: expected 120, got %d", v.TotalDown)
	}
	if v.LastDown == nil || !v.LastDown.Equal(base.Add(3*time.Minute)) {
		t.Errorf("LastDown should be the up edge: %v", v.LastDown)
	}
	if v.AvgLoss != 2.75 {
		t.Errorf("AvgLoss: expected 2.75, got %v", v.AvgLoss)
	}

	// Fully lost volleys have no median
	points, _ := f.s.Series(ctx, f.mon.ID, monitor.ChannelMedian, rrd.AVERAGE, base, base.Add(4*time.Minute))
	if len(points) != 4 || points[0].Value != 12 || !math.IsNaN(points[1].Value) || points[3].Value != 22 {
		t.Errorf("median series: %v", points)
	}
	points, _ = f.s.Series(ctx, f.mon.ID, monitor.ChannelLoss, rrd.AVERAGE, base, base.Add(4*time.Minute))
	if len(points) != 4 || points[1].Value != 5 || points[3].Value != 1 {
		t.Errorf("loss series: %v", points)
	}
	points, _ = f.s.Series(ctx, f.mon.ID, monitor.SampleChannel(3), rrd.AVERAGE, base.Add(3*time.Minute), base.Add(4*time.Minute))
	if len(points) != 1 || !math.IsNaN(points[0].Value) {
		t.Errorf("lost sample should be unknown: %v", points)
	}
}

func TestSubmit_Serialized(t *testing.T) {
	f := setup(t, 1, 1)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(float64(i)), base.Add(time.Duration(i)*time.Second)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if f.db.overlapping {
		t.Errorf("saves of the same monitor overlapped")
	}
	// Volleys that arrive after a later one are not applied
	st, _ := f.s.Stats(ctx, f.mon.ID)
	if st.Stats.Sample+int64(f.obs.stale) != n || st.Stats.Sample == 0 {
		t.Errorf("expected %d volleys accepted or stale, got %d and %d", n, st.Stats.Sample, f.obs.stale)
	}
	if f.s.locks.Len() != 0 {
		t.Errorf("locks not released: %d", f.s.locks.Len())
	}
}

func TestSubmit_PollCountChange(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base); err != nil {
		t.Fatal(err)
	}

	m := f.mon
	m.PollCount = 5
	if err := f.db.SerDe.(interface{ AddMonitor(monitor.Monitor) error }).AddMonitor(m); err != nil {
		t.Fatal(err)
	}

	// A failed save keeps the old stream
	f.db.failSave = true
	err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3, 4, 5), base.Add(time.Minute))
	var se *monitor.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	key := monitor.StreamKey(f.agent.ID, f.mon.ID)
	old, _ := f.db.FetchStream(ctx, key)
	if old == nil || len(old.Channels()) != len(monitor.Channels(3)) {
		t.Fatalf("old stream lost after a failed save: %v", old)
	}
	points, err := f.s.Series(ctx, f.mon.ID, monitor.ChannelMedian, rrd.AVERAGE, base, base)
	if err != nil || len(points) != 1 || points[0].Value != 2 {
		t.Errorf("old series should be readable: %v %v", points, err)
	}

	f.db.failSave = false
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3, 4, 5), base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.s.Series(ctx, f.mon.ID, monitor.SampleChannel(5), rrd.AVERAGE, base, base.Add(2*time.Minute)); err != nil {
		t.Errorf("new stream should have 5 sample channels: %v", err)
	}
	if s, _ := f.db.FetchStream(ctx, key); s == nil || len(s.Channels()) != len(monitor.Channels(5)) {
		t.Errorf("stored stream not replaced: %v", s)
	}
}

func TestClearStats(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base); err != nil {
		t.Fatal(err)
	}
	now := base.Add(time.Hour)
	if err := f.s.ClearStats(ctx, f.mon.ID, now); err != nil {
		t.Fatal(err)
	}
	st, _ := f.s.Stats(ctx, f.mon.ID)
	if st.Stats.Sample != 0 || st.Stats.AvgMedian != 0 || st.Stats.CurrentMedian != 2 {
		t.Errorf("unexpected stats after clear: %+v", st.Stats)
	}
	if st.Stats.LastClear == nil || !st.Stats.LastClear.Equal(now) {
		t.Errorf("LastClear not set: %v", st.Stats.LastClear)
	}

	err := f.s.ClearStats(ctx, uuid.New(), now)
	var nf *monitor.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestDeleteMonitor(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base); err != nil {
		t.Fatal(err)
	}
	if err := f.s.DeleteMonitor(ctx, f.mon.ID); err != nil {
		t.Fatal(err)
	}
	_, err := f.s.Series(ctx, f.mon.ID, monitor.ChannelLoss, rrd.AVERAGE, base, base)
	var nf *monitor.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("stream should be gone, got %v", err)
	}
	st, _ := f.s.Stats(ctx, f.mon.ID)
	if st.Stats.Sample != 0 {
		t.Errorf("state should be gone: %+v", st.Stats)
	}
	// Due again
	if jobs, _ := f.s.PullJobs(ctx, f.agent.ID, base); len(jobs) != 1 {
		t.Errorf("monitor without state should be due")
	}
}

func TestSeries_Errors(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()
	if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(1, 2, 3), base); err != nil {
		t.Fatal(err)
	}
	_, err := f.s.Series(ctx, f.mon.ID, monitor.ChannelLoss, rrd.AVERAGE, base.Add(time.Minute), base)
	var ve *monitor.ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, rrd.ErrInvalidRange) {
		t.Errorf("expected ValidationError wrapping ErrInvalidRange, got %v", err)
	}
	_, err = f.s.Series(ctx, f.mon.ID, "bogus", rrd.AVERAGE, base, base)
	var nf *monitor.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError for unknown channel, got %v", err)
	}
}

func TestDownReport(t *testing.T) {
	f := setup(t, 3, 60)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.s.SubmitResult(ctx, f.agent.ID, f.mon.ID, ms(U, U, U), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	now := base.Add(3 * time.Hour)
	r, err := f.s.DownReport(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Monitors) != 1 || r.Monitors[0].Agent != "agent1" || r.Monitors[0].Address != "192.0.2.1" {
		t.Fatalf("unexpected report: %+v", r)
	}

	if ok, _ := f.s.NotifyDown(ctx, now); !ok {
		t.Errorf("first report should notify")
	}
	if ok, _ := f.s.NotifyDown(ctx, now.Add(2*time.Hour)); ok {
		t.Errorf("unchanged report should not notify")
	}
	if f.obs.notified != 1 {
		t.Errorf("expected 1 notification, got %d", f.obs.notified)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := k.Lock(a)
	done := make(chan struct{})
	go func() {
		// Another key is not blocked
		unlock := k.Lock(b)
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock of another key blocked")
	}
	unlockA()
	if k.Len() != 0 {
		t.Errorf("expected no locks, got %d", k.Len())
	}
}
