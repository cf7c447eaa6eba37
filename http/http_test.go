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

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/scheduler"
	"github.com/kineticmon/kinetic/serde"
)

type fixture struct {
	router http.Handler
	sched  *scheduler.Scheduler
	agent  monitor.Agent
	mon    monitor.Monitor
	rec    *fakeRecorder
}

type fakeRecorder struct {
	codes map[string]int
}

func (f *fakeRecorder) HTTPRequest(h string, code int) { f.codes[h] = code }

func setup(t *testing.T) *fixture {
	now = func() time.Time { return time.Unix(6000, 0) }
	t.Cleanup(func() { now = time.Now })

	mem := serde.NewMemSerDe()
	a := monitor.Agent{ID: uuid.New(), Name: "agent1", Active: true}
	tg := monitor.Target{ID: uuid.New(), Name: "gw", Address: "192.0.2.1"}
	m := monitor.Monitor{
		ID:           uuid.New(),
		AgentID:      a.ID,
		TargetID:     tg.ID,
		Protocol:     monitor.TCP,
		Port:         443,
		DSCP:         "ef",
		PollCount:    3,
		PollInterval: 60,
		Active:       true,
	}
	mem.AddAgent(a)
	mem.AddTarget(tg)
	if err := mem.AddMonitor(m); err != nil {
		t.Fatal(err)
	}
	s := scheduler.New(mem, scheduler.Config{
		Archives:  []rrd.RRASpec{{Function: rrd.AVERAGE, Steps: 1, Size: 10}},
		CacheSize: 10,
	})
	rec := &fakeRecorder{codes: make(map[string]int)}
	return &fixture{
		router: NewRouter(s, http.NotFoundHandler(), rec),
		sched:  s,
		agent:  a,
		mon:    m,
		rec:    rec,
	}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAgentPull(t *testing.T) {
	f := setup(t)

	rec := do(f.router, "GET", "/agent/"+f.agent.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var jobs []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %v", jobs)
	}
	job := jobs[0]
	if job["id"] != f.mon.ID.String() || job["address"] != "192.0.2.1" || job["protocol"] != "tcp" ||
		job["port"] != 443.0 || job["dscp"] != "ef" || job["pollcount"] != 3.0 {
		t.Errorf("unexpected job: %v", job)
	}
	if f.rec.codes["agent_get"] != http.StatusOK {
		t.Errorf("request not recorded: %v", f.rec.codes)
	}

	if rec := do(f.router, "GET", "/agent/"+uuid.New().String(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent: expected 404, got %d", rec.Code)
	}
	if rec := do(f.router, "GET", "/agent/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad agent id: expected 400, got %d", rec.Code)
	}
}

func TestAgentSubmit(t *testing.T) {
	f := setup(t)
	path := "/agent/" + f.agent.ID.String()

	body := fmt.Sprintf(`[{"id": %q, "results": [1.5, "U", 3]}]`, f.mon.ID)
	rec := do(f.router, "PUT", path, body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"success"}` {
		t.Errorf("unexpected body: %s", rec.Body)
	}

	// Not due anymore
	rec = do(f.router, "GET", path, "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected [], got %s", rec.Body)
	}

	st, err := f.sched.Stats(context.Background(), f.mon.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Stats.Sample != 1 || st.Stats.CurrentLoss != 1 || st.Stats.CurrentMedian != 3 {
		t.Errorf("unexpected stats: %+v", st.Stats)
	}
}

func TestAgentSubmit_Errors(t *testing.T) {
	f := setup(t)
	path := "/agent/" + f.agent.ID.String()

	for _, c := range []struct {
		body string
		code int
	}{
		{`not json`, http.StatusBadRequest},
		{`[{"id": "%s", "results": [1, "x", 3]}]`, http.StatusBadRequest},
		{`[{"id": "%s", "results": [1, -1, 3]}]`, http.StatusBadRequest},
		{`[{"id": "%s", "results": [1, 2]}]`, http.StatusBadRequest},
		{`[{"id": "%s", "results": []}]`, http.StatusBadRequest},
		{`[{"results": [1, 2, 3]}]`, http.StatusBadRequest},
		{`[{"id": "%s", "results": [1, 2, 3]}, {"id": "` + uuid.New().String() + `", "results": [1, 2, 3]}]`, http.StatusNotFound},
	} {
		body := c.body
		if strings.Contains(body, "%s") {
			body = fmt.Sprintf(body, f.mon.ID)
		}
		rec := do(f.router, "PUT", path, body)
		if rec.Code != c.code {
			t.Errorf("%s: expected %d, got %d: %s", body, c.code, rec.Code, rec.Body)
		}
	}

	// Nothing was applied
	st, _ := f.sched.Stats(context.Background(), f.mon.ID)
	if st.Stats.Sample != 0 {
		t.Errorf("rejected submissions changed state: %+v", st.Stats)
	}

	body := fmt.Sprintf(`[{"id": %q, "results": [1, 2, 3]}]`, f.mon.ID)
	if rec := do(f.router, "PUT", "/agent/"+uuid.New().String(), body); rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent: expected 404, got %d", rec.Code)
	}
}

type failingService struct {
	Service
}

func (failingService) SubmitResults(ctx context.Context, agentID uuid.UUID, subs []scheduler.Submission, now time.Time) error {
	return &monitor.StorageError{Op: "save volley", Err: fmt.Errorf("connection refused")}
}

type timeoutService struct {
	Service
}

func (timeoutService) SubmitResults(ctx context.Context, agentID uuid.UUID, subs []scheduler.Submission, now time.Time) error {
	return fmt.Errorf("submit: %w", context.DeadlineExceeded)
}

func TestAgentSubmit_StorageError(t *testing.T) {
	body := fmt.Sprintf(`[{"id": %q, "results": [1]}]`, uuid.New())
	for _, svc := range []Service{failingService{}, timeoutService{}} {
		router := NewRouter(svc, nil, nil)
		rec := do(router, "PUT", "/agent/"+uuid.New().String(), body)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%T: expected 503, got %d", svc, rec.Code)
		}
	}
}

func TestMonitorEndpoints(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if err := f.sched.SubmitResult(ctx, f.agent.ID, f.mon.ID, nil, now()); err == nil {
		t.Fatal("empty volley should fail")
	}
	body := fmt.Sprintf(`[{"id": %q, "results": [1, 2, 3]}]`, f.mon.ID)
	if rec := do(f.router, "PUT", "/agent/"+f.agent.ID.String(), body); rec.Code != http.StatusAccepted {
		t.Fatalf("submit failed: %d %s", rec.Code, rec.Body)
	}

	mpath := "/monitor/" + f.mon.ID.String()

	rec := do(f.router, "GET", mpath+"/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var st struct {
		Stats struct {
			Sample        int64   `json:"sample"`
			CurrentMedian float64 `json:"current_median"`
		} `json:"stats"`
		Health map[string]string `json:"health"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Stats.Sample != 1 || st.Stats.CurrentMedian != 2 || st.Health["loss"] != "success" {
		t.Errorf("unexpected stats: %s", rec.Body)
	}

	rec = do(f.router, "GET", mpath+"/series/median?from=5940&until=6060", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("series: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[[null, 5940],[2, 6000]]" {
		t.Errorf("unexpected series: %s", got)
	}
	if rec := do(f.router, "GET", mpath+"/series/median?cf=BOGUS", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad cf: expected 400, got %d", rec.Code)
	}
	if rec := do(f.router, "GET", mpath+"/series/median?from=6060&until=5940", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range: expected 400, got %d", rec.Code)
	}
	if rec := do(f.router, "GET", mpath+"/series/nosuch", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown channel: expected 404, got %d", rec.Code)
	}

	if rec := do(f.router, "PATCH", mpath, ""); rec.Code != http.StatusNoContent {
		t.Errorf("clear: expected 204, got %d", rec.Code)
	}
	if rec := do(f.router, "PATCH", "/monitor/"+uuid.New().String(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("clear unknown: expected 404, got %d", rec.Code)
	}
	if rec := do(f.router, "DELETE", mpath, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	if rec := do(f.router, "GET", mpath+"/series/median", ""); rec.Code != http.StatusNotFound {
		t.Errorf("series after delete: expected 404, got %d", rec.Code)
	}
}

func TestDownAndPing(t *testing.T) {
	f := setup(t)

	rec := do(f.router, "GET", "/down", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("down: expected 200, got %d", rec.Code)
	}
	var report struct {
		Monitors []interface{} `json:"monitors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Monitors == nil || len(report.Monitors) != 0 {
		t.Errorf("expected empty monitors list: %s", rec.Body)
	}

	if rec := do(f.router, "GET", "/ping", ""); rec.Code != http.StatusOK || rec.Body.String() != "OK\n" {
		t.Errorf("ping: %d %q", rec.Code, rec.Body)
	}
	if rec := do(f.router, "POST", "/ping", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("ping POST: expected 405, got %d", rec.Code)
	}
}
