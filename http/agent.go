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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/scheduler"
	"github.com/kineticmon/kinetic/volley"
)

// AgentPullHandler returns the jobs that are due for the agent.
func AgentPullHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := pathID(r, "agentID")
		if err != nil {
			writeError(w, "AgentPullHandler", err)
			return
		}
		t := now()
		jobs, err := svc.PullJobs(r.Context(), agentID, t)
		if err != nil {
			writeError(w, "AgentPullHandler", err)
			return
		}
		svc.TouchAgent(r.Context(), agentID, remoteHost(r), t)
		writeJSON(w, http.StatusOK, jobs)
	}
}

// Result is one entry of a submission.
type Result struct {
	ID      uuid.UUID     `json:"id"`
	Results volley.Volley `json:"results"`
}

// AgentSubmitHandler accepts the results of the jobs of an agent.
// Either all of them are accepted or none is.
func AgentSubmitHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := pathID(r, "agentID")
		if err != nil {
			writeError(w, "AgentSubmitHandler", err)
			return
		}

		var results []Result
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err := dec.Decode(&results); err != nil {
			writeError(w, "AgentSubmitHandler", &monitor.ValidationError{What: "body", Err: err})
			return
		}

		subs := make([]scheduler.Submission, len(results))
		for i, res := range results {
			if res.ID == uuid.Nil {
				writeError(w, "AgentSubmitHandler", &monitor.ValidationError{
					What: fmt.Sprintf("entry %d", i), Err: fmt.Errorf("missing id")})
				return
			}
			subs[i] = scheduler.Submission{MonitorID: res.ID, Results: res.Results}
		}

		t := now()
		if err := svc.SubmitResults(r.Context(), agentID, subs, t); err != nil {
			writeError(w, "AgentSubmitHandler", err)
			return
		}
		svc.TouchAgent(r.Context(), agentID, remoteHost(r), t)
		writeJSON(w, http.StatusAccepted, statusResponse{Status: "success"})
	}
}
