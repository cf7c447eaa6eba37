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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/volley"
)

// Result is the volley of one job as it is submitted.
type Result struct {
	ID      uuid.UUID     `json:"id"`
	Results volley.Volley `json:"results"`
}

// Client talks to the server on behalf of one agent.
type Client struct {
	BaseURL    string
	AgentID    uuid.UUID
	HTTPClient *http.Client
}

func NewClient(baseURL string, agentID uuid.UUID, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AgentID:    agentID,
		HTTPClient: httpClient,
	}
}

func (c *Client) url() string {
	return fmt.Sprintf("%s/agent/%s", c.BaseURL, c.AgentID)
}

// Pull returns the jobs that are due.
func (c *Client) Pull(ctx context.Context) ([]monitor.JobSpec, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var jobs []monitor.JobSpec
	if err := c.do(req, http.StatusOK, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Submit sends results. Nothing is applied by the server unless it
// returns nil or a StatusError that is not retryable.
func (c *Client) Submit(ctx context.Context, results []Result) error {
	body, err := json.Marshal(results)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, http.StatusAccepted, nil)
}

func (c *Client) do(req *http.Request, want int, v interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{
			Method: req.Method,
			URL:    req.URL.String(),
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}
	if v == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s %s: decoding response: %v", req.Method, req.URL, err)
	}
	return nil
}
