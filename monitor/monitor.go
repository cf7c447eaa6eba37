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

// Package monitor has the definitions of agents, targets and
// monitors as well as the jobs handed out to agents.
package monitor

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Protocol string

const (
	ICMP Protocol = "icmp"
	TCP  Protocol = "tcp"
)

const (
	MinPollCount    = 1
	MaxPollCount    = 35
	MinPollInterval = 1
	MaxPollInterval = 3600
)

// ParseProtocol is case-insensitive.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(s)); p {
	case ICMP, TCP:
		return p, nil
	}
	return "", fmt.Errorf("invalid protocol: %q", s)
}

// Agent is a probing agent which pulls jobs.
type Agent struct {
	ID     uuid.UUID
	Name   string
	Active bool
}

// Target is a network address being monitored.
type Target struct {
	ID      uuid.UUID
	Name    string
	Address string
}

// Monitor is a target monitored by an agent.
type Monitor struct {
	ID           uuid.UUID
	AgentID      uuid.UUID
	TargetID     uuid.UUID
	Protocol     Protocol
	Port         int
	DSCP         string
	PollCount    int
	PollInterval int // seconds
	Active       bool
}

// Interval returns the poll interval as a duration.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.PollInterval) * time.Second
}

// Validate checks that the monitor definition is sane.
func (m *Monitor) Validate() error {
	if _, err := ParseProtocol(string(m.Protocol)); err != nil {
		return err
	}
	if m.Port < 0 || m.Port > 65535 {
		return fmt.Errorf("port %d is not in [0, 65535]", m.Port)
	}
	if m.PollCount < MinPollCount || m.PollCount > MaxPollCount {
		return fmt.Errorf("pollcount %d is not in [%d, %d]", m.PollCount, MinPollCount, MaxPollCount)
	}
	if m.PollInterval < MinPollInterval || m.PollInterval > MaxPollInterval {
		return fmt.Errorf("pollinterval %d is not in [%d, %d]", m.PollInterval, MinPollInterval, MaxPollInterval)
	}
	if _, err := TOS(m.DSCP); err != nil {
		return err
	}
	return nil
}

// Due tells whether a volley should be sent at now given the time of
// the last accepted volley.
func (m *Monitor) Due(lastUpdate, now time.Time) bool {
	return lastUpdate.IsZero() || now.Sub(lastUpdate) >= m.Interval()
}

// JobSpec is what an agent needs to run a volley.
type JobSpec struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Protocol  Protocol  `json:"protocol"`
	Port      int       `json:"port"`
	DSCP      string    `json:"dscp"`
	PollCount int       `json:"pollcount"`
}

// NewJobSpec makes a JobSpec for a monitor of a target.
func NewJobSpec(m *Monitor, t *Target) JobSpec {
	return JobSpec{
		ID:        m.ID,
		Address:   t.Address,
		Protocol:  m.Protocol,
		Port:      m.Port,
		DSCP:      m.DSCP,
		PollCount: m.PollCount,
	}
}

// StreamKey is the identity of the time series stream of a monitor
// run by an agent. It should be treated as opaque.
func StreamKey(agentID, monitorID uuid.UUID) string {
	sum := md5.Sum([]byte(agentID.String() + "-" + monitorID.String()))
	return hex.EncodeToString(sum[:])
}

// Channel names of a stream.
const (
	ChannelLoss   = "loss"
	ChannelMedian = "median"
)

// SampleChannel is the name of the channel of the n-th (1-based)
// sample of a volley.
func SampleChannel(n int) string {
	return "sample" + strconv.Itoa(n)
}

// Channels lists all channel names of a stream for pollcount.
func Channels(pollcount int) []string {
	result := make([]string, 0, pollcount+2)
	result = append(result, ChannelLoss, ChannelMedian)
	for i := 1; i <= pollcount; i++ {
		result = append(result, SampleChannel(i))
	}
	return result
}
