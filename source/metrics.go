// Copyright 2026 Chaintail Authors
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

package source

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of source counters
type Stats struct {
	BlocksReceived  uint64
	EventsEmitted   uint64
	Rollbacks       uint64
	ConnectAttempts uint64
	LastSlot        uint64
	StartTime       time.Time
}

// sourceMetrics tracks source counters. Uses atomic counters for
// thread-safe operation
type sourceMetrics struct {
	blocksReceived  atomic.Uint64
	eventsEmitted   atomic.Uint64
	rollbacks       atomic.Uint64
	connectAttempts atomic.Uint64
	lastSlot        atomic.Uint64
	startTime       time.Time
}

func newSourceMetrics() *sourceMetrics {
	return &sourceMetrics{
		startTime: time.Now(),
	}
}

func (m *sourceMetrics) recordBlock(slot uint64) {
	m.blocksReceived.Add(1)
	m.lastSlot.Store(slot)
}

func (m *sourceMetrics) recordEmit() {
	m.eventsEmitted.Add(1)
}

func (m *sourceMetrics) recordRollback() {
	m.rollbacks.Add(1)
}

func (m *sourceMetrics) recordConnectAttempt() {
	m.connectAttempts.Add(1)
}

// snapshot returns a consistent-enough view of the counters
func (m *sourceMetrics) snapshot() Stats {
	return Stats{
		BlocksReceived:  m.blocksReceived.Load(),
		EventsEmitted:   m.eventsEmitted.Load(),
		Rollbacks:       m.rollbacks.Load(),
		ConnectAttempts: m.connectAttempts.Load(),
		LastSlot:        m.lastSlot.Load(),
		StartTime:       m.startTime,
	}
}
