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

// Package source ties the protocol stack together into a chain ingestion
// source: it connects to a node (with retry), performs the handshake,
// resolves the intersection point, and streams confirmed chain events into
// a bounded channel for the downstream pipeline
package source

import (
	"io"
	"log/slog"
	"sync"

	chaintail "github.com/cardanoware/chaintail"
	"github.com/cardanoware/chaintail/block"
	"github.com/cardanoware/chaintail/protocol/chainsync"
	"github.com/cardanoware/chaintail/protocol/common"
)

// Source is a running chain ingestion source. Confirmed events are read
// from Events(); Done() closes when the source terminates, after which Err()
// reports the fatal error, if any
type Source struct {
	config    Config
	logger    *slog.Logger
	conn      *chaintail.Connection
	buffer    *rollbackBuffer
	metrics   *sourceMetrics
	eventChan chan ChainEvent
	doneChan  chan struct{}
	stopChan  chan struct{}
	onceStop  sync.Once
	err       error
}

// Bootstrap connects to the node, performs the handshake, resolves the
// intersection, and starts the chain-sync worker. Any failure before the
// worker starts is returned synchronously
func Bootstrap(cfg Config) (*Source, error) {
	cfg = cfg.normalize()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	intersectPoints, err := resolveIntersect(&cfg)
	if err != nil {
		return nil, err
	}
	s := &Source{
		config:    cfg,
		logger:    logger,
		buffer:    newRollbackBuffer(cfg.MinDepth),
		metrics:   newSourceMetrics(),
		eventChan: make(chan ChainEvent, cfg.EventBufferSize),
		doneChan:  make(chan struct{}),
		stopChan:  make(chan struct{}),
	}
	netConn, err := connectWithRetry(
		cfg.Address,
		cfg.RetryPolicy,
		logger,
		s.metrics,
	)
	if err != nil {
		return nil, err
	}
	conn, err := chaintail.NewConnection(
		chaintail.WithConnection(netConn),
		chaintail.WithNetworkMagic(cfg.Magic),
		chaintail.WithLogger(logger),
		chaintail.WithChainSyncConfig(chainsync.NewConfig(
			chainsync.WithRollForwardFunc(s.handleRollForward),
			chainsync.WithRollBackwardFunc(s.handleRollBackward),
		)),
	)
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}
	s.conn = conn
	logger.Info(
		"starting chain sync",
		"component", "source",
		"address", cfg.Address,
		"intersectPoints", len(intersectPoints),
		"minDepth", cfg.MinDepth,
	)
	if err := conn.ChainSync().Client.Sync(intersectPoints); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go s.supervise()
	return s, nil
}

// Events returns the channel of confirmed chain events. The channel is
// bounded; a slow consumer stalls the chain-sync agent, which is the
// intended backpressure behavior
func (s *Source) Events() <-chan ChainEvent {
	return s.eventChan
}

// Done returns a channel that is closed when the source terminates
func (s *Source) Done() <-chan struct{} {
	return s.doneChan
}

// Err returns the fatal error that terminated the source, or nil after an
// external Stop. Only valid after Done() is closed
func (s *Source) Err() error {
	select {
	case <-s.doneChan:
		return s.err
	default:
		return nil
	}
}

// Stats returns a snapshot of the source counters
func (s *Source) Stats() Stats {
	return s.metrics.snapshot()
}

// Stop shuts the source down. The node connection is closed and Done() is
// closed once the worker has wound down
func (s *Source) Stop() error {
	var err error
	s.onceStop.Do(func() {
		close(s.stopChan)
		err = s.conn.Close()
	})
	return err
}

// supervise is the completion signal for the worker: it waits for an
// external stop or a fatal connection error and records the outcome before
// closing Done()
func (s *Source) supervise() {
	select {
	case <-s.stopChan:
	case err := <-s.conn.ErrorChan():
		if err != nil {
			s.err = err
			s.logger.Error(
				"source terminated",
				"component", "source",
				"error", err,
			)
		}
	}
	_ = s.conn.Close()
	close(s.doneChan)
}

func (s *Source) handleRollForward(
	blockType uint,
	blockCbor []byte,
	tip common.Tip,
) error {
	point, err := block.Point(blockType, blockCbor)
	if err != nil {
		return err
	}
	s.metrics.recordBlock(point.Slot)
	released, err := s.buffer.rollForward(bufferEntry{
		point:     point,
		tip:       tip,
		blockType: blockType,
		blockCbor: blockCbor,
	})
	if err != nil {
		return err
	}
	for _, entry := range released {
		event := NewRollForwardEvent(
			entry.blockType,
			entry.blockCbor,
			entry.point,
			entry.tip,
		)
		if err := s.emit(event); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) handleRollBackward(point common.Point, tip common.Tip) error {
	s.metrics.recordRollback()
	if s.buffer.rollBackward(point) {
		return s.emit(NewRollBackwardEvent(point, tip))
	}
	s.logger.Debug(
		"rollback absorbed by confirmation buffer",
		"component", "source",
		"slot", point.Slot,
	)
	return nil
}

func (s *Source) emit(event ChainEvent) error {
	select {
	case <-s.stopChan:
		return chainsync.ErrStopSyncProcess
	case s.eventChan <- event:
		s.metrics.recordEmit()
		return nil
	}
}
