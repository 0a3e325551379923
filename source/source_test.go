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
	"io"
	"log/slog"
	"testing"

	"github.com/cardanoware/chaintail/block"
	"github.com/cardanoware/chaintail/cbor"
	"github.com/cardanoware/chaintail/protocol/chainsync"
	"github.com/cardanoware/chaintail/protocol/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSource builds a source without a connection, suitable for driving
// the chain-sync callbacks directly
func newTestSource(minDepth uint, eventBufferSize int) *Source {
	return &Source{
		config:    Config{MinDepth: minDepth},
		logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		buffer:    newRollbackBuffer(minDepth),
		metrics:   newSourceMetrics(),
		eventChan: make(chan ChainEvent, eventBufferSize),
		doneChan:  make(chan struct{}),
		stopChan:  make(chan struct{}),
	}
}

// shelleyBlockAtSlot builds a minimal Shelley-shaped block for a given slot
func shelleyBlockAtSlot(t *testing.T, slot uint64) []byte {
	t.Helper()
	headerCbor, err := cbor.Encode(
		[]any{
			[]any{uint64(1), slot, []byte{0xaa}},
			[]byte{0xcc},
		},
	)
	require.NoError(t, err)
	blockCbor, err := cbor.Encode(
		[]any{cbor.RawMessage(headerCbor), []any{}, []any{}},
	)
	require.NoError(t, err)
	return blockCbor
}

func testTipAtSlot(slot uint64) common.Tip {
	return common.Tip{
		Point:       common.NewPoint(slot, []byte{byte(slot)}),
		BlockNumber: slot,
	}
}

func TestSourceRollForwardConfirmation(t *testing.T) {
	s := newTestSource(2, 10)
	// The first two blocks are held back for confirmation
	for slot := uint64(1); slot <= 2; slot++ {
		err := s.handleRollForward(
			block.BlockTypeConway,
			shelleyBlockAtSlot(t, slot),
			testTipAtSlot(slot),
		)
		require.NoError(t, err)
	}
	assert.Empty(t, s.eventChan)
	// The third block confirms the first
	err := s.handleRollForward(
		block.BlockTypeConway,
		shelleyBlockAtSlot(t, 3),
		testTipAtSlot(3),
	)
	require.NoError(t, err)
	require.Len(t, s.eventChan, 1)
	event := <-s.eventChan
	assert.Equal(t, ChainEventTypeRollForward, event.Type)
	assert.Equal(t, uint64(1), event.Point.Slot)
	assert.Equal(t, block.BlockTypeConway, event.BlockType)
	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.BlocksReceived)
	assert.Equal(t, uint64(1), stats.EventsEmitted)
	assert.Equal(t, uint64(3), stats.LastSlot)
}

func TestSourceZeroMinDepthEmitsImmediately(t *testing.T) {
	s := newTestSource(0, 10)
	err := s.handleRollForward(
		block.BlockTypeConway,
		shelleyBlockAtSlot(t, 7),
		testTipAtSlot(7),
	)
	require.NoError(t, err)
	require.Len(t, s.eventChan, 1)
	event := <-s.eventChan
	assert.Equal(t, uint64(7), event.Point.Slot)
}

func TestSourceRollBackwardAbsorbed(t *testing.T) {
	s := newTestSource(3, 10)
	for slot := uint64(1); slot <= 3; slot++ {
		err := s.handleRollForward(
			block.BlockTypeConway,
			shelleyBlockAtSlot(t, slot),
			testTipAtSlot(slot),
		)
		require.NoError(t, err)
	}
	// Rollback within the unconfirmed window is invisible downstream
	err := s.handleRollBackward(
		common.NewPoint(1, blockPointHash(t, 1)),
		testTipAtSlot(1),
	)
	require.NoError(t, err)
	assert.Empty(t, s.eventChan)
	assert.Equal(t, uint64(1), s.Stats().Rollbacks)
}

func TestSourceRollBackwardSurfaced(t *testing.T) {
	s := newTestSource(1, 10)
	for slot := uint64(1); slot <= 3; slot++ {
		err := s.handleRollForward(
			block.BlockTypeConway,
			shelleyBlockAtSlot(t, slot),
			testTipAtSlot(slot),
		)
		require.NoError(t, err)
	}
	// Slots 1 and 2 were emitted; rolling back to origin retracts them
	require.Len(t, s.eventChan, 2)
	err := s.handleRollBackward(common.NewPointOrigin(), testTipAtSlot(0))
	require.NoError(t, err)
	require.Len(t, s.eventChan, 3)
	<-s.eventChan
	<-s.eventChan
	event := <-s.eventChan
	assert.Equal(t, ChainEventTypeRollBackward, event.Type)
	assert.True(t, event.Point.Origin())
}

func TestSourceMalformedBlockIsFatal(t *testing.T) {
	s := newTestSource(0, 10)
	err := s.handleRollForward(
		block.BlockTypeConway,
		[]byte{0xff},
		testTipAtSlot(1),
	)
	assert.ErrorIs(t, err, block.ErrMalformedBlock)
}

func TestSourceEmitAfterStopAborts(t *testing.T) {
	// A full event channel plus a closed stop channel must abort the sync
	// callback instead of blocking forever
	s := newTestSource(0, 1)
	require.NoError(t, s.handleRollForward(
		block.BlockTypeConway,
		shelleyBlockAtSlot(t, 1),
		testTipAtSlot(1),
	))
	close(s.stopChan)
	err := s.handleRollForward(
		block.BlockTypeConway,
		shelleyBlockAtSlot(t, 2),
		testTipAtSlot(2),
	)
	assert.ErrorIs(t, err, chainsync.ErrStopSyncProcess)
}

func TestSourceErrBeforeDone(t *testing.T) {
	s := newTestSource(0, 1)
	s.err = assert.AnError
	// Err is gated on Done()
	assert.NoError(t, s.Err())
	close(s.doneChan)
	assert.ErrorIs(t, s.Err(), assert.AnError)
}

func TestConfigNormalizeDefaults(t *testing.T) {
	cfg := Config{Address: "node.socket"}.normalize()
	assert.Equal(t, uint32(764824073), cfg.Magic)
	assert.Equal(t, defaultEventBufferSize, cfg.EventBufferSize)
	// Explicit values are preserved
	cfg = Config{Magic: 2, EventBufferSize: 5}.normalize()
	assert.Equal(t, uint32(2), cfg.Magic)
	assert.Equal(t, 5, cfg.EventBufferSize)
}

// blockPointHash returns the point hash the source computes for the synthetic
// block at the given slot
func blockPointHash(t *testing.T, slot uint64) []byte {
	t.Helper()
	point, err := block.Point(
		block.BlockTypeConway,
		shelleyBlockAtSlot(t, slot),
	)
	require.NoError(t, err)
	return point.Hash
}
