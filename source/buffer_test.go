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
	"testing"

	"github.com/cardanoware/chaintail/protocol/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAtSlot(slot uint64) bufferEntry {
	return bufferEntry{
		point: common.NewPoint(slot, []byte{byte(slot)}),
	}
}

func mustRollForward(
	t *testing.T,
	b *rollbackBuffer,
	slot uint64,
) []bufferEntry {
	t.Helper()
	released, err := b.rollForward(entryAtSlot(slot))
	require.NoError(t, err)
	return released
}

func TestBufferReleaseAfterConfirmations(t *testing.T) {
	b := newRollbackBuffer(2)
	assert.Empty(t, mustRollForward(t, b, 1))
	assert.Empty(t, mustRollForward(t, b, 2))
	released := mustRollForward(t, b, 3)
	require.Len(t, released, 1)
	assert.Equal(t, uint64(1), released[0].point.Slot)
	assert.Equal(t, 2, b.depth())
}

func TestBufferZeroDepthReleasesImmediately(t *testing.T) {
	b := newRollbackBuffer(0)
	for slot := uint64(1); slot <= 3; slot++ {
		released := mustRollForward(t, b, slot)
		require.Len(t, released, 1)
		assert.Equal(t, slot, released[0].point.Slot)
	}
	assert.Equal(t, 0, b.depth())
}

func TestBufferRollbackToReleasedPoint(t *testing.T) {
	// Release slot 1, then roll back to it. The buffered entries are
	// discarded and no downstream rollback is needed since nothing past
	// slot 1 was released
	b := newRollbackBuffer(2)
	mustRollForward(t, b, 1)
	mustRollForward(t, b, 2)
	released := mustRollForward(t, b, 3)
	require.Len(t, released, 1)
	emitRollback := b.rollBackward(common.NewPoint(1, []byte{0x01}))
	assert.False(t, emitRollback)
	assert.Equal(t, 0, b.depth())
}

func TestBufferRollbackToOrigin(t *testing.T) {
	// Nothing released yet, rollback to origin discards the buffer and
	// must be surfaced downstream
	b := newRollbackBuffer(2)
	mustRollForward(t, b, 1)
	mustRollForward(t, b, 2)
	emitRollback := b.rollBackward(common.NewPointOrigin())
	assert.True(t, emitRollback)
	assert.Equal(t, 0, b.depth())
}

func TestBufferRollbackPastReleased(t *testing.T) {
	// Slots 1 and 2 were released; rolling back to slot 1 retracts slot 2,
	// which the downstream has already seen
	b := newRollbackBuffer(2)
	mustRollForward(t, b, 1)
	mustRollForward(t, b, 2)
	mustRollForward(t, b, 3)
	released := mustRollForward(t, b, 4)
	require.Len(t, released, 1)
	assert.Equal(t, uint64(2), released[0].point.Slot)
	emitRollback := b.rollBackward(common.NewPoint(1, []byte{0x01}))
	assert.True(t, emitRollback)
	assert.Equal(t, 0, b.depth())
}

func TestBufferRollbackWithinBuffer(t *testing.T) {
	// Rollback lands on a still-buffered entry: only newer entries are
	// discarded and nothing is surfaced downstream
	b := newRollbackBuffer(3)
	mustRollForward(t, b, 1)
	mustRollForward(t, b, 2)
	mustRollForward(t, b, 3)
	emitRollback := b.rollBackward(common.NewPoint(2, []byte{0x02}))
	assert.False(t, emitRollback)
	assert.Equal(t, 2, b.depth())
	// Chain continues from the rollback point
	released, err := b.rollForward(entryAtSlot(3))
	require.NoError(t, err)
	assert.Empty(t, released)
	assert.Equal(t, 3, b.depth())
}

func TestBufferNonMonotonicSlotRejected(t *testing.T) {
	b := newRollbackBuffer(2)
	mustRollForward(t, b, 5)
	_, err := b.rollForward(entryAtSlot(5))
	assert.ErrorContains(t, err, "does not advance")
	_, err = b.rollForward(entryAtSlot(3))
	assert.ErrorContains(t, err, "does not advance")
}

// TestBufferProjection replays a mixed event sequence and checks that the
// released stream is a delayed, order-preserving projection of the raw
// stream: every released slot was received, releases are in order, and no
// released block is ever retracted without a surfaced rollback
func TestBufferProjection(t *testing.T) {
	const minDepth = 3
	b := newRollbackBuffer(minDepth)
	type step struct {
		rollbackTo *uint64 // nil means roll forward to nextSlot
		slot       uint64
	}
	rollbackTo := func(slot uint64) step {
		return step{rollbackTo: &slot}
	}
	steps := []step{
		{slot: 1}, {slot: 2}, {slot: 3}, {slot: 4}, {slot: 5},
		rollbackTo(3),
		{slot: 4}, {slot: 6}, {slot: 7}, {slot: 8},
		rollbackTo(1),
		{slot: 2}, {slot: 3}, {slot: 4}, {slot: 5}, {slot: 6},
	}
	var releasedSlots []uint64
	var surfacedRollbacks []uint64
	for _, s := range steps {
		if s.rollbackTo != nil {
			point := common.NewPoint(*s.rollbackTo, []byte{byte(*s.rollbackTo)})
			if b.rollBackward(point) {
				surfacedRollbacks = append(surfacedRollbacks, *s.rollbackTo)
			}
			continue
		}
		released, err := b.rollForward(entryAtSlot(s.slot))
		require.NoError(t, err)
		for _, entry := range released {
			releasedSlots = append(releasedSlots, entry.point.Slot)
		}
	}
	// The first rollback (to slot 3) is absorbed by the buffer; the second
	// (to slot 1) retracts already-released blocks and is surfaced, after
	// which slots 2 and 3 are re-released from the rebuilt chain
	assert.Equal(t, []uint64{1, 2, 3, 4, 2, 3}, releasedSlots)
	assert.Equal(t, []uint64{1}, surfacedRollbacks)
	// Depth never exceeds minDepth at rest
	assert.LessOrEqual(t, b.depth(), minDepth)
}
