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
	"fmt"

	"github.com/cardanoware/chaintail/protocol/common"
)

// bufferEntry is a received block waiting for enough confirmations
type bufferEntry struct {
	point     common.Point
	tip       common.Tip
	blockType uint
	blockCbor []byte
}

// rollbackBuffer delays block emission until minDepth descendant blocks have
// confirmed it. Entries are held in strictly increasing slot order. A block
// released by the buffer can never be retracted by a later rollback, which
// is the safety property the downstream pipeline relies on
type rollbackBuffer struct {
	minDepth uint
	entries  []bufferEntry
	// emitted is the point of the most recently released block, used to
	// decide whether a rollback reaches past what the downstream has seen
	emitted    common.Point
	hasEmitted bool
}

func newRollbackBuffer(minDepth uint) *rollbackBuffer {
	return &rollbackBuffer{
		minDepth: minDepth,
	}
}

// rollForward adds a received block and returns any entries that have now
// accumulated enough confirmations to be released, oldest first. With
// minDepth 0 the block is released immediately
func (b *rollbackBuffer) rollForward(entry bufferEntry) ([]bufferEntry, error) {
	if len(b.entries) > 0 {
		last := b.entries[len(b.entries)-1]
		if entry.point.Slot <= last.point.Slot {
			return nil, fmt.Errorf(
				"roll-forward slot %d does not advance past buffered slot %d",
				entry.point.Slot,
				last.point.Slot,
			)
		}
	}
	if b.minDepth == 0 {
		b.markEmitted(entry.point)
		return []bufferEntry{entry}, nil
	}
	b.entries = append(b.entries, entry)
	var released []bufferEntry
	for uint(len(b.entries)) > b.minDepth {
		released = append(released, b.entries[0])
		b.markEmitted(b.entries[0].point)
		b.entries = b.entries[1:]
	}
	return released, nil
}

// rollBackward discards buffered entries past the given point. It returns
// true when the rollback reaches past everything the downstream has been
// given, meaning a RollBackward event must be emitted so the consumer can
// undo state beyond the point
func (b *rollbackBuffer) rollBackward(point common.Point) bool {
	// Anchor for deciding whether the downstream is affected: the last
	// emitted block if there is one, otherwise the oldest buffered entry
	var anchor common.Point
	haveAnchor := b.hasEmitted
	if haveAnchor {
		anchor = b.emitted
	} else if len(b.entries) > 0 {
		anchor = b.entries[0].point
		haveAnchor = true
	}
	// Discard entries that never reached confirmation
	keep := 0
	for _, entry := range b.entries {
		if !pointOlderThan(point, entry.point) {
			keep++
			continue
		}
		break
	}
	b.entries = b.entries[:keep]
	if !haveAnchor {
		return false
	}
	if pointOlderThan(point, anchor) {
		// The downstream may hold state past the rollback point
		b.markEmitted(point)
		return true
	}
	return false
}

// depth returns the number of buffered (not yet released) entries
func (b *rollbackBuffer) depth() int {
	return len(b.entries)
}

func (b *rollbackBuffer) markEmitted(point common.Point) {
	b.emitted = point
	b.hasEmitted = true
}

// pointOlderThan reports whether a comes strictly before b on the chain.
// Origin is older than any real point
func pointOlderThan(a common.Point, b common.Point) bool {
	if a.Origin() {
		return !b.Origin()
	}
	if b.Origin() {
		return false
	}
	return a.Slot < b.Slot
}
