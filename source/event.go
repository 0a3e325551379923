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
	"github.com/cardanoware/chaintail/protocol/common"
)

// ChainEventType is an enum of the chain event types
type ChainEventType int

const (
	ChainEventTypeRollForward  ChainEventType = 1
	ChainEventTypeRollBackward ChainEventType = 2
)

func (t ChainEventType) String() string {
	switch t {
	case ChainEventTypeRollForward:
		return "roll-forward"
	case ChainEventTypeRollBackward:
		return "roll-backward"
	}
	return "unknown"
}

// ChainEvent is a single chain update emitted to the downstream pipeline.
// Events are only emitted once they can no longer be undone by a rollback
// the node may still announce
type ChainEvent struct {
	Type  ChainEventType
	Point common.Point
	Tip   common.Tip
	// Roll-forward only. The block is carried as an opaque type ID plus raw
	// CBOR for the external mapper to interpret
	BlockType uint
	BlockCbor []byte
}

// NewRollForwardEvent returns a RollForward chain event
func NewRollForwardEvent(
	blockType uint,
	blockCbor []byte,
	point common.Point,
	tip common.Tip,
) ChainEvent {
	return ChainEvent{
		Type:      ChainEventTypeRollForward,
		Point:     point,
		Tip:       tip,
		BlockType: blockType,
		BlockCbor: blockCbor,
	}
}

// NewRollBackwardEvent returns a RollBackward chain event
func NewRollBackwardEvent(point common.Point, tip common.Tip) ChainEvent {
	return ChainEvent{
		Type:  ChainEventTypeRollBackward,
		Point: point,
		Tip:   tip,
	}
}
