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

package chainsync

import (
	"errors"
	"fmt"

	"github.com/cardanoware/chaintail/cbor"
	"github.com/cardanoware/chaintail/protocol"
	"github.com/cardanoware/chaintail/protocol/common"
)

// Message types
const (
	MessageTypeRequestNext       = 0
	MessageTypeAwaitReply        = 1
	MessageTypeRollForward       = 2
	MessageTypeRollBackward      = 3
	MessageTypeFindIntersect     = 4
	MessageTypeIntersectFound    = 5
	MessageTypeIntersectNotFound = 6
	MessageTypeDone              = 7
)

// NewMsgFromCbor parses a ChainSync message from CBOR
func NewMsgFromCbor(msgType uint, data []byte) (protocol.Message, error) {
	var ret protocol.Message
	switch msgType {
	case MessageTypeRequestNext:
		ret = &MsgRequestNext{}
	case MessageTypeAwaitReply:
		ret = &MsgAwaitReply{}
	case MessageTypeRollForward:
		ret = &MsgRollForward{}
	case MessageTypeRollBackward:
		ret = &MsgRollBackward{}
	case MessageTypeFindIntersect:
		ret = &MsgFindIntersect{}
	case MessageTypeIntersectFound:
		ret = &MsgIntersectFound{}
	case MessageTypeIntersectNotFound:
		ret = &MsgIntersectNotFound{}
	case MessageTypeDone:
		ret = &MsgDone{}
	}
	if ret == nil {
		return nil, nil
	}
	if _, err := cbor.Decode(data, ret); err != nil {
		return nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	// Store the raw message CBOR
	ret.SetCbor(data)
	return ret, nil
}

// MsgRequestNext requests the next chain update
type MsgRequestNext struct {
	protocol.MessageBase
}

// NewMsgRequestNext returns a new RequestNext message
func NewMsgRequestNext() *MsgRequestNext {
	m := &MsgRequestNext{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRequestNext,
		},
	}
	return m
}

// MsgAwaitReply tells the client that the server has no update yet and the
// reply will arrive once the chain grows
type MsgAwaitReply struct {
	protocol.MessageBase
}

// NewMsgAwaitReply returns a new AwaitReply message
func NewMsgAwaitReply() *MsgAwaitReply {
	m := &MsgAwaitReply{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeAwaitReply,
		},
	}
	return m
}

// MsgRollForward delivers the next block. The block is wrapped in a CBOR tag
// (24) whose content carries the block type and raw block CBOR
type MsgRollForward struct {
	protocol.MessageBase
	WrappedBlock cbor.Tag
	Tip          common.Tip
}

// NewMsgRollForward returns a new RollForward message wrapping the provided
// block CBOR
func NewMsgRollForward(
	blockType uint,
	blockCbor []byte,
	tip common.Tip,
) (*MsgRollForward, error) {
	m := &MsgRollForward{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRollForward,
		},
		Tip: tip,
	}
	wb := WrappedBlock{
		Type:     blockType,
		RawBlock: cbor.RawMessage(blockCbor),
	}
	content, err := cbor.Encode(wb)
	if err != nil {
		return nil, err
	}
	m.WrappedBlock = cbor.Tag{Number: 24, Content: content}
	return m, nil
}

// UnwrapBlock returns the block type and raw block CBOR carried by the message
func (m *MsgRollForward) UnwrapBlock() (uint, []byte, error) {
	if m.WrappedBlock.Number != 24 {
		return 0, nil, fmt.Errorf(
			"%s: unexpected tag number on wrapped block: %d",
			ProtocolName,
			m.WrappedBlock.Number,
		)
	}
	content, ok := m.WrappedBlock.Content.([]byte)
	if !ok {
		return 0, nil, errors.New("unexpected wrapped block content")
	}
	var wb WrappedBlock
	if _, err := cbor.Decode(content, &wb); err != nil {
		return 0, nil, fmt.Errorf("%s: decode error: %w", ProtocolName, err)
	}
	return wb.Type, []byte(wb.RawBlock), nil
}

// WrappedBlock is the content of the tag wrapping blocks in NtC RollForward
// messages
type WrappedBlock struct {
	cbor.StructAsArray
	Type     uint
	RawBlock cbor.RawMessage
}

// MsgRollBackward instructs the client to roll its chain back to the
// provided point
type MsgRollBackward struct {
	protocol.MessageBase
	Point common.Point
	Tip   common.Tip
}

// NewMsgRollBackward returns a new RollBackward message
func NewMsgRollBackward(point common.Point, tip common.Tip) *MsgRollBackward {
	m := &MsgRollBackward{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeRollBackward,
		},
		Point: point,
		Tip:   tip,
	}
	return m
}

// MsgFindIntersect offers the server candidate points to resume from
type MsgFindIntersect struct {
	protocol.MessageBase
	Points []common.Point
}

// NewMsgFindIntersect returns a new FindIntersect message
func NewMsgFindIntersect(points []common.Point) *MsgFindIntersect {
	m := &MsgFindIntersect{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeFindIntersect,
		},
		Points: points,
	}
	return m
}

// MsgIntersectFound reports the best intersection point and the current tip
type MsgIntersectFound struct {
	protocol.MessageBase
	Point common.Point
	Tip   common.Tip
}

// NewMsgIntersectFound returns a new IntersectFound message
func NewMsgIntersectFound(point common.Point, tip common.Tip) *MsgIntersectFound {
	m := &MsgIntersectFound{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeIntersectFound,
		},
		Point: point,
		Tip:   tip,
	}
	return m
}

// MsgIntersectNotFound reports that none of the candidate points are on the
// server's current chain
type MsgIntersectNotFound struct {
	protocol.MessageBase
	Tip common.Tip
}

// NewMsgIntersectNotFound returns a new IntersectNotFound message
func NewMsgIntersectNotFound(tip common.Tip) *MsgIntersectNotFound {
	m := &MsgIntersectNotFound{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeIntersectNotFound,
		},
		Tip: tip,
	}
	return m
}

// MsgDone terminates the protocol
type MsgDone struct {
	protocol.MessageBase
}

// NewMsgDone returns a new Done message
func NewMsgDone() *MsgDone {
	m := &MsgDone{
		MessageBase: protocol.MessageBase{
			MessageType: MessageTypeDone,
		},
	}
	return m
}
