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

package mock

import (
	"github.com/cardanoware/chaintail/protocol"
	"github.com/cardanoware/chaintail/protocol/handshake"
)

const (
	MockNetworkMagic uint32 = 999999
	// Wire protocol version 14 with the NtC version flag
	MockProtocolVersionNtC uint16 = 0x8000 + 14
)

type EntryType int

const (
	EntryTypeNone   EntryType = 0
	EntryTypeInput  EntryType = 1
	EntryTypeOutput EntryType = 2
	EntryTypeClose  EntryType = 3
)

// ConversationEntry is a single scripted step: either an expected inbound
// message (input), canned outbound messages (output), or a connection close
type ConversationEntry struct {
	Type             EntryType
	ProtocolId       uint16
	IsResponse       bool
	OutputMessages   []protocol.Message
	InputMessage     protocol.Message
	InputMessageType uint
	MsgFromCborFunc  protocol.MessageFromCborFunc
}

// ConversationEntryHandshakeRequestGeneric matches any handshake
// ProposeVersions message from the client
var ConversationEntryHandshakeRequestGeneric = ConversationEntry{
	Type:             EntryTypeInput,
	ProtocolId:       handshake.ProtocolId,
	InputMessageType: handshake.MessageTypeProposeVersions,
}

// ConversationEntryHandshakeResponse is a canned NtC handshake accept
// response
var ConversationEntryHandshakeResponse = ConversationEntry{
	Type:       EntryTypeOutput,
	ProtocolId: handshake.ProtocolId,
	IsResponse: true,
	OutputMessages: []protocol.Message{
		handshake.NewMsgAcceptVersion(MockProtocolVersionNtC, MockNetworkMagic),
	},
}

// ConversationEntryHandshakeRefuse is a canned NtC handshake refusal with a
// version mismatch reason
var ConversationEntryHandshakeRefuse = ConversationEntry{
	Type:       EntryTypeOutput,
	ProtocolId: handshake.ProtocolId,
	IsResponse: true,
	OutputMessages: []protocol.Message{
		handshake.NewMsgRefuse(
			[]any{handshake.RefuseReasonVersionMismatch},
		),
	},
}
