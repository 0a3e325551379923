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

package handshake

import (
	"fmt"
	"sync"

	"github.com/cardanoware/chaintail/protocol"
)

// Client implements the Handshake client. It's a one-shot agent: once a
// terminal state is reached the protocol instance is not reused
type Client struct {
	*protocol.Protocol
	config    *Config
	onceStart sync.Once
}

// NewClient returns a new Handshake client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config: cfg,
	}
	// Update state map with timeout
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[stateConfirm]; ok {
		entry.Timeout = c.config.Timeout
		stateMap[stateConfirm] = entry
	}
	// Configure underlying Protocol
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolId,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		Role:                protocol.ProtocolRoleClient,
		MessageHandlerFunc:  c.handleMessage,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            stateMap,
		InitialState:        statePropose,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Start begins the handshake process by sending our ProposeVersions message
func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.Protocol.Logger().
			Debug("starting client protocol",
				"component", "network",
				"protocol", ProtocolName,
			)
		c.Protocol.Start()
		msg := NewMsgProposeVersions(c.config.ProtocolVersionMap)
		_ = c.SendMessage(msg)
	})
}

func (c *Client) handleMessage(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeAcceptVersion:
		err = c.handleAcceptVersion(msg)
	case MessageTypeRefuse:
		err = c.handleRefuse(msg)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

func (c *Client) handleAcceptVersion(msg protocol.Message) error {
	if c.config.FinishedFunc == nil {
		return fmt.Errorf(
			"received handshake AcceptVersion message but no callback function is defined",
		)
	}
	msgAcceptVersion := msg.(*MsgAcceptVersion)
	if _, ok := c.config.ProtocolVersionMap[msgAcceptVersion.Version]; !ok {
		return fmt.Errorf(
			"%w: server accepted version %d that we did not propose",
			ErrVersionMismatch,
			msgAcceptVersion.Version,
		)
	}
	networkMagic, err := networkMagicFromVersionData(msgAcceptVersion.VersionData)
	if err != nil {
		return err
	}
	return c.config.FinishedFunc(msgAcceptVersion.Version, networkMagic)
}

func (c *Client) handleRefuse(msgGeneric protocol.Message) error {
	msg := msgGeneric.(*MsgRefuse)
	if len(msg.Reason) == 0 {
		return ErrRefused
	}
	reason, ok := msg.Reason[0].(uint64)
	if !ok {
		return ErrRefused
	}
	switch reason {
	case RefuseReasonVersionMismatch:
		return ErrVersionMismatch
	case RefuseReasonDecodeError:
		return fmt.Errorf("%w: %s", ErrDecodeError, refuseReasonDetail(msg.Reason))
	case RefuseReasonRefused:
		return fmt.Errorf("%w: %s", ErrRefused, refuseReasonDetail(msg.Reason))
	}
	return ErrRefused
}

func refuseReasonDetail(reason []any) string {
	if len(reason) < 3 {
		return "unknown"
	}
	detail, ok := reason[2].(string)
	if !ok {
		return "unknown"
	}
	return detail
}

// networkMagicFromVersionData extracts the network magic from the accepted
// version data. Old NtC versions encode the data as a bare number, newer
// versions as a [magic, query] list
func networkMagicFromVersionData(versionData any) (uint32, error) {
	switch v := versionData.(type) {
	case uint64:
		return uint32(v), nil // #nosec G115
	case []any:
		if len(v) > 0 {
			if magic, ok := v[0].(uint64); ok {
				return uint32(magic), nil // #nosec G115
			}
		}
	}
	return 0, fmt.Errorf(
		"%w: unexpected version data format: %#v",
		ErrDecodeError,
		versionData,
	)
}
