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

// Package protocol provides the common framework for mini-protocols. It
// handles message framing over muxer segments and enforces the protocol
// state machine described by a StateMap
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cardanoware/chaintail/cbor"
	"github.com/cardanoware/chaintail/muxer"
)

// ProtocolRole is an enum of the protocol roles
type ProtocolRole uint

// Protocol roles
const (
	ProtocolRoleNone   ProtocolRole = 0 // Default (invalid) protocol role
	ProtocolRoleClient ProtocolRole = 1 // Client protocol role
	ProtocolRoleServer ProtocolRole = 2 // Server protocol role
)

// MessageHandlerFunc is the function signature for handling decoded messages
type MessageHandlerFunc func(Message) error

// MessageFromCborFunc is the function signature for parsing a message from
// its CBOR representation
type MessageFromCborFunc func(uint, []byte) (Message, error)

// ProtocolOptions provides common arguments for mini-protocol instances
type ProtocolOptions struct {
	Muxer     *muxer.Muxer
	Logger    *slog.Logger
	ErrorChan chan error
	Role      ProtocolRole
}

// ProtocolConfig provides the configuration for Protocol
type ProtocolConfig struct {
	Name                string
	ProtocolId          uint16
	Muxer               *muxer.Muxer
	Logger              *slog.Logger
	ErrorChan           chan error
	Role                ProtocolRole
	MessageHandlerFunc  MessageHandlerFunc
	MessageFromCborFunc MessageFromCborFunc
	StateMap            StateMap
	InitialState        State
}

// Protocol implements the shared logic for mini-protocols
type Protocol struct {
	config        ProtocolConfig
	muxerSendChan chan *muxer.Segment
	muxerRecvChan chan *muxer.Segment
	sendQueueChan chan Message
	recvBuffer    *bytes.Buffer
	state         State
	stateMutex    sync.Mutex
	stateTimer    *time.Timer
	doneChan      chan struct{}
	onceStart     sync.Once
	onceStop      sync.Once
}

// New returns a new Protocol object
func New(config ProtocolConfig) *Protocol {
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		config.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	p := &Protocol{
		config:        config,
		sendQueueChan: make(chan Message, 50),
		recvBuffer:    bytes.NewBuffer(nil),
		doneChan:      make(chan struct{}),
	}
	return p
}

// Start registers the protocol with the muxer and starts the send/receive
// loops
func (p *Protocol) Start() {
	p.onceStart.Do(func() {
		p.muxerSendChan, p.muxerRecvChan = p.config.Muxer.RegisterProtocol(
			p.config.ProtocolId,
		)
		p.stateMutex.Lock()
		p.setStateLocked(p.config.InitialState)
		p.stateMutex.Unlock()
		go p.sendLoop()
		go p.recvLoop()
	})
}

// Stop shuts down the protocol
func (p *Protocol) Stop() {
	p.onceStop.Do(func() {
		close(p.doneChan)
		p.stateMutex.Lock()
		if p.stateTimer != nil {
			p.stateTimer.Stop()
			p.stateTimer = nil
		}
		p.stateMutex.Unlock()
	})
}

// DoneChan returns a channel that is closed when the protocol shuts down
func (p *Protocol) DoneChan() <-chan struct{} {
	return p.doneChan
}

// Logger returns the logger for the protocol
func (p *Protocol) Logger() *slog.Logger {
	return p.config.Logger
}

// SendMessage enqueues a message for sending. The message will be CBOR
// encoded and split across as many segments as needed
func (p *Protocol) SendMessage(msg Message) error {
	select {
	case <-p.doneChan:
		return ErrProtocolShuttingDown
	case p.sendQueueChan <- msg:
		return nil
	}
}

func (p *Protocol) sendError(err error) {
	select {
	case <-p.doneChan:
	case p.config.ErrorChan <- err:
	}
	p.Stop()
}

func (p *Protocol) sendLoop() {
	for {
		select {
		case <-p.doneChan:
			return
		case msg := <-p.sendQueueChan:
			// Check that the message is allowed in the current state and
			// update the state before the bytes hit the wire
			if err := p.transitionState(msg, p.localAgency()); err != nil {
				p.sendError(err)
				return
			}
			data := msg.Cbor()
			if data == nil {
				var err error
				data, err = cbor.Encode(msg)
				if err != nil {
					p.sendError(
						fmt.Errorf("%s: encode error: %w", p.config.Name, err),
					)
					return
				}
			}
			// Split the message into segments, if needed
			isResponse := p.config.Role == ProtocolRoleServer
			for len(data) > 0 {
				chunkLen := min(len(data), muxer.SegmentMaxPayloadLength)
				segment := muxer.NewSegment(
					p.config.ProtocolId,
					data[:chunkLen],
					isResponse,
				)
				select {
				case <-p.doneChan:
					return
				case p.muxerSendChan <- segment:
				}
				data = data[chunkLen:]
			}
		}
	}
}

func (p *Protocol) recvLoop() {
	leftoverData := false
	for {
		// Don't grab the next segment from the muxer if we still have data
		// in the buffer
		if !leftoverData {
			select {
			case <-p.doneChan:
				return
			case segment, ok := <-p.muxerRecvChan:
				if !ok {
					// Muxer shutdown means the connection is closed
					p.Stop()
					return
				}
				p.recvBuffer.Write(segment.Payload)
			}
		}
		leftoverData = false
		// Decode message into a generic list to determine how many bytes
		// the message is and whether we have all of it yet
		var tmpMsg []cbor.RawMessage
		numBytesRead, err := cbor.Decode(p.recvBuffer.Bytes(), &tmpMsg)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// This is probably a multi-segment message, so we wait until
				// we get more of the message before trying to process it
				continue
			}
			p.sendError(fmt.Errorf("%s: decode error: %w", p.config.Name, err))
			return
		}
		msgType, err := cbor.DecodeIdFromList(p.recvBuffer.Bytes())
		if err != nil {
			p.sendError(fmt.Errorf("%s: decode error: %w", p.config.Name, err))
			return
		}
		msgData := p.recvBuffer.Bytes()[:numBytesRead]
		msg, err := p.config.MessageFromCborFunc(uint(msgType), msgData) // #nosec G115
		if err != nil {
			p.sendError(fmt.Errorf("%s: %w", p.config.Name, err))
			return
		}
		if msg == nil {
			p.sendError(fmt.Errorf(
				"%s: %w: unknown message type %d",
				p.config.Name,
				ErrProtocolViolationInvalidMessage,
				msgType,
			))
			return
		}
		if err := p.transitionState(msg, p.remoteAgency()); err != nil {
			p.sendError(err)
			return
		}
		if err := p.config.MessageHandlerFunc(msg); err != nil {
			p.sendError(err)
			return
		}
		if numBytesRead < p.recvBuffer.Len() {
			// There is another message in the same segment, so we reset the
			// buffer with just the remaining data
			p.recvBuffer = bytes.NewBuffer(p.recvBuffer.Bytes()[numBytesRead:])
			leftoverData = true
		} else {
			// Empty out our buffer since we successfully processed the message
			p.recvBuffer.Reset()
		}
	}
}

func (p *Protocol) localAgency() uint {
	if p.config.Role == ProtocolRoleServer {
		return AgencyServer
	}
	return AgencyClient
}

func (p *Protocol) remoteAgency() uint {
	if p.config.Role == ProtocolRoleServer {
		return AgencyClient
	}
	return AgencyServer
}

// transitionState checks that the message is an allowed transition out of
// the current state with the expected agency and moves to the new state
func (p *Protocol) transitionState(msg Message, expectedAgency uint) error {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	entry, ok := p.config.StateMap[p.state]
	if !ok {
		return fmt.Errorf(
			"%s: %w: unknown protocol state %s",
			p.config.Name,
			ErrProtocolViolationUnexpectedState,
			p.state,
		)
	}
	if entry.Agency != expectedAgency {
		return fmt.Errorf(
			"%s: %w: message type %d sent against agency in state %s",
			p.config.Name,
			ErrProtocolViolationUnexpectedState,
			msg.Type(),
			p.state,
		)
	}
	for _, transition := range entry.Transitions {
		if transition.MsgType == msg.Type() {
			p.setStateLocked(transition.NewState)
			return nil
		}
	}
	return fmt.Errorf(
		"%s: %w: message type %d in state %s",
		p.config.Name,
		ErrProtocolViolationUnexpectedState,
		msg.Type(),
		p.state,
	)
}

func (p *Protocol) setStateLocked(state State) {
	// Disable any existing state timeout timer
	if p.stateTimer != nil {
		p.stateTimer.Stop()
		p.stateTimer = nil
	}
	p.state = state
	p.config.Logger.Debug(
		fmt.Sprintf("protocol state change to %s", state),
		"component", "network",
		"protocol", p.config.Name,
	)
	// Set a timeout timer when we're waiting on the remote side
	entry := p.config.StateMap[state]
	if entry.Timeout > 0 && entry.Agency == p.remoteAgency() {
		p.stateTimer = time.AfterFunc(entry.Timeout, func() {
			p.sendError(fmt.Errorf(
				"%s: timed out waiting on transition from protocol state %s",
				p.config.Name,
				state,
			))
		})
	}
}
