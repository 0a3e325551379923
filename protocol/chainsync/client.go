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
	"sync"

	"github.com/cardanoware/chaintail/protocol"
	"github.com/cardanoware/chaintail/protocol/common"
)

type intersectResult struct {
	point common.Point
	tip   common.Tip
	err   error
}

// Client implements the ChainSync client
type Client struct {
	*protocol.Protocol
	config                *Config
	busyMutex             sync.Mutex
	onceStart             sync.Once
	onceStop              sync.Once
	readyForNextBlockChan chan bool
	wantMutex             sync.Mutex
	wantIntersectChan     chan intersectResult
	wantCurrentTipChan    chan common.Tip
}

// NewClient returns a new ChainSync client object
func NewClient(protoOptions protocol.ProtocolOptions, cfg *Config) *Client {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	c := &Client{
		config:                cfg,
		readyForNextBlockChan: make(chan bool, 1),
	}
	// Update state map with timeouts
	stateMap := StateMap.Copy()
	if entry, ok := stateMap[stateIntersect]; ok {
		entry.Timeout = c.config.IntersectTimeout
		stateMap[stateIntersect] = entry
	}
	if c.config.BlockTimeout > 0 {
		for _, state := range []protocol.State{stateCanAwait, stateMustReply} {
			if entry, ok := stateMap[state]; ok {
				entry.Timeout = c.config.BlockTimeout
				stateMap[state] = entry
			}
		}
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
		InitialState:        stateIdle,
	}
	c.Protocol = protocol.New(protoConfig)
	return c
}

// Start starts the protocol instance
func (c *Client) Start() {
	c.onceStart.Do(func() {
		c.Protocol.Logger().
			Debug("starting client protocol",
				"component", "network",
				"protocol", ProtocolName,
			)
		c.Protocol.Start()
	})
}

// Stop sends a Done message to gracefully terminate the protocol
func (c *Client) Stop() error {
	var err error
	c.onceStop.Do(func() {
		c.busyMutex.Lock()
		defer c.busyMutex.Unlock()
		msg := NewMsgDone()
		if sendErr := c.SendMessage(msg); sendErr != nil &&
			!errors.Is(sendErr, protocol.ErrProtocolShuttingDown) {
			err = sendErr
		}
	})
	return err
}

// GetCurrentTip returns the current chain tip. This is implemented as an
// intersect request with no candidate points, which always fails but carries
// the tip in the response
func (c *Client) GetCurrentTip() (*common.Tip, error) {
	c.busyMutex.Lock()
	defer c.busyMutex.Unlock()
	tipChan := c.wantCurrentTip()
	msg := NewMsgFindIntersect([]common.Point{})
	if err := c.SendMessage(msg); err != nil {
		c.cancelWants()
		return nil, err
	}
	select {
	case <-c.DoneChan():
		return nil, protocol.ErrProtocolShuttingDown
	case tip := <-tipChan:
		return &tip, nil
	}
}

// Sync begins a chain-sync operation using the provided intersect point(s).
// Incoming chain updates are delivered via the RollForward and RollBackward
// callback functions specified in the protocol config
func (c *Client) Sync(intersectPoints []common.Point) error {
	c.busyMutex.Lock()
	defer c.busyMutex.Unlock()
	// Use origin if no intersect points were specified
	if len(intersectPoints) == 0 {
		intersectPoints = []common.Point{common.NewPointOrigin()}
	}
	c.Protocol.Logger().
		Debug(fmt.Sprintf("calling Sync(intersectPoints: %+v)", intersectPoints),
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
		)
	resultChan := c.wantIntersect()
	msgFindIntersect := NewMsgFindIntersect(intersectPoints)
	if err := c.SendMessage(msgFindIntersect); err != nil {
		c.cancelWants()
		return err
	}
	select {
	case <-c.DoneChan():
		return protocol.ErrProtocolShuttingDown
	case result := <-resultChan:
		if result.err != nil {
			return result.err
		}
		c.Protocol.Logger().
			Debug(
				fmt.Sprintf(
					"found intersect point {Slot: %d, Hash: %x}",
					result.point.Slot,
					result.point.Hash,
				),
				"component", "network",
				"protocol", ProtocolName,
				"role", "client",
			)
	}
	// Request the first update and start the request loop
	msg := NewMsgRequestNext()
	if err := c.SendMessage(msg); err != nil {
		return err
	}
	go c.syncLoop()
	return nil
}

// syncLoop requests the next chain update each time the previous one has
// been fully handled. Blocking in the handler callbacks (downstream
// backpressure) stalls this loop, which stalls consumption from the node
func (c *Client) syncLoop() {
	for {
		select {
		case <-c.DoneChan():
			return
		case ready, ok := <-c.readyForNextBlockChan:
			if !ok || !ready {
				return
			}
		}
		c.busyMutex.Lock()
		err := c.SendMessage(NewMsgRequestNext())
		c.busyMutex.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Client) wantIntersect() chan intersectResult {
	ch := make(chan intersectResult, 1)
	c.wantMutex.Lock()
	c.wantIntersectChan = ch
	c.wantMutex.Unlock()
	return ch
}

func (c *Client) wantCurrentTip() chan common.Tip {
	ch := make(chan common.Tip, 1)
	c.wantMutex.Lock()
	c.wantCurrentTipChan = ch
	c.wantMutex.Unlock()
	return ch
}

func (c *Client) cancelWants() {
	c.wantMutex.Lock()
	c.wantIntersectChan = nil
	c.wantCurrentTipChan = nil
	c.wantMutex.Unlock()
}

func (c *Client) takeWants() (chan intersectResult, chan common.Tip) {
	c.wantMutex.Lock()
	intersectChan := c.wantIntersectChan
	tipChan := c.wantCurrentTipChan
	c.wantIntersectChan = nil
	c.wantCurrentTipChan = nil
	c.wantMutex.Unlock()
	return intersectChan, tipChan
}

// readyForNextBlock signals the sync loop to request the next update. A
// false value stops the loop
func (c *Client) readyForNextBlock(ready bool) {
	select {
	case <-c.DoneChan():
	case c.readyForNextBlockChan <- ready:
	}
}

func (c *Client) handleMessage(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeAwaitReply:
		err = c.handleAwaitReply()
	case MessageTypeRollForward:
		err = c.handleRollForward(msg)
	case MessageTypeRollBackward:
		err = c.handleRollBackward(msg)
	case MessageTypeIntersectFound:
		err = c.handleIntersectFound(msg)
	case MessageTypeIntersectNotFound:
		err = c.handleIntersectNotFound(msg)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

func (c *Client) handleAwaitReply() error {
	c.Protocol.Logger().
		Debug("waiting for next block at chain tip",
			"component", "network",
			"protocol", ProtocolName,
			"role", "client",
		)
	return nil
}

func (c *Client) handleRollForward(msgGeneric protocol.Message) error {
	if c.config.RollForwardFunc == nil {
		return errors.New(
			"received chain-sync RollForward message but no callback function is defined",
		)
	}
	msg := msgGeneric.(*MsgRollForward)
	blockType, blockCbor, err := msg.UnwrapBlock()
	if err != nil {
		return err
	}
	// Call the user callback function
	callbackErr := c.config.RollForwardFunc(blockType, blockCbor, msg.Tip)
	if callbackErr != nil {
		if errors.Is(callbackErr, ErrStopSyncProcess) {
			// Signal that we're cancelling the sync
			c.readyForNextBlock(false)
			return nil
		}
		return callbackErr
	}
	// Signal that we're ready for the next block
	c.readyForNextBlock(true)
	return nil
}

func (c *Client) handleRollBackward(msgGeneric protocol.Message) error {
	if c.config.RollBackwardFunc == nil {
		return errors.New(
			"received chain-sync RollBackward message but no callback function is defined",
		)
	}
	msg := msgGeneric.(*MsgRollBackward)
	// Call the user callback function
	callbackErr := c.config.RollBackwardFunc(msg.Point, msg.Tip)
	if callbackErr != nil {
		if errors.Is(callbackErr, ErrStopSyncProcess) {
			// Signal that we're cancelling the sync
			c.readyForNextBlock(false)
			return nil
		}
		return callbackErr
	}
	// Signal that we're ready for the next block
	c.readyForNextBlock(true)
	return nil
}

func (c *Client) handleIntersectFound(msgGeneric protocol.Message) error {
	msg := msgGeneric.(*MsgIntersectFound)
	intersectChan, tipChan := c.takeWants()
	if intersectChan != nil {
		intersectChan <- intersectResult{point: msg.Point, tip: msg.Tip}
	}
	if tipChan != nil {
		tipChan <- msg.Tip
	}
	return nil
}

func (c *Client) handleIntersectNotFound(msgGeneric protocol.Message) error {
	msg := msgGeneric.(*MsgIntersectNotFound)
	intersectChan, tipChan := c.takeWants()
	if intersectChan != nil {
		intersectChan <- intersectResult{tip: msg.Tip, err: ErrIntersectNotFound}
	}
	if tipChan != nil {
		tipChan <- msg.Tip
	}
	return nil
}
