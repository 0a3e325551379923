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

// Package chaintail implements the node-to-client Ouroboros protocol stack
// used to follow a Cardano node's chain over a local connection
package chaintail

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/cardanoware/chaintail/muxer"
	"github.com/cardanoware/chaintail/protocol"
	"github.com/cardanoware/chaintail/protocol/chainsync"
	"github.com/cardanoware/chaintail/protocol/handshake"
)

// Connection is a node-to-client connection to a Cardano node. It wraps the
// underlying transport with a muxer and the mini-protocol instances
type Connection struct {
	conn                  net.Conn
	networkMagic          uint32
	delayMuxerStart       bool
	handshakeTimeout      time.Duration
	logger                *slog.Logger
	errorChan             chan error
	protoErrorChan        chan error
	handshakeFinishedChan chan struct{}
	handshakeVersion      uint16
	doneChan              chan struct{}
	waitGroup             sync.WaitGroup
	onceClose             sync.Once
	muxer                 *muxer.Muxer
	handshake             *handshake.Client
	chainSync             *chainsync.ChainSync
	chainSyncConfig       *chainsync.Config
}

// NewConnection returns a new Connection object with the provided options.
// If a connection is provided via WithConnection, the handshake is performed
// immediately, otherwise it's deferred until Dial is called
func NewConnection(options ...ConnectionOptionFunc) (*Connection, error) {
	c := &Connection{
		networkMagic:          NetworkMainnet.NetworkMagic,
		handshakeTimeout:      5 * time.Second,
		protoErrorChan:        make(chan error, 10),
		handshakeFinishedChan: make(chan struct{}),
		doneChan:              make(chan struct{}),
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if c.errorChan == nil {
		c.errorChan = make(chan error, 10)
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.conn != nil {
		if err := c.setupConnection(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Dial establishes a connection to a Cardano node and performs the handshake.
// It works the same as DialTimeout in the net package and generally takes
// "unix" or "tcp" as the protocol
func (c *Connection) Dial(proto string, address string) error {
	if c.conn != nil {
		return ErrConnectionAlreadyEstablished
	}
	conn, err := net.Dial(proto, address)
	if err != nil {
		return err
	}
	c.conn = conn
	return c.setupConnection()
}

// Close will shutdown the Ouroboros connection
func (c *Connection) Close() error {
	var err error
	c.onceClose.Do(func() {
		close(c.doneChan)
		// Stopping the muxer closes the protocol receive channels, which
		// shuts down the mini-protocols
		if c.muxer != nil {
			c.muxer.Stop()
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// ChainSync returns the chain-sync protocol handler
func (c *Connection) ChainSync() *chainsync.ChainSync {
	return c.chainSync
}

// ErrorChan returns the channel for asynchronous connection errors. Any
// error received on this channel is fatal to the connection
func (c *Connection) ErrorChan() chan error {
	return c.errorChan
}

// ProtocolVersion returns the negotiated protocol version
func (c *Connection) ProtocolVersion() uint16 {
	return c.handshakeVersion
}

// setupConnection performs the handshake and starts the mini-protocols
func (c *Connection) setupConnection() error {
	if c.conn == nil {
		return ErrNoConnection
	}
	c.muxer = muxer.New(c.conn)
	protoOptions := protocol.ProtocolOptions{
		Muxer:     c.muxer,
		Logger:    c.logger,
		ErrorChan: c.protoErrorChan,
		Role:      protocol.ProtocolRoleClient,
	}
	// Perform the handshake
	handshakeConfig := handshake.NewConfig(
		handshake.WithProtocolVersionMap(protocolVersionMap(c.networkMagic)),
		handshake.WithTimeout(c.handshakeTimeout),
		handshake.WithFinishedFunc(c.handleHandshakeFinished),
	)
	c.handshake = handshake.NewClient(protoOptions, &handshakeConfig)
	c.handshake.Start()
	// Wait for the handshake to complete before starting the other
	// mini-protocols. Any failure here is returned synchronously
	select {
	case err, ok := <-c.muxer.ErrorChan():
		_ = c.Close()
		if !ok {
			return ErrConnectionClosed
		}
		return fmt.Errorf("handshake failed: %w", err)
	case err := <-c.protoErrorChan:
		_ = c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	case <-c.handshakeFinishedChan:
	}
	c.logger.Debug(
		fmt.Sprintf(
			"negotiated protocol version %d",
			c.handshakeVersion^ProtocolVersionNtCFlag,
		),
		"component", "network",
	)
	// Create the chain-sync protocol instance
	c.chainSync = chainsync.New(protoOptions, c.chainSyncConfig)
	c.chainSync.Client.Start()
	// Start a goroutine to relay errors from the muxer and the
	// mini-protocols to the consumer
	c.waitGroup.Add(1)
	go c.errorLoop()
	// Ok, time to let rip
	if !c.delayMuxerStart {
		c.muxer.Start()
	}
	return nil
}

func (c *Connection) handleHandshakeFinished(
	version uint16,
	networkMagic uint32,
) error {
	if networkMagic != c.networkMagic {
		return fmt.Errorf(
			"network magic mismatch: requested %d, node returned %d",
			c.networkMagic,
			networkMagic,
		)
	}
	c.handshakeVersion = version
	close(c.handshakeFinishedChan)
	return nil
}

func (c *Connection) errorLoop() {
	defer c.waitGroup.Done()
	select {
	case <-c.doneChan:
	case err, ok := <-c.muxer.ErrorChan():
		if !ok {
			return
		}
		c.relayError(fmt.Errorf("muxer error: %w", err))
	case err := <-c.protoErrorChan:
		c.relayError(err)
	}
}

// relayError passes a fatal error to the consumer and shuts the connection
// down
func (c *Connection) relayError(err error) {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) {
		err = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	select {
	case <-c.doneChan:
	case c.errorChan <- err:
	}
	_ = c.Close()
}
