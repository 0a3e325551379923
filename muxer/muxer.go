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

// Package muxer implements the segment layer that carries multiple
// mini-protocols over a single connection
package muxer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// ProtocolUnknown is a magic number used to catch inbound segments for
// protocols that haven't been registered
const ProtocolUnknown uint16 = 0xabcd

// Muxer wraps a connection and soaks up all reads/writes, routing segments
// between the connection and the registered mini-protocols
type Muxer struct {
	conn              net.Conn
	sendMutex         sync.Mutex
	startChan         chan bool
	doneChan          chan bool
	onceStop          sync.Once
	errorChan         chan error
	protocolMutex     sync.Mutex
	protocolSenders   map[uint16]chan *Segment
	protocolReceivers map[uint16]chan *Segment
}

// New creates a new Muxer object and starts the read loop. The read loop will
// deliver the first inbound segment (the handshake response) and then pause
// until Start is called
func New(conn net.Conn) *Muxer {
	m := &Muxer{
		conn:              conn,
		startChan:         make(chan bool, 1),
		doneChan:          make(chan bool),
		errorChan:         make(chan error, 10),
		protocolSenders:   make(map[uint16]chan *Segment),
		protocolReceivers: make(map[uint16]chan *Segment),
	}
	go m.readLoop()
	return m
}

// Start unblocks the read loop after the handshake is complete
func (m *Muxer) Start() {
	m.startChan <- true
}

// Stop shuts down the muxer
func (m *Muxer) Stop() {
	m.onceStop.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(m.doneChan)
		// Close protocol receive channels
		// We rely on the individual mini-protocols to close the sender channel
		m.protocolMutex.Lock()
		for _, recvChan := range m.protocolReceivers {
			close(recvChan)
		}
		m.protocolMutex.Unlock()
		// Close errorChan to signify to consumer that we're shutting down
		close(m.errorChan)
	})
}

// ErrorChan returns the channel used to report fatal muxer errors
func (m *Muxer) ErrorChan() chan error {
	return m.errorChan
}

func (m *Muxer) sendError(err error) {
	// Immediately return if we're already shutting down
	select {
	case <-m.doneChan:
		return
	default:
	}
	// Send error to consumer
	m.errorChan <- err
	// Stop the muxer on any error
	m.Stop()
}

// RegisterProtocol registers the provided protocol ID with the muxer. It
// returns a channel for sending segments and a channel for receiving them.
// Each protocol ID can only have a single consumer at a time
func (m *Muxer) RegisterProtocol(
	protocolId uint16,
) (chan *Segment, chan *Segment) {
	senderChan := make(chan *Segment, 10)
	receiverChan := make(chan *Segment, 10)
	m.protocolMutex.Lock()
	m.protocolSenders[protocolId] = senderChan
	m.protocolReceivers[protocolId] = receiverChan
	m.protocolMutex.Unlock()
	// Start goroutine to handle outbound segments for this protocol
	go func() {
		for {
			select {
			case <-m.doneChan:
				return
			case segment, ok := <-senderChan:
				if !ok {
					return
				}
				if err := m.Send(segment); err != nil {
					m.sendError(err)
					return
				}
			}
		}
	}()
	return senderChan, receiverChan
}

// Send writes a single segment to the connection. Segment writes are
// serialized so that no two protocols' segments can interleave mid-segment
func (m *Muxer) Send(segment *Segment) error {
	// We use a mutex to make sure only one protocol can send at a time
	m.sendMutex.Lock()
	defer m.sendMutex.Unlock()
	if len(segment.Payload) > SegmentMaxPayloadLength {
		return fmt.Errorf(
			"segment payload length %d exceeds maximum of %d",
			len(segment.Payload),
			SegmentMaxPayloadLength,
		)
	}
	buf := bytes.NewBuffer(nil)
	if err := binary.Write(buf, binary.BigEndian, segment.SegmentHeader); err != nil {
		return err
	}
	buf.Write(segment.Payload)
	if _, err := m.conn.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}

func (m *Muxer) readLoop() {
	started := false
	for {
		// Break out of read loop if we're shutting down
		select {
		case <-m.doneChan:
			return
		default:
		}
		header := SegmentHeader{}
		if err := binary.Read(m.conn, binary.BigEndian, &header); err != nil {
			m.sendError(err)
			return
		}
		segment := &Segment{
			SegmentHeader: header,
			Payload:       make([]byte, header.PayloadLength),
		}
		// We use ReadFull because it guarantees to read the expected number
		// of bytes or return an error
		if _, err := io.ReadFull(m.conn, segment.Payload); err != nil {
			m.sendError(err)
			return
		}
		// Send segment to proper receiver
		m.protocolMutex.Lock()
		recvChan := m.protocolReceivers[segment.GetProtocolId()]
		if recvChan == nil {
			// Fall back to the "unknown protocol" receiver if one is registered
			recvChan = m.protocolReceivers[ProtocolUnknown]
		}
		m.protocolMutex.Unlock()
		if recvChan == nil {
			// Inbound segments for unregistered protocols are a fatal
			// protocol violation
			m.sendError(fmt.Errorf(
				"received segment for unknown protocol ID %d",
				segment.GetProtocolId(),
			))
			return
		}
		select {
		case <-m.doneChan:
			return
		case recvChan <- segment:
		}
		// Wait until the muxer is started to continue
		// We don't want to read more than one segment until the handshake
		// is complete
		if !started {
			select {
			case <-m.doneChan:
				return
			case <-m.startChan:
				started = true
			}
		}
	}
}
