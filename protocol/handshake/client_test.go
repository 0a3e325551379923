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

package handshake_test

import (
	"testing"
	"time"

	"github.com/cardanoware/chaintail/internal/test/mock"
	"github.com/cardanoware/chaintail/muxer"
	"github.com/cardanoware/chaintail/protocol"
	"github.com/cardanoware/chaintail/protocol/handshake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func runHandshakeClient(
	t *testing.T,
	conversation []mock.ConversationEntry,
) (chan error, chan uint16, func()) {
	t.Helper()
	conn := mock.NewConnection(conversation)
	m := muxer.New(conn)
	errorChan := make(chan error, 10)
	acceptedChan := make(chan uint16, 1)
	cfg := handshake.NewConfig(
		handshake.WithProtocolVersionMap(map[uint16]any{
			mock.MockProtocolVersionNtC: mock.MockNetworkMagic,
		}),
		handshake.WithFinishedFunc(
			func(version uint16, networkMagic uint32) error {
				assert.Equal(t, mock.MockNetworkMagic, networkMagic)
				acceptedChan <- version
				return nil
			},
		),
	)
	client := handshake.NewClient(
		protocol.ProtocolOptions{
			Muxer:     m,
			ErrorChan: errorChan,
			Role:      protocol.ProtocolRoleClient,
		},
		&cfg,
	)
	client.Start()
	cleanup := func() {
		m.Stop()
		_ = conn.Close()
		time.Sleep(50 * time.Millisecond)
	}
	return errorChan, acceptedChan, cleanup
}

func TestClientAccept(t *testing.T) {
	defer goleak.VerifyNone(t)
	errorChan, acceptedChan, cleanup := runHandshakeClient(
		t,
		[]mock.ConversationEntry{
			mock.ConversationEntryHandshakeRequestGeneric,
			mock.ConversationEntryHandshakeResponse,
		},
	)
	defer cleanup()
	select {
	case version := <-acceptedChan:
		assert.Equal(t, mock.MockProtocolVersionNtC, version)
	case err := <-errorChan:
		t.Fatalf("unexpected error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handshake to complete")
	}
}

func TestClientRefuse(t *testing.T) {
	defer goleak.VerifyNone(t)
	errorChan, acceptedChan, cleanup := runHandshakeClient(
		t,
		[]mock.ConversationEntry{
			mock.ConversationEntryHandshakeRequestGeneric,
			mock.ConversationEntryHandshakeRefuse,
		},
	)
	defer cleanup()
	select {
	case version := <-acceptedChan:
		t.Fatalf("handshake unexpectedly accepted version %d", version)
	case err := <-errorChan:
		require.ErrorIs(t, err, handshake.ErrVersionMismatch)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handshake refusal")
	}
}
