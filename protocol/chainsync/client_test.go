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

package chainsync_test

import (
	"testing"
	"time"

	"github.com/cardanoware/chaintail/internal/test/mock"
	"github.com/cardanoware/chaintail/muxer"
	"github.com/cardanoware/chaintail/protocol"
	"github.com/cardanoware/chaintail/protocol/chainsync"
	"github.com/cardanoware/chaintail/protocol/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	testPoint = common.NewPoint(
		1234,
		[]byte{
			0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
			0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
			0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
			0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		},
	)
	testTip = common.Tip{
		Point:       testPoint,
		BlockNumber: 77,
	}
)

type rollForwardResult struct {
	blockType uint
	blockCbor []byte
	tip       common.Tip
}

type rollBackwardResult struct {
	point common.Point
	tip   common.Tip
}

type testEnv struct {
	conn             interface{ Close() error }
	muxer            *muxer.Muxer
	errorChan        chan error
	client           *chainsync.Client
	rollForwardChan  chan rollForwardResult
	rollBackwardChan chan rollBackwardResult
}

func newTestEnv(
	t *testing.T,
	conversation []mock.ConversationEntry,
) *testEnv {
	t.Helper()
	env := &testEnv{
		errorChan:        make(chan error, 10),
		rollForwardChan:  make(chan rollForwardResult, 10),
		rollBackwardChan: make(chan rollBackwardResult, 10),
	}
	conn := mock.NewConnection(conversation)
	env.conn = conn
	env.muxer = muxer.New(conn)
	cfg := chainsync.NewConfig(
		chainsync.WithRollForwardFunc(
			func(blockType uint, blockCbor []byte, tip common.Tip) error {
				env.rollForwardChan <- rollForwardResult{
					blockType: blockType,
					blockCbor: blockCbor,
					tip:       tip,
				}
				return nil
			},
		),
		chainsync.WithRollBackwardFunc(
			func(point common.Point, tip common.Tip) error {
				env.rollBackwardChan <- rollBackwardResult{
					point: point,
					tip:   tip,
				}
				return nil
			},
		),
	)
	cs := chainsync.New(
		protocol.ProtocolOptions{
			Muxer:     env.muxer,
			ErrorChan: env.errorChan,
			Role:      protocol.ProtocolRoleClient,
		},
		&cfg,
	)
	env.client = cs.Client
	env.client.Start()
	env.muxer.Start()
	return env
}

func (env *testEnv) cleanup() {
	env.muxer.Stop()
	_ = env.conn.Close()
	time.Sleep(50 * time.Millisecond)
}

func TestClientSyncRollForward(t *testing.T) {
	defer goleak.VerifyNone(t)
	blockCbor := []byte{0x84, 0x00, 0x01, 0x02, 0x03}
	msgRollForward, err := chainsync.NewMsgRollForward(2, blockCbor, testTip)
	require.NoError(t, err)
	env := newTestEnv(
		t,
		[]mock.ConversationEntry{
			{
				Type:             mock.EntryTypeInput,
				ProtocolId:       chainsync.ProtocolId,
				InputMessageType: chainsync.MessageTypeFindIntersect,
			},
			{
				Type:       mock.EntryTypeOutput,
				ProtocolId: chainsync.ProtocolId,
				IsResponse: true,
				OutputMessages: []protocol.Message{
					chainsync.NewMsgIntersectFound(testPoint, testTip),
				},
			},
			{
				Type:             mock.EntryTypeInput,
				ProtocolId:       chainsync.ProtocolId,
				InputMessageType: chainsync.MessageTypeRequestNext,
			},
			{
				Type:       mock.EntryTypeOutput,
				ProtocolId: chainsync.ProtocolId,
				IsResponse: true,
				OutputMessages: []protocol.Message{
					msgRollForward,
				},
			},
		},
	)
	defer env.cleanup()
	require.NoError(t, env.client.Sync([]common.Point{testPoint}))
	select {
	case result := <-env.rollForwardChan:
		assert.Equal(t, uint(2), result.blockType)
		assert.Equal(t, blockCbor, result.blockCbor)
		assert.Equal(t, testTip, result.tip)
	case err := <-env.errorChan:
		t.Fatalf("unexpected error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for roll forward")
	}
}

func TestClientSyncRollBackward(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(
		t,
		[]mock.ConversationEntry{
			{
				Type:             mock.EntryTypeInput,
				ProtocolId:       chainsync.ProtocolId,
				InputMessageType: chainsync.MessageTypeFindIntersect,
			},
			{
				Type:       mock.EntryTypeOutput,
				ProtocolId: chainsync.ProtocolId,
				IsResponse: true,
				OutputMessages: []protocol.Message{
					chainsync.NewMsgIntersectFound(testPoint, testTip),
				},
			},
			{
				Type:             mock.EntryTypeInput,
				ProtocolId:       chainsync.ProtocolId,
				InputMessageType: chainsync.MessageTypeRequestNext,
			},
			{
				Type:       mock.EntryTypeOutput,
				ProtocolId: chainsync.ProtocolId,
				IsResponse: true,
				OutputMessages: []protocol.Message{
					chainsync.NewMsgRollBackward(testPoint, testTip),
				},
			},
		},
	)
	defer env.cleanup()
	require.NoError(t, env.client.Sync([]common.Point{testPoint}))
	select {
	case result := <-env.rollBackwardChan:
		assert.Equal(t, testPoint, result.point)
		assert.Equal(t, testTip, result.tip)
	case err := <-env.errorChan:
		t.Fatalf("unexpected error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for roll backward")
	}
}

func TestClientSyncIntersectNotFound(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(
		t,
		[]mock.ConversationEntry{
			{
				Type:             mock.EntryTypeInput,
				ProtocolId:       chainsync.ProtocolId,
				InputMessageType: chainsync.MessageTypeFindIntersect,
			},
			{
				Type:       mock.EntryTypeOutput,
				ProtocolId: chainsync.ProtocolId,
				IsResponse: true,
				OutputMessages: []protocol.Message{
					chainsync.NewMsgIntersectNotFound(testTip),
				},
			},
		},
	)
	defer env.cleanup()
	err := env.client.Sync([]common.Point{testPoint})
	require.ErrorIs(t, err, chainsync.ErrIntersectNotFound)
}

func TestClientGetCurrentTip(t *testing.T) {
	defer goleak.VerifyNone(t)
	env := newTestEnv(
		t,
		[]mock.ConversationEntry{
			{
				Type:             mock.EntryTypeInput,
				ProtocolId:       chainsync.ProtocolId,
				InputMessageType: chainsync.MessageTypeFindIntersect,
			},
			{
				Type:       mock.EntryTypeOutput,
				ProtocolId: chainsync.ProtocolId,
				IsResponse: true,
				OutputMessages: []protocol.Message{
					chainsync.NewMsgIntersectNotFound(testTip),
				},
			},
		},
	)
	defer env.cleanup()
	tip, err := env.client.GetCurrentTip()
	require.NoError(t, err)
	assert.Equal(t, testTip, *tip)
}

func TestClientUnexpectedMessage(t *testing.T) {
	defer goleak.VerifyNone(t)
	msgRollForward, err := chainsync.NewMsgRollForward(2, []byte{0x80}, testTip)
	require.NoError(t, err)
	env := newTestEnv(
		t,
		[]mock.ConversationEntry{
			// RollForward without a preceding RequestNext is a protocol
			// violation
			{
				Type:       mock.EntryTypeOutput,
				ProtocolId: chainsync.ProtocolId,
				IsResponse: true,
				OutputMessages: []protocol.Message{
					msgRollForward,
				},
			},
		},
	)
	defer env.cleanup()
	select {
	case err := <-env.errorChan:
		require.ErrorIs(t, err, protocol.ErrProtocolViolationUnexpectedState)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for protocol violation")
	}
}
