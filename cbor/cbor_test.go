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

package cbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDeterministic(t *testing.T) {
	data := map[uint16]any{
		3: uint32(42),
		1: uint32(7),
		2: uint32(9),
	}
	first, err := Encode(data)
	require.NoError(t, err)
	second, err := Encode(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeReturnsBytesConsumed(t *testing.T) {
	// Two complete items back to back: [0, 1] followed by [2]
	data := []byte{0x82, 0x00, 0x01, 0x81, 0x02}
	var tmp []any
	numBytesRead, err := Decode(data, &tmp)
	require.NoError(t, err)
	assert.Equal(t, 3, numBytesRead)
	assert.Len(t, tmp, 2)
	var tmp2 []any
	numBytesRead, err = Decode(data[numBytesRead:], &tmp2)
	require.NoError(t, err)
	assert.Equal(t, 2, numBytesRead)
	assert.Len(t, tmp2, 1)
}

func TestStructAsArrayRoundTrip(t *testing.T) {
	type testStruct struct {
		StructAsArray
		A uint64
		B []byte
	}
	orig := testStruct{A: 123, B: []byte{0xde, 0xad}}
	data, err := Encode(orig)
	require.NoError(t, err)
	// Encoded as a plain 2-element list
	listLen, err := ListLength(data)
	require.NoError(t, err)
	assert.Equal(t, 2, listLen)
	var decoded testStruct
	_, err = Decode(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, orig.A, decoded.A)
	assert.Equal(t, orig.B, decoded.B)
}

func TestDecodeIdFromList(t *testing.T) {
	testDefs := []struct {
		cborHex    []byte
		expectedId int
	}{
		// [0, 1]
		{[]byte{0x82, 0x00, 0x01}, 0},
		// [7]
		{[]byte{0x81, 0x07}, 7},
		// [25, "foo"] (id too large for the shortcut path)
		{[]byte{0x82, 0x18, 0x19, 0x63, 0x66, 0x6f, 0x6f}, 25},
	}
	for _, testDef := range testDefs {
		id, err := DecodeIdFromList(testDef.cborHex)
		require.NoError(t, err)
		assert.Equal(t, testDef.expectedId, id)
	}
}

func TestDecodeIdFromEmptyList(t *testing.T) {
	_, err := DecodeIdFromList([]byte{0x80})
	assert.ErrorContains(t, err, "empty list")
}

func TestListLength(t *testing.T) {
	testDefs := []struct {
		cborData    []byte
		expectedLen int
	}{
		{[]byte{0x80}, 0},
		{[]byte{0x82, 0x00, 0x01}, 2},
		{[]byte{0x83, 0x00, 0x01, 0x02}, 3},
	}
	for _, testDef := range testDefs {
		listLen, err := ListLength(testDef.cborData)
		require.NoError(t, err)
		assert.Equal(t, testDef.expectedLen, listLen)
	}
}
