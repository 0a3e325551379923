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

// Package block provides just enough block decoding to locate a block on
// the chain. Blocks stay opaque otherwise; interpreting their contents is
// the job of the downstream mapper
package block

import (
	"errors"
	"fmt"

	"github.com/cardanoware/chaintail/cbor"
	"github.com/cardanoware/chaintail/protocol/common"

	"golang.org/x/crypto/blake2b"
)

// Block types from the node-to-client wrapped block encoding
const (
	BlockTypeByronEbb  uint = 0
	BlockTypeByronMain uint = 1
	BlockTypeShelley   uint = 2
	BlockTypeAllegra   uint = 3
	BlockTypeMary      uint = 4
	BlockTypeAlonzo    uint = 5
	BlockTypeBabbage   uint = 6
	BlockTypeConway    uint = 7
)

// ByronSlotsPerEpoch is the number of slots per Byron epoch. Byron headers
// carry an (epoch, slot) pair rather than an absolute slot number
const ByronSlotsPerEpoch = 21600

var ErrMalformedBlock = errors.New("malformed block")

// Point returns the chain point (absolute slot and header hash) for a raw
// block of the given type
func Point(blockType uint, blockCbor []byte) (common.Point, error) {
	// All eras encode the block as a list with the header first
	var block []cbor.RawMessage
	if _, err := cbor.Decode(blockCbor, &block); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	if len(block) == 0 {
		return common.Point{}, fmt.Errorf("%w: empty block list", ErrMalformedBlock)
	}
	headerCbor := []byte(block[0])
	switch blockType {
	case BlockTypeByronEbb:
		return byronEbbPoint(headerCbor)
	case BlockTypeByronMain:
		return byronMainPoint(headerCbor)
	case BlockTypeShelley,
		BlockTypeAllegra,
		BlockTypeMary,
		BlockTypeAlonzo,
		BlockTypeBabbage,
		BlockTypeConway:
		return shelleyPoint(headerCbor)
	}
	return common.Point{}, fmt.Errorf(
		"%w: unknown block type %d",
		ErrMalformedBlock,
		blockType,
	)
}

// shelleyPoint handles every Shelley-based era. The header is
// [headerBody, signature] and the header body starts with
// [blockNumber, slot, ...] in all of them. The block hash is the blake2b-256
// hash of the raw header
func shelleyPoint(headerCbor []byte) (common.Point, error) {
	var header []cbor.RawMessage
	if _, err := cbor.Decode(headerCbor, &header); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	if len(header) < 1 {
		return common.Point{}, fmt.Errorf("%w: empty header", ErrMalformedBlock)
	}
	var headerBody []cbor.RawMessage
	if _, err := cbor.Decode([]byte(header[0]), &headerBody); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	if len(headerBody) < 2 {
		return common.Point{}, fmt.Errorf(
			"%w: header body too short",
			ErrMalformedBlock,
		)
	}
	var slot uint64
	if _, err := cbor.Decode([]byte(headerBody[1]), &slot); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	hash := blake2b.Sum256(headerCbor)
	return common.NewPoint(slot, hash[:]), nil
}

// byronMainPoint extracts the point from a Byron main block header:
// [protocolMagic, prevBlock, bodyProof, consensusData, extra] with
// consensusData = [[epoch, slot], pubkey, difficulty, blocksig]
func byronMainPoint(headerCbor []byte) (common.Point, error) {
	var header []cbor.RawMessage
	if _, err := cbor.Decode(headerCbor, &header); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	if len(header) < 4 {
		return common.Point{}, fmt.Errorf(
			"%w: byron header too short",
			ErrMalformedBlock,
		)
	}
	var consensusData []cbor.RawMessage
	if _, err := cbor.Decode([]byte(header[3]), &consensusData); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	if len(consensusData) < 1 {
		return common.Point{}, fmt.Errorf(
			"%w: byron consensus data too short",
			ErrMalformedBlock,
		)
	}
	var slotId struct {
		cbor.StructAsArray
		Epoch uint64
		Slot  uint16
	}
	if _, err := cbor.Decode([]byte(consensusData[0]), &slotId); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	slot := slotId.Epoch*ByronSlotsPerEpoch + uint64(slotId.Slot)
	return common.NewPoint(slot, byronHeaderHash(BlockTypeByronMain, headerCbor)), nil
}

// byronEbbPoint extracts the point from a Byron epoch boundary block header:
// [protocolMagic, prevBlock, bodyProof, [epoch, difficulty], extra]
func byronEbbPoint(headerCbor []byte) (common.Point, error) {
	var header []cbor.RawMessage
	if _, err := cbor.Decode(headerCbor, &header); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	if len(header) < 4 {
		return common.Point{}, fmt.Errorf(
			"%w: byron EBB header too short",
			ErrMalformedBlock,
		)
	}
	var consensusData []cbor.RawMessage
	if _, err := cbor.Decode([]byte(header[3]), &consensusData); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	if len(consensusData) < 1 {
		return common.Point{}, fmt.Errorf(
			"%w: byron EBB consensus data too short",
			ErrMalformedBlock,
		)
	}
	var epoch uint64
	if _, err := cbor.Decode([]byte(consensusData[0]), &epoch); err != nil {
		return common.Point{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	slot := epoch * ByronSlotsPerEpoch
	return common.NewPoint(slot, byronHeaderHash(BlockTypeByronEbb, headerCbor)), nil
}

// byronHeaderHash computes the Byron block hash. The on-chain hash covers a
// [blockType, header] wrapper around the raw header, so the equivalent CBOR
// list prefix is prepended before hashing
func byronHeaderHash(blockType uint, headerCbor []byte) []byte {
	data := make([]byte, 0, len(headerCbor)+2)
	data = append(data, 0x82, byte(blockType))
	data = append(data, headerCbor...)
	hash := blake2b.Sum256(data)
	return hash[:]
}
