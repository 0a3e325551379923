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

// Package common contains types shared by multiple mini-protocols
package common

import (
	"errors"

	"github.com/cardanoware/chaintail/cbor"
)

var errInvalidPoint = errors.New("invalid point data")

// Point represents a point on the blockchain. It consists of a slot number
// and block hash. The zero value represents the origin of the chain
type Point struct {
	// Tells the CBOR decoder to convert to/from a struct and a CBOR array
	_    struct{} `cbor:",toarray"`
	Slot uint64
	Hash []byte
}

// NewPoint returns a Point object with the specified slot number and block hash
func NewPoint(slot uint64, blockHash []byte) Point {
	return Point{
		Slot: slot,
		Hash: blockHash,
	}
}

// NewPointOrigin returns an "empty" Point object which represents the origin
// of the blockchain
func NewPointOrigin() Point {
	return Point{}
}

// Origin returns true when the point represents the origin of the chain
func (p Point) Origin() bool {
	return p.Slot == 0 && len(p.Hash) == 0
}

// UnmarshalCBOR is a helper function for decoding a Point object from CBOR.
// The origin point is encoded as an empty list, so we need to do some special
// handling when decoding. It is not intended to be called directly
func (p *Point) UnmarshalCBOR(data []byte) error {
	var tmp []any
	if _, err := cbor.Decode(data, &tmp); err != nil {
		return err
	}
	if len(tmp) > 0 {
		if len(tmp) != 2 {
			return errInvalidPoint
		}
		slot, ok := tmp[0].(uint64)
		if !ok {
			return errInvalidPoint
		}
		hash, ok := tmp[1].([]byte)
		if !ok {
			return errInvalidPoint
		}
		p.Slot = slot
		p.Hash = hash
	}
	return nil
}

// MarshalCBOR is a helper function for encoding a Point object to CBOR. The
// origin point is encoded as an empty list, so we need to do some special
// handling when encoding. It is not intended to be called directly
func (p *Point) MarshalCBOR() ([]byte, error) {
	var data []any
	if p.Origin() {
		// Return an empty list for the origin
		data = make([]any, 0)
	} else {
		data = []any{p.Slot, p.Hash}
	}
	return cbor.Encode(data)
}

// Tip represents a Point combined with a block number
type Tip struct {
	cbor.StructAsArray
	Point       Point
	BlockNumber uint64
}
