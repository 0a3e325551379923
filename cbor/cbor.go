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

// Package cbor provides a thin wrapper around the upstream CBOR library with
// helpers for the patterns used by the Ouroboros mini-protocol messages
package cbor

import (
	_cbor "github.com/fxamacker/cbor/v2"
)

const (
	// CborTypeArray is the major type prefix byte for a CBOR array
	CborTypeArray uint8 = 0x80

	// CborMaxUintSimple is the max value able to be stored in a single byte
	// without a type prefix
	CborMaxUintSimple uint8 = 0x17
)

// RawMessage is an alias for the upstream type for convenience
type RawMessage = _cbor.RawMessage

// Tag is an alias for the upstream type for convenience
type Tag = _cbor.Tag

// StructAsArray is useful for embedding and easier to remember
type StructAsArray struct {
	// Tells the CBOR decoder to convert to/from a struct and a CBOR array
	_ struct{} `cbor:",toarray"`
}
