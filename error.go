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

package chaintail

import "errors"

// ErrConnectionClosed is returned or wrapped when an operation fails because
// the underlying connection was closed
var ErrConnectionClosed = errors.New("connection closed")

// ErrConnectionAlreadyEstablished is returned when calling Dial on a
// connection that already has an underlying transport
var ErrConnectionAlreadyEstablished = errors.New(
	"connection already established",
)

// ErrNoConnection is returned when no connection was provided and Dial was
// never called
var ErrNoConnection = errors.New("no connection provided")
