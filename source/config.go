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

package source

import (
	"log/slog"
	"time"

	chaintail "github.com/cardanoware/chaintail"
)

// PointRef is a chain point as it appears in configuration. The hash is
// hex-encoded. Origin selects the start of the chain and is mutually
// exclusive with the slot/hash fields
type PointRef struct {
	Origin bool   `mapstructure:"origin" yaml:"origin"`
	Slot   uint64 `mapstructure:"slot"   yaml:"slot"`
	Hash   string `mapstructure:"hash"   yaml:"hash"`
}

// RetryPolicy governs reconnect attempts when establishing the initial
// connection. It does not apply to connection loss after a successful
// bootstrap. A nil MaxRetries retries indefinitely
type RetryPolicy struct {
	MaxRetries    *uint         `mapstructure:"maxRetries"    yaml:"maxRetries"`
	BackoffUnit   time.Duration `mapstructure:"backoffUnit"   yaml:"backoffUnit"`
	BackoffFactor float64       `mapstructure:"backoffFactor" yaml:"backoffFactor"`
	MaxBackoff    time.Duration `mapstructure:"maxBackoff"    yaml:"maxBackoff"`
}

// Config describes a chain source. It is treated as immutable once
// Bootstrap has been called
type Config struct {
	// Address is a unix socket path or a TCP host:port
	Address string `mapstructure:"address" yaml:"address"`
	// Magic is the network magic. Zero selects mainnet during normalization
	Magic uint32 `mapstructure:"magic" yaml:"magic"`
	// Since is a single resume point
	//
	// Deprecated: use Intersect instead
	Since *PointRef `mapstructure:"since" yaml:"since"`
	// Intersect is the ordered list of candidate resume points, most
	// preferred first. Takes precedence over Since
	Intersect []PointRef `mapstructure:"intersect" yaml:"intersect"`
	// MinDepth is the number of confirmations a block requires before it is
	// considered safe to send down the pipeline. Zero emits immediately
	MinDepth uint `mapstructure:"minDepth" yaml:"minDepth"`
	// RetryPolicy for initial connection establishment. Nil means a single
	// attempt with no retry
	RetryPolicy *RetryPolicy `mapstructure:"retryPolicy" yaml:"retryPolicy"`
	// Mapper carries configuration for the external event-mapping
	// collaborator. It is opaque to this package
	Mapper map[string]any `mapstructure:"mapper" yaml:"mapper"`
	// Logger for the source and the protocol stack beneath it. Logging is
	// discarded when nil
	Logger *slog.Logger `mapstructure:"-" yaml:"-"`
	// EventBufferSize is the capacity of the inter-stage event channel.
	// A full channel stalls the chain-sync agent, which is the intended
	// backpressure behavior
	EventBufferSize int `mapstructure:"eventBufferSize" yaml:"eventBufferSize"`
}

const defaultEventBufferSize = 50

// normalize fills in defaults. The default network magic lives here rather
// than in the protocol layer
func (c Config) normalize() Config {
	if c.Magic == 0 {
		c.Magic = chaintail.NetworkMainnet.NetworkMagic
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = defaultEventBufferSize
	}
	return c
}
