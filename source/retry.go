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
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// dialAddress maps a config address to a net.Dial network/address pair.
// Anything that looks like a filesystem path is treated as a unix socket
func dialAddress(address string) (string, string) {
	if strings.Contains(address, "/") || !strings.Contains(address, ":") {
		return "unix", address
	}
	return "tcp", address
}

// retryBackoff builds the backoff schedule for a retry policy. A nil policy
// means a single attempt. Each failed attempt waits
// min(backoffUnit * backoffFactor^attempt, maxBackoff); a nil MaxRetries
// retries indefinitely
func retryBackoff(policy *RetryPolicy) backoff.BackOff {
	if policy == nil {
		return &backoff.StopBackOff{}
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = policy.BackoffUnit
	expBackoff.Multiplier = policy.BackoffFactor
	expBackoff.MaxInterval = policy.MaxBackoff
	// Bound retries by count, not elapsed time
	expBackoff.MaxElapsedTime = 0
	expBackoff.RandomizationFactor = 0
	if policy.MaxRetries != nil {
		return backoff.WithMaxRetries(expBackoff, uint64(*policy.MaxRetries))
	}
	return expBackoff
}

// connectWithRetry establishes the initial connection per the retry policy.
// It covers only connection establishment. Connection loss after a
// successful bootstrap is fatal to the worker and not retried here
func connectWithRetry(
	address string,
	policy *RetryPolicy,
	logger *slog.Logger,
	metrics *sourceMetrics,
) (net.Conn, error) {
	proto, addr := dialAddress(address)
	dial := func() (net.Conn, error) {
		metrics.recordConnectAttempt()
		return net.Dial(proto, addr)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn(
			fmt.Sprintf("connection to %s failed, retrying in %s", address, next),
			"component", "source",
			"error", err,
		)
	}
	conn, err := backoff.RetryNotifyWithData(dial, retryBackoff(policy), notify)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn, nil
}
