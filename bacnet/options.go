// Copyright 2025 Gridpoint SCADA
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

package bacnet

import (
	"fmt"
	"log/slog"
	"time"
)

// clientOptions holds the client configuration.
type clientOptions struct {
	localAddress string
	timeout      time.Duration
	retries      int
	logger       *slog.Logger

	bbmdAddress string
	bbmdPort    int
	bbmdTTL     time.Duration
}

func defaultOptions() clientOptions {
	return clientOptions{
		localAddress: fmt.Sprintf("0.0.0.0:%d", DefaultPort),
		timeout:      3 * time.Second,
		retries:      3,
		logger:       slog.Default(),
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLocalAddress sets the local address to bind to, e.g. "0.0.0.0:47808".
func WithLocalAddress(addr string) Option {
	return func(o *clientOptions) {
		o.localAddress = addr
	}
}

// WithTimeout sets the per-attempt response timeout for confirmed requests.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries sets the number of retransmissions after the initial send.
func WithRetries(n int) Option {
	return func(o *clientOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithLogger sets the structured logger used by the client.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBBMD registers the client as a foreign device with a BBMD on connect.
func WithBBMD(address string, port int, ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.bbmdAddress = address
		o.bbmdPort = port
		o.bbmdTTL = ttl
	}
}

// DiscoverOptions configures a Discover call.
type DiscoverOptions struct {
	lowLimit  *uint32
	highLimit *uint32
	window    time.Duration
}

// DiscoverOption configures Discover.
type DiscoverOption func(*DiscoverOptions)

// WithInstanceRange limits Who-Is to an instance id range.
func WithInstanceRange(low, high uint32) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.lowLimit = &low
		o.highLimit = &high
	}
}

// WithDiscoveryWindow sets how long to collect I-Am responses.
func WithDiscoveryWindow(d time.Duration) DiscoverOption {
	return func(o *DiscoverOptions) {
		if d > 0 {
			o.window = d
		}
	}
}

// ReadOptions configures a ReadProperty call.
type ReadOptions struct {
	arrayIndex *uint32
}

// ReadOption configures ReadProperty.
type ReadOption func(*ReadOptions)

// WithArrayIndex reads a single array element.
func WithArrayIndex(index uint32) ReadOption {
	return func(o *ReadOptions) {
		o.arrayIndex = &index
	}
}

// WriteOptions configures a WriteProperty call.
type WriteOptions struct {
	priority   *uint8
	arrayIndex *uint32
}

// WriteOption configures WriteProperty.
type WriteOption func(*WriteOptions)

// WithPriority writes at a command priority (1 highest .. 16 lowest).
// Out-of-range values are ignored.
func WithPriority(priority uint8) WriteOption {
	return func(o *WriteOptions) {
		if priority >= 1 && priority <= 16 {
			o.priority = &priority
		}
	}
}

// WithWriteArrayIndex writes a single array element.
func WithWriteArrayIndex(index uint32) WriteOption {
	return func(o *WriteOptions) {
		o.arrayIndex = &index
	}
}

// SubscribeOptions configures a SubscribeCOV call.
type SubscribeOptions struct {
	lifetime  uint32
	confirmed bool
}

// SubscribeOption configures SubscribeCOV.
type SubscribeOption func(*SubscribeOptions)

// WithLifetime sets the subscription lifetime in seconds (0 = indefinite).
func WithLifetime(seconds uint32) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.lifetime = seconds
	}
}

// WithConfirmedNotifications requests confirmed COV notifications. The
// client acknowledges each one with a Simple-Ack automatically.
func WithConfirmedNotifications() SubscribeOption {
	return func(o *SubscribeOptions) {
		o.confirmed = true
	}
}

// CommandOptions configures command-vocabulary calls (SetValue, Reset, ...).
type CommandOptions struct {
	priority *uint8
}

// CommandOption configures a command call.
type CommandOption func(*CommandOptions)

// WithCommandPriority overrides the default command priority 16.
func WithCommandPriority(priority uint8) CommandOption {
	return func(o *CommandOptions) {
		if priority >= 1 && priority <= 16 {
			o.priority = &priority
		}
	}
}
