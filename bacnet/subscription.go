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
	"context"
	"fmt"
	"net"
	"time"
)

// COVHandler receives change-of-value notifications for one subscription.
// Handlers run on the receive goroutine and must not block.
type COVHandler func(event COVEvent)

// covSubscription pairs a tracked subscription with its handler.
type covSubscription struct {
	Subscription
	handler COVHandler
}

// SubscribeCOV subscribes to change-of-value notifications for an object.
// The returned Subscription carries the process id needed to unsubscribe.
func (c *Client) SubscribeCOV(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, handler COVHandler, opts ...SubscribeOption) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("bacnet: nil COV handler")
	}
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return nil, err
	}

	options := SubscribeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	processID := c.nextProcessID.Add(1)

	payload := EncodeContextUnsigned(0, processID)
	payload = append(payload, EncodeContextObjectID(1, objectID)...)
	payload = append(payload, EncodeContextBoolean(2, options.confirmed)...)
	payload = append(payload, EncodeContextUnsigned(3, options.lifetime)...)

	if _, err := c.tx.Request(ctx, addr, ServiceSubscribeCOV, payload); err != nil {
		return nil, fmt.Errorf("subscribe cov: %w", err)
	}

	sub := &covSubscription{
		Subscription: Subscription{
			ProcessID: processID,
			DeviceID:  deviceID,
			ObjectID:  objectID,
			Lifetime:  options.lifetime,
			Confirmed: options.confirmed,
			CreatedAt: time.Now(),
		},
		handler: handler,
	}

	c.subsMu.Lock()
	c.subs[processID] = sub
	c.subsMu.Unlock()
	c.metrics.ActiveSubscriptions.Inc()

	c.logger.Debug("cov subscription established",
		"device", deviceID, "object", objectID.String(), "process_id", processID)

	result := sub.Subscription
	return &result, nil
}

// UnsubscribeCOV cancels a COV subscription. The cancellation request omits
// the issue-confirmed and lifetime parameters, which is the standard
// cancellation form. The local entry is removed even when the device does
// not acknowledge.
func (c *Client) UnsubscribeCOV(ctx context.Context, sub *Subscription) error {
	c.subsMu.Lock()
	delete(c.subs, sub.ProcessID)
	c.subsMu.Unlock()
	c.metrics.ActiveSubscriptions.Dec()

	addr, err := c.resolveDevice(sub.DeviceID)
	if err != nil {
		return err
	}

	payload := EncodeContextUnsigned(0, sub.ProcessID)
	payload = append(payload, EncodeContextObjectID(1, sub.ObjectID)...)

	if _, err := c.tx.Request(ctx, addr, ServiceSubscribeCOV, payload); err != nil {
		return fmt.Errorf("unsubscribe cov: %w", err)
	}
	return nil
}

// Subscriptions returns a snapshot of the live subscriptions.
func (c *Client) Subscriptions() []Subscription {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	out := make([]Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		out = append(out, sub.Subscription)
	}
	return out
}

// unsubscribeAll cancels every live subscription best-effort during Close.
func (c *Client) unsubscribeAll() {
	subs := c.Subscriptions()
	if len(subs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.timeout)
	defer cancel()
	for i := range subs {
		if err := c.UnsubscribeCOV(ctx, &subs[i]); err != nil {
			c.logger.Debug("unsubscribe on close failed",
				"process_id", subs[i].ProcessID, "err", err)
		}
	}
}

// handleCOVNotification decodes a COV notification body and dispatches it
// to the matching subscription. Notifications with no matching (device,
// object, process id) triple are dropped.
func (c *Client) handleCOVNotification(payload []byte, from *net.UDPAddr) {
	event, err := decodeCOVNotification(payload)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.logger.Debug("malformed cov notification", "from", from.String(), "err", err)
		return
	}

	c.subsMu.RLock()
	sub, ok := c.subs[event.ProcessID]
	c.subsMu.RUnlock()

	if !ok || sub.DeviceID != event.DeviceID || sub.ObjectID != event.ObjectID {
		c.metrics.COVDropped.Inc()
		c.logger.Debug("unmatched cov notification",
			"process_id", event.ProcessID, "device", event.DeviceID,
			"object", event.ObjectID.String(), "from", from.String())
		return
	}

	c.metrics.COVNotifications.Inc()
	sub.handler(*event)
}

// decodeCOVNotification parses a COVNotification service body.
func decodeCOVNotification(payload []byte) (*COVEvent, error) {
	processID, n, err := decodeContextUnsigned(payload, 0)
	if err != nil {
		return nil, err
	}
	rest := payload[n:]

	deviceOID, n, err := decodeContextObjectID(rest, 1)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]

	objectOID, n, err := decodeContextObjectID(rest, 2)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]

	timeRemaining, n, err := decodeContextUnsigned(rest, 3)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]

	if !isOpeningTag(rest, 4) {
		return nil, fmt.Errorf("%w: missing list of values", ErrMalformedAPDU)
	}
	rest = rest[1:]

	event := &COVEvent{
		ProcessID:     processID,
		DeviceID:      deviceOID.Instance,
		ObjectID:      objectOID,
		TimeRemaining: timeRemaining,
	}

	for len(rest) > 0 && !isClosingTag(rest, 4) {
		propID, n, err := decodeContextUnsigned(rest, 0)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]

		var arrayIndex *uint32
		if len(rest) > 0 && !isOpeningTag(rest, 2) {
			idx, n, err := decodeContextUnsigned(rest, 1)
			if err == nil {
				arrayIndex = &idx
				rest = rest[n:]
			}
		}

		if !isOpeningTag(rest, 2) {
			return nil, fmt.Errorf("%w: missing property value constructor", ErrMalformedAPDU)
		}
		rest = rest[1:]

		var values []interface{}
		for len(rest) > 0 && !isClosingTag(rest, 2) {
			value, n, err := DecodeApplicationValue(rest)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
			rest = rest[n:]
		}
		if !isClosingTag(rest, 2) {
			return nil, fmt.Errorf("%w: unterminated property value", ErrMalformedAPDU)
		}
		rest = rest[1:]

		var value interface{}
		if len(values) == 1 {
			value = values[0]
		} else {
			value = values
		}
		event.Values = append(event.Values, PropertyValue{
			ObjectID:   objectOID,
			PropertyID: PropertyIdentifier(propID),
			ArrayIndex: arrayIndex,
			Value:      value,
		})
	}
	if !isClosingTag(rest, 4) {
		return nil, fmt.Errorf("%w: unterminated list of values", ErrMalformedAPDU)
	}

	return event, nil
}
