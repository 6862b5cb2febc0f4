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
	"time"
)

// DefaultCommandPriority is the priority used for command writes when the
// caller does not override it. 16 is the lowest slot, so operator stations
// and life-safety logic always win.
const DefaultCommandPriority uint8 = 16

// commandProfile describes how the command vocabulary treats one object
// type. Adding a type is a table edit.
type commandProfile struct {
	commandable bool
	resetValue  interface{}
}

var commandTable = map[ObjectType]commandProfile{
	ObjectTypeAnalogOutput:     {commandable: true, resetValue: float32(0)},
	ObjectTypeAnalogValue:      {commandable: true, resetValue: float32(0)},
	ObjectTypeBinaryOutput:     {commandable: true, resetValue: uint32(0)},
	ObjectTypeBinaryValue:      {commandable: true, resetValue: uint32(0)},
	ObjectTypeMultiStateOutput: {commandable: true, resetValue: uint32(1)},
	ObjectTypeMultiStateValue:  {commandable: true, resetValue: uint32(1)},
	ObjectTypeAnalogInput:      {resetValue: float32(0)},
	ObjectTypeBinaryInput:      {resetValue: uint32(0)},
	ObjectTypeMultiStateInput:  {resetValue: uint32(1)},
	ObjectTypeLightingOutput:   {commandable: true, resetValue: float32(0)},
}

// IsCommandable reports whether the command vocabulary treats the object
// type as commandable (priority-array driven).
func IsCommandable(objectType ObjectType) bool {
	return commandTable[objectType].commandable
}

// SetValue writes a value to an object's present-value. Commandable object
// types are written at the command priority (16 unless overridden);
// non-commandable types are written without a priority.
func (c *Client) SetValue(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, value interface{}, opts ...CommandOption) error {
	options := CommandOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var writeOpts []WriteOption
	if prio := commandPriority(objectID.Type, options); prio != nil {
		writeOpts = append(writeOpts, WithPriority(*prio))
	}

	return c.WriteProperty(ctx, deviceID, objectID, PropertyPresentValue, value, writeOpts...)
}

// Enable returns an object to service by writing out-of-service false.
func (c *Client) Enable(ctx context.Context, deviceID uint32, objectID ObjectIdentifier) error {
	return c.WriteProperty(ctx, deviceID, objectID, PropertyOutOfService, false)
}

// Disable takes an object out of service by writing out-of-service true.
// The device then stops updating present-value from the physical input.
func (c *Client) Disable(ctx context.Context, deviceID uint32, objectID ObjectIdentifier) error {
	return c.WriteProperty(ctx, deviceID, objectID, PropertyOutOfService, true)
}

// Reset writes the object type's reset value to present-value at the
// command priority.
func (c *Client) Reset(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, opts ...CommandOption) error {
	profile, ok := commandTable[objectID.Type]
	if !ok {
		return fmt.Errorf("bacnet: no reset value for object type %s", objectID.Type)
	}

	options := CommandOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var writeOpts []WriteOption
	if prio := commandPriority(objectID.Type, options); prio != nil {
		writeOpts = append(writeOpts, WithPriority(*prio))
	}

	return c.WriteProperty(ctx, deviceID, objectID, PropertyPresentValue, profile.resetValue, writeOpts...)
}

// Relinquish releases a priority slot by writing Null to present-value.
func (c *Client) Relinquish(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, priority uint8) error {
	return c.WriteProperty(ctx, deviceID, objectID, PropertyPresentValue, Null{},
		WithPriority(priority))
}

func commandPriority(objectType ObjectType, options CommandOptions) *uint8 {
	if options.priority != nil {
		return options.priority
	}
	if commandTable[objectType].commandable {
		prio := DefaultCommandPriority
		return &prio
	}
	return nil
}

// Acknowledge sends an AcknowledgeAlarm for an object's event transition.
func (c *Client) Acknowledge(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, eventState EventState, source string) error {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return err
	}
	if source == "" {
		source = "gridpoint-bacnet"
	}

	now := time.Now()
	date, tm := DateTimeFromTime(now)

	// Timestamp choice [2]: constructed dateTime.
	timestamp := EncodeOpeningTag(2)
	timestamp = append(timestamp, EncodeApplicationDate(date)...)
	timestamp = append(timestamp, EncodeApplicationTime(tm)...)
	timestamp = append(timestamp, EncodeClosingTag(2)...)

	payload := EncodeContextUnsigned(0, 1) // acknowledging process id
	payload = append(payload, EncodeContextObjectID(1, objectID)...)
	payload = append(payload, EncodeContextEnumerated(2, uint32(eventState))...)
	payload = append(payload, EncodeOpeningTag(3)...)
	payload = append(payload, timestamp...)
	payload = append(payload, EncodeClosingTag(3)...)
	payload = append(payload, EncodeContextCharacterString(4, source)...)
	payload = append(payload, EncodeOpeningTag(5)...)
	payload = append(payload, timestamp...)
	payload = append(payload, EncodeClosingTag(5)...)

	if _, err := c.tx.Request(ctx, addr, ServiceAcknowledgeAlarm, payload); err != nil {
		return fmt.Errorf("acknowledge alarm: %w", err)
	}
	return nil
}

// CanWrite probes whether an object's present-value is writable. It reads
// the priority-array first; objects without one get a write-back probe of
// their current value at the command priority. write-access-denied means
// no; a clean write or a priority-array means yes.
func (c *Client) CanWrite(ctx context.Context, deviceID uint32, objectID ObjectIdentifier) (bool, error) {
	_, err := c.ReadProperty(ctx, deviceID, objectID, PropertyPriorityArray)
	if err == nil {
		return true, nil
	}
	if !IsUnknownProperty(err) {
		if IsWriteAccessDenied(err) {
			return false, nil
		}
		return false, err
	}

	// No priority array: probe by writing the current value back.
	current, err := c.ReadProperty(ctx, deviceID, objectID, PropertyPresentValue)
	if err != nil {
		return false, err
	}
	err = c.WriteProperty(ctx, deviceID, objectID, PropertyPresentValue, current,
		WithPriority(DefaultCommandPriority))
	if err != nil {
		if IsWriteAccessDenied(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
