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

// ReinitializeDevice requests a device state transition: coldstart,
// warmstart, the backup/restore sequence states, or activate-changes.
// password may be empty when the device does not require one.
func (c *Client) ReinitializeDevice(ctx context.Context, deviceID uint32, state ReinitializedState, password string) error {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return err
	}

	payload := EncodeContextEnumerated(0, uint32(state))
	if password != "" {
		payload = append(payload, EncodeContextCharacterString(1, password)...)
	}

	if _, err := c.tx.Request(ctx, addr, ServiceReinitializeDevice, payload); err != nil {
		return fmt.Errorf("reinitialize device (%s): %w", state, err)
	}
	c.logger.Info("device reinitialized", "device", deviceID, "state", state.String())
	return nil
}

// Backup starts the device's configuration backup procedure.
func (c *Client) Backup(ctx context.Context, deviceID uint32, password string) error {
	return c.ReinitializeDevice(ctx, deviceID, ReinitStartBackup, password)
}

// Restore starts the device's configuration restore procedure.
func (c *Client) Restore(ctx context.Context, deviceID uint32, password string) error {
	return c.ReinitializeDevice(ctx, deviceID, ReinitStartRestore, password)
}

// UpdateFirmware activates a staged firmware image on the device. Image
// transfer is the device vendor's tooling; activation goes through
// activate-changes.
func (c *Client) UpdateFirmware(ctx context.Context, deviceID uint32, password string) error {
	return c.ReinitializeDevice(ctx, deviceID, ReinitActivateChanges, password)
}

// DeviceCommunicationControl enables or disables a device's communication,
// optionally for a bounded duration in minutes (0 = indefinite).
func (c *Client) DeviceCommunicationControl(ctx context.Context, deviceID uint32, enable bool, durationMinutes uint16, password string) error {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return err
	}

	state := CommunicationDisable
	if enable {
		state = CommunicationEnable
	}

	var payload []byte
	if durationMinutes > 0 {
		payload = EncodeContextUnsigned(0, uint32(durationMinutes))
	}
	payload = append(payload, EncodeContextEnumerated(1, uint32(state))...)
	if password != "" {
		payload = append(payload, EncodeContextCharacterString(2, password)...)
	}

	if _, err := c.tx.Request(ctx, addr, ServiceDeviceCommunicationControl, payload); err != nil {
		return fmt.Errorf("device communication control: %w", err)
	}
	return nil
}

// SynchronizeTime sends the device an unconfirmed time synchronization with
// the given wall-clock time. utc selects UTC-TimeSynchronization, which
// carries UTC and lets the device apply its own offset.
func (c *Client) SynchronizeTime(ctx context.Context, deviceID uint32, t time.Time, utc bool) error {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return err
	}

	service := ServiceTimeSynchronization
	if utc {
		service = ServiceUTCTimeSynchronization
		t = t.UTC()
	}

	date, tm := DateTimeFromTime(t)
	payload := EncodeApplicationDate(date)
	payload = append(payload, EncodeApplicationTime(tm)...)

	if err := c.sendUnconfirmed(ctx, addr, service, payload); err != nil {
		return fmt.Errorf("time synchronization: %w", err)
	}
	c.logger.Debug("time synchronization sent", "device", deviceID, "utc", utc)
	return nil
}

// CreateObject creates an object on a device and returns the identifier the
// device assigned. initialValues may seed writable properties.
func (c *Client) CreateObject(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, initialValues []PropertyValue) (ObjectIdentifier, error) {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return ObjectIdentifier{}, err
	}

	// Object specifier [0]: choice [1] object identifier.
	payload := EncodeOpeningTag(0)
	payload = append(payload, EncodeContextObjectID(1, objectID)...)
	payload = append(payload, EncodeClosingTag(0)...)

	if len(initialValues) > 0 {
		payload = append(payload, EncodeOpeningTag(1)...)
		for _, pv := range initialValues {
			encoded, err := EncodeApplicationValue(pv.Value)
			if err != nil {
				return ObjectIdentifier{}, fmt.Errorf("encode initial value for %s: %w", pv.PropertyID, err)
			}
			payload = append(payload, EncodeContextUnsigned(0, uint32(pv.PropertyID))...)
			payload = append(payload, EncodeOpeningTag(2)...)
			payload = append(payload, encoded...)
			payload = append(payload, EncodeClosingTag(2)...)
		}
		payload = append(payload, EncodeClosingTag(1)...)
	}

	ack, err := c.tx.Request(ctx, addr, ServiceCreateObject, payload)
	if err != nil {
		return ObjectIdentifier{}, fmt.Errorf("create object: %w", err)
	}

	value, _, err := DecodeApplicationValue(ack)
	if err != nil {
		return ObjectIdentifier{}, fmt.Errorf("decode create object ack: %w", err)
	}
	created, ok := value.(ObjectIdentifier)
	if !ok {
		return ObjectIdentifier{}, fmt.Errorf("%w: create object ack is %T", ErrInvalidResponse, value)
	}
	return created, nil
}

// DeleteObject removes an object from a device. Devices refuse deletion of
// required objects with an object-deletion-not-permitted error.
func (c *Client) DeleteObject(ctx context.Context, deviceID uint32, objectID ObjectIdentifier) error {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return err
	}

	payload := EncodeApplicationObjectID(objectID)
	if _, err := c.tx.Request(ctx, addr, ServiceDeleteObject, payload); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
