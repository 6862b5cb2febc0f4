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
	"errors"
	"fmt"
	"net"
	"sort"
	"time"
)

// defaultDiscoveryWindow is how long Discover collects I-Am responses.
const defaultDiscoveryWindow = 3 * time.Second

// Discover clears the device registry, broadcasts a Who-Is, and collects
// I-Am responses for the discovery window. Duplicate announcements for the
// same instance id keep the most recently heard address.
func (c *Client) Discover(ctx context.Context, opts ...DiscoverOption) ([]*DeviceInfo, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	options := DiscoverOptions{window: defaultDiscoveryWindow}
	for _, opt := range opts {
		opt(&options)
	}

	c.devicesMu.Lock()
	c.devices = make(map[uint32]*DeviceInfo)
	c.devicesMu.Unlock()

	var payload []byte
	if options.lowLimit != nil && options.highLimit != nil {
		payload = EncodeContextUnsigned(0, *options.lowLimit)
		payload = append(payload, EncodeContextUnsigned(1, *options.highLimit)...)
	}

	if err := c.broadcastUnconfirmed(ctx, ServiceWhoIs, payload); err != nil {
		return nil, fmt.Errorf("broadcast who-is: %w", err)
	}
	c.logger.Debug("who-is broadcast sent", "window", options.window)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(options.window):
	}

	devices := c.Devices()
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ObjectID.Instance < devices[j].ObjectID.Instance
	})
	return devices, nil
}

// TestConnection probes a device address with a targeted ReadProperty of
// the device object-name, using the wildcard instance so the device id need
// not be known. It reports reachability and never returns an error.
func (c *Client) TestConnection(ctx context.Context, hostport string) bool {
	addr, err := net.ResolveUDPAddr("udp4", hostport)
	if err != nil {
		return false
	}

	wildcard := ObjectIdentifier{Type: ObjectTypeDevice, Instance: MaxInstance}
	_, err = c.readPropertyAt(ctx, addr, wildcard, PropertyObjectName, nil)
	if err != nil {
		// A protocol-level error still proves the device is answering.
		var be *BACnetError
		var re *RejectError
		if errors.As(err, &be) || errors.As(err, &re) {
			return true
		}
		c.logger.Debug("connection test failed", "addr", hostport, "err", err)
		return false
	}
	return true
}

// Enumerate reads a device's identity properties and walks its object list,
// profiling every object. Individual object read failures are recorded in
// the profile rather than aborting the walk.
func (c *Client) Enumerate(ctx context.Context, deviceID uint32) (*DeviceProfile, error) {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return nil, err
	}
	info, _ := c.Device(deviceID)
	deviceOID := NewObjectIdentifier(ObjectTypeDevice, deviceID)

	profile := &DeviceProfile{Device: info}

	header := []struct {
		prop PropertyIdentifier
		dest *string
	}{
		{PropertyObjectName, &profile.Name},
		{PropertyVendorName, &profile.VendorName},
		{PropertyModelName, &profile.ModelName},
		{PropertyFirmwareRevision, &profile.Firmware},
		{PropertyDescription, &profile.Description},
	}
	for _, h := range header {
		value, err := c.readPropertyAt(ctx, addr, deviceOID, h.prop, nil)
		if err != nil {
			c.logger.Debug("device header read failed",
				"device", deviceID, "property", h.prop.String(), "err", err)
			continue
		}
		if s, ok := value.(string); ok {
			*h.dest = s
		}
	}

	objects, err := c.objectList(ctx, addr, deviceOID)
	if err != nil {
		return nil, fmt.Errorf("read object list: %w", err)
	}

	for _, oid := range objects {
		if ctx.Err() != nil {
			return profile, ctx.Err()
		}
		if oid.Type == ObjectTypeDevice {
			continue
		}
		profile.Objects = append(profile.Objects, c.profileObject(ctx, addr, oid))
	}

	return profile, nil
}

// objectList reads the device object-list, preferring a whole-array read
// and falling back to index-by-index iteration when the device cannot
// serve it in one response.
func (c *Client) objectList(ctx context.Context, addr *net.UDPAddr, deviceOID ObjectIdentifier) ([]ObjectIdentifier, error) {
	values, err := c.readPropertyList(ctx, addr, deviceOID, PropertyObjectList, nil)
	if err == nil {
		var objects []ObjectIdentifier
		for _, v := range values {
			if oid, ok := v.(ObjectIdentifier); ok {
				objects = append(objects, oid)
			}
		}
		return objects, nil
	}
	c.logger.Debug("whole object-list read failed, falling back to indexed reads", "err", err)

	index := uint32(0)
	countVal, err := c.readPropertyAt(ctx, addr, deviceOID, PropertyObjectList, &index)
	if err != nil {
		return nil, err
	}
	count, ok := countVal.(uint32)
	if !ok {
		return nil, fmt.Errorf("%w: object-list count is %T", ErrInvalidResponse, countVal)
	}

	objects := make([]ObjectIdentifier, 0, count)
	for i := uint32(1); i <= count; i++ {
		idx := i
		value, err := c.readPropertyAt(ctx, addr, deviceOID, PropertyObjectList, &idx)
		if err != nil {
			return nil, fmt.Errorf("read object-list[%d]: %w", i, err)
		}
		if oid, ok := value.(ObjectIdentifier); ok {
			objects = append(objects, oid)
		}
	}
	return objects, nil
}

// profileObject reads the descriptive properties of one object.
func (c *Client) profileObject(ctx context.Context, addr *net.UDPAddr, oid ObjectIdentifier) ObjectProfile {
	obj := ObjectProfile{ObjectID: oid}

	name, err := c.readPropertyAt(ctx, addr, oid, PropertyObjectName, nil)
	if err != nil {
		obj.Err = err
		return obj
	}
	if s, ok := name.(string); ok {
		obj.Name = s
	}

	if desc, err := c.readPropertyAt(ctx, addr, oid, PropertyDescription, nil); err == nil {
		if s, ok := desc.(string); ok {
			obj.Description = s
		}
	}

	if pv, err := c.readPropertyAt(ctx, addr, oid, PropertyPresentValue, nil); err == nil {
		obj.PresentValue = pv
	} else if obj.Err == nil && !IsUnknownProperty(err) {
		obj.Err = err
	}

	if units, err := c.readPropertyAt(ctx, addr, oid, PropertyUnits, nil); err == nil {
		if u, ok := units.(uint32); ok {
			obj.Units = u
		}
	}

	return obj
}
