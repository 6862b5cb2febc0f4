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
)

// ReadProperty reads one property from an object on a device. When the
// property is an array or list with multiple elements, the result is an
// []interface{}.
func (c *Client) ReadProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, opts ...ReadOption) (interface{}, error) {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return nil, err
	}

	options := ReadOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return c.readPropertyAt(ctx, addr, objectID, propertyID, options.arrayIndex)
}

// readPropertyAt reads a property from an explicit address, bypassing the
// device registry.
func (c *Client) readPropertyAt(ctx context.Context, addr *net.UDPAddr, objectID ObjectIdentifier, propertyID PropertyIdentifier, arrayIndex *uint32) (interface{}, error) {
	payload := encodeReadPropertyRequest(objectID, propertyID, arrayIndex)

	ack, err := c.tx.Request(ctx, addr, ServiceReadProperty, payload)
	if err != nil {
		return nil, err
	}

	values, err := decodeReadPropertyAck(ack)
	if err != nil {
		return nil, err
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

// readPropertyList reads a property and always returns the full value list,
// used for object-list and priority-array reads.
func (c *Client) readPropertyList(ctx context.Context, addr *net.UDPAddr, objectID ObjectIdentifier, propertyID PropertyIdentifier, arrayIndex *uint32) ([]interface{}, error) {
	payload := encodeReadPropertyRequest(objectID, propertyID, arrayIndex)

	ack, err := c.tx.Request(ctx, addr, ServiceReadProperty, payload)
	if err != nil {
		return nil, err
	}
	return decodeReadPropertyAck(ack)
}

func encodeReadPropertyRequest(objectID ObjectIdentifier, propertyID PropertyIdentifier, arrayIndex *uint32) []byte {
	payload := EncodeContextObjectID(0, objectID)
	payload = append(payload, EncodeContextUnsigned(1, uint32(propertyID))...)
	if arrayIndex != nil {
		payload = append(payload, EncodeContextUnsigned(2, *arrayIndex)...)
	}
	return payload
}

// decodeReadPropertyAck extracts the value list from a ReadProperty
// Complex-Ack payload.
func decodeReadPropertyAck(payload []byte) ([]interface{}, error) {
	_, n, err := decodeContextObjectID(payload, 0)
	if err != nil {
		return nil, err
	}
	rest := payload[n:]

	_, n, err = decodeContextUnsigned(rest, 1)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]

	// Optional array index.
	if len(rest) > 0 && !isOpeningTag(rest, 3) {
		_, n, err = decodeContextUnsigned(rest, 2)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]
	}

	if !isOpeningTag(rest, 3) {
		return nil, fmt.Errorf("%w: missing value constructor", ErrMalformedAPDU)
	}
	rest = rest[1:]

	var values []interface{}
	for len(rest) > 0 && !isClosingTag(rest, 3) {
		value, n, err := DecodeApplicationValue(rest)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
		rest = rest[n:]
	}
	if !isClosingTag(rest, 3) {
		return nil, fmt.Errorf("%w: unterminated value constructor", ErrMalformedAPDU)
	}

	return values, nil
}

// WriteProperty writes one property on an object. A nil or Null value
// relinquishes the addressed priority slot on commandable properties.
func (c *Client) WriteProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, value interface{}, opts ...WriteOption) error {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return err
	}

	options := WriteOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return c.writePropertyAt(ctx, addr, objectID, propertyID, value, options)
}

func (c *Client) writePropertyAt(ctx context.Context, addr *net.UDPAddr, objectID ObjectIdentifier, propertyID PropertyIdentifier, value interface{}, options WriteOptions) error {
	encoded, err := EncodeApplicationValue(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}

	payload := EncodeContextObjectID(0, objectID)
	payload = append(payload, EncodeContextUnsigned(1, uint32(propertyID))...)
	if options.arrayIndex != nil {
		payload = append(payload, EncodeContextUnsigned(2, *options.arrayIndex)...)
	}
	payload = append(payload, EncodeOpeningTag(3)...)
	payload = append(payload, encoded...)
	payload = append(payload, EncodeClosingTag(3)...)
	if options.priority != nil {
		payload = append(payload, EncodeContextUnsigned(4, uint32(*options.priority))...)
	}

	_, err = c.tx.Request(ctx, addr, ServiceWriteProperty, payload)
	return err
}

// ReadPropertyMultiple reads several properties, possibly across objects,
// in one request. Properties the device reports errors for are omitted from
// the result.
func (c *Client) ReadPropertyMultiple(ctx context.Context, deviceID uint32, requests []ReadPropertyRequest) ([]PropertyValue, error) {
	addr, err := c.resolveDevice(deviceID)
	if err != nil {
		return nil, err
	}

	// Group consecutive requests by object.
	var payload []byte
	i := 0
	for i < len(requests) {
		oid := requests[i].ObjectID
		payload = append(payload, EncodeContextObjectID(0, oid)...)
		payload = append(payload, EncodeOpeningTag(1)...)
		for i < len(requests) && requests[i].ObjectID == oid {
			payload = append(payload, EncodeContextUnsigned(0, uint32(requests[i].PropertyID))...)
			if requests[i].ArrayIndex != nil {
				payload = append(payload, EncodeContextUnsigned(1, *requests[i].ArrayIndex)...)
			}
			i++
		}
		payload = append(payload, EncodeClosingTag(1)...)
	}

	ack, err := c.tx.Request(ctx, addr, ServiceReadPropertyMultiple, payload)
	if err != nil {
		return nil, err
	}

	return decodeReadPropertyMultipleAck(ack)
}

// decodeReadPropertyMultipleAck walks the list-of-read-access-results
// structure. Per-property error constructors ([5]) are skipped.
func decodeReadPropertyMultipleAck(payload []byte) ([]PropertyValue, error) {
	var results []PropertyValue
	rest := payload

	for len(rest) > 0 {
		oid, n, err := decodeContextObjectID(rest, 0)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]

		if !isOpeningTag(rest, 1) {
			return nil, fmt.Errorf("%w: missing list-of-results constructor", ErrMalformedAPDU)
		}
		rest = rest[1:]

		for len(rest) > 0 && !isClosingTag(rest, 1) {
			propVal, n, err := decodeContextUnsigned(rest, 2)
			if err != nil {
				return nil, err
			}
			rest = rest[n:]

			var arrayIndex *uint32
			if len(rest) > 0 && !isOpeningTag(rest, 4) && !isOpeningTag(rest, 5) {
				idx, n, err := decodeContextUnsigned(rest, 3)
				if err == nil {
					arrayIndex = &idx
					rest = rest[n:]
				}
			}

			switch {
			case isOpeningTag(rest, 4):
				rest = rest[1:]
				var values []interface{}
				for len(rest) > 0 && !isClosingTag(rest, 4) {
					value, n, err := DecodeApplicationValue(rest)
					if err != nil {
						return nil, err
					}
					values = append(values, value)
					rest = rest[n:]
				}
				if !isClosingTag(rest, 4) {
					return nil, fmt.Errorf("%w: unterminated property value", ErrMalformedAPDU)
				}
				rest = rest[1:]

				var value interface{}
				if len(values) == 1 {
					value = values[0]
				} else {
					value = values
				}
				results = append(results, PropertyValue{
					ObjectID:   oid,
					PropertyID: PropertyIdentifier(propVal),
					ArrayIndex: arrayIndex,
					Value:      value,
				})

			case isOpeningTag(rest, 5):
				// Property access error: skip the class/code pair.
				rest = rest[1:]
				for len(rest) > 0 && !isClosingTag(rest, 5) {
					_, n, err := DecodeApplicationValue(rest)
					if err != nil {
						return nil, err
					}
					rest = rest[n:]
				}
				if !isClosingTag(rest, 5) {
					return nil, fmt.Errorf("%w: unterminated property error", ErrMalformedAPDU)
				}
				rest = rest[1:]

			default:
				return nil, fmt.Errorf("%w: unexpected tag in read results", ErrMalformedAPDU)
			}
		}
		if !isClosingTag(rest, 1) {
			return nil, fmt.Errorf("%w: unterminated list of results", ErrMalformedAPDU)
		}
		rest = rest[1:]
	}

	return results, nil
}
