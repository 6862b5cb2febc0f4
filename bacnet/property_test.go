package bacnet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReadPropertyAckWithArrayIndex(t *testing.T) {
	oid := NewObjectIdentifier(ObjectTypeDevice, 1234)

	payload := EncodeContextObjectID(0, oid)
	payload = append(payload, EncodeContextUnsigned(1, uint32(PropertyObjectList))...)
	payload = append(payload, EncodeContextUnsigned(2, 0)...) // array index 0: count
	payload = append(payload, EncodeOpeningTag(3)...)
	payload = append(payload, EncodeApplicationUnsigned(12)...)
	payload = append(payload, EncodeClosingTag(3)...)

	values, err := decodeReadPropertyAck(payload)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, uint32(12), values[0])
}

func TestDecodeReadPropertyAckMalformed(t *testing.T) {
	oid := NewObjectIdentifier(ObjectTypeAnalogInput, 1)

	valid := EncodeContextObjectID(0, oid)
	valid = append(valid, EncodeContextUnsigned(1, uint32(PropertyPresentValue))...)
	valid = append(valid, EncodeOpeningTag(3)...)
	valid = append(valid, EncodeApplicationReal(1)...)
	valid = append(valid, EncodeClosingTag(3)...)

	// Sanity check the well-formed body first.
	_, err := decodeReadPropertyAck(valid)
	require.NoError(t, err)

	// Missing closing tag.
	_, err = decodeReadPropertyAck(valid[:len(valid)-1])
	assert.ErrorIs(t, err, ErrMalformedAPDU)

	// Missing value constructor entirely.
	noValues := EncodeContextObjectID(0, oid)
	noValues = append(noValues, EncodeContextUnsigned(1, uint32(PropertyPresentValue))...)
	_, err = decodeReadPropertyAck(noValues)
	assert.ErrorIs(t, err, ErrMalformedAPDU)
}

func TestReadPropertyArrayIndexOption(t *testing.T) {
	deviceOID := NewObjectIdentifier(ObjectTypeDevice, 1234)

	device := newFakeDevice(t, func(apdu *APDU) [][]byte {
		if apdu.Type != PDUTypeConfirmedRequest {
			return nil
		}
		// Echo the requested index back as the value.
		_, n, err := decodeContextObjectID(apdu.Payload, 0)
		if err != nil {
			return nil
		}
		rest := apdu.Payload[n:]
		_, n, err = decodeContextUnsigned(rest, 1)
		if err != nil {
			return nil
		}
		index, _, err := decodeContextUnsigned(rest[n:], 2)
		if err != nil {
			return nil
		}
		return [][]byte{readPropertyAckFrame(t, apdu.InvokeID, deviceOID, PropertyObjectList, index)}
	})

	c := newTestClient(t)
	require.NoError(t, c.RegisterDevice(1234, device.addr()))

	value, err := c.ReadProperty(context.Background(), 1234, deviceOID, PropertyObjectList,
		WithArrayIndex(7))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), value)
}

func TestReadPropertyMultipleGroupsByObject(t *testing.T) {
	sensor := NewObjectIdentifier(ObjectTypeAnalogInput, 1)

	device := newFakeDevice(t, func(apdu *APDU) [][]byte {
		if apdu.Type != PDUTypeConfirmedRequest ||
			ConfirmedServiceChoice(apdu.Service) != ServiceReadPropertyMultiple {
			return nil
		}

		// read-access-result for the sensor: present-value ok, units ok,
		// reliability errored.
		payload := EncodeContextObjectID(0, sensor)
		payload = append(payload, EncodeOpeningTag(1)...)

		payload = append(payload, EncodeContextUnsigned(2, uint32(PropertyPresentValue))...)
		payload = append(payload, EncodeOpeningTag(4)...)
		payload = append(payload, EncodeApplicationReal(72.5)...)
		payload = append(payload, EncodeClosingTag(4)...)

		payload = append(payload, EncodeContextUnsigned(2, uint32(PropertyUnits))...)
		payload = append(payload, EncodeOpeningTag(4)...)
		payload = append(payload, EncodeApplicationEnumerated(64)...)
		payload = append(payload, EncodeClosingTag(4)...)

		payload = append(payload, EncodeContextUnsigned(2, uint32(PropertyReliability))...)
		payload = append(payload, EncodeOpeningTag(5)...)
		payload = append(payload, EncodeApplicationEnumerated(uint32(ErrorClassProperty))...)
		payload = append(payload, EncodeApplicationEnumerated(uint32(ErrorCodeUnknownProperty))...)
		payload = append(payload, EncodeClosingTag(5)...)

		payload = append(payload, EncodeClosingTag(1)...)

		raw := append([]byte{byte(PDUTypeComplexAck), apdu.InvokeID, apdu.Service}, payload...)
		return [][]byte{packFrame(raw, false)}
	})

	c := newTestClient(t)
	require.NoError(t, c.RegisterDevice(1234, device.addr()))

	results, err := c.ReadPropertyMultiple(context.Background(), 1234, []ReadPropertyRequest{
		{ObjectID: sensor, PropertyID: PropertyPresentValue},
		{ObjectID: sensor, PropertyID: PropertyUnits},
		{ObjectID: sensor, PropertyID: PropertyReliability},
	})
	require.NoError(t, err)

	// The errored property is omitted.
	require.Len(t, results, 2)
	assert.Equal(t, PropertyPresentValue, results[0].PropertyID)
	assert.Equal(t, float32(72.5), results[0].Value)
	assert.Equal(t, PropertyUnits, results[1].PropertyID)
	assert.Equal(t, uint32(64), results[1].Value)

	// One datagram carried all three properties: consecutive requests for
	// the same object share a read-access-spec.
	requests := device.received()
	require.Len(t, requests, 1)
	_, n, err := decodeContextObjectID(requests[0].Payload, 0)
	require.NoError(t, err)
	assert.True(t, isOpeningTag(requests[0].Payload[n:], 1))
}

func TestObjectListFallbackToIndexedReads(t *testing.T) {
	deviceOID := NewObjectIdentifier(ObjectTypeDevice, 1234)
	members := []ObjectIdentifier{
		NewObjectIdentifier(ObjectTypeAnalogInput, 1),
		NewObjectIdentifier(ObjectTypeAnalogValue, 2),
	}

	device := newFakeDevice(t, func(apdu *APDU) [][]byte {
		if apdu.Type != PDUTypeConfirmedRequest {
			return nil
		}
		_, n, err := decodeContextObjectID(apdu.Payload, 0)
		if err != nil {
			return nil
		}
		rest := apdu.Payload[n:]
		_, n, err = decodeContextUnsigned(rest, 1)
		if err != nil {
			return nil
		}
		rest = rest[n:]

		if len(rest) == 0 {
			// Whole-array read: refuse, forcing the indexed fallback.
			return [][]byte{packFrame([]byte{byte(PDUTypeAbort) | 0x01, apdu.InvokeID, 4}, false)}
		}

		index, _, err := decodeContextUnsigned(rest, 2)
		if err != nil {
			return nil
		}
		if index == 0 {
			return [][]byte{readPropertyAckFrame(t, apdu.InvokeID, deviceOID, PropertyObjectList,
				uint32(len(members)))}
		}
		return [][]byte{readPropertyAckFrame(t, apdu.InvokeID, deviceOID, PropertyObjectList,
			members[index-1])}
	})

	c := newTestClient(t)
	require.NoError(t, c.RegisterDevice(1234, device.addr()))

	addr := udpFromAddress(mustDevice(t, c, 1234).Address)
	objects, err := c.objectList(context.Background(), addr, deviceOID)
	require.NoError(t, err)
	assert.Equal(t, members, objects)
}
