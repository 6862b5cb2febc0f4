package bacnet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAckDevice Simple-Acks every confirmed request and hands back the
// client for issuing commands against it.
func writeAckDevice(t *testing.T) (*fakeDevice, *Client) {
	t.Helper()
	device := newFakeDevice(t, func(apdu *APDU) [][]byte {
		if apdu.Type != PDUTypeConfirmedRequest {
			return nil
		}
		return [][]byte{simpleAckFrame(apdu.InvokeID, ConfirmedServiceChoice(apdu.Service))}
	})
	c := newTestClient(t)
	require.NoError(t, c.RegisterDevice(1234, device.addr()))
	return device, c
}

func lastWriteRequest(t *testing.T, device *fakeDevice) writeRequest {
	t.Helper()
	requests := device.received()
	require.NotEmpty(t, requests)
	last := requests[len(requests)-1]
	require.Equal(t, ServiceWriteProperty, ConfirmedServiceChoice(last.Service))
	return decodeWriteRequest(t, last.Payload)
}

func TestIsCommandable(t *testing.T) {
	assert.True(t, IsCommandable(ObjectTypeAnalogOutput))
	assert.True(t, IsCommandable(ObjectTypeBinaryValue))
	assert.False(t, IsCommandable(ObjectTypeAnalogInput))
	assert.False(t, IsCommandable(ObjectTypeSchedule))
}

func TestSetValueCommandableDefaultsToPriority16(t *testing.T) {
	device, c := writeAckDevice(t)

	out := NewObjectIdentifier(ObjectTypeAnalogOutput, 1)
	require.NoError(t, c.SetValue(context.Background(), 1234, out, float32(55)))

	req := lastWriteRequest(t, device)
	assert.Equal(t, out, req.ObjectID)
	assert.Equal(t, PropertyPresentValue, req.PropertyID)
	require.NotNil(t, req.Priority)
	assert.Equal(t, uint32(DefaultCommandPriority), *req.Priority)
}

func TestSetValueNonCommandableOmitsPriority(t *testing.T) {
	device, c := writeAckDevice(t)

	in := NewObjectIdentifier(ObjectTypeAnalogInput, 1)
	require.NoError(t, c.SetValue(context.Background(), 1234, in, float32(55)))

	req := lastWriteRequest(t, device)
	assert.Nil(t, req.Priority)
}

func TestSetValuePriorityOverride(t *testing.T) {
	device, c := writeAckDevice(t)

	out := NewObjectIdentifier(ObjectTypeBinaryOutput, 2)
	require.NoError(t, c.SetValue(context.Background(), 1234, out, uint32(1),
		WithCommandPriority(5)))

	req := lastWriteRequest(t, device)
	require.NotNil(t, req.Priority)
	assert.Equal(t, uint32(5), *req.Priority)
}

func TestRelinquishWritesNullAtPriority(t *testing.T) {
	device, c := writeAckDevice(t)

	out := NewObjectIdentifier(ObjectTypeAnalogOutput, 1)
	require.NoError(t, c.Relinquish(context.Background(), 1234, out, 8))

	req := lastWriteRequest(t, device)
	require.Len(t, req.Values, 1)
	assert.Equal(t, Null{}, req.Values[0])
	require.NotNil(t, req.Priority)
	assert.Equal(t, uint32(8), *req.Priority)
}

func TestEnableDisableWriteOutOfService(t *testing.T) {
	device, c := writeAckDevice(t)
	point := NewObjectIdentifier(ObjectTypeBinaryOutput, 3)

	require.NoError(t, c.Disable(context.Background(), 1234, point))
	req := lastWriteRequest(t, device)
	assert.Equal(t, PropertyOutOfService, req.PropertyID)
	require.Len(t, req.Values, 1)
	assert.Equal(t, true, req.Values[0])
	assert.Nil(t, req.Priority)

	require.NoError(t, c.Enable(context.Background(), 1234, point))
	req = lastWriteRequest(t, device)
	assert.Equal(t, PropertyOutOfService, req.PropertyID)
	require.Len(t, req.Values, 1)
	assert.Equal(t, false, req.Values[0])
}

func TestResetWritesTableValue(t *testing.T) {
	device, c := writeAckDevice(t)

	mso := NewObjectIdentifier(ObjectTypeMultiStateOutput, 4)
	require.NoError(t, c.Reset(context.Background(), 1234, mso))

	req := lastWriteRequest(t, device)
	require.Len(t, req.Values, 1)
	assert.Equal(t, uint32(1), req.Values[0], "multi-state resets to state 1")
	require.NotNil(t, req.Priority)
	assert.Equal(t, uint32(DefaultCommandPriority), *req.Priority)
}

func TestResetUnknownObjectType(t *testing.T) {
	_, c := writeAckDevice(t)

	sched := NewObjectIdentifier(ObjectTypeSchedule, 1)
	err := c.Reset(context.Background(), 1234, sched)
	assert.Error(t, err)
}

func TestAcknowledgeEncoding(t *testing.T) {
	device, c := writeAckDevice(t)

	point := NewObjectIdentifier(ObjectTypeAnalogInput, 1)
	require.NoError(t, c.Acknowledge(context.Background(), 1234, point,
		EventStateOffNormal, "operator-7"))

	requests := device.received()
	require.Len(t, requests, 1)
	assert.Equal(t, ServiceAcknowledgeAlarm, ConfirmedServiceChoice(requests[0].Service))

	payload := requests[0].Payload
	pid, n, err := decodeContextUnsigned(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pid)

	oid, n2, err := decodeContextObjectID(payload[n:], 1)
	require.NoError(t, err)
	assert.Equal(t, point, oid)

	state, _, err := decodeContextUnsigned(payload[n+n2:], 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(EventStateOffNormal), state)
}

func TestCanWriteViaPriorityArray(t *testing.T) {
	out := NewObjectIdentifier(ObjectTypeAnalogOutput, 1)

	device := newFakeDevice(t, func(apdu *APDU) [][]byte {
		if apdu.Type != PDUTypeConfirmedRequest {
			return nil
		}
		// Any read succeeds; the priority-array read is all that CanWrite
		// needs here.
		return [][]byte{readPropertyAckFrame(t, apdu.InvokeID, out, PropertyPriorityArray, Null{})}
	})
	c := newTestClient(t)
	require.NoError(t, c.RegisterDevice(1234, device.addr()))

	writable, err := c.CanWrite(context.Background(), 1234, out)
	require.NoError(t, err)
	assert.True(t, writable)
}

func TestCanWriteProbeFallback(t *testing.T) {
	in := NewObjectIdentifier(ObjectTypeAnalogInput, 1)

	device := newFakeDevice(t, func(apdu *APDU) [][]byte {
		if apdu.Type != PDUTypeConfirmedRequest {
			return nil
		}
		switch ConfirmedServiceChoice(apdu.Service) {
		case ServiceReadProperty:
			_, n, err := decodeContextObjectID(apdu.Payload, 0)
			if err != nil {
				return nil
			}
			prop, _, err := decodeContextUnsigned(apdu.Payload[n:], 1)
			if err != nil {
				return nil
			}
			if PropertyIdentifier(prop) == PropertyPriorityArray {
				errBody := append(EncodeApplicationEnumerated(uint32(ErrorClassProperty)),
					EncodeApplicationEnumerated(uint32(ErrorCodeUnknownProperty))...)
				raw := append([]byte{byte(PDUTypeError), apdu.InvokeID, apdu.Service}, errBody...)
				return [][]byte{packFrame(raw, false)}
			}
			return [][]byte{readPropertyAckFrame(t, apdu.InvokeID, in, PropertyPresentValue, float32(72.5))}

		case ServiceWriteProperty:
			// The write-back probe is refused.
			errBody := append(EncodeApplicationEnumerated(uint32(ErrorClassProperty)),
				EncodeApplicationEnumerated(uint32(ErrorCodeWriteAccessDenied))...)
			raw := append([]byte{byte(PDUTypeError), apdu.InvokeID, apdu.Service}, errBody...)
			return [][]byte{packFrame(raw, false)}
		}
		return nil
	})
	c := newTestClient(t)
	require.NoError(t, c.RegisterDevice(1234, device.addr()))

	writable, err := c.CanWrite(context.Background(), 1234, in)
	require.NoError(t, err)
	assert.False(t, writable)
}
