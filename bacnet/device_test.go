package bacnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReinitializeDeviceEncoding(t *testing.T) {
	device, c := writeAckDevice(t)

	err := c.ReinitializeDevice(context.Background(), 1234, ReinitWarmstart, "secret")
	require.NoError(t, err)

	requests := device.received()
	require.Len(t, requests, 1)
	assert.Equal(t, ServiceReinitializeDevice, ConfirmedServiceChoice(requests[0].Service))

	state, n, err := decodeContextUnsigned(requests[0].Payload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(ReinitWarmstart), state)
	assert.True(t, len(requests[0].Payload) > n, "password parameter missing")
}

func TestReinitializeDeviceOmitsEmptyPassword(t *testing.T) {
	device, c := writeAckDevice(t)

	require.NoError(t, c.ReinitializeDevice(context.Background(), 1234, ReinitColdstart, ""))

	requests := device.received()
	require.Len(t, requests, 1)
	_, n, err := decodeContextUnsigned(requests[0].Payload, 0)
	require.NoError(t, err)
	assert.Len(t, requests[0].Payload, n)
}

func TestBackupRestoreFirmwareStates(t *testing.T) {
	device, c := writeAckDevice(t)
	ctx := context.Background()

	require.NoError(t, c.Backup(ctx, 1234, ""))
	require.NoError(t, c.Restore(ctx, 1234, ""))
	require.NoError(t, c.UpdateFirmware(ctx, 1234, ""))

	requests := device.received()
	require.Len(t, requests, 3)

	want := []ReinitializedState{ReinitStartBackup, ReinitStartRestore, ReinitActivateChanges}
	for i, req := range requests {
		assert.Equal(t, ServiceReinitializeDevice, ConfirmedServiceChoice(req.Service))
		state, _, err := decodeContextUnsigned(req.Payload, 0)
		require.NoError(t, err)
		assert.Equal(t, uint32(want[i]), state)
	}
}

func TestDeviceCommunicationControlEncoding(t *testing.T) {
	device, c := writeAckDevice(t)

	require.NoError(t, c.DeviceCommunicationControl(context.Background(), 1234, false, 10, ""))

	requests := device.received()
	require.Len(t, requests, 1)
	assert.Equal(t, ServiceDeviceCommunicationControl, ConfirmedServiceChoice(requests[0].Service))

	duration, n, err := decodeContextUnsigned(requests[0].Payload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), duration)

	state, _, err := decodeContextUnsigned(requests[0].Payload[n:], 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(CommunicationDisable), state)
}

func TestDeviceCommunicationControlEnableIndefinite(t *testing.T) {
	device, c := writeAckDevice(t)

	require.NoError(t, c.DeviceCommunicationControl(context.Background(), 1234, true, 0, ""))

	requests := device.received()
	require.Len(t, requests, 1)
	// No duration parameter: the payload starts at the state.
	state, _, err := decodeContextUnsigned(requests[0].Payload, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(CommunicationEnable), state)
}

func TestSynchronizeTimeEncoding(t *testing.T) {
	device, c := writeAckDevice(t)

	when := time.Date(2026, 8, 25, 14, 30, 15, 0, time.UTC)
	require.NoError(t, c.SynchronizeTime(context.Background(), 1234, when, true))

	var sync *APDU
	require.Eventually(t, func() bool {
		for _, apdu := range device.received() {
			if apdu.Type == PDUTypeUnconfirmedRequest {
				sync = apdu
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, ServiceUTCTimeSynchronization, UnconfirmedServiceChoice(sync.Service))

	dateVal, n, err := DecodeApplicationValue(sync.Payload)
	require.NoError(t, err)
	date, ok := dateVal.(Date)
	require.True(t, ok)
	assert.Equal(t, uint16(2026), date.Year)
	assert.Equal(t, uint8(8), date.Month)
	assert.Equal(t, uint8(25), date.Day)

	timeVal, _, err := DecodeApplicationValue(sync.Payload[n:])
	require.NoError(t, err)
	tm, ok := timeVal.(Time)
	require.True(t, ok)
	assert.Equal(t, uint8(14), tm.Hour)
	assert.Equal(t, uint8(30), tm.Minute)
	assert.Equal(t, uint8(15), tm.Second)
}

func TestCreateObjectReturnsAssignedID(t *testing.T) {
	requested := NewObjectIdentifier(ObjectTypeAnalogValue, 100)
	assigned := NewObjectIdentifier(ObjectTypeAnalogValue, 101)

	device := newFakeDevice(t, func(apdu *APDU) [][]byte {
		if apdu.Type != PDUTypeConfirmedRequest {
			return nil
		}
		ack := append([]byte{byte(PDUTypeComplexAck), apdu.InvokeID, apdu.Service},
			EncodeApplicationObjectID(assigned)...)
		return [][]byte{packFrame(ack, false)}
	})
	c := newTestClient(t)
	require.NoError(t, c.RegisterDevice(1234, device.addr()))

	created, err := c.CreateObject(context.Background(), 1234, requested, []PropertyValue{
		{PropertyID: PropertyObjectName, Value: "Setpoint"},
	})
	require.NoError(t, err)
	assert.Equal(t, assigned, created)

	requests := device.received()
	require.Len(t, requests, 1)
	assert.Equal(t, ServiceCreateObject, ConfirmedServiceChoice(requests[0].Service))

	// Object specifier [0] wraps the context-tagged [1] object id.
	payload := requests[0].Payload
	require.True(t, isOpeningTag(payload, 0))
	oid, _, err := decodeContextObjectID(payload[1:], 1)
	require.NoError(t, err)
	assert.Equal(t, requested, oid)
}

func TestDeleteObjectEncoding(t *testing.T) {
	device, c := writeAckDevice(t)

	target := NewObjectIdentifier(ObjectTypeAnalogValue, 100)
	require.NoError(t, c.DeleteObject(context.Background(), 1234, target))

	requests := device.received()
	require.Len(t, requests, 1)
	assert.Equal(t, ServiceDeleteObject, ConfirmedServiceChoice(requests[0].Service))

	value, _, err := DecodeApplicationValue(requests[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, target, value)
}
