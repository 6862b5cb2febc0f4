package bacnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWhoIsFrame(t *testing.T) {
	// A broadcast Who-Is with no instance range, as captured off the wire.
	frame := []byte{0x81, 0x0B, 0x00, 0x08, 0x01, 0x00, 0x10, 0x08}

	bvlc, npduOffset, err := DecodeBVLC(frame)
	require.NoError(t, err)
	assert.Equal(t, BVLCOriginalBroadcastNPDU, bvlc.Function)
	assert.Equal(t, uint16(8), bvlc.Length)
	assert.Equal(t, 4, npduOffset)

	npdu, apduOffset, err := DecodeNPDU(frame[npduOffset:])
	require.NoError(t, err)
	assert.Equal(t, uint8(1), npdu.Version)
	assert.Equal(t, 2, apduOffset)

	apdu, err := DecodeAPDU(frame[npduOffset+apduOffset:])
	require.NoError(t, err)
	assert.Equal(t, PDUTypeUnconfirmedRequest, apdu.Type)
	assert.Equal(t, ServiceWhoIs, UnconfirmedServiceChoice(apdu.Service))
	assert.Empty(t, apdu.Payload)
}

func TestDecodeBVLCForwarded(t *testing.T) {
	// Forwarded-NPDU carries the originator's 6-byte B/IP address before
	// the NPDU.
	frame := []byte{
		0x81, 0x04, 0x00, 0x0E,
		0x0A, 0x00, 0x00, 0x05, 0xBA, 0xC0, // 10.0.0.5:47808
		0x01, 0x00, 0x10, 0x08,
	}
	bvlc, offset, err := DecodeBVLC(frame)
	require.NoError(t, err)
	assert.Equal(t, BVLCForwardedNPDU, bvlc.Function)
	assert.Equal(t, 10, offset)

	_, _, err = DecodeNPDU(frame[offset:])
	require.NoError(t, err)
}

func TestDecodeBVLCMalformed(t *testing.T) {
	cases := map[string][]byte{
		"short header":     {0x81, 0x0A},
		"wrong type":       {0x55, 0x0A, 0x00, 0x04},
		"length mismatch":  {0x81, 0x0A, 0x00, 0x10, 0x01, 0x00},
		"unknown function": {0x81, 0x99, 0x00, 0x04},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeBVLC(data)
			assert.ErrorIs(t, err, ErrMalformedBVLC)
		})
	}
}

func TestEncodeRegisterForeignDevice(t *testing.T) {
	frame := EncodeRegisterForeignDevice(300)
	assert.Equal(t, []byte{0x81, 0x05, 0x00, 0x06, 0x01, 0x2C}, frame)
}

func TestNPDURoutedDestination(t *testing.T) {
	dest := Address{Net: 2000, Addr: []byte{0x0A, 0x00, 0x00, 0x07, 0xBA, 0xC0}}
	buf := EncodeNPDUWithDest(dest, true)
	buf = append(buf, 0x10, 0x08) // who-is APDU

	npdu, offset, err := DecodeNPDU(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(2000), npdu.DestNet)
	assert.Equal(t, dest.Addr, npdu.DestAddr)
	assert.Equal(t, uint8(0xFF), npdu.HopCount)
	assert.True(t, npdu.Control&NPDUControlExpectingReply != 0)
	assert.Equal(t, byte(0x10), buf[offset])
}

func TestDecodeNPDURejectsNetworkLayerMessage(t *testing.T) {
	_, _, err := DecodeNPDU([]byte{0x01, byte(NPDUControlNetworkLayerMessage), 0x00})
	assert.ErrorIs(t, err, ErrMalformedNPDU)
}

func TestEncodeConfirmedRequestHeader(t *testing.T) {
	apdu := EncodeConfirmedRequest(42, ServiceReadProperty, []byte{0x0C})
	assert.Equal(t, []byte{0x00, 0x05, 42, 0x0C, 0x0C}, apdu)

	decoded, err := DecodeAPDU(apdu)
	require.NoError(t, err)
	assert.Equal(t, PDUTypeConfirmedRequest, decoded.Type)
	assert.Equal(t, uint8(42), decoded.InvokeID)
	assert.Equal(t, ServiceReadProperty, ConfirmedServiceChoice(decoded.Service))
	assert.Equal(t, []byte{0x0C}, decoded.Payload)
}

func TestDecodeSimpleAck(t *testing.T) {
	apdu, err := DecodeAPDU(EncodeSimpleAck(7, ServiceWriteProperty))
	require.NoError(t, err)
	assert.Equal(t, PDUTypeSimpleAck, apdu.Type)
	assert.Equal(t, uint8(7), apdu.InvokeID)
	assert.Equal(t, ServiceWriteProperty, ConfirmedServiceChoice(apdu.Service))
}

func TestDecodeComplexAck(t *testing.T) {
	payload := []byte{0x44, 0x42, 0x91, 0x00, 0x00}
	raw := append([]byte{byte(PDUTypeComplexAck), 9, byte(ServiceReadProperty)}, payload...)

	apdu, err := DecodeAPDU(raw)
	require.NoError(t, err)
	assert.Equal(t, PDUTypeComplexAck, apdu.Type)
	assert.False(t, apdu.Segmented)
	assert.Equal(t, uint8(9), apdu.InvokeID)
	assert.Equal(t, payload, apdu.Payload)
}

func TestDecodeSegmentedComplexAck(t *testing.T) {
	// Segmented (0x08) with more-follows (0x04), seq 2, window 4.
	raw := []byte{byte(PDUTypeComplexAck) | 0x08 | 0x04, 9, 2, 4, byte(ServiceReadProperty), 0xAA, 0xBB}

	apdu, err := DecodeAPDU(raw)
	require.NoError(t, err)
	assert.True(t, apdu.Segmented)
	assert.True(t, apdu.MoreFollows)
	assert.Equal(t, uint8(2), apdu.SequenceNumber)
	assert.Equal(t, uint8(4), apdu.WindowSize)
	assert.Equal(t, []byte{0xAA, 0xBB}, apdu.Payload)
}

func TestEncodeSegmentAck(t *testing.T) {
	ack := EncodeSegmentAck(9, 2, 4, false)
	assert.Equal(t, []byte{0x40, 9, 2, 4}, ack)

	nak := EncodeSegmentAck(9, 2, 4, true)
	assert.Equal(t, []byte{0x42, 9, 2, 4}, nak)

	apdu, err := DecodeAPDU(nak)
	require.NoError(t, err)
	assert.Equal(t, PDUTypeSegmentAck, apdu.Type)
	assert.True(t, apdu.NegativeAck)
	assert.Equal(t, uint8(2), apdu.SequenceNumber)
}

func TestDecodeRejectAndAbort(t *testing.T) {
	apdu, err := DecodeAPDU([]byte{byte(PDUTypeReject), 5, 9})
	require.NoError(t, err)
	assert.Equal(t, PDUTypeReject, apdu.Type)
	assert.Equal(t, uint8(5), apdu.InvokeID)
	assert.Equal(t, uint8(9), apdu.Reason)

	apdu, err = DecodeAPDU([]byte{byte(PDUTypeAbort) | 0x01, 5, 4})
	require.NoError(t, err)
	assert.Equal(t, PDUTypeAbort, apdu.Type)
	assert.True(t, apdu.FromServer)
	assert.Equal(t, uint8(4), apdu.Reason)
}

func TestDecodeAPDUMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":             {},
		"unknown type":      {0x90, 0x00},
		"short confirmed":   {0x00, 0x05, 0x01},
		"short complex ack": {0x30, 0x01},
		"short reject":      {0x60, 0x01},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAPDU(data)
			assert.ErrorIs(t, err, ErrMalformedAPDU)
		})
	}
}

func TestDecodeErrorPayload(t *testing.T) {
	// Plain enumerated class + code pair.
	payload := append(EncodeApplicationEnumerated(uint32(ErrorClassObject)),
		EncodeApplicationEnumerated(uint32(ErrorCodeUnknownObject))...)

	class, code, err := decodeErrorPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, ErrorClassObject, class)
	assert.Equal(t, ErrorCodeUnknownObject, code)

	// Same pair wrapped in a constructed [0] tag, as some stacks send it.
	wrapped := append(EncodeOpeningTag(0), payload...)
	wrapped = append(wrapped, EncodeClosingTag(0)...)

	class, code, err = decodeErrorPayload(wrapped)
	require.NoError(t, err)
	assert.Equal(t, ErrorClassObject, class)
	assert.Equal(t, ErrorCodeUnknownObject, code)
}

func TestPackFrameRoundTrip(t *testing.T) {
	apdu := EncodeConfirmedRequest(3, ServiceReadProperty, []byte{0x01, 0x02})
	frame := packFrame(apdu, true)

	bvlc, npduOffset, err := DecodeBVLC(frame)
	require.NoError(t, err)
	assert.Equal(t, BVLCOriginalUnicastNPDU, bvlc.Function)

	npdu, apduOffset, err := DecodeNPDU(frame[npduOffset:])
	require.NoError(t, err)
	assert.True(t, npdu.Control&NPDUControlExpectingReply != 0)

	decoded, err := DecodeAPDU(frame[npduOffset+apduOffset:])
	require.NoError(t, err)
	assert.Equal(t, apdu, append([]byte{byte(decoded.Type), maxAPDUOctet, decoded.InvokeID, decoded.Service}, decoded.Payload...))
}

func TestPackBroadcastFrame(t *testing.T) {
	apdu := EncodeUnconfirmedRequest(ServiceWhoIs, nil)
	frame := packBroadcastFrame(apdu)

	bvlc, _, err := DecodeBVLC(frame)
	require.NoError(t, err)
	assert.Equal(t, BVLCOriginalBroadcastNPDU, bvlc.Function)
	assert.Equal(t, frame[:len(frame)-len(apdu)], []byte{0x81, 0x0B, 0x00, byte(len(frame)), 0x01, 0x00})
}
