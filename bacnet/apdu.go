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
	"encoding/binary"
	"fmt"
)

// maxAPDUOctet encodes max-APDU-length-accepted 1476 in confirmed request
// headers.
const maxAPDUOctet = 0x05

// BVLC is a decoded BACnet Virtual Link Control header.
type BVLC struct {
	Type     BVLCType
	Function BVLCFunction
	Length   uint16
}

// EncodeBVLC builds a BVLC header for a payload of the given length.
func EncodeBVLC(function BVLCFunction, payloadLen int) []byte {
	total := uint16(4 + payloadLen)
	return []byte{byte(BVLCTypeBACnetIP), byte(function), byte(total >> 8), byte(total)}
}

// DecodeBVLC decodes a BVLC header, returning the header and the offset of
// the NPDU within data. Forwarded-NPDU frames carry the originating address
// in a 6-byte block that is skipped here.
func DecodeBVLC(data []byte) (*BVLC, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: short BVLC header", ErrMalformedBVLC)
	}
	if data[0] != byte(BVLCTypeBACnetIP) {
		return nil, 0, fmt.Errorf("%w: unexpected type 0x%02x", ErrMalformedBVLC, data[0])
	}

	bvlc := &BVLC{
		Type:     BVLCType(data[0]),
		Function: BVLCFunction(data[1]),
		Length:   binary.BigEndian.Uint16(data[2:4]),
	}
	if int(bvlc.Length) != len(data) {
		return nil, 0, fmt.Errorf("%w: length field %d, datagram %d", ErrMalformedBVLC, bvlc.Length, len(data))
	}

	offset := 4
	switch bvlc.Function {
	case BVLCOriginalUnicastNPDU, BVLCOriginalBroadcastNPDU:
	case BVLCForwardedNPDU:
		// 6-byte B/IP originating address precedes the NPDU.
		if len(data) < 10 {
			return nil, 0, fmt.Errorf("%w: short forwarded-NPDU", ErrMalformedBVLC)
		}
		offset = 10
	default:
		return nil, 0, fmt.Errorf("%w: unsupported function 0x%02x", ErrMalformedBVLC, data[1])
	}

	return bvlc, offset, nil
}

// EncodeRegisterForeignDevice builds the full Register-Foreign-Device frame.
func EncodeRegisterForeignDevice(ttlSeconds uint16) []byte {
	return []byte{
		byte(BVLCTypeBACnetIP), byte(BVLCRegisterForeignDevice),
		0x00, 0x06,
		byte(ttlSeconds >> 8), byte(ttlSeconds),
	}
}

// NPDU is a decoded network-layer header.
type NPDU struct {
	Version    uint8
	Control    NPDUControl
	DestNet    uint16
	DestAddr   []byte
	SourceNet  uint16
	SourceAddr []byte
	HopCount   uint8
}

// EncodeNPDU builds a local-network NPDU header.
func EncodeNPDU(expectingReply bool) []byte {
	control := NPDUControl(0)
	if expectingReply {
		control |= NPDUControlExpectingReply
	}
	return []byte{0x01, byte(control)}
}

// EncodeNPDUWithDest builds an NPDU header routed to a remote network.
func EncodeNPDUWithDest(dest Address, expectingReply bool) []byte {
	control := NPDUControlDestSpecifier
	if expectingReply {
		control |= NPDUControlExpectingReply
	}
	buf := []byte{0x01, byte(control), byte(dest.Net >> 8), byte(dest.Net), byte(len(dest.Addr))}
	buf = append(buf, dest.Addr...)
	buf = append(buf, 0xFF) // hop count
	return buf
}

// DecodeNPDU decodes a network-layer header, returning the header and the
// offset of the APDU within data.
func DecodeNPDU(data []byte) (*NPDU, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("%w: short NPDU", ErrMalformedNPDU)
	}
	if data[0] != 0x01 {
		return nil, 0, fmt.Errorf("%w: version 0x%02x", ErrMalformedNPDU, data[0])
	}

	npdu := &NPDU{Version: data[0], Control: NPDUControl(data[1])}
	offset := 2

	if npdu.Control&NPDUControlDestSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, 0, fmt.Errorf("%w: truncated destination", ErrMalformedNPDU)
		}
		npdu.DestNet = binary.BigEndian.Uint16(data[offset:])
		dlen := int(data[offset+2])
		offset += 3
		if len(data) < offset+dlen {
			return nil, 0, fmt.Errorf("%w: truncated destination address", ErrMalformedNPDU)
		}
		npdu.DestAddr = data[offset : offset+dlen]
		offset += dlen
	}

	if npdu.Control&NPDUControlSourceSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, 0, fmt.Errorf("%w: truncated source", ErrMalformedNPDU)
		}
		npdu.SourceNet = binary.BigEndian.Uint16(data[offset:])
		slen := int(data[offset+2])
		offset += 3
		if len(data) < offset+slen {
			return nil, 0, fmt.Errorf("%w: truncated source address", ErrMalformedNPDU)
		}
		npdu.SourceAddr = data[offset : offset+slen]
		offset += slen
	}

	if npdu.Control&NPDUControlDestSpecifier != 0 {
		if len(data) < offset+1 {
			return nil, 0, fmt.Errorf("%w: missing hop count", ErrMalformedNPDU)
		}
		npdu.HopCount = data[offset]
		offset++
	}

	if npdu.Control&NPDUControlNetworkLayerMessage != 0 {
		return nil, 0, fmt.Errorf("%w: network layer message", ErrMalformedNPDU)
	}

	return npdu, offset, nil
}

// APDU is a decoded application-layer PDU. Service holds the confirmed or
// unconfirmed service choice for the request/ack variants; Payload is the
// service-specific body.
type APDU struct {
	Type     PDUType
	InvokeID uint8
	Service  uint8
	Payload  []byte

	// Segmentation fields, valid for segmented confirmed requests and
	// complex acks, and for segment acks.
	Segmented      bool
	MoreFollows    bool
	SequenceNumber uint8
	WindowSize     uint8

	// Segment-Ack flags.
	NegativeAck bool
	FromServer  bool

	// Reject / Abort reason.
	Reason uint8
}

// EncodeConfirmedRequest builds an unsegmented confirmed request APDU.
func EncodeConfirmedRequest(invokeID uint8, service ConfirmedServiceChoice, payload []byte) []byte {
	buf := []byte{byte(PDUTypeConfirmedRequest), maxAPDUOctet, invokeID, byte(service)}
	return append(buf, payload...)
}

// EncodeUnconfirmedRequest builds an unconfirmed request APDU.
func EncodeUnconfirmedRequest(service UnconfirmedServiceChoice, payload []byte) []byte {
	buf := []byte{byte(PDUTypeUnconfirmedRequest), byte(service)}
	return append(buf, payload...)
}

// EncodeSimpleAck builds a Simple-Ack APDU, used to answer confirmed COV
// notifications.
func EncodeSimpleAck(invokeID uint8, service ConfirmedServiceChoice) []byte {
	return []byte{byte(PDUTypeSimpleAck), invokeID, byte(service)}
}

// EncodeSegmentAck builds a Segment-Ack APDU acknowledging sequenceNumber.
func EncodeSegmentAck(invokeID, sequenceNumber, windowSize uint8, negative bool) []byte {
	first := byte(PDUTypeSegmentAck)
	if negative {
		first |= 0x02
	}
	return []byte{first, invokeID, sequenceNumber, windowSize}
}

// DecodeAPDU decodes an application-layer PDU.
func DecodeAPDU(data []byte) (*APDU, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty APDU", ErrMalformedAPDU)
	}

	apdu := &APDU{Type: PDUType(data[0] & 0xF0)}

	switch apdu.Type {
	case PDUTypeConfirmedRequest:
		// Segmented flag 0x08, more-follows 0x04, segmented-response-accepted 0x02.
		apdu.Segmented = data[0]&0x08 != 0
		apdu.MoreFollows = data[0]&0x04 != 0
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: short confirmed request", ErrMalformedAPDU)
		}
		apdu.InvokeID = data[2]
		offset := 3
		if apdu.Segmented {
			if len(data) < 6 {
				return nil, fmt.Errorf("%w: short segmented request", ErrMalformedAPDU)
			}
			apdu.SequenceNumber = data[3]
			apdu.WindowSize = data[4]
			offset = 5
		}
		apdu.Service = data[offset]
		apdu.Payload = data[offset+1:]

	case PDUTypeUnconfirmedRequest:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: short unconfirmed request", ErrMalformedAPDU)
		}
		apdu.Service = data[1]
		apdu.Payload = data[2:]

	case PDUTypeSimpleAck:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: short simple ack", ErrMalformedAPDU)
		}
		apdu.InvokeID = data[1]
		apdu.Service = data[2]

	case PDUTypeComplexAck:
		apdu.Segmented = data[0]&0x08 != 0
		apdu.MoreFollows = data[0]&0x04 != 0
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: short complex ack", ErrMalformedAPDU)
		}
		apdu.InvokeID = data[1]
		offset := 2
		if apdu.Segmented {
			if len(data) < 5 {
				return nil, fmt.Errorf("%w: short segmented ack", ErrMalformedAPDU)
			}
			apdu.SequenceNumber = data[2]
			apdu.WindowSize = data[3]
			offset = 4
		}
		apdu.Service = data[offset]
		apdu.Payload = data[offset+1:]

	case PDUTypeSegmentAck:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: short segment ack", ErrMalformedAPDU)
		}
		apdu.NegativeAck = data[0]&0x02 != 0
		apdu.FromServer = data[0]&0x01 != 0
		apdu.InvokeID = data[1]
		apdu.SequenceNumber = data[2]
		apdu.WindowSize = data[3]

	case PDUTypeError:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: short error PDU", ErrMalformedAPDU)
		}
		apdu.InvokeID = data[1]
		apdu.Service = data[2]
		apdu.Payload = data[3:]

	case PDUTypeReject:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: short reject PDU", ErrMalformedAPDU)
		}
		apdu.InvokeID = data[1]
		apdu.Reason = data[2]

	case PDUTypeAbort:
		if len(data) < 3 {
			return nil, fmt.Errorf("%w: short abort PDU", ErrMalformedAPDU)
		}
		apdu.FromServer = data[0]&0x01 != 0
		apdu.InvokeID = data[1]
		apdu.Reason = data[2]

	default:
		return nil, fmt.Errorf("%w: unknown PDU type 0x%02x", ErrMalformedAPDU, data[0])
	}

	return apdu, nil
}

// decodeErrorPayload extracts the error class and code from an Error PDU
// body. Some devices wrap the pair in a constructed [0] error tag; both
// forms are accepted.
func decodeErrorPayload(payload []byte) (ErrorClass, ErrorCode, error) {
	if isOpeningTag(payload, 0) {
		payload = payload[1:]
	}

	classVal, n, err := DecodeApplicationValue(payload)
	if err != nil {
		return 0, 0, err
	}
	class, ok := classVal.(uint32)
	if !ok {
		return 0, 0, fmt.Errorf("%w: error class is %T", ErrMalformedAPDU, classVal)
	}

	codeVal, _, err := DecodeApplicationValue(payload[n:])
	if err != nil {
		return 0, 0, err
	}
	code, ok := codeVal.(uint32)
	if !ok {
		return 0, 0, fmt.Errorf("%w: error code is %T", ErrMalformedAPDU, codeVal)
	}

	return ErrorClass(class), ErrorCode(code), nil
}

// packFrame wraps an APDU in NPDU and BVLC headers for unicast transmission.
func packFrame(apdu []byte, expectingReply bool) []byte {
	npdu := EncodeNPDU(expectingReply)
	frame := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(apdu))
	frame = append(frame, npdu...)
	return append(frame, apdu...)
}

// packBroadcastFrame wraps an APDU in NPDU and BVLC headers for local
// broadcast.
func packBroadcastFrame(apdu []byte) []byte {
	npdu := EncodeNPDU(false)
	frame := EncodeBVLC(BVLCOriginalBroadcastNPDU, len(npdu)+len(apdu))
	frame = append(frame, npdu...)
	return append(frame, apdu...)
}
