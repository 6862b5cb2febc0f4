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
	"math"
)

// Tag length sentinels returned by DecodeTagHeader for context constructors.
const (
	tagLengthOpening = -1
	tagLengthClosing = -2
)

// charsetUTF8 is the character set octet prefixed to character strings.
const charsetUTF8 = 0x00

// EncodeTag encodes a tag header. length must be >= 0; opening and closing
// tags are produced by EncodeOpeningTag and EncodeClosingTag.
func EncodeTag(tagNumber uint8, class TagClass, length int) []byte {
	var buf []byte

	first := byte(0)
	if class == TagClassContext {
		first |= 0x08
	}

	if tagNumber < 15 {
		first |= tagNumber << 4
		buf = append(buf, first)
	} else {
		first |= 0xF0
		buf = append(buf, first, tagNumber)
	}

	switch {
	case length < 5:
		buf[0] |= byte(length)
	case length < 254:
		buf[0] |= 5
		buf = append(buf, byte(length))
	case length < 65536:
		buf[0] |= 5
		buf = append(buf, 254, byte(length>>8), byte(length))
	default:
		buf[0] |= 5
		buf = append(buf, 255,
			byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
	}

	return buf
}

// EncodeOpeningTag encodes a context-class opening tag.
func EncodeOpeningTag(tagNumber uint8) []byte {
	if tagNumber < 15 {
		return []byte{tagNumber<<4 | 0x0E}
	}
	return []byte{0xFE, tagNumber}
}

// EncodeClosingTag encodes a context-class closing tag.
func EncodeClosingTag(tagNumber uint8) []byte {
	if tagNumber < 15 {
		return []byte{tagNumber<<4 | 0x0F}
	}
	return []byte{0xFF, tagNumber}
}

// DecodeTagHeader decodes a tag header. length is the content length in
// bytes, or tagLengthOpening / tagLengthClosing for context constructors.
// headerLen is the number of header bytes consumed.
func DecodeTagHeader(data []byte) (tagNumber uint8, class TagClass, length int, headerLen int, err error) {
	if len(data) < 1 {
		return 0, 0, 0, 0, fmt.Errorf("%w: empty tag", ErrMalformedAPDU)
	}

	first := data[0]
	headerLen = 1

	tagNumber = first >> 4
	if first&0x08 != 0 {
		class = TagClassContext
	}

	if tagNumber == 15 {
		if len(data) < 2 {
			return 0, 0, 0, 0, fmt.Errorf("%w: truncated extended tag number", ErrMalformedAPDU)
		}
		tagNumber = data[1]
		headerLen = 2
	}

	lvt := first & 0x07
	switch {
	case class == TagClassContext && lvt == 6:
		return tagNumber, class, tagLengthOpening, headerLen, nil
	case class == TagClassContext && lvt == 7:
		return tagNumber, class, tagLengthClosing, headerLen, nil
	case lvt < 5:
		return tagNumber, class, int(lvt), headerLen, nil
	}

	// Extended length.
	if len(data) < headerLen+1 {
		return 0, 0, 0, 0, fmt.Errorf("%w: truncated extended length", ErrMalformedAPDU)
	}
	ext := data[headerLen]
	headerLen++

	switch ext {
	case 254:
		if len(data) < headerLen+2 {
			return 0, 0, 0, 0, fmt.Errorf("%w: truncated 16-bit length", ErrMalformedAPDU)
		}
		length = int(binary.BigEndian.Uint16(data[headerLen:]))
		headerLen += 2
	case 255:
		if len(data) < headerLen+4 {
			return 0, 0, 0, 0, fmt.Errorf("%w: truncated 32-bit length", ErrMalformedAPDU)
		}
		length = int(binary.BigEndian.Uint32(data[headerLen:]))
		headerLen += 4
	default:
		length = int(ext)
	}

	return tagNumber, class, length, headerLen, nil
}

// encodeUnsignedContent encodes an unsigned integer in the minimum number of
// bytes (at least one).
func encodeUnsignedContent(value uint32) []byte {
	switch {
	case value < 0x100:
		return []byte{byte(value)}
	case value < 0x10000:
		return []byte{byte(value >> 8), byte(value)}
	case value < 0x1000000:
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	default:
		return []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	}
}

func decodeUnsignedContent(data []byte) (uint32, error) {
	if len(data) == 0 || len(data) > 4 {
		return 0, fmt.Errorf("%w: unsigned content length %d", ErrMalformedAPDU, len(data))
	}
	var v uint32
	for _, b := range data {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

func encodeSignedContent(value int32) []byte {
	switch {
	case value >= -0x80 && value < 0x80:
		return []byte{byte(value)}
	case value >= -0x8000 && value < 0x8000:
		return []byte{byte(value >> 8), byte(value)}
	case value >= -0x800000 && value < 0x800000:
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	default:
		return []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	}
}

func decodeSignedContent(data []byte) (int32, error) {
	if len(data) == 0 || len(data) > 4 {
		return 0, fmt.Errorf("%w: signed content length %d", ErrMalformedAPDU, len(data))
	}
	v := int32(int8(data[0])) // sign-extend from the first byte
	for _, b := range data[1:] {
		v = v<<8 | int32(b)
	}
	return v, nil
}

// EncodeApplicationUnsigned encodes an application-tagged unsigned integer.
func EncodeApplicationUnsigned(value uint32) []byte {
	content := encodeUnsignedContent(value)
	return append(EncodeTag(uint8(TagUnsignedInt), TagClassApplication, len(content)), content...)
}

// EncodeApplicationSigned encodes an application-tagged signed integer.
func EncodeApplicationSigned(value int32) []byte {
	content := encodeSignedContent(value)
	return append(EncodeTag(uint8(TagSignedInt), TagClassApplication, len(content)), content...)
}

// EncodeApplicationReal encodes an application-tagged 32-bit real.
func EncodeApplicationReal(value float32) []byte {
	content := make([]byte, 4)
	binary.BigEndian.PutUint32(content, math.Float32bits(value))
	return append(EncodeTag(uint8(TagReal), TagClassApplication, 4), content...)
}

// EncodeApplicationDouble encodes an application-tagged 64-bit double.
func EncodeApplicationDouble(value float64) []byte {
	content := make([]byte, 8)
	binary.BigEndian.PutUint64(content, math.Float64bits(value))
	return append(EncodeTag(uint8(TagDouble), TagClassApplication, 8), content...)
}

// EncodeApplicationBoolean encodes an application-tagged boolean. The value
// rides in the length field.
func EncodeApplicationBoolean(value bool) []byte {
	lvt := 0
	if value {
		lvt = 1
	}
	return EncodeTag(uint8(TagBoolean), TagClassApplication, lvt)
}

// EncodeApplicationNull encodes an application-tagged null.
func EncodeApplicationNull() []byte {
	return EncodeTag(uint8(TagNull), TagClassApplication, 0)
}

// EncodeApplicationOctetString encodes an application-tagged octet string.
func EncodeApplicationOctetString(value []byte) []byte {
	return append(EncodeTag(uint8(TagOctetString), TagClassApplication, len(value)), value...)
}

// EncodeApplicationCharacterString encodes an application-tagged UTF-8
// character string.
func EncodeApplicationCharacterString(value string) []byte {
	content := append([]byte{charsetUTF8}, []byte(value)...)
	return append(EncodeTag(uint8(TagCharacterString), TagClassApplication, len(content)), content...)
}

// EncodeApplicationBitString encodes an application-tagged bit string with
// its unused-bits prefix octet.
func EncodeApplicationBitString(value BitString) []byte {
	unused := byte(len(value.Bits)*8 - value.Length)
	content := append([]byte{unused}, value.Bits...)
	return append(EncodeTag(uint8(TagBitString), TagClassApplication, len(content)), content...)
}

// EncodeApplicationEnumerated encodes an application-tagged enumerated.
func EncodeApplicationEnumerated(value uint32) []byte {
	content := encodeUnsignedContent(value)
	return append(EncodeTag(uint8(TagEnumerated), TagClassApplication, len(content)), content...)
}

// EncodeApplicationDate encodes an application-tagged date. The year octet
// is offset from 1900; 0xFF components pass through as wildcards.
func EncodeApplicationDate(value Date) []byte {
	year := byte(0xFF)
	if value.Year != 0xFF && value.Year != 0 {
		year = byte(value.Year - 1900)
	}
	content := []byte{year, value.Month, value.Day, value.DayOfWeek}
	return append(EncodeTag(uint8(TagDate), TagClassApplication, 4), content...)
}

// EncodeApplicationTime encodes an application-tagged time.
func EncodeApplicationTime(value Time) []byte {
	content := []byte{value.Hour, value.Minute, value.Second, value.Hundredths}
	return append(EncodeTag(uint8(TagTime), TagClassApplication, 4), content...)
}

// EncodeApplicationObjectID encodes an application-tagged object identifier.
func EncodeApplicationObjectID(value ObjectIdentifier) []byte {
	content := make([]byte, 4)
	binary.BigEndian.PutUint32(content, value.Encode())
	return append(EncodeTag(uint8(TagObjectID), TagClassApplication, 4), content...)
}

// EncodeContextUnsigned encodes a context-tagged unsigned integer.
func EncodeContextUnsigned(tagNumber uint8, value uint32) []byte {
	content := encodeUnsignedContent(value)
	return append(EncodeTag(tagNumber, TagClassContext, len(content)), content...)
}

// EncodeContextEnumerated encodes a context-tagged enumerated.
func EncodeContextEnumerated(tagNumber uint8, value uint32) []byte {
	return EncodeContextUnsigned(tagNumber, value)
}

// EncodeContextBoolean encodes a context-tagged boolean as a one-byte
// content octet (context booleans carry content, unlike application ones).
func EncodeContextBoolean(tagNumber uint8, value bool) []byte {
	content := byte(0)
	if value {
		content = 1
	}
	return append(EncodeTag(tagNumber, TagClassContext, 1), content)
}

// EncodeContextObjectID encodes a context-tagged object identifier.
func EncodeContextObjectID(tagNumber uint8, value ObjectIdentifier) []byte {
	content := make([]byte, 4)
	binary.BigEndian.PutUint32(content, value.Encode())
	return append(EncodeTag(tagNumber, TagClassContext, 4), content...)
}

// EncodeContextCharacterString encodes a context-tagged UTF-8 character
// string.
func EncodeContextCharacterString(tagNumber uint8, value string) []byte {
	content := append([]byte{charsetUTF8}, []byte(value)...)
	return append(EncodeTag(tagNumber, TagClassContext, len(content)), content...)
}

// EncodeApplicationValue encodes any supported Go value as an
// application-tagged BACnet value. nil and Null{} both encode as Null.
func EncodeApplicationValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return EncodeApplicationNull(), nil
	case Null:
		return EncodeApplicationNull(), nil
	case bool:
		return EncodeApplicationBoolean(v), nil
	case uint8:
		return EncodeApplicationUnsigned(uint32(v)), nil
	case uint16:
		return EncodeApplicationUnsigned(uint32(v)), nil
	case uint32:
		return EncodeApplicationUnsigned(v), nil
	case uint:
		return EncodeApplicationUnsigned(uint32(v)), nil
	case int8:
		return EncodeApplicationSigned(int32(v)), nil
	case int16:
		return EncodeApplicationSigned(int32(v)), nil
	case int32:
		return EncodeApplicationSigned(v), nil
	case int:
		return EncodeApplicationSigned(int32(v)), nil
	case float32:
		return EncodeApplicationReal(v), nil
	case float64:
		return EncodeApplicationDouble(v), nil
	case string:
		return EncodeApplicationCharacterString(v), nil
	case []byte:
		return EncodeApplicationOctetString(v), nil
	case BitString:
		return EncodeApplicationBitString(v), nil
	case Date:
		return EncodeApplicationDate(v), nil
	case Time:
		return EncodeApplicationTime(v), nil
	case ObjectIdentifier:
		return EncodeApplicationObjectID(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// DecodeApplicationValue decodes one application-tagged value from the front
// of data, returning the value and the total bytes consumed.
func DecodeApplicationValue(data []byte) (interface{}, int, error) {
	tagNumber, class, length, headerLen, err := DecodeTagHeader(data)
	if err != nil {
		return nil, 0, err
	}
	if class != TagClassApplication {
		return nil, 0, fmt.Errorf("%w: expected application tag, got context tag %d", ErrMalformedAPDU, tagNumber)
	}

	// Boolean carries its value in the length field.
	if ApplicationTag(tagNumber) == TagBoolean {
		return length == 1, headerLen, nil
	}

	if length < 0 || len(data) < headerLen+length {
		return nil, 0, fmt.Errorf("%w: truncated value content", ErrMalformedAPDU)
	}
	content := data[headerLen : headerLen+length]
	consumed := headerLen + length

	switch ApplicationTag(tagNumber) {
	case TagNull:
		return Null{}, consumed, nil

	case TagUnsignedInt:
		v, err := decodeUnsignedContent(content)
		if err != nil {
			return nil, 0, err
		}
		return v, consumed, nil

	case TagSignedInt:
		v, err := decodeSignedContent(content)
		if err != nil {
			return nil, 0, err
		}
		return v, consumed, nil

	case TagReal:
		if length != 4 {
			return nil, 0, fmt.Errorf("%w: real length %d", ErrMalformedAPDU, length)
		}
		return math.Float32frombits(binary.BigEndian.Uint32(content)), consumed, nil

	case TagDouble:
		if length != 8 {
			return nil, 0, fmt.Errorf("%w: double length %d", ErrMalformedAPDU, length)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(content)), consumed, nil

	case TagOctetString:
		out := make([]byte, length)
		copy(out, content)
		return out, consumed, nil

	case TagCharacterString:
		if length < 1 {
			return nil, 0, fmt.Errorf("%w: character string missing charset octet", ErrMalformedAPDU)
		}
		// Charset octet is accepted but not converted; devices in the field
		// send UTF-8 or ASCII, both valid Go strings.
		return string(content[1:]), consumed, nil

	case TagBitString:
		if length < 1 {
			return nil, 0, fmt.Errorf("%w: bit string missing unused-bits octet", ErrMalformedAPDU)
		}
		unused := int(content[0])
		bits := make([]byte, length-1)
		copy(bits, content[1:])
		bitLen := len(bits)*8 - unused
		if bitLen < 0 {
			return nil, 0, fmt.Errorf("%w: bit string unused bits %d exceed content", ErrMalformedAPDU, unused)
		}
		return BitString{Bits: bits, Length: bitLen}, consumed, nil

	case TagEnumerated:
		v, err := decodeUnsignedContent(content)
		if err != nil {
			return nil, 0, err
		}
		return v, consumed, nil

	case TagDate:
		if length != 4 {
			return nil, 0, fmt.Errorf("%w: date length %d", ErrMalformedAPDU, length)
		}
		year := uint16(0xFF)
		if content[0] != 0xFF {
			year = uint16(content[0]) + 1900
		}
		return Date{Year: year, Month: content[1], Day: content[2], DayOfWeek: content[3]}, consumed, nil

	case TagTime:
		if length != 4 {
			return nil, 0, fmt.Errorf("%w: time length %d", ErrMalformedAPDU, length)
		}
		return Time{Hour: content[0], Minute: content[1], Second: content[2], Hundredths: content[3]}, consumed, nil

	case TagObjectID:
		if length != 4 {
			return nil, 0, fmt.Errorf("%w: object identifier length %d", ErrMalformedAPDU, length)
		}
		return DecodeObjectIdentifier(binary.BigEndian.Uint32(content)), consumed, nil

	default:
		return nil, 0, fmt.Errorf("%w: unknown application tag %d", ErrMalformedAPDU, tagNumber)
	}
}

// decodeContextUnsigned decodes a context-tagged unsigned with the expected
// tag number, returning the value and bytes consumed.
func decodeContextUnsigned(data []byte, expectTag uint8) (uint32, int, error) {
	tagNumber, class, length, headerLen, err := DecodeTagHeader(data)
	if err != nil {
		return 0, 0, err
	}
	if class != TagClassContext || tagNumber != expectTag {
		return 0, 0, fmt.Errorf("%w: expected context tag %d", ErrMalformedAPDU, expectTag)
	}
	if length < 0 || len(data) < headerLen+length {
		return 0, 0, fmt.Errorf("%w: truncated context value", ErrMalformedAPDU)
	}
	v, err := decodeUnsignedContent(data[headerLen : headerLen+length])
	if err != nil {
		return 0, 0, err
	}
	return v, headerLen + length, nil
}

// decodeContextObjectID decodes a context-tagged object identifier with the
// expected tag number.
func decodeContextObjectID(data []byte, expectTag uint8) (ObjectIdentifier, int, error) {
	tagNumber, class, length, headerLen, err := DecodeTagHeader(data)
	if err != nil {
		return ObjectIdentifier{}, 0, err
	}
	if class != TagClassContext || tagNumber != expectTag || length != 4 {
		return ObjectIdentifier{}, 0, fmt.Errorf("%w: expected context object identifier tag %d", ErrMalformedAPDU, expectTag)
	}
	if len(data) < headerLen+4 {
		return ObjectIdentifier{}, 0, fmt.Errorf("%w: truncated object identifier", ErrMalformedAPDU)
	}
	oid := DecodeObjectIdentifier(binary.BigEndian.Uint32(data[headerLen:]))
	return oid, headerLen + 4, nil
}

// isOpeningTag reports whether data starts with the opening tag of the
// given context tag number.
func isOpeningTag(data []byte, tagNumber uint8) bool {
	tag, class, length, _, err := DecodeTagHeader(data)
	return err == nil && class == TagClassContext && tag == tagNumber && length == tagLengthOpening
}

// isClosingTag reports whether data starts with the closing tag of the
// given context tag number.
func isClosingTag(data []byte, tagNumber uint8) bool {
	tag, class, length, _, err := DecodeTagHeader(data)
	return err == nil && class == TagClassContext && tag == tagNumber && length == tagLengthClosing
}
