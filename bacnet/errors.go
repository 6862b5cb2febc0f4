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
	"errors"
	"fmt"
)

// Sentinel errors returned by the client.
var (
	// ErrTimeout is returned when a confirmed request exhausts all retries
	// without a response.
	ErrTimeout = errors.New("bacnet: request timeout")

	// ErrTransportUnavailable is returned when the UDP socket cannot be
	// bound on any attempted local port.
	ErrTransportUnavailable = errors.New("bacnet: transport unavailable")

	// ErrNoFreeInvokeID is returned when all 256 invoke ids are in flight.
	ErrNoFreeInvokeID = errors.New("bacnet: no free invoke id")

	// ErrMalformedAPDU is returned when an APDU or tagged value cannot be
	// decoded.
	ErrMalformedAPDU = errors.New("bacnet: malformed APDU")

	// ErrMalformedNPDU is returned when a network-layer header cannot be
	// decoded.
	ErrMalformedNPDU = errors.New("bacnet: malformed NPDU")

	// ErrMalformedBVLC is returned when a BVLC header cannot be decoded.
	ErrMalformedBVLC = errors.New("bacnet: malformed BVLC")

	// ErrNotConnected is returned when an operation is attempted before
	// Connect or after Close.
	ErrNotConnected = errors.New("bacnet: not connected")

	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = errors.New("bacnet: already connected")

	// ErrConnectionClosed is returned for operations interrupted by Close.
	ErrConnectionClosed = errors.New("bacnet: connection closed")

	// ErrDeviceNotFound is returned when a device id has no known address.
	ErrDeviceNotFound = errors.New("bacnet: device not found")

	// ErrInvalidResponse is returned when a response decodes but does not
	// match the request.
	ErrInvalidResponse = errors.New("bacnet: invalid response")
)

// ErrorClass is the BACnet error class from an Error PDU.
type ErrorClass uint16

const (
	ErrorClassDevice        ErrorClass = 0
	ErrorClassObject        ErrorClass = 1
	ErrorClassProperty      ErrorClass = 2
	ErrorClassResources     ErrorClass = 3
	ErrorClassSecurity      ErrorClass = 4
	ErrorClassServices      ErrorClass = 5
	ErrorClassVT            ErrorClass = 6
	ErrorClassCommunication ErrorClass = 7
)

func (c ErrorClass) String() string {
	names := map[ErrorClass]string{
		ErrorClassDevice:        "device",
		ErrorClassObject:        "object",
		ErrorClassProperty:      "property",
		ErrorClassResources:     "resources",
		ErrorClassSecurity:      "security",
		ErrorClassServices:      "services",
		ErrorClassVT:            "vt",
		ErrorClassCommunication: "communication",
	}
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", uint16(c))
}

// ErrorCode is the BACnet error code from an Error PDU.
type ErrorCode uint16

const (
	ErrorCodeOther                    ErrorCode = 0
	ErrorCodeDeviceBusy               ErrorCode = 3
	ErrorCodeInconsistentParameters   ErrorCode = 7
	ErrorCodeInvalidDataType          ErrorCode = 9
	ErrorCodeNoObjectsOfSpecifiedType ErrorCode = 17
	ErrorCodeNoSpaceToAddListElement  ErrorCode = 19
	ErrorCodeNoSpaceToWriteProperty   ErrorCode = 20
	ErrorCodeObjectDeletionNotPermit  ErrorCode = 23
	ErrorCodeObjectIdentifierInUse    ErrorCode = 24
	ErrorCodeOperationalProblem       ErrorCode = 25
	ErrorCodePasswordFailure          ErrorCode = 26
	ErrorCodeReadAccessDenied         ErrorCode = 27
	ErrorCodeSecurityNotSupported     ErrorCode = 28
	ErrorCodeServiceRequestDenied     ErrorCode = 29
	ErrorCodeTimeout                  ErrorCode = 30
	ErrorCodeUnknownObject            ErrorCode = 31
	ErrorCodeUnknownProperty          ErrorCode = 32
	ErrorCodeValueOutOfRange          ErrorCode = 37
	ErrorCodeWriteAccessDenied        ErrorCode = 40
	ErrorCodeInvalidArrayIndex        ErrorCode = 42
	ErrorCodeCOVSubscriptionFailed    ErrorCode = 43
	ErrorCodeNotCOVProperty           ErrorCode = 44
	ErrorCodeDuplicateObjectID        ErrorCode = 88
	ErrorCodeCommunicationDisabled    ErrorCode = 83
)

func (c ErrorCode) String() string {
	names := map[ErrorCode]string{
		ErrorCodeOther:                    "other",
		ErrorCodeDeviceBusy:               "device-busy",
		ErrorCodeInconsistentParameters:   "inconsistent-parameters",
		ErrorCodeInvalidDataType:          "invalid-data-type",
		ErrorCodeNoObjectsOfSpecifiedType: "no-objects-of-specified-type",
		ErrorCodeNoSpaceToAddListElement:  "no-space-to-add-list-element",
		ErrorCodeNoSpaceToWriteProperty:   "no-space-to-write-property",
		ErrorCodeObjectDeletionNotPermit:  "object-deletion-not-permitted",
		ErrorCodeObjectIdentifierInUse:    "object-identifier-already-exists",
		ErrorCodeOperationalProblem:       "operational-problem",
		ErrorCodePasswordFailure:          "password-failure",
		ErrorCodeReadAccessDenied:         "read-access-denied",
		ErrorCodeServiceRequestDenied:     "service-request-denied",
		ErrorCodeTimeout:                  "timeout",
		ErrorCodeUnknownObject:            "unknown-object",
		ErrorCodeUnknownProperty:          "unknown-property",
		ErrorCodeValueOutOfRange:          "value-out-of-range",
		ErrorCodeWriteAccessDenied:        "write-access-denied",
		ErrorCodeInvalidArrayIndex:        "invalid-array-index",
		ErrorCodeCOVSubscriptionFailed:    "cov-subscription-failed",
		ErrorCodeNotCOVProperty:           "not-cov-property",
		ErrorCodeDuplicateObjectID:        "duplicate-object-id",
		ErrorCodeCommunicationDisabled:    "communication-disabled",
	}
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}

// BACnetError is a service error returned by a device in an Error PDU.
type BACnetError struct {
	Class ErrorClass
	Code  ErrorCode
}

func (e *BACnetError) Error() string {
	return fmt.Sprintf("bacnet: service error class=%s code=%s", e.Class, e.Code)
}

// RejectError is a Reject PDU returned by a device.
type RejectError struct {
	Reason uint8
}

func (e *RejectError) Error() string {
	reasons := map[uint8]string{
		0: "other",
		1: "buffer-overflow",
		2: "inconsistent-parameters",
		3: "invalid-parameter-data-type",
		4: "invalid-tag",
		5: "missing-required-parameter",
		6: "parameter-out-of-range",
		7: "too-many-arguments",
		8: "undefined-enumeration",
		9: "unrecognized-service",
	}
	if name, ok := reasons[e.Reason]; ok {
		return fmt.Sprintf("bacnet: request rejected: %s", name)
	}
	return fmt.Sprintf("bacnet: request rejected: reason(%d)", e.Reason)
}

// AbortError is an Abort PDU returned by a device.
type AbortError struct {
	Reason uint8
}

func (e *AbortError) Error() string {
	reasons := map[uint8]string{
		0: "other",
		1: "buffer-overflow",
		2: "invalid-apdu-in-this-state",
		3: "preempted-by-higher-priority-task",
		4: "segmentation-not-supported",
		5: "security-error",
		6: "insufficient-security",
		9: "tsm-timeout",
	}
	if name, ok := reasons[e.Reason]; ok {
		return fmt.Sprintf("bacnet: request aborted: %s", name)
	}
	return fmt.Sprintf("bacnet: request aborted: reason(%d)", e.Reason)
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsDeviceNotFound reports whether err means the target device is unknown.
func IsDeviceNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

// IsUnknownProperty reports whether err is an unknown-property service
// error.
func IsUnknownProperty(err error) bool {
	var be *BACnetError
	return errors.As(err, &be) && be.Code == ErrorCodeUnknownProperty
}

// IsWriteAccessDenied reports whether err is a write-access-denied service
// error.
func IsWriteAccessDenied(err error) bool {
	var be *BACnetError
	return errors.As(err, &be) && be.Code == ErrorCodeWriteAccessDenied
}
