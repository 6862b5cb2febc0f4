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

// Package bacnet implements a BACnet/IP client for building automation
// systems: device discovery, property read/write, change-of-value
// subscriptions, and device management services over UDP.
package bacnet

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPort is the standard BACnet/IP UDP port.
const DefaultPort = 47808

// MaxAPDULength is the maximum APDU length for BACnet/IP.
const MaxAPDULength = 1476

// MaxInstance is the largest valid object instance number (22 bits). It
// doubles as the wildcard instance in targeted device reads.
const MaxInstance = 0x3FFFFF

// BVLCType identifies the BACnet Virtual Link Control family.
type BVLCType uint8

const (
	BVLCTypeBACnetIP BVLCType = 0x81
)

// BVLCFunction selects the BVLC message function.
type BVLCFunction uint8

const (
	BVLCResult                BVLCFunction = 0x00
	BVLCForwardedNPDU         BVLCFunction = 0x04
	BVLCRegisterForeignDevice BVLCFunction = 0x05
	BVLCOriginalUnicastNPDU   BVLCFunction = 0x0A
	BVLCOriginalBroadcastNPDU BVLCFunction = 0x0B
)

// NPDUControl holds the NPDU control octet flags.
type NPDUControl uint8

const (
	NPDUControlNetworkLayerMessage NPDUControl = 0x80
	NPDUControlDestSpecifier       NPDUControl = 0x20
	NPDUControlSourceSpecifier     NPDUControl = 0x08
	NPDUControlExpectingReply      NPDUControl = 0x04
	NPDUControlPriorityNormal      NPDUControl = 0x00
	NPDUControlPriorityUrgent      NPDUControl = 0x01
	NPDUControlPriorityCritical    NPDUControl = 0x02
	NPDUControlPriorityLifeSafety  NPDUControl = 0x03
)

// PDUType identifies the application-layer PDU type (upper nibble of the
// first APDU octet).
type PDUType uint8

const (
	PDUTypeConfirmedRequest   PDUType = 0x00
	PDUTypeUnconfirmedRequest PDUType = 0x10
	PDUTypeSimpleAck          PDUType = 0x20
	PDUTypeComplexAck         PDUType = 0x30
	PDUTypeSegmentAck         PDUType = 0x40
	PDUTypeError              PDUType = 0x50
	PDUTypeReject             PDUType = 0x60
	PDUTypeAbort              PDUType = 0x70
)

// ConfirmedServiceChoice enumerates confirmed service request types.
type ConfirmedServiceChoice uint8

const (
	ServiceAcknowledgeAlarm           ConfirmedServiceChoice = 0
	ServiceConfirmedCOVNotification   ConfirmedServiceChoice = 1
	ServiceConfirmedEventNotification ConfirmedServiceChoice = 2
	ServiceSubscribeCOV               ConfirmedServiceChoice = 5
	ServiceAtomicReadFile             ConfirmedServiceChoice = 6
	ServiceAtomicWriteFile            ConfirmedServiceChoice = 7
	ServiceAddListElement             ConfirmedServiceChoice = 8
	ServiceRemoveListElement          ConfirmedServiceChoice = 9
	ServiceCreateObject               ConfirmedServiceChoice = 10
	ServiceDeleteObject               ConfirmedServiceChoice = 11
	ServiceReadProperty               ConfirmedServiceChoice = 12
	ServiceReadPropertyMultiple       ConfirmedServiceChoice = 14
	ServiceWriteProperty              ConfirmedServiceChoice = 15
	ServiceWritePropertyMultiple      ConfirmedServiceChoice = 16
	ServiceDeviceCommunicationControl ConfirmedServiceChoice = 17
	ServiceReinitializeDevice         ConfirmedServiceChoice = 20
	ServiceReadRange                  ConfirmedServiceChoice = 26
	ServiceSubscribeCOVProperty       ConfirmedServiceChoice = 28
	ServiceGetEventInformation        ConfirmedServiceChoice = 29
)

func (s ConfirmedServiceChoice) String() string {
	names := map[ConfirmedServiceChoice]string{
		ServiceAcknowledgeAlarm:           "AcknowledgeAlarm",
		ServiceConfirmedCOVNotification:   "ConfirmedCOVNotification",
		ServiceConfirmedEventNotification: "ConfirmedEventNotification",
		ServiceSubscribeCOV:               "SubscribeCOV",
		ServiceAtomicReadFile:             "AtomicReadFile",
		ServiceAtomicWriteFile:            "AtomicWriteFile",
		ServiceAddListElement:             "AddListElement",
		ServiceRemoveListElement:          "RemoveListElement",
		ServiceCreateObject:               "CreateObject",
		ServiceDeleteObject:               "DeleteObject",
		ServiceReadProperty:               "ReadProperty",
		ServiceReadPropertyMultiple:       "ReadPropertyMultiple",
		ServiceWriteProperty:              "WriteProperty",
		ServiceWritePropertyMultiple:      "WritePropertyMultiple",
		ServiceDeviceCommunicationControl: "DeviceCommunicationControl",
		ServiceReinitializeDevice:         "ReinitializeDevice",
		ServiceReadRange:                  "ReadRange",
		ServiceSubscribeCOVProperty:       "SubscribeCOVProperty",
		ServiceGetEventInformation:        "GetEventInformation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("ConfirmedService(%d)", uint8(s))
}

// UnconfirmedServiceChoice enumerates unconfirmed service request types.
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm                          UnconfirmedServiceChoice = 0
	ServiceIHave                        UnconfirmedServiceChoice = 1
	ServiceUnconfirmedCOVNotification   UnconfirmedServiceChoice = 2
	ServiceUnconfirmedEventNotification UnconfirmedServiceChoice = 3
	ServiceTimeSynchronization          UnconfirmedServiceChoice = 6
	ServiceWhoHas                       UnconfirmedServiceChoice = 7
	ServiceWhoIs                        UnconfirmedServiceChoice = 8
	ServiceUTCTimeSynchronization       UnconfirmedServiceChoice = 9
)

func (s UnconfirmedServiceChoice) String() string {
	names := map[UnconfirmedServiceChoice]string{
		ServiceIAm:                          "I-Am",
		ServiceIHave:                        "I-Have",
		ServiceUnconfirmedCOVNotification:   "UnconfirmedCOVNotification",
		ServiceUnconfirmedEventNotification: "UnconfirmedEventNotification",
		ServiceTimeSynchronization:          "TimeSynchronization",
		ServiceWhoHas:                       "Who-Has",
		ServiceWhoIs:                        "Who-Is",
		ServiceUTCTimeSynchronization:       "UTCTimeSynchronization",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("UnconfirmedService(%d)", uint8(s))
}

// ObjectType represents BACnet object types.
type ObjectType uint16

const (
	ObjectTypeAnalogInput       ObjectType = 0
	ObjectTypeAnalogOutput      ObjectType = 1
	ObjectTypeAnalogValue       ObjectType = 2
	ObjectTypeBinaryInput       ObjectType = 3
	ObjectTypeBinaryOutput      ObjectType = 4
	ObjectTypeBinaryValue       ObjectType = 5
	ObjectTypeCalendar          ObjectType = 6
	ObjectTypeCommand           ObjectType = 7
	ObjectTypeDevice            ObjectType = 8
	ObjectTypeEventEnrollment   ObjectType = 9
	ObjectTypeFile              ObjectType = 10
	ObjectTypeGroup             ObjectType = 11
	ObjectTypeLoop              ObjectType = 12
	ObjectTypeMultiStateInput   ObjectType = 13
	ObjectTypeMultiStateOutput  ObjectType = 14
	ObjectTypeNotificationClass ObjectType = 15
	ObjectTypeProgram           ObjectType = 16
	ObjectTypeSchedule          ObjectType = 17
	ObjectTypeAveraging         ObjectType = 18
	ObjectTypeMultiStateValue   ObjectType = 19
	ObjectTypeTrendLog          ObjectType = 20
	ObjectTypeLifeSafetyPoint   ObjectType = 21
	ObjectTypeLifeSafetyZone    ObjectType = 22
	ObjectTypeAccumulator       ObjectType = 23
	ObjectTypePulseConverter    ObjectType = 24
	ObjectTypeEventLog          ObjectType = 25
	ObjectTypeLoadControl       ObjectType = 28
	ObjectTypeStructuredView    ObjectType = 29
	ObjectTypeAccessDoor        ObjectType = 30
	ObjectTypeTimer             ObjectType = 31
	ObjectTypeCharacterString   ObjectType = 40
	ObjectTypeDateValue         ObjectType = 42
	ObjectTypeIntegerValue      ObjectType = 45
	ObjectTypeLargeAnalogValue  ObjectType = 46
	ObjectTypePositiveInteger   ObjectType = 48
	ObjectTypeTimeValue         ObjectType = 50
	ObjectTypeChannel           ObjectType = 53
	ObjectTypeLightingOutput    ObjectType = 54
	ObjectTypeNetworkPort       ObjectType = 56
)

func (o ObjectType) String() string {
	names := map[ObjectType]string{
		ObjectTypeAnalogInput:       "analog-input",
		ObjectTypeAnalogOutput:      "analog-output",
		ObjectTypeAnalogValue:       "analog-value",
		ObjectTypeBinaryInput:       "binary-input",
		ObjectTypeBinaryOutput:      "binary-output",
		ObjectTypeBinaryValue:       "binary-value",
		ObjectTypeCalendar:          "calendar",
		ObjectTypeCommand:           "command",
		ObjectTypeDevice:            "device",
		ObjectTypeEventEnrollment:   "event-enrollment",
		ObjectTypeFile:              "file",
		ObjectTypeGroup:             "group",
		ObjectTypeLoop:              "loop",
		ObjectTypeMultiStateInput:   "multi-state-input",
		ObjectTypeMultiStateOutput:  "multi-state-output",
		ObjectTypeNotificationClass: "notification-class",
		ObjectTypeProgram:           "program",
		ObjectTypeSchedule:          "schedule",
		ObjectTypeAveraging:         "averaging",
		ObjectTypeMultiStateValue:   "multi-state-value",
		ObjectTypeTrendLog:          "trend-log",
		ObjectTypeLifeSafetyPoint:   "life-safety-point",
		ObjectTypeLifeSafetyZone:    "life-safety-zone",
		ObjectTypeAccumulator:       "accumulator",
		ObjectTypePulseConverter:    "pulse-converter",
		ObjectTypeEventLog:          "event-log",
		ObjectTypeLoadControl:       "load-control",
		ObjectTypeStructuredView:    "structured-view",
		ObjectTypeAccessDoor:        "access-door",
		ObjectTypeTimer:             "timer",
		ObjectTypeCharacterString:   "characterstring-value",
		ObjectTypeDateValue:         "date-value",
		ObjectTypeIntegerValue:      "integer-value",
		ObjectTypeLargeAnalogValue:  "large-analog-value",
		ObjectTypePositiveInteger:   "positive-integer-value",
		ObjectTypeTimeValue:         "time-value",
		ObjectTypeChannel:           "channel",
		ObjectTypeLightingOutput:    "lighting-output",
		ObjectTypeNetworkPort:       "network-port",
	}
	if name, ok := names[o]; ok {
		return name
	}
	return fmt.Sprintf("vendor-specific(%d)", uint16(o))
}

// ParseObjectType parses an object type from its name or short alias.
func ParseObjectType(s string) (ObjectType, bool) {
	types := map[string]ObjectType{
		"analog-input":       ObjectTypeAnalogInput,
		"ai":                 ObjectTypeAnalogInput,
		"analog-output":      ObjectTypeAnalogOutput,
		"ao":                 ObjectTypeAnalogOutput,
		"analog-value":       ObjectTypeAnalogValue,
		"av":                 ObjectTypeAnalogValue,
		"binary-input":       ObjectTypeBinaryInput,
		"bi":                 ObjectTypeBinaryInput,
		"binary-output":      ObjectTypeBinaryOutput,
		"bo":                 ObjectTypeBinaryOutput,
		"binary-value":       ObjectTypeBinaryValue,
		"bv":                 ObjectTypeBinaryValue,
		"device":             ObjectTypeDevice,
		"dev":                ObjectTypeDevice,
		"multi-state-input":  ObjectTypeMultiStateInput,
		"msi":                ObjectTypeMultiStateInput,
		"multi-state-output": ObjectTypeMultiStateOutput,
		"mso":                ObjectTypeMultiStateOutput,
		"multi-state-value":  ObjectTypeMultiStateValue,
		"msv":                ObjectTypeMultiStateValue,
		"schedule":           ObjectTypeSchedule,
		"sch":                ObjectTypeSchedule,
		"trend-log":          ObjectTypeTrendLog,
		"tl":                 ObjectTypeTrendLog,
		"calendar":           ObjectTypeCalendar,
		"cal":                ObjectTypeCalendar,
		"notification-class": ObjectTypeNotificationClass,
		"nc":                 ObjectTypeNotificationClass,
		"file":               ObjectTypeFile,
		"loop":               ObjectTypeLoop,
		"program":            ObjectTypeProgram,
		"prg":                ObjectTypeProgram,
	}
	if t, ok := types[strings.ToLower(s)]; ok {
		return t, true
	}
	return 0, false
}

// PropertyIdentifier represents BACnet property identifiers.
type PropertyIdentifier uint32

const (
	PropertyAckedTransitions              PropertyIdentifier = 0
	PropertyAckRequired                   PropertyIdentifier = 1
	PropertyApduTimeout                   PropertyIdentifier = 11
	PropertyApplicationSoftwareVersion    PropertyIdentifier = 12
	PropertyNotificationClass             PropertyIdentifier = 17
	PropertyCOVIncrement                  PropertyIdentifier = 22
	PropertyDeadband                      PropertyIdentifier = 25
	PropertyDescription                   PropertyIdentifier = 28
	PropertyDeviceAddressBinding          PropertyIdentifier = 30
	PropertyDeviceType                    PropertyIdentifier = 31
	PropertyEventEnable                   PropertyIdentifier = 35
	PropertyEventState                    PropertyIdentifier = 36
	PropertyEventType                     PropertyIdentifier = 37
	PropertyFirmwareRevision              PropertyIdentifier = 44
	PropertyHighLimit                     PropertyIdentifier = 45
	PropertyInactiveText                  PropertyIdentifier = 46
	PropertyLocalDate                     PropertyIdentifier = 56
	PropertyLocalTime                     PropertyIdentifier = 57
	PropertyLocation                      PropertyIdentifier = 58
	PropertyLowLimit                      PropertyIdentifier = 59
	PropertyMaxApduLengthAccepted         PropertyIdentifier = 62
	PropertyModelName                     PropertyIdentifier = 70
	PropertyNumberOfStates                PropertyIdentifier = 74
	PropertyObjectIdentifier              PropertyIdentifier = 75
	PropertyObjectList                    PropertyIdentifier = 76
	PropertyObjectName                    PropertyIdentifier = 77
	PropertyObjectType                    PropertyIdentifier = 79
	PropertyOutOfService                  PropertyIdentifier = 81
	PropertyPresentValue                  PropertyIdentifier = 85
	PropertyPriority                      PropertyIdentifier = 86
	PropertyPriorityArray                 PropertyIdentifier = 87
	PropertyProtocolObjectTypesSupported  PropertyIdentifier = 96
	PropertyProtocolServicesSupported     PropertyIdentifier = 97
	PropertyProtocolVersion               PropertyIdentifier = 98
	PropertyReliability                   PropertyIdentifier = 103
	PropertyRelinquishDefault             PropertyIdentifier = 104
	PropertySegmentationSupported         PropertyIdentifier = 107
	PropertyStatusFlags                   PropertyIdentifier = 111
	PropertySystemStatus                  PropertyIdentifier = 112
	PropertyTimeSynchronizationRecipients PropertyIdentifier = 116
	PropertyUnits                         PropertyIdentifier = 117
	PropertyUtcOffset                     PropertyIdentifier = 119
	PropertyVendorIdentifier              PropertyIdentifier = 120
	PropertyVendorName                    PropertyIdentifier = 121
	PropertyProtocolRevision              PropertyIdentifier = 139
	PropertyActiveCOVSubscriptions        PropertyIdentifier = 152
	PropertyDatabaseRevision              PropertyIdentifier = 155
	PropertyLastRestoreTime               PropertyIdentifier = 157
	PropertyBackupAndRestoreState         PropertyIdentifier = 338
)

func (p PropertyIdentifier) String() string {
	names := map[PropertyIdentifier]string{
		PropertyObjectIdentifier:           "object-identifier",
		PropertyObjectName:                 "object-name",
		PropertyObjectType:                 "object-type",
		PropertyPresentValue:               "present-value",
		PropertyDescription:                "description",
		PropertyDeviceType:                 "device-type",
		PropertyStatusFlags:                "status-flags",
		PropertyEventState:                 "event-state",
		PropertyReliability:                "reliability",
		PropertyOutOfService:               "out-of-service",
		PropertyUnits:                      "units",
		PropertyPriorityArray:              "priority-array",
		PropertyRelinquishDefault:          "relinquish-default",
		PropertyCOVIncrement:               "cov-increment",
		PropertyHighLimit:                  "high-limit",
		PropertyLowLimit:                   "low-limit",
		PropertyDeadband:                   "deadband",
		PropertyVendorName:                 "vendor-name",
		PropertyVendorIdentifier:           "vendor-identifier",
		PropertyModelName:                  "model-name",
		PropertyFirmwareRevision:           "firmware-revision",
		PropertyApplicationSoftwareVersion: "application-software-version",
		PropertyProtocolVersion:            "protocol-version",
		PropertyProtocolRevision:           "protocol-revision",
		PropertySystemStatus:               "system-status",
		PropertyMaxApduLengthAccepted:      "max-apdu-length-accepted",
		PropertySegmentationSupported:      "segmentation-supported",
		PropertyObjectList:                 "object-list",
		PropertyDatabaseRevision:           "database-revision",
		PropertyLocation:                   "location",
		PropertyLocalDate:                  "local-date",
		PropertyLocalTime:                  "local-time",
	}
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("property(%d)", uint32(p))
}

// ParsePropertyIdentifier parses a property identifier from its name or
// short alias.
func ParsePropertyIdentifier(s string) (PropertyIdentifier, bool) {
	props := map[string]PropertyIdentifier{
		"object-identifier":            PropertyObjectIdentifier,
		"oid":                          PropertyObjectIdentifier,
		"object-name":                  PropertyObjectName,
		"name":                         PropertyObjectName,
		"object-type":                  PropertyObjectType,
		"type":                         PropertyObjectType,
		"present-value":                PropertyPresentValue,
		"pv":                           PropertyPresentValue,
		"description":                  PropertyDescription,
		"desc":                         PropertyDescription,
		"status-flags":                 PropertyStatusFlags,
		"sf":                           PropertyStatusFlags,
		"event-state":                  PropertyEventState,
		"reliability":                  PropertyReliability,
		"out-of-service":               PropertyOutOfService,
		"oos":                          PropertyOutOfService,
		"units":                        PropertyUnits,
		"priority-array":               PropertyPriorityArray,
		"pa":                           PropertyPriorityArray,
		"relinquish-default":           PropertyRelinquishDefault,
		"rd":                           PropertyRelinquishDefault,
		"cov-increment":                PropertyCOVIncrement,
		"vendor-name":                  PropertyVendorName,
		"vendor-identifier":            PropertyVendorIdentifier,
		"model-name":                   PropertyModelName,
		"firmware-revision":            PropertyFirmwareRevision,
		"application-software-version": PropertyApplicationSoftwareVersion,
		"protocol-version":             PropertyProtocolVersion,
		"protocol-revision":            PropertyProtocolRevision,
		"system-status":                PropertySystemStatus,
		"object-list":                  PropertyObjectList,
		"database-revision":            PropertyDatabaseRevision,
		"location":                     PropertyLocation,
	}
	if p, ok := props[strings.ToLower(s)]; ok {
		return p, true
	}
	return 0, false
}

// ObjectIdentifier is a BACnet object identifier: object type plus 22-bit
// instance number.
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// NewObjectIdentifier creates an ObjectIdentifier, masking the instance to
// 22 bits.
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     objectType,
		Instance: instance & MaxInstance,
	}
}

// Encode packs the object identifier into its 4-byte wire value.
func (o ObjectIdentifier) Encode() uint32 {
	return (uint32(o.Type) << 22) | (o.Instance & MaxInstance)
}

// DecodeObjectIdentifier unpacks a 4-byte wire value.
func DecodeObjectIdentifier(value uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType((value >> 22) & 0x3FF),
		Instance: value & MaxInstance,
	}
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type.String(), o.Instance)
}

// Date is a BACnet date. The wire encoding stores year as offset from 1900;
// a component of 0xFF means "any".
type Date struct {
	Year      uint16
	Month     uint8
	Day       uint8
	DayOfWeek uint8 // 1 = Monday .. 7 = Sunday
}

// Time is a BACnet time with hundredths-of-a-second resolution. A component
// of 0xFF means "any".
type Time struct {
	Hour       uint8
	Minute     uint8
	Second     uint8
	Hundredths uint8
}

// DateTimeFromTime splits a time.Time into BACnet Date and Time values.
func DateTimeFromTime(t time.Time) (Date, Time) {
	dow := uint8(t.Weekday())
	if dow == 0 {
		dow = 7 // BACnet counts Monday=1..Sunday=7
	}
	d := Date{
		Year:      uint16(t.Year()),
		Month:     uint8(t.Month()),
		Day:       uint8(t.Day()),
		DayOfWeek: dow,
	}
	tm := Time{
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Hundredths: uint8(t.Nanosecond() / 10000000),
	}
	return d, tm
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%02d", t.Hour, t.Minute, t.Second, t.Hundredths)
}

// BitString is a BACnet bit string. Bit 0 is the most significant bit of
// the first octet.
type BitString struct {
	Bits   []byte
	Length int // number of valid bits
}

// Bit reports whether bit i is set.
func (b BitString) Bit(i int) bool {
	if i < 0 || i >= b.Length {
		return false
	}
	return b.Bits[i/8]&(0x80>>(i%8)) != 0
}

// Null is the BACnet Null application value. Writing Null to a commandable
// property relinquishes the addressed priority slot.
type Null struct{}

// StatusFlags holds the four BACnet status flags.
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

func (s StatusFlags) String() string {
	return fmt.Sprintf("{in-alarm:%v, fault:%v, overridden:%v, out-of-service:%v}",
		s.InAlarm, s.Fault, s.Overridden, s.OutOfService)
}

// EventState is the BACnet event state of an object.
type EventState uint8

const (
	EventStateNormal          EventState = 0
	EventStateFault           EventState = 1
	EventStateOffNormal       EventState = 2
	EventStateHighLimit       EventState = 3
	EventStateLowLimit        EventState = 4
	EventStateLifeSafetyAlarm EventState = 5
)

func (e EventState) String() string {
	names := map[EventState]string{
		EventStateNormal:          "normal",
		EventStateFault:           "fault",
		EventStateOffNormal:       "off-normal",
		EventStateHighLimit:       "high-limit",
		EventStateLowLimit:        "low-limit",
		EventStateLifeSafetyAlarm: "life-safety-alarm",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("event-state(%d)", uint8(e))
}

// Segmentation is the segmentation capability a device advertises in I-Am.
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

func (s Segmentation) String() string {
	names := map[Segmentation]string{
		SegmentationBoth:     "segmented-both",
		SegmentationTransmit: "segmented-transmit",
		SegmentationReceive:  "segmented-receive",
		SegmentationNone:     "no-segmentation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", uint8(s))
}

// ReinitializedState selects the ReinitializeDevice target state.
type ReinitializedState uint8

const (
	ReinitColdstart       ReinitializedState = 0
	ReinitWarmstart       ReinitializedState = 1
	ReinitStartBackup     ReinitializedState = 2
	ReinitEndBackup       ReinitializedState = 3
	ReinitStartRestore    ReinitializedState = 4
	ReinitEndRestore      ReinitializedState = 5
	ReinitAbortRestore    ReinitializedState = 6
	ReinitActivateChanges ReinitializedState = 7
)

func (r ReinitializedState) String() string {
	names := map[ReinitializedState]string{
		ReinitColdstart:       "coldstart",
		ReinitWarmstart:       "warmstart",
		ReinitStartBackup:     "start-backup",
		ReinitEndBackup:       "end-backup",
		ReinitStartRestore:    "start-restore",
		ReinitEndRestore:      "end-restore",
		ReinitAbortRestore:    "abort-restore",
		ReinitActivateChanges: "activate-changes",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("reinitialized-state(%d)", uint8(r))
}

// ParseReinitializedState parses a reinitialize target state name.
func ParseReinitializedState(s string) (ReinitializedState, bool) {
	states := map[string]ReinitializedState{
		"coldstart":        ReinitColdstart,
		"warmstart":        ReinitWarmstart,
		"start-backup":     ReinitStartBackup,
		"end-backup":       ReinitEndBackup,
		"start-restore":    ReinitStartRestore,
		"end-restore":      ReinitEndRestore,
		"abort-restore":    ReinitAbortRestore,
		"activate-changes": ReinitActivateChanges,
	}
	if st, ok := states[strings.ToLower(s)]; ok {
		return st, true
	}
	return 0, false
}

// EnableDisable selects the DeviceCommunicationControl target state.
type EnableDisable uint8

const (
	CommunicationEnable            EnableDisable = 0
	CommunicationDisable           EnableDisable = 1
	CommunicationDisableInitiation EnableDisable = 2
)

func (e EnableDisable) String() string {
	names := map[EnableDisable]string{
		CommunicationEnable:            "enable",
		CommunicationDisable:           "disable",
		CommunicationDisableInitiation: "disable-initiation",
	}
	if name, ok := names[e]; ok {
		return name
	}
	return fmt.Sprintf("enable-disable(%d)", uint8(e))
}

// Address is a BACnet network address. Net 0 means the local network; Addr
// holds the IPv4 address followed by a 2-byte big-endian port.
type Address struct {
	Net  uint16
	Addr []byte
}

// DeviceInfo describes a device known to the client, learned from an I-Am
// or registered directly.
type DeviceInfo struct {
	ObjectID      ObjectIdentifier
	Address       Address
	MaxAPDULength uint16
	Segmentation  Segmentation
	VendorID      uint16
}

// ObjectProfile is one enumerated object within a DeviceProfile. Err records
// the first read failure for the object; a failed object does not fail the
// enumeration.
type ObjectProfile struct {
	ObjectID     ObjectIdentifier
	Name         string
	Description  string
	PresentValue interface{}
	Units        uint32
	Err          error
}

// DeviceProfile is the result of enumerating a device.
type DeviceProfile struct {
	Device      *DeviceInfo
	Name        string
	VendorName  string
	ModelName   string
	Firmware    string
	Description string
	Objects     []ObjectProfile
}

// PropertyValue is a decoded property value with its addressing metadata.
type PropertyValue struct {
	ObjectID   ObjectIdentifier
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
	Value      interface{}
	Priority   *uint8
}

// ReadPropertyRequest addresses one property for ReadPropertyMultiple.
type ReadPropertyRequest struct {
	ObjectID   ObjectIdentifier
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
}

// Subscription is an active COV subscription tracked by the client.
// Lifetime expiry is enforced by the device; CreatedAt and Lifetime are kept
// for bookkeeping.
type Subscription struct {
	ProcessID uint32
	DeviceID  uint32
	ObjectID  ObjectIdentifier
	Lifetime  uint32 // seconds, 0 = indefinite
	Confirmed bool
	CreatedAt time.Time
}

// COVEvent is one value-update notification delivered to a COV handler.
type COVEvent struct {
	ProcessID     uint32
	DeviceID      uint32
	ObjectID      ObjectIdentifier
	TimeRemaining uint32
	Values        []PropertyValue
}

// TagClass distinguishes application from context-specific tags.
type TagClass uint8

const (
	TagClassApplication TagClass = 0
	TagClassContext     TagClass = 1
)

// ApplicationTag enumerates the BACnet application datatypes.
type ApplicationTag uint8

const (
	TagNull            ApplicationTag = 0
	TagBoolean         ApplicationTag = 1
	TagUnsignedInt     ApplicationTag = 2
	TagSignedInt       ApplicationTag = 3
	TagReal            ApplicationTag = 4
	TagDouble          ApplicationTag = 5
	TagOctetString     ApplicationTag = 6
	TagCharacterString ApplicationTag = 7
	TagBitString       ApplicationTag = 8
	TagEnumerated      ApplicationTag = 9
	TagDate            ApplicationTag = 10
	TagTime            ApplicationTag = 11
	TagObjectID        ApplicationTag = 12
)
