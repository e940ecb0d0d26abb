// Package zcl implements the ZigBee Cluster Library frame codec: frame
// header encode/decode, the data-type size table and the endian helpers
// shared by the property decoders.
package zcl

import (
	"encoding/binary"
	"fmt"
)

// Frame control field bits.
const (
	FrameControlClusterSpecific        uint8 = 0x01
	FrameControlManufacturerSpecific   uint8 = 0x04
	FrameControlServerToClient         uint8 = 0x08
	FrameControlDisableDefaultResponse uint8 = 0x10
)

// Cluster IDs used by the core.
const (
	ClusterBasic                 uint16 = 0x0000
	ClusterPowerConfiguration    uint16 = 0x0001
	ClusterIdentify              uint16 = 0x0003
	ClusterGroups                uint16 = 0x0004
	ClusterScenes                uint16 = 0x0005
	ClusterOnOff                 uint16 = 0x0006
	ClusterLevelControl          uint16 = 0x0008
	ClusterTime                  uint16 = 0x000A
	ClusterAnalogInput           uint16 = 0x000C
	ClusterMultistateInput       uint16 = 0x0012
	ClusterOTAUpgrade            uint16 = 0x0019
	ClusterColorControl          uint16 = 0x0300
	ClusterIlluminance           uint16 = 0x0400
	ClusterTemperature           uint16 = 0x0402
	ClusterHumidity              uint16 = 0x0405
	ClusterOccupancy             uint16 = 0x0406
	ClusterIASZone               uint16 = 0x0500
	ClusterMetering              uint16 = 0x0702
	ClusterElectricalMeasurement uint16 = 0x0B04
	ClusterTouchLink             uint16 = 0x1000
	ClusterTUYA                  uint16 = 0xEF00
)

// Frame is a parsed ZCL frame: control byte, optional manufacturer code,
// transaction id, command id and the remaining payload.
type Frame struct {
	Control          uint8
	ManufacturerCode uint16
	TransactionID    uint8
	CommandID        uint8
	Payload          []byte
}

// ClusterSpecific reports whether the frame carries a cluster-specific command.
func (f *Frame) ClusterSpecific() bool {
	return f.Control&FrameControlClusterSpecific != 0
}

// DisableDefaultResponse reports whether the sender asked to suppress the
// default response.
func (f *Frame) DisableDefaultResponse() bool {
	return f.Control&FrameControlDisableDefaultResponse != 0
}

// ParseFrame decodes a ZCL frame header. The manufacturer code is present
// only when the manufacturer-specific bit is set in the control field.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("zcl: frame too short: %d bytes", len(data))
	}

	frame := &Frame{Control: data[0]}

	if frame.Control&FrameControlManufacturerSpecific != 0 {
		if len(data) < 5 {
			return nil, fmt.Errorf("zcl: manufacturer specific frame too short: %d bytes", len(data))
		}
		frame.ManufacturerCode = binary.LittleEndian.Uint16(data[1:3])
		frame.TransactionID = data[3]
		frame.CommandID = data[4]
		frame.Payload = data[5:]
		return frame, nil
	}

	frame.TransactionID = data[1]
	frame.CommandID = data[2]
	frame.Payload = data[3:]
	return frame, nil
}

// Marshal encodes the frame back to wire format.
func (f *Frame) Marshal() []byte {
	data := HeaderManufacturer(f.Control, f.TransactionID, f.CommandID, f.ManufacturerCode)
	return append(data, f.Payload...)
}

// Header returns the wire bytes of a ZCL frame header without a
// manufacturer code.
func Header(control, transactionID, commandID uint8) []byte {
	return HeaderManufacturer(control, transactionID, commandID, 0)
}

// HeaderManufacturer returns the wire bytes of a ZCL frame header. A non-zero
// manufacturer code forces the manufacturer-specific control bit.
func HeaderManufacturer(control, transactionID, commandID uint8, manufacturerCode uint16) []byte {
	if manufacturerCode == 0 {
		return []byte{control &^ FrameControlManufacturerSpecific, transactionID, commandID}
	}

	data := make([]byte, 5)
	data[0] = control | FrameControlManufacturerSpecific
	binary.LittleEndian.PutUint16(data[1:3], manufacturerCode)
	data[3] = transactionID
	data[4] = commandID
	return data
}

// ReadAttributesRequest builds a Read Attributes frame for the given
// attribute ids. A non-zero manufacturer code makes the request
// manufacturer-specific.
func ReadAttributesRequest(transactionID uint8, attributes []uint16, manufacturerCode uint16) []byte {
	request := HeaderManufacturer(0x00, transactionID, CmdReadAttributes, manufacturerCode)
	for _, id := range attributes {
		request = binary.LittleEndian.AppendUint16(request, id)
	}
	return request
}

// Uint24 decodes a little-endian 24-bit unsigned integer.
func Uint24(data []byte) uint32 {
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
}

// Uint48 decodes a little-endian 48-bit unsigned integer.
func Uint48(data []byte) uint64 {
	return uint64(data[0]) | uint64(data[1])<<8 | uint64(data[2])<<16 |
		uint64(data[3])<<24 | uint64(data[4])<<32 | uint64(data[5])<<40
}
