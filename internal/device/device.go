// Package device holds the in-memory device model: devices keyed by IEEE
// address, their endpoints, and the description database that binds
// properties, reportings, actions and polls to endpoints.
package device

import (
	"encoding/hex"
	"fmt"
	"time"

	"zigbeed/internal/property"
)

// LogicalType is the ZDO logical device type.
type LogicalType uint8

const (
	Coordinator LogicalType = iota
	Router
	EndDevice
)

func (t LogicalType) String() string {
	switch t {
	case Coordinator:
		return "coordinator"
	case Router:
		return "router"
	default:
		return "end device"
	}
}

// ZoneStatus tracks the IAS zone enroll handshake of an endpoint.
type ZoneStatus uint8

const (
	ZoneUnknown ZoneStatus = iota
	ZoneSetAddress
	ZoneEnroll
	ZoneEnrolled
)

// Reporting describes an attribute reporting configuration bound to an
// endpoint by the description database.
type Reporting struct {
	Name        string   `json:"name"`
	ClusterID   uint16   `json:"clusterId"`
	Attributes  []uint16 `json:"attributes"`
	DataType    uint8    `json:"dataType"`
	MinInterval uint16   `json:"minInterval"`
	MaxInterval uint16   `json:"maxInterval"`
	ValueChange uint16   `json:"valueChange"`
}

// Endpoint is one sub-address of a device with its cluster lists and the
// resolved property/action/poll sets.
type Endpoint struct {
	ID          uint8
	ProfileID   uint16
	DeviceID    uint16
	InClusters  []uint16
	OutClusters []uint16

	ZoneStatus         ZoneStatus
	DescriptorReceived bool
	Updated            bool

	Properties []property.Property
	Reportings []*Reporting
	Actions    []property.Action
	Polls      []*property.Poll

	device *Device
}

// Device returns the owning device.
func (e *Endpoint) Device() *Device { return e.device }

// HasInCluster reports whether the endpoint lists the cluster as a server.
func (e *Endpoint) HasInCluster(clusterID uint16) bool {
	for _, id := range e.InClusters {
		if id == clusterID {
			return true
		}
	}
	return false
}

// Device is one node of the network, keyed by its IEEE address.
type Device struct {
	IEEEAddress    [8]byte
	NetworkAddress uint16
	Name           string

	LogicalType      LogicalType
	ManufacturerCode uint16
	ManufacturerName string
	ModelName        string
	PowerSource      uint8
	Version          uint8
	Description      string

	LastSeen    time.Time
	LinkQuality uint8
	Removed     bool

	InterviewFinished   bool
	DescriptorReceived  bool
	EndpointsReceived   bool
	InterviewEndpointID uint8

	Neighbors map[uint16]uint8
	Endpoints map[uint8]*Endpoint

	// single-shot interview guard, armed on join
	InterviewTimer *time.Timer
}

// New creates a device with the default name (IEEE hex form).
func New(ieee [8]byte, networkAddress uint16) *Device {
	return &Device{
		IEEEAddress:    ieee,
		NetworkAddress: networkAddress,
		Name:           IEEEString(ieee),
		Neighbors:      make(map[uint16]uint8),
		Endpoints:      make(map[uint8]*Endpoint),
	}
}

// Endpoint returns the endpoint with the given id, creating it on first use.
func (d *Device) Endpoint(id uint8) *Endpoint {
	endpoint, ok := d.Endpoints[id]
	if !ok {
		endpoint = &Endpoint{ID: id, device: d}
		d.Endpoints[id] = endpoint
	}
	return endpoint
}

// StopInterviewTimer stops the interview guard if it is armed.
func (d *Device) StopInterviewTimer() {
	if d.InterviewTimer != nil {
		d.InterviewTimer.Stop()
		d.InterviewTimer = nil
	}
}

// BatteryPowered reports whether the device runs on battery per its Basic
// cluster power source attribute.
func (d *Device) BatteryPowered() bool {
	return d.PowerSource == PowerSourceBattery
}

// Power source values from the Basic cluster.
const (
	PowerSourceMains   uint8 = 0x01
	PowerSourceBattery uint8 = 0x03
)

// IEEEString formats an IEEE address as 16 hex digits.
func IEEEString(ieee [8]byte) string {
	return hex.EncodeToString(ieee[:])
}

// ParseIEEE parses a 16-digit hex IEEE address.
func ParseIEEE(s string) ([8]byte, error) {
	var ieee [8]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 8 {
		return ieee, fmt.Errorf("device: invalid ieee address %q", s)
	}
	copy(ieee[:], raw)
	return ieee, nil
}
