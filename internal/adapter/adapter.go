// Package adapter defines the contract between the coordinator core and a
// radio adapter stack (EZSP, ZNP). Requests are fire-and-forget: the bool
// return only says the request was submitted to the stack, completion is
// reported through the OnRequestFinished callback with the request id.
package adapter

// Adapter is the abstract interface for a Zigbee radio adapter.
type Adapter interface {
	// Lifecycle
	Start() error
	Stop()
	Reset()

	// Network management
	SetPermitJoin(enabled bool) bool
	LeaveRequest(id uint8, networkAddress uint16) bool
	LQIRequest(id uint8, networkAddress uint16) bool

	// ZDO
	NodeDescriptorRequest(id uint8, networkAddress uint16) bool
	ActiveEndpointsRequest(id uint8, networkAddress uint16) bool
	SimpleDescriptorRequest(id uint8, networkAddress uint16, endpointID uint8) bool
	BindRequest(id uint8, networkAddress uint16, endpointID uint8, clusterID uint16, dstAddress []byte, dstEndpointID uint8, unbind bool) bool

	// APS
	DataRequest(id uint8, networkAddress uint16, endpointID uint8, clusterID uint16, payload []byte) bool
	ExtendedDataRequest(id uint8, address []byte, dstEndpointID uint8, dstPanID uint16, srcEndpointID uint8, clusterID uint16, payload []byte, group bool) bool

	// Inter-PAN (TouchLink)
	SetInterPanChannel(channel uint8) bool
	SetInterPanEndpointID(endpointID uint8) bool
	ResetInterPan() bool

	// Info
	IEEEAddress() [8]byte
	Type() string
	Version() string
	ManufacturerName() string
	ModelName() string

	// Event callbacks, registered before Start. The adapter invokes them in
	// the order events arrive from the radio.
	OnCoordinatorReady(handler func())
	OnPermitJoinUpdated(handler func(enabled bool))
	OnRequestFinished(handler func(id uint8, status uint8))
	OnDeviceJoined(handler func(DeviceJoinedEvent))
	OnDeviceLeft(handler func(DeviceLeftEvent))
	OnNodeDescriptor(handler func(NodeDescriptorEvent))
	OnActiveEndpoints(handler func(ActiveEndpointsEvent))
	OnSimpleDescriptor(handler func(SimpleDescriptorEvent))
	OnNeighborRecord(handler func(NeighborRecordEvent))
	OnMessage(handler func(MessageEvent))
	OnExtendedMessage(handler func(ExtendedMessageEvent))
}

// DeviceJoinedEvent is emitted when a device joins or rejoins the network.
type DeviceJoinedEvent struct {
	IEEEAddress    [8]byte
	NetworkAddress uint16
}

// DeviceLeftEvent is emitted when a device leaves the network.
type DeviceLeftEvent struct {
	IEEEAddress [8]byte
}

// NodeDescriptorEvent carries a ZDO node descriptor response.
type NodeDescriptorEvent struct {
	NetworkAddress   uint16
	LogicalType      uint8
	ManufacturerCode uint16
}

// ActiveEndpointsEvent carries a ZDO active endpoints response.
type ActiveEndpointsEvent struct {
	NetworkAddress uint16
	Endpoints      []uint8
}

// SimpleDescriptorEvent carries a ZDO simple descriptor response.
type SimpleDescriptorEvent struct {
	NetworkAddress uint16
	EndpointID     uint8
	ProfileID      uint16
	DeviceID       uint16
	InClusters     []uint16
	OutClusters    []uint16
}

// NeighborRecordEvent carries one row of a ZDO LQI response. First marks the
// first record of a response so the receiver can reset the neighbor table of
// the source device.
type NeighborRecordEvent struct {
	SourceAddress  uint16
	NetworkAddress uint16
	LinkQuality    uint8
	First          bool
}

// MessageEvent is an incoming ZCL message addressed by network address.
type MessageEvent struct {
	NetworkAddress uint16
	EndpointID     uint8
	ClusterID      uint16
	LinkQuality    uint8
	Data           []byte
}

// ExtendedMessageEvent is an incoming ZCL message addressed by IEEE address,
// including inter-PAN frames received during a TouchLink scan.
type ExtendedMessageEvent struct {
	IEEEAddress [8]byte
	EndpointID  uint8
	ClusterID   uint16
	LinkQuality uint8
	Data        []byte
}
