package store

import "time"

// DeviceRecord is the persisted form of one device.
type DeviceRecord struct {
	IEEEAddress      string    `json:"ieeeAddress"`
	NetworkAddress   uint16    `json:"networkAddress"`
	Name             string    `json:"name,omitempty"`
	LogicalType      uint8     `json:"logicalType"`
	ManufacturerCode uint16    `json:"manufacturerCode,omitempty"`
	ManufacturerName string    `json:"manufacturerName,omitempty"`
	ModelName        string    `json:"modelName,omitempty"`
	PowerSource      uint8     `json:"powerSource,omitempty"`
	Version          uint8     `json:"version,omitempty"`
	Description      string    `json:"description,omitempty"`
	LastSeen         time.Time `json:"lastSeen"`
	Removed          bool      `json:"removed,omitempty"`

	InterviewFinished  bool `json:"interviewFinished"`
	DescriptorReceived bool `json:"descriptorReceived"`
	EndpointsReceived  bool `json:"endpointsReceived"`

	Endpoints []EndpointRecord `json:"endpoints,omitempty"`
}

// EndpointRecord is the persisted form of one endpoint.
type EndpointRecord struct {
	ID                 uint8    `json:"id"`
	ProfileID          uint16   `json:"profileId"`
	DeviceID           uint16   `json:"deviceId"`
	InClusters         []uint16 `json:"inClusters,omitempty"`
	OutClusters        []uint16 `json:"outClusters,omitempty"`
	ZoneStatus         uint8    `json:"zoneStatus,omitempty"`
	DescriptorReceived bool     `json:"descriptorReceived"`
}

// Settings holds the coordinator state that survives restarts.
type Settings struct {
	PermitJoin     bool   `json:"permitJoin"`
	AdapterType    string `json:"adapterType,omitempty"`
	AdapterVersion string `json:"adapterVersion,omitempty"`
}
