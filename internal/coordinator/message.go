package coordinator

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"reflect"
	"strings"
	"time"

	"zigbeed/internal/adapter"
	"zigbeed/internal/device"
	"zigbeed/internal/zcl"
)

// Offset between the UNIX and ZCL UTC epochs (2000-01-01 00:00:00 UTC).
const zigbeeEpochOffset = 946684800

func (c *Coordinator) nodeDescriptorReceived(event adapter.NodeDescriptorEvent) {
	d, ok := c.devices.ByNetworkAddress(event.NetworkAddress)
	if !ok {
		return
	}

	d.LogicalType = device.LogicalType(event.LogicalType)
	d.ManufacturerCode = event.ManufacturerCode
	d.DescriptorReceived = true
	d.LastSeen = time.Now()

	c.logger.Info("node descriptor received",
		"device", d.Name, "manufacturerCode", event.ManufacturerCode, "logicalType", d.LogicalType.String())

	c.interviewDevice(d)
}

func (c *Coordinator) activeEndpointsReceived(event adapter.ActiveEndpointsEvent) {
	d, ok := c.devices.ByNetworkAddress(event.NetworkAddress)
	if !ok {
		return
	}

	for _, endpointID := range event.Endpoints {
		d.Endpoint(endpointID)
	}

	d.EndpointsReceived = true
	d.LastSeen = time.Now()

	c.logger.Info("active endpoints received", "device", d.Name, "endpoints", event.Endpoints)
	c.interviewDevice(d)
}

func (c *Coordinator) simpleDescriptorReceived(event adapter.SimpleDescriptorEvent) {
	d, ok := c.devices.ByNetworkAddress(event.NetworkAddress)
	if !ok {
		return
	}

	// some stacks report endpoint 0 here, fall back to the endpoint the
	// interview asked about
	endpointID := event.EndpointID
	if endpointID == 0 {
		endpointID = d.InterviewEndpointID
	}

	endpoint := d.Endpoint(endpointID)
	endpoint.ProfileID = event.ProfileID
	endpoint.DeviceID = event.DeviceID
	endpoint.InClusters = event.InClusters
	endpoint.OutClusters = event.OutClusters
	endpoint.DescriptorReceived = true

	d.LastSeen = time.Now()

	c.logger.Info("simple descriptor received", "device", d.Name, "endpoint", endpoint.ID)
	c.interviewDevice(d)
}

// messageReceived dispatches one incoming ZCL frame: cluster-specific
// commands and global commands take different paths, and attribute reports
// are acknowledged with a default response unless the sender disabled it.
func (c *Coordinator) messageReceived(event adapter.MessageEvent) {
	d, ok := c.devices.ByNetworkAddress(event.NetworkAddress)
	if !ok {
		return
	}

	frame, err := zcl.ParseFrame(event.Data)
	if err != nil {
		c.logger.Warn("malformed frame received", "device", d.Name, "error", err)
		return
	}

	endpoint := d.Endpoint(event.EndpointID)

	if frame.ClusterSpecific() {
		c.clusterCommandReceived(endpoint, event.ClusterID, frame.TransactionID, frame.CommandID, frame.Payload)
	} else {
		c.globalCommandReceived(endpoint, event.ClusterID, frame.TransactionID, frame.CommandID, frame.Payload)
	}

	d.LinkQuality = event.LinkQuality
	d.LastSeen = time.Now()

	if endpoint.Updated {
		endpoint.Updated = false
		c.storeDatabase()
		c.events.Emit(Event{Type: EventEndpointUpdated, Data: endpoint})
	}

	if (frame.ClusterSpecific() || frame.CommandID == zcl.CmdReportAttributes) && !frame.DisableDefaultResponse() {
		response := zcl.Header(zcl.FrameControlServerToClient|zcl.FrameControlDisableDefaultResponse, frame.TransactionID, zcl.CmdDefaultResponse)
		response = append(response, frame.CommandID, zcl.StatusSuccess)
		c.enqueueData(d, endpoint.ID, event.ClusterID, response, "")
	}
}

func (c *Coordinator) extendedMessageReceived(event adapter.ExtendedMessageEvent) {
	if event.ClusterID == zcl.ClusterTouchLink && len(event.Data) > 2 && event.Data[2] == 0x01 {
		c.logger.Info("touchlink scan response received",
			"ieee", device.IEEEString(event.IEEEAddress), "channel", c.interPanChannel)
		return
	}

	c.logger.Warn("unrecognized extended message received",
		"ieee", device.IEEEString(event.IEEEAddress),
		"endpoint", event.EndpointID,
		"cluster", event.ClusterID,
		"payload", hex.EncodeToString(event.Data))
}

func (c *Coordinator) clusterCommandReceived(endpoint *device.Endpoint, clusterID uint16, transactionID, commandID uint8, payload []byte) {
	d := endpoint.Device()

	if !d.InterviewFinished {
		return
	}

	switch clusterID {
	case zcl.ClusterGroups:
		c.groupsCommandReceived(endpoint, commandID, payload)
		return
	case zcl.ClusterOTAUpgrade:
		c.otaCommandReceived(endpoint, transactionID, commandID, payload)
		return
	}

	check := false
	for _, p := range endpoint.Properties {
		if p.ClusterID() != clusterID {
			continue
		}
		check = true
		before := snapshotValue(p.Value())
		if p.ParseCommand(commandID, payload) && !reflect.DeepEqual(before, p.Value()) {
			endpoint.Updated = true
		}
	}

	if !check {
		c.logger.Warn("no property found for command",
			"device", d.Name, "endpoint", endpoint.ID,
			"cluster", clusterID, "command", commandID,
			"payload", hex.EncodeToString(payload))
	}
}

// groupsCommandReceived logs the outcome of an Add Group or Remove Group
// command previously sent to the device.
func (c *Coordinator) groupsCommandReceived(endpoint *device.Endpoint, commandID uint8, payload []byte) {
	d := endpoint.Device()

	switch commandID {
	case 0x00, 0x03:
		if len(payload) < 3 {
			return
		}

		status := payload[0]
		groupID := binary.LittleEndian.Uint16(payload[1:3])
		action := "added"
		if commandID == 0x03 {
			action = "removed"
		}

		switch status {
		case zcl.StatusSuccess:
			c.logger.Info("group "+action, "device", d.Name, "endpoint", endpoint.ID, "group", groupID)
		case zcl.StatusInsufficientSpace:
			c.logger.Warn("group not added, no free space available", "device", d.Name, "endpoint", endpoint.ID, "group", groupID)
		case zcl.StatusDuplicateExists:
			c.logger.Warn("group already exists", "device", d.Name, "endpoint", endpoint.ID, "group", groupID)
		case zcl.StatusNotFound:
			c.logger.Warn("group not found", "device", d.Name, "endpoint", endpoint.ID, "group", groupID)
		default:
			c.logger.Warn("group command status unrecognized", "device", d.Name, "endpoint", endpoint.ID, "group", groupID, "status", status)
		}

	default:
		c.logger.Warn("unrecognized group control command",
			"device", d.Name, "command", commandID, "payload", hex.EncodeToString(payload))
	}
}

func (c *Coordinator) globalCommandReceived(endpoint *device.Endpoint, clusterID uint16, transactionID, commandID uint8, payload []byte) {
	d := endpoint.Device()

	switch commandID {
	case zcl.CmdConfigureReportingResponse, zcl.CmdDefaultResponse:

	case zcl.CmdReadAttributes:
		c.attributesRequested(endpoint, clusterID, transactionID, payload)

	case zcl.CmdReadAttributesResponse, zcl.CmdReportAttributes:
		c.parseAttributeList(endpoint, clusterID, commandID, payload)

	case zcl.CmdWriteAttributesResponse:
		if clusterID == zcl.ClusterIASZone && len(payload) > 0 && payload[0] == zcl.StatusSuccess {
			endpoint.ZoneStatus = device.ZoneEnroll
			c.interviewDevice(d)
		}

	default:
		c.logger.Warn("unrecognized command received",
			"device", d.Name, "endpoint", endpoint.ID,
			"cluster", clusterID, "command", commandID,
			"payload", hex.EncodeToString(payload))
	}
}

// attributesRequested answers a Read Attributes command addressed to the
// coordinator. Only the Time cluster is served; everything else gets an
// unsupported attribute status.
func (c *Coordinator) attributesRequested(endpoint *device.Endpoint, clusterID uint16, transactionID uint8, payload []byte) {
	d := endpoint.Device()
	response := zcl.Header(zcl.FrameControlServerToClient|zcl.FrameControlDisableDefaultResponse, transactionID, zcl.CmdReadAttributesResponse)

	for i := 0; i+2 <= len(payload); i += 2 {
		attributeID := binary.LittleEndian.Uint16(payload[i : i+2])
		response = append(response, payload[i:i+2]...)

		if clusterID == zcl.ClusterTime && (attributeID == 0x0000 || attributeID == 0x0002 || attributeID == 0x0007) {
			now := time.Now()
			_, utcOffset := now.Zone()
			response = append(response, zcl.StatusSuccess)

			switch attributeID {
			case 0x0000:
				c.logger.Info("device requested UTC time", "device", d.Name)
				response = append(response, zcl.TypeUTC)
				response = binary.LittleEndian.AppendUint32(response, uint32(now.Unix()-zigbeeEpochOffset))
			case 0x0002:
				c.logger.Info("device requested time zone", "device", d.Name)
				response = append(response, zcl.TypeInt32)
				response = binary.LittleEndian.AppendUint32(response, uint32(int32(utcOffset)))
			case 0x0007:
				c.logger.Info("device requested local time", "device", d.Name)
				response = append(response, zcl.TypeUint32)
				response = binary.LittleEndian.AppendUint32(response, uint32(now.Unix()+int64(utcOffset)-zigbeeEpochOffset))
			}
			continue
		}

		c.logger.Warn("device requested unrecognized attribute",
			"device", d.Name, "cluster", clusterID, "attribute", attributeID)
		response = append(response, zcl.StatusUnsupportedAttribute)
	}

	c.enqueueData(d, endpoint.ID, clusterID, response, "")
}

// parseAttributeList walks a Read Attributes Response or Report Attributes
// payload, slicing each value by its data type size.
func (c *Coordinator) parseAttributeList(endpoint *device.Endpoint, clusterID uint16, commandID uint8, payload []byte) {
	d := endpoint.Device()

	for len(payload) > 2 {
		attributeID := binary.LittleEndian.Uint16(payload[:2])

		var dataType uint8
		var offset int

		if commandID == zcl.CmdReadAttributesResponse {
			if payload[2] != zcl.StatusSuccess {
				payload = payload[3:]
				continue
			}
			if len(payload) < 4 {
				return
			}
			dataType = payload[3]
			offset = 4
		} else {
			dataType = payload[2]
			offset = 3
		}

		size, err := zcl.DataSize(dataType, payload[offset:])
		if err != nil {
			c.logger.Warn("unrecognized attribute data",
				"device", d.Name, "endpoint", endpoint.ID,
				"cluster", clusterID, "attribute", attributeID,
				"type", zcl.TypeName(dataType), "error", err)
			return
		}

		data := payload[offset : offset+size]
		if dataType == zcl.TypeOctetStr || dataType == zcl.TypeCharStr {
			data = data[1:] // strip the length prefix
		}

		c.parseAttribute(endpoint, clusterID, attributeID, dataType, data)
		payload = payload[offset+size:]
	}
}

// tuyaModelNames lists the opaque TUYA model codes whose real identity hides
// in the manufacturer name attribute.
var tuyaModelNames = []string{
	"TS0001", "TS0002", "TS0004",
	"TS0011", "TS0012", "TS0013", "TS0014",
	"TS0201", "TS0202", "TS0203", "TS0204", "TS0205", "TS0207",
	"TS0601",
}

var tuyaSingleModelNames = []string{"TS0001", "TS0011", "TS0201", "TS0202", "TS0207", "TS0601"}

// snapshotValue copies the pre-parse state of a property value. The map
// parsers mutate their value in place, so comparing after the parse needs a
// copy; scalar values compare directly.
func snapshotValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	clone := make(map[string]any, len(m))
	for key, item := range m {
		clone[key] = item
	}
	return clone
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func (c *Coordinator) parseAttribute(endpoint *device.Endpoint, clusterID uint16, attributeID uint16, dataType uint8, data []byte) {
	d := endpoint.Device()

	if clusterID == zcl.ClusterBasic {
		switch attributeID {
		case 0x0001:
			if dataType != zcl.TypeUint8 || len(data) < 1 {
				return
			}
			d.Version = data[0]

		case 0x0004:
			if dataType != zcl.TypeCharStr {
				return
			}
			d.ManufacturerName = strings.TrimSpace(string(data))

		case 0x0005:
			if dataType != zcl.TypeCharStr {
				return
			}
			d.ModelName = strings.TrimSpace(string(data))

			// some LUMI devices send the model name attribute on join
			if d.ManufacturerName == "" && strings.HasPrefix(d.ModelName, "lumi.sensor") {
				d.PowerSource = device.PowerSourceBattery
				d.ManufacturerName = "LUMI"
				c.interviewFinished(d)
				return
			}

		case 0x0007:
			if (dataType != zcl.TypeUint8 && dataType != zcl.TypeEnum8) || len(data) < 1 {
				return
			}
			d.PowerSource = data[0]
		}

		if !d.InterviewFinished && d.ManufacturerName != "" && d.ModelName != "" && (attributeID == 0x0004 || attributeID == 0x0005) {
			if contains(tuyaModelNames, d.ModelName) {
				if contains(tuyaSingleModelNames, d.ModelName) {
					d.ModelName = d.ManufacturerName
				}
				d.ManufacturerName = "TUYA"
			}
			c.interviewDevice(d)
		}

		return
	}

	if clusterID == zcl.ClusterIASZone && (attributeID == 0x0000 || attributeID == 0x0010) {
		switch attributeID {
		case 0x0000:
			if dataType != zcl.TypeEnum8 || len(data) < 1 {
				return
			}
			if data[0] != 0 {
				endpoint.ZoneStatus = device.ZoneEnrolled
			} else {
				endpoint.ZoneStatus = device.ZoneEnroll
			}

		case 0x0010:
			if dataType != zcl.TypeEUI64 || len(data) < 8 {
				return
			}
			ieee := c.adapter.IEEEAddress()
			if !bytes.Equal(ieee[:], data[:8]) {
				endpoint.ZoneStatus = device.ZoneSetAddress
			}
			c.interviewDevice(d)
		}

		return
	}

	if !d.InterviewFinished {
		return
	}

	check := false
	for _, p := range endpoint.Properties {
		if p.ClusterID() != clusterID {
			continue
		}
		check = true
		before := snapshotValue(p.Value())
		if p.ParseAttribute(attributeID, dataType, data) && !reflect.DeepEqual(before, p.Value()) {
			endpoint.Updated = true
		}
	}

	if !check {
		c.logger.Warn("no property found for attribute",
			"device", d.Name, "endpoint", endpoint.ID,
			"cluster", clusterID, "attribute", attributeID,
			"type", zcl.TypeName(dataType), "data", hex.EncodeToString(data))
	}
}
