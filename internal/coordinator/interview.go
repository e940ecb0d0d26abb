package coordinator

import (
	"encoding/binary"
	"fmt"
	"time"

	"zigbeed/internal/device"
	"zigbeed/internal/zcl"
)

// interviewDevice queues the next interview step for a device that has not
// finished its interview yet and rearms the guard timer.
func (c *Coordinator) interviewDevice(d *device.Device) {
	if d.InterviewFinished {
		return
	}
	c.enqueue(&request{kind: requestInterview, device: d, name: "interview"})

	d.StopInterviewTimer()
	d.InterviewTimer = time.AfterFunc(deviceInterviewTimeout, func() {
		c.post(func() { c.interviewTimeout(d) })
	})
}

func (c *Coordinator) interviewTimeout(d *device.Device) {
	d.InterviewTimer = nil
	if d.InterviewFinished {
		return
	}
	c.logger.Warn("device interview timed out", "device", d.Name)
	c.events.Emit(Event{Type: EventInterviewTimeout, Data: d.Name})
}

// interviewRequest performs the interview step the device is currently at,
// using id as the adapter request id. It returns false when the step could
// not be sent; the queued request is then aborted without retry.
func (c *Coordinator) interviewRequest(id uint8, d *device.Device) bool {
	if d.ManufacturerName == "" || d.ModelName == "" {
		if !d.DescriptorReceived {
			if c.adapter.NodeDescriptorRequest(id, d.NetworkAddress) {
				return true
			}
			c.interviewError(d, "node descriptor request failed")
			return false
		}

		if !d.EndpointsReceived {
			if c.adapter.ActiveEndpointsRequest(id, d.NetworkAddress) {
				return true
			}
			c.interviewError(d, "active endpoints request failed")
			return false
		}

		for _, id8 := range sortedEndpointIDs(d) {
			endpoint := d.Endpoints[id8]
			if endpoint.DescriptorReceived {
				continue
			}
			d.InterviewEndpointID = endpoint.ID
			if c.adapter.SimpleDescriptorRequest(id, d.NetworkAddress, endpoint.ID) {
				return true
			}
			c.interviewError(d, fmt.Sprintf("endpoint 0x%02X simple descriptor request failed", endpoint.ID))
			return false
		}

		for _, id8 := range sortedEndpointIDs(d) {
			endpoint := d.Endpoints[id8]
			if !endpoint.HasInCluster(zcl.ClusterBasic) {
				continue
			}
			payload := zcl.ReadAttributesRequest(id, []uint16{0x0001, 0x0004, 0x0005, 0x0007}, 0)
			if c.adapter.DataRequest(id, d.NetworkAddress, endpoint.ID, zcl.ClusterBasic, payload) {
				return true
			}
			c.interviewError(d, "read basic attributes request failed")
			return false
		}

		c.interviewError(d, "device has empty manufacturer name or model name")
		return false
	}

	for _, id8 := range sortedEndpointIDs(d) {
		endpoint := d.Endpoints[id8]
		if !endpoint.HasInCluster(zcl.ClusterIASZone) {
			continue
		}

		switch endpoint.ZoneStatus {
		case device.ZoneUnknown:
			payload := zcl.ReadAttributesRequest(id, []uint16{0x0000, 0x0010}, 0)
			if c.adapter.DataRequest(id, d.NetworkAddress, endpoint.ID, zcl.ClusterIASZone, payload) {
				return true
			}
			c.interviewError(d, "read current IAS zone status request failed")
			return false

		case device.ZoneSetAddress:
			ieee := c.adapter.IEEEAddress()
			payload := zcl.Header(zcl.FrameControlDisableDefaultResponse, id, zcl.CmdWriteAttributes)
			payload = binary.LittleEndian.AppendUint16(payload, 0x0010)
			payload = append(payload, zcl.TypeEUI64)
			payload = append(payload, ieee[:]...)
			if c.adapter.DataRequest(id, d.NetworkAddress, endpoint.ID, zcl.ClusterIASZone, payload) {
				return true
			}
			c.interviewError(d, "write IAS zone CIE address request failed")
			return false

		case device.ZoneEnroll:
			enroll := zcl.Header(zcl.FrameControlClusterSpecific|zcl.FrameControlDisableDefaultResponse, id, 0x00)
			enroll = append(enroll, 0x00, 0x42) // response code, zone id
			read := zcl.ReadAttributesRequest(id, []uint16{0x0000, 0x0010}, 0)
			if c.adapter.DataRequest(id, d.NetworkAddress, endpoint.ID, zcl.ClusterIASZone, enroll) &&
				c.adapter.DataRequest(id, d.NetworkAddress, endpoint.ID, zcl.ClusterIASZone, read) {
				return true
			}
			c.interviewError(d, "enroll IAS zone request failed")
			return false

		case device.ZoneEnrolled:
			c.logger.Info("IAS zone enrolled", "device", d.Name, "endpoint", endpoint.ID)
		}
	}

	c.interviewFinished(d)
	return true
}

// interviewFinished completes the interview: resolves the device description,
// configures its reportings and persists the result.
func (c *Coordinator) interviewFinished(d *device.Device) {
	c.logger.Info("device identity received",
		"device", d.Name, "manufacturerName", d.ManufacturerName, "modelName", d.ModelName)

	c.database.Setup(d)

	if d.Description != "" {
		c.logger.Info("device identified", "device", d.Name, "description", d.Description)
	}

	for _, id8 := range sortedEndpointIDs(d) {
		endpoint := d.Endpoints[id8]
		for _, reporting := range endpoint.Reportings {
			c.configureReporting(endpoint, reporting)
		}
	}

	c.logger.Info("device interview finished", "device", d.Name)

	d.StopInterviewTimer()
	d.InterviewFinished = true

	c.events.Emit(Event{Type: EventInterviewFinished, Data: d})
	c.storeDatabase()
}

// interviewError aborts an interview in progress. A late error after the
// guard timer already fired is swallowed.
func (c *Coordinator) interviewError(d *device.Device, reason string) {
	if d.InterviewTimer == nil {
		return
	}

	c.logger.Warn("device interview error", "device", d.Name, "reason", reason)
	c.events.Emit(Event{Type: EventInterviewError, Data: d.Name})

	d.StopInterviewTimer()
}

// configureReporting binds the reporting cluster back to the coordinator and
// sends the Configure Reporting command. The reportable change field is
// truncated to the wire size of the attribute data type.
func (c *Coordinator) configureReporting(endpoint *device.Endpoint, reporting *device.Reporting) {
	d := endpoint.Device()

	c.enqueue(&request{
		kind:       requestBinding,
		device:     d,
		name:       reporting.Name,
		endpointID: endpoint.ID,
		clusterID:  reporting.ClusterID,
	})

	payload := zcl.Header(0x00, c.nextZCLTransaction(), zcl.CmdConfigureReporting)
	for _, attributeID := range reporting.Attributes {
		payload = append(payload, 0x00) // direction: reported
		payload = binary.LittleEndian.AppendUint16(payload, attributeID)
		payload = append(payload, reporting.DataType)
		payload = binary.LittleEndian.AppendUint16(payload, reporting.MinInterval)
		payload = binary.LittleEndian.AppendUint16(payload, reporting.MaxInterval)

		size := zcl.TypeSize(reporting.DataType)
		if size > 8 {
			size = 8
		}
		var change [8]byte
		binary.LittleEndian.PutUint16(change[:2], reporting.ValueChange)
		if size > 0 {
			payload = append(payload, change[:size]...)
		}
	}

	c.enqueueData(d, endpoint.ID, reporting.ClusterID, payload, reporting.Name+" reporting configuration")
}

func sortedEndpointIDs(d *device.Device) []uint8 {
	ids := make([]uint8, 0, len(d.Endpoints))
	for id := range d.Endpoints {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
