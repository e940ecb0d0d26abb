package coordinator

import (
	"encoding/binary"
	"os"

	"zigbeed/internal/device"
	"zigbeed/internal/property"
	"zigbeed/internal/zcl"
)

// Public operations. Each posts onto the event loop, so they are safe to
// call from any goroutine (MQTT handlers, the web API).

// SetPermitJoin asks the adapter to open or close the network. The registry
// state is updated when the adapter confirms via its callback.
func (c *Coordinator) SetPermitJoin(enabled bool) {
	c.post(func() {
		if !c.adapter.SetPermitJoin(enabled) {
			c.logger.Warn("permit join request failed")
		}
	})
}

// editableDevice resolves a device name, excluding removed devices and the
// coordinator itself.
func (c *Coordinator) editableDevice(name string) (*device.Device, bool) {
	d, ok := c.devices.ByName(name)
	if !ok || d.Removed || d.LogicalType == device.Coordinator {
		return nil, false
	}
	return d, true
}

// SetDeviceName renames a device.
func (c *Coordinator) SetDeviceName(name, newName string) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok || newName == "" {
			return
		}
		d.Name = newName
		c.storeDatabase()
		c.events.Emit(Event{Type: EventStatusUpdated, Data: d})
	})
}

// RemoveDevice asks a device to leave the network. With force set the
// registry entry is dropped without waiting for the device to confirm.
func (c *Coordinator) RemoveDevice(name string, force bool) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok {
			return
		}

		if force {
			c.logger.Info("device removed (force)", "device", d.Name)
			c.removeDevice(d)
			c.events.Emit(Event{Type: EventDeviceLeft, Data: d})
			return
		}

		c.enqueue(&request{kind: requestRemove, device: d, name: "remove"})
	})
}

// UpdateDevice re-resolves the device against the description database and
// optionally reconfigures its reportings.
func (c *Coordinator) UpdateDevice(name string, reportings bool) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok {
			return
		}

		c.database.Setup(d)

		if !reportings {
			c.logger.Info("device configuration updated without reportings", "device", d.Name)
			return
		}

		for _, id := range sortedEndpointIDs(d) {
			endpoint := d.Endpoints[id]
			for _, reporting := range endpoint.Reportings {
				c.configureReporting(endpoint, reporting)
			}
		}

		c.logger.Info("device configuration updated", "device", d.Name)
	})
}

// UpdateReporting overrides reporting intervals and pushes the new
// configuration to the device. Zero endpointID means every endpoint, empty
// reportingName means every reporting; zero interval values keep the
// current setting.
func (c *Coordinator) UpdateReporting(name string, endpointID uint8, reportingName string, minInterval, maxInterval, valueChange uint16) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok {
			return
		}

		for _, id := range sortedEndpointIDs(d) {
			endpoint := d.Endpoints[id]
			if endpointID != 0 && endpoint.ID != endpointID {
				continue
			}

			for _, reporting := range endpoint.Reportings {
				if reportingName != "" && reporting.Name != reportingName {
					continue
				}
				if minInterval != 0 {
					reporting.MinInterval = minInterval
				}
				if maxInterval != 0 {
					reporting.MaxInterval = maxInterval
				}
				if valueChange != 0 {
					reporting.ValueChange = valueChange
				}
				c.configureReporting(endpoint, reporting)
			}
		}
	})
}

// BindingControl binds or unbinds a cluster of a device endpoint either to
// another device (destination given as a name string) or to a group
// (destination given as an integer group id).
func (c *Coordinator) BindingControl(name string, endpointID uint8, clusterID uint16, destination any, dstEndpointID uint8, unbind bool) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok {
			return
		}

		switch dst := destination.(type) {
		case string:
			target, ok := c.devices.ByName(dst)
			if !ok || target.Removed {
				return
			}
			c.enqueue(&request{
				kind:          requestBinding,
				device:        d,
				endpointID:    endpointID,
				clusterID:     clusterID,
				dstAddress:    append([]byte(nil), target.IEEEAddress[:]...),
				dstEndpointID: dstEndpointID,
				unbind:        unbind,
			})

		case int, int64, float64, uint16:
			groupID := toUint16(dst)
			if groupID == 0 {
				return
			}
			address := binary.LittleEndian.AppendUint16(nil, groupID)
			c.enqueue(&request{
				kind:          requestBinding,
				device:        d,
				endpointID:    endpointID,
				clusterID:     clusterID,
				dstAddress:    address,
				dstEndpointID: 0xFF,
				unbind:        unbind,
			})
		}
	})
}

func toUint16(value any) uint16 {
	switch v := value.(type) {
	case int:
		return uint16(v)
	case int64:
		return uint16(v)
	case float64:
		return uint16(v)
	case uint16:
		return v
	}
	return 0
}

// GroupControl adds the device endpoint to a group or removes it.
func (c *Coordinator) GroupControl(name string, endpointID uint8, groupID uint16, remove bool) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok {
			return
		}
		if endpointID == 0 {
			endpointID = 1
		}

		commandID := uint8(0x00)
		if remove {
			commandID = 0x03
		}

		payload := zcl.Header(zcl.FrameControlClusterSpecific, c.nextZCLTransaction(), commandID)
		payload = binary.LittleEndian.AppendUint16(payload, groupID)
		if !remove {
			payload = append(payload, 0x00) // empty group name
		}

		c.enqueueData(d, endpointID, zcl.ClusterGroups, payload, "group control request")
	})
}

// RemoveAllGroups clears the group table of a device endpoint.
func (c *Coordinator) RemoveAllGroups(name string, endpointID uint8) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok {
			return
		}
		if endpointID == 0 {
			endpointID = 1
		}

		payload := zcl.Header(zcl.FrameControlClusterSpecific, c.nextZCLTransaction(), 0x04)
		c.enqueueData(d, endpointID, zcl.ClusterGroups, payload, "remove all groups request")
	})
}

// OTAUpgrade starts an OTA upgrade using the given image file. The device
// pulls the image through the OTA cluster commands in ota.go.
func (c *Coordinator) OTAUpgrade(name string, endpointID uint8, fileName string) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok || fileName == "" {
			return
		}
		if _, err := os.Stat(fileName); err != nil {
			c.logger.Warn("OTA upgrade file unavailable", "device", d.Name, "file", fileName, "error", err)
			return
		}
		if endpointID == 0 {
			endpointID = 1
		}

		c.otaUpgradeFile = fileName

		payload := zcl.Header(zcl.FrameControlClusterSpecific|zcl.FrameControlServerToClient, c.nextZCLTransaction(), 0x00)
		payload = append(payload, 0x00, 0x64) // payload type, query jitter
		c.enqueueData(d, endpointID, zcl.ClusterOTAUpgrade, payload, "OTA upgrade notify")
	})
}

// DeviceAction encodes a named action and sends it to the device. After a
// poll-backed action the affected attributes are read back.
func (c *Coordinator) DeviceAction(name string, endpointID uint8, actionName string, value any) {
	c.post(func() {
		d, ok := c.editableDevice(name)
		if !ok {
			return
		}

		for _, id := range sortedEndpointIDs(d) {
			endpoint := d.Endpoints[id]
			if endpointID != 0 && endpoint.ID != endpointID {
				continue
			}

			for _, action := range endpoint.Actions {
				if action.Name() != actionName {
					continue
				}

				if data, ok := action.Request(c.nextZCLTransaction(), value); ok && len(data) > 0 {
					c.enqueueData(d, endpoint.ID, action.ClusterID(), data, action.Name()+" action")
				}

				if attributes := action.Attributes(); len(attributes) > 0 {
					c.readAttributes(d, endpoint.ID, action.ClusterID(), attributes, 0)
				}

				break
			}
		}
	})
}

// GroupAction encodes a named action and multicasts it to a group.
func (c *Coordinator) GroupAction(groupID uint16, actionName string, value any) {
	c.post(func() {
		action, err := property.NewAction(actionName, nil)
		if err != nil {
			c.logger.Warn("unknown group action", "action", actionName)
			return
		}

		data, ok := action.Request(c.nextZCLTransaction(), value)
		if !ok || len(data) == 0 {
			return
		}

		address := binary.LittleEndian.AppendUint16(nil, groupID)
		if !c.adapter.ExtendedDataRequest(c.nextZCLTransaction(), address, 0xFF, 0x0000, 0x01, action.ClusterID(), data, true) {
			c.logger.Warn("group action request failed", "group", groupID, "action", actionName)
		}
	})
}
