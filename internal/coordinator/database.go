package coordinator

import (
	"errors"

	"zigbeed/internal/device"
	"zigbeed/internal/store"
)

// storeDatabase persists the registry settings and every known device.
func (c *Coordinator) storeDatabase() {
	settings := &store.Settings{
		PermitJoin:     c.devices.PermitJoin,
		AdapterType:    c.devices.AdapterType,
		AdapterVersion: c.devices.AdapterVersion,
	}
	if err := c.store.SaveSettings(settings); err != nil {
		c.logger.Error("save settings failed", "error", err)
	}

	for _, d := range c.devices.All() {
		if err := c.store.SaveDevice(recordFromDevice(d)); err != nil {
			c.logger.Error("save device failed", "device", d.Name, "error", err)
		}
	}
}

// restoreDatabase loads the persisted registry on startup. Devices that
// already finished their interview are bound to the description database
// again so their properties come back.
func (c *Coordinator) restoreDatabase() {
	settings, err := c.store.GetSettings()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.Error("load settings failed", "error", err)
	}
	if settings != nil {
		c.devices.PermitJoin = settings.PermitJoin
		c.devices.AdapterType = settings.AdapterType
		c.devices.AdapterVersion = settings.AdapterVersion
	}

	records, err := c.store.ListDevices()
	if err != nil {
		c.logger.Error("load devices failed", "error", err)
		return
	}

	for _, record := range records {
		d, err := deviceFromRecord(record)
		if err != nil {
			c.logger.Error("restore device failed", "ieee", record.IEEEAddress, "error", err)
			continue
		}

		if d.InterviewFinished && d.ManufacturerName != "" && d.ModelName != "" {
			c.database.Setup(d)
		}

		c.devices.Add(d)
	}

	if c.devices.Len() > 0 {
		c.logger.Info("device database loaded", "devices", c.devices.Len())
	}
}

func recordFromDevice(d *device.Device) *store.DeviceRecord {
	record := &store.DeviceRecord{
		IEEEAddress:        device.IEEEString(d.IEEEAddress),
		NetworkAddress:     d.NetworkAddress,
		Name:               d.Name,
		LogicalType:        uint8(d.LogicalType),
		ManufacturerCode:   d.ManufacturerCode,
		ManufacturerName:   d.ManufacturerName,
		ModelName:          d.ModelName,
		PowerSource:        d.PowerSource,
		Version:            d.Version,
		Description:        d.Description,
		LastSeen:           d.LastSeen,
		Removed:            d.Removed,
		InterviewFinished:  d.InterviewFinished,
		DescriptorReceived: d.DescriptorReceived,
		EndpointsReceived:  d.EndpointsReceived,
	}

	for _, id := range sortedEndpointIDs(d) {
		endpoint := d.Endpoints[id]
		record.Endpoints = append(record.Endpoints, store.EndpointRecord{
			ID:                 endpoint.ID,
			ProfileID:          endpoint.ProfileID,
			DeviceID:           endpoint.DeviceID,
			InClusters:         endpoint.InClusters,
			OutClusters:        endpoint.OutClusters,
			ZoneStatus:         uint8(endpoint.ZoneStatus),
			DescriptorReceived: endpoint.DescriptorReceived,
		})
	}

	return record
}

func deviceFromRecord(record *store.DeviceRecord) (*device.Device, error) {
	ieee, err := device.ParseIEEE(record.IEEEAddress)
	if err != nil {
		return nil, err
	}

	d := device.New(ieee, record.NetworkAddress)
	if record.Name != "" {
		d.Name = record.Name
	}
	d.LogicalType = device.LogicalType(record.LogicalType)
	d.ManufacturerCode = record.ManufacturerCode
	d.ManufacturerName = record.ManufacturerName
	d.ModelName = record.ModelName
	d.PowerSource = record.PowerSource
	d.Version = record.Version
	d.Description = record.Description
	d.LastSeen = record.LastSeen
	d.Removed = record.Removed
	d.InterviewFinished = record.InterviewFinished
	d.DescriptorReceived = record.DescriptorReceived
	d.EndpointsReceived = record.EndpointsReceived

	for _, item := range record.Endpoints {
		endpoint := d.Endpoint(item.ID)
		endpoint.ProfileID = item.ProfileID
		endpoint.DeviceID = item.DeviceID
		endpoint.InClusters = item.InClusters
		endpoint.OutClusters = item.OutClusters
		endpoint.ZoneStatus = device.ZoneStatus(item.ZoneStatus)
		endpoint.DescriptorReceived = item.DescriptorReceived
	}

	return d, nil
}
