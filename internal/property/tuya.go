package property

import (
	"encoding/binary"

	"zigbeed/internal/zcl"
)

// tuyaData is the shared decoder for the TUYA data point protocol on cluster
// 0xEF00. Report commands carry a header (status, transaction, data point,
// data type) followed by a big-endian length and value. Concrete devices
// embed tuyaData and map data points onto named values in update.
type tuyaData struct {
	base
	update func(dataPoint uint8, data any) bool
}

func (p *tuyaData) ParseCommand(commandID uint8, payload []byte) bool {
	if (commandID != 0x01 && commandID != 0x02) || len(payload) < 6 {
		return false
	}

	dataPoint, dataType := payload[2], payload[3]
	length := int(binary.BigEndian.Uint16(payload[4:6]))
	data := payload[6:]
	if length > len(data) {
		return false
	}

	var value any
	switch dataType {
	case 0x01:
		if length != 1 {
			return false
		}
		value = data[0] != 0
	case 0x02:
		if length != 4 {
			return false
		}
		value = binary.BigEndian.Uint32(data[:4])
	case 0x04:
		if length != 1 {
			return false
		}
		value = data[0]
	default:
		return false
	}

	return p.update(dataPoint, value)
}

func (p *tuyaData) valueMap() map[string]any {
	if m, ok := p.value.(map[string]any); ok {
		return m
	}
	return make(map[string]any)
}

type tuyaNeoSiren struct{ tuyaData }

func newTuyaNeoSiren(opts Options) *tuyaNeoSiren {
	p := &tuyaNeoSiren{tuyaData{base: base{name: "siren", clusterID: zcl.ClusterTUYA, options: opts}}}
	p.update = p.apply
	return p
}

func (p *tuyaNeoSiren) apply(dataPoint uint8, data any) bool {
	value := p.valueMap()

	switch dataPoint {
	case 0x05:
		// volume enum has three levels, reports outside them are dropped
		level, ok := data.(uint8)
		if !ok || level > 2 {
			return false
		}
		value["volume"] = []string{"low", "medium", "high"}[level]
	case 0x07:
		value["duration"] = toInt(data)
	case 0x0D:
		value["alarm"] = data == true
	case 0x0F:
		value["battery"] = toInt(data)
	case 0x15:
		value["melody"] = toInt(data)
	default:
		return false
	}

	p.value = value
	return true
}

type tuyaPresenceSensor struct{ tuyaData }

func newTuyaPresenceSensor(opts Options) *tuyaPresenceSensor {
	p := &tuyaPresenceSensor{tuyaData{base: base{name: "presence", clusterID: zcl.ClusterTUYA, options: opts}}}
	p.update = p.apply
	return p
}

func (p *tuyaPresenceSensor) apply(dataPoint uint8, data any) bool {
	value := p.valueMap()

	switch dataPoint {
	case 0x01:
		value["occupancy"] = data == true
	case 0x02:
		value["sensitivity"] = toInt(data)
	case 0x03:
		value["distanceMin"] = float64(toInt(data)) / 100
	case 0x04:
		value["distanceMax"] = float64(toInt(data)) / 100
	case 0x65:
		value["detectionDelay"] = toInt(data)
	case 0x68:
		value["illuminance"] = toInt(data)
	default:
		return false
	}

	p.value = value
	return true
}

func toInt(data any) int {
	switch v := data.(type) {
	case uint8:
		return int(v)
	case uint32:
		return int(v)
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

type tuyaPowerOnStatus struct{ base }

func newTuyaPowerOnStatus(opts Options) *tuyaPowerOnStatus {
	return &tuyaPowerOnStatus{base{name: "powerOnStatus", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *tuyaPowerOnStatus) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x8002 || dataType != zcl.TypeEnum8 || len(data) != 1 {
		return false
	}
	switch data[0] {
	case 0x00:
		p.value = "off"
	case 0x01:
		p.value = "on"
	case 0x02:
		p.value = "previous"
	default:
		return false
	}
	return true
}

type tuyaSwitchType struct{ base }

func newTuyaSwitchType(opts Options) *tuyaSwitchType {
	return &tuyaSwitchType{base{name: "switchType", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *tuyaSwitchType) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0030 || dataType != zcl.TypeEnum8 || len(data) != 1 {
		return false
	}
	switch data[0] {
	case 0x00:
		p.value = "toggle"
	case 0x01:
		p.value = "state"
	case 0x02:
		p.value = "momentary"
	default:
		return false
	}
	return true
}
