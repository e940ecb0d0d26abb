package property

import (
	"encoding/binary"
	"fmt"
	"math"

	"zigbeed/internal/zcl"
)

type batteryVoltage struct{ base }

func newBatteryVoltage(opts Options) *batteryVoltage {
	return &batteryVoltage{base{name: "battery", clusterID: zcl.ClusterPowerConfiguration, options: opts}}
}

func (p *batteryVoltage) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0020 || dataType != zcl.TypeUint8 || len(data) != 1 {
		return false
	}
	p.value = percentage(2850, 3200, float64(data[0])*100)
	return true
}

type batteryPercentage struct{ base }

func newBatteryPercentage(opts Options) *batteryPercentage {
	return &batteryPercentage{base{name: "battery", clusterID: zcl.ClusterPowerConfiguration, options: opts}}
}

func (p *batteryPercentage) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0021 || dataType != zcl.TypeUint8 || len(data) != 1 {
		return false
	}
	if p.options.Bool("batteryUndivided") {
		p.value = float64(data[0])
	} else {
		p.value = float64(data[0]) / 2
	}
	return true
}

type status struct{ base }

func newStatus(opts Options) *status {
	return &status{base{name: "status", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *status) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || (dataType != zcl.TypeBool && dataType != zcl.TypeUint8) || len(data) != 1 {
		return false
	}
	if data[0] != 0 {
		p.value = "on"
	} else {
		p.value = "off"
	}
	return true
}

type contact struct{ base }

func newContact(opts Options) *contact {
	return &contact{base{name: "contact", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *contact) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || dataType != zcl.TypeBool || len(data) != 1 {
		return false
	}
	p.value = data[0] != 0
	return true
}

type powerOnStatus struct{ base }

func newPowerOnStatus(opts Options) *powerOnStatus {
	return &powerOnStatus{base{name: "powerOnStatus", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *powerOnStatus) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x4003 || dataType != zcl.TypeEnum8 || len(data) != 1 {
		return false
	}
	switch data[0] {
	case 0x00:
		p.value = "off"
	case 0x01:
		p.value = "on"
	case 0x02:
		p.value = "toggle"
	case 0xFF:
		p.value = "previous"
	default:
		return false
	}
	return true
}

type level struct{ base }

func newLevel(opts Options) *level {
	return &level{base{name: "level", clusterID: zcl.ClusterLevelControl, options: opts}}
}

func (p *level) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || dataType != zcl.TypeUint8 || len(data) != 1 {
		return false
	}
	p.value = data[0]
	return true
}

// colorHS buffers hue and saturation until both have arrived.
type colorHS struct {
	base
	colorH, colorS *uint8
}

func newColorHS(opts Options) *colorHS {
	return &colorHS{base: base{name: "color", clusterID: zcl.ClusterColorControl, options: opts}}
}

func (p *colorHS) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if dataType != zcl.TypeUint8 || len(data) != 1 {
		return false
	}
	switch attributeID {
	case 0x0000:
		v := data[0]
		p.colorH = &v
	case 0x0001:
		v := data[0]
		p.colorS = &v
	default:
		return false
	}
	if p.colorH == nil || p.colorS == nil {
		return false
	}
	p.value = []any{*p.colorH, *p.colorS}
	return true
}

// colorXY buffers both chromaticity coordinates until both have arrived.
type colorXY struct {
	base
	colorX, colorY *float64
}

func newColorXY(opts Options) *colorXY {
	return &colorXY{base: base{name: "color", clusterID: zcl.ClusterColorControl, options: opts}}
}

func (p *colorXY) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if dataType != zcl.TypeUint16 || len(data) != 2 {
		return false
	}
	value := float64(binary.LittleEndian.Uint16(data)) / 0xFFFF
	switch attributeID {
	case 0x0003:
		p.colorX = &value
	case 0x0004:
		p.colorY = &value
	default:
		return false
	}
	if p.colorX == nil || p.colorY == nil {
		return false
	}
	p.value = []any{*p.colorX, *p.colorY}
	return true
}

type colorTemperature struct{ base }

func newColorTemperature(opts Options) *colorTemperature {
	return &colorTemperature{base{name: "colorTemperature", clusterID: zcl.ClusterColorControl, options: opts}}
}

func (p *colorTemperature) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0007 || dataType != zcl.TypeUint16 || len(data) != 2 {
		return false
	}
	p.value = binary.LittleEndian.Uint16(data)
	return true
}

type illuminance struct{ base }

func newIlluminance(opts Options) *illuminance {
	return &illuminance{base{name: "illuminance", clusterID: zcl.ClusterIlluminance, options: opts}}
}

func (p *illuminance) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || dataType != zcl.TypeUint16 || len(data) != 2 {
		return false
	}
	raw := binary.LittleEndian.Uint16(data)
	if raw == 0 {
		p.value = uint32(0)
	} else {
		p.value = uint32(math.Round(math.Pow(10, float64(raw-1)/10000)))
	}
	return true
}

type temperature struct{ base }

func newTemperature(opts Options) *temperature {
	return &temperature{base{name: "temperature", clusterID: zcl.ClusterTemperature, options: opts}}
}

func (p *temperature) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || dataType != zcl.TypeInt16 || len(data) != 2 {
		return false
	}
	p.value = float64(int16(binary.LittleEndian.Uint16(data))) / 100
	return true
}

type humidity struct{ base }

func newHumidity(opts Options) *humidity {
	return &humidity{base{name: "humidity", clusterID: zcl.ClusterHumidity, options: opts}}
}

func (p *humidity) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || dataType != zcl.TypeUint16 || len(data) != 2 {
		return false
	}
	p.value = float64(binary.LittleEndian.Uint16(data)) / 100
	return true
}

type occupancy struct{ base }

func newOccupancy(opts Options) *occupancy {
	return &occupancy{base{name: "occupancy", clusterID: zcl.ClusterOccupancy, options: opts}}
}

func (p *occupancy) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || dataType != zcl.TypeBitmap8 || len(data) != 1 {
		return false
	}
	p.value = data[0] != 0
	return true
}

// energy reports the summation counter scaled by the metering multiplier and
// divisor. Nothing is published until both scale attributes are known.
type energy struct {
	base
	multiplier, divider uint32
}

func newEnergy(opts Options) *energy {
	return &energy{base: base{name: "energy", clusterID: zcl.ClusterMetering, options: opts}}
}

func (p *energy) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	switch attributeID {
	case 0x0000:
		if dataType != zcl.TypeUint48 || len(data) != 6 || p.multiplier == 0 || p.divider == 0 {
			return false
		}
		value := float64(zcl.Uint48(data))
		if p.multiplier > 1 {
			value *= float64(p.multiplier)
		}
		if p.divider > 1 {
			value /= float64(p.divider)
		}
		p.value = value
		return true

	case 0x0301:
		if dataType != zcl.TypeUint24 || len(data) != 3 {
			return false
		}
		p.multiplier = zcl.Uint24(data)

	case 0x0302:
		if dataType != zcl.TypeUint24 || len(data) != 3 {
			return false
		}
		p.divider = zcl.Uint24(data)
	}
	return false
}

type power struct {
	base
	multiplier, divider uint16
}

func newPower(opts Options) *power {
	return &power{base: base{name: "power", clusterID: zcl.ClusterElectricalMeasurement, options: opts}}
}

func (p *power) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	switch attributeID {
	case 0x050B:
		if dataType != zcl.TypeInt16 || len(data) != 2 || p.multiplier == 0 || p.divider == 0 {
			return false
		}
		value := float64(int16(binary.LittleEndian.Uint16(data)))
		if p.multiplier > 1 {
			value *= float64(p.multiplier)
		}
		if p.divider > 1 {
			value /= float64(p.divider)
		}
		p.value = value
		return true

	case 0x0604:
		if dataType != zcl.TypeUint16 || len(data) != 2 {
			return false
		}
		p.multiplier = binary.LittleEndian.Uint16(data)

	case 0x0605:
		if dataType != zcl.TypeUint16 || len(data) != 2 {
			return false
		}
		p.divider = binary.LittleEndian.Uint16(data)
	}
	return false
}

type scene struct{ base }

func newScene(opts Options) *scene {
	return &scene{base{name: "scene", clusterID: zcl.ClusterScenes, options: opts}}
}

func (p *scene) ParseCommand(commandID uint8, payload []byte) bool {
	// recall scene: group id u16, scene id u8
	if commandID != 0x05 || len(payload) < 3 {
		return false
	}
	sceneID := payload[2]
	if name, ok := p.options.Map("scenes")[fmt.Sprintf("%d", sceneID)]; ok {
		p.value = name
	} else {
		p.value = sceneID
	}
	return true
}

type identifyAction struct{ base }

func newIdentifyAction(opts Options) *identifyAction {
	return &identifyAction{base{name: "action", clusterID: zcl.ClusterIdentify, options: opts}}
}

func (p *identifyAction) ParseCommand(commandID uint8, payload []byte) bool {
	if commandID != 0x01 {
		return false
	}
	p.value = "identify"
	return true
}

type switchAction struct{ base }

func newSwitchAction(opts Options) *switchAction {
	return &switchAction{base{name: "action", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *switchAction) ParseCommand(commandID uint8, payload []byte) bool {
	switch commandID {
	case 0x00:
		p.value = "off"
	case 0x01:
		p.value = "on"
	case 0x02:
		p.value = "toggle"
	default:
		return false
	}
	return true
}

type levelAction struct{ base }

func newLevelAction(opts Options) *levelAction {
	return &levelAction{base{name: "action", clusterID: zcl.ClusterLevelControl, options: opts}}
}

func (p *levelAction) ParseCommand(commandID uint8, payload []byte) bool {
	switch commandID {
	case 0x01:
		p.value = "moveDown"
	case 0x05:
		p.value = "moveUp"
	case 0x07:
		p.value = "moveStop"
	default:
		return false
	}
	return true
}
