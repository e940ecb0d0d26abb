package property

import (
	"encoding/binary"

	"zigbeed/internal/zcl"
)

type konkeButtonAction struct{ base }

func newKonkeButtonAction(opts Options) *konkeButtonAction {
	return &konkeButtonAction{base{name: "action", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *konkeButtonAction) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || len(data) != 1 {
		return false
	}
	switch data[0] {
	case 0x80:
		p.value = "singleClick"
	case 0x81:
		p.value = "doubleClick"
	case 0x82:
		p.value = "longClick"
	default:
		return false
	}
	return true
}

type lifeControlAirQuality struct{ base }

func newLifeControlAirQuality(opts Options) *lifeControlAirQuality {
	return &lifeControlAirQuality{base{name: "airQuality", clusterID: zcl.ClusterTemperature, options: opts}}
}

func (p *lifeControlAirQuality) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if (dataType != zcl.TypeUint16 && dataType != zcl.TypeInt16) || len(data) != 2 {
		return false
	}

	value, ok := p.value.(map[string]any)
	if !ok {
		value = make(map[string]any)
	}
	raw := int16(binary.LittleEndian.Uint16(data))

	switch attributeID {
	case 0x0000:
		value["temperature"] = float64(raw) / 100
	case 0x0001:
		value["humidity"] = float64(raw) / 100
	case 0x0002:
		value["eco2"] = raw
	case 0x0003:
		value["voc"] = raw
	default:
		return false
	}

	p.value = value
	return true
}

type perenioSmartPlug struct{ base }

func newPerenioSmartPlug(opts Options) *perenioSmartPlug {
	return &perenioSmartPlug{base{name: "smartPlug", clusterID: 0xFC11, options: opts}}
}

func (p *perenioSmartPlug) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	value, ok := p.value.(map[string]any)
	if !ok {
		value = make(map[string]any)
	}

	switch attributeID {
	case 0x0000:
		if dataType != zcl.TypeUint8 || len(data) != 1 {
			return false
		}
		switch data[0] {
		case 0x00:
			value["powerOnStatus"] = "off"
		case 0x01:
			value["powerOnStatus"] = "on"
		case 0x02:
			value["powerOnStatus"] = "previous"
		default:
			return false
		}

	case 0x0001:
		if dataType != zcl.TypeUint8 || len(data) != 1 {
			return false
		}
		value["alarmVoltageMin"] = data[0]&0x01 != 0
		value["alarmVoltageMax"] = data[0]&0x02 != 0
		value["alarmPowerMax"] = data[0]&0x04 != 0
		value["alarmEnergyLimit"] = data[0]&0x08 != 0

	case 0x000E:
		if dataType != zcl.TypeUint32 || len(data) != 4 {
			return false
		}
		value["energy"] = float64(binary.LittleEndian.Uint32(data)) / 1000

	default:
		if dataType != zcl.TypeUint16 || len(data) != 2 {
			return false
		}
		raw := binary.LittleEndian.Uint16(data)
		switch attributeID {
		case 0x0003:
			value["voltage"] = raw
		case 0x0004:
			value["voltageMin"] = raw
		case 0x0005:
			value["voltageMax"] = raw
		case 0x000A:
			value["power"] = raw
		case 0x000B:
			value["powerMax"] = raw
		case 0x000F:
			value["energyLimit"] = raw
		default:
			return false
		}
	}

	p.value = value
	return true
}
