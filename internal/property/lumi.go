package property

import (
	"encoding/binary"
	"math"

	"zigbeed/internal/zcl"
)

// lumiData decodes the proprietary LUMI report: either the 0x00F7 octet
// string container of (tag, type, value) items or the same data points
// reported as plain attributes. Branches keyed on the model name follow the
// firmware quirks of the individual devices.
type lumiData struct {
	base
	modelName string
	version   int
}

func newLumiData(opts Options) *lumiData {
	return &lumiData{
		base:      base{name: "data", clusterID: zcl.ClusterBasic, options: opts},
		modelName: opts.String("modelName"),
		version:   opts.Int("version"),
	}
}

func (p *lumiData) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	value, ok := p.value.(map[string]any)
	if !ok {
		value = make(map[string]any)
	}
	updated := false

	if attributeID == 0x00F7 {
		if dataType != zcl.TypeOctetStr {
			return false
		}
		for offset := 0; offset+2 <= len(data); {
			tag, itemType := uint16(data[offset]), data[offset+1]
			size, err := zcl.DataSize(itemType, data[offset+2:])
			if err != nil || size == 0 {
				break
			}
			if p.parseData(tag, itemType, data[offset+2:offset+2+size], value) {
				updated = true
			}
			offset += 2 + size
		}
	} else {
		updated = p.parseData(attributeID, dataType, data, value)
	}

	if !updated {
		return false
	}
	p.value = value
	return true
}

func (p *lumiData) parseData(dataPoint uint16, dataType uint8, data []byte, value map[string]any) bool {
	switch dataPoint {
	case 0x0003:
		if p.modelName == "lumi.remote.b686opcn01" || p.modelName == "lumi.sen_ill.mgl01" {
			return false
		}
		if dataType != zcl.TypeInt8 || len(data) != 1 {
			return false
		}
		value["temperature"] = int8(data[0])

	case 0x0005:
		if dataType != zcl.TypeUint16 || len(data) != 2 {
			return false
		}
		value["outageCount"] = binary.LittleEndian.Uint16(data) - 1

	case 0x0009:
		if p.modelName != "lumi.remote.b686opcn01" || dataType != zcl.TypeUint8 || len(data) != 1 {
			return false
		}
		value["mode"] = pick([]string{"command", "event"}, int(data[0]))

	case 0x0064:
		if p.modelName != "lumi.sen_ill.mgl01" || dataType != zcl.TypeUint32 || len(data) != 4 {
			return false
		}
		value["illuminance"] = binary.LittleEndian.Uint32(data)

	case 0x0065, 0x0142:
		if p.modelName != "lumi.motion.ac01" || dataType != zcl.TypeInt8 || len(data) != 1 {
			return false
		}
		value["occupancy"] = data[0] != 0

	case 0x0066, 0x010C, 0x0143:
		if p.modelName != "lumi.motion.ac01" || dataType != zcl.TypeUint8 || len(data) != 1 {
			return false
		}
		sensitivity := dataPoint == 0x010C
		if dataPoint == 0x0066 {
			sensitivity = p.version < 50
		}
		if sensitivity {
			value["sensitivity"] = pick([]string{"low", "medium", "high"}, int(data[0])-1)
		} else {
			value["event"] = pick([]string{"enter", "leave", "enterLeft", "leaveRight", "enterRight", "leaveLeft", "approach", "absent"}, int(data[0]))
			value["occupancy"] = data[0] != 0x01
		}

	case 0x0067, 0x0144:
		if p.modelName != "lumi.motion.ac01" || dataType != zcl.TypeUint8 || len(data) != 1 {
			return false
		}
		value["mode"] = pick([]string{"undirected", "directed"}, int(data[0]))

	case 0x0069, 0x0146:
		if p.modelName != "lumi.motion.ac01" || dataType != zcl.TypeUint8 || len(data) != 1 {
			return false
		}
		value["distance"] = pick([]string{"far", "middle", "near"}, int(data[0]))

	case 0x0095:
		v, ok := lumiFloat(dataType, data)
		if !ok {
			return false
		}
		value["energy"] = math.Round(v*100) / 100

	case 0x0096:
		v, ok := lumiFloat(dataType, data)
		if !ok {
			return false
		}
		value["voltage"] = math.Round(v) / 10

	case 0x0097:
		v, ok := lumiFloat(dataType, data)
		if !ok {
			return false
		}
		value["current"] = math.Round(v) / 1000

	case 0x0098:
		v, ok := lumiFloat(dataType, data)
		if !ok {
			return false
		}
		value["power"] = math.Round(v*100) / 100

	default:
		return false
	}
	return true
}

func lumiFloat(dataType uint8, data []byte) (float64, bool) {
	if dataType != zcl.TypeFloat32 || len(data) != 4 {
		return 0, false
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), true
}

func pick(list []string, index int) string {
	if index < 0 || index >= len(list) {
		return "unknown"
	}
	return list[index]
}

// lumiBatteryVoltage extracts millivolts from the two legacy report shapes:
// a character string with the voltage at offset 2 or a structure with the
// voltage at offset 5.
type lumiBatteryVoltage struct{ base }

func newLumiBatteryVoltage(opts Options) *lumiBatteryVoltage {
	return &lumiBatteryVoltage{base{name: "battery", clusterID: zcl.ClusterBasic, options: opts}}
}

func (p *lumiBatteryVoltage) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	switch attributeID {
	case 0xFF01:
		if dataType != zcl.TypeCharStr || len(data) < 4 {
			return false
		}
		p.value = percentage(2850, 3200, float64(binary.LittleEndian.Uint16(data[2:4])))
		return true

	case 0xFF02:
		if dataType != zcl.TypeStruct || len(data) < 7 {
			return false
		}
		p.value = percentage(2850, 3200, float64(binary.LittleEndian.Uint16(data[5:7])))
		return true
	}
	return false
}

type lumiPower struct{ base }

func newLumiPower(opts Options) *lumiPower {
	return &lumiPower{base{name: "power", clusterID: zcl.ClusterAnalogInput, options: opts}}
}

func (p *lumiPower) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0055 {
		return false
	}
	v, ok := lumiFloat(dataType, data)
	if !ok {
		return false
	}
	p.value = math.Round(v*100) / 100
	return true
}

type lumiButtonAction struct{ base }

func newLumiButtonAction(opts Options) *lumiButtonAction {
	return &lumiButtonAction{base{name: "action", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *lumiButtonAction) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	okBool := attributeID == 0x0000 && dataType == zcl.TypeBool
	okMulti := attributeID == 0x8000 && dataType == zcl.TypeUint8
	if (!okBool && !okMulti) || len(data) != 1 {
		return false
	}
	switch data[0] {
	case 0x00:
		p.value = "on"
	case 0x01:
		p.value = "off"
	case 0x02:
		p.value = "doubleClick"
	case 0x03:
		p.value = "tripleClick"
	case 0x04:
		p.value = "quadrupleClick"
	case 0x80:
		p.value = "multipleClick"
	default:
		return false
	}
	return true
}

type lumiSwitchAction struct{ base }

func newLumiSwitchAction(opts Options) *lumiSwitchAction {
	return &lumiSwitchAction{base{name: "action", clusterID: zcl.ClusterMultistateInput, options: opts}}
}

func (p *lumiSwitchAction) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0055 || dataType != zcl.TypeUint16 || len(data) != 2 {
		return false
	}
	switch binary.LittleEndian.Uint16(data) {
	case 0x0000:
		p.value = "longClick"
	case 0x0001:
		p.value = "singleClick"
	case 0x0002:
		p.value = "doubleClick"
	case 0x0003:
		p.value = "tripleClick"
	case 0x00FF:
		p.value = "release"
	default:
		return false
	}
	return true
}

type lumiCubeRotation struct{ base }

func newLumiCubeRotation(opts Options) *lumiCubeRotation {
	return &lumiCubeRotation{base{name: "action", clusterID: zcl.ClusterAnalogInput, options: opts}}
}

func (p *lumiCubeRotation) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0055 {
		return false
	}
	v, ok := lumiFloat(dataType, data)
	if !ok {
		return false
	}
	if v < 0 {
		p.value = "rotateLeft"
	} else {
		p.value = "rotateRight"
	}
	return true
}

type lumiCubeMovement struct{ base }

func newLumiCubeMovement(opts Options) *lumiCubeMovement {
	return &lumiCubeMovement{base{name: "action", clusterID: zcl.ClusterMultistateInput, options: opts}}
}

func (p *lumiCubeMovement) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0055 || dataType != zcl.TypeUint16 || len(data) != 2 {
		return false
	}
	value := int16(binary.LittleEndian.Uint16(data))
	switch {
	case value == 0:
		p.value = "shake"
	case value == 2:
		p.value = "wake"
	case value == 3:
		p.value = "fall"
	case value >= 512:
		p.value = "tap"
	case value >= 256:
		p.value = "slide"
	case value >= 128:
		p.value = "flip"
	case value >= 64:
		p.value = "drop"
	default:
		return false
	}
	return true
}
