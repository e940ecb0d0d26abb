package property

import (
	"encoding/binary"
	"math"

	"zigbeed/internal/zcl"
)

// ptvoAnalog handles PTVO firmware analog input endpoints: the measured value
// arrives in the present-value attribute and is committed only when the unit
// description attribute matches the expected unit string.
type ptvoAnalog struct {
	base
	unit   string
	buffer *float32
}

func newPTVOAnalog(opts Options, name, unit string) *ptvoAnalog {
	return &ptvoAnalog{
		base: base{name: name, clusterID: zcl.ClusterAnalogInput, options: opts},
		unit: unit,
	}
}

func (p *ptvoAnalog) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	switch attributeID {
	case 0x0055:
		if dataType != zcl.TypeFloat32 || len(data) != 4 {
			return false
		}
		value := math.Float32frombits(binary.LittleEndian.Uint32(data))
		p.buffer = &value

	case 0x001C:
		if dataType != zcl.TypeCharStr || string(data) != p.unit || p.buffer == nil {
			return false
		}
		p.value = *p.buffer
		return true
	}
	return false
}

type ptvoChangePattern struct{ base }

func newPTVOChangePattern(opts Options) *ptvoChangePattern {
	return &ptvoChangePattern{base{name: "changePattern", clusterID: zcl.ClusterOnOff, options: opts}}
}

func (p *ptvoChangePattern) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0000 || dataType != zcl.TypeBool || len(data) != 1 {
		return false
	}
	if data[0] != 0 {
		p.value = "on"
	} else {
		p.value = "off"
	}
	return true
}

type ptvoPattern struct{ base }

func newPTVOPattern(opts Options) *ptvoPattern {
	return &ptvoPattern{base{name: "pattern", clusterID: zcl.ClusterAnalogInput, options: opts}}
}

func (p *ptvoPattern) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0055 || dataType != zcl.TypeFloat32 || len(data) != 4 {
		return false
	}
	p.value = uint8(math.Float32frombits(binary.LittleEndian.Uint32(data)))
	return true
}

type ptvoSwitchAction struct{ base }

func newPTVOSwitchAction(opts Options) *ptvoSwitchAction {
	return &ptvoSwitchAction{base{name: "action", clusterID: zcl.ClusterMultistateInput, options: opts}}
}

func (p *ptvoSwitchAction) ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool {
	if attributeID != 0x0055 || dataType != zcl.TypeUint8 || len(data) != 1 {
		return false
	}
	if data[0] != 0 {
		p.value = "on"
	} else {
		p.value = "off"
	}
	return true
}
