package property

import (
	"encoding/binary"

	"zigbeed/internal/zcl"
)

// actionBase carries the fields every action encoder shares.
type actionBase struct {
	name       string
	clusterID  uint16
	attributes []uint16
	options    Options
}

func (a *actionBase) Name() string         { return a.name }
func (a *actionBase) ClusterID() uint16    { return a.clusterID }
func (a *actionBase) Attributes() []uint16 { return a.attributes }

type statusAction struct{ actionBase }

func newStatusAction(opts Options) *statusAction {
	return &statusAction{actionBase{name: "status", clusterID: zcl.ClusterOnOff, attributes: []uint16{0x0000}, options: opts}}
}

func (a *statusAction) Request(transactionID uint8, value any) ([]byte, bool) {
	var commandID uint8
	switch value {
	case "off":
		commandID = 0x00
	case "on":
		commandID = 0x01
	case "toggle":
		commandID = 0x02
	default:
		return nil, false
	}
	return zcl.Header(zcl.FrameControlClusterSpecific, transactionID, commandID), true
}

type levelActionEncoder struct{ actionBase }

func newLevelActionEncoder(opts Options) *levelActionEncoder {
	return &levelActionEncoder{actionBase{name: "level", clusterID: zcl.ClusterLevelControl, attributes: []uint16{0x0000}, options: opts}}
}

func (a *levelActionEncoder) Request(transactionID uint8, value any) ([]byte, bool) {
	level, ok := toLevel(value)
	if !ok {
		return nil, false
	}
	// move to level with on/off, zero transition time
	request := zcl.Header(zcl.FrameControlClusterSpecific, transactionID, 0x04)
	request = append(request, level, 0x00, 0x00)
	return request, true
}

func toLevel(value any) (uint8, bool) {
	switch v := value.(type) {
	case int:
		if v >= 0 && v <= 0xFF {
			return uint8(v), true
		}
	case float64:
		if v >= 0 && v <= 0xFF {
			return uint8(v), true
		}
	case uint8:
		return v, true
	}
	return 0, false
}

type colorTemperatureAction struct{ actionBase }

func newColorTemperatureAction(opts Options) *colorTemperatureAction {
	return &colorTemperatureAction{actionBase{name: "colorTemperature", clusterID: zcl.ClusterColorControl, attributes: []uint16{0x0007}, options: opts}}
}

func (a *colorTemperatureAction) Request(transactionID uint8, value any) ([]byte, bool) {
	var mireds uint16
	switch v := value.(type) {
	case int:
		mireds = uint16(v)
	case float64:
		mireds = uint16(v)
	default:
		return nil, false
	}
	// move to color temperature, zero transition time
	request := zcl.Header(zcl.FrameControlClusterSpecific, transactionID, 0x0A)
	request = binary.LittleEndian.AppendUint16(request, mireds)
	request = append(request, 0x00, 0x00)
	return request, true
}

type powerOnStatusAction struct{ actionBase }

func newPowerOnStatusAction(opts Options) *powerOnStatusAction {
	return &powerOnStatusAction{actionBase{name: "powerOnStatus", clusterID: zcl.ClusterOnOff, attributes: []uint16{0x4003}, options: opts}}
}

func (a *powerOnStatusAction) Request(transactionID uint8, value any) ([]byte, bool) {
	var mode uint8
	switch value {
	case "off":
		mode = 0x00
	case "on":
		mode = 0x01
	case "toggle":
		mode = 0x02
	case "previous":
		mode = 0xFF
	default:
		return nil, false
	}
	request := zcl.Header(0x00, transactionID, zcl.CmdWriteAttributes)
	request = binary.LittleEndian.AppendUint16(request, 0x4003)
	request = append(request, zcl.TypeEnum8, mode)
	return request, true
}
