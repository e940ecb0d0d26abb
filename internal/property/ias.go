package property

import (
	"encoding/binary"

	"zigbeed/internal/zcl"
)

// iasZone decodes IAS zone status change notifications. The first bit of the
// status bitmap maps onto the alarm key the variant was registered with,
// tamper and low battery bits are folded into the same map.
type iasZone struct {
	base
	alarmKey string
}

func newIASZone(opts Options, alarmKey string) *iasZone {
	return &iasZone{
		base:     base{name: alarmKey, clusterID: zcl.ClusterIASZone, options: opts},
		alarmKey: alarmKey,
	}
}

func (p *iasZone) ParseCommand(commandID uint8, payload []byte) bool {
	if commandID != 0x00 || len(payload) < 2 {
		return false
	}

	status := binary.LittleEndian.Uint16(payload)
	value, ok := p.value.(map[string]any)
	if !ok {
		value = make(map[string]any)
	}

	value[p.alarmKey] = status&0x0001 != 0
	if status&0x0004 != 0 {
		value["tamper"] = true
	}
	if status&0x0008 != 0 {
		value["batteryLow"] = true
	}

	p.value = value
	return true
}
