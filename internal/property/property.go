// Package property implements the closed registry of device properties:
// decoders that turn ZCL attribute reports and cluster commands into named
// values, actions that encode outbound control requests, and polls that
// describe attributes to read periodically. Properties are resolved by name
// from the device description database; unknown names are rejected.
package property

import "fmt"

// Options carries per-device tuning flags from the description database
// (batteryUndivided, scenes, ...).
type Options map[string]any

// Bool returns the named option as a bool, false when absent.
func (o Options) Bool(name string) bool {
	v, ok := o[name].(bool)
	return ok && v
}

// String returns the named option as a string.
func (o Options) String(name string) string {
	v, _ := o[name].(string)
	return v
}

// Int returns the named option as an int, 0 when absent.
func (o Options) Int(name string) int {
	switch v := o[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Map returns the named option as a nested map.
func (o Options) Map(name string) map[string]any {
	v, _ := o[name].(map[string]any)
	return v
}

// Property decodes incoming ZCL data for one cluster into a named value.
// ParseAttribute and ParseCommand return true when the payload was accepted;
// the dispatcher compares the value before and after to detect a change.
type Property interface {
	Name() string
	ClusterID() uint16
	Value() any
	Clear()
	ParseAttribute(attributeID uint16, dataType uint8, data []byte) bool
	ParseCommand(commandID uint8, payload []byte) bool
}

// Action encodes an outbound control request for one cluster. Attributes
// lists the attributes to read back after the action completes.
type Action interface {
	Name() string
	ClusterID() uint16
	Request(transactionID uint8, value any) ([]byte, bool)
	Attributes() []uint16
}

// Poll names a set of attributes to read periodically from one cluster.
type Poll struct {
	PollName string
	Cluster  uint16
	AttrList []uint16
}

func (p *Poll) Name() string         { return p.PollName }
func (p *Poll) ClusterID() uint16    { return p.Cluster }
func (p *Poll) Attributes() []uint16 { return p.AttrList }

type propertyConstructor func(opts Options) Property
type actionConstructor func(opts Options) Action

var properties = map[string]propertyConstructor{
	// standard
	"batteryVoltage":    func(o Options) Property { return newBatteryVoltage(o) },
	"batteryPercentage": func(o Options) Property { return newBatteryPercentage(o) },
	"status":            func(o Options) Property { return newStatus(o) },
	"contact":           func(o Options) Property { return newContact(o) },
	"powerOnStatus":     func(o Options) Property { return newPowerOnStatus(o) },
	"level":             func(o Options) Property { return newLevel(o) },
	"colorHS":           func(o Options) Property { return newColorHS(o) },
	"colorXY":           func(o Options) Property { return newColorXY(o) },
	"colorTemperature":  func(o Options) Property { return newColorTemperature(o) },
	"illuminance":       func(o Options) Property { return newIlluminance(o) },
	"temperature":       func(o Options) Property { return newTemperature(o) },
	"humidity":          func(o Options) Property { return newHumidity(o) },
	"occupancy":         func(o Options) Property { return newOccupancy(o) },
	"energy":            func(o Options) Property { return newEnergy(o) },
	"power":             func(o Options) Property { return newPower(o) },
	"scene":             func(o Options) Property { return newScene(o) },
	"identifyAction":    func(o Options) Property { return newIdentifyAction(o) },
	"switchAction":      func(o Options) Property { return newSwitchAction(o) },
	"levelAction":       func(o Options) Property { return newLevelAction(o) },

	// IAS zone
	"iasContact":   func(o Options) Property { return newIASZone(o, "contact") },
	"iasGas":       func(o Options) Property { return newIASZone(o, "gas") },
	"iasOccupancy": func(o Options) Property { return newIASZone(o, "occupancy") },
	"iasSmoke":     func(o Options) Property { return newIASZone(o, "smoke") },
	"iasWaterLeak": func(o Options) Property { return newIASZone(o, "waterLeak") },

	// PTVO firmware
	"ptvoCO2":           func(o Options) Property { return newPTVOAnalog(o, "co2", "ppm") },
	"ptvoTemperature":   func(o Options) Property { return newPTVOAnalog(o, "temperature", "C") },
	"ptvoChangePattern": func(o Options) Property { return newPTVOChangePattern(o) },
	"ptvoPattern":       func(o Options) Property { return newPTVOPattern(o) },
	"ptvoSwitchAction":  func(o Options) Property { return newPTVOSwitchAction(o) },

	// LUMI
	"lumiData":           func(o Options) Property { return newLumiData(o) },
	"lumiBatteryVoltage": func(o Options) Property { return newLumiBatteryVoltage(o) },
	"lumiPower":          func(o Options) Property { return newLumiPower(o) },
	"lumiButtonAction":   func(o Options) Property { return newLumiButtonAction(o) },
	"lumiSwitchAction":   func(o Options) Property { return newLumiSwitchAction(o) },
	"lumiCubeRotation":   func(o Options) Property { return newLumiCubeRotation(o) },
	"lumiCubeMovement":   func(o Options) Property { return newLumiCubeMovement(o) },

	// TUYA
	"tuyaNeoSiren":       func(o Options) Property { return newTuyaNeoSiren(o) },
	"tuyaPresenceSensor": func(o Options) Property { return newTuyaPresenceSensor(o) },
	"tuyaPowerOnStatus":  func(o Options) Property { return newTuyaPowerOnStatus(o) },
	"tuyaSwitchType":     func(o Options) Property { return newTuyaSwitchType(o) },

	// other vendors
	"konkeButtonAction":     func(o Options) Property { return newKonkeButtonAction(o) },
	"lifeControlAirQuality": func(o Options) Property { return newLifeControlAirQuality(o) },
	"perenioSmartPlug":      func(o Options) Property { return newPerenioSmartPlug(o) },
}

var actions = map[string]actionConstructor{
	"status":           func(o Options) Action { return newStatusAction(o) },
	"level":            func(o Options) Action { return newLevelActionEncoder(o) },
	"colorTemperature": func(o Options) Action { return newColorTemperatureAction(o) },
	"powerOnStatus":    func(o Options) Action { return newPowerOnStatusAction(o) },
}

var polls = map[string]Poll{
	"status":           {PollName: "status", Cluster: 0x0006, AttrList: []uint16{0x0000}},
	"level":            {PollName: "level", Cluster: 0x0008, AttrList: []uint16{0x0000}},
	"colorTemperature": {PollName: "colorTemperature", Cluster: 0x0300, AttrList: []uint16{0x0007}},
	"energy":           {PollName: "energy", Cluster: 0x0702, AttrList: []uint16{0x0000, 0x0301, 0x0302}},
	"power":            {PollName: "power", Cluster: 0x0B04, AttrList: []uint16{0x050B, 0x0604, 0x0605}},
}

// NewProperty resolves a property constructor by registry name.
func NewProperty(name string, opts Options) (Property, error) {
	ctor, ok := properties[name]
	if !ok {
		return nil, fmt.Errorf("property: unknown property %q", name)
	}
	return ctor(opts), nil
}

// NewAction resolves an action encoder by registry name.
func NewAction(name string, opts Options) (Action, error) {
	ctor, ok := actions[name]
	if !ok {
		return nil, fmt.Errorf("property: unknown action %q", name)
	}
	return ctor(opts), nil
}

// NewPoll resolves a poll definition by registry name.
func NewPoll(name string) (*Poll, error) {
	p, ok := polls[name]
	if !ok {
		return nil, fmt.Errorf("property: unknown poll %q", name)
	}
	return &p, nil
}

// base carries the fields every property shares. Embedders override the
// parse methods they handle.
type base struct {
	name      string
	clusterID uint16
	options   Options
	value     any
}

func (b *base) Name() string      { return b.name }
func (b *base) ClusterID() uint16 { return b.clusterID }
func (b *base) Value() any        { return b.value }
func (b *base) Clear()            { b.value = nil }

func (b *base) ParseAttribute(uint16, uint8, []byte) bool { return false }
func (b *base) ParseCommand(uint8, []byte) bool           { return false }

// percentage maps value onto 0..100 linearly between min and max, clamped.
func percentage(min, max, value float64) uint8 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return uint8((value - min) / (max - min) * 100)
}
