package property

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"zigbeed/internal/zcl"
)

func mustProperty(t *testing.T, name string, opts Options) Property {
	t.Helper()
	p, err := NewProperty(name, opts)
	if err != nil {
		t.Fatalf("NewProperty(%q): %v", name, err)
	}
	return p
}

func TestUnknownNames(t *testing.T) {
	if _, err := NewProperty("bogus", nil); err == nil {
		t.Error("expected error for unknown property")
	}
	if _, err := NewAction("bogus", nil); err == nil {
		t.Error("expected error for unknown action")
	}
	if _, err := NewPoll("bogus"); err == nil {
		t.Error("expected error for unknown poll")
	}
}

func TestBatteryVoltage(t *testing.T) {
	p := mustProperty(t, "batteryVoltage", nil)

	if p.ParseAttribute(0x0020, zcl.TypeUint8, []byte{30}) != true {
		t.Fatal("expected update")
	}
	if p.Value() != uint8(42) {
		t.Errorf("got %v, want 42", p.Value())
	}

	// mismatched type must not touch the value
	if p.ParseAttribute(0x0020, zcl.TypeUint16, []byte{30, 0}) {
		t.Error("unexpected update on wrong data type")
	}
}

func TestBatteryPercentage(t *testing.T) {
	p := mustProperty(t, "batteryPercentage", nil)
	p.ParseAttribute(0x0021, zcl.TypeUint8, []byte{84})
	if p.Value() != float64(42) {
		t.Errorf("got %v, want 42", p.Value())
	}

	p = mustProperty(t, "batteryPercentage", Options{"batteryUndivided": true})
	p.ParseAttribute(0x0021, zcl.TypeUint8, []byte{84})
	if p.Value() != float64(84) {
		t.Errorf("undivided: got %v, want 84", p.Value())
	}
}

func TestStatus(t *testing.T) {
	p := mustProperty(t, "status", nil)
	p.ParseAttribute(0x0000, zcl.TypeBool, []byte{1})
	if p.Value() != "on" {
		t.Errorf("got %v, want on", p.Value())
	}
	p.ParseAttribute(0x0000, zcl.TypeUint8, []byte{0})
	if p.Value() != "off" {
		t.Errorf("got %v, want off", p.Value())
	}
}

func TestPowerOnStatus(t *testing.T) {
	p := mustProperty(t, "powerOnStatus", nil)
	p.ParseAttribute(0x4003, zcl.TypeEnum8, []byte{0xFF})
	if p.Value() != "previous" {
		t.Errorf("got %v, want previous", p.Value())
	}
}

func TestIlluminance(t *testing.T) {
	p := mustProperty(t, "illuminance", nil)

	raw := make([]byte, 2)
	binary.LittleEndian.PutUint16(raw, 45001)
	p.ParseAttribute(0x0000, zcl.TypeUint16, raw)
	if p.Value() != uint32(31623) {
		t.Errorf("got %v, want 31623", p.Value())
	}

	p.ParseAttribute(0x0000, zcl.TypeUint16, []byte{0, 0})
	if p.Value() != uint32(0) {
		t.Errorf("zero raw: got %v, want 0", p.Value())
	}
}

func TestTemperature(t *testing.T) {
	p := mustProperty(t, "temperature", nil)
	raw := make([]byte, 2)
	neg := int16(-1250)
	binary.LittleEndian.PutUint16(raw, uint16(neg))
	p.ParseAttribute(0x0000, zcl.TypeInt16, raw)
	if p.Value() != -12.5 {
		t.Errorf("got %v, want -12.5", p.Value())
	}
}

func TestColorXYBuffering(t *testing.T) {
	p := mustProperty(t, "colorXY", nil)

	x := make([]byte, 2)
	binary.LittleEndian.PutUint16(x, 0xFFFF)
	if p.ParseAttribute(0x0003, zcl.TypeUint16, x) {
		t.Error("no value expected until both coordinates arrive")
	}
	if p.Value() != nil {
		t.Fatalf("premature value %v", p.Value())
	}

	y := make([]byte, 2)
	binary.LittleEndian.PutUint16(y, 0x7FFF)
	if !p.ParseAttribute(0x0004, zcl.TypeUint16, y) {
		t.Fatal("expected update once both coordinates arrived")
	}
	value := p.Value().([]any)
	if value[0].(float64) != 1 {
		t.Errorf("x = %v, want 1", value[0])
	}
}

func TestEnergyDivisorGate(t *testing.T) {
	p := mustProperty(t, "energy", nil)
	summ := []byte{0x10, 0x27, 0x00, 0x00, 0x00, 0x00} // 10000

	// no multiplier/divisor known yet
	if p.ParseAttribute(0x0000, zcl.TypeUint48, summ) {
		t.Error("value must be gated until both scale attributes arrive")
	}

	p.ParseAttribute(0x0301, zcl.TypeUint24, []byte{1, 0, 0})
	p.ParseAttribute(0x0302, zcl.TypeUint24, []byte{0xE8, 0x03, 0}) // 1000
	if !p.ParseAttribute(0x0000, zcl.TypeUint48, summ) {
		t.Fatal("expected update")
	}
	if p.Value() != float64(10) {
		t.Errorf("got %v, want 10", p.Value())
	}
}

func TestIASZone(t *testing.T) {
	p := mustProperty(t, "iasContact", nil)

	if !p.ParseCommand(0x00, []byte{0x0D, 0x00}) {
		t.Fatal("expected update")
	}
	want := map[string]any{"contact": true, "tamper": true, "batteryLow": true}
	if !reflect.DeepEqual(p.Value(), want) {
		t.Errorf("got %v, want %v", p.Value(), want)
	}

	// alarm clears, sticky flags stay
	p.ParseCommand(0x00, []byte{0x00, 0x00})
	value := p.Value().(map[string]any)
	if value["contact"] != false || value["tamper"] != true {
		t.Errorf("got %v", value)
	}
}

func tuyaReport(dataPoint, dataType uint8, data []byte) []byte {
	payload := []byte{0x00, 0x01, dataPoint, dataType, 0x00, uint8(len(data))}
	return append(payload, data...)
}

func TestTuyaNeoSiren(t *testing.T) {
	p := mustProperty(t, "tuyaNeoSiren", nil)

	if !p.ParseCommand(0x02, tuyaReport(0x05, 0x04, []byte{1})) {
		t.Fatal("expected update")
	}
	if p.Value().(map[string]any)["volume"] != "medium" {
		t.Errorf("got %v", p.Value())
	}

	// out of range volume levels are dropped
	if p.ParseCommand(0x02, tuyaReport(0x05, 0x04, []byte{5})) {
		t.Error("out of range volume must not update")
	}
	if p.Value().(map[string]any)["volume"] != "medium" {
		t.Errorf("value mutated: %v", p.Value())
	}

	p.ParseCommand(0x01, tuyaReport(0x0D, 0x01, []byte{1}))
	if p.Value().(map[string]any)["alarm"] != true {
		t.Errorf("got %v", p.Value())
	}
}

func TestTuyaPresenceSensor(t *testing.T) {
	p := mustProperty(t, "tuyaPresenceSensor", nil)

	p.ParseCommand(0x02, tuyaReport(0x01, 0x01, []byte{1}))
	p.ParseCommand(0x02, tuyaReport(0x03, 0x02, []byte{0x00, 0x00, 0x00, 150}))

	value := p.Value().(map[string]any)
	if value["occupancy"] != true {
		t.Errorf("occupancy: got %v", value)
	}
	if value["distanceMin"] != 1.5 {
		t.Errorf("distanceMin: got %v", value["distanceMin"])
	}

	// unknown data point is ignored
	if p.ParseCommand(0x02, tuyaReport(0x7F, 0x01, []byte{1})) {
		t.Error("unknown data point must not update")
	}
}

func TestLumiBatteryVoltage(t *testing.T) {
	p := mustProperty(t, "lumiBatteryVoltage", nil)

	data := []byte{0x01, 0x21, 0xB8, 0x0B} // tag+type, 3000 mV
	if !p.ParseAttribute(0xFF01, zcl.TypeCharStr, data) {
		t.Fatal("expected update")
	}
	if p.Value() != uint8(42) {
		t.Errorf("got %v, want 42", p.Value())
	}

	structData := []byte{0x02, 0x00, 0x21, 0x00, 0x00, 0x80, 0x0C} // 3200 mV at offset 5
	p = mustProperty(t, "lumiBatteryVoltage", nil)
	if !p.ParseAttribute(0xFF02, zcl.TypeStruct, structData) {
		t.Fatal("expected update")
	}
	if p.Value() != uint8(100) {
		t.Errorf("got %v, want 100", p.Value())
	}
}

func TestLumiDataContainer(t *testing.T) {
	p := mustProperty(t, "lumiData", Options{"modelName": "lumi.plug"})

	power := math.Float32bits(52.5)
	container := []byte{0x03, zcl.TypeInt8, 0x19} // device temperature 25
	container = append(container, 0x98, zcl.TypeFloat32)
	container = binary.LittleEndian.AppendUint32(container, power)

	if !p.ParseAttribute(0x00F7, zcl.TypeOctetStr, container) {
		t.Fatal("expected update")
	}
	value := p.Value().(map[string]any)
	if value["temperature"] != int8(25) {
		t.Errorf("temperature: got %v", value["temperature"])
	}
	if value["power"] != 52.5 {
		t.Errorf("power: got %v", value["power"])
	}
}

func TestLumiDataModelBranches(t *testing.T) {
	p := mustProperty(t, "lumiData", Options{"modelName": "lumi.sen_ill.mgl01"})

	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, 550)
	if !p.ParseAttribute(0x0064, zcl.TypeUint32, raw) {
		t.Fatal("expected update")
	}
	if p.Value().(map[string]any)["illuminance"] != uint32(550) {
		t.Errorf("got %v", p.Value())
	}

	// device temperature is suppressed for the light sensor
	if p.ParseAttribute(0x0003, zcl.TypeInt8, []byte{25}) {
		t.Error("temperature must be suppressed for lumi.sen_ill.mgl01")
	}
}

func TestKonkeButtonAction(t *testing.T) {
	p := mustProperty(t, "konkeButtonAction", nil)
	p.ParseAttribute(0x0000, zcl.TypeBool, []byte{0x81})
	if p.Value() != "doubleClick" {
		t.Errorf("got %v", p.Value())
	}
}

func TestPerenioSmartPlug(t *testing.T) {
	p := mustProperty(t, "perenioSmartPlug", nil)

	p.ParseAttribute(0x0000, zcl.TypeUint8, []byte{0x02})
	if p.Value().(map[string]any)["powerOnStatus"] != "previous" {
		t.Errorf("got %v", p.Value())
	}

	energy := make([]byte, 4)
	binary.LittleEndian.PutUint32(energy, 1500)
	p.ParseAttribute(0x000E, zcl.TypeUint32, energy)
	if p.Value().(map[string]any)["energy"] != 1.5 {
		t.Errorf("got %v", p.Value())
	}
}

func TestStatusAction(t *testing.T) {
	a, err := NewAction("status", nil)
	if err != nil {
		t.Fatal(err)
	}

	request, ok := a.Request(0x10, "toggle")
	if !ok {
		t.Fatal("expected request")
	}
	if !bytes.Equal(request, []byte{0x01, 0x10, 0x02}) {
		t.Errorf("got % X", request)
	}

	if _, ok := a.Request(0x10, "blink"); ok {
		t.Error("unknown value must be rejected")
	}
}

func TestPowerOnStatusAction(t *testing.T) {
	a, err := NewAction("powerOnStatus", nil)
	if err != nil {
		t.Fatal(err)
	}
	request, ok := a.Request(0x01, "previous")
	if !ok {
		t.Fatal("expected request")
	}
	want := []byte{0x00, 0x01, 0x02, 0x03, 0x40, 0x30, 0xFF}
	if !bytes.Equal(request, want) {
		t.Errorf("got % X, want % X", request, want)
	}
}

func TestPolls(t *testing.T) {
	p, err := NewPoll("energy")
	if err != nil {
		t.Fatal(err)
	}
	if p.ClusterID() != zcl.ClusterMetering || len(p.Attributes()) != 3 {
		t.Errorf("got %+v", p)
	}
}
