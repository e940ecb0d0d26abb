package device

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseIEEE(t *testing.T) {
	ieee, err := ParseIEEE("00158d0001a2b3c4")
	if err != nil {
		t.Fatal(err)
	}
	if IEEEString(ieee) != "00158d0001a2b3c4" {
		t.Errorf("round trip failed: %s", IEEEString(ieee))
	}

	if _, err := ParseIEEE("not-hex"); err == nil {
		t.Error("expected error for invalid address")
	}
	if _, err := ParseIEEE("0011"); err == nil {
		t.Error("expected error for short address")
	}
}

func TestEndpointCreateOnFirstUse(t *testing.T) {
	d := New([8]byte{1}, 0x1234)
	endpoint := d.Endpoint(1)
	if endpoint != d.Endpoint(1) {
		t.Error("Endpoint must return the same instance")
	}
	if endpoint.Device() != d {
		t.Error("endpoint back-reference broken")
	}
}

func TestListLookup(t *testing.T) {
	l := NewList()
	d := New([8]byte{0, 0x15, 0x8D, 0, 1, 2, 3, 4}, 0x1234)
	l.Add(d)

	if got, ok := l.ByNetworkAddress(0x1234); !ok || got != d {
		t.Error("ByNetworkAddress failed")
	}

	d.Name = "kitchen"
	if got, ok := l.ByName("kitchen"); !ok || got != d {
		t.Error("ByName by assigned name failed")
	}
	if got, ok := l.ByName(IEEEString(d.IEEEAddress)); !ok || got != d {
		t.Error("ByName by ieee failed")
	}

	d.Removed = true
	if _, ok := l.ByNetworkAddress(0x1234); ok {
		t.Error("removed device must not resolve by network address")
	}
}

func TestEvictCoordinators(t *testing.T) {
	l := NewList()

	stale := New([8]byte{9, 9, 9, 9, 9, 9, 9, 9}, 0x0000)
	stale.LogicalType = Coordinator
	l.Add(stale)

	sameIEEE := New([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 0x0001)
	sameIEEE.LogicalType = Router
	l.Add(sameIEEE)

	keep := New([8]byte{5, 5, 5, 5, 5, 5, 5, 5}, 0x4321)
	keep.LogicalType = EndDevice
	l.Add(keep)

	l.EvictCoordinators([8]byte{1, 2, 3, 4, 5, 6, 7, 8})

	if l.Len() != 1 {
		t.Fatalf("got %d devices, want 1", l.Len())
	}
	if _, ok := l.Get(keep.IEEEAddress); !ok {
		t.Error("unrelated device evicted")
	}
}

func TestDatabaseSetup(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"LUMI": [
			{
				"description": "Aqara Door Sensor",
				"modelNames": ["lumi.sensor_magnet.aq2"],
				"properties": ["lumiBatteryVoltage", "contact"],
				"options": {"batteryUndivided": true}
			}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "lumi.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	db, err := LoadDatabase(dir, logger)
	if err != nil {
		t.Fatal(err)
	}

	d := New([8]byte{1}, 0x1234)
	d.ManufacturerName = "LUMI"
	d.ModelName = "lumi.sensor_magnet.aq2"
	d.Endpoint(1)

	db.Setup(d)

	if d.Description != "Aqara Door Sensor" {
		t.Errorf("description: got %q", d.Description)
	}
	endpoint := d.Endpoint(1)
	if len(endpoint.Properties) != 2 {
		t.Fatalf("got %d properties, want 2", len(endpoint.Properties))
	}
	if endpoint.Properties[0].Name() != "battery" {
		t.Errorf("got %q", endpoint.Properties[0].Name())
	}

	// unknown model resolves nothing
	other := New([8]byte{2}, 0x5678)
	other.ManufacturerName = "LUMI"
	other.ModelName = "lumi.unknown"
	other.Endpoint(1)
	db.Setup(other)
	if len(other.Endpoint(1).Properties) != 0 {
		t.Error("unexpected properties for unknown model")
	}
}

func TestDatabaseEndpointScope(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"TUYA": [
			{
				"description": "Two-gang switch",
				"modelNames": ["TS0012"],
				"properties": ["status"],
				"endpointId": 2
			}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "tuya.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	db, err := LoadDatabase(dir, logger)
	if err != nil {
		t.Fatal(err)
	}

	d := New([8]byte{3}, 0x9999)
	d.ManufacturerName = "TUYA"
	d.ModelName = "TS0012"
	d.Endpoint(1)
	d.Endpoint(2)
	db.Setup(d)

	if len(d.Endpoint(1).Properties) != 0 {
		t.Error("endpoint 1 must stay empty")
	}
	if len(d.Endpoint(2).Properties) != 1 {
		t.Error("endpoint 2 must get the status property")
	}
}
