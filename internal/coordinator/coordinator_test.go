package coordinator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"zigbeed/internal/adapter"
	"zigbeed/internal/device"
	"zigbeed/internal/property"
	"zigbeed/internal/store"
	"zigbeed/internal/zcl"
)

type dataCall struct {
	id             uint8
	networkAddress uint16
	endpointID     uint8
	clusterID      uint16
	payload        []byte
}

type bindCall struct {
	id            uint8
	endpointID    uint8
	clusterID     uint16
	dstAddress    []byte
	dstEndpointID uint8
	unbind        bool
}

// fakeAdapter records every request the coordinator submits.
type fakeAdapter struct {
	ieee           [8]byte
	refuseData     bool
	refuseInterPan bool

	permitJoin      []bool
	leave           []uint16
	lqi             []uint16
	nodeDescriptor  []uint16
	activeEndpoints []uint16
	simpleDesc      []uint8
	bindings        []bindCall
	data            []dataCall
	extended        []dataCall
}

func (a *fakeAdapter) Start() error { return nil }
func (a *fakeAdapter) Stop()        {}
func (a *fakeAdapter) Reset()       {}

func (a *fakeAdapter) SetPermitJoin(enabled bool) bool {
	a.permitJoin = append(a.permitJoin, enabled)
	return true
}

func (a *fakeAdapter) LeaveRequest(id uint8, networkAddress uint16) bool {
	a.leave = append(a.leave, networkAddress)
	return true
}

func (a *fakeAdapter) LQIRequest(id uint8, networkAddress uint16) bool {
	a.lqi = append(a.lqi, networkAddress)
	return true
}

func (a *fakeAdapter) NodeDescriptorRequest(id uint8, networkAddress uint16) bool {
	a.nodeDescriptor = append(a.nodeDescriptor, networkAddress)
	return true
}

func (a *fakeAdapter) ActiveEndpointsRequest(id uint8, networkAddress uint16) bool {
	a.activeEndpoints = append(a.activeEndpoints, networkAddress)
	return true
}

func (a *fakeAdapter) SimpleDescriptorRequest(id uint8, networkAddress uint16, endpointID uint8) bool {
	a.simpleDesc = append(a.simpleDesc, endpointID)
	return true
}

func (a *fakeAdapter) BindRequest(id uint8, networkAddress uint16, endpointID uint8, clusterID uint16, dstAddress []byte, dstEndpointID uint8, unbind bool) bool {
	a.bindings = append(a.bindings, bindCall{id, endpointID, clusterID, dstAddress, dstEndpointID, unbind})
	return true
}

func (a *fakeAdapter) DataRequest(id uint8, networkAddress uint16, endpointID uint8, clusterID uint16, payload []byte) bool {
	if a.refuseData {
		return false
	}
	a.data = append(a.data, dataCall{id, networkAddress, endpointID, clusterID, append([]byte(nil), payload...)})
	return true
}

func (a *fakeAdapter) ExtendedDataRequest(id uint8, address []byte, dstEndpointID uint8, dstPanID uint16, srcEndpointID uint8, clusterID uint16, payload []byte, group bool) bool {
	a.extended = append(a.extended, dataCall{id, 0, dstEndpointID, clusterID, append([]byte(nil), payload...)})
	return true
}

func (a *fakeAdapter) SetInterPanChannel(channel uint8) bool                  { return true }
func (a *fakeAdapter) SetInterPanEndpointID(id uint8) bool                    { return !a.refuseInterPan }
func (a *fakeAdapter) ResetInterPan() bool                                    { return true }
func (a *fakeAdapter) IEEEAddress() [8]byte                                   { return a.ieee }
func (a *fakeAdapter) Type() string                                           { return "znp" }
func (a *fakeAdapter) Version() string                                        { return "1.0" }
func (a *fakeAdapter) ManufacturerName() string                               { return "" }
func (a *fakeAdapter) ModelName() string                                      { return "" }
func (a *fakeAdapter) OnCoordinatorReady(func())                              {}
func (a *fakeAdapter) OnPermitJoinUpdated(func(bool))                         {}
func (a *fakeAdapter) OnRequestFinished(func(uint8, uint8))                   {}
func (a *fakeAdapter) OnDeviceJoined(func(adapter.DeviceJoinedEvent))         {}
func (a *fakeAdapter) OnDeviceLeft(func(adapter.DeviceLeftEvent))             {}
func (a *fakeAdapter) OnNodeDescriptor(func(adapter.NodeDescriptorEvent))     {}
func (a *fakeAdapter) OnActiveEndpoints(func(adapter.ActiveEndpointsEvent))   {}
func (a *fakeAdapter) OnSimpleDescriptor(func(adapter.SimpleDescriptorEvent)) {}
func (a *fakeAdapter) OnNeighborRecord(func(adapter.NeighborRecordEvent))     {}
func (a *fakeAdapter) OnMessage(func(adapter.MessageEvent))                   {}
func (a *fakeAdapter) OnExtendedMessage(func(adapter.ExtendedMessageEvent))   {}

// fakeStore keeps device records in memory.
type fakeStore struct {
	devices  map[string]*store.DeviceRecord
	settings *store.Settings
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{devices: make(map[string]*store.DeviceRecord)}
}

func (s *fakeStore) SaveDevice(record *store.DeviceRecord) error {
	s.devices[record.IEEEAddress] = record
	return nil
}

func (s *fakeStore) GetDevice(ieee string) (*store.DeviceRecord, error) {
	record, ok := s.devices[ieee]
	if !ok {
		return nil, store.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) DeleteDevice(ieee string) error {
	delete(s.devices, ieee)
	s.deleted = append(s.deleted, ieee)
	return nil
}

func (s *fakeStore) ListDevices() ([]*store.DeviceRecord, error) {
	var records []*store.DeviceRecord
	for _, record := range s.devices {
		records = append(records, record)
	}
	return records, nil
}

func (s *fakeStore) SaveSettings(settings *store.Settings) error {
	s.settings = settings
	return nil
}

func (s *fakeStore) GetSettings() (*store.Settings, error) {
	if s.settings == nil {
		return nil, store.ErrNotFound
	}
	return s.settings, nil
}

func (s *fakeStore) Close() error { return nil }

func newTestCoordinator(t *testing.T, definitions string) (*Coordinator, *fakeAdapter, *fakeStore) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	if definitions != "" {
		if err := os.WriteFile(filepath.Join(dir, "devices.json"), []byte(definitions), 0644); err != nil {
			t.Fatal(err)
		}
	}
	database, err := device.LoadDatabase(dir, logger)
	if err != nil {
		t.Fatal(err)
	}

	a := &fakeAdapter{ieee: [8]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}}
	s := newFakeStore()
	c := New(a, s, database, NewEventBus(logger), logger)
	return c, a, s
}

// runTasks drains closures posted onto the event loop without starting it.
func runTasks(c *Coordinator) {
	for {
		select {
		case fn := <-c.tasks:
			fn()
		default:
			return
		}
	}
}

func charStrAttribute(attributeID uint16, value string) []byte {
	data := binary.LittleEndian.AppendUint16(nil, attributeID)
	data = append(data, zcl.StatusSuccess, zcl.TypeCharStr, uint8(len(value)))
	return append(data, value...)
}

const testDefinitions = `{
	"Test": [
		{
			"description": "Test Switch",
			"modelNames": ["Switch"],
			"properties": ["status"],
			"actions": ["status"],
			"reportings": [
				{"name": "status", "clusterId": 6, "attributes": [0], "dataType": 16, "minInterval": 0, "maxInterval": 600, "valueChange": 0}
			]
		}
	]
}`

func TestSchedulerDispatchOrder(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{1}, 0x1000)
	c.devices.Add(d)

	first := c.enqueueData(d, 1, zcl.ClusterOnOff, []byte{0x01, 0x01, 0x01}, "")
	second := c.enqueueData(d, 1, zcl.ClusterOnOff, []byte{0x01, 0x02, 0x00}, "")

	if first == second {
		t.Fatalf("request ids collide: %d", first)
	}

	c.handleRequests()

	if len(a.data) != 2 {
		t.Fatalf("data requests = %d, want 2", len(a.data))
	}
	if a.data[0].id != first || a.data[1].id != second {
		t.Errorf("dispatch order = %d, %d, want %d, %d", a.data[0].id, a.data[1].id, first, second)
	}

	c.requestFinished(first, 0)
	c.requestFinished(second, 0)
	c.requestFinished(second, 0) // duplicate completion is a no-op
	c.handleRequests()

	if len(c.requests) != 0 {
		t.Errorf("requests left after completion: %d", len(c.requests))
	}
}

func TestSchedulerAbort(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{1}, 0x1000)
	c.devices.Add(d)

	a.refuseData = true
	c.enqueueData(d, 1, zcl.ClusterOnOff, []byte{0x01, 0x01, 0x01}, "toggle")
	c.handleRequests()

	if len(a.data) != 0 {
		t.Fatalf("data requests = %d, want 0", len(a.data))
	}
	if len(c.requests) != 0 || len(c.requestOrder) != 0 {
		t.Errorf("aborted request not pruned: %d requests, %d order entries", len(c.requests), len(c.requestOrder))
	}
}

func TestRemoveDeviceOnLeaveConfirmation(t *testing.T) {
	c, a, s := newTestCoordinator(t, "")
	d := device.New([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 0x1000)
	d.LogicalType = device.EndDevice
	c.devices.Add(d)
	c.storeDatabase()

	c.RemoveDevice(d.Name, false)
	runTasks(c)
	c.handleRequests()

	if len(a.leave) != 1 || a.leave[0] != 0x1000 {
		t.Fatalf("leave requests = %v", a.leave)
	}
	if _, ok := c.devices.Get(d.IEEEAddress); !ok {
		t.Fatal("device removed before leave confirmation")
	}

	c.requestFinished(c.requestOrder[0], 0)

	if _, ok := c.devices.Get(d.IEEEAddress); ok {
		t.Error("device still registered after leave confirmation")
	}
	if len(s.deleted) != 1 || s.deleted[0] != device.IEEEString(d.IEEEAddress) {
		t.Errorf("deleted records = %v", s.deleted)
	}
}

func TestInterviewHappyPath(t *testing.T) {
	c, a, _ := newTestCoordinator(t, testDefinitions)
	ieee := [8]byte{0xAA, 1, 2, 3, 4, 5, 6, 7}

	var finished bool
	c.events.On(EventInterviewFinished, func(e Event) {
		finished = true
		// observers must see the finished flag already set
		if data, ok := e.Data.(*device.Device); !ok || !data.InterviewFinished {
			t.Error("interview flag not set when event emitted")
		}
	})

	c.deviceJoined(adapter.DeviceJoinedEvent{IEEEAddress: ieee, NetworkAddress: 0x1234})
	d, ok := c.devices.Get(ieee)
	if !ok {
		t.Fatal("device not registered on join")
	}
	t.Cleanup(d.StopInterviewTimer)

	c.handleRequests()
	if len(a.nodeDescriptor) != 1 {
		t.Fatalf("node descriptor requests = %d, want 1", len(a.nodeDescriptor))
	}

	c.nodeDescriptorReceived(adapter.NodeDescriptorEvent{NetworkAddress: 0x1234, LogicalType: uint8(device.Router), ManufacturerCode: 0x1037})
	c.handleRequests()
	if len(a.activeEndpoints) != 1 {
		t.Fatalf("active endpoints requests = %d, want 1", len(a.activeEndpoints))
	}

	c.activeEndpointsReceived(adapter.ActiveEndpointsEvent{NetworkAddress: 0x1234, Endpoints: []uint8{1}})
	c.handleRequests()
	if len(a.simpleDesc) != 1 || a.simpleDesc[0] != 1 {
		t.Fatalf("simple descriptor requests = %v", a.simpleDesc)
	}

	c.simpleDescriptorReceived(adapter.SimpleDescriptorEvent{
		NetworkAddress: 0x1234, EndpointID: 1,
		ProfileID: 0x0104, DeviceID: 0x0100,
		InClusters: []uint16{zcl.ClusterBasic, zcl.ClusterOnOff},
	})
	c.handleRequests()

	basicRead := a.data[len(a.data)-1]
	if basicRead.clusterID != zcl.ClusterBasic {
		t.Fatalf("basic read cluster = 0x%04X", basicRead.clusterID)
	}
	want := []uint16{0x0001, 0x0004, 0x0005, 0x0007}
	for i, attr := range want {
		if got := binary.LittleEndian.Uint16(basicRead.payload[3+i*2:]); got != attr {
			t.Errorf("basic read attribute %d = 0x%04X, want 0x%04X", i, got, attr)
		}
	}

	frame := []byte{zcl.FrameControlServerToClient, 0x01, zcl.CmdReadAttributesResponse}
	frame = append(frame, charStrAttribute(0x0004, "Test")...)
	frame = append(frame, charStrAttribute(0x0005, "Switch")...)
	frame = append(frame, 0x07, 0x00, zcl.StatusSuccess, zcl.TypeEnum8, device.PowerSourceMains)
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x1234, EndpointID: 1, ClusterID: zcl.ClusterBasic, LinkQuality: 180, Data: frame})

	c.handleRequests()

	if !d.InterviewFinished {
		t.Fatal("interview not finished")
	}
	if !finished {
		t.Error("interviewFinished event not emitted")
	}
	if d.ManufacturerName != "Test" || d.ModelName != "Switch" {
		t.Errorf("identity = %q/%q", d.ManufacturerName, d.ModelName)
	}
	if d.Description != "Test Switch" {
		t.Errorf("description = %q", d.Description)
	}
	if d.LinkQuality != 180 {
		t.Errorf("link quality = %d", d.LinkQuality)
	}

	endpoint := d.Endpoint(1)
	if len(endpoint.Properties) != 1 || endpoint.Properties[0].Name() != "status" {
		t.Fatalf("properties = %+v", endpoint.Properties)
	}

	// reporting configuration: a bind to the coordinator plus the configure
	// reporting frame
	c.handleRequests()
	if len(a.bindings) != 1 || a.bindings[0].clusterID != zcl.ClusterOnOff {
		t.Fatalf("bindings = %+v", a.bindings)
	}
	reporting := a.data[len(a.data)-1]
	if reporting.clusterID != zcl.ClusterOnOff || reporting.payload[2] != zcl.CmdConfigureReporting {
		t.Errorf("reporting request = %+v", reporting)
	}
}

func TestTuyaModelNameRewrite(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{2}, 0x2000)
	endpoint := d.Endpoint(1)
	endpoint.InClusters = []uint16{zcl.ClusterBasic}
	c.devices.Add(d)

	c.parseAttribute(endpoint, zcl.ClusterBasic, 0x0004, zcl.TypeCharStr, []byte("_TZ3000_abcdefgh"))
	c.parseAttribute(endpoint, zcl.ClusterBasic, 0x0005, zcl.TypeCharStr, []byte("TS0601"))
	t.Cleanup(d.StopInterviewTimer)

	if d.ManufacturerName != "TUYA" {
		t.Errorf("manufacturerName = %q, want TUYA", d.ManufacturerName)
	}
	if d.ModelName != "_TZ3000_abcdefgh" {
		t.Errorf("modelName = %q, want _TZ3000_abcdefgh", d.ModelName)
	}
}

func TestLumiShortcutInterview(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{3}, 0x3000)
	endpoint := d.Endpoint(1)
	endpoint.InClusters = []uint16{zcl.ClusterBasic}
	c.devices.Add(d)

	c.parseAttribute(endpoint, zcl.ClusterBasic, 0x0005, zcl.TypeCharStr, []byte("lumi.sensor_magnet.aq2"))

	if !d.InterviewFinished {
		t.Fatal("interview not finished")
	}
	if d.ManufacturerName != "LUMI" {
		t.Errorf("manufacturerName = %q, want LUMI", d.ManufacturerName)
	}
	if !d.BatteryPowered() {
		t.Error("power source not set to battery")
	}
}

func TestIASZoneEnrollFlow(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{4}, 0x4000)
	d.ManufacturerName = "Test"
	d.ModelName = "Guard"
	d.DescriptorReceived = true
	d.EndpointsReceived = true
	endpoint := d.Endpoint(1)
	endpoint.InClusters = []uint16{zcl.ClusterBasic, zcl.ClusterIASZone}
	endpoint.DescriptorReceived = true
	c.devices.Add(d)

	c.interviewDevice(d)
	t.Cleanup(d.StopInterviewTimer)
	c.handleRequests()

	// zone status unknown: read current state and CIE address
	read := a.data[len(a.data)-1]
	if read.clusterID != zcl.ClusterIASZone || read.payload[2] != zcl.CmdReadAttributes {
		t.Fatalf("ias read request = %+v", read)
	}

	// device reports a foreign CIE address
	frame := []byte{zcl.FrameControlServerToClient, 0x01, zcl.CmdReadAttributesResponse}
	frame = append(frame, 0x00, 0x00, zcl.StatusSuccess, zcl.TypeEnum8, 0x00)
	frame = append(frame, 0x10, 0x00, zcl.StatusSuccess, zcl.TypeEUI64, 0xDE, 0xAD, 0xDE, 0xAD, 0xDE, 0xAD, 0xDE, 0xAD)
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x4000, EndpointID: 1, ClusterID: zcl.ClusterIASZone, Data: frame})

	if endpoint.ZoneStatus != device.ZoneSetAddress {
		t.Fatalf("zone status = %d, want set address", endpoint.ZoneStatus)
	}

	c.handleRequests()
	write := a.data[len(a.data)-1]
	if write.payload[2] != zcl.CmdWriteAttributes || !bytes.Equal(write.payload[6:14], a.ieee[:]) {
		t.Fatalf("CIE write request = % X", write.payload)
	}

	// write confirmed: move to enroll
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x4000, EndpointID: 1, ClusterID: zcl.ClusterIASZone,
		Data: []byte{zcl.FrameControlServerToClient, 0x02, zcl.CmdWriteAttributesResponse, zcl.StatusSuccess}})

	if endpoint.ZoneStatus != device.ZoneEnroll {
		t.Fatalf("zone status = %d, want enroll", endpoint.ZoneStatus)
	}

	c.handleRequests()
	enroll := a.data[len(a.data)-2]
	if enroll.payload[2] != 0x00 || !bytes.Equal(enroll.payload[3:], []byte{0x00, 0x42}) {
		t.Fatalf("enroll response = % X", enroll.payload)
	}

	// device confirms enrollment
	frame = []byte{zcl.FrameControlServerToClient, 0x03, zcl.CmdReadAttributesResponse}
	frame = append(frame, 0x00, 0x00, zcl.StatusSuccess, zcl.TypeEnum8, 0x01)
	frame = append(frame, 0x10, 0x00, zcl.StatusSuccess, zcl.TypeEUI64)
	frame = append(frame, a.ieee[:]...)
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x4000, EndpointID: 1, ClusterID: zcl.ClusterIASZone, Data: frame})

	if endpoint.ZoneStatus != device.ZoneEnrolled {
		t.Fatalf("zone status = %d, want enrolled", endpoint.ZoneStatus)
	}

	c.handleRequests()
	if !d.InterviewFinished {
		t.Error("interview not finished after enrollment")
	}
}

func TestUnchangedReportEmitsOnce(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{10}, 0xA000)
	d.InterviewFinished = true
	endpoint := d.Endpoint(1)
	p, err := property.NewProperty("status", nil)
	if err != nil {
		t.Fatal(err)
	}
	endpoint.Properties = append(endpoint.Properties, p)
	c.devices.Add(d)

	var updates int
	c.events.On(EventEndpointUpdated, func(Event) { updates++ })

	frame := []byte{zcl.FrameControlServerToClient | zcl.FrameControlDisableDefaultResponse, 0x21, zcl.CmdReportAttributes,
		0x00, 0x00, zcl.TypeBool, 0x01}
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0xA000, EndpointID: 1, ClusterID: zcl.ClusterOnOff, Data: frame})
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0xA000, EndpointID: 1, ClusterID: zcl.ClusterOnOff, Data: frame})

	if updates != 1 {
		t.Fatalf("endpoint updates = %d, want 1 for a repeated value", updates)
	}

	frame[6] = 0x00
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0xA000, EndpointID: 1, ClusterID: zcl.ClusterOnOff, Data: frame})

	if updates != 2 {
		t.Errorf("endpoint updates = %d, want 2 after the value changed", updates)
	}
}

func TestUnchangedZoneStatusEmitsOnce(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{11}, 0xB000)
	d.InterviewFinished = true
	endpoint := d.Endpoint(1)
	p, err := property.NewProperty("iasWaterLeak", nil)
	if err != nil {
		t.Fatal(err)
	}
	endpoint.Properties = append(endpoint.Properties, p)
	c.devices.Add(d)

	var updates int
	c.events.On(EventEndpointUpdated, func(Event) { updates++ })

	// zone status change notification, alarm bit set
	frame := []byte{zcl.FrameControlClusterSpecific | zcl.FrameControlServerToClient | zcl.FrameControlDisableDefaultResponse,
		0x31, 0x00, 0x01, 0x00}
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0xB000, EndpointID: 1, ClusterID: zcl.ClusterIASZone, Data: frame})
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0xB000, EndpointID: 1, ClusterID: zcl.ClusterIASZone, Data: frame})

	if updates != 1 {
		t.Fatalf("endpoint updates = %d, want 1 for a repeated zone status", updates)
	}

	frame[3] = 0x00
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0xB000, EndpointID: 1, ClusterID: zcl.ClusterIASZone, Data: frame})

	if updates != 2 {
		t.Errorf("endpoint updates = %d, want 2 after the alarm cleared", updates)
	}
}

func TestPostDefersToEventLoop(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "")

	ran := false
	c.Post(func() { ran = true })
	if ran {
		t.Fatal("posted closure ran on the caller goroutine")
	}

	runTasks(c)
	if !ran {
		t.Fatal("posted closure not executed by the loop")
	}
}

func TestTouchLinkUnsupportedAdapter(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	a.refuseInterPan = true

	c.TouchLink([8]byte{1}, 11, false)
	runTasks(c)

	if len(a.extended) != 0 {
		t.Errorf("extended requests = %d, want 0", len(a.extended))
	}
}

func TestTimeClusterServed(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{5}, 0x5000)
	d.InterviewFinished = true
	c.devices.Add(d)

	frame := []byte{0x00, 0x42, zcl.CmdReadAttributes, 0x00, 0x00, 0x09, 0x00}
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x5000, EndpointID: 1, ClusterID: zcl.ClusterTime, Data: frame})
	c.handleRequests()

	if len(a.data) != 1 {
		t.Fatalf("data requests = %d, want 1", len(a.data))
	}

	response := a.data[0].payload
	if response[2] != zcl.CmdReadAttributesResponse {
		t.Fatalf("response command = 0x%02X", response[2])
	}
	if response[5] != zcl.StatusSuccess || response[6] != zcl.TypeUTC {
		t.Fatalf("UTC attribute header = % X", response[3:7])
	}

	utc := binary.LittleEndian.Uint32(response[7:11])
	now := uint32(time.Now().Unix() - zigbeeEpochOffset)
	if utc < now-2 || utc > now+2 {
		t.Errorf("UTC value = %d, want about %d", utc, now)
	}

	// attribute 0x0009 is not served
	if response[13] != zcl.StatusUnsupportedAttribute {
		t.Errorf("unsupported attribute status = 0x%02X", response[13])
	}
}

func TestDefaultResponseOnReport(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{6}, 0x6000)
	d.InterviewFinished = true
	c.devices.Add(d)

	frame := []byte{zcl.FrameControlServerToClient, 0x21, zcl.CmdReportAttributes,
		0x00, 0x00, zcl.TypeBool, 0x01}
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x6000, EndpointID: 1, ClusterID: zcl.ClusterOnOff, Data: frame})
	c.handleRequests()

	if len(a.data) != 1 {
		t.Fatalf("data requests = %d, want 1", len(a.data))
	}

	response := a.data[0].payload
	want := []byte{zcl.FrameControlServerToClient | zcl.FrameControlDisableDefaultResponse, 0x21, zcl.CmdDefaultResponse, zcl.CmdReportAttributes, zcl.StatusSuccess}
	if !bytes.Equal(response, want) {
		t.Errorf("default response = % X, want % X", response, want)
	}

	// a sender that disables the default response gets none
	a.data = nil
	frame[0] |= zcl.FrameControlDisableDefaultResponse
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x6000, EndpointID: 1, ClusterID: zcl.ClusterOnOff, Data: frame})
	c.handleRequests()

	if len(a.data) != 0 {
		t.Errorf("data requests = %d, want 0", len(a.data))
	}
}

func writeOTAFile(t *testing.T, manufacturerCode, imageType uint16, fileVersion uint32, payload []byte) string {
	t.Helper()

	header := make([]byte, 56)
	binary.LittleEndian.PutUint16(header[10:12], manufacturerCode)
	binary.LittleEndian.PutUint16(header[12:14], imageType)
	binary.LittleEndian.PutUint32(header[14:18], fileVersion)
	binary.LittleEndian.PutUint32(header[52:56], uint32(56+len(payload)))

	path := filepath.Join(t.TempDir(), "firmware.ota")
	if err := os.WriteFile(path, append(header, payload...), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func otaRequestFrame(commandID uint8, body []byte) []byte {
	frame := []byte{zcl.FrameControlClusterSpecific | zcl.FrameControlDisableDefaultResponse, 0x30, commandID}
	return append(frame, body...)
}

func TestOTAUpgradeVersionMatch(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{7}, 0x7000)
	d.InterviewFinished = true
	c.devices.Add(d)

	c.otaUpgradeFile = writeOTAFile(t, 0x1234, 0x0001, 0x11223344, []byte("image"))

	body := []byte{0x00}
	body = binary.LittleEndian.AppendUint16(body, 0x1234)
	body = binary.LittleEndian.AppendUint16(body, 0x0001)
	body = binary.LittleEndian.AppendUint32(body, 0x11223344)

	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x7000, EndpointID: 1, ClusterID: zcl.ClusterOTAUpgrade, Data: otaRequestFrame(0x01, body)})
	c.handleRequests()

	if len(a.data) != 1 {
		t.Fatalf("data requests = %d, want 1", len(a.data))
	}

	response := a.data[0].payload
	if response[2] != 0x02 || response[3] != zcl.StatusNoImageAvailable {
		t.Errorf("next image response = % X, want command 0x02 with no image status", response)
	}
}

func TestOTAUpgradeBlockTransfer(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")
	d := device.New([8]byte{8}, 0x8000)
	d.InterviewFinished = true
	c.devices.Add(d)

	image := []byte("0123456789abcdef")
	c.otaUpgradeFile = writeOTAFile(t, 0x1234, 0x0001, 0x00000002, image)

	// announce an older firmware
	body := []byte{0x00}
	body = binary.LittleEndian.AppendUint16(body, 0x1234)
	body = binary.LittleEndian.AppendUint16(body, 0x0001)
	body = binary.LittleEndian.AppendUint32(body, 0x00000001)
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x8000, EndpointID: 1, ClusterID: zcl.ClusterOTAUpgrade, Data: otaRequestFrame(0x01, body)})
	c.handleRequests()

	next := a.data[len(a.data)-1].payload
	if next[3] != zcl.StatusSuccess {
		t.Fatalf("next image response status = 0x%02X", next[3])
	}
	if version := binary.LittleEndian.Uint32(next[8:12]); version != 0x00000002 {
		t.Fatalf("offered version = 0x%08X", version)
	}

	// request 8 bytes from offset 56 (right past the header)
	body = []byte{0x00}
	body = binary.LittleEndian.AppendUint16(body, 0x1234)
	body = binary.LittleEndian.AppendUint16(body, 0x0001)
	body = binary.LittleEndian.AppendUint32(body, 0x00000002)
	body = binary.LittleEndian.AppendUint32(body, 56)
	body = append(body, 8)
	c.messageReceived(adapter.MessageEvent{NetworkAddress: 0x8000, EndpointID: 1, ClusterID: zcl.ClusterOTAUpgrade, Data: otaRequestFrame(0x03, body)})
	c.handleRequests()

	block := a.data[len(a.data)-1].payload
	if block[2] != 0x05 || block[3] != zcl.StatusSuccess {
		t.Fatalf("block response = % X", block)
	}
	if size := block[16]; size != 8 {
		t.Fatalf("block size = %d, want 8", size)
	}
	if got := string(block[17:]); got != "01234567" {
		t.Errorf("block data = %q, want 01234567", got)
	}
}

func TestPermitJoinPersisted(t *testing.T) {
	c, a, s := newTestCoordinator(t, "")

	c.SetPermitJoin(true)
	runTasks(c)

	if len(a.permitJoin) != 1 || !a.permitJoin[0] {
		t.Fatalf("permit join calls = %v", a.permitJoin)
	}

	// the adapter confirms asynchronously
	c.permitJoinUpdated(true)

	if !c.devices.PermitJoin {
		t.Error("permit join flag not set")
	}
	if s.settings == nil || !s.settings.PermitJoin {
		t.Error("permit join not persisted")
	}
}

func TestCoordinatorReadyEvictsStaleEntries(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")

	var swapped [8]byte
	for i := range a.ieee {
		swapped[i] = a.ieee[7-i]
	}

	stale := device.New(swapped, 0x0000)
	stale.LogicalType = device.Coordinator
	c.devices.Add(stale)
	other := device.New([8]byte{9}, 0x9000)
	other.LogicalType = device.EndDevice
	c.devices.Add(other)

	c.coordinatorReady()

	d, ok := c.devices.Get(swapped)
	if !ok {
		t.Fatal("coordinator entry missing")
	}
	if d == stale {
		t.Error("stale coordinator entry kept")
	}
	if !d.InterviewFinished || d.LogicalType != device.Coordinator {
		t.Errorf("coordinator entry = %+v", d)
	}
	if c.devices.Len() != 2 {
		t.Errorf("device count = %d, want 2", c.devices.Len())
	}
	if c.devices.AdapterType != "znp" {
		t.Errorf("adapter type = %q", c.devices.AdapterType)
	}
}

func TestUpdateNeighborsSkipsEndDevices(t *testing.T) {
	c, a, _ := newTestCoordinator(t, "")

	router := device.New([8]byte{1}, 0x0001)
	router.LogicalType = device.Router
	c.devices.Add(router)

	end := device.New([8]byte{2}, 0x0002)
	end.LogicalType = device.EndDevice
	c.devices.Add(end)

	c.updateNeighbors()
	c.handleRequests()

	if len(a.lqi) != 1 || a.lqi[0] != 0x0001 {
		t.Errorf("lqi requests = %v", a.lqi)
	}

	c.neighborRecordReceived(adapter.NeighborRecordEvent{SourceAddress: 0x0001, NetworkAddress: 0x0002, LinkQuality: 120, First: true})
	c.neighborRecordReceived(adapter.NeighborRecordEvent{SourceAddress: 0x0001, NetworkAddress: 0x0003, LinkQuality: 80})

	if len(router.Neighbors) != 2 || router.Neighbors[0x0002] != 120 {
		t.Errorf("neighbors = %v", router.Neighbors)
	}
}

func TestRestoreDatabase(t *testing.T) {
	c, _, s := newTestCoordinator(t, testDefinitions)

	record := &store.DeviceRecord{
		IEEEAddress:       fmt.Sprintf("%016x", 0xAB),
		NetworkAddress:    0x1234,
		Name:              "switch",
		LogicalType:       uint8(device.Router),
		ManufacturerName:  "Test",
		ModelName:         "Switch",
		InterviewFinished: true,
		Endpoints: []store.EndpointRecord{
			{ID: 1, ProfileID: 0x0104, InClusters: []uint16{0x0000, 0x0006}, DescriptorReceived: true},
		},
	}
	s.devices[record.IEEEAddress] = record

	c.restoreDatabase()

	d, ok := c.devices.ByName("switch")
	if !ok {
		t.Fatal("device not restored")
	}
	if len(d.Endpoint(1).Properties) != 1 {
		t.Errorf("properties not rebound: %+v", d.Endpoint(1).Properties)
	}
}
