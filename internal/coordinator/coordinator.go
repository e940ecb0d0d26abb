// Package coordinator implements the core of the daemon: a single-threaded
// event loop that owns the device registry, schedules radio requests, drives
// device interviews, dispatches incoming ZCL messages onto properties and
// publishes events upward.
package coordinator

import (
	"log/slog"
	"time"

	"zigbeed/internal/adapter"
	"zigbeed/internal/device"
	"zigbeed/internal/store"
)

const (
	deviceInterviewTimeout  = 10 * time.Second
	updateNeighborsInterval = 60 * time.Second
	pollAttributesInterval  = 60 * time.Second
	handleRequestsInterval  = 10 * time.Millisecond
)

// Coordinator aggregates the adapter, the persistent store, the description
// database and the device registry. All mutable state is owned by the run
// loop goroutine; adapter callbacks and timers post closures onto it.
type Coordinator struct {
	adapter  adapter.Adapter
	store    store.Store
	database *device.Database
	events   *EventBus
	devices  *device.List
	logger   *slog.Logger

	tasks chan func()
	done  chan struct{}

	requests      map[uint8]*request
	requestOrder  []uint8
	transactionID uint8
	actionID      uint8
	tickScheduled bool

	interPanChannel uint8
	otaUpgradeFile  string
}

// New creates a coordinator around the given adapter and store.
func New(radio adapter.Adapter, st store.Store, database *device.Database, events *EventBus, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		adapter:  radio,
		store:    st,
		database: database,
		events:   events,
		devices:  device.NewList(),
		logger:   logger.With("component", "coordinator"),
		tasks:    make(chan func(), 64),
		done:     make(chan struct{}),
		requests: make(map[uint8]*request),
	}
	c.registerHandlers()
	return c
}

// Events returns the coordinator event bus.
func (c *Coordinator) Events() *EventBus { return c.events }

// Devices returns the device registry. It must only be mutated by the run
// loop; external readers should copy what they need.
func (c *Coordinator) Devices() *device.List { return c.devices }

// Post schedules fn on the event loop. External components use it to read
// the device registry without racing the loop.
func (c *Coordinator) Post(fn func()) { c.post(fn) }

// Start restores the database, starts the adapter and launches the run loop.
func (c *Coordinator) Start() error {
	c.restoreDatabase()

	if err := c.adapter.Start(); err != nil {
		return err
	}

	go c.run()
	go c.housekeeping()
	return nil
}

// Stop terminates the run loop and the adapter.
func (c *Coordinator) Stop() {
	close(c.done)
	c.adapter.Stop()
}

func (c *Coordinator) run() {
	for {
		select {
		case fn := <-c.tasks:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) housekeeping() {
	neighbors := time.NewTicker(updateNeighborsInterval)
	polls := time.NewTicker(pollAttributesInterval)
	defer neighbors.Stop()
	defer polls.Stop()

	for {
		select {
		case <-neighbors.C:
			c.post(c.updateNeighbors)
		case <-polls.C:
			c.post(c.pollAttributes)
		case <-c.done:
			return
		}
	}
}

// post runs fn on the event loop. Safe to call from any goroutine.
func (c *Coordinator) post(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) registerHandlers() {
	c.adapter.OnCoordinatorReady(func() {
		c.post(c.coordinatorReady)
	})
	c.adapter.OnPermitJoinUpdated(func(enabled bool) {
		c.post(func() { c.permitJoinUpdated(enabled) })
	})
	c.adapter.OnRequestFinished(func(id, status uint8) {
		c.post(func() { c.requestFinished(id, status) })
	})
	c.adapter.OnDeviceJoined(func(event adapter.DeviceJoinedEvent) {
		c.post(func() { c.deviceJoined(event) })
	})
	c.adapter.OnDeviceLeft(func(event adapter.DeviceLeftEvent) {
		c.post(func() { c.deviceLeft(event) })
	})
	c.adapter.OnNodeDescriptor(func(event adapter.NodeDescriptorEvent) {
		c.post(func() { c.nodeDescriptorReceived(event) })
	})
	c.adapter.OnActiveEndpoints(func(event adapter.ActiveEndpointsEvent) {
		c.post(func() { c.activeEndpointsReceived(event) })
	})
	c.adapter.OnSimpleDescriptor(func(event adapter.SimpleDescriptorEvent) {
		c.post(func() { c.simpleDescriptorReceived(event) })
	})
	c.adapter.OnNeighborRecord(func(event adapter.NeighborRecordEvent) {
		c.post(func() { c.neighborRecordReceived(event) })
	})
	c.adapter.OnMessage(func(event adapter.MessageEvent) {
		c.post(func() { c.messageReceived(event) })
	})
	c.adapter.OnExtendedMessage(func(event adapter.ExtendedMessageEvent) {
		c.post(func() { c.extendedMessageReceived(event) })
	})
}

// coordinatorReady rebuilds the coordinator's own registry entry from the
// adapter identity. The radio reports its IEEE little-endian; the registry
// keys devices by the network-order form, so it is swapped once here.
func (c *Coordinator) coordinatorReady() {
	raw := c.adapter.IEEEAddress()
	var ieee [8]byte
	for i := range raw {
		ieee[i] = raw[7-i]
	}

	c.devices.EvictCoordinators(ieee)

	d := device.New(ieee, 0x0000)
	d.LogicalType = device.Coordinator
	d.InterviewFinished = true
	d.ManufacturerName = c.adapter.ManufacturerName()
	d.ModelName = c.adapter.ModelName()
	d.Name = "Coordinator"
	c.devices.Add(d)

	c.devices.AdapterType = c.adapter.Type()
	c.devices.AdapterVersion = c.adapter.Version()

	c.logger.Info("coordinator ready",
		"ieee", device.IEEEString(ieee),
		"type", c.devices.AdapterType,
		"version", c.devices.AdapterVersion)

	c.adapter.SetPermitJoin(c.devices.PermitJoin)
	c.storeDatabase()
	c.events.Emit(Event{Type: EventStatusUpdated, Data: "ready"})
}

func (c *Coordinator) permitJoinUpdated(enabled bool) {
	c.devices.PermitJoin = enabled
	c.logger.Info("permit join updated", "enabled", enabled)
	c.storeDatabase()
	c.events.Emit(Event{Type: EventPermitJoin, Data: enabled})
}

func (c *Coordinator) deviceJoined(event adapter.DeviceJoinedEvent) {
	d, ok := c.devices.Get(event.IEEEAddress)
	if ok {
		if d.Removed {
			d.Removed = false
		}
		if d.NetworkAddress != event.NetworkAddress {
			c.logger.Info("device rejoined with new network address",
				"device", d.Name, "networkAddress", event.NetworkAddress)
			d.NetworkAddress = event.NetworkAddress
		}
	} else {
		d = device.New(event.IEEEAddress, event.NetworkAddress)
		d.LogicalType = device.EndDevice
		c.devices.Add(d)
		c.logger.Info("device joined", "device", d.Name, "networkAddress", event.NetworkAddress)
	}

	d.LastSeen = time.Now()
	c.events.Emit(Event{Type: EventDeviceJoined, Data: d})
	c.storeDatabase()

	if !d.InterviewFinished && d.InterviewTimer == nil {
		c.logger.Info("device interview started", "device", d.Name)
		c.interviewDevice(d)
	}
}

func (c *Coordinator) deviceLeft(event adapter.DeviceLeftEvent) {
	d, ok := c.devices.Get(event.IEEEAddress)
	if !ok {
		return
	}
	c.logger.Info("device left", "device", d.Name)
	c.removeDevice(d)
	c.events.Emit(Event{Type: EventDeviceLeft, Data: d})
}

func (c *Coordinator) removeDevice(d *device.Device) {
	d.StopInterviewTimer()
	d.Removed = true
	c.devices.Remove(d.IEEEAddress)
	if err := c.store.DeleteDevice(device.IEEEString(d.IEEEAddress)); err != nil {
		c.logger.Error("delete device failed", "device", d.Name, "error", err)
	}
	c.storeDatabase()
}

func (c *Coordinator) neighborRecordReceived(event adapter.NeighborRecordEvent) {
	d, ok := c.devices.ByNetworkAddress(event.SourceAddress)
	if !ok {
		return
	}
	if event.First {
		d.Neighbors = make(map[uint16]uint8)
	}
	d.Neighbors[event.NetworkAddress] = event.LinkQuality
}

func (c *Coordinator) updateNeighbors() {
	for _, d := range c.devices.All() {
		if d.LogicalType == device.EndDevice || d.Removed {
			continue
		}
		c.enqueue(&request{kind: requestLQI, device: d})
	}
}

func (c *Coordinator) pollAttributes() {
	for _, d := range c.devices.All() {
		if !d.InterviewFinished || d.Removed || d.LogicalType == device.Coordinator {
			continue
		}
		for _, endpoint := range d.Endpoints {
			for _, poll := range endpoint.Polls {
				c.readAttributes(d, endpoint.ID, poll.ClusterID(), poll.Attributes(), 0)
			}
		}
	}
}
