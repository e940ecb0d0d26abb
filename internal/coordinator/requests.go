package coordinator

import (
	"time"

	"zigbeed/internal/device"
	"zigbeed/internal/zcl"
)

type requestKind int

const (
	requestBinding requestKind = iota
	requestData
	requestRemove
	requestLQI
	requestInterview
)

func (k requestKind) String() string {
	switch k {
	case requestBinding:
		return "binding"
	case requestData:
		return "data"
	case requestRemove:
		return "remove"
	case requestLQI:
		return "lqi"
	default:
		return "interview"
	}
}

type requestStatus int

const (
	requestPending requestStatus = iota
	requestSent
	requestFinishedOK
	requestAborted
)

// request is one queued radio operation. The id it is stored under doubles
// as the adapter request id, so completions can be matched back.
type request struct {
	kind   requestKind
	status requestStatus
	device *device.Device
	name   string

	// data requests
	endpointID uint8
	clusterID  uint16
	payload    []byte

	// binding requests
	dstAddress    []byte
	dstEndpointID uint8
	unbind        bool
}

// enqueue assigns the request an id unique among pending requests and arms
// the dispatch tick. Must run on the event loop.
func (c *Coordinator) enqueue(r *request) uint8 {
	for {
		c.transactionID++
		if _, busy := c.requests[c.transactionID]; !busy {
			break
		}
	}
	id := c.transactionID
	c.requests[id] = r
	c.requestOrder = append(c.requestOrder, id)
	c.scheduleTick()
	return id
}

func (c *Coordinator) scheduleTick() {
	if c.tickScheduled {
		return
	}
	c.tickScheduled = true
	time.AfterFunc(handleRequestsInterval, func() {
		c.post(c.handleRequests)
	})
}

// handleRequests dispatches every pending request in insertion order, then
// erases the finished and aborted ones. There are no retries: a request
// the adapter refuses is aborted and dropped.
func (c *Coordinator) handleRequests() {
	c.tickScheduled = false

	for _, id := range c.requestOrder {
		r, ok := c.requests[id]
		if !ok || r.status != requestPending {
			continue
		}
		c.dispatch(id, r)
	}

	order := c.requestOrder[:0]
	for _, id := range c.requestOrder {
		r, ok := c.requests[id]
		if !ok {
			continue
		}
		if r.status == requestFinishedOK || r.status == requestAborted {
			delete(c.requests, id)
			continue
		}
		order = append(order, id)
	}
	c.requestOrder = order
}

func (c *Coordinator) dispatch(id uint8, r *request) {
	var sent bool

	switch r.kind {
	case requestBinding:
		sent = c.adapter.BindRequest(id, r.device.NetworkAddress, r.endpointID, r.clusterID, r.dstAddress, r.dstEndpointID, r.unbind)
	case requestData:
		sent = c.adapter.DataRequest(id, r.device.NetworkAddress, r.endpointID, r.clusterID, r.payload)
	case requestRemove:
		sent = c.adapter.LeaveRequest(id, r.device.NetworkAddress)
	case requestLQI:
		sent = c.adapter.LQIRequest(id, r.device.NetworkAddress)
	case requestInterview:
		if !c.interviewRequest(id, r.device) {
			r.status = requestAborted
			return
		}
		if r.device.InterviewFinished {
			r.status = requestFinishedOK
			return
		}
		r.status = requestSent
		return
	}

	if !sent {
		c.logger.Warn("request failed", "kind", r.kind.String(), "device", r.device.Name, "request", r.name)
		r.status = requestAborted
		return
	}
	r.status = requestSent
}

// requestFinished matches an adapter completion back to its request. Unknown
// or already finished ids are ignored, so duplicate completions are harmless.
func (c *Coordinator) requestFinished(id, status uint8) {
	r, ok := c.requests[id]
	if !ok || r.status == requestFinishedOK {
		return
	}

	if status != 0 {
		c.logger.Warn("request finished with error",
			"kind", r.kind.String(), "device", r.device.Name, "request", r.name, "status", status)
	}

	switch r.kind {
	case requestRemove:
		if status == 0 {
			c.logger.Info("device removed", "device", r.device.Name)
			c.removeDevice(r.device)
			c.events.Emit(Event{Type: EventDeviceLeft, Data: r.device})
		}
	case requestInterview:
		if status != 0 {
			c.interviewError(r.device, "interview request failed")
		}
	}

	r.status = requestFinishedOK
	c.scheduleTick()
}

// nextZCLTransaction yields the sequence number used inside outgoing ZCL
// frames. It is independent of the request ids above.
func (c *Coordinator) nextZCLTransaction() uint8 {
	c.actionID++
	return c.actionID
}

// enqueueData queues a unicast ZCL data request to one endpoint.
func (c *Coordinator) enqueueData(d *device.Device, endpointID uint8, clusterID uint16, payload []byte, name string) uint8 {
	return c.enqueue(&request{
		kind:       requestData,
		device:     d,
		name:       name,
		endpointID: endpointID,
		clusterID:  clusterID,
		payload:    payload,
	})
}

// readAttributes queues a foundation Read Attributes request.
func (c *Coordinator) readAttributes(d *device.Device, endpointID uint8, clusterID uint16, attributes []uint16, manufacturerCode uint16) {
	payload := zcl.ReadAttributesRequest(c.nextZCLTransaction(), attributes, manufacturerCode)
	c.enqueueData(d, endpointID, clusterID, payload, "read attributes")
}
