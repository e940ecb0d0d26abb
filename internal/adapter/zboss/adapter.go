package zboss

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"zigbeed/internal/adapter"
)

const (
	profileHA      uint16 = 0x0104
	defaultRadius  uint8  = 30
	srcEndpointID  uint8  = 0x01
	llACKTimeout          = 500 * time.Millisecond
	llMaxRetries          = 3
	callTimeout           = 5 * time.Second
	permitDuration uint8  = 0xFF
)

// Config selects the serial port and the network parameters used when the
// NCP has no formed network yet.
type Config struct {
	Port     string
	Baud     int
	Channel  uint8
	PanID    uint16
	ExtPanID [8]byte
}

type txJob struct {
	raw    []byte
	pktSeq uint8
}

// Stack drives ZBOSS NCP firmware over a serial transport and implements the
// adapter contract. Requests are serialized through a single writer goroutine
// that handles the low-level ACK protocol; responses are matched by TSN and
// completion is reported through the registered callbacks.
type Stack struct {
	cfg    Config
	logger *slog.Logger

	transport *adapter.Transport
	reasm     reassembler

	tsn   atomic.Uint32
	seqMu sync.Mutex
	seq   uint8

	ackCh chan uint8
	tx    chan txJob

	pendingMu sync.Mutex
	pending   map[uint8]func(*frame)

	ieee    [8]byte
	version string

	handlers struct {
		coordinatorReady  func()
		permitJoinUpdated func(bool)
		requestFinished   func(uint8, uint8)
		deviceJoined      func(adapter.DeviceJoinedEvent)
		deviceLeft        func(adapter.DeviceLeftEvent)
		nodeDescriptor    func(adapter.NodeDescriptorEvent)
		activeEndpoints   func(adapter.ActiveEndpointsEvent)
		simpleDescriptor  func(adapter.SimpleDescriptorEvent)
		neighborRecord    func(adapter.NeighborRecordEvent)
		message           func(adapter.MessageEvent)
		extendedMessage   func(adapter.ExtendedMessageEvent)
	}

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a ZBOSS adapter stack. The serial port is opened on Start.
func New(cfg Config, logger *slog.Logger) *Stack {
	return &Stack{
		cfg:     cfg,
		logger:  logger.With("component", "zboss"),
		ackCh:   make(chan uint8, 4),
		tx:      make(chan txJob, 16),
		pending: make(map[uint8]func(*frame)),
		done:    make(chan struct{}),
	}
}

// Start opens the serial port and initializes the NCP in the background. The
// OnCoordinatorReady callback fires once the network is up.
func (s *Stack) Start() error {
	transport, err := adapter.OpenTransport(s.cfg.Port, s.cfg.Baud, s.logger)
	if err != nil {
		return err
	}
	s.transport = transport
	transport.OnData(s.receive)
	transport.Start()

	s.wg.Add(1)
	go s.txLoop()

	go s.initialize()
	return nil
}

// Stop shuts the stack down.
func (s *Stack) Stop() {
	close(s.done)
	if s.transport != nil {
		s.transport.Close()
	}
	s.wg.Wait()

	s.pendingMu.Lock()
	s.pending = make(map[uint8]func(*frame))
	s.pendingMu.Unlock()
}

// Reset asks the NCP to reboot. Fire-and-forget: the firmware drops off the
// bus immediately, so no response is expected.
func (s *Stack) Reset() {
	s.submit(cmdNCPReset, []byte{0x00}, nil)
}

func (s *Stack) IEEEAddress() [8]byte     { return s.ieee }
func (s *Stack) Type() string             { return "zboss" }
func (s *Stack) Version() string          { return s.version }
func (s *Stack) ManufacturerName() string { return "Nordic Semiconductor" }
func (s *Stack) ModelName() string        { return "nRF52840" }

// --- outbound plumbing ---

func (s *Stack) nextTSN() uint8 {
	return uint8(s.tsn.Add(1))
}

// nextPktSeq cycles the 2-bit LL sequence 1, 2, 3, 1, ...
func (s *Stack) nextPktSeq() uint8 {
	s.seqMu.Lock()
	s.seq = s.seq%3 + 1
	seq := s.seq
	s.seqMu.Unlock()
	return seq
}

// submit encodes a request and queues it for the writer. The completion
// callback, if any, runs on the receive goroutine when the matching response
// arrives.
func (s *Stack) submit(callID uint16, payload []byte, completion func(*frame)) bool {
	tsn := s.nextTSN()
	pktSeq := s.nextPktSeq()
	raw := encodeRequest(callID, tsn, pktSeq, payload)

	if completion != nil {
		s.pendingMu.Lock()
		s.pending[tsn] = completion
		s.pendingMu.Unlock()
	}

	select {
	case s.tx <- txJob{raw: raw, pktSeq: pktSeq}:
		s.logger.Debug("request queued", "cmd", cmdName(callID), "tsn", tsn)
		return true
	default:
		s.pendingMu.Lock()
		delete(s.pending, tsn)
		s.pendingMu.Unlock()
		s.logger.Warn("request queue full", "cmd", cmdName(callID))
		return false
	}
}

// call is the synchronous form of submit, used by initialization.
func (s *Stack) call(callID uint16, payload []byte) (*frame, error) {
	ch := make(chan *frame, 1)
	if !s.submit(callID, payload, func(f *frame) { ch <- f }) {
		return nil, fmt.Errorf("zboss: %s: queue full", cmdName(callID))
	}

	select {
	case f := <-ch:
		if f.HL.StatusCat != 0 || f.HL.StatusCode != 0 {
			return f, fmt.Errorf("zboss: %s: %s", cmdName(callID), statusName(f.HL.StatusCat, f.HL.StatusCode))
		}
		return f, nil
	case <-time.After(callTimeout):
		return nil, fmt.Errorf("zboss: %s: timeout", cmdName(callID))
	case <-s.done:
		return nil, fmt.Errorf("zboss: stack stopped")
	}
}

func (s *Stack) txLoop() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.tx:
			s.writeWithACK(job)
		case <-s.done:
			return
		}
	}
}

// writeWithACK writes a frame and waits for the matching LL ACK, retrying on
// timeout. Stale ACK sequences from earlier frames are drained.
func (s *Stack) writeWithACK(job txJob) {
	for attempt := 0; attempt <= llMaxRetries; attempt++ {
		if err := s.transport.Write(job.raw); err != nil {
			s.logger.Error("write failed", "error", err)
			return
		}

		deadline := time.NewTimer(llACKTimeout)
	waitACK:
		for {
			select {
			case ackSeq := <-s.ackCh:
				if ackSeq == job.pktSeq {
					deadline.Stop()
					return
				}
			case <-deadline.C:
				break waitACK
			case <-s.done:
				deadline.Stop()
				return
			}
		}
		s.logger.Warn("LL ACK timeout", "attempt", attempt+1, "pktSeq", job.pktSeq)
	}
}

func (s *Stack) sendACK(pktSeq uint8) {
	if err := s.transport.Write(encodeACK(pktSeq)); err != nil {
		s.logger.Error("send ACK failed", "error", err)
	}
}

// --- inbound plumbing ---

// receive runs on the transport read goroutine.
func (s *Stack) receive(chunk []byte) {
	for _, raw := range s.reasm.Feed(chunk) {
		f, err := decodeFrame(raw)
		if err != nil {
			s.logger.Warn("frame decode failed", "error", err)
			continue
		}

		if llIsACK(f.LL.Flags) {
			select {
			case s.ackCh <- llAckSeq(f.LL.Flags):
			default:
			}
			continue
		}
		s.sendACK(llPktSeq(f.LL.Flags))

		switch f.HL.PacketType {
		case hlResponse:
			s.pendingMu.Lock()
			completion, ok := s.pending[f.HL.TSN]
			delete(s.pending, f.HL.TSN)
			s.pendingMu.Unlock()
			if ok {
				completion(f)
			} else {
				s.logger.Warn("orphaned response", "cmd", cmdName(f.HL.CallID), "tsn", f.HL.TSN,
					"status", statusName(f.HL.StatusCat, f.HL.StatusCode))
			}

		case hlIndication:
			s.indication(f)
		}
	}
}

// respStatus folds the two-part ZBOSS status into a single byte for the
// request-finished callback. A non-generic category with code zero still
// means failure.
func respStatus(f *frame) uint8 {
	if f.HL.StatusCat != 0 && f.HL.StatusCode == 0 {
		return 0xFF
	}
	return f.HL.StatusCode
}

func (s *Stack) indication(f *frame) {
	switch f.HL.CallID {
	case cmdZDODevAnnceInd:
		// nwk(2) + ieee(8) + capability(1)
		if len(f.Payload) >= 10 && s.handlers.deviceJoined != nil {
			event := adapter.DeviceJoinedEvent{
				NetworkAddress: binary.LittleEndian.Uint16(f.Payload[0:2]),
			}
			copy(event.IEEEAddress[:], f.Payload[2:10])
			s.handlers.deviceJoined(event)
		}

	case cmdZDODevUpdateInd:
		// ieee(8) + nwk(2) + status(1)
		if len(f.Payload) < 11 {
			return
		}
		var ieee [8]byte
		copy(ieee[:], f.Payload[0:8])
		networkAddress := binary.LittleEndian.Uint16(f.Payload[8:10])

		switch f.Payload[10] {
		case devUpdateSecureRejoin, devUpdateUnsecureJoin, devUpdateTCRejoin:
			if s.handlers.deviceJoined != nil {
				s.handlers.deviceJoined(adapter.DeviceJoinedEvent{IEEEAddress: ieee, NetworkAddress: networkAddress})
			}
		case devUpdateLeft:
			if s.handlers.deviceLeft != nil {
				s.handlers.deviceLeft(adapter.DeviceLeftEvent{IEEEAddress: ieee})
			}
		}

	case cmdNwkLeaveInd:
		// ieee(8) + rejoin(1)
		if len(f.Payload) < 8 {
			return
		}
		rejoin := len(f.Payload) >= 9 && f.Payload[8] != 0
		if rejoin || s.handlers.deviceLeft == nil {
			return
		}
		var ieee [8]byte
		copy(ieee[:], f.Payload[0:8])
		s.handlers.deviceLeft(adapter.DeviceLeftEvent{IEEEAddress: ieee})

	case cmdAPSDEDataInd:
		s.dataIndication(f.Payload)

	case cmdNCPResetInd:
		s.logger.Warn("NCP reset indication")

	case cmdNwkAddrUpdateInd:
		if len(f.Payload) >= 2 {
			s.logger.Warn("device changed network address",
				"networkAddress", fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(f.Payload[0:2])))
		}

	case cmdSecurTCLKInd, cmdZDODevAuthorizedInd:
		// key exchange diagnostics
		s.logger.Debug("security indication", "cmd", cmdName(f.HL.CallID))

	case cmdSecurTCLKExchangeFailInd:
		if len(f.Payload) >= 2 {
			s.logger.Error("TC link key exchange failed", "status", statusName(f.Payload[0], f.Payload[1]))
		}

	default:
		s.logger.Warn("unhandled indication", "cmd", cmdName(f.HL.CallID))
	}
}

// dataIndication unpacks APSDE_DATA_IND:
// param_len(1) + data_len(2) + aps_fc(1) + src_nwk(2) + dst_nwk(2) +
// group(2) + dst_ep(1) + src_ep(1) + cluster(2) + profile(2) + counter(1) +
// src_mac(2) + dst_mac(2) + lqi(1) + rssi(1) + key_attr(1) + data[]
func (s *Stack) dataIndication(payload []byte) {
	const headerSize = 24
	if len(payload) < headerSize+1 {
		return
	}
	dataLen := int(binary.LittleEndian.Uint16(payload[1:3]))
	if dataLen == 0 || len(payload) < headerSize+dataLen {
		return
	}

	if s.handlers.message == nil {
		return
	}
	data := make([]byte, dataLen)
	copy(data, payload[headerSize:headerSize+dataLen])

	s.handlers.message(adapter.MessageEvent{
		NetworkAddress: binary.LittleEndian.Uint16(payload[4:6]),
		EndpointID:     payload[11],
		ClusterID:      binary.LittleEndian.Uint16(payload[12:14]),
		LinkQuality:    payload[21],
		Data:           data,
	})
}

// --- initialization ---

// initialize brings the NCP up: version probe, trust center policies, then
// network resume or formation. Runs once in its own goroutine after Start.
func (s *Stack) initialize() {
	f, err := s.call(cmdGetModuleVersion, nil)
	if err != nil {
		s.logger.Error("NCP version probe failed", "error", err)
		return
	}
	if len(f.Payload) >= 8 {
		stack := binary.LittleEndian.Uint32(f.Payload[4:8])
		s.version = fmt.Sprintf("%d.%d.%d.%d", (stack>>24)&0xFF, (stack>>16)&0xFF, (stack>>8)&0xFF, stack&0xFF)
	}

	// mac_interface_num(1) = 0; response: mac_interface_num(1) + ieee(8)
	f, err = s.call(cmdGetLocalIEEE, []byte{0x00})
	if err != nil {
		s.logger.Error("read local IEEE failed", "error", err)
		return
	}
	if len(f.Payload) >= 9 {
		copy(s.ieee[:], f.Payload[1:9])
	}

	if err := s.configureTrustCenter(); err != nil {
		s.logger.Error("trust center setup failed", "error", err)
		return
	}

	if _, err := s.call(cmdNwkStartWithoutForm, nil); err != nil {
		s.logger.Info("no stored network, forming", "error", err)
		if err := s.formNetwork(); err != nil {
			s.logger.Error("network formation failed", "error", err)
			return
		}
		if _, err := s.call(cmdNwkStartWithoutForm, nil); err != nil {
			s.logger.Error("network start failed", "error", err)
			return
		}
	}

	if _, err := s.call(cmdAFSetSimpleDesc, buildSimpleDescPayload(srcEndpointID, profileHA, 0x0005, nil, nil)); err != nil {
		s.logger.Error("endpoint registration failed", "error", err)
		return
	}

	s.logger.Info("ZBOSS NCP ready", "stack", s.version, "channel", s.cfg.Channel)
	if s.handlers.coordinatorReady != nil {
		s.handlers.coordinatorReady()
	}
}

func (s *Stack) configureTrustCenter() error {
	// Legacy security: well-known link key distribution, no install codes.
	policies := []struct {
		policy uint16
		value  uint8
	}{
		{tcPolicyLinkKeysRequired, 0},
		{tcPolicyICRequired, 0},
		{tcPolicyTCRejoinEnabled, 1},
		{tcPolicyIgnoreTCRejoin, 0},
		{tcPolicyAPSInsecureJoin, 0},
		{tcPolicyDisableNwkMgmtChanUpd, 0},
	}
	for _, p := range policies {
		buf := make([]byte, 3)
		binary.LittleEndian.PutUint16(buf[0:2], p.policy)
		buf[2] = p.value
		if _, err := s.call(cmdSetTCPolicy, buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stack) formNetwork() error {
	if _, err := s.call(cmdSetZigbeeRole, []byte{roleCoordinator}); err != nil {
		return err
	}
	if _, err := s.call(cmdSetExtPanID, s.cfg.ExtPanID[:]); err != nil {
		return err
	}

	chanBuf := make([]byte, 5)
	chanBuf[0] = 0x00 // channel page 0, 2.4 GHz
	binary.LittleEndian.PutUint32(chanBuf[1:], 1<<uint(s.cfg.Channel))
	if _, err := s.call(cmdSetChannelMask, chanBuf); err != nil {
		return err
	}

	nwkKey := make([]byte, 17) // key(16) + key_seq_num(1)
	if _, err := rand.Read(nwkKey[:16]); err != nil {
		return fmt.Errorf("zboss: generate network key: %w", err)
	}
	if _, err := s.call(cmdSetNwkKey, nwkKey); err != nil {
		return err
	}

	// channel_list(1+5) + scan_duration(1) + distributed(1) + dist_addr(2) + ext_pan(8)
	formBuf := make([]byte, 18)
	formBuf[0] = 0x01
	formBuf[1] = 0x00
	binary.LittleEndian.PutUint32(formBuf[2:6], 1<<uint(s.cfg.Channel))
	formBuf[6] = 0x05
	copy(formBuf[10:18], s.cfg.ExtPanID[:])
	if _, err := s.call(cmdNwkFormation, formBuf); err != nil {
		return err
	}

	// PAN id must be written after formation on ZBOSS firmware.
	panBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(panBuf, s.cfg.PanID)
	if _, err := s.call(cmdSetPanID, panBuf); err != nil {
		return err
	}
	if _, err := s.call(cmdSetRxOnWhenIdle, []byte{0x01}); err != nil {
		return err
	}
	if _, err := s.call(cmdSetMaxChildren, []byte{100}); err != nil {
		s.logger.Warn("set max children failed", "error", err)
	}
	return nil
}

// --- network management ---

func (s *Stack) SetPermitJoin(enabled bool) bool {
	duration := uint8(0)
	if enabled {
		duration = permitDuration
	}
	// dst(2) + duration(1) + tc_significance(1)
	payload := []byte{0x00, 0x00, duration, 0x01}
	return s.submit(cmdZDOPermitJoiningReq, payload, func(f *frame) {
		if status := respStatus(f); status != 0 {
			s.logger.Warn("permit join failed", "status", statusName(f.HL.StatusCat, f.HL.StatusCode))
			return
		}
		if s.handlers.permitJoinUpdated != nil {
			s.handlers.permitJoinUpdated(enabled)
		}
	})
}

func (s *Stack) LeaveRequest(id uint8, networkAddress uint16) bool {
	// dst(2) + ieee(8) + flags(1). Zero IEEE addresses the destination itself.
	payload := make([]byte, 11)
	binary.LittleEndian.PutUint16(payload[0:2], networkAddress)
	return s.submit(cmdZDOMgmtLeaveReq, payload, func(f *frame) {
		s.finishRequest(id, f)
	})
}

func (s *Stack) LQIRequest(id uint8, networkAddress uint16) bool {
	// dst(2) + start_index(1)
	payload := make([]byte, 3)
	binary.LittleEndian.PutUint16(payload[0:2], networkAddress)
	return s.submit(cmdZDOMgmtLqiReq, payload, func(f *frame) {
		if respStatus(f) == 0 {
			s.parseNeighborTable(networkAddress, f.Payload)
		}
		s.finishRequest(id, f)
	})
}

// parseNeighborTable walks an Mgmt_Lqi response:
// total(1) + start_index(1) + count(1) + records[count], each record
// ext_pan(8) + ieee(8) + nwk(2) + flags(1) + permit(1) + depth(1) + lqi(1).
func (s *Stack) parseNeighborTable(sourceAddress uint16, payload []byte) {
	if len(payload) < 3 || s.handlers.neighborRecord == nil {
		return
	}
	const recordSize = 22
	count := int(payload[2])
	for i := 0; i < count; i++ {
		offset := 3 + i*recordSize
		if offset+recordSize > len(payload) {
			return
		}
		record := payload[offset : offset+recordSize]
		s.handlers.neighborRecord(adapter.NeighborRecordEvent{
			SourceAddress:  sourceAddress,
			NetworkAddress: binary.LittleEndian.Uint16(record[16:18]),
			LinkQuality:    record[21],
			First:          i == 0,
		})
	}
}

// --- ZDO ---

func (s *Stack) NodeDescriptorRequest(id uint8, networkAddress uint16) bool {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, networkAddress)
	return s.submit(cmdZDONodeDescReq, payload, func(f *frame) {
		// standard 13-byte node descriptor: type bits in byte 0,
		// manufacturer code at bytes 3:5
		if respStatus(f) == 0 && len(f.Payload) >= 5 && s.handlers.nodeDescriptor != nil {
			s.handlers.nodeDescriptor(adapter.NodeDescriptorEvent{
				NetworkAddress:   networkAddress,
				LogicalType:      f.Payload[0] & 0x07,
				ManufacturerCode: binary.LittleEndian.Uint16(f.Payload[3:5]),
			})
		}
		s.finishRequest(id, f)
	})
}

func (s *Stack) ActiveEndpointsRequest(id uint8, networkAddress uint16) bool {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, networkAddress)
	return s.submit(cmdZDOActiveEPReq, payload, func(f *frame) {
		// count(1) + endpoints[count] + nwk(2)
		if respStatus(f) == 0 && len(f.Payload) >= 1 && s.handlers.activeEndpoints != nil {
			count := int(f.Payload[0])
			if len(f.Payload) >= 1+count {
				endpoints := make([]uint8, count)
				copy(endpoints, f.Payload[1:1+count])
				s.handlers.activeEndpoints(adapter.ActiveEndpointsEvent{
					NetworkAddress: networkAddress,
					Endpoints:      endpoints,
				})
			}
		}
		s.finishRequest(id, f)
	})
}

func (s *Stack) SimpleDescriptorRequest(id uint8, networkAddress uint16, endpointID uint8) bool {
	payload := make([]byte, 3)
	binary.LittleEndian.PutUint16(payload, networkAddress)
	payload[2] = endpointID
	return s.submit(cmdZDOSimpleDescReq, payload, func(f *frame) {
		if respStatus(f) == 0 && s.handlers.simpleDescriptor != nil {
			if event, ok := parseSimpleDescriptor(networkAddress, f.Payload); ok {
				s.handlers.simpleDescriptor(event)
			}
		}
		s.finishRequest(id, f)
	})
}

// parseSimpleDescriptor unpacks ep(1) + profile(2) + device(2) + version(1) +
// in_count(1) + out_count(1) + clusters.
func parseSimpleDescriptor(networkAddress uint16, payload []byte) (adapter.SimpleDescriptorEvent, bool) {
	var event adapter.SimpleDescriptorEvent
	if len(payload) < 8 {
		return event, false
	}
	event.NetworkAddress = networkAddress
	event.EndpointID = payload[0]
	event.ProfileID = binary.LittleEndian.Uint16(payload[1:3])
	event.DeviceID = binary.LittleEndian.Uint16(payload[3:5])

	inCount := int(payload[6])
	outCount := int(payload[7])
	pos := 8
	for i := 0; i < inCount && pos+2 <= len(payload); i++ {
		event.InClusters = append(event.InClusters, binary.LittleEndian.Uint16(payload[pos:pos+2]))
		pos += 2
	}
	for i := 0; i < outCount && pos+2 <= len(payload); i++ {
		event.OutClusters = append(event.OutClusters, binary.LittleEndian.Uint16(payload[pos:pos+2]))
		pos += 2
	}
	return event, true
}

func (s *Stack) BindRequest(id uint8, networkAddress uint16, endpointID uint8, clusterID uint16, dstAddress []byte, dstEndpointID uint8, unbind bool) bool {
	// ZDO bind needs the source device's IEEE address, which the radio can
	// resolve from the short address.
	lookup := make([]byte, 2)
	binary.LittleEndian.PutUint16(lookup, networkAddress)
	return s.submit(cmdNwkGetIEEEByShort, lookup, func(f *frame) {
		if respStatus(f) != 0 || len(f.Payload) < 8 {
			s.logger.Warn("IEEE lookup failed", "networkAddress", fmt.Sprintf("0x%04X", networkAddress))
			s.finishRequest(id, f)
			return
		}
		var srcIEEE [8]byte
		copy(srcIEEE[:], f.Payload[0:8])
		s.sendBind(id, networkAddress, srcIEEE, endpointID, clusterID, dstAddress, dstEndpointID, unbind)
	})
}

func (s *Stack) sendBind(id uint8, networkAddress uint16, srcIEEE [8]byte, endpointID uint8, clusterID uint16, dstAddress []byte, dstEndpointID uint8, unbind bool) {
	// nwk(2) + src_ieee(8) + src_ep(1) + cluster(2) + dst_mode(1) + dst(8) + dst_ep(1)
	payload := make([]byte, 23)
	binary.LittleEndian.PutUint16(payload[0:2], networkAddress)
	copy(payload[2:10], srcIEEE[:])
	payload[10] = endpointID
	binary.LittleEndian.PutUint16(payload[11:13], clusterID)

	switch len(dstAddress) {
	case 0:
		// bind to the coordinator
		payload[13] = addrModeIEEE
		copy(payload[14:22], s.ieee[:])
		payload[22] = srcEndpointID
	case 2:
		payload[13] = addrModeGroup
		copy(payload[14:16], dstAddress)
		payload[22] = dstEndpointID
	default:
		payload[13] = addrModeIEEE
		copy(payload[14:22], dstAddress)
		payload[22] = dstEndpointID
	}

	callID := cmdZDOBindReq
	if unbind {
		callID = cmdZDOUnbindReq
	}
	s.submit(callID, payload, func(f *frame) {
		s.finishRequest(id, f)
	})
}

// --- APS ---

func (s *Stack) DataRequest(id uint8, networkAddress uint16, endpointID uint8, clusterID uint16, payload []byte) bool {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint16(dst[0:2], networkAddress)
	request := buildDataRequest(dst, addrModeShort, endpointID, srcEndpointID, clusterID, profileHA, defaultRadius, payload)
	return s.submit(cmdAPSDEDataReq, request, func(f *frame) {
		s.finishRequest(id, f)
	})
}

func (s *Stack) ExtendedDataRequest(id uint8, address []byte, dstEndpointID uint8, dstPanID uint16, srcEP uint8, clusterID uint16, payload []byte, group bool) bool {
	if dstPanID != 0x0000 {
		s.logger.Warn("inter-PAN frames not supported by ZBOSS NCP")
		return false
	}

	dst := make([]byte, 8)
	mode := addrModeIEEE
	switch {
	case group:
		mode = addrModeGroup
		copy(dst[0:2], address)
	case len(address) == 2:
		mode = addrModeShort
		copy(dst[0:2], address)
	default:
		copy(dst, address)
	}

	request := buildDataRequest(dst, mode, dstEndpointID, srcEP, clusterID, profileHA, defaultRadius, payload)
	return s.submit(cmdAPSDEDataReq, request, func(f *frame) {
		if status := respStatus(f); status != 0 {
			s.logger.Warn("extended data request failed", "cluster", fmt.Sprintf("0x%04X", clusterID),
				"status", statusName(f.HL.StatusCat, f.HL.StatusCode))
		}
	})
}

// --- inter-PAN (unsupported by this firmware) ---

func (s *Stack) SetInterPanChannel(channel uint8) bool {
	s.logger.Warn("inter-PAN not supported by ZBOSS NCP")
	return false
}

func (s *Stack) SetInterPanEndpointID(endpointID uint8) bool {
	s.logger.Warn("inter-PAN not supported by ZBOSS NCP")
	return false
}

func (s *Stack) ResetInterPan() bool { return false }

func (s *Stack) finishRequest(id uint8, f *frame) {
	if s.handlers.requestFinished != nil {
		s.handlers.requestFinished(id, respStatus(f))
	}
}

// --- callback registration ---

func (s *Stack) OnCoordinatorReady(handler func())            { s.handlers.coordinatorReady = handler }
func (s *Stack) OnPermitJoinUpdated(handler func(bool))       { s.handlers.permitJoinUpdated = handler }
func (s *Stack) OnRequestFinished(handler func(uint8, uint8)) { s.handlers.requestFinished = handler }

func (s *Stack) OnDeviceJoined(handler func(adapter.DeviceJoinedEvent)) {
	s.handlers.deviceJoined = handler
}

func (s *Stack) OnDeviceLeft(handler func(adapter.DeviceLeftEvent)) {
	s.handlers.deviceLeft = handler
}

func (s *Stack) OnNodeDescriptor(handler func(adapter.NodeDescriptorEvent)) {
	s.handlers.nodeDescriptor = handler
}

func (s *Stack) OnActiveEndpoints(handler func(adapter.ActiveEndpointsEvent)) {
	s.handlers.activeEndpoints = handler
}

func (s *Stack) OnSimpleDescriptor(handler func(adapter.SimpleDescriptorEvent)) {
	s.handlers.simpleDescriptor = handler
}

func (s *Stack) OnNeighborRecord(handler func(adapter.NeighborRecordEvent)) {
	s.handlers.neighborRecord = handler
}

func (s *Stack) OnMessage(handler func(adapter.MessageEvent)) {
	s.handlers.message = handler
}

func (s *Stack) OnExtendedMessage(handler func(adapter.ExtendedMessageEvent)) {
	s.handlers.extendedMessage = handler
}
