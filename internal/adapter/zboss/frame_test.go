package zboss

import (
	"bytes"
	"encoding/binary"
	"testing"

	"zigbeed/internal/adapter"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	encoded := encodeRequest(cmdAPSDEDataReq, 42, 1, payload)

	if encoded[0] != sig0 || encoded[1] != sig1 {
		t.Fatalf("bad signature: 0x%02X%02X", encoded[0], encoded[1])
	}

	decoded, err := decodeFrame(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded.HL.PacketType != hlRequest {
		t.Errorf("packet type: got %d, want %d", decoded.HL.PacketType, hlRequest)
	}
	if decoded.HL.CallID != cmdAPSDEDataReq {
		t.Errorf("call id: got 0x%04X", decoded.HL.CallID)
	}
	if decoded.HL.TSN != 42 {
		t.Errorf("tsn: got %d, want 42", decoded.HL.TSN)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("payload: got %X, want %X", decoded.Payload, payload)
	}
	if llPktSeq(decoded.LL.Flags) != 1 {
		t.Errorf("pktSeq: got %d, want 1", llPktSeq(decoded.LL.Flags))
	}
}

func TestEncodeDecodeACKRoundTrip(t *testing.T) {
	for seq := uint8(0); seq < 4; seq++ {
		decoded, err := decodeFrame(encodeACK(seq))
		if err != nil {
			t.Fatalf("seq=%d decode error: %v", seq, err)
		}
		if !llIsACK(decoded.LL.Flags) {
			t.Errorf("seq=%d: not an ACK frame", seq)
		}
		if got := llAckSeq(decoded.LL.Flags); got != seq {
			t.Errorf("seq=%d: ackSeq got %d", seq, got)
		}
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	if _, err := decodeFrame([]byte{0xDE, 0xAD}); err == nil {
		t.Error("expected error for short frame")
	}

	bad := make([]byte, 10)
	bad[0] = 0xFF
	if _, err := decodeFrame(bad); err == nil {
		t.Error("expected error for bad signature")
	}

	corrupted := encodeACK(0)
	corrupted[6] ^= 0xFF
	if _, err := decodeFrame(corrupted); err == nil {
		t.Error("expected LL CRC error")
	}

	request := encodeRequest(cmdGetModuleVersion, 1, 0, nil)
	request[7] ^= 0xFF // body CRC16
	if _, err := decodeFrame(request); err == nil {
		t.Error("expected body CRC error")
	}
}

func TestReassemblerChunkedInput(t *testing.T) {
	first := encodeRequest(cmdGetModuleVersion, 1, 1, nil)
	second := encodeACK(2)
	stream := append(append([]byte{0x00, 0x42}, first...), second...) // leading garbage

	var r reassembler
	var frames [][]byte
	for _, b := range stream {
		frames = append(frames, r.Feed([]byte{b})...)
	}

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], first) {
		t.Errorf("first frame mismatch: %X", frames[0])
	}
	if !bytes.Equal(frames[1], second) {
		t.Errorf("second frame mismatch: %X", frames[1])
	}
}

func TestReassemblerCoalescedInput(t *testing.T) {
	first := encodeACK(1)
	second := encodeRequest(cmdZDOActiveEPReq, 7, 2, []byte{0x34, 0x12})

	var r reassembler
	frames := r.Feed(append(append([]byte{}, first...), second...))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}

	decoded, err := decodeFrame(frames[1])
	if err != nil {
		t.Fatal(err)
	}
	if decoded.HL.CallID != cmdZDOActiveEPReq {
		t.Errorf("call id: got 0x%04X", decoded.HL.CallID)
	}
}

func TestBuildDataRequestLayout(t *testing.T) {
	zclData := []byte{0x10, 0x01, 0x00, 0x00, 0x00}
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint16(dst, 0x1234)
	buf := buildDataRequest(dst, addrModeShort, 1, 1, 0x0006, profileHA, 30, zclData)

	if len(buf) != 24+len(zclData) {
		t.Fatalf("length: got %d, want %d", len(buf), 24+len(zclData))
	}
	if got := binary.LittleEndian.Uint16(buf[1:3]); got != uint16(len(zclData)) {
		t.Errorf("data_len: got %d", got)
	}
	if got := binary.LittleEndian.Uint16(buf[3:5]); got != 0x1234 {
		t.Errorf("dst_addr: got 0x%04X", got)
	}
	if got := binary.LittleEndian.Uint16(buf[13:15]); got != 0x0006 {
		t.Errorf("cluster: got 0x%04X", got)
	}
	if buf[18] != addrModeShort {
		t.Errorf("addr_mode: got 0x%02X", buf[18])
	}
	if buf[19] != 0x04 {
		t.Errorf("tx_options: got 0x%02X, want APS ACK", buf[19])
	}
	if !bytes.Equal(buf[24:], zclData) {
		t.Errorf("data: got %X", buf[24:])
	}
}

func TestBuildDataRequestGroupNoAck(t *testing.T) {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint16(dst, 0x0002)
	buf := buildDataRequest(dst, addrModeGroup, 0xFF, 1, 0x0006, profileHA, 30, []byte{0x01})
	if buf[18] != addrModeGroup {
		t.Errorf("addr_mode: got 0x%02X", buf[18])
	}
	if buf[19] != 0x00 {
		t.Errorf("tx_options: got 0x%02X, want no APS ACK for groupcast", buf[19])
	}
}

func TestParseSimpleDescriptor(t *testing.T) {
	payload := []byte{
		0x01,       // endpoint
		0x04, 0x01, // profile HA
		0x00, 0x01, // device id
		0x00,       // device version
		0x02, 0x01, // in count, out count
		0x00, 0x00, // in: Basic
		0x06, 0x00, // in: OnOff
		0x19, 0x00, // out: OTA
	}

	event, ok := parseSimpleDescriptor(0x4567, payload)
	if !ok {
		t.Fatal("parse failed")
	}
	if event.NetworkAddress != 0x4567 || event.EndpointID != 1 {
		t.Errorf("addressing: %+v", event)
	}
	if event.ProfileID != 0x0104 || event.DeviceID != 0x0100 {
		t.Errorf("profile/device: %+v", event)
	}
	if len(event.InClusters) != 2 || event.InClusters[1] != 0x0006 {
		t.Errorf("in clusters: %v", event.InClusters)
	}
	if len(event.OutClusters) != 1 || event.OutClusters[0] != 0x0019 {
		t.Errorf("out clusters: %v", event.OutClusters)
	}

	if _, ok := parseSimpleDescriptor(0x4567, payload[:5]); ok {
		t.Error("expected failure on truncated payload")
	}
}

func TestParseNeighborTable(t *testing.T) {
	record := func(nwk uint16, lqi uint8) []byte {
		buf := make([]byte, 22)
		binary.LittleEndian.PutUint16(buf[16:18], nwk)
		buf[21] = lqi
		return buf
	}

	payload := []byte{0x02, 0x00, 0x02}
	payload = append(payload, record(0x1111, 200)...)
	payload = append(payload, record(0x2222, 150)...)

	var events []adapter.NeighborRecordEvent
	s := &Stack{}
	s.handlers.neighborRecord = func(e adapter.NeighborRecordEvent) {
		events = append(events, e)
	}

	s.parseNeighborTable(0xAAAA, payload)

	if len(events) != 2 {
		t.Fatalf("got %d records, want 2", len(events))
	}
	if !events[0].First || events[1].First {
		t.Errorf("first flags: %v, %v", events[0].First, events[1].First)
	}
	if events[0].SourceAddress != 0xAAAA || events[0].NetworkAddress != 0x1111 || events[0].LinkQuality != 200 {
		t.Errorf("first record: %+v", events[0])
	}
	if events[1].NetworkAddress != 0x2222 || events[1].LinkQuality != 150 {
		t.Errorf("second record: %+v", events[1])
	}

	// truncated record list stops cleanly
	events = nil
	s.parseNeighborTable(0xAAAA, payload[:10])
	if len(events) != 0 {
		t.Errorf("expected no records from truncated payload, got %d", len(events))
	}
}
