// Package zboss implements the radio adapter for ZBOSS NCP firmware
// (nRF52840 dongles) over a serial transport. Protocol reference: the
// Wireshark ZBOSS NCP dissector (packet-zbncp.c).
package zboss

import (
	"encoding/binary"
	"fmt"
)

// Low-level header: sig(2) + len(2) + type(1) + flags(1) + crc8(1).
const (
	sig0         = 0xDE
	sig1         = 0xAD
	llHeaderSize = 7
	bodyCRCSize  = 2
)

// LL packet type is always 0x06 for the NCP API; ACK vs DATA is in flags.
const llType uint8 = 0x06

const (
	flagACK         = 0x01
	flagPktSeqMask  = 0x0C
	flagPktSeqShift = 2
	flagAckSeqMask  = 0x30
	flagAckSeqShift = 4
	flagFirstFrag   = 0x40
	flagLastFrag    = 0x80
)

// High-level packet types.
const (
	hlRequest    uint8 = 0x00
	hlResponse   uint8 = 0x01
	hlIndication uint8 = 0x02
)

// Call ids.
const (
	cmdGetModuleVersion uint16 = 0x0001
	cmdNCPReset         uint16 = 0x0002
	cmdSetZigbeeRole    uint16 = 0x0005
	cmdSetChannelMask   uint16 = 0x0007
	cmdGetChannel       uint16 = 0x0008
	cmdGetPanID         uint16 = 0x0009
	cmdSetPanID         uint16 = 0x000A
	cmdGetLocalIEEE     uint16 = 0x000B
	cmdSetRxOnWhenIdle  uint16 = 0x0013
	cmdSetEDTimeout     uint16 = 0x0017
	cmdSetNwkKey        uint16 = 0x001B
	cmdGetExtPanID      uint16 = 0x0023
	cmdNCPResetInd      uint16 = 0x002B
	cmdSetTCPolicy      uint16 = 0x0032
	cmdSetExtPanID      uint16 = 0x0033
	cmdSetMaxChildren   uint16 = 0x0034

	cmdAFSetSimpleDesc uint16 = 0x0101

	cmdZDOIEEEAddrReq      uint16 = 0x0202
	cmdZDONodeDescReq      uint16 = 0x0204
	cmdZDOSimpleDescReq    uint16 = 0x0205
	cmdZDOActiveEPReq      uint16 = 0x0206
	cmdZDOBindReq          uint16 = 0x0208
	cmdZDOUnbindReq        uint16 = 0x0209
	cmdZDOMgmtLeaveReq     uint16 = 0x020A
	cmdZDOPermitJoiningReq uint16 = 0x020B
	cmdZDODevAnnceInd      uint16 = 0x020C
	cmdZDOMgmtLqiReq       uint16 = 0x0210
	cmdZDODevAuthorizedInd uint16 = 0x0214
	cmdZDODevUpdateInd     uint16 = 0x0215

	cmdAPSDEDataReq uint16 = 0x0301
	cmdAPSDEDataInd uint16 = 0x0306

	cmdNwkFormation        uint16 = 0x0401
	cmdNwkGetIEEEByShort   uint16 = 0x0405
	cmdNwkStartedInd       uint16 = 0x0408
	cmdNwkLeaveInd         uint16 = 0x040B
	cmdNwkAddrUpdateInd    uint16 = 0x041C
	cmdNwkStartWithoutForm uint16 = 0x041D

	cmdSecurTCLKInd             uint16 = 0x050E
	cmdSecurTCLKExchangeFailInd uint16 = 0x050F
)

func cmdName(id uint16) string {
	switch id {
	case cmdGetModuleVersion:
		return "GetModuleVersion"
	case cmdNCPReset:
		return "NCPReset"
	case cmdSetZigbeeRole:
		return "SetZigbeeRole"
	case cmdSetChannelMask:
		return "SetChannelMask"
	case cmdGetChannel:
		return "GetChannel"
	case cmdGetPanID:
		return "GetPanID"
	case cmdSetPanID:
		return "SetPanID"
	case cmdGetLocalIEEE:
		return "GetLocalIEEE"
	case cmdSetRxOnWhenIdle:
		return "SetRxOnWhenIdle"
	case cmdSetEDTimeout:
		return "SetEDTimeout"
	case cmdSetNwkKey:
		return "SetNwkKey"
	case cmdGetExtPanID:
		return "GetExtPanID"
	case cmdNCPResetInd:
		return "NCPResetInd"
	case cmdSetTCPolicy:
		return "SetTCPolicy"
	case cmdSetExtPanID:
		return "SetExtPanID"
	case cmdSetMaxChildren:
		return "SetMaxChildren"
	case cmdAFSetSimpleDesc:
		return "AFSetSimpleDesc"
	case cmdZDOIEEEAddrReq:
		return "ZDO_IEEEAddr"
	case cmdZDONodeDescReq:
		return "ZDO_NodeDesc"
	case cmdZDOSimpleDescReq:
		return "ZDO_SimpleDesc"
	case cmdZDOActiveEPReq:
		return "ZDO_ActiveEP"
	case cmdZDOBindReq:
		return "ZDO_Bind"
	case cmdZDOUnbindReq:
		return "ZDO_Unbind"
	case cmdZDOMgmtLeaveReq:
		return "ZDO_MgmtLeave"
	case cmdZDOPermitJoiningReq:
		return "ZDO_PermitJoin"
	case cmdZDODevAnnceInd:
		return "ZDO_DevAnnce"
	case cmdZDOMgmtLqiReq:
		return "ZDO_MgmtLqi"
	case cmdZDODevAuthorizedInd:
		return "ZDO_DevAuthorized"
	case cmdZDODevUpdateInd:
		return "ZDO_DevUpdate"
	case cmdAPSDEDataReq:
		return "APSDE_DataReq"
	case cmdAPSDEDataInd:
		return "APSDE_DataInd"
	case cmdNwkFormation:
		return "NwkFormation"
	case cmdNwkGetIEEEByShort:
		return "NwkGetIEEEByShort"
	case cmdNwkStartedInd:
		return "NwkStartedInd"
	case cmdNwkLeaveInd:
		return "NwkLeaveInd"
	case cmdNwkAddrUpdateInd:
		return "NwkAddrUpdateInd"
	case cmdNwkStartWithoutForm:
		return "NwkStartWithoutForm"
	case cmdSecurTCLKInd:
		return "SECUR_TCLK_IND"
	case cmdSecurTCLKExchangeFailInd:
		return "SECUR_TCLK_EXCHANGE_FAILED_IND"
	default:
		return fmt.Sprintf("0x%04X", id)
	}
}

func statusName(cat, code uint8) string {
	if cat == 0 && code == 0 {
		return "OK"
	}
	catName := "Generic"
	switch cat {
	case 2:
		catName = "MAC"
	case 3:
		catName = "NWK"
	case 4:
		catName = "APS"
	case 5:
		catName = "ZDO"
	case 6:
		catName = "CBKE"
	}
	return fmt.Sprintf("%s/%d(0x%02X)", catName, code, code)
}

const roleCoordinator uint8 = 0x00

// ZDO device update statuses.
const (
	devUpdateSecureRejoin uint8 = 0x00
	devUpdateUnsecureJoin uint8 = 0x01
	devUpdateLeft         uint8 = 0x02
	devUpdateTCRejoin     uint8 = 0x03
)

// Trust Center policy types for SetTCPolicy.
const (
	tcPolicyLinkKeysRequired      uint16 = 0x0000
	tcPolicyICRequired            uint16 = 0x0001
	tcPolicyTCRejoinEnabled       uint16 = 0x0002
	tcPolicyIgnoreTCRejoin        uint16 = 0x0003
	tcPolicyAPSInsecureJoin       uint16 = 0x0004
	tcPolicyDisableNwkMgmtChanUpd uint16 = 0x0005
)

// APSDE address modes.
const (
	addrModeGroup uint8 = 0x01
	addrModeShort uint8 = 0x02
	addrModeIEEE  uint8 = 0x03
)

type llHeader struct {
	Length uint16
	Type   uint8
	Flags  uint8
}

type hlHeader struct {
	Version    uint8
	PacketType uint8
	CallID     uint16
	TSN        uint8
	StatusCat  uint8
	StatusCode uint8
}

type frame struct {
	LL      llHeader
	HL      hlHeader
	Payload []byte
}

func llPktSeq(flags uint8) uint8 { return (flags >> flagPktSeqShift) & 0x03 }
func llAckSeq(flags uint8) uint8 { return (flags >> flagAckSeqShift) & 0x03 }
func llIsACK(flags uint8) bool   { return flags&flagACK != 0 }

// CRC-8/KOOP over the LL header (reflected poly 0x4D, init 0xFF, xorout 0xFF).
var crc8Table [256]uint8

// CRC-16/KERMIT over the HL body (reflected poly 0x1021, init 0, xorout 0).
var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		c := uint8(i)
		for bit := 0; bit < 8; bit++ {
			if c&1 != 0 {
				c = (c >> 1) ^ 0xB2
			} else {
				c >>= 1
			}
		}
		crc8Table[i] = c
	}
	for i := 0; i < 256; i++ {
		c := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if c&1 != 0 {
				c = (c >> 1) ^ 0x8408
			} else {
				c >>= 1
			}
		}
		crc16Table[i] = c
	}
}

func crc8(data []byte) uint8 {
	crc := uint8(0xFF)
	for _, b := range data {
		crc = crc8Table[crc^b]
	}
	return crc ^ 0xFF
}

func crc16(data []byte) uint16 {
	crc := uint16(0x0000)
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[(crc^uint16(b))&0xFF]
	}
	return crc
}

// encodeRequest builds a complete frame for an HL request. pktSeq is the
// 2-bit LL packet sequence number.
func encodeRequest(callID uint16, tsn uint8, pktSeq uint8, payload []byte) []byte {
	hlData := make([]byte, 5+len(payload))
	hlData[0] = 0x00 // HL version
	hlData[1] = hlRequest
	binary.LittleEndian.PutUint16(hlData[2:4], callID)
	hlData[4] = tsn
	copy(hlData[5:], payload)
	return encodeDataFrame(pktSeq, hlData)
}

func encodeDataFrame(pktSeq uint8, hlData []byte) []byte {
	bodyCRC := crc16(hlData)

	bodyLen := bodyCRCSize + len(hlData)
	// size field counts itself: size(2) + type(1) + flags(1) + crc8(1) + body
	llSize := uint16(5 + bodyLen)

	flags := uint8(flagFirstFrag | flagLastFrag)
	flags |= (pktSeq << flagPktSeqShift) & flagPktSeqMask

	raw := make([]byte, 2+int(llSize))
	raw[0] = sig0
	raw[1] = sig1
	binary.LittleEndian.PutUint16(raw[2:4], llSize)
	raw[4] = llType
	raw[5] = flags
	raw[6] = crc8(raw[2:6])

	binary.LittleEndian.PutUint16(raw[7:9], bodyCRC)
	copy(raw[9:], hlData)
	return raw
}

// encodeACK builds a bodyless LL ACK frame.
func encodeACK(ackSeq uint8) []byte {
	raw := make([]byte, llHeaderSize)
	raw[0] = sig0
	raw[1] = sig1
	binary.LittleEndian.PutUint16(raw[2:4], 5)
	raw[4] = llType
	raw[5] = flagACK | ((ackSeq << flagAckSeqShift) & flagAckSeqMask)
	raw[6] = crc8(raw[2:6])
	return raw
}

// decodeFrame parses one complete frame.
func decodeFrame(data []byte) (*frame, error) {
	if len(data) < llHeaderSize {
		return nil, fmt.Errorf("zboss: frame too short: %d bytes", len(data))
	}
	if data[0] != sig0 || data[1] != sig1 {
		return nil, fmt.Errorf("zboss: bad signature: 0x%02X%02X", data[0], data[1])
	}

	llSize := binary.LittleEndian.Uint16(data[2:4])
	if data[6] != crc8(data[2:6]) {
		return nil, fmt.Errorf("zboss: LL CRC8 mismatch")
	}
	if data[4] != llType {
		return nil, fmt.Errorf("zboss: unexpected LL type 0x%02X", data[4])
	}
	if int(llSize)+2 > len(data) {
		return nil, fmt.Errorf("zboss: frame truncated: need %d, have %d", llSize+2, len(data))
	}

	f := &frame{LL: llHeader{Length: llSize, Type: data[4], Flags: data[5]}}
	if llIsACK(f.LL.Flags) {
		return f, nil
	}

	body := data[llHeaderSize : 2+llSize]
	if len(body) < bodyCRCSize {
		return nil, fmt.Errorf("zboss: body too short")
	}
	bodyCRC := binary.LittleEndian.Uint16(body[0:2])
	hlData := body[2:]
	if bodyCRC != crc16(hlData) {
		return nil, fmt.Errorf("zboss: body CRC16 mismatch")
	}
	if len(hlData) < 4 {
		return nil, fmt.Errorf("zboss: HL data too short: %d bytes", len(hlData))
	}

	f.HL.Version = hlData[0]
	f.HL.PacketType = hlData[1]
	f.HL.CallID = binary.LittleEndian.Uint16(hlData[2:4])

	pos := 4
	switch f.HL.PacketType {
	case hlRequest:
		if len(hlData) < 5 {
			return nil, fmt.Errorf("zboss: request HL too short")
		}
		f.HL.TSN = hlData[4]
		pos = 5
	case hlResponse:
		if len(hlData) < 7 {
			return nil, fmt.Errorf("zboss: response HL too short")
		}
		f.HL.TSN = hlData[4]
		f.HL.StatusCat = hlData[5]
		f.HL.StatusCode = hlData[6]
		pos = 7
	case hlIndication:
		pos = 4
	default:
		return nil, fmt.Errorf("zboss: unknown HL packet type 0x%02X", f.HL.PacketType)
	}

	if pos < len(hlData) {
		f.Payload = make([]byte, len(hlData)-pos)
		copy(f.Payload, hlData[pos:])
	}
	return f, nil
}

// reassembler accumulates raw serial chunks and yields complete frames. The
// transport delivers arbitrary chunk boundaries, so frames are recovered by
// scanning for the signature and waiting for the announced length.
type reassembler struct {
	buf []byte
}

// Feed appends a chunk and returns every complete raw frame now available.
func (r *reassembler) Feed(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	var frames [][]byte
	for {
		// Resynchronize on the frame signature.
		start := -1
		for i := 0; i+1 < len(r.buf); i++ {
			if r.buf[i] == sig0 && r.buf[i+1] == sig1 {
				start = i
				break
			}
		}
		if start < 0 {
			if len(r.buf) > 1 {
				r.buf = r.buf[len(r.buf)-1:]
			}
			return frames
		}
		if start > 0 {
			r.buf = r.buf[start:]
		}
		if len(r.buf) < 4 {
			return frames
		}

		llSize := binary.LittleEndian.Uint16(r.buf[2:4])
		total := 2 + int(llSize)
		if total < llHeaderSize {
			// Corrupt length, drop the signature and rescan.
			r.buf = r.buf[2:]
			continue
		}
		if len(r.buf) < total {
			return frames
		}

		raw := make([]byte, total)
		copy(raw, r.buf[:total])
		r.buf = r.buf[total:]
		frames = append(frames, raw)
	}
}

// buildDataRequest builds the APSDE_DATA_REQ parameter block. The 8-byte
// destination union carries a short or group address in its first bytes, or a
// full IEEE address.
func buildDataRequest(dstAddr []byte, addrMode uint8, dstEndpointID, srcEndpointID uint8, clusterID, profileID uint16, radius uint8, apsData []byte) []byte {
	const fixedLen = 24
	buf := make([]byte, fixedLen+len(apsData))
	buf[0] = fixedLen - 3 // param_len excludes itself and data_len
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(apsData)))
	copy(buf[3:11], dstAddr)
	binary.LittleEndian.PutUint16(buf[11:13], profileID)
	binary.LittleEndian.PutUint16(buf[13:15], clusterID)
	buf[15] = dstEndpointID
	buf[16] = srcEndpointID
	buf[17] = radius
	buf[18] = addrMode
	if addrMode != addrModeGroup {
		buf[19] = 0x04 // tx_options: APS ACK
	}
	// use_alias(1) + alias_src_addr(2) + alias_seq_num(1) stay zero
	copy(buf[24:], apsData)
	return buf
}

// buildSimpleDescPayload builds the AF_SET_SIMPLE_DESC parameter block used
// to register the coordinator's own endpoint.
func buildSimpleDescPayload(endpointID uint8, profileID, deviceID uint16, inClusters, outClusters []uint16) []byte {
	buf := make([]byte, 8+len(inClusters)*2+len(outClusters)*2)
	buf[0] = endpointID
	binary.LittleEndian.PutUint16(buf[1:3], profileID)
	binary.LittleEndian.PutUint16(buf[3:5], deviceID)
	buf[5] = 0x00 // device version
	buf[6] = uint8(len(inClusters))
	buf[7] = uint8(len(outClusters))
	pos := 8
	for _, id := range inClusters {
		binary.LittleEndian.PutUint16(buf[pos:pos+2], id)
		pos += 2
	}
	for _, id := range outClusters {
		binary.LittleEndian.PutUint16(buf[pos:pos+2], id)
		pos += 2
	}
	return buf
}
