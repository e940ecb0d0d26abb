package coordinator

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"zigbeed/internal/device"
	"zigbeed/internal/zcl"
)

// otaHeader holds the fields of an OTA image file header the server needs.
// Offsets follow the Zigbee OTA file format.
type otaHeader struct {
	manufacturerCode uint16 // offset 10
	imageType        uint16 // offset 12
	fileVersion      uint32 // offset 14
	imageSize        uint32 // offset 52
}

func readOTAHeader(file *os.File) (otaHeader, bool) {
	var raw [56]byte
	if _, err := io.ReadFull(file, raw[:]); err != nil {
		return otaHeader{}, false
	}
	return otaHeader{
		manufacturerCode: binary.LittleEndian.Uint16(raw[10:12]),
		imageType:        binary.LittleEndian.Uint16(raw[12:14]),
		fileVersion:      binary.LittleEndian.Uint32(raw[14:18]),
		imageSize:        binary.LittleEndian.Uint32(raw[52:56]),
	}, true
}

const otaResponseControl = zcl.FrameControlClusterSpecific | zcl.FrameControlServerToClient | zcl.FrameControlDisableDefaultResponse

// otaCommandReceived serves the OTA upgrade cluster. The server is stateless
// between commands except for the upgrade file name; the file is reopened
// read-only for each command.
func (c *Coordinator) otaCommandReceived(endpoint *device.Endpoint, transactionID, commandID uint8, payload []byte) {
	d := endpoint.Device()

	var header otaHeader
	var headerOK bool

	file, err := os.Open(c.otaUpgradeFile)
	if err == nil {
		defer file.Close()
		header, headerOK = readOTAHeader(file)
	}

	noImage := func(responseID uint8) {
		response := zcl.Header(otaResponseControl, transactionID, responseID)
		response = append(response, zcl.StatusNoImageAvailable)
		c.enqueueData(d, endpoint.ID, zcl.ClusterOTAUpgrade, response, "")
	}

	switch commandID {
	case 0x01: // query next image request
		if len(payload) < 9 {
			return
		}
		manufacturerCode := binary.LittleEndian.Uint16(payload[1:3])
		imageType := binary.LittleEndian.Uint16(payload[3:5])
		fileVersion := binary.LittleEndian.Uint32(payload[5:9])

		if !headerOK || manufacturerCode != header.manufacturerCode || imageType != header.imageType {
			noImage(0x02)
			return
		}

		if fileVersion == header.fileVersion {
			c.logger.Info("OTA upgrade not started, version match", "device", d.Name, "version", fileVersion)
			noImage(0x02)
			return
		}

		c.logger.Info("OTA upgrade started", "device", d.Name)

		response := zcl.Header(otaResponseControl, transactionID, 0x02)
		response = append(response, zcl.StatusSuccess)
		response = binary.LittleEndian.AppendUint16(response, header.manufacturerCode)
		response = binary.LittleEndian.AppendUint16(response, header.imageType)
		response = binary.LittleEndian.AppendUint32(response, header.fileVersion)
		response = binary.LittleEndian.AppendUint32(response, header.imageSize)
		c.enqueueData(d, endpoint.ID, zcl.ClusterOTAUpgrade, response, "")

	case 0x03: // image block request
		if len(payload) < 14 {
			return
		}
		manufacturerCode := binary.LittleEndian.Uint16(payload[1:3])
		imageType := binary.LittleEndian.Uint16(payload[3:5])
		fileVersion := binary.LittleEndian.Uint32(payload[5:9])
		fileOffset := binary.LittleEndian.Uint32(payload[9:13])
		dataSizeMax := payload[13]

		if !headerOK || manufacturerCode != header.manufacturerCode || imageType != header.imageType || fileVersion != header.fileVersion {
			noImage(0x05)
			return
		}

		block := make([]byte, dataSizeMax)
		n, _ := file.ReadAt(block, int64(fileOffset))
		block = block[:n]

		c.logger.Info("OTA upgrade block", "device", d.Name, "offset", fileOffset, "size", n)

		response := zcl.Header(otaResponseControl, transactionID, 0x05)
		response = append(response, zcl.StatusSuccess)
		response = binary.LittleEndian.AppendUint16(response, manufacturerCode)
		response = binary.LittleEndian.AppendUint16(response, imageType)
		response = binary.LittleEndian.AppendUint32(response, fileVersion)
		response = binary.LittleEndian.AppendUint32(response, fileOffset)
		response = append(response, uint8(n))
		response = append(response, block...)
		c.enqueueData(d, endpoint.ID, zcl.ClusterOTAUpgrade, response, "")

	case 0x06: // upgrade end request
		if len(payload) < 9 {
			return
		}
		status := payload[0]
		c.otaUpgradeFile = ""

		if status != 0 {
			c.logger.Warn("OTA upgrade failed", "device", d.Name, "status", status)
			return
		}

		c.logger.Info("OTA upgrade finished", "device", d.Name)

		response := zcl.Header(otaResponseControl, transactionID, 0x07)
		response = append(response, payload[1:9]...)             // manufacturer code, image type, file version
		response = binary.LittleEndian.AppendUint32(response, 0) // current time
		response = binary.LittleEndian.AppendUint32(response, 0) // upgrade time
		c.enqueueData(d, endpoint.ID, zcl.ClusterOTAUpgrade, response, "")

	default:
		c.logger.Warn("unrecognized OTA upgrade command",
			"device", d.Name, "command", commandID, "payload", hex.EncodeToString(payload))
	}
}
