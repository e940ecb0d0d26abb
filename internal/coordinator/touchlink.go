package coordinator

import (
	"encoding/binary"
	"math/rand"

	"zigbeed/internal/device"
	"zigbeed/internal/zcl"
)

const interPanEndpointID = 0x0C

var interPanBroadcast = []byte{0xFF, 0xFF}

// TouchLink runs a TouchLink operation: a scan over all channels, or a
// factory reset of the device with the given IEEE address on one channel.
// The radio is switched to inter-PAN mode for the duration and restored
// afterwards.
func (c *Coordinator) TouchLink(ieee [8]byte, channel uint8, reset bool) {
	c.post(func() {
		if !c.adapter.SetInterPanEndpointID(interPanEndpointID) {
			c.logger.Warn("touchlink unavailable, adapter does not support inter-PAN mode")
			return
		}

		if reset {
			c.touchLinkReset(ieee, channel)
		} else {
			c.touchLinkScan()
		}

		c.adapter.ResetInterPan()
	})
}

// touchLinkScanPayload builds the scan request body: a random 32-bit
// transaction id plus the fixed zigbee/touchlink information fields.
func touchLinkScanPayload() []byte {
	payload := binary.LittleEndian.AppendUint32(nil, rand.Uint32())
	return append(payload, 0x04, 0x12)
}

func (c *Coordinator) touchLinkScan() {
	id := c.nextZCLTransaction()
	request := zcl.Header(zcl.FrameControlClusterSpecific|zcl.FrameControlDisableDefaultResponse, id, 0x00)
	request = append(request, touchLinkScanPayload()...)

	c.logger.Info("touchlink scan started")

	for channel := uint8(11); channel <= 26; channel++ {
		c.interPanChannel = channel

		if !c.adapter.SetInterPanChannel(channel) {
			return
		}

		if !c.adapter.ExtendedDataRequest(id, interPanBroadcast, 0xFE, 0xFFFF, interPanEndpointID, zcl.ClusterTouchLink, request, false) {
			c.logger.Warn("touchlink scan request failed", "channel", channel)
			return
		}
	}

	c.logger.Info("touchlink scan finished")
}

func (c *Coordinator) touchLinkReset(ieee [8]byte, channel uint8) {
	id := c.nextZCLTransaction()
	payload := touchLinkScanPayload()

	if !c.adapter.SetInterPanChannel(channel) {
		return
	}
	c.interPanChannel = channel

	scan := zcl.Header(zcl.FrameControlClusterSpecific|zcl.FrameControlDisableDefaultResponse, id, 0x00)
	scan = append(scan, payload...)
	if !c.adapter.ExtendedDataRequest(id, interPanBroadcast, 0xFE, 0xFFFF, interPanEndpointID, zcl.ClusterTouchLink, scan, false) {
		c.logger.Warn("touchlink scan request failed", "channel", channel)
		return
	}

	reset := zcl.Header(zcl.FrameControlClusterSpecific|zcl.FrameControlDisableDefaultResponse, id, 0x07)
	reset = append(reset, payload[:4]...) // transaction id only
	if !c.adapter.ExtendedDataRequest(id, ieee[:], 0xFE, 0xFFFF, interPanEndpointID, zcl.ClusterTouchLink, reset, false) {
		c.logger.Warn("touchlink reset request failed", "ieee", device.IEEEString(ieee))
		return
	}

	c.logger.Info("touchlink reset finished", "ieee", device.IEEEString(ieee))
}
