package videoengine

import (
	"fmt"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// NetworkInterface carries a channel's packets to and from the peer.
type NetworkInterface interface {
	SendPacket(packet []byte) error
	SendRTCP(packet []byte) error
}

// SocketBufferSizer is implemented by network interfaces backed by a socket
// whose buffers can be resized, such as *net.UDPConn.
type SocketBufferSizer interface {
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
}

type networkBinding struct {
	iface NetworkInterface
}

// SetNetworkInterface sets where outgoing packets go. nil detaches the
// current interface. Socket-backed interfaces get enlarged RTP buffers.
func (c *Channel) SetNetworkInterface(iface NetworkInterface) {
	if iface == nil {
		c.network.Store(nil)
		return
	}
	c.network.Store(&networkBinding{iface: iface})

	sizer, ok := iface.(SocketBufferSizer)
	if !ok {
		return
	}
	if err := sizer.SetReadBuffer(c.rtpBufferSize); err != nil {
		c.log.WithError(err).Warn("failed to set RTP receive buffer")
	}
	if err := sizer.SetWriteBuffer(c.rtpBufferSize); err != nil {
		c.log.WithError(err).Warn("failed to set RTP send buffer")
	}
}

// SendPacket implements Transport.
func (c *Channel) SendPacket(ch ChannelID, packet []byte) (int, error) {
	b := c.network.Load()
	if b == nil {
		return 0, ErrNoNetworkInterface
	}
	if err := b.iface.SendPacket(packet); err != nil {
		return 0, fmt.Errorf("failed to send RTP packet: %w", err)
	}
	return len(packet), nil
}

// SendRTCPPacket implements Transport.
func (c *Channel) SendRTCPPacket(ch ChannelID, packet []byte) (int, error) {
	b := c.network.Load()
	if b == nil {
		return 0, ErrNoNetworkInterface
	}
	c.countRTCP(packet, false)
	if err := b.iface.SendRTCP(packet); err != nil {
		return 0, fmt.Errorf("failed to send RTCP packet: %w", err)
	}
	return len(packet), nil
}

// OnPacketReceived delivers an inbound RTP packet to the engine. Packets
// without a valid RTP header are dropped.
func (c *Channel) OnPacketReceived(packet []byte) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	var h rtp.Header
	if _, err := h.Unmarshal(packet); err != nil {
		rtpRejected.Inc()
		return fmt.Errorf("failed to parse RTP header: %w", err)
	}
	if err := c.engine.ReceivedRTPPacket(c.id, packet); err != nil {
		return c.engineErr("ReceivedRTPPacket", err)
	}
	return nil
}

// OnRTCPReceived delivers an inbound RTCP packet to the engine.
func (c *Channel) OnRTCPReceived(packet []byte) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.countRTCP(packet, true)
	if err := c.engine.ReceivedRTCPPacket(c.id, packet); err != nil {
		return c.engineErr("ReceivedRTCPPacket", err)
	}
	return nil
}

// countRTCP tallies key frame requests and NACKs in a compound packet.
// Unparseable packets are still passed on; the engine has the final say.
func (c *Channel) countRTCP(packet []byte, inbound bool) {
	pkts, err := rtcp.Unmarshal(packet)
	if err != nil {
		c.log.WithError(err).Debug("unparseable RTCP packet")
		return
	}

	direction := "sent"
	pli, fir, nack := &c.rtcp.pliSent, &c.rtcp.firSent, &c.rtcp.nackSent
	if inbound {
		direction = "received"
		pli, fir, nack = &c.rtcp.pliReceived, &c.rtcp.firReceived, &c.rtcp.nackReceived
		c.rtcpInSeen.Store(true)
	} else {
		c.rtcpOutSeen.Store(true)
	}

	for _, p := range pkts {
		switch p.(type) {
		case *rtcp.PictureLossIndication:
			pli.Add(1)
			rtcpFeedback.WithLabelValues(direction, "pli").Inc()
		case *rtcp.FullIntraRequest:
			fir.Add(1)
			rtcpFeedback.WithLabelValues(direction, "fir").Inc()
		case *rtcp.TransportLayerNack:
			nack.Add(1)
			rtcpFeedback.WithLabelValues(direction, "nack").Inc()
		}
	}
}
