package videoengine

import "strconv"

// Metric is a statistic the engine may be unable to supply.
type Metric struct {
	Value int64
	Valid bool
}

// Available wraps a known value.
func Available(v int64) Metric { return Metric{Value: v, Valid: true} }

// Unavailable marks a value the engine does not report.
func Unavailable() Metric { return Metric{} }

// Or returns the value, or def when unavailable.
func (m Metric) Or(def int64) int64 {
	if !m.Valid {
		return def
	}
	return m.Value
}

func (m Metric) String() string {
	if !m.Valid {
		return "n/a"
	}
	return strconv.FormatInt(m.Value, 10)
}

// SenderInfo describes the outgoing stream of a channel.
type SenderInfo struct {
	SSRC             uint32
	CodecName        string
	BytesSent        int64
	PacketsSent      int64
	PacketsCached    Metric
	PacketsLost      int64  // reported by the peer
	FractionLost     uint16 // reported by the peer, Q8
	FIRsReceived     Metric
	PLIsReceived     Metric
	NACKsReceived    Metric
	RTTMs            int
	FrameWidth       int
	FrameHeight      int
	FramerateInput   int
	FramerateSent    int
	NominalBitrate   int
	PreferredBitrate int // kbps
}

// ReceiverInfo describes the incoming stream of a channel.
type ReceiverInfo struct {
	SSRC              uint32
	CodecName         string
	BytesReceived     int64
	PacketsReceived   int64
	PacketsLost       int64
	PacketsConcealed  Metric
	FractionLost      uint16
	FIRsSent          int64
	NACKsSent         Metric
	FrameWidth        int
	FrameHeight       int
	FramerateReceived int
	FramerateDecoded  int
	FramerateOutput   int
}

// BandwidthInfo is the channel's outgoing bitrate breakdown in bps.
type BandwidthInfo struct {
	AvailableSendBandwidth    Metric
	AvailableReceiveBandwidth Metric
	TargetEncoderBitrate      Metric
	ActualEncoderBitrate      int64
	TransmitBitrate           int64
	RetransmitBitrate         int64
	FECBitrate                int64
}

// ChannelReport is a point-in-time snapshot of a channel's statistics.
type ChannelReport struct {
	Sender    SenderInfo
	Receiver  ReceiverInfo
	Bandwidth BandwidthInfo
}

// GetStats queries the engine and builds a report. Any failed query fails
// the whole call.
func (c *Channel) GetStats() (*ChannelReport, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	rtpStats, err := c.engine.GetRTPStatistics(c.id)
	if err != nil {
		return nil, c.engineErr("GetRTPStatistics", err)
	}

	received, err := c.engine.GetReceivedRTCPStatistics(c.id)
	if err != nil {
		return nil, c.engineErr("GetReceivedRTCPStatistics", err)
	}

	// The engine has no sent-side RTCP query, so the received-side one is
	// issued again and its figures are used for the receiver record. This
	// is most likely not what was meant; keep it until the engine's API
	// confirms which direction each figure belongs to.
	sent, err := c.engine.GetReceivedRTCPStatistics(c.id)
	if err != nil {
		return nil, c.engineErr("GetReceivedRTCPStatistics", err)
	}

	localSSRC, err := c.engine.GetLocalSSRC(c.id)
	if err != nil {
		return nil, c.engineErr("GetLocalSSRC", err)
	}

	remoteSSRC, err := c.engine.GetRemoteSSRC(c.id)
	if err != nil {
		return nil, c.engineErr("GetRemoteSSRC", err)
	}

	bw, err := c.engine.GetBandwidthUsage(c.id)
	if err != nil {
		return nil, c.engineErr("GetBandwidthUsage", err)
	}

	report := &ChannelReport{}

	s := &report.Sender
	s.SSRC = localSSRC
	c.mu.Lock()
	if c.sendCodec != nil {
		s.CodecName = c.sendCodec.Name
	}
	s.PreferredBitrate = c.maxBitrate
	c.mu.Unlock()
	s.BytesSent = int64(rtpStats.BytesSent)
	s.PacketsSent = int64(rtpStats.PacketsSent)
	s.PacketsCached = Unavailable()
	s.PacketsLost = int64(received.CumulativeLost)
	s.FractionLost = received.FractionLost
	s.FIRsReceived = c.rtcpMetric(&c.rtcp.firReceived, true)
	s.PLIsReceived = c.rtcpMetric(&c.rtcp.pliReceived, true)
	s.NACKsReceived = c.rtcpMetric(&c.rtcp.nackReceived, true)
	s.RTTMs = sent.RTTMs
	s.FrameWidth, s.FrameHeight = c.local.Size()
	s.FramerateInput = c.local.FrameRate()
	s.FramerateSent = int(c.encoder.framerate.Load())
	s.NominalBitrate = int(c.encoder.bitrate.Load())

	r := &report.Receiver
	r.SSRC = remoteSSRC
	r.CodecName = c.decoder.incomingCodec().Name
	r.BytesReceived = int64(rtpStats.BytesReceived)
	r.PacketsReceived = int64(rtpStats.PacketsReceived)
	r.PacketsLost = int64(sent.CumulativeLost)
	r.PacketsConcealed = Unavailable()
	r.FractionLost = sent.FractionLost
	r.FIRsSent = c.decoder.firsRequested.Load()
	r.NACKsSent = c.rtcpMetric(&c.rtcp.nackSent, false)
	r.FrameWidth = c.renderer.Width()
	r.FrameHeight = c.renderer.Height()
	r.FramerateReceived = int(c.decoder.framerate.Load())
	fps := c.renderer.FrameRate()
	r.FramerateDecoded = fps
	r.FramerateOutput = fps

	report.Bandwidth = BandwidthInfo{
		AvailableSendBandwidth:    Unavailable(),
		AvailableReceiveBandwidth: Unavailable(),
		TargetEncoderBitrate:      Unavailable(),
		ActualEncoderBitrate:      int64(bw.TotalBitrateSent) - int64(bw.NACKBitrateSent) - int64(bw.FECBitrateSent),
		TransmitBitrate:           int64(bw.TotalBitrateSent),
		RetransmitBitrate:         int64(bw.NACKBitrateSent),
		FECBitrate:                int64(bw.FECBitrateSent),
	}

	return report, nil
}

// rtcpMetric reports a transport-side RTCP count, unavailable until RTCP
// has been seen in that direction.
func (c *Channel) rtcpMetric(counter interface{ Load() int64 }, inbound bool) Metric {
	seen := c.rtcpOutSeen.Load()
	if inbound {
		seen = c.rtcpInSeen.Load()
	}
	if !seen {
		return Unavailable()
	}
	return Available(counter.Load())
}
