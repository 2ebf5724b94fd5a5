package videoengine

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetric(t *testing.T) {
	assert.Equal(t, int64(7), Available(7).Or(-1))
	assert.Equal(t, int64(-1), Unavailable().Or(-1))
	assert.Equal(t, "7", Available(7).String())
	assert.Equal(t, "n/a", Unavailable().String())
	assert.True(t, Available(0).Valid)
}

func TestChannel_GetStats(t *testing.T) {
	eng := newFakeEngine()
	eng.rtpStats = RTPStatistics{BytesSent: 1000, PacketsSent: 10, BytesReceived: 2000, PacketsReceived: 20}
	eng.rtcpStats = RTCPStatistics{FractionLost: 12, CumulativeLost: 3, RTTMs: 40}
	eng.bandwidth = BandwidthUsage{TotalBitrateSent: 500_000, FECBitrateSent: 20_000, NACKBitrateSent: 30_000}
	eng.localSSRC = 0xCAFE

	ch := newTestChannel(t, eng, newChannelRegistry())
	require.NoError(t, ch.SetSendCodecs([]VideoCodecSpec{DefaultVideoCodec()}))
	require.NoError(t, ch.SendFrame(NewI420Frame(640, 400)))
	ch.encoder.OutgoingRate(ch.ID(), 25, 800)
	ch.decoder.IncomingRate(ch.ID(), 24, 700)
	ch.decoder.IncomingCodecChanged(ch.ID(), EngineCodec{Name: "VP8"})
	ch.decoder.RequestNewKeyFrame(ch.ID())
	ch.decoder.RequestNewKeyFrame(ch.ID())
	eng.resetCalls()

	report, err := ch.GetStats()
	require.NoError(t, err)

	assert.Equal(t, 2, eng.count("GetReceivedRTCPStatistics"))

	s := report.Sender
	assert.Equal(t, uint32(0xCAFE), s.SSRC)
	assert.Equal(t, "VP8", s.CodecName)
	assert.Equal(t, int64(1000), s.BytesSent)
	assert.Equal(t, int64(10), s.PacketsSent)
	assert.False(t, s.PacketsCached.Valid)
	assert.Equal(t, int64(3), s.PacketsLost)
	assert.Equal(t, uint16(12), s.FractionLost)
	assert.Equal(t, 40, s.RTTMs)
	assert.Equal(t, 640, s.FrameWidth)
	assert.Equal(t, 400, s.FrameHeight)
	assert.Equal(t, 25, s.FramerateSent)
	assert.Equal(t, 800, s.NominalBitrate)
	assert.Equal(t, MaxVideoBitrateKbps, s.PreferredBitrate)
	assert.False(t, s.FIRsReceived.Valid)
	assert.False(t, s.PLIsReceived.Valid)

	r := report.Receiver
	assert.Equal(t, uint32(0xBEEF), r.SSRC)
	assert.Equal(t, "VP8", r.CodecName)
	assert.Equal(t, int64(2000), r.BytesReceived)
	assert.Equal(t, int64(20), r.PacketsReceived)
	assert.Equal(t, int64(3), r.PacketsLost)
	assert.Equal(t, int64(2), r.FIRsSent)
	assert.Equal(t, 24, r.FramerateReceived)
	assert.False(t, r.PacketsConcealed.Valid)
	assert.False(t, r.NACKsSent.Valid)

	bw := report.Bandwidth
	assert.Equal(t, int64(450_000), bw.ActualEncoderBitrate)
	assert.Equal(t, int64(500_000), bw.TransmitBitrate)
	assert.Equal(t, int64(30_000), bw.RetransmitBitrate)
	assert.Equal(t, int64(20_000), bw.FECBitrate)
	assert.False(t, bw.AvailableSendBandwidth.Valid)
	assert.False(t, bw.TargetEncoderBitrate.Valid)
}

func TestChannel_GetStatsFeedbackCounts(t *testing.T) {
	eng := newFakeEngine()
	ch := newTestChannel(t, eng, newChannelRegistry())

	pkt, err := rtcp.Marshal([]rtcp.Packet{
		&rtcp.PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2},
		&rtcp.TransportLayerNack{SenderSSRC: 1, MediaSSRC: 2, Nacks: []rtcp.NackPair{{PacketID: 10}}},
	})
	require.NoError(t, err)
	require.NoError(t, ch.OnRTCPReceived(pkt))

	report, err := ch.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Available(1), report.Sender.PLIsReceived)
	assert.Equal(t, Available(1), report.Sender.NACKsReceived)
	assert.Equal(t, Available(0), report.Sender.FIRsReceived)
	assert.False(t, report.Receiver.NACKsSent.Valid)
}

func TestChannel_GetStatsFailsOnAnyQuery(t *testing.T) {
	for _, op := range []string{
		"GetRTPStatistics",
		"GetReceivedRTCPStatistics",
		"GetLocalSSRC",
		"GetRemoteSSRC",
		"GetBandwidthUsage",
	} {
		t.Run(op, func(t *testing.T) {
			eng := newFakeEngine()
			ch := newTestChannel(t, eng, newChannelRegistry())
			eng.failOn(op)

			report, err := ch.GetStats()
			assert.Nil(t, report)
			assert.ErrorIs(t, err, ErrEngineCall)
		})
	}
}
