package videoengine

import "fmt"

// ChannelID is the external engine's handle for a logical video channel.
type ChannelID int

// CaptureID is the external engine's handle for a capture endpoint.
type CaptureID int

// noChannel marks engine calls that are not channel scoped.
const noChannel ChannelID = -1

// RTCPMode selects how RTCP is sent. Compound follows RFC 4585, NonCompound
// RFC 5506.
type RTCPMode int

const (
	RTCPModeOff RTCPMode = iota
	RTCPModeCompound
	RTCPModeNonCompound
)

func (m RTCPMode) String() string {
	switch m {
	case RTCPModeOff:
		return "Off"
	case RTCPModeCompound:
		return "Compound"
	case RTCPModeNonCompound:
		return "NonCompound"
	default:
		return "Unknown"
	}
}

// KeyFrameRequestMethod selects how the receiver asks for key frames.
type KeyFrameRequestMethod int

const (
	KeyFrameRequestNone KeyFrameRequestMethod = iota
	KeyFrameRequestPLI
	KeyFrameRequestFIR
)

func (m KeyFrameRequestMethod) String() string {
	switch m {
	case KeyFrameRequestNone:
		return "None"
	case KeyFrameRequestPLI:
		return "PLI"
	case KeyFrameRequestFIR:
		return "FIR"
	default:
		return "Unknown"
	}
}

// EngineCodec is the engine-side codec representation.
type EngineCodec struct {
	PayloadType      int
	Name             string
	Width            int
	Height           int
	MaxFramerate     int
	StartBitrateKbps int
	MinBitrateKbps   int
	MaxBitrateKbps   int
	TemporalLayers   int // VP8 only
}

// IsVP8 reports whether the codec belongs to the VP8 family.
func (c EngineCodec) IsVP8() bool {
	return c.Name == CodecNameVP8
}

func (c EngineCodec) String() string {
	return fmt.Sprintf("%s/%d %dx%dx%d [%d..%d kbps]", c.Name, c.PayloadType,
		c.Width, c.Height, c.MaxFramerate, c.MinBitrateKbps, c.MaxBitrateKbps)
}

// RTPStatistics are the engine's RTP byte and packet counters.
type RTPStatistics struct {
	BytesSent       uint32
	PacketsSent     uint32
	BytesReceived   uint32
	PacketsReceived uint32
}

// RTCPStatistics are loss, jitter and round trip figures from RTCP reports.
type RTCPStatistics struct {
	FractionLost   uint16
	CumulativeLost uint32
	ExtendedMax    uint32
	Jitter         uint32
	RTTMs          int
}

// BandwidthUsage is the engine's outgoing bitrate breakdown in bps.
type BandwidthUsage struct {
	TotalBitrateSent uint32
	FECBitrateSent   uint32
	NACKBitrateSent  uint32
}

// VoiceEngine is an audio engine the video engine can synchronize with.
type VoiceEngine interface {
	// Handle returns the native handle passed to the video engine.
	Handle() uintptr
}

// VoiceChannel is an audio channel a video channel can be lip-synced to.
type VoiceChannel interface {
	VoiceChannelID() int
}

// BaseAPI covers engine lifecycle and channel management.
type BaseAPI interface {
	Init() error
	SetVoiceEngine(voice VoiceEngine) error
	RegisterObserver(observer EngineObserver) error
	DeregisterObserver() error
	CreateChannel() (ChannelID, error)
	DeleteChannel(ch ChannelID) error
	ConnectAudioChannel(ch ChannelID, voiceChannel int) error
	DisconnectAudioChannel(ch ChannelID) error
	StartSend(ch ChannelID) error
	StopSend(ch ChannelID) error
	StartReceive(ch ChannelID) error
	StopReceive(ch ChannelID) error
	LastError() int
}

// NetworkAPI routes packets between the engine and the application.
type NetworkAPI interface {
	RegisterSendTransport(ch ChannelID, transport Transport) error
	DeregisterSendTransport(ch ChannelID) error
	ReceivedRTPPacket(ch ChannelID, packet []byte) error
	ReceivedRTCPPacket(ch ChannelID, packet []byte) error
}

// CaptureAPI manages externally fed capture endpoints.
type CaptureAPI interface {
	AllocateExternalCaptureDevice() (CaptureID, ExternalCapture, error)
	ReleaseCaptureDevice(id CaptureID) error
	ConnectCaptureDevice(id CaptureID, ch ChannelID) error
	DisconnectCaptureDevice(ch ChannelID) error
}

// ExternalCapture ingests frames into a capture endpoint.
type ExternalCapture interface {
	IncomingFrameI420(frame *VideoFrame, captureTimeMs int64) error
}

// CodecAPI covers codec enumeration and configuration.
type CodecAPI interface {
	NumberOfCodecs() int
	GetCodec(index int) (EngineCodec, error)
	SetSendCodec(ch ChannelID, codec EngineCodec) error
	SetReceiveCodec(ch ChannelID, codec EngineCodec) error
	RegisterDecoderObserver(ch ChannelID, observer DecoderObserver) error
	DeregisterDecoderObserver(ch ChannelID) error
	RegisterEncoderObserver(ch ChannelID, observer EncoderObserver) error
	DeregisterEncoderObserver(ch ChannelID) error
	SendKeyFrame(ch ChannelID) error
}

// RTPAPI covers RTP/RTCP configuration and statistics.
type RTPAPI interface {
	SetRTCPStatus(ch ChannelID, mode RTCPMode) error
	SetKeyFrameRequestMethod(ch ChannelID, method KeyFrameRequestMethod) error
	SetNACKStatus(ch ChannelID, enable bool) error
	SetHybridNACKFECStatus(ch ChannelID, enable bool, redPayloadType, fecPayloadType int) error
	SetTMMBRStatus(ch ChannelID, enable bool) error
	SetLocalSSRC(ch ChannelID, ssrc uint32) error
	GetLocalSSRC(ch ChannelID) (uint32, error)
	GetRemoteSSRC(ch ChannelID) (uint32, error)
	SetRTCPCName(ch ChannelID, cname string) error
	GetRTPStatistics(ch ChannelID) (RTPStatistics, error)
	GetReceivedRTCPStatistics(ch ChannelID) (RTCPStatistics, error)
	GetBandwidthUsage(ch ChannelID) (BandwidthUsage, error)
}

// RenderAPI covers delivery of decoded frames.
type RenderAPI interface {
	RegisterVideoRenderModule(timed bool) error
	DeregisterVideoRenderModule() error
	AddRenderer(ch ChannelID, format PixelFormat, renderer ExternalRenderer) error
	RemoveRenderer(ch ChannelID) error
	StartRender(ch ChannelID) error
	StopRender(ch ChannelID) error
}

// TraceAPI controls the engine's trace output.
type TraceAPI interface {
	SetTraceFilter(filter TraceLevel) error
	SetTraceCallback(sink TraceSink) error
}

// Engine is the full capability set of the external video engine.
type Engine interface {
	BaseAPI
	NetworkAPI
	CaptureAPI
	CodecAPI
	RTPAPI
	RenderAPI
	TraceAPI
}

// Interfaces the engine calls back into. Each is implemented by a small
// adapter owned by a channel or by the facade.

// Transport sends packets produced by the engine for a channel.
type Transport interface {
	SendPacket(ch ChannelID, packet []byte) (int, error)
	SendRTCPPacket(ch ChannelID, packet []byte) (int, error)
}

// ExternalRenderer receives decoded frames for a channel.
type ExternalRenderer interface {
	FrameSizeChange(width, height, numberOfStreams int) error
	DeliverFrame(buffer []byte, timestamp uint32) error
}

// DecoderObserver receives incoming stream telemetry.
type DecoderObserver interface {
	IncomingCodecChanged(ch ChannelID, codec EngineCodec)
	IncomingRate(ch ChannelID, framerate, bitrate int)
	RequestNewKeyFrame(ch ChannelID)
}

// EncoderObserver receives outgoing stream telemetry.
type EncoderObserver interface {
	OutgoingRate(ch ChannelID, framerate, bitrate int)
}

// EngineObserver receives engine-wide notifications.
type EngineObserver interface {
	PerformanceAlarm(cpuLoad int)
}

// TraceSink receives raw engine trace lines.
type TraceSink interface {
	Print(level TraceLevel, message string)
}
