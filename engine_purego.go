//go:build (darwin || linux) && !novie

// NativeEngine binds the Engine capability set to libmedia_vie, a thin C
// wrapper around the native video engine with a primitive-only API, loaded
// at runtime with purego.
//
// Library locations checked (in order):
//   - the path given to NewNativeEngine (file or directory)
//   - MEDIA_VIE_LIB_PATH environment variable
//   - MEDIA_SDK_LIB_PATH environment variable
//   - next to the executable, then build/ and build/ffi
//   - System library paths

package videoengine

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaVIEOnce    sync.Once
	mediaVIEHandle  uintptr
	mediaVIEInitErr error
)

// libmedia_vie function pointers
var (
	mediaVIECreate          func() uint64
	mediaVIEDestroy         func(engine uint64)
	mediaVIEInit            func(engine uint64) int32
	mediaVIESetVoiceEngine  func(engine uint64, voice uintptr) int32
	mediaVIESetCallbacks    func(engine uint64, ctx uintptr, sendRTP, sendRTCP, frameSize, deliverFrame, incomingCodec, incomingRate, requestKeyFrame, outgoingRate, performanceAlarm, trace uintptr) int32
	mediaVIERegisterObs     func(engine uint64, enable int32) int32
	mediaVIELastError       func(engine uint64) int32
	mediaVIECreateChannel   func(engine uint64, outChannel uintptr) int32
	mediaVIEDeleteChannel   func(engine uint64, ch int32) int32
	mediaVIEConnectAudio    func(engine uint64, ch, voiceChannel int32) int32
	mediaVIEDisconnectAudio func(engine uint64, ch int32) int32
	mediaVIEStartSend       func(engine uint64, ch int32) int32
	mediaVIEStopSend        func(engine uint64, ch int32) int32
	mediaVIEStartReceive    func(engine uint64, ch int32) int32
	mediaVIEStopReceive     func(engine uint64, ch int32) int32

	mediaVIERegisterTransport func(engine uint64, ch, enable int32) int32
	mediaVIEReceivedRTP       func(engine uint64, ch int32, data uintptr, length int32) int32
	mediaVIEReceivedRTCP      func(engine uint64, ch int32, data uintptr, length int32) int32

	mediaVIEAllocateCapture   func(engine uint64, outCaptureID uintptr) uint64
	mediaVIEReleaseCapture    func(engine uint64, captureID int32) int32
	mediaVIEConnectCapture    func(engine uint64, captureID, ch int32) int32
	mediaVIEDisconnectCapture func(engine uint64, ch int32) int32
	mediaVIECaptureFrameI420  func(capture uint64, yPlane, uPlane, vPlane uintptr, yStride, uStride, vStride, width, height int32, captureTimeMs int64) int32

	mediaVIENumberOfCodecs  func(engine uint64) int32
	mediaVIEGetCodec        func(engine uint64, index int32, out uintptr) int32
	mediaVIESetSendCodec    func(engine uint64, ch int32, codec uintptr) int32
	mediaVIESetReceiveCodec func(engine uint64, ch int32, codec uintptr) int32
	mediaVIEDecoderObserver func(engine uint64, ch, enable int32) int32
	mediaVIEEncoderObserver func(engine uint64, ch, enable int32) int32
	mediaVIESendKeyFrame    func(engine uint64, ch int32) int32

	mediaVIESetRTCPStatus        func(engine uint64, ch, mode int32) int32
	mediaVIESetKeyFrameMethod    func(engine uint64, ch, method int32) int32
	mediaVIESetNACKStatus        func(engine uint64, ch, enable int32) int32
	mediaVIESetHybridNACKFEC     func(engine uint64, ch, enable, redPayloadType, fecPayloadType int32) int32
	mediaVIESetTMMBRStatus       func(engine uint64, ch, enable int32) int32
	mediaVIESetLocalSSRC         func(engine uint64, ch int32, ssrc uint32) int32
	mediaVIEGetLocalSSRC         func(engine uint64, ch int32, out uintptr) int32
	mediaVIEGetRemoteSSRC        func(engine uint64, ch int32, out uintptr) int32
	mediaVIESetRTCPCName         func(engine uint64, ch int32, cname uintptr) int32
	mediaVIEGetRTPStatistics     func(engine uint64, ch int32, out uintptr) int32
	mediaVIEGetReceivedRTCPStats func(engine uint64, ch int32, out uintptr) int32
	mediaVIEGetBandwidthUsage    func(engine uint64, ch int32, out uintptr) int32

	mediaVIERegisterRenderModule   func(engine uint64, timed int32) int32
	mediaVIEDeregisterRenderModule func(engine uint64) int32
	mediaVIEAddRenderer            func(engine uint64, ch, format int32) int32
	mediaVIERemoveRenderer         func(engine uint64, ch int32) int32
	mediaVIEStartRender            func(engine uint64, ch int32) int32
	mediaVIEStopRender             func(engine uint64, ch int32) int32

	mediaVIESetTraceFilter   func(engine uint64, filter uint32) int32
	mediaVIESetTraceCallback func(engine uint64, enable int32) int32
	mediaVIEGetErrorString   func() uintptr
)

// mediaVIECodec matches media_vie_codec_t in C.
// This struct must be heap-allocated for purego to work correctly on arm64
type mediaVIECodec struct {
	PayloadType    int32
	Name           [32]byte
	Width          int32
	Height         int32
	MaxFramerate   int32
	StartBitrate   int32
	MinBitrate     int32
	MaxBitrate     int32
	TemporalLayers int32
}

// mediaVIERTPStats matches media_vie_rtp_stats_t in C.
type mediaVIERTPStats struct {
	BytesSent       uint32
	PacketsSent     uint32
	BytesReceived   uint32
	PacketsReceived uint32
}

// mediaVIERTCPStats matches media_vie_rtcp_stats_t in C.
type mediaVIERTCPStats struct {
	FractionLost   uint16
	_              uint16
	CumulativeLost uint32
	ExtendedMax    uint32
	Jitter         uint32
	RTTMs          int32
}

// mediaVIEBandwidth matches media_vie_bandwidth_t in C.
type mediaVIEBandwidth struct {
	TotalBitrateSent uint32
	FECBitrateSent   uint32
	NACKBitrateSent  uint32
}

// Callback trampolines, created once per process.
var mediaVIECallbacks struct {
	sendRTP          uintptr
	sendRTCP         uintptr
	frameSize        uintptr
	deliverFrame     uintptr
	incomingCodec    uintptr
	incomingRate     uintptr
	requestKeyFrame  uintptr
	outgoingRate     uintptr
	performanceAlarm uintptr
	trace            uintptr
}

func loadMediaVIE(path string) error {
	mediaVIEOnce.Do(func() {
		mediaVIEInitErr = loadMediaVIELib(path)
	})
	return mediaVIEInitErr
}

func loadMediaVIELib(path string) error {
	var lastErr error
	for _, p := range nativeLibPaths("libmedia_vie", path, "MEDIA_VIE_LIB_PATH") {
		handle, err := purego.Dlopen(p, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mediaVIEHandle = handle
		if err := loadMediaVIESymbols(); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		registerMediaVIECallbacks()
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_vie: %w", lastErr)
	}
	return errors.New("libmedia_vie not found in any standard location")
}

func loadMediaVIESymbols() (err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libmedia_vie: %v", r)
		}
	}()

	h := mediaVIEHandle
	purego.RegisterLibFunc(&mediaVIECreate, h, "media_vie_create")
	purego.RegisterLibFunc(&mediaVIEDestroy, h, "media_vie_destroy")
	purego.RegisterLibFunc(&mediaVIEInit, h, "media_vie_init")
	purego.RegisterLibFunc(&mediaVIESetVoiceEngine, h, "media_vie_set_voice_engine")
	purego.RegisterLibFunc(&mediaVIESetCallbacks, h, "media_vie_set_callbacks")
	purego.RegisterLibFunc(&mediaVIERegisterObs, h, "media_vie_register_observer")
	purego.RegisterLibFunc(&mediaVIELastError, h, "media_vie_last_error")
	purego.RegisterLibFunc(&mediaVIECreateChannel, h, "media_vie_create_channel")
	purego.RegisterLibFunc(&mediaVIEDeleteChannel, h, "media_vie_delete_channel")
	purego.RegisterLibFunc(&mediaVIEConnectAudio, h, "media_vie_connect_audio_channel")
	purego.RegisterLibFunc(&mediaVIEDisconnectAudio, h, "media_vie_disconnect_audio_channel")
	purego.RegisterLibFunc(&mediaVIEStartSend, h, "media_vie_start_send")
	purego.RegisterLibFunc(&mediaVIEStopSend, h, "media_vie_stop_send")
	purego.RegisterLibFunc(&mediaVIEStartReceive, h, "media_vie_start_receive")
	purego.RegisterLibFunc(&mediaVIEStopReceive, h, "media_vie_stop_receive")

	// Network
	purego.RegisterLibFunc(&mediaVIERegisterTransport, h, "media_vie_register_send_transport")
	purego.RegisterLibFunc(&mediaVIEReceivedRTP, h, "media_vie_received_rtp_packet")
	purego.RegisterLibFunc(&mediaVIEReceivedRTCP, h, "media_vie_received_rtcp_packet")

	// Capture
	purego.RegisterLibFunc(&mediaVIEAllocateCapture, h, "media_vie_allocate_external_capture")
	purego.RegisterLibFunc(&mediaVIEReleaseCapture, h, "media_vie_release_capture")
	purego.RegisterLibFunc(&mediaVIEConnectCapture, h, "media_vie_connect_capture")
	purego.RegisterLibFunc(&mediaVIEDisconnectCapture, h, "media_vie_disconnect_capture")
	purego.RegisterLibFunc(&mediaVIECaptureFrameI420, h, "media_vie_capture_frame_i420")

	// Codecs
	purego.RegisterLibFunc(&mediaVIENumberOfCodecs, h, "media_vie_number_of_codecs")
	purego.RegisterLibFunc(&mediaVIEGetCodec, h, "media_vie_get_codec")
	purego.RegisterLibFunc(&mediaVIESetSendCodec, h, "media_vie_set_send_codec")
	purego.RegisterLibFunc(&mediaVIESetReceiveCodec, h, "media_vie_set_receive_codec")
	purego.RegisterLibFunc(&mediaVIEDecoderObserver, h, "media_vie_register_decoder_observer")
	purego.RegisterLibFunc(&mediaVIEEncoderObserver, h, "media_vie_register_encoder_observer")
	purego.RegisterLibFunc(&mediaVIESendKeyFrame, h, "media_vie_send_key_frame")

	// RTP/RTCP
	purego.RegisterLibFunc(&mediaVIESetRTCPStatus, h, "media_vie_set_rtcp_status")
	purego.RegisterLibFunc(&mediaVIESetKeyFrameMethod, h, "media_vie_set_key_frame_request_method")
	purego.RegisterLibFunc(&mediaVIESetNACKStatus, h, "media_vie_set_nack_status")
	purego.RegisterLibFunc(&mediaVIESetHybridNACKFEC, h, "media_vie_set_hybrid_nack_fec_status")
	purego.RegisterLibFunc(&mediaVIESetTMMBRStatus, h, "media_vie_set_tmmbr_status")
	purego.RegisterLibFunc(&mediaVIESetLocalSSRC, h, "media_vie_set_local_ssrc")
	purego.RegisterLibFunc(&mediaVIEGetLocalSSRC, h, "media_vie_get_local_ssrc")
	purego.RegisterLibFunc(&mediaVIEGetRemoteSSRC, h, "media_vie_get_remote_ssrc")
	purego.RegisterLibFunc(&mediaVIESetRTCPCName, h, "media_vie_set_rtcp_cname")
	purego.RegisterLibFunc(&mediaVIEGetRTPStatistics, h, "media_vie_get_rtp_statistics")
	purego.RegisterLibFunc(&mediaVIEGetReceivedRTCPStats, h, "media_vie_get_received_rtcp_statistics")
	purego.RegisterLibFunc(&mediaVIEGetBandwidthUsage, h, "media_vie_get_bandwidth_usage")

	// Render
	purego.RegisterLibFunc(&mediaVIERegisterRenderModule, h, "media_vie_register_render_module")
	purego.RegisterLibFunc(&mediaVIEDeregisterRenderModule, h, "media_vie_deregister_render_module")
	purego.RegisterLibFunc(&mediaVIEAddRenderer, h, "media_vie_add_renderer")
	purego.RegisterLibFunc(&mediaVIERemoveRenderer, h, "media_vie_remove_renderer")
	purego.RegisterLibFunc(&mediaVIEStartRender, h, "media_vie_start_render")
	purego.RegisterLibFunc(&mediaVIEStopRender, h, "media_vie_stop_render")

	// Trace
	purego.RegisterLibFunc(&mediaVIESetTraceFilter, h, "media_vie_set_trace_filter")
	purego.RegisterLibFunc(&mediaVIESetTraceCallback, h, "media_vie_set_trace_callback")
	purego.RegisterLibFunc(&mediaVIEGetErrorString, h, "media_vie_get_error")

	return nil
}

func registerMediaVIECallbacks() {
	cb := &mediaVIECallbacks
	cb.sendRTP = purego.NewCallback(nativeSendRTP)
	cb.sendRTCP = purego.NewCallback(nativeSendRTCP)
	cb.frameSize = purego.NewCallback(nativeFrameSizeChange)
	cb.deliverFrame = purego.NewCallback(nativeDeliverFrame)
	cb.incomingCodec = purego.NewCallback(nativeIncomingCodecChanged)
	cb.incomingRate = purego.NewCallback(nativeIncomingRate)
	cb.requestKeyFrame = purego.NewCallback(nativeRequestNewKeyFrame)
	cb.outgoingRate = purego.NewCallback(nativeOutgoingRate)
	cb.performanceAlarm = purego.NewCallback(nativePerformanceAlarm)
	cb.trace = purego.NewCallback(nativeTrace)
}

// IsNativeEngineAvailable checks if libmedia_vie can be loaded.
func IsNativeEngineAvailable(libPath string) bool {
	return loadMediaVIE(libPath) == nil
}

// nativeChannel holds the Go objects the engine calls back into for one
// channel. It is stored by value and replaced whole, so callbacks work on
// a copy taken under the read lock.
type nativeChannel struct {
	transport Transport
	renderer  ExternalRenderer
	decoder   DecoderObserver
	encoder   EncoderObserver
}

// NativeEngine is an Engine backed by libmedia_vie.
type NativeEngine struct {
	handle uint64
	ctx    uintptr

	mu       sync.RWMutex
	channels map[ChannelID]nativeChannel
	observer EngineObserver
	trace    TraceSink

	captures sync.Map // CaptureID -> *nativeCapture
	closed   atomic.Bool
}

var (
	nativeEngines  sync.Map // ctx -> *NativeEngine
	nativeEngineID atomic.Uintptr
)

// NewNativeEngine loads libmedia_vie from libPath (or the default
// locations when empty) and creates an engine instance.
func NewNativeEngine(libPath string) (*NativeEngine, error) {
	if err := loadMediaVIE(libPath); err != nil {
		return nil, err
	}

	handle := mediaVIECreate()
	if handle == 0 {
		return nil, fmt.Errorf("failed to create video engine: %s", goStringFromPtr(mediaVIEGetErrorString()))
	}

	e := &NativeEngine{
		handle:   handle,
		ctx:      nativeEngineID.Add(1),
		channels: make(map[ChannelID]nativeChannel),
	}
	nativeEngines.Store(e.ctx, e)

	cb := &mediaVIECallbacks
	rc := mediaVIESetCallbacks(handle, e.ctx,
		cb.sendRTP, cb.sendRTCP, cb.frameSize, cb.deliverFrame,
		cb.incomingCodec, cb.incomingRate, cb.requestKeyFrame,
		cb.outgoingRate, cb.performanceAlarm, cb.trace)
	if rc != 0 {
		e.Close()
		return nil, fmt.Errorf("failed to install engine callbacks: %d", rc)
	}

	return e, nil
}

// Close destroys the engine instance. The engine must be terminated first.
func (e *NativeEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	nativeEngines.Delete(e.ctx)
	mediaVIEDestroy(e.handle)
	return nil
}

func lookupNativeEngine(ctx uintptr) *NativeEngine {
	v, ok := nativeEngines.Load(ctx)
	if !ok {
		return nil
	}
	return v.(*NativeEngine)
}

// channel returns a copy of the channel's callback set.
func (e *NativeEngine) channel(ch ChannelID) (nativeChannel, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	nc, ok := e.channels[ch]
	return nc, ok
}

// updateChannel applies fn to a copy of the channel's callback set and
// stores the result.
func (e *NativeEngine) updateChannel(ch ChannelID, fn func(*nativeChannel)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	nc := e.channels[ch]
	fn(&nc)
	e.channels[ch] = nc
}

func vieResult(fn string, rc int32) error {
	if rc == 0 {
		return nil
	}
	return fmt.Errorf("%s returned %d", fn, rc)
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Init implements BaseAPI.
func (e *NativeEngine) Init() error { return vieResult("media_vie_init", mediaVIEInit(e.handle)) }

// SetVoiceEngine implements BaseAPI.
func (e *NativeEngine) SetVoiceEngine(voice VoiceEngine) error {
	var h uintptr
	if voice != nil {
		h = voice.Handle()
	}
	return vieResult("media_vie_set_voice_engine", mediaVIESetVoiceEngine(e.handle, h))
}

// RegisterObserver implements BaseAPI.
func (e *NativeEngine) RegisterObserver(observer EngineObserver) error {
	e.mu.Lock()
	e.observer = observer
	e.mu.Unlock()
	return vieResult("media_vie_register_observer", mediaVIERegisterObs(e.handle, 1))
}

// DeregisterObserver implements BaseAPI.
func (e *NativeEngine) DeregisterObserver() error {
	err := vieResult("media_vie_register_observer", mediaVIERegisterObs(e.handle, 0))
	e.mu.Lock()
	e.observer = nil
	e.mu.Unlock()
	return err
}

// CreateChannel implements BaseAPI.
func (e *NativeEngine) CreateChannel() (ChannelID, error) {
	out := new(int32)
	if err := vieResult("media_vie_create_channel", mediaVIECreateChannel(e.handle, uintptr(unsafe.Pointer(out)))); err != nil {
		return noChannel, err
	}
	return ChannelID(*out), nil
}

// DeleteChannel implements BaseAPI.
func (e *NativeEngine) DeleteChannel(ch ChannelID) error {
	err := vieResult("media_vie_delete_channel", mediaVIEDeleteChannel(e.handle, int32(ch)))
	e.mu.Lock()
	delete(e.channels, ch)
	e.mu.Unlock()
	return err
}

// ConnectAudioChannel implements BaseAPI.
func (e *NativeEngine) ConnectAudioChannel(ch ChannelID, voiceChannel int) error {
	return vieResult("media_vie_connect_audio_channel", mediaVIEConnectAudio(e.handle, int32(ch), int32(voiceChannel)))
}

// DisconnectAudioChannel implements BaseAPI.
func (e *NativeEngine) DisconnectAudioChannel(ch ChannelID) error {
	return vieResult("media_vie_disconnect_audio_channel", mediaVIEDisconnectAudio(e.handle, int32(ch)))
}

// StartSend implements BaseAPI.
func (e *NativeEngine) StartSend(ch ChannelID) error {
	return vieResult("media_vie_start_send", mediaVIEStartSend(e.handle, int32(ch)))
}

// StopSend implements BaseAPI.
func (e *NativeEngine) StopSend(ch ChannelID) error {
	return vieResult("media_vie_stop_send", mediaVIEStopSend(e.handle, int32(ch)))
}

// StartReceive implements BaseAPI.
func (e *NativeEngine) StartReceive(ch ChannelID) error {
	return vieResult("media_vie_start_receive", mediaVIEStartReceive(e.handle, int32(ch)))
}

// StopReceive implements BaseAPI.
func (e *NativeEngine) StopReceive(ch ChannelID) error {
	return vieResult("media_vie_stop_receive", mediaVIEStopReceive(e.handle, int32(ch)))
}

// LastError implements BaseAPI.
func (e *NativeEngine) LastError() int { return int(mediaVIELastError(e.handle)) }

// RegisterSendTransport implements NetworkAPI.
func (e *NativeEngine) RegisterSendTransport(ch ChannelID, transport Transport) error {
	e.updateChannel(ch, func(nc *nativeChannel) { nc.transport = transport })
	return vieResult("media_vie_register_send_transport", mediaVIERegisterTransport(e.handle, int32(ch), 1))
}

// DeregisterSendTransport implements NetworkAPI.
func (e *NativeEngine) DeregisterSendTransport(ch ChannelID) error {
	err := vieResult("media_vie_register_send_transport", mediaVIERegisterTransport(e.handle, int32(ch), 0))
	e.updateChannel(ch, func(nc *nativeChannel) { nc.transport = nil })
	return err
}

// ReceivedRTPPacket implements NetworkAPI.
func (e *NativeEngine) ReceivedRTPPacket(ch ChannelID, packet []byte) error {
	rc := mediaVIEReceivedRTP(e.handle, int32(ch), bytesPtr(packet), int32(len(packet)))
	runtime.KeepAlive(packet)
	return vieResult("media_vie_received_rtp_packet", rc)
}

// ReceivedRTCPPacket implements NetworkAPI.
func (e *NativeEngine) ReceivedRTCPPacket(ch ChannelID, packet []byte) error {
	rc := mediaVIEReceivedRTCP(e.handle, int32(ch), bytesPtr(packet), int32(len(packet)))
	runtime.KeepAlive(packet)
	return vieResult("media_vie_received_rtcp_packet", rc)
}

// nativeCapture is an external capture endpoint inside the engine.
type nativeCapture struct {
	handle uint64
}

// IncomingFrameI420 implements ExternalCapture.
func (c *nativeCapture) IncomingFrameI420(frame *VideoFrame, captureTimeMs int64) error {
	if frame.Format != PixelFormatI420 {
		return fmt.Errorf("%w: capture endpoint needs I420, got %s", ErrUnsupportedFormat, frame.Format)
	}
	if err := frame.validate(); err != nil {
		return err
	}
	rc := mediaVIECaptureFrameI420(c.handle,
		bytesPtr(frame.Data[0]), bytesPtr(frame.Data[1]), bytesPtr(frame.Data[2]),
		int32(frame.Stride[0]), int32(frame.Stride[1]), int32(frame.Stride[2]),
		int32(frame.Width), int32(frame.Height), captureTimeMs)
	runtime.KeepAlive(frame)
	return vieResult("media_vie_capture_frame_i420", rc)
}

// AllocateExternalCaptureDevice implements CaptureAPI.
func (e *NativeEngine) AllocateExternalCaptureDevice() (CaptureID, ExternalCapture, error) {
	out := new(int32)
	handle := mediaVIEAllocateCapture(e.handle, uintptr(unsafe.Pointer(out)))
	if handle == 0 {
		return 0, nil, errors.New("media_vie_allocate_external_capture failed")
	}
	capture := &nativeCapture{handle: handle}
	e.captures.Store(CaptureID(*out), capture)
	return CaptureID(*out), capture, nil
}

// ReleaseCaptureDevice implements CaptureAPI.
func (e *NativeEngine) ReleaseCaptureDevice(id CaptureID) error {
	e.captures.Delete(id)
	return vieResult("media_vie_release_capture", mediaVIEReleaseCapture(e.handle, int32(id)))
}

// ConnectCaptureDevice implements CaptureAPI.
func (e *NativeEngine) ConnectCaptureDevice(id CaptureID, ch ChannelID) error {
	return vieResult("media_vie_connect_capture", mediaVIEConnectCapture(e.handle, int32(id), int32(ch)))
}

// DisconnectCaptureDevice implements CaptureAPI.
func (e *NativeEngine) DisconnectCaptureDevice(ch ChannelID) error {
	return vieResult("media_vie_disconnect_capture", mediaVIEDisconnectCapture(e.handle, int32(ch)))
}

func codecFromNative(c *mediaVIECodec) EngineCodec {
	name := c.Name[:]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	return EngineCodec{
		PayloadType:      int(c.PayloadType),
		Name:             string(name),
		Width:            int(c.Width),
		Height:           int(c.Height),
		MaxFramerate:     int(c.MaxFramerate),
		StartBitrateKbps: int(c.StartBitrate),
		MinBitrateKbps:   int(c.MinBitrate),
		MaxBitrateKbps:   int(c.MaxBitrate),
		TemporalLayers:   int(c.TemporalLayers),
	}
}

func codecToNative(c EngineCodec) *mediaVIECodec {
	n := &mediaVIECodec{
		PayloadType:    int32(c.PayloadType),
		Width:          int32(c.Width),
		Height:         int32(c.Height),
		MaxFramerate:   int32(c.MaxFramerate),
		StartBitrate:   int32(c.StartBitrateKbps),
		MinBitrate:     int32(c.MinBitrateKbps),
		MaxBitrate:     int32(c.MaxBitrateKbps),
		TemporalLayers: int32(c.TemporalLayers),
	}
	copy(n.Name[:len(n.Name)-1], c.Name)
	return n
}

// NumberOfCodecs implements CodecAPI.
func (e *NativeEngine) NumberOfCodecs() int { return int(mediaVIENumberOfCodecs(e.handle)) }

// GetCodec implements CodecAPI.
func (e *NativeEngine) GetCodec(index int) (EngineCodec, error) {
	out := new(mediaVIECodec)
	if err := vieResult("media_vie_get_codec", mediaVIEGetCodec(e.handle, int32(index), uintptr(unsafe.Pointer(out)))); err != nil {
		return EngineCodec{}, err
	}
	return codecFromNative(out), nil
}

// SetSendCodec implements CodecAPI.
func (e *NativeEngine) SetSendCodec(ch ChannelID, codec EngineCodec) error {
	n := codecToNative(codec)
	rc := mediaVIESetSendCodec(e.handle, int32(ch), uintptr(unsafe.Pointer(n)))
	runtime.KeepAlive(n)
	return vieResult("media_vie_set_send_codec", rc)
}

// SetReceiveCodec implements CodecAPI.
func (e *NativeEngine) SetReceiveCodec(ch ChannelID, codec EngineCodec) error {
	n := codecToNative(codec)
	rc := mediaVIESetReceiveCodec(e.handle, int32(ch), uintptr(unsafe.Pointer(n)))
	runtime.KeepAlive(n)
	return vieResult("media_vie_set_receive_codec", rc)
}

// RegisterDecoderObserver implements CodecAPI.
func (e *NativeEngine) RegisterDecoderObserver(ch ChannelID, observer DecoderObserver) error {
	e.updateChannel(ch, func(nc *nativeChannel) { nc.decoder = observer })
	return vieResult("media_vie_register_decoder_observer", mediaVIEDecoderObserver(e.handle, int32(ch), 1))
}

// DeregisterDecoderObserver implements CodecAPI.
func (e *NativeEngine) DeregisterDecoderObserver(ch ChannelID) error {
	err := vieResult("media_vie_register_decoder_observer", mediaVIEDecoderObserver(e.handle, int32(ch), 0))
	e.updateChannel(ch, func(nc *nativeChannel) { nc.decoder = nil })
	return err
}

// RegisterEncoderObserver implements CodecAPI.
func (e *NativeEngine) RegisterEncoderObserver(ch ChannelID, observer EncoderObserver) error {
	e.updateChannel(ch, func(nc *nativeChannel) { nc.encoder = observer })
	return vieResult("media_vie_register_encoder_observer", mediaVIEEncoderObserver(e.handle, int32(ch), 1))
}

// DeregisterEncoderObserver implements CodecAPI.
func (e *NativeEngine) DeregisterEncoderObserver(ch ChannelID) error {
	err := vieResult("media_vie_register_encoder_observer", mediaVIEEncoderObserver(e.handle, int32(ch), 0))
	e.updateChannel(ch, func(nc *nativeChannel) { nc.encoder = nil })
	return err
}

// SendKeyFrame implements CodecAPI.
func (e *NativeEngine) SendKeyFrame(ch ChannelID) error {
	return vieResult("media_vie_send_key_frame", mediaVIESendKeyFrame(e.handle, int32(ch)))
}

// SetRTCPStatus implements RTPAPI.
func (e *NativeEngine) SetRTCPStatus(ch ChannelID, mode RTCPMode) error {
	return vieResult("media_vie_set_rtcp_status", mediaVIESetRTCPStatus(e.handle, int32(ch), int32(mode)))
}

// SetKeyFrameRequestMethod implements RTPAPI.
func (e *NativeEngine) SetKeyFrameRequestMethod(ch ChannelID, method KeyFrameRequestMethod) error {
	return vieResult("media_vie_set_key_frame_request_method", mediaVIESetKeyFrameMethod(e.handle, int32(ch), int32(method)))
}

// SetNACKStatus implements RTPAPI.
func (e *NativeEngine) SetNACKStatus(ch ChannelID, enable bool) error {
	return vieResult("media_vie_set_nack_status", mediaVIESetNACKStatus(e.handle, int32(ch), boolToInt32(enable)))
}

// SetHybridNACKFECStatus implements RTPAPI.
func (e *NativeEngine) SetHybridNACKFECStatus(ch ChannelID, enable bool, redPayloadType, fecPayloadType int) error {
	return vieResult("media_vie_set_hybrid_nack_fec_status",
		mediaVIESetHybridNACKFEC(e.handle, int32(ch), boolToInt32(enable), int32(redPayloadType), int32(fecPayloadType)))
}

// SetTMMBRStatus implements RTPAPI.
func (e *NativeEngine) SetTMMBRStatus(ch ChannelID, enable bool) error {
	return vieResult("media_vie_set_tmmbr_status", mediaVIESetTMMBRStatus(e.handle, int32(ch), boolToInt32(enable)))
}

// SetLocalSSRC implements RTPAPI.
func (e *NativeEngine) SetLocalSSRC(ch ChannelID, ssrc uint32) error {
	return vieResult("media_vie_set_local_ssrc", mediaVIESetLocalSSRC(e.handle, int32(ch), ssrc))
}

// GetLocalSSRC implements RTPAPI.
func (e *NativeEngine) GetLocalSSRC(ch ChannelID) (uint32, error) {
	out := new(uint32)
	err := vieResult("media_vie_get_local_ssrc", mediaVIEGetLocalSSRC(e.handle, int32(ch), uintptr(unsafe.Pointer(out))))
	return *out, err
}

// GetRemoteSSRC implements RTPAPI.
func (e *NativeEngine) GetRemoteSSRC(ch ChannelID) (uint32, error) {
	out := new(uint32)
	err := vieResult("media_vie_get_remote_ssrc", mediaVIEGetRemoteSSRC(e.handle, int32(ch), uintptr(unsafe.Pointer(out))))
	return *out, err
}

// SetRTCPCName implements RTPAPI.
func (e *NativeEngine) SetRTCPCName(ch ChannelID, cname string) error {
	b := cString(cname)
	rc := mediaVIESetRTCPCName(e.handle, int32(ch), bytesPtr(b))
	runtime.KeepAlive(b)
	return vieResult("media_vie_set_rtcp_cname", rc)
}

// GetRTPStatistics implements RTPAPI.
func (e *NativeEngine) GetRTPStatistics(ch ChannelID) (RTPStatistics, error) {
	out := new(mediaVIERTPStats)
	if err := vieResult("media_vie_get_rtp_statistics", mediaVIEGetRTPStatistics(e.handle, int32(ch), uintptr(unsafe.Pointer(out)))); err != nil {
		return RTPStatistics{}, err
	}
	return RTPStatistics(*out), nil
}

// GetReceivedRTCPStatistics implements RTPAPI.
func (e *NativeEngine) GetReceivedRTCPStatistics(ch ChannelID) (RTCPStatistics, error) {
	out := new(mediaVIERTCPStats)
	if err := vieResult("media_vie_get_received_rtcp_statistics", mediaVIEGetReceivedRTCPStats(e.handle, int32(ch), uintptr(unsafe.Pointer(out)))); err != nil {
		return RTCPStatistics{}, err
	}
	return RTCPStatistics{
		FractionLost:   out.FractionLost,
		CumulativeLost: out.CumulativeLost,
		ExtendedMax:    out.ExtendedMax,
		Jitter:         out.Jitter,
		RTTMs:          int(out.RTTMs),
	}, nil
}

// GetBandwidthUsage implements RTPAPI.
func (e *NativeEngine) GetBandwidthUsage(ch ChannelID) (BandwidthUsage, error) {
	out := new(mediaVIEBandwidth)
	if err := vieResult("media_vie_get_bandwidth_usage", mediaVIEGetBandwidthUsage(e.handle, int32(ch), uintptr(unsafe.Pointer(out)))); err != nil {
		return BandwidthUsage{}, err
	}
	return BandwidthUsage(*out), nil
}

// RegisterVideoRenderModule implements RenderAPI.
func (e *NativeEngine) RegisterVideoRenderModule(timed bool) error {
	return vieResult("media_vie_register_render_module", mediaVIERegisterRenderModule(e.handle, boolToInt32(timed)))
}

// DeregisterVideoRenderModule implements RenderAPI.
func (e *NativeEngine) DeregisterVideoRenderModule() error {
	return vieResult("media_vie_deregister_render_module", mediaVIEDeregisterRenderModule(e.handle))
}

// AddRenderer implements RenderAPI.
func (e *NativeEngine) AddRenderer(ch ChannelID, format PixelFormat, renderer ExternalRenderer) error {
	e.updateChannel(ch, func(nc *nativeChannel) { nc.renderer = renderer })
	return vieResult("media_vie_add_renderer", mediaVIEAddRenderer(e.handle, int32(ch), int32(format)))
}

// RemoveRenderer implements RenderAPI.
func (e *NativeEngine) RemoveRenderer(ch ChannelID) error {
	err := vieResult("media_vie_remove_renderer", mediaVIERemoveRenderer(e.handle, int32(ch)))
	e.updateChannel(ch, func(nc *nativeChannel) { nc.renderer = nil })
	return err
}

// StartRender implements RenderAPI.
func (e *NativeEngine) StartRender(ch ChannelID) error {
	return vieResult("media_vie_start_render", mediaVIEStartRender(e.handle, int32(ch)))
}

// StopRender implements RenderAPI.
func (e *NativeEngine) StopRender(ch ChannelID) error {
	return vieResult("media_vie_stop_render", mediaVIEStopRender(e.handle, int32(ch)))
}

// SetTraceFilter implements TraceAPI.
func (e *NativeEngine) SetTraceFilter(filter TraceLevel) error {
	return vieResult("media_vie_set_trace_filter", mediaVIESetTraceFilter(e.handle, uint32(filter)))
}

// SetTraceCallback implements TraceAPI.
func (e *NativeEngine) SetTraceCallback(sink TraceSink) error {
	e.mu.Lock()
	e.trace = sink
	e.mu.Unlock()
	return vieResult("media_vie_set_trace_callback", mediaVIESetTraceCallback(e.handle, boolToInt32(sink != nil)))
}

// Callbacks from libmedia_vie. Every argument arrives as a machine word;
// channel ids are sign-extended from int32. Returning -1 reports failure.

const nativeCallbackFailed = ^uintptr(0)

// nativeChannelFor resolves a callback's engine and channel. The zero
// callback set is returned when either is unknown.
func nativeChannelFor(ctx, ch uintptr) (ChannelID, nativeChannel) {
	e := lookupNativeEngine(ctx)
	if e == nil {
		return noChannel, nativeChannel{}
	}
	id := ChannelID(int32(ch))
	nc, _ := e.channel(id)
	return id, nc
}

func nativeSendRTP(ctx, ch, data, length uintptr) uintptr {
	id, nc := nativeChannelFor(ctx, ch)
	if nc.transport == nil {
		return nativeCallbackFailed
	}
	n, err := nc.transport.SendPacket(id, goBytesFromPtr(data, length))
	if err != nil {
		return nativeCallbackFailed
	}
	return uintptr(n)
}

func nativeSendRTCP(ctx, ch, data, length uintptr) uintptr {
	id, nc := nativeChannelFor(ctx, ch)
	if nc.transport == nil {
		return nativeCallbackFailed
	}
	n, err := nc.transport.SendRTCPPacket(id, goBytesFromPtr(data, length))
	if err != nil {
		return nativeCallbackFailed
	}
	return uintptr(n)
}

func nativeFrameSizeChange(ctx, ch, width, height, streams uintptr) uintptr {
	_, nc := nativeChannelFor(ctx, ch)
	if nc.renderer == nil {
		return nativeCallbackFailed
	}
	if err := nc.renderer.FrameSizeChange(int(width), int(height), int(streams)); err != nil {
		return nativeCallbackFailed
	}
	return 0
}

func nativeDeliverFrame(ctx, ch, data, length, timestamp uintptr) uintptr {
	_, nc := nativeChannelFor(ctx, ch)
	if nc.renderer == nil {
		return nativeCallbackFailed
	}
	if err := nc.renderer.DeliverFrame(goBytesFromPtr(data, length), uint32(timestamp)); err != nil {
		return nativeCallbackFailed
	}
	return 0
}

func nativeIncomingCodecChanged(ctx, ch, codec uintptr) uintptr {
	id, nc := nativeChannelFor(ctx, ch)
	if nc.decoder == nil || codec == 0 {
		return 0
	}
	nc.decoder.IncomingCodecChanged(id, codecFromNative((*mediaVIECodec)(unsafe.Pointer(codec))))
	return 0
}

func nativeIncomingRate(ctx, ch, framerate, bitrate uintptr) uintptr {
	id, nc := nativeChannelFor(ctx, ch)
	if nc.decoder != nil {
		nc.decoder.IncomingRate(id, int(framerate), int(bitrate))
	}
	return 0
}

func nativeRequestNewKeyFrame(ctx, ch uintptr) uintptr {
	id, nc := nativeChannelFor(ctx, ch)
	if nc.decoder != nil {
		nc.decoder.RequestNewKeyFrame(id)
	}
	return 0
}

func nativeOutgoingRate(ctx, ch, framerate, bitrate uintptr) uintptr {
	id, nc := nativeChannelFor(ctx, ch)
	if nc.encoder != nil {
		nc.encoder.OutgoingRate(id, int(framerate), int(bitrate))
	}
	return 0
}

func nativePerformanceAlarm(ctx, cpuLoad uintptr) uintptr {
	e := lookupNativeEngine(ctx)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	obs := e.observer
	e.mu.RUnlock()
	if obs != nil {
		obs.PerformanceAlarm(int(cpuLoad))
	}
	return 0
}

func nativeTrace(ctx, level, message, length uintptr) uintptr {
	e := lookupNativeEngine(ctx)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	sink := e.trace
	e.mu.RUnlock()
	if sink != nil {
		sink.Print(TraceLevel(level), string(goBytesFromPtr(message, length)))
	}
	return 0
}
