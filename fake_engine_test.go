package videoengine

import (
	"errors"
	"sync"
)

var errFake = errors.New("fake engine failure")

// fakeCapture records frames pushed into a capture endpoint.
type fakeCapture struct {
	mu     sync.Mutex
	frames []*VideoFrame
	times  []int64
	err    error
}

func (f *fakeCapture) IncomingFrameI420(frame *VideoFrame, captureTimeMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame.Clone())
	f.times = append(f.times, captureTimeMs)
	return nil
}

func (f *fakeCapture) lastTime() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.times) == 0 {
		return 0
	}
	return f.times[len(f.times)-1]
}

func (f *fakeCapture) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeCapture) last() *VideoFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	return f.frames[len(f.frames)-1]
}

// fakeEngine is an in-memory Engine that records every call by name and
// fails the ones listed in fail.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	hooks map[string]func()

	codecs    []EngineCodec
	nextID    ChannelID
	nextCap   CaptureID
	captures  map[CaptureID]*fakeCapture
	sendCodec map[ChannelID]EngineCodec
	recvCodec map[ChannelID][]EngineCodec
	rtp       []byte
	rtcp      []byte

	voice     VoiceEngine
	observer  EngineObserver
	traceSink TraceSink
	filter    TraceLevel

	rtpStats  RTPStatistics
	rtcpStats RTCPStatistics
	bandwidth BandwidthUsage
	localSSRC uint32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		fail:  make(map[string]error),
		hooks: make(map[string]func()),
		codecs: []EngineCodec{
			{PayloadType: 100, Name: CodecNameVP8, Width: 352, Height: 288, MaxFramerate: 30},
			{PayloadType: 101, Name: CodecNameRED},
			{PayloadType: 102, Name: CodecNameULPFEC},
			{PayloadType: 96, Name: "H264", Width: 352, Height: 288, MaxFramerate: 30},
		},
		captures:  make(map[CaptureID]*fakeCapture),
		sendCodec: make(map[ChannelID]EngineCodec),
		recvCodec: make(map[ChannelID][]EngineCodec),
	}
}

func (f *fakeEngine) failOn(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = errFake
}

// onCall runs fn on every later call of op, outside the fake's lock.
func (f *fakeEngine) onCall(op string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[op] = fn
}

func (f *fakeEngine) call(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	err := f.fail[op]
	hook := f.hooks[op]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeEngine) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) count(op string) int {
	n := 0
	for _, c := range f.recorded() {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeEngine) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeEngine) capture(id CaptureID) *fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures[id]
}

func (f *fakeEngine) Init() error { return f.call("Init") }

func (f *fakeEngine) SetVoiceEngine(voice VoiceEngine) error {
	if err := f.call("SetVoiceEngine"); err != nil {
		return err
	}
	f.mu.Lock()
	f.voice = voice
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) RegisterObserver(observer EngineObserver) error {
	if err := f.call("RegisterObserver"); err != nil {
		return err
	}
	f.mu.Lock()
	f.observer = observer
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) DeregisterObserver() error { return f.call("DeregisterObserver") }

func (f *fakeEngine) CreateChannel() (ChannelID, error) {
	if err := f.call("CreateChannel"); err != nil {
		return noChannel, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *fakeEngine) DeleteChannel(ch ChannelID) error { return f.call("DeleteChannel") }

func (f *fakeEngine) ConnectAudioChannel(ch ChannelID, voiceChannel int) error {
	return f.call("ConnectAudioChannel")
}

func (f *fakeEngine) DisconnectAudioChannel(ch ChannelID) error {
	return f.call("DisconnectAudioChannel")
}

func (f *fakeEngine) StartSend(ch ChannelID) error    { return f.call("StartSend") }
func (f *fakeEngine) StopSend(ch ChannelID) error     { return f.call("StopSend") }
func (f *fakeEngine) StartReceive(ch ChannelID) error { return f.call("StartReceive") }
func (f *fakeEngine) StopReceive(ch ChannelID) error  { return f.call("StopReceive") }
func (f *fakeEngine) LastError() int                  { return 0 }

func (f *fakeEngine) RegisterSendTransport(ch ChannelID, transport Transport) error {
	return f.call("RegisterSendTransport")
}

func (f *fakeEngine) DeregisterSendTransport(ch ChannelID) error {
	return f.call("DeregisterSendTransport")
}

func (f *fakeEngine) ReceivedRTPPacket(ch ChannelID, packet []byte) error {
	if err := f.call("ReceivedRTPPacket"); err != nil {
		return err
	}
	f.mu.Lock()
	f.rtp = append([]byte(nil), packet...)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) ReceivedRTCPPacket(ch ChannelID, packet []byte) error {
	if err := f.call("ReceivedRTCPPacket"); err != nil {
		return err
	}
	f.mu.Lock()
	f.rtcp = append([]byte(nil), packet...)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) AllocateExternalCaptureDevice() (CaptureID, ExternalCapture, error) {
	if err := f.call("AllocateExternalCaptureDevice"); err != nil {
		return 0, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextCap
	f.nextCap++
	c := &fakeCapture{}
	f.captures[id] = c
	return id, c, nil
}

func (f *fakeEngine) ReleaseCaptureDevice(id CaptureID) error {
	return f.call("ReleaseCaptureDevice")
}

func (f *fakeEngine) ConnectCaptureDevice(id CaptureID, ch ChannelID) error {
	return f.call("ConnectCaptureDevice")
}

func (f *fakeEngine) DisconnectCaptureDevice(ch ChannelID) error {
	return f.call("DisconnectCaptureDevice")
}

func (f *fakeEngine) NumberOfCodecs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.codecs)
}

func (f *fakeEngine) GetCodec(index int) (EngineCodec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.codecs) {
		return EngineCodec{}, errFake
	}
	return f.codecs[index], nil
}

func (f *fakeEngine) SetSendCodec(ch ChannelID, codec EngineCodec) error {
	if err := f.call("SetSendCodec"); err != nil {
		return err
	}
	f.mu.Lock()
	f.sendCodec[ch] = codec
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SetReceiveCodec(ch ChannelID, codec EngineCodec) error {
	if err := f.call("SetReceiveCodec"); err != nil {
		return err
	}
	f.mu.Lock()
	f.recvCodec[ch] = append(f.recvCodec[ch], codec)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) RegisterDecoderObserver(ch ChannelID, observer DecoderObserver) error {
	return f.call("RegisterDecoderObserver")
}

func (f *fakeEngine) DeregisterDecoderObserver(ch ChannelID) error {
	return f.call("DeregisterDecoderObserver")
}

func (f *fakeEngine) RegisterEncoderObserver(ch ChannelID, observer EncoderObserver) error {
	return f.call("RegisterEncoderObserver")
}

func (f *fakeEngine) DeregisterEncoderObserver(ch ChannelID) error {
	return f.call("DeregisterEncoderObserver")
}

func (f *fakeEngine) SendKeyFrame(ch ChannelID) error { return f.call("SendKeyFrame") }

func (f *fakeEngine) SetRTCPStatus(ch ChannelID, mode RTCPMode) error {
	return f.call("SetRTCPStatus")
}

func (f *fakeEngine) SetKeyFrameRequestMethod(ch ChannelID, method KeyFrameRequestMethod) error {
	return f.call("SetKeyFrameRequestMethod")
}

func (f *fakeEngine) SetNACKStatus(ch ChannelID, enable bool) error {
	return f.call("SetNACKStatus")
}

func (f *fakeEngine) SetHybridNACKFECStatus(ch ChannelID, enable bool, redPayloadType, fecPayloadType int) error {
	return f.call("SetHybridNACKFECStatus")
}

func (f *fakeEngine) SetTMMBRStatus(ch ChannelID, enable bool) error {
	return f.call("SetTMMBRStatus")
}

func (f *fakeEngine) SetLocalSSRC(ch ChannelID, ssrc uint32) error {
	if err := f.call("SetLocalSSRC"); err != nil {
		return err
	}
	f.mu.Lock()
	f.localSSRC = ssrc
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) GetLocalSSRC(ch ChannelID) (uint32, error) {
	if err := f.call("GetLocalSSRC"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localSSRC, nil
}

func (f *fakeEngine) GetRemoteSSRC(ch ChannelID) (uint32, error) {
	if err := f.call("GetRemoteSSRC"); err != nil {
		return 0, err
	}
	return 0xBEEF, nil
}

func (f *fakeEngine) SetRTCPCName(ch ChannelID, cname string) error {
	return f.call("SetRTCPCName")
}

func (f *fakeEngine) GetRTPStatistics(ch ChannelID) (RTPStatistics, error) {
	if err := f.call("GetRTPStatistics"); err != nil {
		return RTPStatistics{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rtpStats, nil
}

func (f *fakeEngine) GetReceivedRTCPStatistics(ch ChannelID) (RTCPStatistics, error) {
	if err := f.call("GetReceivedRTCPStatistics"); err != nil {
		return RTCPStatistics{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rtcpStats, nil
}

func (f *fakeEngine) GetBandwidthUsage(ch ChannelID) (BandwidthUsage, error) {
	if err := f.call("GetBandwidthUsage"); err != nil {
		return BandwidthUsage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bandwidth, nil
}

func (f *fakeEngine) RegisterVideoRenderModule(timed bool) error {
	return f.call("RegisterVideoRenderModule")
}

func (f *fakeEngine) DeregisterVideoRenderModule() error {
	return f.call("DeregisterVideoRenderModule")
}

func (f *fakeEngine) AddRenderer(ch ChannelID, format PixelFormat, renderer ExternalRenderer) error {
	return f.call("AddRenderer")
}

func (f *fakeEngine) RemoveRenderer(ch ChannelID) error { return f.call("RemoveRenderer") }
func (f *fakeEngine) StartRender(ch ChannelID) error    { return f.call("StartRender") }
func (f *fakeEngine) StopRender(ch ChannelID) error     { return f.call("StopRender") }

func (f *fakeEngine) SetTraceFilter(filter TraceLevel) error {
	if err := f.call("SetTraceFilter"); err != nil {
		return err
	}
	f.mu.Lock()
	f.filter = filter
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SetTraceCallback(sink TraceSink) error {
	if err := f.call("SetTraceCallback"); err != nil {
		return err
	}
	f.mu.Lock()
	f.traceSink = sink
	f.mu.Unlock()
	return nil
}

var _ Engine = (*fakeEngine)(nil)

// fakeCapturer is a VideoCapturer whose Start result is scripted.
type fakeCapturer struct {
	*BaseCapturer
	mu      sync.Mutex
	result  CaptureResult
	err     error
	starts  []VideoFormat
	stopped int
}

func newFakeCapturer(id string, formats ...VideoFormat) *fakeCapturer {
	return &fakeCapturer{BaseCapturer: NewBaseCapturer(id, formats)}
}

func (c *fakeCapturer) Start(format VideoFormat) (CaptureResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, format)
	if c.err != nil {
		return CaptureFailure, c.err
	}
	switch c.result {
	case CaptureSuccess:
		c.SetRunning(true)
	case CapturePending:
		c.SetStarting()
	}
	return c.result, nil
}

func (c *fakeCapturer) Stop() error {
	c.mu.Lock()
	c.stopped++
	c.mu.Unlock()
	c.SetRunning(false)
	return nil
}

func (c *fakeCapturer) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.starts)
}

// recordingRenderer records SetSize calls and frame sizes.
type recordingRenderer struct {
	mu     sync.Mutex
	sizes  [][2]int
	frames int
	last   [2]int
}

func (r *recordingRenderer) SetSize(width, height, reserved int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, [2]int{width, height})
	return nil
}

func (r *recordingRenderer) RenderFrame(frame *VideoFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.last = [2]int{frame.Width, frame.Height}
	return nil
}

type fakeVoiceChannel int

func (v fakeVoiceChannel) VoiceChannelID() int { return int(v) }

type fakeVoiceEngine struct{}

func (fakeVoiceEngine) Handle() uintptr { return 1 }
