package videoengine

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Capability flags reported by VideoEngine.Capabilities.
type Capability int

const (
	CapabilityAudioSend Capability = 1 << iota
	CapabilityAudioRecv
	CapabilityVideoSend
	CapabilityVideoRecv
)

// Has reports whether all bits of o are set in c.
func (c Capability) Has(o Capability) bool { return c&o == o }

// EncoderConfig is the default encoder configuration. Only MaxCodec is
// applied; the engine chooses threading and CPU profile itself.
type EncoderConfig struct {
	MaxCodec   VideoCodecSpec
	NumThreads int
	CPUProfile int
}

// Option configures a VideoEngine.
type Option func(*VideoEngine)

// WithLogger sets the log entry the engine and its channels log through.
func WithLogger(entry *log.Entry) Option {
	return func(e *VideoEngine) { e.log = entry }
}

// WithConfig applies cfg's bitrate bounds, temporal layers, buffer size,
// render mode, log level and default codec.
func WithConfig(cfg *Config) Option {
	return func(e *VideoEngine) { e.cfg = cfg }
}

// WithCatalog replaces the default codec catalog.
func WithCatalog(catalog *CodecCatalog) Option {
	return func(e *VideoEngine) { e.catalog = catalog }
}

// WithVoiceEngine sets the audio engine handed to the external engine on
// Init.
func WithVoiceEngine(voice VoiceEngine) Option {
	return func(e *VideoEngine) { e.voice = voice }
}

// VideoEngine coordinates the external engine: the codec catalog, the
// capture pipeline and the channels created from it.
type VideoEngine struct {
	engine  Engine
	cfg     *Config
	catalog *CodecCatalog
	codecs  *codecConverter
	reg     *channelRegistry
	capture *CaptureController
	trace   *traceLogger
	log     *log.Entry

	mu            sync.Mutex
	initialized   bool
	voice         VoiceEngine
	timedRender   bool
	rtpBufferSize int
}

// New wraps engine. It applies the trace filter, registers the engine
// trace sink and selects the default codec. A default codec the catalog
// does not know is logged and leaves the codec list empty.
func New(engine Engine, opts ...Option) *VideoEngine {
	e := &VideoEngine{
		engine: engine,
		cfg:    DefaultConfig(),
		log:    defaultLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = NewCodecCatalog()
	}

	e.codecs = newCodecConverter(engine, e.catalog)
	e.codecs.minBitrateKbps.Store(int32(e.cfg.MinBitrateKbps))
	e.codecs.maxBitrateKbps.Store(int32(e.cfg.MaxBitrateKbps))
	e.codecs.temporalLayers.Store(int32(e.cfg.TemporalLayers))
	e.timedRender = e.cfg.TimedRender
	e.rtpBufferSize = e.cfg.RTPBufferSize

	e.reg = newChannelRegistry()
	e.capture = newCaptureController(e.codecs.defaultFormat, e.reg, e.log.WithField("module", "capture"))
	e.trace = newTraceLogger(e.log, e.cfg.Level())

	e.applyLogging()
	if err := engine.SetTraceCallback(e); err != nil {
		engineError(e.log, "SetTraceCallback", noChannel, engine.LastError(), err)
	}
	if err := e.SetDefaultCodec(e.cfg.Codec()); err != nil {
		e.log.WithError(err).Error("failed to initialize list of supported codec types")
	}
	return e
}

func (e *VideoEngine) applyLogging() error {
	filter := traceFilterForLevel(e.trace.Level())
	if err := e.engine.SetTraceFilter(filter); err != nil {
		return engineError(e.log, "SetTraceFilter", noChannel, e.engine.LastError(), err)
	}
	return nil
}

// Init initializes the external engine and attaches the voice engine,
// the performance observer and the render module. Anything already set up
// is released when a step fails.
func (e *VideoEngine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return ErrAlreadyInitialized
	}

	e.log.Info("initializing video engine")
	if err := e.initEngine(); err != nil {
		e.log.WithError(err).Error("video engine init failed, releasing")
		e.terminateLocked()
		return err
	}
	e.initialized = true
	return nil
}

func (e *VideoEngine) initEngine() error {
	if err := e.engine.Init(); err != nil {
		return engineError(e.log, "Init", noChannel, e.engine.LastError(), err)
	}

	if e.voice == nil {
		e.log.Warn("no voice engine, audio/video sync disabled")
	} else if err := e.engine.SetVoiceEngine(e.voice); err != nil {
		return engineError(e.log, "SetVoiceEngine", noChannel, e.engine.LastError(), err)
	}

	if err := e.engine.RegisterObserver(e); err != nil {
		return engineError(e.log, "RegisterObserver", noChannel, e.engine.LastError(), err)
	}

	if err := e.engine.RegisterVideoRenderModule(e.timedRender); err != nil {
		return engineError(e.log, "RegisterVideoRenderModule", noChannel, e.engine.LastError(), err)
	}
	return nil
}

// Terminate stops capture and detaches everything Init attached. Failures
// are logged; Terminate always completes.
func (e *VideoEngine) Terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminateLocked()
}

func (e *VideoEngine) terminateLocked() {
	e.log.Info("terminating video engine")
	e.initialized = false

	if _, err := e.capture.SetCapture(false); err != nil {
		e.log.WithError(err).Warn("failed to stop capture")
	}
	if err := e.engine.DeregisterVideoRenderModule(); err != nil {
		engineError(e.log, "DeregisterVideoRenderModule", noChannel, e.engine.LastError(), err)
	}
	if err := e.engine.DeregisterObserver(); err != nil {
		engineError(e.log, "DeregisterObserver", noChannel, e.engine.LastError(), err)
	}
	if err := e.engine.SetVoiceEngine(nil); err != nil {
		engineError(e.log, "SetVoiceEngine", noChannel, e.engine.LastError(), err)
	}
}

// Close destroys the remaining channels, terminates the engine if it was
// initialized and detaches the trace sink.
func (e *VideoEngine) Close() error {
	for _, ch := range e.reg.snapshot() {
		ch.Close()
	}

	e.mu.Lock()
	if e.initialized {
		e.terminateLocked()
	}
	e.mu.Unlock()

	if err := e.engine.SetTraceCallback(nil); err != nil {
		return engineError(e.log, "SetTraceCallback", noChannel, e.engine.LastError(), err)
	}
	return nil
}

// Initialized reports whether Init has succeeded and Terminate has not
// been called since.
func (e *VideoEngine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Capabilities reports what the engine can do.
func (e *VideoEngine) Capabilities() Capability {
	return CapabilityVideoRecv | CapabilityVideoSend
}

// SetOptions accepts engine-wide option flags. None are defined yet.
func (e *VideoEngine) SetOptions(options int) error {
	return nil
}

// SetVoiceEngine sets the audio engine used for lip sync. It must be
// called before Init.
func (e *VideoEngine) SetVoiceEngine(voice VoiceEngine) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return ErrAlreadyInitialized
	}
	e.voice = voice
	return nil
}

// EnableTimedRender makes the render module schedule frames by timestamp.
// It must be called before Init.
func (e *VideoEngine) EnableTimedRender() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return ErrAlreadyInitialized
	}
	e.timedRender = true
	return nil
}

// SetDefaultEncoderConfig applies config.MaxCodec as the default codec.
func (e *VideoEngine) SetDefaultEncoderConfig(config EncoderConfig) error {
	return e.SetDefaultCodec(config.MaxCodec)
}

// SetDefaultCodec rebuilds the codec list starting at codec. The list and
// the default format are unchanged when the catalog has no match.
func (e *VideoEngine) SetDefaultCodec(codec VideoCodecSpec) error {
	codecs, err := e.catalog.RebuildCodecList(codec)
	if err != nil {
		e.log.WithError(err).Warn("failed to rebuild codec list")
		return err
	}
	e.log.WithFields(log.Fields{
		"codec":  codecs[0].Name,
		"format": e.codecs.defaultFormat().String(),
	}).Info("default codec set")
	return nil
}

// DefaultCodecFormat returns the format sends are clamped to.
func (e *VideoEngine) DefaultCodecFormat() VideoFormat {
	return e.codecs.defaultFormat()
}

// Codecs returns the current codec list, most preferred first.
func (e *VideoEngine) Codecs() []VideoCodecSpec {
	return e.catalog.Codecs()
}

// FindCodec reports whether the catalog supports codec.
func (e *VideoEngine) FindCodec(codec VideoCodecSpec) bool {
	return e.catalog.FindCodec(codec)
}

// Catalog returns the engine's codec catalog.
func (e *VideoEngine) Catalog() *CodecCatalog {
	return e.catalog
}

// CreateChannel creates a channel, lip-synced to voice when it is not nil.
// Close the channel to destroy it.
func (e *VideoEngine) CreateChannel(voice VoiceChannel) (*Channel, error) {
	ch, err := newChannel(channelConfig{
		engine:        e.engine,
		codecs:        e.codecs,
		registry:      e.reg,
		voice:         voice,
		log:           e.log,
		rtpBufferSize: e.rtpBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return ch, nil
}

// Channels returns the live channels in creation order.
func (e *VideoEngine) Channels() []*Channel {
	return e.reg.snapshot()
}

// Capture returns the capture controller.
func (e *VideoEngine) Capture() *CaptureController {
	return e.capture
}

// SetCaptureDevice selects the capture device. A nil device removes the
// capturer; the device already in use is a no-op.
func (e *VideoEngine) SetCaptureDevice(device *Device) error {
	if device == nil {
		if _, err := e.capture.SetCapturer(nil); err != nil {
			return err
		}
		e.log.Info("camera set to none")
		return nil
	}

	if cur := e.capture.Capturer(); cur != nil && cur.ID() == device.ID {
		return nil
	}

	capturer, err := CreateCapturer(*device)
	if err != nil {
		e.log.WithError(err).WithField("device", device.String()).Error("failed to create camera")
		return fmt.Errorf("failed to create capturer for %s: %w", device, err)
	}
	if err := e.SetCapturer(capturer); err != nil {
		return err
	}
	e.log.WithField("device", device.String()).Info("camera set")
	return nil
}

// SetCapturer replaces the capturer, restarting capture on it when
// capture is wanted.
func (e *VideoEngine) SetCapturer(capturer VideoCapturer) error {
	res, err := e.capture.SetCapturer(capturer)
	if err != nil {
		e.log.WithError(err).Error("camera failed to restart")
		return err
	}
	if res != CaptureSuccess && res != CapturePending {
		e.log.WithField("result", res.String()).Error("camera failed to restart")
		return ErrCaptureFailed
	}
	return nil
}

// SetLocalRenderer sets the renderer that previews captured frames.
func (e *VideoEngine) SetLocalRenderer(renderer VideoRenderer) {
	e.capture.SetLocalRenderer(renderer)
}

// SetCapture starts or stops capturing.
func (e *VideoEngine) SetCapture(capture bool) (CaptureResult, error) {
	return e.capture.SetCapture(capture)
}

// CaptureState returns the capture pipeline state.
func (e *VideoEngine) CaptureState() CaptureState {
	return e.capture.State()
}

// OnCaptureResult registers fn to receive asynchronous capture start
// results.
func (e *VideoEngine) OnCaptureResult(fn func(CaptureResult)) {
	e.capture.OnCaptureResult(fn)
}

// SetLogging sets the minimum severity of re-logged engine traces and
// pushes the matching filter to the engine. A non-empty filter keeps only
// traces containing it.
func (e *VideoEngine) SetLogging(level log.Level, filter string) error {
	e.trace.setLevel(level)
	e.trace.setFilter(filter)
	return e.applyLogging()
}

// LastEngineError returns the external engine's last error code.
func (e *VideoEngine) LastEngineError() int {
	return e.engine.LastError()
}

// PerformanceAlarm implements EngineObserver.
func (e *VideoEngine) PerformanceAlarm(cpuLoad int) {
	cpuLoadGauge.Set(float64(cpuLoad))
	e.log.WithField("cpu_load", cpuLoad).Warn("engine performance alarm")
}

// Print implements TraceSink.
func (e *VideoEngine) Print(level TraceLevel, trace string) {
	e.trace.Print(level, trace)
}
