package videoengine

import (
	"sync"
	"sync/atomic"
)

// decoderTelemetry records incoming stream rates reported by the engine.
// The stats path polls it.
type decoderTelemetry struct {
	ch            ChannelID
	framerate     atomic.Int64
	bitrate       atomic.Int64
	firsRequested atomic.Int64

	mu    sync.Mutex
	codec EngineCodec
}

func newDecoderTelemetry(ch ChannelID) *decoderTelemetry {
	return &decoderTelemetry{ch: ch}
}

func (d *decoderTelemetry) IncomingCodecChanged(ch ChannelID, codec EngineCodec) {
	d.mu.Lock()
	d.codec = codec
	d.mu.Unlock()
}

func (d *decoderTelemetry) IncomingRate(ch ChannelID, framerate, bitrate int) {
	d.framerate.Store(int64(framerate))
	d.bitrate.Store(int64(bitrate))
}

func (d *decoderTelemetry) RequestNewKeyFrame(ch ChannelID) {
	d.firsRequested.Add(1)
}

func (d *decoderTelemetry) incomingCodec() EngineCodec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codec
}

// encoderTelemetry records outgoing stream rates reported by the engine.
type encoderTelemetry struct {
	ch        ChannelID
	framerate atomic.Int64
	bitrate   atomic.Int64
}

func newEncoderTelemetry(ch ChannelID) *encoderTelemetry {
	return &encoderTelemetry{ch: ch}
}

func (e *encoderTelemetry) OutgoingRate(ch ChannelID, framerate, bitrate int) {
	e.framerate.Store(int64(framerate))
	e.bitrate.Store(int64(bitrate))
}

// LocalStreamInfo tracks the frames a channel hands to its capture endpoint.
type LocalStreamInfo struct {
	mu     sync.Mutex
	width  int
	height int
	rate   *RateTracker
}

func newLocalStreamInfo() *LocalStreamInfo {
	return &LocalStreamInfo{rate: NewRateTracker()}
}

// UpdateFrame records one frame of the given size.
func (l *LocalStreamInfo) UpdateFrame(width, height int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.width = width
	l.height = height
	l.rate.Update(1)
}

// Size returns the size of the last frame.
func (l *LocalStreamInfo) Size() (width, height int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.width, l.height
}

// FrameRate returns frames per second.
func (l *LocalStreamInfo) FrameRate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate.Rate()
}

// Frames returns the number of frames recorded.
func (l *LocalStreamInfo) Frames() int64 {
	return l.rate.Total()
}

// rtcpCounters counts feedback messages seen on a channel's transport.
type rtcpCounters struct {
	pliReceived  atomic.Int64
	firReceived  atomic.Int64
	nackReceived atomic.Int64
	pliSent      atomic.Int64
	firSent      atomic.Int64
	nackSent     atomic.Int64
}
