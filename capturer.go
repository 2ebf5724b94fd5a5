package videoengine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// CaptureResult is the outcome of starting a capturer.
type CaptureResult int

const (
	CaptureSuccess  CaptureResult = iota // capturing
	CapturePending                       // start accepted, result signalled later
	CaptureFailure                       // start failed
	CaptureNoDevice                      // no capturer installed
)

func (r CaptureResult) String() string {
	switch r {
	case CaptureSuccess:
		return "Success"
	case CapturePending:
		return "Pending"
	case CaptureFailure:
		return "Failure"
	case CaptureNoDevice:
		return "NoDevice"
	default:
		return "Unknown"
	}
}

// VideoFrameCallback is called when a frame is available (push mode).
type VideoFrameCallback func(frame *VideoFrame)

// VideoCapturer is a capture device as seen by the capture controller.
type VideoCapturer interface {
	// ID identifies the underlying device.
	ID() string
	// SupportedFormats lists the formats the device can produce.
	SupportedFormats() []VideoFormat
	// BestCaptureFormat picks the supported format closest to desired.
	BestCaptureFormat(desired VideoFormat) (VideoFormat, bool)
	// Start begins capturing in format. CapturePending means the outcome
	// is reported later through the start callback.
	Start(format VideoFormat) (CaptureResult, error)
	Stop() error
	IsRunning() bool
	// SetFrameCallback installs the frame sink. Frames are only valid for
	// the duration of the callback.
	SetFrameCallback(cb VideoFrameCallback)
	// SetStartCallback installs the sink for deferred start results. A
	// running device that stops on its own reports CaptureFailure here.
	SetStartCallback(cb func(CaptureResult))
}

// BaseCapturer implements the bookkeeping shared by capturers: the format
// list, callbacks and the running flag.
type BaseCapturer struct {
	id      string
	formats []VideoFormat
	running atomic.Bool

	mu       sync.RWMutex
	starting bool // an asynchronous start awaits SignalStart
	onFrame  VideoFrameCallback
	onStart  func(CaptureResult)
}

// NewBaseCapturer creates the shared state for a capturer.
func NewBaseCapturer(id string, formats []VideoFormat) *BaseCapturer {
	b := &BaseCapturer{id: id, formats: make([]VideoFormat, len(formats))}
	copy(b.formats, formats)
	return b
}

// ID implements VideoCapturer.
func (b *BaseCapturer) ID() string { return b.id }

// SupportedFormats implements VideoCapturer.
func (b *BaseCapturer) SupportedFormats() []VideoFormat {
	out := make([]VideoFormat, len(b.formats))
	copy(out, b.formats)
	return out
}

// BestCaptureFormat implements VideoCapturer.
func (b *BaseCapturer) BestCaptureFormat(desired VideoFormat) (VideoFormat, bool) {
	return BestFormat(b.formats, desired)
}

// IsRunning implements VideoCapturer.
func (b *BaseCapturer) IsRunning() bool { return b.running.Load() }

// SetRunning updates the running flag. A start still in flight is
// abandoned, so its late SignalStart is dropped.
func (b *BaseCapturer) SetRunning(running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starting = false
	b.running.Store(running)
}

// SetStarting marks an asynchronous start. Capturers returning
// CapturePending from Start call it before returning.
func (b *BaseCapturer) SetStarting() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starting = true
	b.running.Store(false)
}

// SetFrameCallback implements VideoCapturer.
func (b *BaseCapturer) SetFrameCallback(cb VideoFrameCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = cb
}

// SetStartCallback implements VideoCapturer.
func (b *BaseCapturer) SetStartCallback(cb func(CaptureResult)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStart = cb
}

// DeliverFrame passes a captured frame to the installed frame callback.
func (b *BaseCapturer) DeliverFrame(frame *VideoFrame) {
	b.mu.RLock()
	cb := b.onFrame
	b.mu.RUnlock()
	if cb != nil {
		cb(frame)
	}
}

// SignalStart reports the result of the start marked by SetStarting. It
// is dropped when no start is in flight, e.g. after Stop.
func (b *BaseCapturer) SignalStart(result CaptureResult) {
	b.mu.Lock()
	if !b.starting {
		b.mu.Unlock()
		return
	}
	b.starting = false
	b.running.Store(result == CaptureSuccess)
	cb := b.onStart
	b.mu.Unlock()
	if cb != nil {
		cb(result)
	}
}

// SignalFailure reports that a running capturer stopped on its own. The
// start callback receives CaptureFailure. Nothing is reported when the
// capturer was not running.
func (b *BaseCapturer) SignalFailure() {
	b.mu.Lock()
	if !b.running.Load() {
		b.mu.Unlock()
		return
	}
	b.running.Store(false)
	cb := b.onStart
	b.mu.Unlock()
	if cb != nil {
		cb(CaptureFailure)
	}
}

// BestFormat returns the supported format closest to desired. Formats at
// least as large as desired are preferred over smaller ones, then the
// smallest size excess, then the closest frame rate, then a matching pixel
// format.
func BestFormat(supported []VideoFormat, desired VideoFormat) (VideoFormat, bool) {
	var best VideoFormat
	bestDist := int64(math.MaxInt64)
	for _, f := range supported {
		if f.Width <= 0 || f.Height <= 0 {
			continue
		}
		if d := formatDistance(desired, f); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best, bestDist != math.MaxInt64
}

func formatDistance(desired, f VideoFormat) int64 {
	var deficit, excess int64
	if desired.Width > 0 || desired.Height > 0 {
		for _, d := range [2]int{f.Width - desired.Width, f.Height - desired.Height} {
			if d < 0 {
				deficit -= int64(d)
			} else {
				excess += int64(d)
			}
		}
	}
	fps := int64(f.Framerate() - desired.Framerate())
	if fps < 0 {
		fps = -fps
	}
	var mismatch int64
	if desired.Format != PixelFormatAny && f.Format != PixelFormatAny && desired.Format != f.Format {
		mismatch = 1
	}
	return deficit<<40 | excess<<20 | fps<<4 | mismatch
}

// Device identifies a capture device by kind and id.
type Device struct {
	ID   string
	Name string
	Kind string
}

func (d Device) String() string {
	return fmt.Sprintf("%s %q (%s)", d.Kind, d.Name, d.ID)
}

// CapturerFactory opens a capturer for a device.
type CapturerFactory func(device Device) (VideoCapturer, error)

// capturerRegistry holds registered capturer factories by device kind.
type capturerRegistry struct {
	factories map[string]CapturerFactory
	mu        sync.RWMutex
}

var globalCapturerRegistry = &capturerRegistry{
	factories: make(map[string]CapturerFactory),
}

// RegisterCapturer registers a capturer factory for a device kind.
func RegisterCapturer(kind string, factory CapturerFactory) {
	globalCapturerRegistry.mu.Lock()
	defer globalCapturerRegistry.mu.Unlock()
	globalCapturerRegistry.factories[kind] = factory
}

// CreateCapturer opens a capturer for device using the factory registered
// for its kind.
func CreateCapturer(device Device) (VideoCapturer, error) {
	globalCapturerRegistry.mu.RLock()
	factory, ok := globalCapturerRegistry.factories[device.Kind]
	globalCapturerRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no capturer for device kind %q", ErrNoDevice, device.Kind)
	}
	return factory(device)
}

// AvailableCapturerKinds returns the device kinds with a registered factory.
func AvailableCapturerKinds() []string {
	globalCapturerRegistry.mu.RLock()
	defer globalCapturerRegistry.mu.RUnlock()

	kinds := make([]string, 0, len(globalCapturerRegistry.factories))
	for k := range globalCapturerRegistry.factories {
		kinds = append(kinds, k)
	}
	return kinds
}
