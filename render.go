package videoengine

import (
	"fmt"
	"sync"
)

// VideoRenderer is an application sink for local preview or remote video.
type VideoRenderer interface {
	// SetSize is called before the first frame and whenever the size changes.
	SetSize(width, height, reserved int) error
	// RenderFrame draws one frame. The frame is only valid during the call.
	RenderFrame(frame *VideoFrame) error
}

// RenderAdapter forwards decoded frames from the engine to an application
// renderer and tracks the observed size and frame rate. The renderer may be
// swapped at any time, including while the engine is delivering frames.
type RenderAdapter struct {
	mu       sync.Mutex
	renderer VideoRenderer
	width    int
	height   int
	rate     *RateTracker
}

// NewRenderAdapter creates an adapter with an optional initial renderer.
func NewRenderAdapter(renderer VideoRenderer) *RenderAdapter {
	return &RenderAdapter{renderer: renderer, rate: NewRateTracker()}
}

// SetRenderer replaces the application renderer. nil detaches it.
func (a *RenderAdapter) SetRenderer(renderer VideoRenderer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renderer = renderer
}

// FrameSizeChange implements ExternalRenderer. The size is only recorded
// while a renderer is attached.
func (a *RenderAdapter) FrameSizeChange(width, height, numberOfStreams int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.renderer == nil {
		return nil
	}
	a.width = width
	a.height = height
	return a.renderer.SetSize(width, height, 0)
}

// DeliverFrame implements ExternalRenderer. Every delivery counts toward the
// frame rate, with or without a renderer.
func (a *RenderAdapter) DeliverFrame(buffer []byte, timestamp uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rate.Update(1)
	if a.renderer == nil {
		return nil
	}
	frame, err := i420FromBuffer(buffer, a.width, a.height)
	if err != nil {
		return fmt.Errorf("failed to wrap decoded frame: %w", err)
	}
	// 90 kHz RTP clock to nanoseconds.
	frame.Timestamp = int64(timestamp) * 1_000_000_000 / videoClockRate
	return a.renderer.RenderFrame(frame)
}

// Width returns the last reported frame width.
func (a *RenderAdapter) Width() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.width
}

// Height returns the last reported frame height.
func (a *RenderAdapter) Height() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.height
}

// FrameRate returns the delivered frames per second.
func (a *RenderAdapter) FrameRate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate.Rate()
}
