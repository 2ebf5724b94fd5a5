package videoengine

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// SourceType identifies the type of raw frame source.
type SourceType int

const (
	SourceTypeUnknown     SourceType = iota
	SourceTypeCamera                 // Camera capture (platform-specific)
	SourceTypeTestPattern            // Synthetic test pattern generator
	SourceTypeCustom                 // User-provided source
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeCamera:
		return "Camera"
	case SourceTypeTestPattern:
		return "TestPattern"
	case SourceTypeCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// SourceConfig describes a source's output.
type SourceConfig struct {
	Width      int         // Frame width in pixels
	Height     int         // Frame height in pixels
	FPS        int         // Frames per second
	Format     PixelFormat // Pixel format
	SourceType SourceType  // Type of source
}

// VideoSource produces raw video frames.
type VideoSource interface {
	io.Closer

	// Start begins capture/generation.
	Start(ctx context.Context) error

	// Stop halts capture/generation.
	Stop() error

	// ReadFrame reads the next frame (blocking).
	// The returned frame is valid until the next ReadFrame call or Close.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// SetCallback sets push-mode callback for frame delivery.
	// When set, frames are pushed to the callback instead of being buffered.
	SetCallback(cb VideoFrameCallback)

	// Config returns the source configuration.
	Config() SourceConfig
}

// SourceCapturer drives a VideoSource as a VideoCapturer. The source's
// configured output is its only supported format and it starts
// synchronously.
type SourceCapturer struct {
	*BaseCapturer

	source VideoSource

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSourceCapturer wraps source as a capturer identified by id.
func NewSourceCapturer(id string, source VideoSource) *SourceCapturer {
	cfg := source.Config()
	format := NewVideoFormat(cfg.Width, cfg.Height, cfg.FPS, cfg.Format)
	return &SourceCapturer{
		BaseCapturer: NewBaseCapturer(id, []VideoFormat{format}),
		source:       source,
	}
}

// Source returns the wrapped source.
func (s *SourceCapturer) Source() VideoSource { return s.source }

// Start implements VideoCapturer.
func (s *SourceCapturer) Start(format VideoFormat) (CaptureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsRunning() {
		return CaptureSuccess, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.source.SetCallback(s.DeliverFrame)
	if err := s.source.Start(ctx); err != nil {
		cancel()
		s.source.SetCallback(nil)
		return CaptureFailure, fmt.Errorf("failed to start %s source: %w", s.source.Config().SourceType, err)
	}
	s.cancel = cancel
	s.SetRunning(true)
	return CaptureSuccess, nil
}

// Stop implements VideoCapturer.
func (s *SourceCapturer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsRunning() {
		return nil
	}
	err := s.source.Stop()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.source.SetCallback(nil)
	s.SetRunning(false)
	if err != nil {
		return fmt.Errorf("failed to stop source: %w", err)
	}
	return nil
}

// Close stops capturing and closes the source.
func (s *SourceCapturer) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.source.Close()
}
