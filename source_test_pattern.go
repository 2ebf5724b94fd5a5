package videoengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TestPatternKind is the device kind served by the test pattern capturer.
const TestPatternKind = "testpattern"

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// TestPatternConfig configures a test pattern source.
type TestPatternConfig struct {
	Width   int         // Frame width (default: 640)
	Height  int         // Frame height (default: 480)
	FPS     int         // Frames per second (default: 30)
	Pattern PatternType // Pattern type (default: ColorBars)

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern
	CheckerSize int // Size of each checker square (default: 32)
}

// DefaultTestPatternConfig returns a 4:3 VGA color bar configuration, which
// exercises the capture crop.
func DefaultTestPatternConfig() TestPatternConfig {
	return TestPatternConfig{
		Width:       640,
		Height:      480,
		FPS:         30,
		Pattern:     PatternColorBars,
		CheckerSize: 32,
	}
}

// TestPatternSource generates synthetic I420 frames.
type TestPatternSource struct {
	config TestPatternConfig
	frame  *VideoFrame

	frameDuration time.Duration
	frameCount    uint64
	startTime     time.Time

	running  atomic.Bool
	cancel   context.CancelFunc
	frameCh  chan *VideoFrame
	doneCh   chan struct{}
	callback VideoFrameCallback

	mu sync.RWMutex
}

// NewTestPatternSource creates a new test pattern video source.
func NewTestPatternSource(config TestPatternConfig) *TestPatternSource {
	def := DefaultTestPatternConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = def.CheckerSize
	}

	s := &TestPatternSource{
		config:        config,
		frame:         NewI420Frame(config.Width, config.Height),
		frameDuration: time.Second / time.Duration(config.FPS),
		frameCh:       make(chan *VideoFrame, 2),
	}
	s.generatePattern(0)
	return s
}

// Start begins generating frames.
func (s *TestPatternSource) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("source already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	s.startTime = time.Now()
	s.frameCount = 0

	go s.generateLoop(ctx)
	return nil
}

// Stop stops generating frames and waits for the generator to exit.
func (s *TestPatternSource) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	<-s.doneCh
	return nil
}

// Close stops the source and releases readers.
func (s *TestPatternSource) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.frameCh != nil {
		close(s.frameCh)
		s.frameCh = nil
	}
	s.mu.Unlock()
	return nil
}

// ReadFrame reads the next frame (blocking).
func (s *TestPatternSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	s.mu.RLock()
	ch := s.frameCh
	s.mu.RUnlock()
	if ch == nil {
		return nil, errors.New("source closed")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-ch:
		if !ok {
			return nil, errors.New("source closed")
		}
		return frame, nil
	}
}

// SetCallback sets the push-mode callback.
func (s *TestPatternSource) SetCallback(cb VideoFrameCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Config returns the source configuration.
func (s *TestPatternSource) Config() SourceConfig {
	return SourceConfig{
		Width:      s.config.Width,
		Height:     s.config.Height,
		FPS:        s.config.FPS,
		Format:     PixelFormatI420,
		SourceType: SourceTypeTestPattern,
	}
}

func (s *TestPatternSource) generateLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.frameCount++
			if s.config.Pattern == PatternMovingBox {
				s.generatePattern(s.frameCount)
			}

			frame := *s.frame
			frame.Timestamp = time.Since(s.startTime).Nanoseconds()
			frame.Duration = s.frameDuration.Nanoseconds()

			s.mu.RLock()
			cb := s.callback
			ch := s.frameCh
			s.mu.RUnlock()

			if cb != nil {
				cb(&frame)
				continue
			}
			if ch == nil {
				continue
			}
			select {
			case ch <- frame.Clone():
			default:
				// Drop frame if channel full
			}
		}
	}
}

func (s *TestPatternSource) generatePattern(frameNum uint64) {
	switch s.config.Pattern {
	case PatternGradient:
		s.generateGradient()
	case PatternCheckerboard:
		s.generateCheckerboard()
	case PatternSolidColor:
		s.fill(rgbToYUV(s.config.SolidR, s.config.SolidG, s.config.SolidB))
	case PatternMovingBox:
		s.generateMovingBox(frameNum)
	default:
		s.generateColorBars()
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

// set writes one pixel; chroma is written for even coordinates only.
func (s *TestPatternSource) set(x, y int, yv, u, v uint8) {
	f := s.frame
	f.Data[0][y*f.Stride[0]+x] = yv
	if x%2 == 0 && y%2 == 0 {
		i := (y/2)*f.Stride[1] + x/2
		f.Data[1][i] = u
		f.Data[2][i] = v
	}
}

func (s *TestPatternSource) fill(yv, u, v uint8) {
	f := s.frame
	for i := range f.Data[0] {
		f.Data[0][i] = yv
	}
	for i := range f.Data[1] {
		f.Data[1][i] = u
		f.Data[2][i] = v
	}
}

func (s *TestPatternSource) generateColorBars() {
	w, h := s.config.Width, s.config.Height
	barWidth := max(w/8, 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bar := min(x/barWidth, 7)
			rgb := colorBarsRGB[bar]
			yv, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])
			s.set(x, y, yv, u, v)
		}
	}
}

func (s *TestPatternSource) generateGradient() {
	w, h := s.config.Width, s.config.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s.set(x, y, uint8((x*255)/w), blackChroma, blackChroma)
		}
	}
}

func (s *TestPatternSource) generateCheckerboard() {
	w, h := s.config.Width, s.config.Height
	size := s.config.CheckerSize

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yv := uint8(blackLuma)
			if ((x/size)+(y/size))%2 == 0 {
				yv = 235
			}
			s.set(x, y, yv, blackChroma, blackChroma)
		}
	}
}

func (s *TestPatternSource) generateMovingBox(frameNum uint64) {
	w, h := s.config.Width, s.config.Height
	s.fill(blackLuma, blackChroma, blackChroma)

	boxSize := min(100, w, h)
	radius := float64(min(w, h)) / 4
	angle := float64(frameNum) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			s.set(x, y, 235, blackChroma, blackChroma)
		}
	}
}

// parseTestPatternID reads "WIDTHxHEIGHT[@FPS]" device ids. Anything else
// yields the default configuration.
func parseTestPatternID(id string) TestPatternConfig {
	cfg := DefaultTestPatternConfig()
	size, fps, hasFPS := strings.Cut(id, "@")
	ws, hs, ok := strings.Cut(size, "x")
	if !ok {
		return cfg
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return cfg
	}
	cfg.Width, cfg.Height = w, h
	if hasFPS {
		if f, err := strconv.Atoi(fps); err == nil && f > 0 {
			cfg.FPS = f
		}
	}
	return cfg
}

// TestPatternDevice returns a device that opens a test pattern capturer of
// the given geometry.
func TestPatternDevice(width, height, fps int) Device {
	return Device{
		ID:   fmt.Sprintf("%dx%d@%d", width, height, fps),
		Name: "Test Pattern",
		Kind: TestPatternKind,
	}
}

func init() {
	RegisterCapturer(TestPatternKind, func(device Device) (VideoCapturer, error) {
		return NewSourceCapturer(device.ID, NewTestPatternSource(parseTestPatternID(device.ID))), nil
	})
}
