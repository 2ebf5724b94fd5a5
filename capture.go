package videoengine

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// CaptureState is the actual state of the capture device.
type CaptureState int32

const (
	CaptureStateNoDevice CaptureState = iota
	CaptureStateIdle
	CaptureStateStarting
	CaptureStateRunning
	CaptureStateStopping
)

func (s CaptureState) String() string {
	switch s {
	case CaptureStateNoDevice:
		return "NoDevice"
	case CaptureStateIdle:
		return "Idle"
	case CaptureStateStarting:
		return "Starting"
	case CaptureStateRunning:
		return "Running"
	case CaptureStateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// CaptureController owns the capture device, drives it toward the desired
// running state and fans captured frames out to the local preview and to
// every sending channel.
//
// Capturers must not invoke the start callback from inside Start.
type CaptureController struct {
	mu       sync.Mutex
	capturer VideoCapturer
	state    CaptureState
	desired  bool
	format   VideoFormat

	// target is the default codec format; capture negotiates against it and
	// frames are cropped to its aspect ratio.
	target func() VideoFormat
	reg    *channelRegistry
	log    *log.Entry
	rate   *RateTracker

	resultMu sync.RWMutex
	onResult func(CaptureResult)

	previewMu sync.Mutex
	preview   VideoRenderer
	previewW  int
	previewH  int
}

func newCaptureController(target func() VideoFormat, reg *channelRegistry, entry *log.Entry) *CaptureController {
	c := &CaptureController{
		target: target,
		reg:    reg,
		log:    entry.WithField("subsystem", "capture"),
		rate:   NewRateTracker(),
	}
	c.setStateLocked(CaptureStateNoDevice)
	return c
}

// State returns the actual capture state.
func (c *CaptureController) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Desired reports whether capture has been requested.
func (c *CaptureController) Desired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Format returns the negotiated capture format while starting or running.
func (c *CaptureController) Format() VideoFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Capturer returns the installed capturer, if any.
func (c *CaptureController) Capturer() VideoCapturer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturer
}

// FrameRate returns captured frames per second.
func (c *CaptureController) FrameRate() int { return c.rate.Rate() }

// OnCaptureResult sets the sink for deferred capturer start results.
func (c *CaptureController) OnCaptureResult(fn func(CaptureResult)) {
	c.resultMu.Lock()
	defer c.resultMu.Unlock()
	c.onResult = fn
}

// SetCapturer installs capturer, replacing and releasing the previous one,
// then re-evaluates whether capture should be running. nil removes the
// device.
func (c *CaptureController) SetCapturer(capturer VideoCapturer) (CaptureResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old := c.capturer; old != nil && old != capturer {
		old.SetFrameCallback(nil)
		old.SetStartCallback(nil)
		if old.IsRunning() || c.state == CaptureStateStarting {
			if err := old.Stop(); err != nil {
				c.log.WithError(err).WithField("device", old.ID()).Warn("failed to stop replaced capturer")
			}
		}
	}

	c.capturer = capturer
	c.format = VideoFormat{}
	if capturer == nil {
		c.setStateLocked(CaptureStateNoDevice)
		c.log.Info("capture device cleared")
		return CaptureSuccess, nil
	}

	capturer.SetFrameCallback(c.OnFrameCaptured)
	capturer.SetStartCallback(c.handleStartResult)
	if capturer.IsRunning() {
		c.setStateLocked(CaptureStateRunning)
	} else {
		c.setStateLocked(CaptureStateIdle)
	}

	res, err := c.updateLocked()
	if err != nil {
		c.log.WithError(err).Warn("capturer failed to restart")
	}
	return res, err
}

// SetCapture records whether capture is wanted and starts or stops the
// device to match. When starting fails the request is kept and the actual
// state is left as it was.
func (c *CaptureController) SetCapture(capture bool) (CaptureResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desired = capture
	return c.updateLocked()
}

func (c *CaptureController) updateLocked() (CaptureResult, error) {
	active := c.state == CaptureStateRunning || c.state == CaptureStateStarting

	switch {
	case !active && c.desired:
		if c.capturer == nil {
			c.setStateLocked(CaptureStateNoDevice)
			return CaptureNoDevice, ErrNoDevice
		}

		target := c.target()
		format, ok := c.capturer.BestCaptureFormat(target)
		if !ok {
			entry := c.log.WithFields(log.Fields{"width": target.Width, "height": target.Height})
			entry.Warn("unsupported capture format, supported formats are:")
			for _, f := range c.capturer.SupportedFormats() {
				entry.Warnf("  %s", f)
			}
			return CaptureFailure, fmt.Errorf("%w: %dx%d", ErrUnsupportedFormat, target.Width, target.Height)
		}

		res, err := c.capturer.Start(format)
		if err == nil && res != CaptureSuccess && res != CapturePending {
			err = fmt.Errorf("%w: %s", ErrCaptureFailed, res)
		}
		if err != nil {
			c.log.WithError(err).Error("failed to start the video capturer")
			if res == CaptureSuccess || res == CapturePending {
				res = CaptureFailure
			}
			return res, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		c.format = format
		if res == CapturePending {
			c.setStateLocked(CaptureStateStarting)
		} else {
			c.setStateLocked(CaptureStateRunning)
		}
		c.log.WithField("format", format.String()).Info("capture started")
		return res, nil

	case active && !c.desired:
		c.setStateLocked(CaptureStateStopping)
		if err := c.capturer.Stop(); err != nil {
			c.log.WithError(err).Warn("capturer stop failed")
		}
		c.format = VideoFormat{}
		c.setStateLocked(CaptureStateIdle)
		c.log.Info("capture stopped")
	}
	return CaptureSuccess, nil
}

// handleStartResult completes a pending start. A failure reported while
// running means the device stopped on its own; capture stays desired and
// the next request restarts it.
func (c *CaptureController) handleStartResult(res CaptureResult) {
	c.mu.Lock()
	switch {
	case c.state == CaptureStateStarting && res == CaptureSuccess:
		c.setStateLocked(CaptureStateRunning)
	case c.state == CaptureStateStarting:
		c.format = VideoFormat{}
		c.setStateLocked(CaptureStateIdle)
	case c.state == CaptureStateRunning && res != CaptureSuccess:
		c.log.WithField("result", res.String()).Warn("capture device stopped unexpectedly")
		c.format = VideoFormat{}
		c.setStateLocked(CaptureStateIdle)
	}
	c.mu.Unlock()

	c.resultMu.RLock()
	fn := c.onResult
	c.resultMu.RUnlock()
	if fn != nil {
		fn(res)
	}
}

func (c *CaptureController) setStateLocked(s CaptureState) {
	c.state = s
	captureState.Set(float64(s))
}

// SetLocalRenderer sets the preview renderer. Its size is re-announced on
// the next frame.
func (c *CaptureController) SetLocalRenderer(r VideoRenderer) {
	c.previewMu.Lock()
	defer c.previewMu.Unlock()
	c.preview = r
	c.previewW, c.previewH = 0, 0
}

// OnFrameCaptured crops a captured frame to the target aspect ratio,
// converts it to I420 and delivers it to the preview and to every sending
// channel.
func (c *CaptureController) OnFrameCaptured(frame *VideoFrame) {
	if frame == nil {
		framesDropped.WithLabelValues("invalid").Inc()
		return
	}
	c.rate.Update(1)
	framesCaptured.Inc()

	aspect := c.target()
	if aspect.Width <= 0 || aspect.Height <= 0 {
		aspect = DefaultVideoFormat
	}
	croppedHeight := frame.Width * aspect.Height / aspect.Width

	i420, err := frame.ToI420(croppedHeight)
	if err != nil {
		framesDropped.WithLabelValues("convert").Inc()
		c.log.WithError(err).Errorf("couldn't convert %dx%d to I420", frame.Width, croppedHeight)
		return
	}

	c.renderPreview(i420)

	c.reg.forEach(func(ch *Channel) {
		if !ch.Sending() {
			return
		}
		if err := ch.SendFrame(i420); err != nil {
			c.log.WithError(err).WithField("channel", int(ch.ID())).Debug("failed to send captured frame")
		}
	})
}

func (c *CaptureController) renderPreview(frame *VideoFrame) {
	c.previewMu.Lock()
	defer c.previewMu.Unlock()
	if c.preview == nil {
		return
	}
	if c.previewW != frame.Width || c.previewH != frame.Height {
		c.previewW, c.previewH = frame.Width, frame.Height
		if err := c.preview.SetSize(frame.Width, frame.Height, 0); err != nil {
			c.log.WithError(err).Warn("local renderer rejected size")
		}
	}
	if err := c.preview.RenderFrame(frame); err != nil {
		c.log.WithError(err).Debug("local renderer failed")
	}
}
