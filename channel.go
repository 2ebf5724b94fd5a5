package videoengine

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ChannelState is the lifecycle state of a Channel.
type ChannelState int32

const (
	ChannelUninitialized ChannelState = iota
	ChannelInitializing
	ChannelReady
	ChannelTearingDown
	ChannelDestroyed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelUninitialized:
		return "Uninitialized"
	case ChannelInitializing:
		return "Initializing"
	case ChannelReady:
		return "Ready"
	case ChannelTearingDown:
		return "TearingDown"
	case ChannelDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// setupStep records which setup calls succeeded so teardown undoes exactly
// those.
type setupStep uint16

const (
	stepChannelCreated setupStep = 1 << iota
	stepAudioConnected
	stepTransportRegistered
	stepCaptureAllocated
	stepCaptureConnected
	stepRendererAdded
	stepDecoderObserver
	stepEncoderObserver
)

// captureEndpoint is the engine's external capture device bound to a channel.
type captureEndpoint struct {
	id   CaptureID
	sink ExternalCapture
}

// Channel is one logical video channel in the external engine. It is
// created by VideoEngine.CreateChannel and released with Close.
type Channel struct {
	engine Engine
	codecs *codecConverter
	reg    *channelRegistry
	regKey uint64
	voice  VoiceChannel
	log    *log.Entry

	state atomic.Int32
	steps setupStep // written only during setup and teardown

	id      ChannelID
	capture atomic.Pointer[captureEndpoint]

	mu         sync.Mutex // toggles and send codec
	rendering  bool
	sendCodec  *EngineCodec
	minBitrate int
	maxBitrate int

	sending atomic.Bool
	muted   atomic.Bool

	renderer *RenderAdapter
	decoder  *decoderTelemetry
	encoder  *encoderTelemetry
	local    *LocalStreamInfo
	rtcp     rtcpCounters

	network       atomic.Pointer[networkBinding]
	rtpBufferSize int
	rtcpInSeen    atomic.Bool
	rtcpOutSeen   atomic.Bool
}

type channelConfig struct {
	engine        Engine
	codecs        *codecConverter
	registry      *channelRegistry
	voice         VoiceChannel
	log           *log.Entry
	rtpBufferSize int
}

// newChannel registers a channel and runs its setup. On failure the steps
// that succeeded are torn down and the channel is unregistered before the
// error is returned.
func newChannel(cfg channelConfig) (*Channel, error) {
	minKbps, maxKbps := cfg.codecs.bitrateBounds()
	c := &Channel{
		engine:        cfg.engine,
		codecs:        cfg.codecs,
		reg:           cfg.registry,
		voice:         cfg.voice,
		log:           cfg.log,
		id:            noChannel,
		minBitrate:    minKbps,
		maxBitrate:    maxKbps,
		local:         newLocalStreamInfo(),
		rtpBufferSize: cfg.rtpBufferSize,
	}
	c.regKey = c.reg.register(c)

	if err := c.setup(); err != nil {
		c.teardown()
		return nil, err
	}
	return c, nil
}

func (c *Channel) setup() error {
	c.setState(ChannelInitializing)

	id, err := c.engine.CreateChannel()
	if err != nil {
		return c.engineErr("CreateChannel", err)
	}
	c.id = id
	c.steps |= stepChannelCreated
	c.log = c.log.WithField("channel", int(id))
	c.log.Info("channel created")

	if c.voice != nil {
		if err := c.engine.ConnectAudioChannel(id, c.voice.VoiceChannelID()); err != nil {
			c.engineErr("ConnectAudioChannel", err)
			c.log.Warn("audio and video not synchronized")
		} else {
			c.steps |= stepAudioConnected
		}
	}

	if err := c.engine.RegisterSendTransport(id, c); err != nil {
		return c.engineErr("RegisterSendTransport", err)
	}
	c.steps |= stepTransportRegistered

	captureID, sink, err := c.engine.AllocateExternalCaptureDevice()
	if err != nil {
		return c.engineErr("AllocateExternalCaptureDevice", err)
	}
	c.capture.Store(&captureEndpoint{id: captureID, sink: sink})
	c.steps |= stepCaptureAllocated

	if err := c.engine.ConnectCaptureDevice(captureID, id); err != nil {
		return c.engineErr("ConnectCaptureDevice", err)
	}
	c.steps |= stepCaptureConnected

	renderer := NewRenderAdapter(nil)
	if err := c.engine.AddRenderer(id, PixelFormatI420, renderer); err != nil {
		return c.engineErr("AddRenderer", err)
	}
	c.renderer = renderer
	c.steps |= stepRendererAdded

	decoder := newDecoderTelemetry(id)
	if err := c.engine.RegisterDecoderObserver(id, decoder); err != nil {
		return c.engineErr("RegisterDecoderObserver", err)
	}
	c.decoder = decoder
	c.steps |= stepDecoderObserver

	encoder := newEncoderTelemetry(id)
	if err := c.engine.RegisterEncoderObserver(id, encoder); err != nil {
		return c.engineErr("RegisterEncoderObserver", err)
	}
	c.encoder = encoder
	c.steps |= stepEncoderObserver

	if err := c.engine.SetRTCPStatus(id, RTCPModeCompound); err != nil {
		return c.engineErr("SetRTCPStatus", err)
	}
	if err := c.engine.SetKeyFrameRequestMethod(id, KeyFrameRequestPLI); err != nil {
		return c.engineErr("SetKeyFrameRequestMethod", err)
	}
	if err := c.engine.SetNACKStatus(id, true); err != nil {
		return c.engineErr("SetNACKStatus", err)
	}

	// Best effort; the engine picks its own CNAME otherwise.
	if err := c.engine.SetRTCPCName(id, uuid.NewString()); err != nil {
		c.engineErr("SetRTCPCName", err)
	}

	c.setState(ChannelReady)
	return nil
}

// Close tears the channel down. Individual detach failures are logged and
// skipped so the channel is always destroyed. Close is idempotent.
func (c *Channel) Close() error {
	if !c.state.CompareAndSwap(int32(ChannelReady), int32(ChannelTearingDown)) {
		return nil
	}
	c.teardown()
	return nil
}

func (c *Channel) teardown() {
	c.setState(ChannelTearingDown)

	// Stop fan-out from reaching the endpoint before it is released. Taking
	// c.mu first waits out a SetSend in flight.
	c.mu.Lock()
	c.reg.withLock(func() {
		c.sending.Store(false)
	})
	c.mu.Unlock()

	if c.steps&stepChannelCreated != 0 {
		c.mu.Lock()
		if c.rendering {
			if err := c.engine.StopRender(c.id); err != nil {
				c.engineErr("StopRender", err)
			} else {
				c.rendering = false
			}
		}
		c.mu.Unlock()

		if c.steps&stepRendererAdded != 0 {
			if err := c.engine.RemoveRenderer(c.id); err != nil {
				c.engineErr("RemoveRenderer", err)
			}
		}

		if ep := c.capture.Swap(nil); ep != nil {
			if c.steps&stepCaptureConnected != 0 {
				if err := c.engine.DisconnectCaptureDevice(c.id); err != nil {
					c.engineErr("DisconnectCaptureDevice", err)
				}
			}
			if err := c.engine.ReleaseCaptureDevice(ep.id); err != nil {
				c.engineErr("ReleaseCaptureDevice", err)
			}
		}

		if c.steps&stepTransportRegistered != 0 {
			if err := c.engine.DeregisterSendTransport(c.id); err != nil {
				c.engineErr("DeregisterSendTransport", err)
			}
		}

		if c.steps&stepAudioConnected != 0 {
			if err := c.engine.DisconnectAudioChannel(c.id); err != nil {
				c.engineErr("DisconnectAudioChannel", err)
			}
		}

		if err := c.engine.DeleteChannel(c.id); err != nil {
			c.engineErr("DeleteChannel", err)
		}

		if c.steps&stepDecoderObserver != 0 {
			if err := c.engine.DeregisterDecoderObserver(c.id); err != nil {
				c.engineErr("DeregisterDecoderObserver", err)
			}
		}
		if c.steps&stepEncoderObserver != 0 {
			if err := c.engine.DeregisterEncoderObserver(c.id); err != nil {
				c.engineErr("DeregisterEncoderObserver", err)
			}
		}
	}
	c.steps = 0

	c.reg.unregister(c.regKey)
	c.setState(ChannelDestroyed)
	c.log.Info("channel destroyed")
}

// ID returns the engine's handle for the channel.
func (c *Channel) ID() ChannelID { return c.id }

// State returns the lifecycle state.
func (c *Channel) State() ChannelState { return ChannelState(c.state.Load()) }

func (c *Channel) setState(s ChannelState) { c.state.Store(int32(s)) }

func (c *Channel) checkReady() error {
	if s := c.State(); s != ChannelReady {
		return ErrChannelNotReady
	}
	return nil
}

// Sending reports whether the engine is sending on this channel.
func (c *Channel) Sending() bool { return c.sending.Load() }

// Rendering reports whether remote video rendering is started.
func (c *Channel) Rendering() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rendering
}

// SetSend starts or stops sending. Asking for the current state is a no-op.
// The state check and the flag change happen under the same locks Close
// uses, so a closed channel never ends up sending.
func (c *Channel) SetSend(send bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReady(); err != nil {
		return err
	}
	if send == c.sending.Load() {
		return nil
	}
	if send {
		if err := c.engine.StartSend(c.id); err != nil {
			return c.engineErr("StartSend", err)
		}
	} else {
		if err := c.engine.StopSend(c.id); err != nil {
			return c.engineErr("StopSend", err)
		}
	}
	c.reg.withLock(func() {
		c.sending.Store(send)
	})
	return nil
}

// SetRender starts or stops rendering. Asking for the current state is a no-op.
func (c *Channel) SetRender(render bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReady(); err != nil {
		return err
	}
	if render == c.rendering {
		return nil
	}
	if render {
		if err := c.engine.StartRender(c.id); err != nil {
			return c.engineErr("StartRender", err)
		}
	} else {
		if err := c.engine.StopRender(c.id); err != nil {
			return c.engineErr("StopRender", err)
		}
	}
	c.rendering = render
	return nil
}

// SetRenderer attaches the remote video renderer. Only ssrc 0 is supported.
func (c *Channel) SetRenderer(ssrc uint32, renderer VideoRenderer) error {
	if ssrc != 0 {
		return ErrInvalidSSRC
	}
	if err := c.checkReady(); err != nil {
		return err
	}
	c.renderer.SetRenderer(renderer)
	return nil
}

// AddStream is not supported; a channel carries a single stream.
func (c *Channel) AddStream(ssrc, voiceSSRC uint32) error { return ErrNotSupported }

// RemoveStream is not supported; a channel carries a single stream.
func (c *Channel) RemoveStream(ssrc uint32) error { return ErrNotSupported }

// Mute replaces outgoing frames with black frames while on.
func (c *Channel) Mute(on bool) { c.muted.Store(on) }

// Muted reports whether the channel is muted.
func (c *Channel) Muted() bool { return c.muted.Load() }

// SendFrame hands an I420 frame to the channel's capture endpoint. Frames in
// other formats are converted first; malformed frames fail with
// ErrInvalidFrame. Local stream stats record the frame
// as given, even when muted.
func (c *Channel) SendFrame(frame *VideoFrame) error {
	ep := c.capture.Load()
	if ep == nil {
		framesDropped.WithLabelValues("no_endpoint").Inc()
		return ErrNoCaptureEndpoint
	}
	if err := frame.validate(); err != nil {
		framesDropped.WithLabelValues("invalid").Inc()
		return err
	}

	c.local.UpdateFrame(frame.Width, frame.Height)

	out := frame
	muted := c.muted.Load()
	if muted {
		out = frame.BlackCopy()
	} else if frame.Format != PixelFormatI420 {
		converted, err := frame.ToI420(0)
		if err != nil {
			framesDropped.WithLabelValues("convert").Inc()
			return err
		}
		out = converted
	}

	if err := ep.sink.IncomingFrameI420(out, out.TimestampMs()); err != nil {
		return c.engineErr("IncomingFrameI420", err)
	}
	framesSent.WithLabelValues(strconv.FormatBool(muted)).Inc()
	return nil
}

// SendIntraFrame asks the encoder for a key frame.
func (c *Channel) SendIntraFrame() error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.engine.SendKeyFrame(c.id); err != nil {
		return c.engineErr("SendKeyFrame", err)
	}
	return nil
}

// RequestIntraFrame is not supported; the engine requests key frames from
// the remote side on its own when decoding fails.
func (c *Channel) RequestIntraFrame() error { return ErrNotSupported }

// SetSendSSRC sets the local SSRC. It must be called before sending starts.
func (c *Channel) SetSendSSRC(ssrc uint32) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if c.sending.Load() {
		c.log.Error("channel already in send state")
		return ErrAlreadySending
	}
	if err := c.engine.SetLocalSSRC(c.id, ssrc); err != nil {
		return c.engineErr("SetLocalSSRC", err)
	}
	return nil
}

// SetRTCPCName sets the RTCP canonical name.
func (c *Channel) SetRTCPCName(cname string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.engine.SetRTCPCName(c.id, cname); err != nil {
		return c.engineErr("SetRTCPCName", err)
	}
	return nil
}

// EnableTMMBR turns on temporary max bitrate requests.
func (c *Channel) EnableTMMBR() error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.engine.SetTMMBRStatus(c.id, true); err != nil {
		return c.engineErr("SetTMMBRStatus", err)
	}
	return nil
}

// EnableNACKFEC turns on hybrid NACK and forward error correction with the
// given RED and ULPFEC payload types.
func (c *Channel) EnableNACKFEC(redPayloadType, fecPayloadType int) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.engine.SetHybridNACKFECStatus(c.id, true, redPayloadType, fecPayloadType); err != nil {
		return c.engineErr("SetHybridNACKFECStatus", err)
	}
	return nil
}

// LocalStream returns the stats of frames sent on this channel.
func (c *Channel) LocalStream() *LocalStreamInfo { return c.local }

func (c *Channel) engineErr(op string, err error) error {
	return engineError(c.log, op, c.id, c.engine.LastError(), err)
}
