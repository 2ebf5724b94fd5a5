package videoengine

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// codecConverter resolves session codecs against the catalog and the
// engine's own codec list. One instance is shared by the facade and every
// channel it creates.
type codecConverter struct {
	engine  CodecAPI
	catalog *CodecCatalog

	minBitrateKbps atomic.Int32
	maxBitrateKbps atomic.Int32
	temporalLayers atomic.Int32
}

func newCodecConverter(engine CodecAPI, catalog *CodecCatalog) *codecConverter {
	cc := &codecConverter{engine: engine, catalog: catalog}
	cc.minBitrateKbps.Store(MinVideoBitrateKbps)
	cc.maxBitrateKbps.Store(MaxVideoBitrateKbps)
	cc.temporalLayers.Store(DefaultTemporalLayers)
	return cc
}

func (cc *codecConverter) bitrateBounds() (minKbps, maxKbps int) {
	return int(cc.minBitrateKbps.Load()), int(cc.maxBitrateKbps.Load())
}

// defaultFormat is the format of the most preferred codec in the current
// list. Sends are clamped to it and captures negotiate against it.
func (cc *codecConverter) defaultFormat() VideoFormat {
	codecs := cc.catalog.Codecs()
	if len(codecs) == 0 {
		return DefaultVideoFormat
	}
	return NewVideoFormat(codecs[0].Width, codecs[0].Height, codecs[0].Framerate, PixelFormatAny)
}

// convert finds the engine codec with the same name and overrides the
// fields the session codec specifies.
func (cc *codecConverter) convert(in VideoCodecSpec) (EngineCodec, error) {
	var out EngineCodec
	found := false
	n := cc.engine.NumberOfCodecs()
	for i := 0; i < n; i++ {
		codec, err := cc.engine.GetCodec(i)
		if err == nil && codec.Name == in.Name {
			out = codec
			found = true
			break
		}
	}
	if !found {
		return EngineCodec{}, fmt.Errorf("%w: engine has no codec %q", ErrNoMatchingCodec, in.Name)
	}

	if in.ID != 0 {
		out.PayloadType = in.ID
	}
	if in.Width != 0 {
		out.Width = in.Width
	}
	if in.Height != 0 {
		out.Height = in.Height
	}
	if in.Framerate != 0 {
		out.MaxFramerate = in.Framerate
	}

	minKbps, maxKbps := cc.bitrateBounds()
	out.MaxBitrateKbps = maxKbps
	out.StartBitrateKbps = minKbps
	out.MinBitrateKbps = minKbps
	return out, nil
}

// SetSendCodecs selects the first candidate the catalog and the engine both
// support and makes it the send codec. The resolution is clamped to the
// engine's default codec format.
func (c *Channel) SetSendCodecs(candidates []VideoCodecSpec) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	var sendCodecs []EngineCodec
	for _, cand := range candidates {
		if !c.codecs.catalog.FindCodec(cand) {
			continue
		}
		codec, err := c.codecs.convert(cand)
		if err != nil {
			c.log.WithError(err).Warn("skipping send codec")
			continue
		}
		sendCodecs = append(sendCodecs, codec)
	}
	if len(sendCodecs) == 0 {
		c.log.Warn("no matching codecs available")
		return ErrNoUsableCodec
	}

	codec := sendCodecs[0]
	// Decoded frames are written into a fixed-size render buffer on the far
	// end, so nothing larger than the default format is sent.
	def := c.codecs.defaultFormat()
	if codec.Width > def.Width || codec.Height > def.Height {
		codec.Width = def.Width
		codec.Height = def.Height
	}
	if codec.IsVP8() {
		codec.TemporalLayers = int(c.codecs.temporalLayers.Load())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.setSendCodecLocked(codec, c.minBitrate, c.maxBitrate); err != nil {
		return err
	}
	c.log.WithField("codec", c.sendCodec.String()).Info("selected send codec")
	return nil
}

// SetSendCodec pushes codec with the given bitrate bounds. The channel's
// active codec and bounds change only if the engine accepts it.
func (c *Channel) SetSendCodec(codec EngineCodec, minBitrateKbps, maxBitrateKbps int) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setSendCodecLocked(codec, minBitrateKbps, maxBitrateKbps)
}

func (c *Channel) setSendCodecLocked(codec EngineCodec, minBitrateKbps, maxBitrateKbps int) error {
	target := codec
	target.StartBitrateKbps = minBitrateKbps
	target.MinBitrateKbps = minBitrateKbps
	target.MaxBitrateKbps = maxBitrateKbps

	if err := c.engine.SetSendCodec(c.id, target); err != nil {
		return c.engineErr("SetSendCodec", err)
	}

	c.sendCodec = &target
	c.minBitrate = minBitrateKbps
	c.maxBitrate = maxBitrateKbps
	return nil
}

// SetRecvCodecs registers every candidate the catalog knows as a receive
// codec. Receiving starts only if every candidate was accepted; otherwise
// the accepted ones stay registered and a partial failure is returned.
func (c *Channel) SetRecvCodecs(candidates []VideoCodecSpec) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	var errs []error
	for _, cand := range candidates {
		if !c.codecs.catalog.FindCodec(cand) {
			c.log.WithField("codec", cand.Name).Info("unknown receive codec")
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoMatchingCodec, cand.Name))
			continue
		}
		codec, err := c.codecs.convert(cand)
		if err != nil {
			c.log.WithError(err).Warn("skipping receive codec")
			errs = append(errs, err)
			continue
		}
		if err := c.engine.SetReceiveCodec(c.id, codec); err != nil {
			errs = append(errs, c.engineErr("SetReceiveCodec", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %d of %d receive codecs rejected: %w",
			ErrPartialFailure, len(errs), len(candidates), errors.Join(errs...))
	}

	if err := c.engine.StartReceive(c.id); err != nil {
		return c.engineErr("StartReceive", err)
	}
	return nil
}

// SetSendBandwidth re-pushes the send codec with new bitrate bounds. With
// auto set, bps (or the default maximum) becomes the ceiling above the
// default floor. Otherwise bps (or the default minimum) is used as a fixed
// rate. bps is in bits per second. Without a send codec this is a no-op.
func (c *Channel) SetSendBandwidth(auto bool, bps int) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendCodec == nil {
		c.log.Info("send codec not set up yet, ignoring bandwidth")
		return nil
	}

	minKbps, maxKbps := c.codecs.bitrateBounds()
	if auto {
		if bps > 0 {
			maxKbps = bps / 1000
		}
	} else {
		target := minKbps
		if bps > 0 {
			target = bps / 1000
		}
		minKbps, maxKbps = target, target
	}
	return c.setSendCodecLocked(*c.sendCodec, minKbps, maxKbps)
}

// SendCodec returns the active send codec.
func (c *Channel) SendCodec() (EngineCodec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendCodec == nil {
		return EngineCodec{}, false
	}
	return *c.sendCodec, true
}

// Bitrates returns the active send bitrate bounds in kbps.
func (c *Channel) Bitrates() (minKbps, maxKbps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minBitrate, c.maxBitrate
}
