// Package videoengine coordinates an external real-time video engine
// (libmedia_vie) with capture devices, codec negotiation and RTP transport.
//
// Key pieces include:
//   - CodecCatalog: the preference-ranked codec list and SDP/webrtc mapping
//   - CaptureController: the capture state machine and frame fan-out
//   - Channel: per-stream setup, codecs, transport, rendering and teardown
//   - GetStats: sender/receiver statistics and bandwidth estimates
//   - VideoEngine: engine lifecycle, default codec, devices and logging
//
// # Architecture
//
//	Send:    VideoCapturer -> CaptureController -> Channel -> ExternalCapture -> engine
//	Network: engine -> Transport -> NetworkInterface; NetworkInterface -> Channel -> engine
//	Receive: engine -> ExternalRenderer (RenderAdapter) -> VideoRenderer
//
// # Native Library
//
// NativeEngine binds libmedia_vie with purego (no cgo). Set
// MEDIA_VIE_LIB_PATH to the library file, or MEDIA_SDK_LIB_PATH to the
// directory containing it. Any other Engine implementation can be passed
// to New.
//
// # Build Tags
//
// Optional tags disable features:
//   - novie: do not bind libmedia_vie
//   - nodevices: disable camera capture through pion/mediadevices
//
// # Configuration
//
// LoadConfig reads a YAML, JSON or TOML file and VIDEOENGINE_* environment
// variables. Pass the result to New with WithConfig.
package videoengine
