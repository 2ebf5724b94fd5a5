package videoengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "videoengine"

var (
	engineCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "engine_call_errors",
		Namespace: metricsNamespace,
		Help:      "number of failed calls into the external engine",
	}, []string{"op"})
	channelsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "channels",
		Namespace: metricsNamespace,
		Help:      "number of registered video channels",
	})
	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "frames_captured",
		Namespace: metricsNamespace,
		Help:      "number of frames delivered by the capturer",
	})
	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "frames_sent",
		Namespace: metricsNamespace,
		Help:      "number of frames handed to a channel capture endpoint",
	}, []string{"muted"})
	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "frames_dropped",
		Namespace: metricsNamespace,
		Help:      "number of frames dropped before reaching the engine",
	}, []string{"reason"})
	captureState = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "capture_state",
		Namespace: metricsNamespace,
		Help:      "current capture state (0=NoDevice 1=Idle 2=Starting 3=Running 4=Stopping)",
	})
	cpuLoadGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "cpu_load",
		Namespace: metricsNamespace,
		Help:      "last cpu load reported by an engine performance alarm",
	})
	rtcpFeedback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "rtcp_feedback",
		Namespace: metricsNamespace,
		Help:      "number of RTCP feedback messages seen on channel transports",
	}, []string{"direction", "type"})
	rtpRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "rtp_rejected",
		Namespace: metricsNamespace,
		Help:      "number of inbound RTP packets rejected as malformed",
	})
)
