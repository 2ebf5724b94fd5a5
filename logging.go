package videoengine

import (
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// TraceLevel is a bit set of engine trace categories.
type TraceLevel int

const (
	TraceNone       TraceLevel = 0x0000
	TraceStateInfo  TraceLevel = 0x0001
	TraceWarning    TraceLevel = 0x0002
	TraceError      TraceLevel = 0x0004
	TraceCritical   TraceLevel = 0x0008
	TraceAPICall    TraceLevel = 0x0010
	TraceModuleCall TraceLevel = 0x0020
	TraceDefault    TraceLevel = 0x00ff
	TraceMemory     TraceLevel = 0x0100
	TraceTimer      TraceLevel = 0x0200
	TraceStream     TraceLevel = 0x0400
	TraceDebug      TraceLevel = 0x0800
	TraceInfo       TraceLevel = 0x1000
	TraceAll        TraceLevel = 0xffff
)

// DefaultLogLevel is the severity threshold the engine starts with.
const DefaultLogLevel = log.WarnLevel

// Engine trace lines carry a fixed-width header of this many bytes,
// followed by the message and one trailing byte.
const tracePrefixLen = 71

// Traces that are expected before the remote side sends RTCP.
var ignoredTraces = []string{
	"\tfailed to GetReportBlockInformation",
}

// traceFilterForLevel returns the engine trace categories worth emitting
// at the given log level. Each level includes everything more severe.
func traceFilterForLevel(level log.Level) TraceLevel {
	var filter TraceLevel
	if level >= log.DebugLevel {
		filter |= TraceAll
	}
	if level >= log.InfoLevel {
		filter |= TraceStateInfo
	}
	if level >= log.WarnLevel {
		filter |= TraceWarning
	}
	if level >= log.ErrorLevel {
		filter |= TraceError | TraceCritical
	}
	return filter
}

// traceSeverity maps an engine trace category to a log level.
func traceSeverity(level TraceLevel) log.Level {
	switch level {
	case TraceError, TraceCritical:
		return log.ErrorLevel
	case TraceWarning:
		return log.WarnLevel
	case TraceStateInfo, TraceInfo:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}

// traceLogger re-logs engine trace output. A non-empty filter keeps only
// messages containing it.
type traceLogger struct {
	log    *log.Entry
	level  atomic.Uint32
	filter atomic.Pointer[string]
}

func newTraceLogger(entry *log.Entry, level log.Level) *traceLogger {
	t := &traceLogger{log: entry}
	t.level.Store(uint32(level))
	return t
}

func (t *traceLogger) setLevel(level log.Level) {
	t.level.Store(uint32(level))
}

func (t *traceLogger) setFilter(filter string) {
	t.filter.Store(&filter)
}

func (t *traceLogger) Level() log.Level {
	return log.Level(t.level.Load())
}

// Print implements TraceSink.
func (t *traceLogger) Print(level TraceLevel, trace string) {
	sev := traceSeverity(level)
	if sev > t.Level() {
		return
	}
	if len(trace) <= tracePrefixLen {
		t.log.Error("malformed engine trace")
		t.log.Log(sev, trace)
		return
	}
	msg := trace[tracePrefixLen : len(trace)-1]
	for _, ignored := range ignoredTraces {
		if strings.HasPrefix(msg, ignored) {
			return
		}
	}
	if f := t.filter.Load(); f != nil && *f != "" && !strings.Contains(msg, *f) {
		return
	}
	t.log.WithField("source", "engine").Log(sev, msg)
}

// engineError builds, counts and logs an EngineError for a failed call.
func engineError(entry *log.Entry, op string, ch ChannelID, code int, err error) *EngineError {
	e := &EngineError{Op: op, Channel: ch, Code: code, Err: err}
	engineCallErrors.WithLabelValues(op).Inc()
	fields := log.Fields{"op": op}
	if ch != noChannel {
		fields["channel"] = int(ch)
	}
	if code != 0 {
		fields["code"] = code
	}
	if err != nil {
		fields[log.ErrorKey] = err
	}
	entry.WithFields(fields).Error("engine call failed")
	return e
}

func defaultLogger() *log.Entry {
	return log.WithField("component", "videoengine")
}
