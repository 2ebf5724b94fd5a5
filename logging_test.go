package videoengine

import (
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*log.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return log.NewEntry(logger), hook
}

// engineTrace wraps msg in the engine's fixed header and trailing byte.
func engineTrace(msg string) string {
	return strings.Repeat("x", tracePrefixLen) + msg + "\n"
}

func TestTraceFilterForLevel(t *testing.T) {
	tests := []struct {
		level log.Level
		want  TraceLevel
	}{
		{log.PanicLevel, TraceNone},
		{log.ErrorLevel, TraceError | TraceCritical},
		{log.WarnLevel, TraceWarning | TraceError | TraceCritical},
		{log.InfoLevel, TraceStateInfo | TraceWarning | TraceError | TraceCritical},
		{log.DebugLevel, TraceAll},
		{log.TraceLevel, TraceAll},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, traceFilterForLevel(tt.level))
		})
	}
}

func TestTraceLogger_Print(t *testing.T) {
	entry, hook := newTestLogger()
	tl := newTraceLogger(entry, log.WarnLevel)

	tl.Print(TraceWarning, engineTrace("encoder overshoot"))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "encoder overshoot", hook.LastEntry().Message)
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "engine", hook.LastEntry().Data["source"])

	// Below the threshold.
	tl.Print(TraceStateInfo, engineTrace("state change"))
	assert.Len(t, hook.Entries, 1)

	tl.setLevel(log.InfoLevel)
	tl.Print(TraceStateInfo, engineTrace("state change"))
	assert.Len(t, hook.Entries, 2)
	assert.Equal(t, log.InfoLevel, hook.LastEntry().Level)
}

func TestTraceLogger_Malformed(t *testing.T) {
	entry, hook := newTestLogger()
	tl := newTraceLogger(entry, log.DebugLevel)

	short := strings.Repeat("x", tracePrefixLen)
	tl.Print(TraceError, short)
	require.Len(t, hook.Entries, 2)
	assert.Equal(t, "malformed engine trace", hook.Entries[0].Message)
	assert.Equal(t, short, hook.Entries[1].Message)
}

func TestTraceLogger_Ignored(t *testing.T) {
	entry, hook := newTestLogger()
	tl := newTraceLogger(entry, log.DebugLevel)

	tl.Print(TraceError, engineTrace("\tfailed to GetReportBlockInformation for channel 3"))
	assert.Empty(t, hook.Entries)
}

func TestTraceLogger_Filter(t *testing.T) {
	entry, hook := newTestLogger()
	tl := newTraceLogger(entry, log.DebugLevel)
	tl.setFilter("VP8")

	tl.Print(TraceError, engineTrace("H264 decoder error"))
	assert.Empty(t, hook.Entries)
	tl.Print(TraceError, engineTrace("VP8 decoder error"))
	assert.Len(t, hook.Entries, 1)

	tl.setFilter("")
	tl.Print(TraceError, engineTrace("H264 decoder error"))
	assert.Len(t, hook.Entries, 2)
}

func TestEngineError(t *testing.T) {
	entry, hook := newTestLogger()

	err := engineError(entry, "StartSend", 3, 12, errFake)
	assert.Equal(t, "StartSend failed on channel 3 (code 12): fake engine failure", err.Error())
	assert.ErrorIs(t, err, ErrEngineCall)
	assert.ErrorIs(t, err, errFake)

	require.Len(t, hook.Entries, 1)
	e := hook.LastEntry()
	assert.Equal(t, log.ErrorLevel, e.Level)
	assert.Equal(t, "StartSend", e.Data["op"])
	assert.Equal(t, 3, e.Data["channel"])
	assert.Equal(t, 12, e.Data["code"])

	global := engineError(entry, "Init", noChannel, 0, nil)
	assert.Equal(t, "Init failed", global.Error())
	_, hasChannel := hook.LastEntry().Data["channel"]
	assert.False(t, hasChannel)
}
