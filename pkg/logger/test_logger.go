package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger captures every entry at debug level and above so tests can assert on them.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
	t        *testing.T
}

func NewTestLogger(t *testing.T) *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	return &TestLogger{
		Logger:   &Logger{Logger: zap.New(core).Named(LoggerName)},
		observed: observed,
		t:        t,
	}
}

// GetLogs returns the captured messages in order.
func (tl *TestLogger) GetLogs() []string {
	entries := tl.observed.All()
	logs := make([]string, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, e.Message)
	}
	return logs
}

// GetLogsAtLevel returns the captured messages logged at exactly level.
func (tl *TestLogger) GetLogsAtLevel(level zapcore.Level) []string {
	var logs []string
	for _, e := range tl.observed.All() {
		if e.Level == level {
			logs = append(logs, e.Message)
		}
	}
	return logs
}

// PrintLogs prints all captured logs to the test output
func (tl *TestLogger) PrintLogs() {
	tl.t.Log("Captured logs:")
	for i, log := range tl.GetLogs() {
		tl.t.Logf("[%d] %s", i, log)
	}
}
