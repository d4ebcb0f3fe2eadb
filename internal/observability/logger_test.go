package observability

import (
	"bytes"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	debugs int
	infos  int
	errors int
}

func (r *recordingLogger) Debug(string, ...Field) { r.debugs++ }
func (r *recordingLogger) Info(string, ...Field)  { r.infos++ }
func (r *recordingLogger) Error(string, ...Field) { r.errors++ }

func TestSetLoggerOverridesGlobal(t *testing.T) {
	recorder := new(recordingLogger)
	SetLogger(recorder)
	t.Cleanup(func() { SetLogger(nil) })

	Log().Debug("test")
	require.Equal(t, 1, recorder.debugs)
	require.Same(t, recorder, Or(nil))

	SetLogger(nil)
	Log().Info("noop")
	require.Equal(t, 0, recorder.infos)
}

func TestLogrusLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)

	logger := NewLogrusFromEntry(logrus.NewEntry(base)).With(F("component", "ws"))
	logger.Error("subscribe rejected", F("req_id", 7), F("err", errors.New("boom")))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "subscribe rejected", record["msg"])
	require.Equal(t, "ws", record["component"])
	require.Equal(t, "boom", record["err"])
	require.EqualValues(t, 7, record["req_id"])
}

func TestNewLogrusLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogrusLogger(LogConfig{Level: "chatty"})
	require.Error(t, err)

	_, err = NewLogrusLogger(LogConfig{Level: "debug", Format: "xml"})
	require.Error(t, err)

	logger, err := NewLogrusLogger(LogConfig{Level: "warn", Format: "text", Component: "test"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestAggregateErrorsSkipsNilAndLogsOnce(t *testing.T) {
	rec := &recordingLogger{}
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })

	require.NoError(t, AggregateErrors("close sessions", []error{nil, nil}))
	require.Zero(t, rec.errors)

	first := errors.New("public closed")
	err := AggregateErrors("close sessions", []error{first, nil, errors.New("private closed")})
	require.ErrorIs(t, err, first)
	require.ErrorContains(t, err, "close sessions failed")
	require.Equal(t, 1, rec.errors)
}
