package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedLogger() (*logrus.Logger, *bytes.Buffer) {
	logger := SetupLogging()
	buf := &bytes.Buffer{}
	logger.Out = buf
	return logger, buf
}

func TestGetLogData_MissingReturnsNil(t *testing.T) {
	assert.Nil(t, GetLogData(context.Background()))
}

func TestGetLogData_RoundTrip(t *testing.T) {
	logger, _ := bufferedLogger()
	logData := NewLogData(logger)

	ctx := WithLogData(context.Background(), logData)
	assert.Same(t, logData, GetLogData(ctx))
}

func TestLogData_LogIncludesDataAndTimings(t *testing.T) {
	logger, buf := bufferedLogger()
	logData := NewLogData(logger)

	logData.AddData("transactionID", "abc")
	stop := logData.AddTiming("claimMs")
	stop()
	logData.Log().Info("done")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["transactionID"])
	assert.Contains(t, line, "claimMs")
	assert.Equal(t, "info", line["loglevel"])
}

func TestLoggingWrapper_PassesLogDataThroughContext(t *testing.T) {
	logger, buf := bufferedLogger()

	var fromCtx *LogData
	handler := LoggingWrapper("Test", logger, func(w http.ResponseWriter, req *http.Request, logData *LogData) error {
		fromCtx = GetLogData(req.Context())
		assert.Same(t, logData, fromCtx)
		w.WriteHeader(http.StatusOK)
		return nil
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.NotNil(t, fromCtx)
	assert.Contains(t, buf.String(), "Handler.Test.Complete")
}

func TestLoggingWrapper_LogsErrors(t *testing.T) {
	logger, buf := bufferedLogger()

	handler := LoggingWrapper("Broken", logger, func(w http.ResponseWriter, req *http.Request, logData *LogData) error {
		return errors.New("boom")
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Contains(t, buf.String(), "Handler.Broken.Error")
	assert.Contains(t, buf.String(), "boom")
}

func TestSetLevel(t *testing.T) {
	logger, _ := bufferedLogger()

	SetLevel(logger, "debug")
	assert.Equal(t, logrus.DebugLevel, logger.Level)

	SetLevel(logger, "not-a-level")
	assert.Equal(t, logrus.DebugLevel, logger.Level)
}

func TestLogData_NilIsSafe(t *testing.T) {
	var logData *LogData
	logData.AddData("key", "value")
	logData.AddTiming("t")()
	logData.AddToExistingTiming("t")()
}
