package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"leadflow/pkg/logging"
)

func TestContextFieldsArePrepended(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core, "processor-service")

	ctx := logging.WithLeadID(context.Background(), "L1")
	log.InfowCtx(ctx, "task processed", "attempt", 1)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "L1", fields["lead_id"])
	assert.Equal(t, "processor-service", fields["service_name"])
	assert.EqualValues(t, 1, fields["attempt"])
}

func TestWithKeepsServiceName(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewWithCore(core, "ingest-service").With("component", "normalizer")

	log.WarnwCtx(context.Background(), "rejected")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "normalizer", fields["component"])
	assert.Equal(t, "ingest-service", fields["service_name"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}
