package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTaskID(ctx, "task-1")
	ctx = WithLeadID(ctx, "L1")
	ctx = WithServiceName(ctx, "processor-service")
	ctx = WithTraceID(ctx, "")

	assert.Equal(t, []interface{}{
		"service_name", "processor-service",
		"lead_id", "L1",
		"task_id", "task-1",
	}, GetLogFields(ctx))
	assert.Equal(t, "L1", GetLeadID(ctx))
	assert.Empty(t, GetTraceID(ctx))
}

func TestEarlyLogFatalExits(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	l := &EarlyLog{out: &buf, exit: func(c int) { code = c }}

	l.Fatal("config %s missing", "leadflow.yaml")

	assert.Equal(t, 1, code)
	assert.Equal(t, "FATAL: config leadflow.yaml missing\n", buf.String())
}
