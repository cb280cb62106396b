package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := l.WithContext(context.Background())
	ctx = SetCycleID(ctx, "cycle-1")
	With(Fields{FieldWrites: 2}).Info(ctx, "cycle %s", "done")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cycle done", line["message"])
	assert.Equal(t, "cycle-1", line[FieldCycleID])
	assert.Equal(t, float64(2), line[FieldWrites])
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "cycle-1", GetCycleID(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}
