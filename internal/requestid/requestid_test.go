package requestid

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	ctx, id := New(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	id := FromContext(context.Background())
	assert.NotEmpty(t, id) // generates new UUID
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-123")
	assert.Equal(t, "test-123", FromContext(ctx))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithRequestID(context.Background(), "req-42")
	l := Logger(ctx, logger)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)

	buf.Reset()
	l = Logger(context.Background(), logger)
	l.Info().Msg("hello")
	assert.NotContains(t, buf.String(), "request_id")
}
