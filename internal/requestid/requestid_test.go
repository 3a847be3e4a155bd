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

func TestLookup(t *testing.T) {
	_, ok := Lookup(context.Background())
	assert.False(t, ok)

	id, ok := Lookup(WithRequestID(context.Background(), "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	_, ok = Lookup(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	l := Logger(WithRequestID(context.Background(), "test-123"), base)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"test-123"`)

	buf.Reset()
	l = Logger(context.Background(), base)
	l.Info().Msg("hello")
	assert.NotContains(t, buf.String(), "request_id")
}
