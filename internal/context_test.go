package internal

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDecorateLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	ctx := RequestContext(context.Background())
	SetRequestContextOwnEmail(ctx, "me@example.com")
	SetRequestContextTypingInfo(ctx, "john@example.com", 1, 0)
	DecorateLogger(ctx, l.Info()).Msg("")

	assert.Equal(t, `{"level":"info","u":"me@example.com","k":"john@example.com","t":1}`+"\n", buf.String())
}

func TestDecorateLoggerWithoutRequestContext(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := context.Background()
	SetRequestContextOwnEmail(ctx, "me@example.com") // no-op
	DecorateLogger(ctx, l.Info()).Msg("")
	assert.Equal(t, `{"level":"info"}`+"\n", buf.String())
}
