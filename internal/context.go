package internal

import (
	"context"

	"github.com/rs/zerolog"
)

type ctx string

var (
	ctxData ctx = "typingd_data"
)

// logging metadata for a single request
type data struct {
	ownEmail     string
	narrowKey    string
	numTyping    int
	numEvents    int
	numUnresolve int
}

// prepare a request context so it can contain typingd info. Contexts which already have
// request info are returned as-is.
func RequestContext(ctx context.Context) context.Context {
	if ctx.Value(ctxData) != nil {
		return ctx
	}
	d := &data{
		numTyping: -1,
	}
	return context.WithValue(ctx, ctxData, d)
}

// add the viewer to this request context. Need to have called RequestContext first.
func SetRequestContextOwnEmail(ctx context.Context, email string) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.ownEmail = email
}

func SetRequestContextTypingInfo(ctx context.Context, narrowKey string, numTyping, numUnresolved int) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.narrowKey = narrowKey
	da.numTyping = numTyping
	da.numUnresolve = numUnresolved
}

func SetRequestContextNumEvents(ctx context.Context, numEvents int) {
	d := ctx.Value(ctxData)
	if d == nil {
		return
	}
	da := d.(*data)
	da.numEvents = numEvents
}

func DecorateLogger(ctx context.Context, l *zerolog.Event) *zerolog.Event {
	d := ctx.Value(ctxData)
	if d == nil {
		return l
	}
	da := d.(*data)
	if da.ownEmail != "" {
		l = l.Str("u", da.ownEmail)
	}
	if da.narrowKey != "" {
		l = l.Str("k", da.narrowKey)
	}
	if da.numTyping >= 0 {
		l = l.Int("t", da.numTyping)
	}
	if da.numUnresolve > 0 {
		l = l.Int("x", da.numUnresolve)
	}
	if da.numEvents > 0 {
		l = l.Int("e", da.numEvents)
	}
	return l
}
