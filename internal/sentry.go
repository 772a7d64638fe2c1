package internal

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// GetSentryHubFromContextOrDefault is a version of sentry.GetHubFromContext which
// automatically falls back to sentry.CurrentHub if the given context has not been
// attached a hub.
//
// The returned pointer is always nonnil.
func GetSentryHubFromContextOrDefault(ctx context.Context) *sentry.Hub {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return hub
}

// ReportAnomaly sends msg to Sentry with the given extra context attached. It is
// a no-op when Sentry has not been configured.
func ReportAnomaly(ctx context.Context, msg string, extra map[string]interface{}) {
	hub := GetSentryHubFromContextOrDefault(ctx)
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetContext("typingd", extra)
		hub.CaptureMessage(msg)
	})
}
