// Package selectors derives view state from a state.State snapshot.
package selectors

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zulip/typingsync/internal"
	"github.com/zulip/typingsync/narrow"
	"github.com/zulip/typingsync/state"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

var unresolvedTypingUsers = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "typingsync",
	Subsystem: "selectors",
	Name:      "unresolved_typing_users_total",
	Help:      "Number of typing user ids which had no matching user and were skipped.",
})

func init() {
	prometheus.MustRegister(unresolvedTypingUsers)
}

// GetCurrentTypingUsers returns the users typing in the active narrow, in the order they
// started typing. The bool is false if the active narrow is not a private or group
// conversation, or if nobody has a typing entry for it. A matched entry with nobody in it
// returns an empty, non-nil slice and true.
//
// Ids which do not resolve to a known user are skipped and reported.
func GetCurrentTypingUsers(s *state.State) ([]state.User, bool) {
	return GetCurrentTypingUsersCtx(context.Background(), s)
}

// GetCurrentTypingUsersCtx is GetCurrentTypingUsers with a context, used to report
// unresolved users against the caller's Sentry hub and span.
func GetCurrentTypingUsersCtx(ctx context.Context, s *state.State) ([]state.User, bool) {
	res := currentTypingUsers(ctx, s)
	return res.users, res.ok
}

// currentTypingUsers also keeps the narrow key and unresolved count, so a memoised result
// can decorate later requests the same way.
func currentTypingUsers(ctx context.Context, s *state.State) typingResult {
	key, ok := narrow.KeyFor(state.GetActiveNarrow(s), state.GetOwnEmail(s))
	if !ok {
		return typingResult{}
	}
	ids, ok := state.GetTyping(s)[key]
	if !ok {
		return typingResult{}
	}
	res := typingResult{
		users: make([]state.User, 0, len(ids)),
		ok:    true,
		key:   key,
	}
	for _, id := range ids {
		u, exists := state.GetUserByID(s, id)
		if !exists {
			res.unresolved++
			reportUnresolved(ctx, key, id)
			continue
		}
		res.users = append(res.users, u)
	}
	res.setRequestContext(ctx)
	return res
}

func reportUnresolved(ctx context.Context, key string, id int64) {
	unresolvedTypingUsers.Inc()
	logger.Warn().Str("key", key).Int64("user_id", id).Msg("GetCurrentTypingUsers: typing user id has no matching user, skipping")
	internal.Logf(ctx, "selectors", "unresolved typing user %d in %s", id, key)
	internal.ReportAnomaly(ctx, "typing user id has no matching user", map[string]interface{}{
		"key":     key,
		"user_id": id,
	})
}

// typingAttributes describes a typing result for tracing.
func typingAttributes(users []state.User, ok bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool("applicable", ok),
		attribute.Int("num_typing", len(users)),
	}
}
