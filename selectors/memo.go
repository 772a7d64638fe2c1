package selectors

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zulip/typingsync/internal"
	"github.com/zulip/typingsync/state"
)

// the typing result depends on every slice of state
type typingMemoKey state.Versions

type typingResult struct {
	users      []state.User
	ok         bool
	key        string
	unresolved int
}

func (r typingResult) setRequestContext(ctx context.Context) {
	if r.ok {
		internal.SetRequestContextTypingInfo(ctx, r.key, len(r.users), r.unresolved)
	}
}

// TypingSelector memoises GetCurrentTypingUsersCtx on the versions of the state it is
// given. Results are shared between callers and must not be modified. All states passed to
// one TypingSelector must come from the same lineage of Reduce calls, as versions are only
// comparable within a lineage.
type TypingSelector struct {
	cache       *ttlcache.Cache[typingMemoKey, typingResult]
	evaluations *prometheus.CounterVec
}

// NewTypingSelector makes a TypingSelector which forgets results after ttl. Call Start to
// begin evicting expired results.
func NewTypingSelector(ttl time.Duration) *TypingSelector {
	return &TypingSelector{
		cache: ttlcache.New[typingMemoKey, typingResult](
			ttlcache.WithTTL[typingMemoKey, typingResult](ttl),
			ttlcache.WithCapacity[typingMemoKey, typingResult](64),
		),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typingsync",
			Subsystem: "selectors",
			Name:      "typing_evaluations_total",
			Help:      "Number of typing selector calls, by whether the result was memoised.",
		}, []string{"memoised"}),
	}
}

// RegisterPrometheus registers the selector's metrics with the default registry.
func (ts *TypingSelector) RegisterPrometheus() {
	prometheus.MustRegister(ts.evaluations)
}

func (ts *TypingSelector) UnregisterPrometheus() {
	prometheus.Unregister(ts.evaluations)
}

// Start evicting expired results. Blocks until Stop is called.
func (ts *TypingSelector) Start() {
	ts.cache.Start()
}

func (ts *TypingSelector) Stop() {
	ts.cache.Stop()
}

func (ts *TypingSelector) Select(ctx context.Context, s *state.State) ([]state.User, bool) {
	ctx, span := internal.StartSpan(ctx, "TypingSelector.Select")
	defer span.End()
	key := typingMemoKey(s.Versions)
	if item := ts.cache.Get(key); item != nil {
		ts.evaluations.WithLabelValues("true").Inc()
		res := item.Value()
		res.setRequestContext(ctx)
		span.SetAttributes(typingAttributes(res.users, res.ok)...)
		return res.users, res.ok
	}
	ts.evaluations.WithLabelValues("false").Inc()
	res := currentTypingUsers(ctx, s)
	ts.cache.Set(key, res, ttlcache.DefaultTTL)
	span.SetAttributes(typingAttributes(res.users, res.ok)...)
	return res.users, res.ok
}
