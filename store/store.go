// Package store holds the current state snapshot and applies actions to it.
package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/zulip/typingsync/internal"
	"github.com/zulip/typingsync/pubsub"
	"github.com/zulip/typingsync/state"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Store serialises Dispatch calls and publishes each new snapshot to pubsub.ChanState.
// Snapshots returned by State are immutable and can be read without locking.
type Store struct {
	mu       *sync.Mutex
	current  atomic.Pointer[state.State]
	notifier pubsub.Notifier
}

// New returns a store starting at initial, or an empty state if initial is nil. notifier
// may be nil, in which case nobody is told about changes.
func New(initial *state.State, notifier pubsub.Notifier) *Store {
	if initial == nil {
		initial = state.NewState()
	}
	s := &Store{
		mu:       &sync.Mutex{},
		notifier: notifier,
	}
	s.current.Store(initial)
	return s
}

func (s *Store) State() *state.State {
	return s.current.Load()
}

// Dispatch applies a to the current state and returns the resulting state. Listeners are
// only notified if the state changed. The state is updated even if notifying fails.
func (s *Store) Dispatch(ctx context.Context, a state.Action) (*state.State, error) {
	ctx, span := internal.StartSpan(ctx, "Store.Dispatch")
	defer span.End()
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current.Load()
	next := state.Reduce(prev, a)
	if next == prev {
		internal.Logf(ctx, "store", "%s was a no-op", a.Type())
		return prev, nil
	}
	s.current.Store(next)
	if s.notifier == nil {
		return next, nil
	}
	// notify under the lock so listeners see changes in dispatch order
	err := s.notifier.Notify(pubsub.ChanState, &pubsub.StateChanged{
		Action:   a.Type(),
		Previous: prev,
		Current:  next,
	})
	if err != nil {
		logger.Err(err).Str("action", a.Type()).Msg("Dispatch: failed to notify state change")
		return next, fmt.Errorf("Dispatch %s: %w", a.Type(), err)
	}
	return next, nil
}

// DispatchAll applies each action in order, stopping at the first notification error.
func (s *Store) DispatchAll(ctx context.Context, actions []state.Action) (*state.State, error) {
	cur := s.State()
	for _, a := range actions {
		var err error
		cur, err = s.Dispatch(ctx, a)
		if err != nil {
			return cur, err
		}
	}
	return cur, nil
}

// Replace swaps in a whole new state, e.g. one restored from a snapshot. Its versions are
// moved past the current ones so memoised results for the old lineage are not reused.
func (s *Store) Replace(ctx context.Context, replacement *state.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current.Load()
	next := *replacement
	next.Versions = state.Versions{
		Accounts: after(prev.Versions.Accounts, replacement.Versions.Accounts),
		Narrow:   after(prev.Versions.Narrow, replacement.Versions.Narrow),
		Typing:   after(prev.Versions.Typing, replacement.Versions.Typing),
		Users:    after(prev.Versions.Users, replacement.Versions.Users),
	}
	s.current.Store(&next)
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(pubsub.ChanState, &pubsub.StateChanged{
		Action:   "Replace",
		Previous: prev,
		Current:  &next,
	})
}

func after(a, b uint64) uint64 {
	if a > b {
		return a + 1
	}
	return b + 1
}
