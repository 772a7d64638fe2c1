package state

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/zulip/typingsync/internal"
	"github.com/zulip/typingsync/narrow"
)

// Action describes a change to State.
type Action interface {
	Type() string
}

type SwitchNarrow struct {
	Narrow narrow.Narrow
}

// AccountSwitch makes Account the active account, adding it if it is not known yet.
type AccountSwitch struct {
	Account Account
}

// RealmInit replaces the user list, e.g. after the initial register call.
type RealmInit struct {
	Users []User
}

type RealmUserAdd struct {
	User User
}

// TypingStart is sent when SenderID starts typing to RecipientEmails. RecipientEmails
// may include the local user.
type TypingStart struct {
	SenderID        int64
	RecipientEmails []string
}

type TypingStop struct {
	SenderID        int64
	RecipientEmails []string
}

func (SwitchNarrow) Type() string  { return "SwitchNarrow" }
func (AccountSwitch) Type() string { return "AccountSwitch" }
func (RealmInit) Type() string     { return "RealmInit" }
func (RealmUserAdd) Type() string  { return "RealmUserAdd" }
func (TypingStart) Type() string   { return "TypingStart" }
func (TypingStop) Type() string    { return "TypingStop" }

// Reduce returns the state after applying a to s. s is never modified. If a does not change
// anything, s itself is returned so callers can compare pointers to detect no-ops.
func Reduce(s *State, a Action) *State {
	switch act := a.(type) {
	case SwitchNarrow:
		n := act.Narrow
		if n == nil {
			n = narrow.HomeNarrow
		}
		if narrow.Equal(GetActiveNarrow(s), n) {
			return s
		}
		next := *s
		next.Narrow = n
		next.Versions.Narrow++
		return &next
	case AccountSwitch:
		return reduceAccountSwitch(s, act.Account)
	case RealmInit:
		next := *s
		next.Users = NewUserList(act.Users)
		next.Versions.Users++
		return &next
	case RealmUserAdd:
		if existing, ok := s.Users[act.User.ID]; ok && existing == act.User {
			return s
		}
		users := maps.Clone(s.Users)
		if users == nil {
			users = UserList{}
		}
		users[act.User.ID] = act.User
		next := *s
		next.Users = users
		next.Versions.Users++
		return &next
	case TypingStart:
		return reduceTypingStart(s, act)
	case TypingStop:
		return reduceTypingStop(s, act)
	}
	logger.Warn().Str("action", a.Type()).Msg("Reduce: unknown action")
	return s
}

func reduceAccountSwitch(s *State, acc Account) *State {
	if len(s.Accounts) > 0 && s.Accounts[0] == acc {
		return s
	}
	accounts := make([]Account, 0, len(s.Accounts)+1)
	accounts = append(accounts, acc)
	for _, existing := range s.Accounts {
		if existing.Email == acc.Email && existing.Realm == acc.Realm {
			continue
		}
		accounts = append(accounts, existing)
	}
	next := *s
	next.Accounts = accounts
	next.Versions.Accounts++
	// typing keys are relative to the local user, so they mean nothing for another account
	if len(s.Typing) > 0 {
		next.Typing = TypingState{}
		next.Versions.Typing++
	}
	return &next
}

func typingKey(s *State, recipients []string) string {
	return narrow.CanonicalKey(narrow.RecipientsSansMe(recipients, GetOwnEmail(s)))
}

func reduceTypingStart(s *State, act TypingStart) *State {
	key := typingKey(s, act.RecipientEmails)
	previous := s.Typing[key]
	if slices.Contains(previous, act.SenderID) {
		return s
	}
	typing := maps.Clone(s.Typing)
	if typing == nil {
		typing = TypingState{}
	}
	ids := make([]int64, 0, len(previous)+1)
	ids = append(ids, previous...)
	typing[key] = append(ids, act.SenderID)
	next := *s
	next.Typing = typing
	next.Versions.Typing++
	return &next
}

func reduceTypingStop(s *State, act TypingStop) *State {
	key := typingKey(s, act.RecipientEmails)
	previous, ok := s.Typing[key]
	if !ok {
		return s
	}
	i := slices.Index(previous, act.SenderID)
	if i < 0 {
		return s
	}
	typing := maps.Clone(s.Typing)
	if len(previous) == 1 {
		delete(typing, key)
	} else {
		ids := make([]int64, 0, len(previous)-1)
		ids = append(ids, previous[:i]...)
		ids = append(ids, previous[i+1:]...)
		internal.Assert("typing entry is not empty after stop", len(ids) > 0)
		typing[key] = ids
	}
	next := *s
	next.Typing = typing
	next.Versions.Typing++
	return &next
}
