package state

import (
	"golang.org/x/exp/slices"

	"github.com/zulip/typingsync/narrow"
)

// User is a known member of the realm.
type User struct {
	ID        int64  `json:"user_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// Account is a logged-in session. The first account in State.Accounts is the active one.
type Account struct {
	Email  string `json:"email"`
	Realm  string `json:"realm"`
	APIKey string `json:"api_key,omitempty"`
}

// TypingState maps a canonical conversation key (see narrow.CanonicalKey) to the ids of the
// users currently typing in that conversation, in the order they started typing.
type TypingState map[string][]int64

// UserList is every known user keyed by id.
type UserList map[int64]User

func NewUserList(users []User) UserList {
	ul := make(UserList, len(users))
	for _, u := range users {
		ul[u.ID] = u
	}
	return ul
}

// Versions are bumped whenever the corresponding slice of State is replaced. Two states with
// equal versions for a slice hold the same data for that slice.
type Versions struct {
	Accounts uint64 `json:"accounts"`
	Narrow   uint64 `json:"narrow"`
	Typing   uint64 `json:"typing"`
	Users    uint64 `json:"users"`
}

// State is an immutable snapshot of everything the client knows. Never modify a State or
// anything reachable from it: use Reduce to derive a new one.
type State struct {
	Accounts []Account
	Narrow   narrow.Narrow
	Typing   TypingState
	Users    UserList
	Versions Versions
}

// NewState returns an empty state viewing the home narrow.
func NewState() *State {
	return &State{
		Narrow: narrow.HomeNarrow,
		Typing: TypingState{},
		Users:  UserList{},
	}
}

func GetActiveNarrow(s *State) narrow.Narrow {
	if s.Narrow == nil {
		return narrow.HomeNarrow
	}
	return s.Narrow
}

// GetOwnEmail returns the email of the active account, or "" if there is none.
func GetOwnEmail(s *State) string {
	if len(s.Accounts) == 0 {
		return ""
	}
	return s.Accounts[0].Email
}

func GetTyping(s *State) TypingState {
	return s.Typing
}

func GetUsers(s *State) UserList {
	return s.Users
}

func GetUserByID(s *State, id int64) (User, bool) {
	u, ok := s.Users[id]
	return u, ok
}

func sortUsers(users []User) {
	slices.SortFunc(users, func(a, b User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
