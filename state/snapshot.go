package state

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/exp/maps"

	"github.com/zulip/typingsync/narrow"
)

// Snapshot is the serialisable form of State.
type Snapshot struct {
	Accounts []Account       `json:"accounts"`
	Narrow   []narrow.Filter `json:"narrow"`
	Typing   TypingState     `json:"typing"`
	Users    []User          `json:"users"`
	Versions Versions        `json:"versions"`
}

// ToSnapshot returns the serialisable form of s. Users are sorted by id.
func ToSnapshot(s *State) Snapshot {
	users := maps.Values(s.Users)
	sortUsers(users)
	accounts := make([]Account, len(s.Accounts))
	for i, acc := range s.Accounts {
		acc.APIKey = ""
		accounts[i] = acc
	}
	typing := s.Typing
	if typing == nil {
		typing = TypingState{}
	}
	return Snapshot{
		Accounts: accounts,
		Narrow:   narrow.ToFilters(GetActiveNarrow(s)),
		Typing:   typing,
		Users:    users,
		Versions: s.Versions,
	}
}

// FromSnapshot is the inverse of ToSnapshot.
func FromSnapshot(snap Snapshot) (*State, error) {
	n, err := narrow.FromFilters(snap.Narrow)
	if err != nil {
		return nil, fmt.Errorf("FromSnapshot: %w", err)
	}
	typing := snap.Typing
	if typing == nil {
		typing = TypingState{}
	}
	return &State{
		Accounts: snap.Accounts,
		Narrow:   n,
		Typing:   typing,
		Users:    NewUserList(snap.Users),
		Versions: snap.Versions,
	}, nil
}

var cborEncMode, _ = cbor.CanonicalEncOptions().EncMode()

// EncodeSnapshot returns the canonical CBOR encoding of s.
func EncodeSnapshot(s *State) ([]byte, error) {
	return cborEncMode.Marshal(ToSnapshot(s))
}

func DecodeSnapshot(data []byte) (*State, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("DecodeSnapshot: %w", err)
	}
	return FromSnapshot(snap)
}
