package state

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/zulip/typingsync/narrow"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewState()
	s = Reduce(s, AccountSwitch{Account: Account{Email: ownEmail, Realm: "https://chat.example.com", APIKey: "secret"}})
	s = Reduce(s, RealmInit{Users: []User{
		{ID: 2, Email: "mark@example.com", FullName: "Mark Dark"},
		{ID: 1, Email: "john@example.com", FullName: "John Doe"},
	}})
	s = Reduce(s, SwitchNarrow{Narrow: narrow.GroupNarrow([]string{"mark@example.com", "john@example.com"})})
	s = Reduce(s, TypingStart{SenderID: 2, RecipientEmails: []string{"john@example.com", "mark@example.com"}})

	data, err := EncodeSnapshot(s)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %s", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %s", err)
	}
	if got.Accounts[0].APIKey != "" {
		t.Errorf("snapshot leaked the API key")
	}
	want := *s
	want.Accounts = []Account{{Email: ownEmail, Realm: "https://chat.example.com"}}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("got %+v want %+v", *got, want)
	}

	// canonical encoding is stable
	again, err := EncodeSnapshot(got)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %s", err)
	}
	if !bytes.Equal(data, again) {
		t.Errorf("encoding is not deterministic")
	}
}

func TestToSnapshotSortsUsers(t *testing.T) {
	s := Reduce(NewState(), RealmInit{Users: []User{{ID: 3}, {ID: 1}, {ID: 2}}})
	snap := ToSnapshot(s)
	for i, u := range snap.Users {
		if u.ID != int64(i+1) {
			t.Fatalf("users not sorted: %v", snap.Users)
		}
	}
}
