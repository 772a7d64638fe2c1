package state

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrUnhandledEvent is returned by ParseEvent for well-formed events which do not affect State.
var ErrUnhandledEvent = errors.New("unhandled event")

// ParseEvent converts a server event into an Action. Understood events are:
//
//	{"type":"typing","op":"start|stop","sender":{"user_id":1},"recipients":[{"email":"a@x"}]}
//	{"type":"realm_user","op":"add","person":{"user_id":1,"email":"a@x","full_name":"A","avatar_url":""}}
func ParseEvent(raw []byte) (Action, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("ParseEvent: invalid JSON")
	}
	ev := gjson.ParseBytes(raw)
	if !ev.IsObject() {
		return nil, fmt.Errorf("ParseEvent: event is not an object")
	}
	evType := ev.Get("type").Str
	op := ev.Get("op").Str
	switch evType {
	case "typing":
		sender := ev.Get("sender.user_id")
		if sender.Type != gjson.Number {
			return nil, fmt.Errorf("ParseEvent: typing event missing sender.user_id")
		}
		recipients := ev.Get("recipients")
		if !recipients.IsArray() || len(recipients.Array()) == 0 {
			return nil, fmt.Errorf("ParseEvent: typing event missing recipients")
		}
		var emails []string
		for i, r := range recipients.Array() {
			email := r.Get("email")
			if email.Type != gjson.String || email.Str == "" {
				return nil, fmt.Errorf("ParseEvent: typing event recipient %d has no email", i)
			}
			emails = append(emails, email.Str)
		}
		switch op {
		case "start":
			return TypingStart{SenderID: sender.Int(), RecipientEmails: emails}, nil
		case "stop":
			return TypingStop{SenderID: sender.Int(), RecipientEmails: emails}, nil
		}
		return nil, fmt.Errorf("ParseEvent: unknown typing op %q", op)
	case "realm_user":
		if op != "add" {
			return nil, fmt.Errorf("%w: realm_user op %q", ErrUnhandledEvent, op)
		}
		person := ev.Get("person")
		id := person.Get("user_id")
		if id.Type != gjson.Number {
			return nil, fmt.Errorf("ParseEvent: realm_user add missing person.user_id")
		}
		return RealmUserAdd{
			User: User{
				ID:        id.Int(),
				Email:     person.Get("email").Str,
				FullName:  person.Get("full_name").Str,
				AvatarURL: person.Get("avatar_url").Str,
			},
		}, nil
	case "":
		return nil, fmt.Errorf("ParseEvent: event has no type")
	}
	return nil, fmt.Errorf("%w: type %q", ErrUnhandledEvent, evType)
}
