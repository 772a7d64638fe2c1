// Package narrow describes the conversation scope a client is looking at, e.g. all messages,
// a one-to-one conversation, a group conversation or a stream topic.
package narrow

import (
	"golang.org/x/exp/slices"
)

type Kind int

const (
	KindHome Kind = iota
	KindPrivate
	KindGroup
	KindStream
	KindTopic
	KindStarred
	KindMentioned
	KindSearch
)

func (k Kind) String() string {
	switch k {
	case KindHome:
		return "home"
	case KindPrivate:
		return "private"
	case KindGroup:
		return "group"
	case KindStream:
		return "stream"
	case KindTopic:
		return "topic"
	case KindStarred:
		return "starred"
	case KindMentioned:
		return "mentioned"
	case KindSearch:
		return "search"
	}
	return "unknown"
}

// Narrow is one of Home, Private, Group, Stream, Topic, Starred, Mentioned or Search.
type Narrow interface {
	Kind() Kind
}

// Home is every conversation.
type Home struct{}

// Private is a one-to-one conversation with Email.
type Private struct {
	Email string
}

// Group is a multi-party direct conversation. Emails are kept in the order the narrow
// was created with and may or may not include the local user.
type Group struct {
	Emails []string
}

type Stream struct {
	Name string
}

type Topic struct {
	Stream string
	Topic  string
}

type Starred struct{}

type Mentioned struct{}

type Search struct {
	Query string
}

func (Home) Kind() Kind      { return KindHome }
func (Private) Kind() Kind   { return KindPrivate }
func (Group) Kind() Kind     { return KindGroup }
func (Stream) Kind() Kind    { return KindStream }
func (Topic) Kind() Kind     { return KindTopic }
func (Starred) Kind() Kind   { return KindStarred }
func (Mentioned) Kind() Kind { return KindMentioned }
func (Search) Kind() Kind    { return KindSearch }

var HomeNarrow Narrow = Home{}

func PrivateNarrow(email string) Narrow {
	return Private{Email: email}
}

// GroupNarrow returns a group narrow over a copy of emails. A single participant is a
// private narrow, which is also what the filter codec reads it back as.
func GroupNarrow(emails []string) Narrow {
	if len(emails) == 1 {
		return Private{Email: emails[0]}
	}
	return Group{Emails: slices.Clone(emails)}
}

func StreamNarrow(name string) Narrow {
	return Stream{Name: name}
}

func TopicNarrow(stream, topic string) Narrow {
	return Topic{Stream: stream, Topic: topic}
}

func StarredNarrow() Narrow {
	return Starred{}
}

func MentionedNarrow() Narrow {
	return Mentioned{}
}

func SearchNarrow(query string) Narrow {
	return Search{Query: query}
}

// IsPrivateOrGroup returns true if n is a direct conversation, which are the only
// narrows typing notifications are tracked for.
func IsPrivateOrGroup(n Narrow) bool {
	switch n.(type) {
	case Private, Group:
		return true
	}
	return false
}

// Recipients returns the participants of a private or group narrow, excluding ownEmail
// from group narrows. Returns false for every other kind of narrow.
func Recipients(n Narrow, ownEmail string) ([]string, bool) {
	switch v := n.(type) {
	case Private:
		return []string{v.Email}, true
	case Group:
		return RecipientsSansMe(v.Emails, ownEmail), true
	}
	return nil, false
}

// RecipientsSansMe removes ownEmail from emails. A conversation with only yourself keeps
// ownEmail so it still has a key.
func RecipientsSansMe(emails []string, ownEmail string) []string {
	recipients := make([]string, 0, len(emails))
	for _, email := range emails {
		if email == ownEmail {
			continue
		}
		recipients = append(recipients, email)
	}
	if len(recipients) == 0 && len(emails) > 0 {
		return []string{ownEmail}
	}
	return recipients
}

// Equal returns true if a and b describe the same narrow. Group participant order is
// ignored.
func Equal(a, b Narrow) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Group:
		bv := b.(Group)
		return CanonicalKey(av.Emails) == CanonicalKey(bv.Emails)
	default:
		return a == b
	}
}
