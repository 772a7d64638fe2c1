package narrow

import (
	"strings"

	"golang.org/x/exp/slices"
)

// KeySeparator joins participant emails in a canonical conversation key.
const KeySeparator = ","

// CanonicalKey is the key typing state is indexed by: the participant emails sorted
// lexicographically and comma-joined. emails is not modified. Both the producer of typing
// state and the typing lookup for a narrow must go through this function.
func CanonicalKey(emails []string) string {
	sorted := slices.Clone(emails)
	slices.Sort(sorted)
	return strings.Join(sorted, KeySeparator)
}

// KeyFor returns the canonical conversation key for a private or group narrow as seen by
// ownEmail. Returns false for every other kind of narrow.
func KeyFor(n Narrow, ownEmail string) (string, bool) {
	recipients, ok := Recipients(n, ownEmail)
	if !ok {
		return "", false
	}
	return CanonicalKey(recipients), true
}

// SplitKey is the inverse of CanonicalKey.
func SplitKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, KeySeparator)
}
