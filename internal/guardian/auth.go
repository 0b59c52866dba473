package guardian

import (
	"regexp"
	"strings"
)

var nonSpeakerRunes = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// NormalizeSpeaker drops every rune that is not a letter, digit, underscore
// or whitespace and lowercases the rest. It is the identity used for
// authorization and rate limiting.
func NormalizeSpeaker(s string) string {
	return strings.ToLower(nonSpeakerRunes.ReplaceAllString(s, ""))
}

// AllowList authorizes speakers by name fragment. An empty list authorizes
// everyone.
type AllowList struct {
	fragments []string
}

// ParseAllowList splits a comma-separated list.
func ParseAllowList(csv string) AllowList {
	return NewAllowList(strings.Split(csv, ",")...)
}

func NewAllowList(fragments ...string) AllowList {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			out = append(out, f)
		}
	}
	return AllowList{fragments: out}
}

// Open reports whether the list is empty (every speaker authorized).
func (a AllowList) Open() bool { return len(a.fragments) == 0 }

func (a AllowList) Fragments() []string { return append([]string(nil), a.fragments...) }

// Authorized reports whether any fragment is a substring of the normalized
// speaker.
func (a AllowList) Authorized(speaker string) bool {
	if a.Open() {
		return true
	}
	name := NormalizeSpeaker(speaker)
	for _, f := range a.fragments {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}
