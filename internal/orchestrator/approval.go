package orchestrator

import (
	"regexp"
	"strings"
)

var signOffToken = regexp.MustCompile(`(?i)@@SIGNED OFF@@`)

// isApproved reports whether content contains the literal approval token
// not immediately preceded by a negation ("not", "no", "never", each
// case-insensitive, with whitespace allowed between the negation word and
// the token). Go's regexp package is RE2-based and has no lookbehind
// support, so the equivalent negative-lookbehind check is hand-written:
// find every occurrence of the token, then inspect the text immediately
// before it.
func isApproved(content string) bool {
	for _, loc := range signOffToken.FindAllStringIndex(content, -1) {
		if !negatedImmediatelyBefore(content[:loc[0]]) {
			return true
		}
	}
	return false
}

func negatedImmediatelyBefore(prefix string) bool {
	lower := strings.ToLower(prefix)
	trimmed := strings.TrimRight(lower, " \t\r\n")
	strippedWhitespace := len(lower) > len(trimmed)

	switch {
	case strings.HasSuffix(trimmed, "not"):
		return true // NOT\s* — zero or more whitespace, so adjacency alone negates
	case strippedWhitespace && strings.HasSuffix(trimmed, "no"):
		return true // NO\s+ — requires at least one whitespace character
	case strippedWhitespace && strings.HasSuffix(trimmed, "never"):
		return true // NEVER\s+ — requires at least one whitespace character
	default:
		return false
	}
}
