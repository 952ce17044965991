// Package consolidation implements the duplicate-detection and merge
// pipeline: a transactional repository over the Store plus the business
// policy layered above it.
package consolidation

import (
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// Tokens of length <= minTokenLength are dropped; only the first maxTokens
// survivors feed the duplicate-candidate match.
const (
	minTokenLength = 3
	maxTokens      = 5
)

var english = stopwords.MustGet("en")

// canonicalize lowercases content and collapses every run of non-letter,
// non-digit characters into a single space. Entity-alias joiners like
// apostrophes and hyphens are irrelevant to duplicate-token matching.
func canonicalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	lastWasSpace := true
	for _, r := range s {
		c := unicode.ToLower(r)
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			sb.WriteRune(c)
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			sb.WriteRune(' ')
			lastWasSpace = true
		}
	}
	out := sb.String()
	return strings.TrimRight(out, " ")
}

// tokenize splits content into candidate duplicate-detection tokens: drop
// anything length <= 3 or a stopword, keep the first 5 survivors in order.
func tokenize(content string) []string {
	words := strings.Fields(canonicalize(content))
	out := make([]string, 0, maxTokens)
	for _, w := range words {
		if len(w) <= minTokenLength {
			continue
		}
		if english.Contains(w) {
			continue
		}
		out = append(out, w)
		if len(out) == maxTokens {
			break
		}
	}
	return out
}

// buildMatcher compiles an Aho-Corasick automaton over tokens so a single
// O(n) scan over each candidate row's content decides OR-membership,
// instead of one LIKE '%token%' round trip per token.
func buildMatcher(tokens []string) (*ahocorasick.Automaton, error) {
	return ahocorasick.NewBuilder().
		AddStrings(tokens).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
}

// matchesAny reports whether content contains at least one of the tokens
// the automaton was built from.
func matchesAny(ac *ahocorasick.Automaton, content string) bool {
	haystack := []byte(canonicalize(content))
	return len(ac.FindAllOverlapping(haystack)) > 0
}
