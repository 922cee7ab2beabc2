package triage

import (
	"regexp"
	"strings"
)

var (
	clauseBreak = regexp.MustCompile(`[.;!?\n]|\bbut\b|\band\b`)
	// a negation cue covers the rest of its clause up to the next comma
	negatedPhrase = regexp.MustCompile(`\b(?:no|without|denies|denied|never had|(?:do|does|did)(?: not|n't) have|haven't (?:had|got))\b[^,]*`)
)

// StripNegated removes negated symptom mentions ("no fever", "without
// shortness of breath") from lowercased text. Clause separators are kept so
// callers can still tell clauses apart.
func StripNegated(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range clauseBreak.FindAllStringIndex(text, -1) {
		b.WriteString(negatedPhrase.ReplaceAllString(text[last:loc[0]], ""))
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(negatedPhrase.ReplaceAllString(text[last:], ""))
	return b.String()
}
