// Package eval runs post-generation quality checks. Flags are advisory:
// they annotate the query log and debug output but never modify or
// block the response.
package eval

import (
	"regexp"
	"strings"

	"github.com/clearpath-ai/clearpath-rag/internal/store"
)

// Flag names attached to a response.
const (
	FlagNoContext     = "no_context_warning"
	FlagRefusal       = "refusal_detected"
	FlagHallucination = "potential_hallucination"
)

// refusalPhrases are matched as case-insensitive substrings of the
// response. The list is frozen.
var refusalPhrases = []string{
	"i cannot",
	"i can't",
	"i don't have information",
	"i don't have enough information",
	"i do not have",
	"i'm not sure",
	"i am not sure",
	"i'm unable to",
	"i am unable to",
	"outside my knowledge",
	"beyond my scope",
	"not able to help",
	"cannot assist with",
	"no information available",
	"unfortunately, i don't",
	"i apologize, but i",
	"i'm sorry, but i don't",
}

// allowedTerms are proper nouns the assistant may use without support
// from the retrieved context.
var allowedTerms = map[string]bool{
	"Clearpath":           true,
	"Clearpath Assistant": true,
}

var (
	priceRE      = regexp.MustCompile(`(?i)\$\d+(?:\.\d{2})?(?:\s*/\s*(?:month|year|mo|yr))?`)
	properNounRE = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
)

// Evaluate runs the three checks over a response and its retrieval
// context, returning the triggered flags in a fixed order. Each flag
// appears at most once.
func Evaluate(responseText string, retrievalCount int, chunks []store.ChunkMeta) []string {
	flags := []string{}

	if retrievalCount == 0 {
		flags = append(flags, FlagNoContext)
	}
	if detectRefusal(responseText) {
		flags = append(flags, FlagRefusal)
	}
	if detectHallucination(responseText, chunks) {
		flags = append(flags, FlagHallucination)
	}

	return flags
}

func detectRefusal(responseText string) bool {
	lower := strings.ToLower(responseText)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// detectHallucination reports whether the response states a price or a
// multi-word proper-noun phrase that the retrieved chunks do not
// contain. Both comparisons are exact-string set membership over the
// regex matches; a price written differently from the chunks counts as
// unsupported.
func detectHallucination(responseText string, chunks []store.ChunkMeta) bool {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	context := strings.Join(texts, " ")

	contextPrices := make(map[string]bool)
	for _, p := range priceRE.FindAllString(context, -1) {
		contextPrices[p] = true
	}
	for _, p := range priceRE.FindAllString(responseText, -1) {
		if !contextPrices[p] {
			return true
		}
	}

	contextNouns := make(map[string]bool)
	for _, n := range properNounRE.FindAllString(context, -1) {
		contextNouns[n] = true
	}
	for _, phrase := range properNounRE.FindAllString(responseText, -1) {
		if allowedTerms[phrase] || contextNouns[phrase] {
			continue
		}
		return true
	}

	return false
}
