// Package router classifies queries as simple or complex to pick the
// generation model and token budget. Classification is a fixed decision
// tree over surface features of the query text; no model call is made,
// so routing is deterministic and free.
package router

import (
	"fmt"
	"regexp"
	"strings"
)

// Classification is the routing outcome.
type Classification string

const (
	Simple  Classification = "simple"
	Complex Classification = "complex"
)

// complexityKeywords are matched as whole words, case-insensitive.
// The set is frozen; routing behavior is part of the engine's contract.
var complexityKeywords = []string{
	"compare", "comparison", "difference", "differences", "versus", "vs",
	"integrate", "integration", "configure", "configuration",
	"migrate", "migration", "troubleshoot", "troubleshooting",
	"architecture", "workflow", "optimize", "optimization",
	"analyze", "analysis", "strategy", "strategies",
	"compliance", "security", "audit", "enterprise",
	"scalability", "performance", "benchmark", "custom", "advanced",
	"multiple", "several", "complex", "detailed", "comprehensive",
	"explain how", "walk me through", "step by step", "in depth",
}

// ambiguityMarkers are matched as case-insensitive substrings.
var ambiguityMarkers = []string{
	"it depends", "what if", "hypothetically", "in general",
	"is it possible", "can you explain", "could you elaborate",
	"what are the pros and cons", "trade-off", "tradeoff",
	"best practice", "best practices", "recommend", "recommendation",
	"should i", "which one", "what would",
}

// complaintMarkers are matched as case-insensitive substrings.
var complaintMarkers = []string{
	"not working", "broken", "bug", "issue", "problem", "error",
	"frustrated", "disappointed", "unacceptable", "terrible", "worst",
	"angry", "complaint", "escalate", "refund", "cancel", "cancellation",
	"speak to manager", "supervisor",
}

// comparisonPatterns detect explicit comparison phrasing.
var comparisonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bvs\.?\b`),
	regexp.MustCompile(`(?i)\bversus\b`),
	regexp.MustCompile(`(?i)\bcompared?\s+to\b`),
	regexp.MustCompile(`(?i)\bdifference\s+between\b`),
	regexp.MustCompile(`(?i)\bbetter\s+than\b`),
	regexp.MustCompile(`(?i)\bworse\s+than\b`),
	regexp.MustCompile(`(?i)\bor\b.*\bor\b`),
}

var (
	sentenceEndRE    = regexp.MustCompile(`[.?!](\s|$)`)
	complexityWordRE = buildKeywordRegex(complexityKeywords)
)

// buildKeywordRegex compiles the keyword set into one alternation with
// word boundaries. Multi-word entries keep their internal spaces.
func buildKeywordRegex(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Features are the surface signals extracted from a query.
type Features struct {
	WordCount             int
	CharCount             int
	QuestionCount         int
	SentenceCount         int
	HasComplexityKeywords bool
	HasAmbiguityMarkers   bool
	HasComplaintMarkers   bool
	HasComparisonPattern  bool
}

// ExtractFeatures computes routing features from the raw query.
func ExtractFeatures(query string) Features {
	lower := strings.ToLower(query)

	return Features{
		WordCount:             len(strings.Fields(query)),
		CharCount:             len(query),
		QuestionCount:         strings.Count(query, "?"),
		SentenceCount:         len(sentenceEndRE.FindAllString(query, -1)),
		HasComplexityKeywords: complexityWordRE.MatchString(query),
		HasAmbiguityMarkers:   containsAny(lower, ambiguityMarkers),
		HasComplaintMarkers:   containsAny(lower, complaintMarkers),
		HasComparisonPattern:  matchesAny(query, comparisonPatterns),
	}
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Classify routes a query through the decision tree. First match wins;
// every input lands on exactly one of the two outcomes.
func Classify(query string) Classification {
	f := ExtractFeatures(query)

	if f.WordCount <= 3 && f.QuestionCount <= 1 && !f.HasComplexityKeywords {
		return Simple
	}
	if f.HasComplaintMarkers {
		return Complex
	}
	if f.QuestionCount >= 3 {
		return Complex
	}
	if f.HasComparisonPattern {
		return Complex
	}

	score := 0
	if f.HasComplexityKeywords {
		score += 2
	}
	if f.HasAmbiguityMarkers {
		score += 2
	}
	if f.WordCount > 40 {
		score++
	}
	if f.SentenceCount >= 3 {
		score++
	}
	if score >= 2 {
		return Complex
	}

	if f.WordCount > 25 && f.HasAmbiguityMarkers {
		return Complex
	}

	return Simple
}

// String implements fmt.Stringer.
func (c Classification) String() string { return string(c) }

// Explain renders the extracted features for debug output.
func (f Features) Explain() string {
	return fmt.Sprintf("words=%d chars=%d questions=%d sentences=%d complexity=%v ambiguity=%v complaint=%v comparison=%v",
		f.WordCount, f.CharCount, f.QuestionCount, f.SentenceCount,
		f.HasComplexityKeywords, f.HasAmbiguityMarkers, f.HasComplaintMarkers, f.HasComparisonPattern)
}
