// Package text provides sanitization for the three text surfaces the
// engine touches: raw user queries, extracted PDF page text, and
// retrieved chunks about to enter the generation prompt.
package text

import (
	"regexp"
	"strings"
)

// Lines starting with these prefixes are treated as prompt injection
// attempts and dropped from chunks before prompt insertion.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*SYSTEM\s*:`),
	regexp.MustCompile(`(?i)^\s*INSTRUCTION\s*:`),
	regexp.MustCompile(`(?i)^\s*IGNORE\s+PREVIOUS`),
	regexp.MustCompile(`(?i)^\s*YOU\s+ARE`),
}

var (
	pageBreakRE  = regexp.MustCompile(`\[PAGE_BREAK:\d+\]`)
	htmlTagRE    = regexp.MustCompile(`<[^>]*>`)
	hSpaceRE     = regexp.MustCompile(`[ \t]+`)
	blankLinesRE = regexp.MustCompile(`\n{3,}`)
)

// chunkMaxTokens caps a single chunk's share of the prompt. Truncation is
// word-based via the 0.75 words-per-token approximation, so the effective
// cap is 450 words.
const chunkMaxTokens = 600

// stripControl removes NUL bytes and non-printable control characters,
// keeping TAB, LF and CR.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		}
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
}

// SanitizeInput cleans a raw user query before processing.
// Length limits are enforced by the transport layer, not here.
func SanitizeInput(s string) string {
	if s == "" {
		return ""
	}

	s = stripControl(s)
	s = htmlTagRE.ReplaceAllString(s, "")
	s = hSpaceRE.ReplaceAllString(s, " ")
	s = blankLinesRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SanitizePageText cleans raw text extracted from a single PDF page.
// Structural newlines are preserved for the chunker.
func SanitizePageText(s string) string {
	if s == "" {
		return ""
	}

	s = stripControl(s)
	s = hSpaceRE.ReplaceAllString(s, " ")
	s = blankLinesRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SanitizeChunk cleans a retrieved chunk before prompt insertion:
// page-break markers are removed, whitespace normalized, injection lines
// dropped, and the result truncated to the prompt budget.
func SanitizeChunk(s string) string {
	if s == "" {
		return ""
	}

	s = pageBreakRE.ReplaceAllString(s, "")
	s = hSpaceRE.ReplaceAllString(s, " ")
	s = blankLinesRE.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isInjectionLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	maxWords := int(chunkMaxTokens * 0.75)
	words := strings.Fields(s)
	if len(words) > maxWords {
		s = strings.Join(words[:maxWords], " ")
	}

	return strings.TrimSpace(s)
}

func isInjectionLine(line string) bool {
	for _, pat := range injectionPatterns {
		if pat.MatchString(line) {
			return true
		}
	}
	return false
}

// StripPageBreaks removes [PAGE_BREAK:N] markers from text.
func StripPageBreaks(s string) string {
	return pageBreakRE.ReplaceAllString(s, "")
}
