package ingest

import (
	"regexp"
	"sort"
	"strings"

	"github.com/clearpath-ai/clearpath-rag/internal/token"
)

// Chunking parameters, measured in tokens.
const (
	chunkSize    = 512
	chunkOverlap = 64
)

// separators are tried in order; splitting prefers paragraph breaks and
// degrades toward single spaces.
var separators = []string{"\n\n", "\n", ". ", " "}

var pageBreakRE = regexp.MustCompile(`\[PAGE_BREAK:(\d+)\]`)

// pageChunk is a split chunk with its attributed source page.
type pageChunk struct {
	Text string
	Page int
}

// splitter performs recursive separator-based chunking with token
// overlap between consecutive chunks.
type splitter struct {
	tokens *token.Counter
}

// recursiveSplit breaks text into pieces of at most chunkSize tokens.
// Segments are accumulated greedily; when the buffer would overflow it
// is flushed and the next buffer is seeded with the flushed chunk's
// last chunkOverlap tokens. A segment too large for any remaining
// separator falls back to a word-count halving.
func (s *splitter) recursiveSplit(text string, seps []string) []string {
	if s.tokens.Count(text) <= chunkSize {
		return []string{text}
	}

	if len(seps) == 0 {
		words := strings.Fields(text)
		mid := len(words) / 2
		if mid < 1 {
			mid = 1
		}
		return []string{
			strings.Join(words[:mid], " "),
			strings.Join(words[mid:], " "),
		}
	}

	sep := seps[0]
	rest := seps[1:]

	if !strings.Contains(text, sep) {
		return s.recursiveSplit(text, rest)
	}

	segments := strings.Split(text, sep)
	var chunks []string
	current := ""

	for _, segment := range segments {
		candidate := segment
		if current != "" {
			candidate = current + sep + segment
		}

		if s.tokens.Count(candidate) > chunkSize {
			if current != "" {
				chunks = append(chunks, current)
				if overlap := s.tokens.LastN(current, chunkOverlap); overlap != "" {
					current = overlap + sep + segment
				} else {
					current = segment
				}
			} else {
				// Single oversized segment: recurse with the finer
				// separators, keeping the recursion's tail as the new
				// buffer so overlap carries across.
				sub := s.recursiveSplit(segment, rest)
				if len(sub) > 0 {
					chunks = append(chunks, sub[:len(sub)-1]...)
					current = sub[len(sub)-1]
				} else {
					current = ""
				}
			}
		} else {
			current = candidate
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// buildPageMap collects (marker_offset, page_number) pairs from the
// annotated text, sorted by offset.
func buildPageMap(fullText string) [][2]int {
	var pageMap [][2]int
	for _, m := range pageBreakRE.FindAllStringSubmatchIndex(fullText, -1) {
		page := 0
		for _, c := range fullText[m[2]:m[3]] {
			page = page*10 + int(c-'0')
		}
		pageMap = append(pageMap, [2]int{m[0], page})
	}
	sort.Slice(pageMap, func(a, b int) bool { return pageMap[a][0] < pageMap[b][0] })
	return pageMap
}

// lookupPage returns the page of the last marker at or before the
// offset, defaulting to page 1.
func lookupPage(charOffset int, pageMap [][2]int) int {
	page := 1
	for _, entry := range pageMap {
		if entry[0] <= charOffset {
			page = entry[1]
		} else {
			break
		}
	}
	return page
}

// chunkText splits annotated PDF text into page-attributed chunks.
//
// Page attribution is approximate: a chunk's offset in the clean text is
// scaled proportionally back to an offset in the marker-annotated text,
// then resolved against the page map. Chunks near page boundaries may
// attribute to the neighboring page; this approximation is part of the
// observable behavior and must stay stable.
func (s *splitter) chunkText(fullText string) []pageChunk {
	pageMap := buildPageMap(fullText)
	cleanText := pageBreakRE.ReplaceAllString(fullText, "")

	rawChunks := s.recursiveSplit(cleanText, separators)

	var result []pageChunk
	searchStart := 0
	for _, chunk := range rawChunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		idx := strings.Index(cleanText[searchStart:], chunk)
		if idx >= 0 {
			idx += searchStart
		} else {
			// Overlap seams can break the forward search; retry globally.
			idx = strings.Index(cleanText, chunk)
		}

		page := 1
		if idx >= 0 {
			denom := len(cleanText)
			if denom < 1 {
				denom = 1
			}
			approxFullOffset := idx * len(fullText) / denom
			page = lookupPage(approxFullOffset, pageMap)
			searchStart = idx + len(chunk)
		}

		result = append(result, pageChunk{
			Text: strings.TrimSpace(chunk),
			Page: page,
		})
	}

	return result
}
