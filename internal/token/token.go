// Package token provides token counting for the chunking pipeline.
//
// Chunk sizes are measured with a real subword tokenizer so they line up
// with what the embedding model sees. When the tokenizer cannot be loaded
// (its vocabulary is fetched on first use and may be unavailable offline),
// the package falls back to the words/0.75 approximation. The decision is
// made once per process and cached.
package token

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName is the subword encoding used for counting.
const encodingName = "cl100k_base"

// wordsPerToken is the approximation ratio for the fallback path:
// 1 token ~ 0.75 words.
const wordsPerToken = 0.75

// Counter counts tokens and extracts token-bounded suffixes.
type Counter struct {
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback bool
}

// NewCounter returns a Counter. The tokenizer itself is loaded lazily on
// first use so construction never blocks on vocabulary download.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) load() {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			slog.Warn("tokenizer unavailable, using word approximation",
				slog.String("encoding", encodingName),
				slog.String("error", err.Error()))
			c.fallback = true
			return
		}
		c.enc = enc
	})
}

// UsingFallback reports whether the word approximation is in effect.
// The answer is only meaningful after the first Count or LastN call.
func (c *Counter) UsingFallback() bool {
	c.load()
	return c.fallback
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.load()
	if c.fallback {
		words := len(strings.Fields(text))
		return int(float64(words) / wordsPerToken)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// LastN returns the trailing n tokens of text decoded back to a string.
// Used to seed the overlap region when a chunk buffer is flushed.
func (c *Counter) LastN(text string, n int) string {
	if text == "" || n <= 0 {
		return ""
	}

	c.load()
	if c.fallback {
		// n tokens ~ n * 0.75 words
		words := strings.Fields(text)
		keep := int(float64(n) * wordsPerToken)
		if keep < 1 {
			keep = 1
		}
		if keep > len(words) {
			keep = len(words)
		}
		return strings.Join(words[len(words)-keep:], " ")
	}

	ids := c.enc.Encode(text, nil, nil)
	if n > len(ids) {
		n = len(ids)
	}
	return c.enc.Decode(ids[len(ids)-n:])
}
