// Package prompt assembles the two-message sequence sent to the
// generation model: a fixed system persona and a user message carrying
// the retrieved context block plus the question.
package prompt

import (
	"fmt"
	"strings"

	"github.com/clearpath-ai/clearpath-rag/internal/retrieve"
	"github.com/clearpath-ai/clearpath-rag/internal/text"
)

// systemPrompt is fixed. Grounding behavior lives here, not in the
// per-request user message.
const systemPrompt = `You are Clearpath Assistant, a helpful customer support agent for Clearpath.
You answer questions based ONLY on the provided context. If the context does not contain
enough information to answer the question, say "I don't have enough information in our
documentation to answer that question."

Do not make up information. Do not reference external sources. Be concise and helpful.`

const userPromptTemplate = `Context:
---
%s
---

Question: %s

Answer:`

// Message is one chat message in OpenAI role/content form.
type Message struct {
	Role    string
	Content string
}

// Assemble builds the system and user messages for a query. Each chunk
// is sanitized before insertion and cited with its source file and page.
func Assemble(query string, chunks []retrieve.Result) []Message {
	var context strings.Builder
	for _, chunk := range chunks {
		clean := text.SanitizeChunk(chunk.Meta.Text)
		fmt.Fprintf(&context, "[Source: %s, Page %d]\n%s\n\n",
			chunk.Meta.SourceFile, chunk.Meta.Page, clean)
	}

	user := fmt.Sprintf(userPromptTemplate,
		strings.TrimSpace(context.String()), query)

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}
