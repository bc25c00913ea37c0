package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/docuchat/docuchat/internal/search"
	"github.com/docuchat/docuchat/internal/store"
)

// Answerer generates a chat reply from the user message, the retrieved
// context, and recent conversation history. An LLM-backed implementation
// plugs in here; the core only defines the boundary.
type Answerer interface {
	Answer(ctx context.Context, message string, sources []*search.Result, history []*store.ChatMessage) (string, error)
}

// ExtractiveAnswerer is the fallback Answerer: it quotes the most relevant
// retrieved passages verbatim with their citations. Useful for operation
// without an LLM and for tests.
type ExtractiveAnswerer struct {
	// MaxPassages bounds how many chunks are quoted. Zero means 3.
	MaxPassages int
}

const passagePreviewLen = 400

// Answer formats the top retrieved chunks as a cited extract.
func (a *ExtractiveAnswerer) Answer(ctx context.Context, message string, sources []*search.Result, history []*store.ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return "No relevant content found in this session's documents.", nil
	}

	limit := a.MaxPassages
	if limit <= 0 {
		limit = 3
	}
	if limit > len(sources) {
		limit = len(sources)
	}

	var b strings.Builder
	b.WriteString("Relevant passages:\n")
	for i, r := range sources[:limit] {
		text := r.Chunk.Text
		if len(text) > passagePreviewLen {
			text = text[:passagePreviewLen] + "..."
		}
		fmt.Fprintf(&b, "\n[%d] (page %d) %s\n", i+1, r.Chunk.PageNum, text)
	}
	return b.String(), nil
}
