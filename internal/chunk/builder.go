// Package chunk turns extracted per-page document text into ordered,
// size-bounded chunks ready for keyword and vector indexing.
package chunk

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docuchat/docuchat/internal/store"
)

// Strategy selects how pages are split into chunks.
type Strategy string

const (
	// StrategyPagewise emits one chunk per non-empty page, optionally
	// prefixed with trailing context from previous pages.
	StrategyPagewise Strategy = "pagewise"
	// StrategyCharacter accumulates paragraphs up to a character bound,
	// with sentence-level fallback and sentence overlap between chunks.
	StrategyCharacter Strategy = "character"
)

// pagePrefixFraction is how much of a previous page's tail is carried into a
// pagewise chunk for cross-page context.
const pagePrefixFraction = 0.3

// Page is one unit of extracted document text.
type Page struct {
	// PageNum is 1-indexed.
	PageNum int
	Text    string
	// ImageDescriptions are appended to Text before splitting so figure
	// content is searchable alongside prose.
	ImageDescriptions []string
}

// Options configures a Builder.
type Options struct {
	Strategy         Strategy
	MaxChunkSize     int
	MinChunkSize     int
	OverlapSentences int
	OverlapPages     int
}

// DefaultOptions returns the standard chunking configuration.
func DefaultOptions() Options {
	return Options{
		Strategy:         StrategyCharacter,
		MaxChunkSize:     1500,
		MinChunkSize:     300,
		OverlapSentences: 2,
		OverlapPages:     1,
	}
}

// Builder splits pages into chunks. Stateless across calls; safe for
// concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder. Zero strategy and sizes are filled with
// defaults; the overlap options are kept as given, since zero overlap is a
// valid setting (callers wanting the defaults start from DefaultOptions).
// Negative overlaps are clamped to zero.
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.Strategy == "" {
		opts.Strategy = def.Strategy
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = def.MaxChunkSize
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = def.MinChunkSize
	}
	if opts.OverlapSentences < 0 {
		opts.OverlapSentences = 0
	}
	if opts.OverlapPages < 0 {
		opts.OverlapPages = 0
	}
	return &Builder{opts: opts}
}

// Build chunks the document's pages. Every returned chunk carries the doc and
// session identity, and ChunkID is the chunk's 0-indexed position across the
// whole document, assigned after all pages are processed.
func (b *Builder) Build(docID, sessionID string, pages []Page) ([]*store.Chunk, error) {
	if docID == "" {
		return nil, fmt.Errorf("doc id is required")
	}

	var chunks []*store.Chunk
	switch b.opts.Strategy {
	case StrategyPagewise:
		chunks = b.buildPagewise(docID, sessionID, pages)
	case StrategyCharacter:
		chunks = b.buildCharacter(docID, sessionID, pages)
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", b.opts.Strategy)
	}

	// Global renumbering: chunk_id is the document-wide position, not the
	// per-page one.
	for i, c := range chunks {
		c.ChunkID = i
	}

	slog.Info("document_chunked",
		slog.String("doc_id", docID),
		slog.String("strategy", string(b.opts.Strategy)),
		slog.Int("pages", len(pages)),
		slog.Int("chunks", len(chunks)))
	return chunks, nil
}

// enrichedText appends image descriptions to the page text.
func enrichedText(p Page) string {
	if len(p.ImageDescriptions) == 0 {
		return p.Text
	}
	var b strings.Builder
	b.WriteString(p.Text)
	b.WriteString("\n\n")
	for i, desc := range p.ImageDescriptions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[Image: ")
		b.WriteString(desc)
		b.WriteString("]")
	}
	return b.String()
}

// buildPagewise emits one chunk per non-empty page. With OverlapPages > 0,
// each chunk is prefixed with the trailing portion of up to that many
// preceding pages, and Pages records every page the chunk spans.
func (b *Builder) buildPagewise(docID, sessionID string, pages []Page) []*store.Chunk {
	chunks := make([]*store.Chunk, 0, len(pages))

	for idx, page := range pages {
		text := enrichedText(page)
		if strings.TrimSpace(text) == "" {
			continue
		}

		spanned := []int{page.PageNum}
		if b.opts.OverlapPages > 0 && idx > 0 {
			for back := 1; back <= b.opts.OverlapPages && idx-back >= 0; back++ {
				prev := pages[idx-back]
				overlap := trailingFraction(prev.Text, pagePrefixFraction)
				if overlap == "" {
					continue
				}
				text = "[...from previous page]\n" + overlap + "\n\n" + text
				spanned = append([]int{prev.PageNum}, spanned...)
			}
		}

		pageStrs := make([]string, len(spanned))
		for i, p := range spanned {
			pageStrs[i] = strconv.Itoa(p)
		}

		chunks = append(chunks, &store.Chunk{
			Text:      text,
			DocID:     docID,
			SessionID: sessionID,
			PageNum:   page.PageNum,
			Pages:     strings.Join(pageStrs, ","),
			Length:    len(text),
			StartPos:  0,
			HasImages: len(page.ImageDescriptions) > 0,
			NumImages: len(page.ImageDescriptions),
		})
	}

	return chunks
}

// buildCharacter splits each page's text into bounded chunks.
func (b *Builder) buildCharacter(docID, sessionID string, pages []Page) []*store.Chunk {
	var chunks []*store.Chunk

	for _, page := range pages {
		text := enrichedText(page)
		pieces := b.chunkText(text)
		for _, piece := range pieces {
			chunks = append(chunks, &store.Chunk{
				Text:      piece.text,
				DocID:     docID,
				SessionID: sessionID,
				PageNum:   page.PageNum,
				Pages:     strconv.Itoa(page.PageNum),
				Length:    len(piece.text),
				StartPos:  piece.startPos,
				HasImages: len(page.ImageDescriptions) > 0,
				NumImages: len(page.ImageDescriptions),
			})
		}
	}

	return chunks
}

type piece struct {
	text     string
	startPos int
}

// chunkText accumulates paragraphs up to MaxChunkSize. An oversized paragraph
// falls back to sentence accumulation. Closing a chunk seeds the next with
// the last OverlapSentences sentences. An accumulation below MinChunkSize is
// not closed early; it keeps absorbing paragraphs even past the size bound,
// so undersized chunks only ever appear at the document tail.
func (b *Builder) chunkText(text string) []piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	paragraphs := SplitParagraphs(text)
	var pieces []piece
	var current string
	pos := 0

	closeCurrent := func() {
		trimmed := strings.TrimSpace(current)
		if trimmed == "" {
			current = ""
			return
		}
		pieces = append(pieces, piece{text: trimmed, startPos: pos})
		overlap := sentenceOverlap(trimmed, b.opts.OverlapSentences)
		pos += len(trimmed) - len(overlap)
		if pos < 0 {
			pos = 0
		}
		if overlap != "" {
			current = overlap + "\n\n"
		} else {
			current = ""
		}
	}

	for _, para := range paragraphs {
		switch {
		case len(para) > b.opts.MaxChunkSize:
			// Oversized paragraph: flush, then accumulate sentences.
			if len(strings.TrimSpace(current)) >= b.opts.MinChunkSize {
				closeCurrent()
			}
			for _, sentence := range SplitSentences(para) {
				if current != "" && len(current)+len(sentence) > b.opts.MaxChunkSize {
					if len(strings.TrimSpace(current)) >= b.opts.MinChunkSize {
						closeCurrent()
					}
				}
				current += sentence + " "
			}
			current = strings.TrimRight(current, " ") + "\n\n"

		case current != "" && len(current)+len(para) > b.opts.MaxChunkSize:
			if len(strings.TrimSpace(current)) >= b.opts.MinChunkSize {
				closeCurrent()
				current += para + "\n\n"
			} else {
				// Undersized: merge into the current accumulation
				// instead of emitting a fragment.
				current += para + "\n\n"
			}

		default:
			current += para + "\n\n"
		}
	}

	// The document tail is always emitted, even undersized.
	if trimmed := strings.TrimSpace(current); trimmed != "" {
		pieces = append(pieces, piece{text: trimmed, startPos: pos})
	}

	return pieces
}
