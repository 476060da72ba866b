package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/applydi/applydi/internal/store"
)

// ChunkLister is the read surface the assembler needs: the full ordered
// chunk list of a document, for neighbor lookup.
type ChunkLister interface {
	ListDocumentChunks(ctx context.Context, docID uuid.UUID) ([]store.Chunk, error)
}

// Extract is one ranked hit expanded with its immediate neighbors.
type Extract struct {
	Document   store.Document
	Text       string // previous + matched + next chunk text, newline-joined
	Similarity float64
}

// Context is the assembled, prompt-ready retrieval context.
type Context struct {
	// Text is the labeled block injected into the prompt: one section per
	// source document with sequentially numbered extracts.
	Text string

	// Extracts lists the contributing hits in ranked order.
	Extracts []Extract
}

// Assembler expands ranked chunks with their neighbors and groups them by
// source document.
type Assembler struct {
	chunks ChunkLister
	logger *slog.Logger
}

// NewAssembler creates an Assembler. A nil logger falls back to slog.Default.
func NewAssembler(chunks ChunkLister, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{chunks: chunks, logger: logger}
}

// Assemble expands each ranked chunk with the chunk before and after it (by
// index, when present) and renders a labeled context block grouped by
// document name. Calling it twice on the same ranked set produces identical
// text: document sections appear in first-hit order and extracts are
// numbered in ranked order within each section.
func (a *Assembler) Assemble(ctx context.Context, scored []Scored) (Context, error) {
	if len(scored) == 0 {
		return Context{}, nil
	}

	// One chunk-list fetch per distinct document, shared across hits.
	chunkLists := make(map[uuid.UUID][]store.Chunk)
	for _, s := range scored {
		docID := s.Candidate.Document.ID
		if _, ok := chunkLists[docID]; ok {
			continue
		}
		chunks, err := a.chunks.ListDocumentChunks(ctx, docID)
		if err != nil {
			return Context{}, fmt.Errorf("loading chunks of document %s: %w", docID, err)
		}
		chunkLists[docID] = chunks
	}

	extracts := make([]Extract, 0, len(scored))
	for _, s := range scored {
		extracts = append(extracts, Extract{
			Document:   s.Candidate.Document,
			Text:       expandNeighbors(s.Candidate.Chunk, chunkLists[s.Candidate.Document.ID]),
			Similarity: s.Similarity,
		})
	}

	return Context{
		Text:     renderExtracts(extracts),
		Extracts: extracts,
	}, nil
}

// expandNeighbors joins the chunk immediately before, the matched chunk,
// and the chunk immediately after in index order. The boundary compensates
// for the chunker's size-based cut points. When the matched chunk is not
// found in the list (stale ranking against a mutated document) the matched
// text alone is returned.
func expandNeighbors(matched store.Chunk, ordered []store.Chunk) string {
	pos := -1
	for i, c := range ordered {
		if c.Index == matched.Index {
			pos = i
			break
		}
	}
	if pos == -1 {
		return matched.Text
	}

	parts := make([]string, 0, 3)
	if pos > 0 {
		parts = append(parts, ordered[pos-1].Text)
	}
	parts = append(parts, ordered[pos].Text)
	if pos+1 < len(ordered) {
		parts = append(parts, ordered[pos+1].Text)
	}
	return strings.Join(parts, "\n")
}

// renderExtracts formats extracts as one labeled section per document, in
// first-appearance order, with extracts numbered per section.
func renderExtracts(extracts []Extract) string {
	type section struct {
		name  string
		texts []string
	}
	var (
		order   []uuid.UUID
		byDocID = make(map[uuid.UUID]*section)
	)
	for _, e := range extracts {
		sec, ok := byDocID[e.Document.ID]
		if !ok {
			sec = &section{name: e.Document.Filename}
			byDocID[e.Document.ID] = sec
			order = append(order, e.Document.ID)
		}
		sec.texts = append(sec.texts, e.Text)
	}

	var sb strings.Builder
	for _, docID := range order {
		sec := byDocID[docID]
		fmt.Fprintf(&sb, "\n--- Extracts from document %q ---\n", sec.name)
		for i, text := range sec.texts {
			fmt.Fprintf(&sb, "Extract %d: %s\n", i+1, text)
		}
	}
	return sb.String()
}
