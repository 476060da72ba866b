// Package chunker splits raw document text into overlapping segments sized
// for embedding.
//
// Splitting is deterministic and never fails: when a segmentation heuristic
// produces nothing usable, the chunker degrades to coarser granularity (the
// whole paragraph, or the whole input) instead of returning an error.
package chunker

import (
	"log/slog"
	"regexp"
	"strings"
)

// Mode selects the segmentation policy.
type Mode string

// Segmentation modes.
const (
	// ModeParagraph splits on blank-line boundaries, re-splitting oversize
	// paragraphs into sentences.
	ModeParagraph Mode = "paragraph"

	// ModeSentence splits the whole input into sentences and greedily packs
	// them up to the target size.
	ModeSentence Mode = "sentence"

	// ModeAuto picks paragraph mode for newline-dense input (more than 10
	// newlines), sentence mode otherwise.
	ModeAuto Mode = "auto"
)

// Defaults applied when Options fields are zero.
const (
	DefaultTargetSize = 2000
	DefaultOverlap    = 200

	// autoNewlineThreshold is the newline count above which ModeAuto
	// treats the input as paragraph-structured.
	autoNewlineThreshold = 10
)

// Options configures a Chunk call. Zero values use the package defaults
// (TargetSize 2000, Overlap 200, ModeAuto).
type Options struct {
	// TargetSize is the soft upper bound on segment length in runes. The
	// greedy packer appends a sentence only while the running buffer stays
	// strictly under this size; a single sentence longer than TargetSize is
	// emitted whole.
	TargetSize int

	// Overlap is how many trailing runes of each segment are carried into
	// the front of the next chunk, joined with a space. The first chunk
	// carries no overlap prefix.
	Overlap int

	// Mode selects the segmentation policy.
	Mode Mode
}

func (o Options) withDefaults() Options {
	if o.TargetSize <= 0 {
		o.TargetSize = DefaultTargetSize
	}
	if o.Overlap <= 0 {
		o.Overlap = DefaultOverlap
	}
	if o.Mode == "" {
		o.Mode = ModeAuto
	}
	return o
}

// blankLine matches a paragraph boundary: a newline, optional horizontal
// whitespace, and another newline.
var blankLine = regexp.MustCompile(`\n[ \t\r]*\n`)

// Chunker splits text. Safe for concurrent use; it holds no mutable state.
type Chunker struct {
	logger *slog.Logger
}

// New creates a Chunker. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{logger: logger}
}

// Chunk splits text into overlapping segments according to opts.
//
// Identical input and options always produce the identical sequence. The
// result never contains a chunk that is empty after trimming; for blank
// input the result is empty.
func (c *Chunker) Chunk(text string, opts Options) []string {
	opts = opts.withDefaults()

	mode := opts.Mode
	if mode == ModeAuto {
		if strings.Count(text, "\n") > autoNewlineThreshold {
			mode = ModeParagraph
		} else {
			mode = ModeSentence
		}
	}

	var segments []string
	switch mode {
	case ModeParagraph:
		segments = c.splitParagraphMode(text, opts.TargetSize)
	default:
		segments = c.splitSentenceMode(text, opts.TargetSize)
	}

	return applyOverlap(segments, opts.Overlap)
}

// splitParagraphMode emits paragraphs verbatim when they fit the target
// size, and re-splits oversize paragraphs into greedily packed sentences.
func (c *Chunker) splitParagraphMode(text string, targetSize int) []string {
	paragraphs := make([]string, 0)
	for _, p := range blankLine.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		// Degraded: no paragraph structure found, treat input as one unit.
		paragraphs = []string{text}
	}

	var segments []string
	for _, p := range paragraphs {
		if len([]rune(p)) <= targetSize {
			segments = append(segments, strings.TrimSpace(p))
			continue
		}
		sentences := c.sentences(p)
		segments = append(segments, packSentences(sentences, targetSize)...)
	}
	return segments
}

// splitSentenceMode sentence-splits the whole input and packs greedily.
func (c *Chunker) splitSentenceMode(text string, targetSize int) []string {
	return packSentences(c.sentences(text), targetSize)
}

// sentences splits text into sentences, degrading to the whole text as a
// single sentence when the splitter finds no boundaries in non-blank input.
func (c *Chunker) sentences(text string) []string {
	out := splitSentences(text)
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		c.logger.Warn("sentence segmentation degraded, using input as a single unit",
			"length", len(text))
		return []string{text}
	}
	return out
}

// packSentences greedily fills a buffer with sentences, flushing whenever
// appending the next sentence would push the buffer to targetSize or beyond.
// The comparison is strict (buffer+next < target appends); a lone sentence
// at or over the target is emitted as its own segment.
func packSentences(sentences []string, targetSize int) []string {
	var (
		segments []string
		current  strings.Builder
		curLen   int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			segments = append(segments, s)
		}
		current.Reset()
		curLen = 0
	}

	for _, s := range sentences {
		sLen := len([]rune(s))
		if curLen+sLen < targetSize {
			if curLen > 0 {
				current.WriteByte(' ')
				curLen++
			}
			current.WriteString(s)
			curLen += sLen
			continue
		}
		flush()
		current.WriteString(s)
		curLen = sLen
	}
	flush()
	return segments
}

// applyOverlap builds the final chunk sequence: each chunk after the first
// is prefixed with the trailing overlap runes of the previous raw segment
// (the whole segment when shorter), joined with a space. Prefixes are taken
// from un-prefixed segment text, so carried context never compounds across
// chunks. Whitespace-only results are dropped.
func applyOverlap(segments []string, overlap int) []string {
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		var chunk string
		if i == 0 {
			chunk = seg
		} else {
			prev := []rune(segments[i-1])
			tail := prev
			if len(prev) > overlap {
				tail = prev[len(prev)-overlap:]
			}
			chunk = string(tail) + " " + seg
		}
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
