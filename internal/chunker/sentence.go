package chunker

import (
	"strings"
	"unicode"
)

// sentenceTerminators end a sentence when followed by whitespace (after any
// closing quotes or brackets).
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？': // ASCII + CJK fullwidth
		return true
	}
	return false
}

// isCloser matches characters that may trail a terminator and still belong
// to the sentence: closing quotes, brackets, ellipsis dots.
func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}

// splitSentences is a rule-based sentence splitter: a sentence ends at a
// terminator rune (plus any trailing closers) followed by whitespace or end
// of input. Newlines inside a sentence are treated as plain whitespace.
// Returned sentences are trimmed; blank candidates are dropped.
//
// Abbreviations are not special-cased; a false boundary only shifts a
// chunk cut, and the overlap pass spans it.
func splitSentences(text string) []string {
	var (
		out   []string
		runes = []rune(text)
		start = 0
	)

	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Absorb closers and repeated terminators ("?!", "...").
		j := i + 1
		for j < len(runes) && (isTerminator(runes[j]) || isCloser(runes[j])) {
			j++
		}
		// Boundary only when followed by whitespace or end of input.
		if j >= len(runes) || unicode.IsSpace(runes[j]) {
			emit(j)
			i = j - 1
		}
	}
	emit(len(runes))

	return out
}
