// Package testutil provides shared test doubles for the llm interfaces.
package testutil

import (
	"context"

	"github.com/firebase/genkit/go/ai"

	"github.com/applydi/applydi/internal/llm"
)

// StubEmbedder implements llm.Embedder with a programmable response.
//
// Example:
//
//	embedder := &testutil.StubEmbedder{Vector: []float32{1, 0}}
//	engine, _ := answer.NewEngine(answer.Config{Embedder: embedder, ...})
type StubEmbedder struct {
	Vector []float32
	Err    error

	// Calls counts Embed invocations; Texts records the inputs.
	Calls int
	Texts []string

	// EmbedFunc, when set, overrides Vector/Err per call.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

var _ llm.Embedder = (*StubEmbedder)(nil)

func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.Calls++
	s.Texts = append(s.Texts, text)
	if s.EmbedFunc != nil {
		return s.EmbedFunc(ctx, text)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Vector, nil
}

// StubCompleter implements llm.Completer with a canned answer. It records
// the messages and options of every call.
type StubCompleter struct {
	Text string
	Err  error

	Calls    int
	Messages [][]*ai.Message
	Options  [][]llm.CompleteOption
}

var _ llm.Completer = (*StubCompleter)(nil)

func (s *StubCompleter) Complete(_ context.Context, msgs []*ai.Message, opts ...llm.CompleteOption) (string, error) {
	s.Calls++
	s.Messages = append(s.Messages, msgs)
	s.Options = append(s.Options, opts)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

// LastMessages returns the messages of the most recent Complete call, or
// nil when none happened.
func (s *StubCompleter) LastMessages() []*ai.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}
