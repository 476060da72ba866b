package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/applydi/applydi/internal/llm"
	"github.com/applydi/applydi/internal/log"
	"github.com/applydi/applydi/internal/retrieval"
	"github.com/applydi/applydi/internal/store"
	"github.com/applydi/applydi/internal/testutil"
)

type fakeReader struct {
	agent    store.Agent
	agentErr error

	chunks    []store.ChunkWithDocument
	chunksErr error
	scopes    []store.Scope

	lastMessage    string
	lastMessageErr error
}

func (f *fakeReader) GetAgent(_ context.Context, id uuid.UUID) (store.Agent, error) {
	if f.agentErr != nil {
		return store.Agent{}, f.agentErr
	}
	return f.agent, nil
}

func (f *fakeReader) ListChunksInScope(_ context.Context, scope store.Scope) ([]store.ChunkWithDocument, error) {
	f.scopes = append(f.scopes, scope)
	return f.chunks, f.chunksErr
}

func (f *fakeReader) LastAgentMessage(_ context.Context, _ uuid.UUID) (string, error) {
	return f.lastMessage, f.lastMessageErr
}

type fakeAssembler struct {
	text   string
	err    error
	scored [][]retrieval.Scored
}

func (f *fakeAssembler) Assemble(_ context.Context, scored []retrieval.Scored) (retrieval.Context, error) {
	f.scored = append(f.scored, scored)
	if f.err != nil {
		return retrieval.Context{}, f.err
	}
	return retrieval.Context{Text: f.text}, nil
}

type engineDeps struct {
	reader    *fakeReader
	assembler *fakeAssembler
	embedder  *testutil.StubEmbedder
	completer *testutil.StubCompleter
}

func newTestEngine(t *testing.T, deps engineDeps) *Engine {
	t.Helper()
	if deps.reader == nil {
		deps.reader = &fakeReader{}
	}
	if deps.assembler == nil {
		deps.assembler = &fakeAssembler{}
	}
	if deps.embedder == nil {
		deps.embedder = &testutil.StubEmbedder{Vector: []float32{1, 0}}
	}
	if deps.completer == nil {
		deps.completer = &testutil.StubCompleter{Text: "answer"}
	}
	engine, err := NewEngine(Config{
		Store:     deps.reader,
		Assembler: deps.assembler,
		Embedder:  deps.embedder,
		Completer: deps.completer,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func embeddedChunk(docID uuid.UUID, index int32, text string) store.ChunkWithDocument {
	return store.ChunkWithDocument{
		Chunk: store.Chunk{
			ID:         uuid.New(),
			DocumentID: docID,
			Index:      index,
			Text:       text,
			Embedding:  []float32{1, 0},
		},
		Document: store.Document{ID: docID, Filename: "doc.txt"},
	}
}

func TestAnswer_WithRetrieval(t *testing.T) {
	docID := uuid.New()
	deps := engineDeps{
		reader:    &fakeReader{chunks: []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")}},
		assembler: &fakeAssembler{text: "\n--- Extracts from document \"doc.txt\" ---\nExtract 1: alpha\n"},
		embedder:  &testutil.StubEmbedder{Vector: []float32{1, 0}},
		completer: &testutil.StubCompleter{Text: "grounded answer"},
	}
	engine := newTestEngine(t, deps)

	got, err := engine.Answer(context.Background(), Request{
		Question: "what is alpha?",
		UserID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Outcome != OutcomeAnswered || got.Cached {
		t.Errorf("result = %+v, want answered and not cached", got)
	}
	if got.Text != "grounded answer" {
		t.Errorf("text = %q, want %q", got.Text, "grounded answer")
	}
	if deps.embedder.Calls != 1 {
		t.Errorf("embedder called %d times, want 1", deps.embedder.Calls)
	}

	msgs := deps.completer.LastMessages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 user message", len(msgs))
	}
	text := msgs[0].Text()
	if !strings.Contains(text, "Question: what is alpha?") {
		t.Errorf("user message missing question: %q", text)
	}
	if !strings.Contains(text, "Extract 1: alpha") {
		t.Errorf("user message missing context block: %q", text)
	}
}

func TestAnswer_NoMatchingDocuments(t *testing.T) {
	deps := engineDeps{
		reader:    &fakeReader{}, // explicit selection resolves to nothing
		embedder:  &testutil.StubEmbedder{Vector: []float32{1, 0}},
		completer: &testutil.StubCompleter{Text: "never"},
	}
	engine := newTestEngine(t, deps)

	got, err := engine.Answer(context.Background(), Request{
		Question: "anything",
		UserID:   uuid.New(),
		DocIDs:   []uuid.UUID{uuid.New()},
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Outcome != OutcomeNoDocuments {
		t.Errorf("outcome = %q, want %q", got.Outcome, OutcomeNoDocuments)
	}
	if got.Text != AdvisoryNoDocuments {
		t.Errorf("text = %q, want the fixed advisory", got.Text)
	}
	if deps.embedder.Calls != 0 {
		t.Errorf("embedder called %d times, want 0", deps.embedder.Calls)
	}
	if deps.completer.Calls != 0 {
		t.Errorf("completer called %d times, want 0", deps.completer.Calls)
	}
}

func TestAnswer_DirectWhenScopeEmpty(t *testing.T) {
	deps := engineDeps{
		reader:    &fakeReader{},
		embedder:  &testutil.StubEmbedder{Vector: []float32{1, 0}},
		completer: &testutil.StubCompleter{Text: "direct answer"},
	}
	engine := newTestEngine(t, deps)

	got, err := engine.Answer(context.Background(), Request{
		Question: "no docs here",
		UserID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Outcome != OutcomeDirect {
		t.Errorf("outcome = %q, want %q", got.Outcome, OutcomeDirect)
	}
	if got.Text != "direct answer" {
		t.Errorf("text = %q, want %q", got.Text, "direct answer")
	}
	if deps.embedder.Calls != 0 {
		t.Errorf("embedder called %d times, want 0 on the direct path", deps.embedder.Calls)
	}
}

func TestAnswer_AgentContextAndMemoryHint(t *testing.T) {
	agentID := uuid.New()
	docID := uuid.New()
	deps := engineDeps{
		reader: &fakeReader{
			agent: store.Agent{
				ID:      agentID,
				Context: "You are a support assistant.",
				Type:    store.AgentConversational,
			},
			chunks:      []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")},
			lastMessage: "We discussed invoices.",
		},
		assembler: &fakeAssembler{text: "context"},
		completer: &testutil.StubCompleter{Text: "answer"},
	}
	engine := newTestEngine(t, deps)

	_, err := engine.Answer(context.Background(), Request{
		Question: "question",
		UserID:   uuid.New(),
		AgentID:  &agentID,
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	msgs := deps.completer.LastMessages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want system + assistant + user", len(msgs))
	}
	if msgs[0].Role != ai.RoleSystem || msgs[0].Text() != "You are a support assistant." {
		t.Errorf("system message = %q (%s)", msgs[0].Text(), msgs[0].Role)
	}
	if msgs[1].Role != ai.RoleModel || msgs[1].Text() != "Agent memory: We discussed invoices." {
		t.Errorf("memory hint = %q (%s)", msgs[1].Text(), msgs[1].Role)
	}
	if msgs[2].Role != ai.RoleUser {
		t.Errorf("final message role = %s, want user", msgs[2].Role)
	}
}

func TestAnswer_MemoryHintReadFailureDegrades(t *testing.T) {
	agentID := uuid.New()
	docID := uuid.New()
	deps := engineDeps{
		reader: &fakeReader{
			agent:          store.Agent{ID: agentID, Type: store.AgentConversational},
			chunks:         []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")},
			lastMessageErr: errors.New("connection reset"),
		},
		assembler: &fakeAssembler{text: "context"},
		completer: &testutil.StubCompleter{Text: "answer"},
	}
	engine := newTestEngine(t, deps)

	got, err := engine.Answer(context.Background(), Request{
		Question: "question",
		UserID:   uuid.New(),
		AgentID:  &agentID,
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Outcome != OutcomeAnswered {
		t.Errorf("outcome = %q, want %q", got.Outcome, OutcomeAnswered)
	}
	for _, m := range deps.completer.LastMessages() {
		if strings.Contains(m.Text(), "Agent memory:") {
			t.Errorf("memory hint present despite read failure: %q", m.Text())
		}
	}
}

func TestAnswer_HistoryWindow(t *testing.T) {
	docID := uuid.New()
	deps := engineDeps{
		reader:    &fakeReader{chunks: []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")}},
		assembler: &fakeAssembler{text: "context"},
		completer: &testutil.StubCompleter{Text: "answer"},
	}
	engine := newTestEngine(t, deps)

	history := []Turn{
		{Role: store.RoleUser, Text: "turn 1"},
		{Role: store.RoleAgent, Text: "turn 2"},
		{Role: store.RoleUser, Text: "turn 3"},
		{Role: store.RoleAgent, Text: "turn 4"},
		{Role: store.RoleUser, Text: "turn 5"},
		{Role: store.RoleAgent, Text: "turn 6"},
		{Role: store.RoleUser, Text: "turn 7"},
	}
	_, err := engine.Answer(context.Background(), Request{
		Question: "question",
		UserID:   uuid.New(),
		History:  history,
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	text := deps.completer.LastMessages()[0].Text()
	if strings.Contains(text, "turn 1") || strings.Contains(text, "turn 2") {
		t.Errorf("user message carries turns outside the window: %q", text)
	}
	for _, want := range []string{"User: turn 3", "Agent: turn 4", "User: turn 7"} {
		if !strings.Contains(text, want) {
			t.Errorf("user message missing %q: %q", want, text)
		}
	}
}

func TestAnswer_ModelSelection(t *testing.T) {
	agentID := uuid.New()
	finetuned := "openai:ft:gpt-4o-mini:org::abc"

	tests := []struct {
		name           string
		agent          store.Agent
		requestModel   string
		wantModel      string
		wantGeminiOnly bool
	}{
		{
			name:      "agent finetuned model used when request is silent",
			agent:     store.Agent{ID: agentID, Type: store.AgentConversational, FinetunedModelID: &finetuned},
			wantModel: finetuned,
		},
		{
			name:         "explicit request model wins",
			agent:        store.Agent{ID: agentID, Type: store.AgentConversational, FinetunedModelID: &finetuned},
			requestModel: "gemini:gemini-2.5-pro",
			wantModel:    "gemini:gemini-2.5-pro",
		},
		{
			name:           "actionable agent pins gemini",
			agent:          store.Agent{ID: agentID, Type: store.AgentActionable},
			wantGeminiOnly: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docID := uuid.New()
			deps := engineDeps{
				reader: &fakeReader{
					agent:  tt.agent,
					chunks: []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")},
				},
				assembler: &fakeAssembler{text: "context"},
				completer: &testutil.StubCompleter{Text: "answer"},
			}
			engine := newTestEngine(t, deps)

			_, err := engine.Answer(context.Background(), Request{
				Question: "question",
				UserID:   uuid.New(),
				AgentID:  &agentID,
				ModelID:  tt.requestModel,
			})
			if err != nil {
				t.Fatalf("Answer: %v", err)
			}

			opts := llm.ApplyCompleteOptions(deps.completer.Options[0]...)
			if opts.ModelID != tt.wantModel {
				t.Errorf("model = %q, want %q", opts.ModelID, tt.wantModel)
			}
			if opts.GeminiOnly != tt.wantGeminiOnly {
				t.Errorf("geminiOnly = %v, want %v", opts.GeminiOnly, tt.wantGeminiOnly)
			}
		})
	}
}

func TestAnswer_CachesAndServesRepeat(t *testing.T) {
	docID := uuid.New()
	deps := engineDeps{
		reader:    &fakeReader{chunks: []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")}},
		assembler: &fakeAssembler{text: "context"},
		completer: &testutil.StubCompleter{Text: "answer"},
	}
	engine := newTestEngine(t, deps)

	req := Request{Question: "repeat me", UserID: uuid.New()}
	first, err := engine.Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	second, err := engine.Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("second Answer: %v", err)
	}

	if first.Cached {
		t.Error("first answer reported as cached")
	}
	if !second.Cached {
		t.Error("second answer not served from cache")
	}
	if second.Text != first.Text {
		t.Errorf("cached text = %q, want %q", second.Text, first.Text)
	}
	if deps.completer.Calls != 1 {
		t.Errorf("completer called %d times, want 1", deps.completer.Calls)
	}
}

func TestAnswer_CacheKeyedByDocSelection(t *testing.T) {
	docID := uuid.New()
	deps := engineDeps{
		reader:    &fakeReader{chunks: []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")}},
		assembler: &fakeAssembler{text: "context"},
		completer: &testutil.StubCompleter{Text: "answer"},
	}
	engine := newTestEngine(t, deps)

	userID := uuid.New()
	if _, err := engine.Answer(context.Background(), Request{Question: "q", UserID: userID}); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := engine.Answer(context.Background(), Request{Question: "q", UserID: userID, DocIDs: []uuid.UUID{docID}}); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if deps.completer.Calls != 2 {
		t.Errorf("completer called %d times, want 2 (different doc selections must not share cache)", deps.completer.Calls)
	}
}

func TestAnswer_EmbeddingFailure(t *testing.T) {
	docID := uuid.New()
	deps := engineDeps{
		reader:    &fakeReader{chunks: []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")}},
		embedder:  &testutil.StubEmbedder{Err: llm.ErrEmbeddingUnavailable},
		completer: &testutil.StubCompleter{Text: "answer"},
	}
	engine := newTestEngine(t, deps)

	_, err := engine.Answer(context.Background(), Request{Question: "q", UserID: uuid.New()})
	if !errors.Is(err, llm.ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want wrapping ErrEmbeddingUnavailable", err)
	}
	if deps.completer.Calls != 0 {
		t.Errorf("completer called %d times, want 0 after embedding failure", deps.completer.Calls)
	}
}

func TestAnswer_CompletionFailureIsTyped(t *testing.T) {
	docID := uuid.New()
	cause := errors.New("model exploded")
	deps := engineDeps{
		reader:    &fakeReader{chunks: []store.ChunkWithDocument{embeddedChunk(docID, 0, "alpha")}},
		assembler: &fakeAssembler{text: "context"},
		completer: &testutil.StubCompleter{Err: cause},
	}
	engine := newTestEngine(t, deps)

	_, err := engine.Answer(context.Background(), Request{Question: "q", UserID: uuid.New()})

	var answerErr *AnswerError
	if !errors.As(err, &answerErr) {
		t.Fatalf("error = %v, want *AnswerError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Unwrap chain does not expose the cause: %v", err)
	}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	engine := newTestEngine(t, engineDeps{})

	if _, err := engine.Answer(context.Background(), Request{Question: "   ", UserID: uuid.New()}); err == nil {
		t.Error("Answer accepted a blank question")
	}
}

func TestLastTurns(t *testing.T) {
	turns := []Turn{
		{Role: store.RoleUser, Text: "a"},
		{Role: store.RoleAgent, Text: "b"},
		{Role: store.RoleUser, Text: "c"},
	}

	tests := []struct {
		name    string
		history []Turn
		max     int
		want    []string
	}{
		{name: "shorter than window", history: turns, max: 5, want: []string{"a", "b", "c"}},
		{name: "trailing window", history: turns, max: 2, want: []string{"b", "c"}},
		{name: "zero max", history: turns, max: 0, want: nil},
		{name: "empty history", history: nil, max: 5, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LastTurns(tt.history, tt.max)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d turns, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].Text != w {
					t.Errorf("turn[%d] = %q, want %q", i, got[i].Text, w)
				}
			}
		})
	}
}
