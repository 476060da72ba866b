package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	openai "github.com/sashabaranov/go-openai"

	"github.com/applydi/applydi/internal/log"
)

type fakeOpenAI struct {
	chatReq  *openai.ChatCompletionRequest
	chatResp openai.ChatCompletionResponse
	chatErr  error

	embedCalls int
	embedResp  openai.EmbeddingResponse
	embedErr   error
}

func (f *fakeOpenAI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatReq = &req
	return f.chatResp, f.chatErr
}

func (f *fakeOpenAI) CreateEmbeddings(_ context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.embedCalls++
	return f.embedResp, f.embedErr
}

func testClient(fake *fakeOpenAI) *Client {
	return &Client{
		openai:         fake,
		logger:         log.NewNop(),
		defaultModel:   DefaultModelID,
		embeddingModel: DefaultEmbeddingModel,
		embeddingDim:   DefaultEmbeddingDim,
		retryConfig:    fastRetryConfig(),
	}
}

func TestEmbed(t *testing.T) {
	fake := &fakeOpenAI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Embedding: []float32{0.1, 0.2}}},
		},
	}
	c := testClient(fake)

	got, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[0] != 0.1 {
		t.Errorf("Embed = %v, want [0.1 0.2]", got)
	}
	if fake.embedCalls != 1 {
		t.Errorf("CreateEmbeddings called %d times, want 1", fake.embedCalls)
	}
}

func TestEmbed_FailureWrapsSentinel(t *testing.T) {
	c := testClient(&fakeOpenAI{embedErr: errors.New("invalid api key")})

	_, err := c.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("Embed error = %v, want wrapping ErrEmbeddingUnavailable", err)
	}
}

func TestEmbed_EmptyResponse(t *testing.T) {
	c := testClient(&fakeOpenAI{embedResp: openai.EmbeddingResponse{}})

	_, err := c.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("Embed error = %v, want wrapping ErrEmbeddingUnavailable", err)
	}
}

func TestComplete_RoutesToOpenAI(t *testing.T) {
	fake := &fakeOpenAI{
		chatResp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "  answer  "}},
			},
		},
	}
	c := testClient(fake)

	msgs := []*ai.Message{ai.NewUserMessage(ai.NewTextPart("question"))}
	got, err := c.Complete(context.Background(), msgs, WithModel("openai:ft:gpt-4o-mini:org::abc"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "answer" {
		t.Errorf("Complete = %q, want %q", got, "answer")
	}
	if fake.chatReq == nil {
		t.Fatal("CreateChatCompletion was not called")
	}
	// The provider prefix is stripped; the rest of the ID, colons included,
	// is the model name.
	if fake.chatReq.Model != "ft:gpt-4o-mini:org::abc" {
		t.Errorf("model = %q, want %q", fake.chatReq.Model, "ft:gpt-4o-mini:org::abc")
	}
}

func TestComplete_OpenAIEmptyChoices(t *testing.T) {
	c := testClient(&fakeOpenAI{chatResp: openai.ChatCompletionResponse{}})

	msgs := []*ai.Message{ai.NewUserMessage(ai.NewTextPart("question"))}
	_, err := c.Complete(context.Background(), msgs, WithModel("openai:gpt-4o"))
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Complete error = %v, want ErrEmptyCompletion", err)
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name         string
		opts         CompleteOptions
		wantProvider string
		wantModel    string
	}{
		{
			name:         "empty uses default",
			opts:         CompleteOptions{},
			wantProvider: providerGemini,
			wantModel:    "gemini-2.5-flash",
		},
		{
			name:         "gemini prefix",
			opts:         CompleteOptions{ModelID: "gemini:gemini-2.5-pro"},
			wantProvider: providerGemini,
			wantModel:    "gemini-2.5-pro",
		},
		{
			name:         "openai prefix",
			opts:         CompleteOptions{ModelID: "openai:gpt-4o"},
			wantProvider: providerOpenAI,
			wantModel:    "gpt-4o",
		},
		{
			name:         "bare model name treated as gemini",
			opts:         CompleteOptions{ModelID: "gemini-2.0-flash"},
			wantProvider: providerGemini,
			wantModel:    "gemini-2.0-flash",
		},
		{
			name:         "unknown provider falls back to default",
			opts:         CompleteOptions{ModelID: "anthropic:claude"},
			wantProvider: providerGemini,
			wantModel:    "gemini-2.5-flash",
		},
		{
			name:         "gemini only overrides openai model",
			opts:         CompleteOptions{ModelID: "openai:gpt-4o", GeminiOnly: true},
			wantProvider: providerGemini,
			wantModel:    "gemini-2.5-flash",
		},
		{
			name:         "gemini only keeps gemini model",
			opts:         CompleteOptions{ModelID: "gemini:gemini-2.5-pro", GeminiOnly: true},
			wantProvider: providerGemini,
			wantModel:    "gemini-2.5-pro",
		},
	}

	c := testClient(&fakeOpenAI{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model := c.resolveModel(tt.opts)
			if provider != tt.wantProvider || model != tt.wantModel {
				t.Errorf("resolveModel(%+v) = (%q, %q), want (%q, %q)",
					tt.opts, provider, model, tt.wantProvider, tt.wantModel)
			}
		})
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := []*ai.Message{
		ai.NewSystemMessage(ai.NewTextPart("be helpful")),
		ai.NewModelMessage(ai.NewTextPart("hello")),
		ai.NewUserMessage(ai.NewTextPart("question")),
	}

	got := toOpenAIMessages(msgs)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	wantRoles := []string{
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleUser,
	}
	wantContent := []string{"be helpful", "hello", "question"}
	for i := range got {
		if got[i].Role != wantRoles[i] {
			t.Errorf("message[%d].Role = %q, want %q", i, got[i].Role, wantRoles[i])
		}
		if got[i].Content != wantContent[i] {
			t.Errorf("message[%d].Content = %q, want %q", i, got[i].Content, wantContent[i])
		}
	}
}
