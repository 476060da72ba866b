package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/applydi/applydi/internal/log"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: errors.New("Rate Limit exceeded"), want: true},
		{name: "http 429", err: errors.New("status code: 429"), want: true},
		{name: "server error", err: errors.New("upstream returned 503"), want: true},
		{name: "unavailable", err: errors.New("model temporarily UNAVAILABLE"), want: true},
		{name: "timeout", err: errors.New("dial tcp: i/o timeout"), want: true},
		{name: "auth failure", err: errors.New("invalid api key"), want: false},
		{name: "bad request", err: errors.New("status code: 400"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestCallWithRetry_SucceedsAfterTransientError(t *testing.T) {
	calls := 0
	got, err := callWithRetry(context.Background(), log.NewNop(), fastRetryConfig(), nil, "op",
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("status code: 429")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("callWithRetry: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestCallWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("invalid api key")
	_, err := callWithRetry(context.Background(), log.NewNop(), fastRetryConfig(), nil, "op",
		func(context.Context) (string, error) {
			calls++
			return "", wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapping %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestCallWithRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	wantErr := errors.New("status code: 503")
	_, err := callWithRetry(context.Background(), log.NewNop(), fastRetryConfig(), nil, "op",
		func(context.Context) (string, error) {
			calls++
			return "", wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapping %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3 (initial + 2 retries)", calls)
	}
}

func TestCallWithRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := callWithRetry(ctx, log.NewNop(), fastRetryConfig(), nil, "op",
		func(context.Context) (string, error) {
			return "", errors.New("status code: 503")
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
