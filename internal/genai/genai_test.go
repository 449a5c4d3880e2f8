package genai

import (
	"errors"
	"testing"

	"github.com/formdepartment/capsule/internal/config"
)

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
		svcMsg  string
	}{
		{
			name: "message content",
			body: `{"choices":[{"message":{"content":"**Materials**\nCotton"}}]}`,
			want: "**Materials**\nCotton",
		},
		{
			name: "legacy text",
			body: `{"choices":[{"text":"plain completion"}]}`,
			want: "plain completion",
		},
		{
			name: "empty message falls back to text",
			body: `{"choices":[{"message":{"content":""},"text":"fallback"}]}`,
			want: "fallback",
		},
		{
			name:    "no choices",
			body:    `{"choices":[]}`,
			wantErr: ErrEmptyReply,
		},
		{
			name:    "blank content",
			body:    `{"choices":[{"message":{"content":"  "}}]}`,
			wantErr: ErrEmptyReply,
		},
		{
			name:   "string error",
			body:   `{"error":"Missing prompt in request body"}`,
			svcMsg: "Missing prompt in request body",
		},
		{
			name:   "object error",
			body:   `{"error":{"message":"rate limited","type":"requests"}}`,
			svcMsg: "rate limited",
		},
		{
			name:    "not json",
			body:    `<html>bad gateway</html>`,
			wantErr: ErrMalformedReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractContent([]byte(tt.body))
			switch {
			case tt.svcMsg != "":
				var svcErr *ServiceError
				if !errors.As(err, &svcErr) {
					t.Fatalf("err = %v, want ServiceError", err)
				}
				if svcErr.Message != tt.svcMsg {
					t.Errorf("Message = %q, want %q", svcErr.Message, tt.svcMsg)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("got %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestNewCompletionResponse_RoundTrip(t *testing.T) {
	resp := NewCompletionResponse("hello")
	if resp.Choices[0].Message.Content != "hello" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New(proxy) error = %v", err)
	}
	if _, ok := g.(*ProxyClient); !ok {
		t.Errorf("New(proxy) = %T", g)
	}

	cfg.Generator = config.GeneratorOpenAI
	if _, err := New(cfg); err == nil {
		t.Error("New(openai) without key should fail")
	}

	cfg.OpenAIAPIKey = "sk-test"
	g, err = New(cfg)
	if err != nil {
		t.Fatalf("New(openai) error = %v", err)
	}
	if _, ok := g.(*OpenAIClient); !ok {
		t.Errorf("New(openai) = %T", g)
	}

	cfg.Generator = "local"
	if _, err := New(cfg); err == nil {
		t.Error("unknown generator should fail")
	}
}
