// Package genai talks to text generation services.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/formdepartment/capsule/internal/config"
)

// SystemPrompt is sent ahead of every prompt by clients that support one.
const SystemPrompt = "You are a helpful fashion designer assistant."

// Generator turns a prompt into completion text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var (
	// ErrEmptyReply means the service answered without any completion text.
	ErrEmptyReply = errors.New("reply has no completion text")

	// ErrMalformedReply means the reply body was not the expected JSON.
	ErrMalformedReply = errors.New("reply is not valid JSON")

	// ErrNotConfigured means no generator was set up.
	ErrNotConfigured = errors.New("no text generator configured")
)

// ServiceError is an error reported by the service in its reply body.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("service error (%d): %s", e.Status, e.Message)
	}
	return "service error: " + e.Message
}

// CompletionRequest is the body accepted by the completion proxy.
type CompletionRequest struct {
	Prompt string `json:"prompt"`
}

// CompletionResponse is the chat-completion shaped reply of the proxy.
type CompletionResponse struct {
	Choices []Choice        `json:"choices"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Choice is one completion alternative. Text is the legacy completion field.
type Choice struct {
	Message *Message `json:"message,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Message is a chat message.
type Message struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// NewCompletionResponse wraps content in the reply shape ExtractContent reads.
func NewCompletionResponse(content string) CompletionResponse {
	return CompletionResponse{Choices: []Choice{{Message: &Message{Role: "assistant", Content: content}}}}
}

// ExtractContent returns choices[0].message.content, falling back to
// choices[0].text. An "error" field, either a string or {message}, becomes a
// *ServiceError.
func ExtractContent(body []byte) (string, error) {
	var resp CompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if msg := errorMessage(resp.Error); msg != "" {
		return "", &ServiceError{Message: msg}
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	first := resp.Choices[0]
	if first.Message != nil && strings.TrimSpace(first.Message.Content) != "" {
		return first.Message.Content, nil
	}
	if strings.TrimSpace(first.Text) != "" {
		return first.Text, nil
	}
	return "", ErrEmptyReply
}

// errorMessage decodes an error field that is either a string or {message}.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// New returns the generator selected by cfg.Generator.
func New(cfg *config.Config) (Generator, error) {
	switch cfg.Generator {
	case config.GeneratorOpenAI:
		c, err := NewOpenAIClient(OpenAIOptionsFrom(cfg))
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.GeneratorProxy, "":
		c, err := NewProxyClient(cfg.ProxyURL, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown generator %q", cfg.Generator)
}
