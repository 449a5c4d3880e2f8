package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/formdepartment/capsule/internal/config"
)

// OpenAIOptions configures an OpenAIClient. Zero values take the defaults
// below.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

// OpenAIOptionsFrom reads the openai_* settings from cfg.
func OpenAIOptionsFrom(cfg *config.Config) OpenAIOptions {
	return OpenAIOptions{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: cfg.OpenAITemperature,
	}
}

const (
	defaultModel       = "gpt-4o"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
)

// OpenAIClient generates text with the chat completions API.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIClient returns a client for the OpenAI API or a compatible service.
func NewOpenAIClient(o OpenAIOptions) (*OpenAIClient, error) {
	if o.APIKey == "" {
		return nil, errors.New("openai api key is not set (CAPSULE_OPENAI_API_KEY)")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		option.WithMaxRetries(0),
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(o.HTTPClient))
	}

	c := &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       o.Model,
		maxTokens:   o.MaxTokens,
		temperature: o.Temperature,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.temperature <= 0 {
		c.temperature = defaultTemperature
	}
	return c, nil
}

func (c *OpenAIClient) params(prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
		Temperature: openai.Float(c.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(SystemPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(prompt))
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &ServiceError{Status: apiErr.StatusCode, Message: apiErr.Message}
		}
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
