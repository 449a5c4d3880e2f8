package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxReplyBytes caps how much of a reply body is read.
const maxReplyBytes = 4 << 20

// ProxyClient posts prompts to a completion proxy such as the server's own
// /api/openai endpoint.
type ProxyClient struct {
	url  string
	http *http.Client
}

// NewProxyClient returns a client for endpoint. A nil httpClient uses
// http.DefaultClient; deadlines come from the request context.
func NewProxyClient(endpoint string, httpClient *http.Client) (*ProxyClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q", endpoint)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProxyClient{url: endpoint, http: httpClient}, nil
}

func (c *ProxyClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(CompletionRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}

	content, err := ExtractContent(data)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			svcErr.Status = resp.StatusCode
			return "", svcErr
		}
		return "", &ServiceError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if err != nil {
		return "", err
	}
	return content, nil
}
