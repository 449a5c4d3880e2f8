package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProxyClient_Generate(t *testing.T) {
	var got CompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(NewCompletionResponse("**Materials**\nCotton"))
	}))
	defer srv.Close()

	c, err := NewProxyClient(srv.URL+"/api/openai", srv.Client())
	if err != nil {
		t.Fatalf("NewProxyClient: %v", err)
	}

	out, err := c.Generate(context.Background(), "describe a hoodie")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "**Materials**\nCotton" {
		t.Errorf("Generate = %q", out)
	}
	if got.Prompt != "describe a hoodie" {
		t.Errorf("prompt sent = %q", got.Prompt)
	}
}

func TestProxyClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error body", http.StatusBadRequest, `{"error":"Missing prompt in request body"}`, "Missing prompt in request body"},
		{"object error", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, "slow down"},
		{"no body", http.StatusBadGateway, ``, "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewProxyClient(srv.URL, nil)
			if err != nil {
				t.Fatalf("NewProxyClient: %v", err)
			}
			_, err = c.Generate(context.Background(), "p")

			var svcErr *ServiceError
			if !errors.As(err, &svcErr) {
				t.Fatalf("err = %v, want ServiceError", err)
			}
			if svcErr.Status != tt.status || svcErr.Message != tt.wantMsg {
				t.Errorf("got %d %q, want %d %q", svcErr.Status, svcErr.Message, tt.status, tt.wantMsg)
			}
		})
	}
}

func TestProxyClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewProxyClient(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewProxyClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, "p"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestNewProxyClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8787", "ftp://example.com/x", "http://"} {
		if _, err := NewProxyClient(u, nil); err == nil {
			t.Errorf("NewProxyClient(%q) should fail", u)
		}
	}
}
