package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FakeBackend is an in-memory ChatBackend for tests and for deployments
// that supply a deterministic stand-in instead of a real model.
type FakeBackend struct {
	// Response is returned verbatim by ChatCompletion. Fn, if set, takes
	// precedence and lets a test vary the response per call.
	Response string
	Fn       func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func (b *FakeBackend) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if b.Fn != nil {
		return b.Fn(ctx, systemPrompt, userPrompt)
	}
	return b.Response, nil
}

// HTTPBackend is a generic chat-completions-style HTTP client,
// parameterized by endpoint/model/key, with no provider-specific wire
// format baked in.
type HTTPBackend struct {
	Endpoint string
	APIKey   string
	Model    string
	Client   *http.Client
}

type httpChatRequest struct {
	Model       string        `json:"model"`
	Messages    []httpChatMsg `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type httpChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type httpChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *HTTPBackend) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	reqBody, err := json.Marshal(httpChatRequest{
		Model: b.Model,
		Messages: []httpChatMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("classifier: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("classifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier: request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded httpChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("classifier: decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("classifier: provider error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("classifier: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}
