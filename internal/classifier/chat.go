package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// chatClient speaks the OpenAI-compatible chat completions API.
type chatClient struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) GenerateMetadata(ctx context.Context, content string, types []CandidateType) (*Metadata, error) {
	text, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: metadataSystemPrompt},
			{Role: "user", Content: metadataPrompt(content, types)},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, &Error{Op: "generate metadata", Err: err}
	}
	md, err := parseMetadata(text, types)
	if err != nil {
		return nil, &Error{Op: "generate metadata", Err: err}
	}
	return md, nil
}

func (c *chatClient) SuggestProject(ctx context.Context, content string, projects []CandidateProject) (*ProjectSuggestion, error) {
	if len(projects) == 0 {
		return nil, nil
	}
	text, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: projectSystemPrompt},
			{Role: "user", Content: projectPrompt(content, projects)},
		},
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		return nil, &Error{Op: "suggest project", Err: err}
	}
	s, err := parseProjectSuggestion(text, projects)
	if err != nil {
		return nil, &Error{Op: "suggest project", Err: err}
	}
	return s, nil
}

func (c *chatClient) complete(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	for _, ch := range resp.Choices {
		if strings.TrimSpace(ch.Message.Content) != "" {
			return ch.Message.Content, nil
		}
	}
	return "", fmt.Errorf("invalid response structure: no message content")
}

func (c *chatClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
