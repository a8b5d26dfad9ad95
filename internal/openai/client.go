package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contentforge/engine/internal/egress"
	"contentforge/engine/internal/llm"
)

const defaultBaseURL = "https://api.openai.com"

const defaultMaxOutputTokens = 8192

type responseEnvelope struct {
	Output []responseItem `json:"output"`
}

type responseItem struct {
	Type    string            `json:"type"`
	Role    string            `json:"role,omitempty"`
	Content []responseContent `json:"content,omitempty"`
}

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type streamEvent struct {
	Type     string            `json:"type"`
	Delta    string            `json:"delta,omitempty"`
	Response *responseEnvelope `json:"response,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// Client wraps the OpenAI Responses API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	transport := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{"api.openai.com"})
	return &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout:   600 * time.Second,
			Transport: transport,
		},
	}
}

// ValidateKey checks the key against the models endpoint. With a model id the
// model itself must be visible to the key.
func (c *Client) ValidateKey(ctx context.Context, apiKey, model string) error {
	if strings.TrimSpace(apiKey) == "" {
		return llm.ErrUnauthorized
	}
	endpoint := c.baseURL + "/v1/models"
	model = strings.TrimSpace(model)
	if model != "" {
		endpoint += "/" + url.PathEscape(model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return llm.TransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && model != "" {
		return fmt.Errorf("%w: %s", llm.ErrModelNotFound, model)
	}
	return llm.CheckStatus("openai", resp)
}

func (c *Client) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	resp, err := c.send(ctx, apiKey, c.buildPayload(ctx, model, messages, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var response responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}
	content := extractText(response.Output)
	if content == "" {
		return "", llm.ErrEmptyResponse
	}
	return content, nil
}

// StreamChat emits output_text deltas in arrival order and returns the full text.
func (c *Client) StreamChat(ctx context.Context, apiKey, model string, messages []llm.Message, onDelta func(string)) (string, error) {
	resp, err := c.send(ctx, apiKey, c.buildPayload(ctx, model, messages, true))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var builder strings.Builder
	var finalResponse *responseEnvelope
	err = llm.ReadSSE(resp.Body, func(data string) (bool, error) {
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return false, nil
		}
		switch event.Type {
		case "response.output_text.delta":
			if event.Delta == "" {
				return false, nil
			}
			builder.WriteString(event.Delta)
			if onDelta != nil {
				onDelta(event.Delta)
			}
		case "response.completed":
			finalResponse = event.Response
			return true, nil
		case "response.failed", "error":
			return true, fmt.Errorf("%w: %s", llm.ErrUnavailable, event.Message)
		}
		return false, nil
	})
	if err != nil {
		return builder.String(), err
	}
	content := builder.String()
	if content == "" && finalResponse != nil {
		content = extractText(finalResponse.Output)
		if content != "" && onDelta != nil {
			onDelta(content)
		}
	}
	if content == "" {
		return "", llm.ErrEmptyResponse
	}
	return content, nil
}

func (c *Client) send(ctx context.Context, apiKey string, payload map[string]any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, llm.TransportError(err)
	}
	if err := llm.CheckStatus("openai", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *Client) buildPayload(ctx context.Context, model string, messages []llm.Message, stream bool) map[string]any {
	var instructions []string
	input := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			instructions = append(instructions, msg.Content)
			continue
		}
		input = append(input, map[string]any{
			"role":    normalizeRole(msg.Role),
			"content": msg.Content,
		})
	}
	payload := map[string]any{
		"model":             model,
		"input":             input,
		"stream":            stream,
		"max_output_tokens": llm.MaxTokensFromContext(ctx, defaultMaxOutputTokens),
	}
	if len(instructions) > 0 {
		payload["instructions"] = strings.Join(instructions, "\n\n")
	}
	if llm.JSONOutputFromContext(ctx) {
		payload["text"] = map[string]any{"format": map[string]any{"type": "json_object"}}
	}
	return payload
}

func normalizeRole(role string) string {
	if role == "assistant" {
		return "assistant"
	}
	return "user"
}

func extractText(output []responseItem) string {
	var builder strings.Builder
	for _, item := range output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				builder.WriteString(part.Text)
			}
		}
	}
	return builder.String()
}
