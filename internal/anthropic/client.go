package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contentforge/engine/internal/egress"
	"contentforge/engine/internal/llm"
)

const defaultBaseURL = "https://api.anthropic.com"
const defaultVersion = "2023-06-01"
const defaultMaxTokens = 8192

// Client implements the Anthropic Messages API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	transport := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{"api.anthropic.com"})
	return &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout:   300 * time.Second,
			Transport: transport,
		},
	}
}

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
	c.setHeaders(req, apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return llm.TransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && model != "" {
		return fmt.Errorf("%w: %s", llm.ErrModelNotFound, model)
	}
	return llm.CheckStatus("anthropic", resp)
}

func (c *Client) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	resp, err := c.post(ctx, apiKey, buildPayload(ctx, model, messages, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}
	content := extractText(response.Content)
	if content == "" {
		return "", llm.ErrEmptyResponse
	}
	return content, nil
}

// StreamChat consumes text_delta events of the streaming Messages API.
func (c *Client) StreamChat(ctx context.Context, apiKey, model string, messages []llm.Message, onDelta func(string)) (string, error) {
	resp, err := c.post(ctx, apiKey, buildPayload(ctx, model, messages, true))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var builder strings.Builder
	err = llm.ReadSSE(resp.Body, func(data string) (bool, error) {
		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return false, nil
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				return false, nil
			}
			builder.WriteString(event.Delta.Text)
			if onDelta != nil {
				onDelta(event.Delta.Text)
			}
		case "message_stop":
			return true, nil
		case "error":
			if event.Error.Type == "overloaded_error" || event.Error.Type == "api_error" {
				return true, fmt.Errorf("%w: %s", llm.ErrUnavailable, event.Error.Message)
			}
			return true, fmt.Errorf("anthropic stream error: %s: %s", event.Error.Type, event.Error.Message)
		}
		return false, nil
	})
	if err != nil {
		return builder.String(), err
	}
	if builder.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return builder.String(), nil
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", defaultVersion)
}

func (c *Client) post(ctx context.Context, apiKey string, payload map[string]any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, apiKey)
	req.Header.Set("content-type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, llm.TransportError(err)
	}
	if err := llm.CheckStatus("anthropic", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func buildPayload(ctx context.Context, model string, messages []llm.Message, stream bool) map[string]any {
	anthropicMessages, systemPrompt := toAnthropicMessages(messages)
	if llm.JSONOutputFromContext(ctx) {
		systemPrompt = strings.TrimSpace(systemPrompt + "\n\nRespond with a single JSON object and nothing else.")
	}
	payload := map[string]any{
		"model":      model,
		"max_tokens": llm.MaxTokensFromContext(ctx, defaultMaxTokens),
		"messages":   anthropicMessages,
		"stream":     stream,
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}
	return payload
}

func toAnthropicMessages(messages []llm.Message) ([]anthropicMessage, string) {
	var out []anthropicMessage
	var systemParts []string
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "system" {
			if text := strings.TrimSpace(msg.Content); text != "" {
				systemParts = append(systemParts, text)
			}
			continue
		}
		if role != "assistant" {
			role = "user"
		}
		out = append(out, anthropicMessage{
			Role:    role,
			Content: []anthropicContent{{Type: "text", Text: msg.Content}},
		})
	}
	return out, strings.Join(systemParts, "\n\n")
}

func extractText(contents []anthropicContent) string {
	var builder strings.Builder
	for _, part := range contents {
		if part.Type == "text" {
			builder.WriteString(part.Text)
		}
	}
	return builder.String()
}
