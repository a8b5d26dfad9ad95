package mistral

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

const defaultBaseURL = "https://api.mistral.ai"
const defaultMaxTokens = 8192

// Client implements a minimal Mistral chat-completions API wrapper.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	transport := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{"api.mistral.ai"})
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
	path := "/v1/models"
	model = strings.TrimSpace(model)
	if model != "" {
		path += "/" + url.PathEscape(model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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
	return llm.CheckStatus("mistral", resp)
}

func (c *Client) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	resp, err := c.post(ctx, apiKey, buildPayload(ctx, model, messages, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}
	content := extractContent(completion.Choices[0].Message.Content)
	if strings.TrimSpace(content) == "" {
		return "", llm.ErrEmptyResponse
	}
	return content, nil
}

func (c *Client) StreamChat(ctx context.Context, apiKey, model string, messages []llm.Message, onDelta func(string)) (string, error) {
	resp, err := c.post(ctx, apiKey, buildPayload(ctx, model, messages, true))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var builder strings.Builder
	err = llm.ReadSSE(resp.Body, func(data string) (bool, error) {
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		for _, choice := range chunk.Choices {
			delta := extractContent(choice.Delta.Content)
			if delta == "" {
				continue
			}
			builder.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
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

func (c *Client) post(ctx context.Context, apiKey string, payload chatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, llm.TransportError(err)
	}
	if err := llm.CheckStatus("mistral", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content json.RawMessage `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type contentBlock struct {
	Text string `json:"text"`
}

func buildPayload(ctx context.Context, model string, messages []llm.Message, stream bool) chatCompletionRequest {
	payload := chatCompletionRequest{
		Model:     model,
		Messages:  make([]chatMessage, 0, len(messages)),
		MaxTokens: llm.MaxTokensFromContext(ctx, defaultMaxTokens),
		Stream:    stream,
	}
	if llm.JSONOutputFromContext(ctx) {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	for _, msg := range messages {
		payload.Messages = append(payload.Messages, chatMessage{
			Role:    normalizeRole(msg.Role),
			Content: msg.Content,
		})
	}
	return payload
}

func normalizeRole(role string) string {
	switch strings.TrimSpace(role) {
	case "assistant", "user", "system":
		return strings.TrimSpace(role)
	default:
		return "user"
	}
}

// extractContent accepts both the plain string and the content-block array
// forms Mistral returns.
func extractContent(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var builder strings.Builder
		for _, block := range blocks {
			builder.WriteString(block.Text)
		}
		return builder.String()
	}
	return ""
}
