package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com"
const defaultMaxOutputTokens = 8192

// Client implements a minimal Gemini generateContent API wrapper.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	transport := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{"generativelanguage.googleapis.com"})
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
	path := "/v1beta/models"
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model != "" {
		path += "/" + url.PathEscape(model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, apiKey, false), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return llm.TransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound && model != "" {
		return fmt.Errorf("%w: %s", llm.ErrModelNotFound, model)
	}
	// Gemini reports an invalid key as 400 INVALID_ARGUMENT.
	if resp.StatusCode == http.StatusBadRequest {
		return llm.ErrUnauthorized
	}
	return llm.CheckStatus("gemini", resp)
}

func (c *Client) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	resp, err := c.post(ctx, apiKey, model, "generateContent", buildRequest(ctx, messages), false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var response geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}
	text := response.text()
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// StreamChat uses streamGenerateContent with server-sent events.
func (c *Client) StreamChat(ctx context.Context, apiKey, model string, messages []llm.Message, onDelta func(string)) (string, error) {
	resp, err := c.post(ctx, apiKey, model, "streamGenerateContent", buildRequest(ctx, messages), true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var builder strings.Builder
	err = llm.ReadSSE(resp.Body, func(data string) (bool, error) {
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, nil
		}
		if text := chunk.text(); text != "" {
			builder.WriteString(text)
			if onDelta != nil {
				onDelta(text)
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

func (c *Client) endpoint(path, apiKey string, sse bool) string {
	q := url.Values{}
	q.Set("key", apiKey)
	if sse {
		q.Set("alt", "sse")
	}
	return c.baseURL + path + "?" + q.Encode()
}

func (c *Client) post(ctx context.Context, apiKey, model, method string, payload geminiRequest, sse bool) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/v1beta/models/%s:%s", url.PathEscape(strings.TrimPrefix(model, "models/")), method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, apiKey, sse), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, llm.TransportError(err)
	}
	if err := llm.CheckStatus("gemini", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var builder strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
	}
	return builder.String()
}

func buildRequest(ctx context.Context, messages []llm.Message) geminiRequest {
	req := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: llm.MaxTokensFromContext(ctx, defaultMaxOutputTokens),
		},
	}
	if llm.JSONOutputFromContext(ctx) {
		req.GenerationConfig.ResponseMimeType = "application/json"
	}
	var systemParts []geminiPart
	for _, msg := range messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, geminiPart{Text: msg.Content})
			continue
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  mapRole(msg.Role),
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	if len(systemParts) > 0 {
		req.SystemInstruction = &geminiContent{Parts: systemParts}
	}
	return req
}

func mapRole(role string) string {
	switch role {
	case "assistant", "model":
		return "model"
	default:
		return "user"
	}
}
