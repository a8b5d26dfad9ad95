package mistral

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"contentforge/engine/internal/egress"
	"contentforge/engine/internal/llm"
)

type mockRT struct {
	roundTrip func(req *http.Request) (*http.Response, error)
}

func (m *mockRT) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.roundTrip(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func mockClient(fn func(req *http.Request) (*http.Response, error)) *Client {
	return &Client{
		baseURL: "https://api.mistral.ai",
		client:  &http.Client{Transport: &mockRT{roundTrip: fn}},
	}
}

func TestAllowlistRoundTripper(t *testing.T) {
	called := false
	rt := egress.NewAllowlistRoundTripper(&mockRT{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			called = true
			return response(http.StatusOK, "{}"), nil
		},
	}, []string{"api.mistral.ai"})

	req, _ := http.NewRequest(http.MethodGet, "https://api.mistral.ai/v1/models", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if !called {
		t.Fatalf("expected allowlisted request to reach base transport")
	}

	blockedReq, _ := http.NewRequest(http.MethodGet, "https://example.com/v1/models", nil)
	if _, err := rt.RoundTrip(blockedReq); err != llm.ErrEgressBlocked {
		t.Fatalf("expected egress blocked error, got %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/models/mistral-large-latest" {
			t.Fatalf("expected model lookup, got %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		return response(http.StatusOK, "{}"), nil
	})
	if err := client.ValidateKey(context.Background(), "sk-test", "mistral-large-latest"); err != nil {
		t.Fatalf("validate key failed: %v", err)
	}
}

func TestValidateKeyUnauthorized(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusUnauthorized, `{"message":"unauthorized"}`), nil
	})
	if err := client.ValidateKey(context.Background(), "sk-test", ""); err != llm.ErrUnauthorized {
		t.Fatalf("expected llm.ErrUnauthorized, got %v", err)
	}
}

func TestValidateKeyUnknownModel(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusNotFound, `{}`), nil
	})
	if err := client.ValidateKey(context.Background(), "sk-test", "nope"); !errors.Is(err, llm.ErrModelNotFound) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestChat(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("expected /v1/chat/completions, got %s", req.URL.Path)
		}
		var payload chatCompletionRequest
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.ResponseFormat == nil || payload.ResponseFormat.Type != "json_object" {
			t.Fatalf("expected json_object response format")
		}
		if payload.MaxTokens != 512 {
			t.Fatalf("expected max tokens 512, got %d", payload.MaxTokens)
		}
		return response(http.StatusOK, `{"choices":[{"message":{"content":"Hello"}}]}`), nil
	})
	ctx := llm.WithRequestProfile(context.Background(), llm.RequestProfile{MaxTokens: 512, JSONOutput: true})
	got, err := client.Chat(ctx, "sk-test", "mistral-large-latest", []llm.Message{llm.User("hi")})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if got != "Hello" {
		t.Fatalf("expected Hello, got %q", got)
	}
}

func TestChatContentBlocks(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"choices":[{"message":{"content":[{"type":"text","text":"Hel"},{"type":"text","text":"lo"}]}}]}`), nil
	})
	got, err := client.Chat(context.Background(), "sk-test", "mistral-large-latest", []llm.Message{llm.User("hi")})
	if err != nil || got != "Hello" {
		t.Fatalf("expected Hello, got %q %v", got, err)
	}
}

func TestStreamChat(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		body := "data: {\"choices\":[{\"delta\":{\"content\":\"<div>\"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"</div>\"}}]}\n\n" +
			"data: [DONE]\n\n"
		return response(http.StatusOK, body), nil
	})
	var deltas []string
	got, err := client.StreamChat(context.Background(), "sk-test", "mistral-large-latest", []llm.Message{llm.User("go")}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if got != "<div></div>" || len(deltas) != 2 {
		t.Fatalf("unexpected stream result %q %v", got, deltas)
	}
}

func TestStreamChatServerError(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusServiceUnavailable, ``), nil
	})
	if _, err := client.StreamChat(context.Background(), "sk-test", "m", nil, nil); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
