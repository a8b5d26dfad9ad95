// Package toolgen adapts the provider chat clients to the tool generation
// operations: idea suggestions, streamed snippet generation, key validation
// and opportunity scoring.
package toolgen

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"contentforge/engine/internal/llm"
	"contentforge/engine/internal/logging"
	"contentforge/engine/internal/posts"
)

const (
	ideasMaxTokens   = 1024
	snippetMaxTokens = 8192
	scoreMaxTokens   = 2048
	scoreBatchSize   = 20
)

// Credentials select the key and model used for one call.
type Credentials struct {
	APIKey string
	Model  string
}

// LLMClient is the chat surface each provider HTTP client implements.
type LLMClient interface {
	ValidateKey(ctx context.Context, apiKey, model string) error
	Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error)
	StreamChat(ctx context.Context, apiKey, model string, messages []llm.Message, onDelta func(string)) (string, error)
}

// Provider is the AI collaborator consumed by the engine.
type Provider interface {
	ID() string
	GenerateIdeas(ctx context.Context, creds Credentials, title, content string) ([]Idea, error)
	// GenerateSnippetStream yields snippet chunks in production order. The
	// sequence is single-use; stopping early cancels the upstream request.
	GenerateSnippetStream(ctx context.Context, creds Credentials, title, content string, idea Idea, themeColor string) iter.Seq2[string, error]
	ValidateKey(ctx context.Context, apiKey, model string) error
	ScorePosts(ctx context.Context, creds Credentials, summaries []PostSummary) ([]posts.ScoreUpdate, error)
}

type llmProvider struct {
	id     string
	client LLMClient
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewProvider wraps client as the provider registered under id.
func NewProvider(id string, client LLMClient, logger *slog.Logger) Provider {
	if logger == nil {
		logger = logging.Nop()
	}
	return &llmProvider{
		id:     id,
		client: client,
		logger: logger.With("component", "toolgen", "provider_id", id),
		sleep:  waitContext,
	}
}

func (p *llmProvider) ID() string {
	return p.id
}

func (p *llmProvider) ValidateKey(ctx context.Context, apiKey, model string) error {
	if strings.TrimSpace(apiKey) == "" {
		return llm.ErrUnauthorized
	}
	return p.client.ValidateKey(ctx, apiKey, model)
}

func (p *llmProvider) GenerateIdeas(ctx context.Context, creds Credentials, title, content string) ([]Idea, error) {
	ctx = llm.WithRequestProfile(ctx, llm.RequestProfile{MaxTokens: ideasMaxTokens, JSONOutput: true})
	raw, err := p.chatWithRetry(ctx, creds, ideasMessages(title, content), "toolgen.ideas")
	if err != nil {
		return nil, err
	}
	ideas, err := parseIdeas(raw)
	if err != nil {
		p.logger.Warn("toolgen.ideas_parse_failed", "error", err.Error())
		return nil, err
	}
	p.logger.Debug("toolgen.ideas_received", "count", len(ideas))
	return ideas, nil
}

func (p *llmProvider) GenerateSnippetStream(ctx context.Context, creds Credentials, title, content string, idea Idea, themeColor string) iter.Seq2[string, error] {
	messages := snippetMessages(title, content, idea, themeColor)
	ctx = llm.WithRequestProfile(ctx, llm.RequestProfile{MaxTokens: snippetMaxTokens})
	return streamChunks(ctx, func(ctx context.Context, onDelta func(string)) error {
		return p.streamWithRetry(ctx, creds, messages, onDelta)
	})
}

func (p *llmProvider) ScorePosts(ctx context.Context, creds Credentials, summaries []PostSummary) ([]posts.ScoreUpdate, error) {
	ctx = llm.WithRequestProfile(ctx, llm.RequestProfile{MaxTokens: scoreMaxTokens, JSONOutput: true})
	var updates []posts.ScoreUpdate
	for start := 0; start < len(summaries); start += scoreBatchSize {
		end := min(start+scoreBatchSize, len(summaries))
		messages, err := scoreMessages(summaries[start:end])
		if err != nil {
			return nil, err
		}
		raw, err := p.chatWithRetry(ctx, creds, messages, "toolgen.score")
		if err != nil {
			return nil, err
		}
		batch, err := parseScores(raw)
		if err != nil {
			p.logger.Warn("toolgen.score_parse_failed", "error", err.Error())
			return nil, err
		}
		updates = append(updates, batch...)
	}
	return updates, nil
}

func (p *llmProvider) chatWithRetry(ctx context.Context, creds Credentials, messages []llm.Message, event string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= rateLimitPolicy.Retries; attempt++ {
		resp, err := p.client.Chat(ctx, creds.APIKey, creds.Model, messages)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, llm.ErrRateLimited) || attempt == rateLimitPolicy.Retries {
			return "", err
		}
		if err := p.backoff(ctx, event, attempt+1); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// streamWithRetry retries a rate-limited stream only while nothing has been
// emitted, so consumers never see a chunk twice.
func (p *llmProvider) streamWithRetry(ctx context.Context, creds Credentials, messages []llm.Message, onDelta func(string)) error {
	var lastErr error
	for attempt := 0; attempt <= rateLimitPolicy.Retries; attempt++ {
		emitted := false
		_, err := p.client.StreamChat(ctx, creds.APIKey, creds.Model, messages, func(delta string) {
			emitted = true
			onDelta(delta)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if emitted || !errors.Is(err, llm.ErrRateLimited) || attempt == rateLimitPolicy.Retries {
			return err
		}
		if err := p.backoff(ctx, "toolgen.snippet", attempt+1); err != nil {
			return err
		}
	}
	return lastErr
}

func (p *llmProvider) backoff(ctx context.Context, event string, retryAttempt int) error {
	wait := rateLimitPolicy.delay(retryAttempt)
	p.logger.Warn(
		event+"_rate_limited",
		"retry_attempt", retryAttempt,
		"retry_max", rateLimitPolicy.Retries,
		"retry_in_ms", wait.Milliseconds(),
	)
	return p.sleep(ctx, wait)
}
