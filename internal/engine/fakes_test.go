package engine

import (
	"context"
	"encoding/json"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contentforge/engine/internal/config"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/posts"
	"contentforge/engine/internal/settings"
	"contentforge/engine/internal/toolgen"
	"contentforge/engine/internal/wordpress"
	"contentforge/engine/internal/workflow"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu          sync.Mutex
	ideas       []toolgen.Idea
	ideasErr    error
	ideasCalls  int
	blockIdeas  int
	ideasGate   chan struct{}
	ideasPaused chan struct{}

	chunks       []string
	streamErrs   []error
	streamCalls  int
	pauseAt      int
	streamGate   chan struct{}
	streamPaused chan struct{}

	scores   []posts.ScoreUpdate
	scoreErr error
	scored   []toolgen.PostSummary
}

func (f *fakeProvider) ID() string {
	return settings.ProviderOpenAI
}

func (f *fakeProvider) ValidateKey(ctx context.Context, apiKey, model string) error {
	return nil
}

func (f *fakeProvider) GenerateIdeas(ctx context.Context, creds toolgen.Credentials, title, content string) ([]toolgen.Idea, error) {
	f.mu.Lock()
	f.ideasCalls++
	block := f.ideasGate != nil && f.ideasCalls == f.blockIdeas
	f.mu.Unlock()
	if block {
		f.ideasPaused <- struct{}{}
		select {
		case <-f.ideasGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.ideasErr != nil {
		return nil, f.ideasErr
	}
	return f.ideas, nil
}

func (f *fakeProvider) GenerateSnippetStream(ctx context.Context, creds toolgen.Credentials, title, content string, idea toolgen.Idea, themeColor string) iter.Seq2[string, error] {
	f.mu.Lock()
	f.streamCalls++
	var streamErr error
	if len(f.streamErrs) > 0 {
		streamErr = f.streamErrs[0]
		f.streamErrs = f.streamErrs[1:]
	}
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		if streamErr != nil {
			yield("", streamErr)
			return
		}
		for i, chunk := range f.chunks {
			if f.streamGate != nil && i == f.pauseAt {
				f.streamPaused <- struct{}{}
				select {
				case <-f.streamGate:
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				}
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (f *fakeProvider) ScorePosts(ctx context.Context, creds toolgen.Credentials, summaries []toolgen.PostSummary) ([]posts.ScoreUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scored = summaries
	return f.scores, f.scoreErr
}

type fakeSite struct {
	mu            sync.Mutex
	page          wordpress.Page
	createID      int
	createErrs    []error
	createCalls   int
	created       []string
	updateCalls   int
	updateErr     error
	updatedRaw    map[int]string
	updateGate    chan struct{}
	updatePaused  chan struct{}
	deleteCalls   int
	deletedIDs    []int
	deleteErr     error
	setupMissing  bool
	fetchedPages  []int
	pagesByNumber map[int]wordpress.Page
}

func (s *fakeSite) CheckSetup(ctx context.Context) (bool, error) {
	return !s.setupMissing, nil
}

func (s *fakeSite) FetchPosts(ctx context.Context, page int) (wordpress.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedPages = append(s.fetchedPages, page)
	result, ok := s.pagesByNumber[page]
	if !ok {
		result = s.page
	}
	derived := make([]posts.Post, 0, len(result.Posts))
	for _, p := range result.Posts {
		derived = append(derived, p.WithDerivedTool())
	}
	return wordpress.Page{Posts: derived, TotalPages: result.TotalPages}, nil
}

func (s *fakeSite) UpdatePostContent(ctx context.Context, postID int, rawContent string) (posts.Post, error) {
	s.mu.Lock()
	s.updateCalls++
	gate := s.updateGate
	s.mu.Unlock()
	if gate != nil {
		s.updatePaused <- struct{}{}
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return posts.Post{}, s.updateErr
	}
	if s.updatedRaw == nil {
		s.updatedRaw = map[int]string{}
	}
	s.updatedRaw[postID] = rawContent
	return posts.Post{
		ID:              postID,
		Title:           "updated",
		RawContent:      rawContent,
		RawAvailable:    true,
		RenderedContent: rawContent,
	}, nil
}

func (s *fakeSite) CreateToolRecord(ctx context.Context, title, html string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	s.created = append(s.created, html)
	return s.createID, nil
}

func (s *fakeSite) DeleteToolRecord(ctx context.Context, toolID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	s.deletedIDs = append(s.deletedIDs, toolID)
	return s.deleteErr
}

type recorder struct {
	mu     sync.Mutex
	events []string
	deltas []string
}

func (r *recorder) notify(method string, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, method)
	if method == NotifyWorkflowSnippetDelta {
		r.deltas = append(r.deltas, params.(map[string]any)["delta"].(string))
	}
}

func (r *recorder) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event == method {
			n++
		}
	}
	return n
}

func mustJSON(t *testing.T, value any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(value)
	require.NoError(t, err)
	return data
}

// newTestEngine builds an engine with a configured provider key and a
// connected fake site.
func newTestEngine(t *testing.T, provider *fakeProvider, site *fakeSite) (*Engine, *recorder) {
	t.Helper()
	registry := toolgen.NewRegistry()
	registry.Register(provider)
	eng, err := New(
		WithDataDir(t.TempDir()),
		WithProviders(registry),
		WithSiteFactory(func(config.SiteConfig) (Site, error) { return site, nil }),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	rec := &recorder{}
	eng.SetNotifier(rec.notify)

	ctx := context.Background()
	_, errInfo := eng.ProvidersSetApiKey(ctx, mustJSON(t, map[string]any{"provider_id": "openai", "api_key": "sk-test"}))
	require.Nil(t, errInfo)
	_, errInfo = eng.ProvidersSelect(ctx, mustJSON(t, map[string]any{"provider_id": "openai"}))
	require.Nil(t, errInfo)
	_, errInfo = eng.SiteConnect(ctx, mustJSON(t, map[string]any{
		"site_url":     "https://blog.example.com/",
		"username":     "editor",
		"app_password": "abcd efgh ijkl",
	}))
	require.Nil(t, errInfo)
	return eng, rec
}

func sessionOf(t *testing.T, result any) workflow.Session {
	t.Helper()
	payload, ok := result.(map[string]any)
	require.True(t, ok, "expected map payload, got %T", result)
	session, ok := payload["session"].(workflow.Session)
	require.True(t, ok, "expected session in payload, got %v", payload)
	return session
}

func currentSession(t *testing.T, eng *Engine) workflow.Session {
	t.Helper()
	result, errInfo := eng.WorkflowGetState(context.Background(), nil)
	require.Nil(t, errInfo)
	return sessionOf(t, result)
}

func requireCode(t *testing.T, errInfo *errinfo.ErrorInfo, code string) {
	t.Helper()
	require.NotNil(t, errInfo, "expected %s error", code)
	require.Equal(t, code, errInfo.ErrorCode, "unexpected error: %v", errInfo)
}
