package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"contentforge/engine/internal/appdirs"
	"contentforge/engine/internal/config"
	"contentforge/engine/internal/envutil"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/logging"
	"contentforge/engine/internal/posts"
	"contentforge/engine/internal/secrets"
	"contentforge/engine/internal/settings"
	"contentforge/engine/internal/toolgen"
	"contentforge/engine/internal/wordpress"
	"contentforge/engine/internal/workflow"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

const (
	NotifyWorkflowStateChanged = "WorkflowStateChanged"
	NotifyWorkflowSnippetDelta = "WorkflowSnippetDelta"
	NotifyPostsChanged         = "PostsChanged"
)

type Notifier func(method string, params any)

type sessionRun struct {
	token  workflow.Token
	cancel context.CancelFunc
}

type Engine struct {
	dataDir   string
	config    *config.Store
	providers *toolgen.Registry
	posts     *posts.Registry
	newSite   SiteFactory
	siteOpts  wordpress.Options
	notify    Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	site      Site
	session   workflow.Session
	lastToken workflow.Token
	// mutating holds the insert or delete running for a post id.
	mutating  map[int]string
	runSeq    uint64
	runs      map[uint64]sessionRun
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProviders replaces the built-in provider registry.
func WithProviders(registry *toolgen.Registry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.providers = registry
		}
	}
}

// WithSiteFactory replaces how a site adapter is built on SiteConnect.
func WithSiteFactory(factory SiteFactory) Option {
	return func(e *Engine) {
		if factory != nil {
			e.newSite = factory
		}
	}
}

func WithDataDir(dir string) Option {
	return func(e *Engine) {
		e.dataDir = dir
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{
		logger:    logging.Nop(),
		now:       time.Now,
		session:   workflow.Idle(),
		mutating:  make(map[int]string),
		runs:      make(map[uint64]sessionRun),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.dataDir == "" {
		dataDir, err := appdirs.DataDir()
		if err != nil {
			return nil, err
		}
		engine.dataDir = dataDir
	}
	if err := os.MkdirAll(engine.dataDir, 0o755); err != nil {
		return nil, err
	}
	engine.config = config.NewStore(
		settings.NewStore(appdirs.SettingsPath(engine.dataDir)),
		secrets.NewStore(appdirs.SecretsPath(engine.dataDir), appdirs.MasterKeyPath(engine.dataDir)),
	)
	if engine.providers == nil {
		engine.providers = toolgen.DefaultRegistry(engine.logger)
	}
	engine.posts = posts.NewRegistry(engine.logger.With("component", "posts"))
	engine.siteOpts = wordpress.Options{
		RequestsPerSecond: envutil.Float("CONTENTFORGE_WP_RPS", 0),
		Timeout:           envutil.Duration("CONTENTFORGE_WP_TIMEOUT", 0),
		Logger:            engine.logger,
	}
	if engine.newSite == nil {
		engine.newSite = engine.defaultSite
	}
	engine.logger.Debug("engine.init", "data_dir", engine.dataDir, "providers", engine.providers.IDs())
	return engine, nil
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = notify
}

func (e *Engine) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
		"data_dir":       e.dataDir,
	}, nil
}

// emitLocked sends a notification. Callers hold e.mu so observers see
// notifications in transition order.
func (e *Engine) emitLocked(method string, params any) {
	if e.notify != nil {
		e.notify(method, params)
	}
}

func (e *Engine) emit(method string, params any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(method, params)
}

func (e *Engine) postsChanged() {
	e.emit(NotifyPostsChanged, e.postsPayload())
}

func decodeParams(params json.RawMessage, out any, phase string) *errinfo.ErrorInfo {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return errinfo.ValidationFailed(phase, "invalid params")
	}
	return nil
}
