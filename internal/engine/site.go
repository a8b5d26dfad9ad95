package engine

import (
	"context"
	"encoding/json"

	"contentforge/engine/internal/config"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/logging"
	"contentforge/engine/internal/posts"
	"contentforge/engine/internal/wordpress"
	"contentforge/engine/internal/workflow"
)

// Site is the WordPress collaborator. *wordpress.Client implements it.
type Site interface {
	CheckSetup(ctx context.Context) (bool, error)
	FetchPosts(ctx context.Context, page int) (wordpress.Page, error)
	UpdatePostContent(ctx context.Context, postID int, rawContent string) (posts.Post, error)
	CreateToolRecord(ctx context.Context, title, html string) (int, error)
	DeleteToolRecord(ctx context.Context, toolID int) error
}

type SiteFactory func(site config.SiteConfig) (Site, error)

func (e *Engine) defaultSite(site config.SiteConfig) (Site, error) {
	return wordpress.NewClient(site, e.siteOpts)
}

// SiteConnect validates the credentials, checks the tool post type is
// registered and loads the first page of posts. Any open session is closed.
func (e *Engine) SiteConnect(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req config.SiteConfig
	if errInfo := decodeParams(params, &req, errinfo.PhaseSite); errInfo != nil {
		return nil, errInfo
	}
	normalized, err := req.Validate()
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSite, err.Error())
	}
	e.logger.Info("site.connect", "site_url", normalized.URL, "username", normalized.Username, "app_password", logging.RedactValue(normalized.AppPassword))
	site, err := e.newSite(normalized)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSite, err.Error())
	}
	ready, err := site.CheckSetup(ctx)
	if err != nil {
		e.logger.Warn("site.check_setup_failed", "error", err.Error())
		return nil, mapSiteError(errinfo.PhaseSite, err)
	}
	if !ready {
		return nil, errinfo.SiteNotSetUp(errinfo.PhaseSite)
	}
	page, err := site.FetchPosts(ctx, 1)
	if err != nil {
		e.logger.Warn("site.fetch_failed", "page", 1, "error", err.Error())
		return nil, mapSiteError(errinfo.PhasePosts, err)
	}
	if err := e.config.SetSiteConfig(normalized); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSite, err.Error())
	}
	e.mu.Lock()
	e.site = site
	e.resetSessionLocked()
	e.mu.Unlock()
	e.posts.Load(page.Posts)
	e.posts.SetPagination(1, page.TotalPages)
	e.logger.Info("site.connected", "site_url", normalized.URL, "posts", len(page.Posts), "total_pages", page.TotalPages)
	e.postsChanged()
	return e.postsPayload(), nil
}

func (e *Engine) SiteDisconnect(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	e.config.ClearSiteConfig()
	e.mu.Lock()
	e.site = nil
	e.resetSessionLocked()
	e.mu.Unlock()
	e.posts.Reset()
	e.logger.Info("site.disconnected")
	e.postsChanged()
	return map[string]any{}, nil
}

func (e *Engine) requireSite(phase string) (Site, *errinfo.ErrorInfo) {
	if _, ok := e.config.SiteConfig(); !ok {
		return nil, errinfo.SiteNotConfigured(phase)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.site == nil {
		return nil, errinfo.SiteNotConfigured(phase)
	}
	return e.site, nil
}

// resetSessionLocked drops the active session without a token check.
func (e *Engine) resetSessionLocked() {
	if !e.session.Active() {
		return
	}
	e.session = workflow.Idle()
	e.cancelStaleRunsLocked()
	e.emitLocked(NotifyWorkflowStateChanged, statePayload(e.session))
}
