package engine

import (
	"context"
	"encoding/json"

	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/posts"
	"contentforge/engine/internal/toolgen"
)

const scoreExcerptRunes = 1200

func (e *Engine) postsPayload() map[string]any {
	page, totalPages := e.posts.Pagination()
	_, hasMore := e.posts.NextPage()
	return map[string]any{
		"posts":       e.posts.View(),
		"page":        page,
		"total_pages": totalPages,
		"has_more":    hasMore,
	}
}

// PostsList returns the current view. With refresh set the first page is
// fetched again and replaces the collection.
func (e *Engine) PostsList(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Refresh bool `json:"refresh"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhasePosts); errInfo != nil {
		return nil, errInfo
	}
	if !req.Refresh {
		return e.postsPayload(), nil
	}
	site, errInfo := e.requireSite(errinfo.PhasePosts)
	if errInfo != nil {
		return nil, errInfo
	}
	page, err := site.FetchPosts(ctx, 1)
	if err != nil {
		e.logger.Warn("posts.fetch_failed", "page", 1, "error", err.Error())
		return nil, mapSiteError(errinfo.PhasePosts, err)
	}
	e.posts.Load(page.Posts)
	e.posts.SetPagination(1, page.TotalPages)
	e.postsChanged()
	return e.postsPayload(), nil
}

func (e *Engine) PostsLoadMore(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	site, errInfo := e.requireSite(errinfo.PhasePosts)
	if errInfo != nil {
		return nil, errInfo
	}
	next, ok := e.posts.NextPage()
	if !ok {
		return e.postsPayload(), nil
	}
	page, err := site.FetchPosts(ctx, next)
	if err != nil {
		e.logger.Warn("posts.fetch_failed", "page", next, "error", err.Error())
		return nil, mapSiteError(errinfo.PhasePosts, err)
	}
	e.posts.AppendPage(page.Posts)
	e.posts.SetPagination(next, page.TotalPages)
	e.logger.Debug("posts.page_loaded", "page", next, "count", len(page.Posts), "total_pages", page.TotalPages)
	e.postsChanged()
	return e.postsPayload(), nil
}

func (e *Engine) PostsSetFilter(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Query string `json:"query"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhasePosts); errInfo != nil {
		return nil, errInfo
	}
	e.posts.SetFilter(req.Query)
	e.postsChanged()
	return e.postsPayload(), nil
}

func (e *Engine) PostsSetSort(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Order string `json:"order"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhasePosts); errInfo != nil {
		return nil, errInfo
	}
	order, err := posts.ParseSortOrder(req.Order)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhasePosts, err.Error())
	}
	e.posts.SetSort(order)
	e.postsChanged()
	return e.postsPayload(), nil
}

// PostsScore asks the selected provider to rate every loaded post that does
// not carry a tool yet.
func (e *Engine) PostsScore(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	provider, creds, errInfo := e.resolveProvider(errinfo.PhaseScore)
	if errInfo != nil {
		return nil, errInfo
	}
	var summaries []toolgen.PostSummary
	for _, p := range e.posts.All() {
		if p.HasTool {
			continue
		}
		summaries = append(summaries, toolgen.PostSummary{
			ID:      p.ID,
			Title:   p.Title,
			Excerpt: toolgen.PlainText(postText(p), scoreExcerptRunes),
		})
	}
	if len(summaries) == 0 {
		return map[string]any{"scored": 0, "posts": e.posts.View()}, nil
	}
	updates, err := provider.ScorePosts(ctx, creds, summaries)
	if err != nil {
		e.logger.Warn("posts.score_failed", "provider_id", provider.ID(), "error", err.Error())
		return nil, mapLLMError(errinfo.PhaseScore, provider.ID(), err)
	}
	applied := e.posts.ApplyScores(updates)
	e.logger.Info("posts.scored", "provider_id", provider.ID(), "requested", len(summaries), "applied", applied)
	e.postsChanged()
	return map[string]any{"scored": applied, "posts": e.posts.View()}, nil
}

// postText is the best available body for prompts.
func postText(p posts.Post) string {
	if p.RawAvailable && p.RawContent != "" {
		return p.RawContent
	}
	return p.RenderedContent
}
