package engine

import (
	"context"
	"encoding/json"
	"errors"

	"contentforge/engine/internal/content"
	"contentforge/engine/internal/diff"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/llm"
	"contentforge/engine/internal/posts"
	"contentforge/engine/internal/toolgen"
	"contentforge/engine/internal/workflow"
)

// previewToolID stands in for the real id when previewing a placement.
const previewToolID = 0

type tokenParams struct {
	Token workflow.Token `json:"token"`
}

func statePayload(s workflow.Session) map[string]any {
	return map[string]any{"session": s}
}

// dispatch applies ev to the active session and broadcasts the result. Stale
// results are dropped and logged.
func (e *Engine) dispatch(token workflow.Token, ev workflow.Event) (workflow.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.session
	next, err := workflow.Apply(prev, token, ev)
	if err != nil {
		if errors.Is(err, workflow.ErrStaleSession) {
			e.logger.Debug("workflow.stale_result_dropped", "event", workflow.EventName(ev), "token", token, "active_token", prev.Token)
		} else {
			e.logger.Warn("workflow.invalid_transition", "event", workflow.EventName(ev), "stage", prev.Stage, "error", err.Error())
		}
		return prev, err
	}
	e.session = next
	if chunk, ok := ev.(workflow.ChunkReceived); ok {
		e.emitLocked(NotifyWorkflowSnippetDelta, map[string]any{"token": token, "delta": chunk.Text})
		if prev.Stage == next.Stage {
			return next, nil
		}
	}
	e.cancelStaleRunsLocked()
	e.logger.Debug("workflow.transition", "event", workflow.EventName(ev), "from", prev.Stage, "to", next.Stage, "post_id", next.PostID())
	e.emitLocked(NotifyWorkflowStateChanged, statePayload(next))
	return next, nil
}

// beginRun ties a provider call to token. The returned context is cancelled
// once token stops being the active session.
func (e *Engine) beginRun(parent context.Context, token workflow.Token) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Token != token {
		cancel()
		return ctx, func() {}
	}
	e.runSeq++
	id := e.runSeq
	e.runs[id] = sessionRun{token: token, cancel: cancel}
	return ctx, func() {
		e.mu.Lock()
		delete(e.runs, id)
		e.mu.Unlock()
		cancel()
	}
}

func (e *Engine) cancelStaleRunsLocked() {
	for id, run := range e.runs {
		if run.token != e.session.Token || !e.session.Active() {
			run.cancel()
			delete(e.runs, id)
		}
	}
}

func (e *Engine) WorkflowGetState(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return statePayload(e.session), nil
}

// WorkflowOpen starts a session for a post and requests tool ideas. A session
// that was not committed is discarded.
func (e *Engine) WorkflowOpen(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		PostID int `json:"post_id"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseIdeas); errInfo != nil {
		return nil, errInfo
	}
	post, ok := e.posts.Get(req.PostID)
	if !ok {
		return nil, errinfo.ValidationFailed(errinfo.PhaseIdeas, "unknown post")
	}
	if post.HasTool {
		return nil, errinfo.ValidationFailed(errinfo.PhaseIdeas, "post already has a tool")
	}
	if _, _, errInfo := e.resolveProvider(errinfo.PhaseIdeas); errInfo != nil {
		return nil, errInfo
	}
	e.mu.Lock()
	e.lastToken++
	token := e.lastToken
	e.mu.Unlock()
	if _, err := e.dispatch(0, workflow.Open{Post: post, Token: token}); err != nil {
		return nil, mapWorkflowError(errinfo.PhaseIdeas, err)
	}
	e.logger.Info("workflow.opened", "post_id", post.ID, "token", token)
	return e.requestIdeas(ctx, token, post)
}

func (e *Engine) WorkflowRetryIdeas(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req tokenParams
	if errInfo := decodeParams(params, &req, errinfo.PhaseIdeas); errInfo != nil {
		return nil, errInfo
	}
	session, err := e.dispatch(req.Token, workflow.RetryIdeas{})
	if err != nil {
		return nil, mapWorkflowError(errinfo.PhaseIdeas, err)
	}
	return e.requestIdeas(ctx, req.Token, *session.Post)
}

func (e *Engine) requestIdeas(ctx context.Context, token workflow.Token, post posts.Post) (any, *errinfo.ErrorInfo) {
	provider, creds, errInfo := e.resolveProvider(errinfo.PhaseIdeas)
	if errInfo != nil {
		if _, err := e.dispatch(token, workflow.IdeasFailed{Err: errInfo.Error()}); err != nil {
			return nil, mapWorkflowError(errinfo.PhaseIdeas, err)
		}
		return nil, errInfo
	}
	runCtx, done := e.beginRun(ctx, token)
	defer done()
	ideas, err := provider.GenerateIdeas(runCtx, creds, post.Title, postText(post))
	if err != nil {
		errInfo := mapLLMError(errinfo.PhaseIdeas, provider.ID(), err)
		errInfo.PostID = post.ID
		if _, dispatchErr := e.dispatch(token, workflow.IdeasFailed{Err: errInfo.Error()}); dispatchErr != nil {
			return nil, mapWorkflowError(errinfo.PhaseIdeas, dispatchErr)
		}
		e.logger.Warn("workflow.ideas_failed", "post_id", post.ID, "provider_id", provider.ID(), "error", err.Error())
		return nil, errInfo
	}
	session, err := e.dispatch(token, workflow.IdeasReceived{Ideas: ideas})
	if err != nil {
		return nil, mapWorkflowError(errinfo.PhaseIdeas, err)
	}
	return statePayload(session), nil
}

// WorkflowSelectIdea picks an idea and streams the snippet for it. Chunks are
// broadcast as WorkflowSnippetDelta notifications while the call is running.
func (e *Engine) WorkflowSelectIdea(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Token workflow.Token `json:"token"`
		Index int            `json:"index"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseGenerate); errInfo != nil {
		return nil, errInfo
	}
	session, err := e.dispatch(req.Token, workflow.SelectIdea{Index: req.Index})
	if err != nil {
		return nil, mapWorkflowError(errinfo.PhaseGenerate, err)
	}
	return e.streamSnippet(ctx, session)
}

func (e *Engine) WorkflowRegenerate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req tokenParams
	if errInfo := decodeParams(params, &req, errinfo.PhaseGenerate); errInfo != nil {
		return nil, errInfo
	}
	session, err := e.dispatch(req.Token, workflow.Regenerate{})
	if err != nil {
		return nil, mapWorkflowError(errinfo.PhaseGenerate, err)
	}
	return e.streamSnippet(ctx, session)
}

func (e *Engine) streamSnippet(ctx context.Context, session workflow.Session) (any, *errinfo.ErrorInfo) {
	token := session.Token
	provider, creds, errInfo := e.resolveProvider(errinfo.PhaseGenerate)
	if errInfo != nil {
		if _, err := e.dispatch(token, workflow.GenerationFailed{Err: errInfo.Error()}); err != nil {
			return nil, mapWorkflowError(errinfo.PhaseGenerate, err)
		}
		return nil, errInfo
	}
	theme, err := e.config.Theme()
	if err != nil {
		e.logger.Warn("workflow.theme_read_failed", "error", err.Error())
	}
	runCtx, done := e.beginRun(ctx, token)
	defer done()
	post := *session.Post
	chunks := 0
	var streamErr error
	for chunk, err := range provider.GenerateSnippetStream(runCtx, creds, post.Title, postText(post), *session.SelectedIdea, theme.Color) {
		if err != nil {
			streamErr = err
			break
		}
		if chunk == "" {
			continue
		}
		if _, err := e.dispatch(token, workflow.ChunkReceived{Text: chunk}); err != nil {
			// Leaving the loop cancels the upstream stream.
			return nil, mapWorkflowError(errinfo.PhaseGenerate, err)
		}
		chunks++
	}
	if streamErr == nil && chunks == 0 {
		streamErr = llm.ErrEmptyResponse
	}
	if streamErr != nil {
		errInfo := withSubphase(mapLLMError(errinfo.PhaseGenerate, provider.ID(), streamErr), errinfo.SubphaseStream)
		errInfo.PostID = post.ID
		if _, err := e.dispatch(token, workflow.GenerationFailed{Err: errInfo.Error()}); err != nil {
			return nil, mapWorkflowError(errinfo.PhaseGenerate, err)
		}
		e.logger.Warn("workflow.generation_failed", "post_id", post.ID, "provider_id", provider.ID(), "chunks", chunks, "error", streamErr.Error())
		return nil, errInfo
	}
	next, err := e.dispatch(token, workflow.GenerationComplete{})
	if err != nil {
		return nil, mapWorkflowError(errinfo.PhaseGenerate, err)
	}
	e.logger.Info("workflow.generation_complete", "post_id", post.ID, "chunks", chunks, "bytes", len(next.GeneratedContent))
	return statePayload(next), nil
}

func (e *Engine) WorkflowChoosePlacement(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Token    workflow.Token `json:"token"`
		Strategy string         `json:"strategy"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseInsert); errInfo != nil {
		return nil, errInfo
	}
	strategy, err := content.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseInsert, err.Error())
	}
	session, err := e.dispatch(req.Token, workflow.ChoosePlacement{Strategy: strategy})
	if err != nil {
		return nil, mapWorkflowError(errinfo.PhaseInsert, err)
	}
	return statePayload(session), nil
}

// WorkflowPreviewPlacement diffs the post body before and after placing a
// marker with the given (or currently chosen) strategy. Nothing is written.
func (e *Engine) WorkflowPreviewPlacement(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Token    workflow.Token `json:"token"`
		Strategy string         `json:"strategy"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseInsert); errInfo != nil {
		return nil, errInfo
	}
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if !session.Active() || session.Token != req.Token {
		return nil, errinfo.StaleSession(errinfo.PhaseInsert)
	}
	strategy := session.Placement
	if req.Strategy != "" {
		parsed, err := content.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, errinfo.ValidationFailed(errinfo.PhaseInsert, err.Error())
		}
		strategy = parsed
	}
	post := e.currentPost(*session.Post)
	after, err := content.Insert(post.Source(), content.MarkerFor(previewToolID), strategy)
	if err != nil {
		return nil, errinfo.RawContentUnavailable(errinfo.PhaseInsert, post.ID)
	}
	return map[string]any{
		"strategy": strategy,
		"diff":     diff.Build(post.RawContent, after, diff.DefaultContextLines),
	}, nil
}

// WorkflowInsert creates the tool record and splices its marker into the
// post. Only one insert per post runs at a time.
func (e *Engine) WorkflowInsert(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		Token    workflow.Token `json:"token"`
		Strategy string         `json:"strategy"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseInsert); errInfo != nil {
		return nil, errInfo
	}
	var strategy content.Strategy
	if req.Strategy != "" {
		parsed, err := content.ParseStrategy(req.Strategy)
		if err != nil {
			return nil, errinfo.ValidationFailed(errinfo.PhaseInsert, err.Error())
		}
		strategy = parsed
	}
	site, errInfo := e.requireSite(errinfo.PhaseInsert)
	if errInfo != nil {
		return nil, errInfo
	}

	e.mu.Lock()
	current := e.session
	if !current.Active() || current.Token != req.Token {
		e.mu.Unlock()
		return nil, errinfo.StaleSession(errinfo.PhaseInsert)
	}
	postID := current.PostID()
	if op, busy := e.mutating[postID]; busy {
		e.mu.Unlock()
		e.logger.Warn("workflow.insert_rejected", "post_id", postID, "running", op)
		return nil, errinfo.OperationInProgress(errinfo.PhaseInsert, postID)
	}
	post := e.currentPost(*current.Post)
	placement := current.Placement
	if strategy != "" {
		placement = strategy
	}
	if placement != content.StrategyManual && !post.RawAvailable {
		e.mu.Unlock()
		return nil, errinfo.RawContentUnavailable(errinfo.PhaseInsert, postID)
	}
	next, err := workflow.Apply(current, req.Token, workflow.ConfirmInsert{Strategy: strategy})
	if err != nil {
		e.mu.Unlock()
		return nil, mapWorkflowError(errinfo.PhaseInsert, err)
	}
	e.session = next
	e.mutating[postID] = opInsert
	e.emitLocked(NotifyWorkflowStateChanged, statePayload(next))
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.mutating, postID)
		e.mu.Unlock()
	}()

	return e.insertTool(ctx, next, post, site)
}

func (e *Engine) insertTool(ctx context.Context, session workflow.Session, post posts.Post, site Site) (any, *errinfo.ErrorInfo) {
	token := session.Token
	html := toolgen.CleanSnippet(session.GeneratedContent)
	toolID, err := site.CreateToolRecord(ctx, session.SelectedIdea.Title, html)
	if err != nil {
		e.logger.Warn("workflow.create_record_failed", "post_id", post.ID, "error", err.Error())
		return e.failInsert(token, withSubphase(mapSiteError(errinfo.PhaseInsert, err), errinfo.SubphaseCreateRecord), post.ID)
	}
	marker := content.MarkerFor(toolID)
	if session.Placement == content.StrategyManual {
		e.logger.Info("workflow.insert_manual", "post_id", post.ID, "tool_id", toolID)
		return e.succeedInsert(token, toolID, marker, nil)
	}
	updatedRaw, err := content.Insert(post.Source(), marker, session.Placement)
	if err != nil {
		return e.failInsert(token, errinfo.RawContentUnavailable(errinfo.PhaseInsert, post.ID), post.ID)
	}
	updated, err := site.UpdatePostContent(ctx, post.ID, updatedRaw)
	if err != nil {
		e.logger.Warn("workflow.update_content_failed", "post_id", post.ID, "tool_id", toolID, "error", err.Error())
		errInfo := withSubphase(mapSiteError(errinfo.PhaseInsert, err), errinfo.SubphaseUpdateContent)
		errInfo.ToolID = toolID
		return e.failInsert(token, errInfo, post.ID)
	}
	e.posts.Replace(updated.WithDerivedTool())
	e.posts.Patch(post.ID, posts.MarkToolInserted(toolID, e.now()))
	e.postsChanged()
	stored, ok := e.posts.Get(post.ID)
	if !ok {
		stored = updated
	}
	e.logger.Info("workflow.inserted", "post_id", post.ID, "tool_id", toolID, "placement", session.Placement)
	return e.succeedInsert(token, toolID, marker, &stored)
}

func (e *Engine) succeedInsert(token workflow.Token, toolID int, marker string, post *posts.Post) (any, *errinfo.ErrorInfo) {
	result := map[string]any{"tool_id": toolID, "marker": marker}
	if post != nil {
		result["post"] = *post
	}
	session, err := e.dispatch(token, workflow.InsertSucceeded{ToolID: toolID, Marker: marker, Post: post})
	if err != nil {
		// The site is already updated; only the session moved on.
		return result, nil
	}
	result["session"] = session
	return result, nil
}

func (e *Engine) failInsert(token workflow.Token, errInfo *errinfo.ErrorInfo, postID int) (any, *errinfo.ErrorInfo) {
	errInfo.PostID = postID
	if _, err := e.dispatch(token, workflow.InsertFailed{Err: errInfo.Error()}); err != nil {
		return nil, mapWorkflowError(errinfo.PhaseInsert, err)
	}
	return nil, errInfo
}

func (e *Engine) WorkflowClose(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req tokenParams
	if errInfo := decodeParams(params, &req, errinfo.PhaseIdeas); errInfo != nil {
		return nil, errInfo
	}
	e.mu.Lock()
	if req.Token == 0 {
		req.Token = e.session.Token
	}
	active := e.session.Active()
	e.mu.Unlock()
	if !active {
		return statePayload(workflow.Idle()), nil
	}
	session, err := e.dispatch(req.Token, workflow.Close{})
	if err != nil {
		return nil, mapWorkflowError(errinfo.PhaseIdeas, err)
	}
	e.logger.Info("workflow.closed", "token", req.Token)
	return statePayload(session), nil
}

// currentPost prefers the registry copy, which reflects edits made since the
// session opened.
func (e *Engine) currentPost(fallback posts.Post) posts.Post {
	if post, ok := e.posts.Get(fallback.ID); ok {
		return post
	}
	return fallback
}
