package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"contentforge/engine/internal/content"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/posts"
)

const (
	opInsert = "insert"
	opDelete = "delete"
)

// ToolDelete removes a post's tool: the marker comes out of the content first,
// then the tool record is deleted. It does not touch the workflow session.
func (e *Engine) ToolDelete(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		PostID int `json:"post_id"`
	}
	if errInfo := decodeParams(params, &req, errinfo.PhaseDelete); errInfo != nil {
		return nil, errInfo
	}
	site, errInfo := e.requireSite(errinfo.PhaseDelete)
	if errInfo != nil {
		return nil, errInfo
	}
	post, err := e.deleteTool(ctx, site, req.PostID)
	if err != nil {
		e.logger.Warn("tool.delete_failed", "post_id", req.PostID, "error", err.Error())
		errInfo := mapSiteError(errinfo.PhaseDelete, err)
		errInfo.PostID = req.PostID
		return nil, errInfo
	}
	return map[string]any{"post": post}, nil
}

func (e *Engine) deleteTool(ctx context.Context, site Site, postID int) (posts.Post, error) {
	e.mu.Lock()
	if op, busy := e.mutating[postID]; busy {
		e.mu.Unlock()
		return posts.Post{}, fmt.Errorf("%w: %s running for post %d", ErrOperationInProgress, op, postID)
	}
	e.mutating[postID] = opDelete
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.mutating, postID)
		e.mu.Unlock()
	}()

	post, ok := e.posts.Get(postID)
	if !ok {
		return posts.Post{}, fmt.Errorf("%w: %d", ErrPostNotFound, postID)
	}
	if !post.HasTool || post.ToolID == nil {
		return posts.Post{}, fmt.Errorf("%w: %d", ErrNoTool, postID)
	}
	toolID := *post.ToolID
	stripped, err := content.Remove(post.Source())
	if err != nil {
		return posts.Post{}, err
	}
	updated, err := site.UpdatePostContent(ctx, postID, stripped)
	if err != nil {
		return posts.Post{}, fmt.Errorf("update post content: %w", err)
	}
	e.posts.Patch(postID, posts.MarkToolRemoved(updated.RawContent))
	e.postsChanged()
	if err := site.DeleteToolRecord(ctx, toolID); err != nil {
		return posts.Post{}, &PartialFailureError{PostID: postID, ToolID: toolID, Err: err}
	}
	e.logger.Info("tool.deleted", "post_id", postID, "tool_id", toolID)
	stored, _ := e.posts.Get(postID)
	return stored, nil
}
