package engine

import (
	"context"
	"errors"
	"fmt"
	"net"

	"contentforge/engine/internal/config"
	"contentforge/engine/internal/content"
	"contentforge/engine/internal/egress"
	"contentforge/engine/internal/errinfo"
	"contentforge/engine/internal/llm"
	"contentforge/engine/internal/wordpress"
	"contentforge/engine/internal/workflow"
)

var (
	ErrOperationInProgress = errors.New("operation already in progress for post")
	ErrPostNotFound        = errors.New("post not found")
	ErrNoTool              = errors.New("post has no tool")
)

// PartialFailureError reports a delete whose content edit was saved while the
// tool record could not be removed. The record with ToolID is orphaned.
type PartialFailureError struct {
	PostID int
	ToolID int
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("post %d updated but tool record %d was not deleted: %v", e.PostID, e.ToolID, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

func mapLLMError(phase, providerID string, err error) *errinfo.ErrorInfo {
	var info *errinfo.ErrorInfo
	var parseErr *llm.ParseError
	var netErr net.Error
	switch {
	case errors.As(err, &parseErr):
		info = errinfo.ResponseParseFailed(phase, parseErr.Error(), parseErr.Snippet)
	case errors.Is(err, llm.ErrUnauthorized):
		info = errinfo.ProviderAuthFailed(phase)
	case errors.Is(err, llm.ErrEgressBlocked):
		info = errinfo.EgressBlocked(phase, "provider endpoint not allowed")
	case errors.Is(err, llm.ErrModelNotFound):
		info = errinfo.ValidationFailed(phase, err.Error())
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrEmptyResponse):
		info = errinfo.ProviderUnavailable(phase, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		info = errinfo.NetworkUnavailable(phase, err.Error())
	default:
		info = errinfo.ProviderUnavailable(phase, err.Error())
	}
	info.ProviderID = providerID
	return info
}

func mapSiteError(phase string, err error) *errinfo.ErrorInfo {
	var partial *PartialFailureError
	var netErr net.Error
	switch {
	case errors.As(err, &partial):
		return errinfo.PartialFailure(phase, partial.PostID, partial.ToolID, partial.Error())
	case errors.Is(err, ErrOperationInProgress):
		return errinfo.OperationInProgress(phase, 0)
	case errors.Is(err, ErrPostNotFound), errors.Is(err, ErrNoTool):
		return errinfo.ValidationFailed(phase, err.Error())
	case errors.Is(err, content.ErrRawContentUnavailable):
		return errinfo.RawContentUnavailable(phase, 0)
	case errors.Is(err, config.ErrSiteNotConfigured):
		return errinfo.SiteNotConfigured(phase)
	case errors.Is(err, egress.ErrBlocked):
		return errinfo.EgressBlocked(phase, err.Error())
	case errors.Is(err, wordpress.ErrUnauthorized):
		return errinfo.SiteAuthFailed(phase, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return errinfo.NetworkUnavailable(phase, err.Error())
	}
	return errinfo.SiteRequestFailed(phase, err.Error())
}

func mapWorkflowError(phase string, err error) *errinfo.ErrorInfo {
	if errors.Is(err, workflow.ErrStaleSession) {
		return errinfo.StaleSession(phase)
	}
	return errinfo.InvalidTransition(phase, err.Error())
}

func withSubphase(info *errinfo.ErrorInfo, subphase string) *errinfo.ErrorInfo {
	if info != nil {
		info.Subphase = subphase
	}
	return info
}
