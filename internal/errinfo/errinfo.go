package errinfo

import "fmt"

// ErrorInfo is the structured error payload returned over RPC.
type ErrorInfo struct {
	ErrorCode  string   `json:"error_code"`
	Phase      string   `json:"phase,omitempty"`
	Subphase   string   `json:"subphase,omitempty"`
	Retryable  bool     `json:"retryable"`
	Actions    []string `json:"actions,omitempty"`
	ProviderID string   `json:"provider_id,omitempty"`
	PostID     int      `json:"post_id,omitempty"`
	ToolID     int      `json:"tool_id,omitempty"`
	Detail     string   `json:"detail,omitempty"`
	Snippet    string   `json:"snippet,omitempty"`
}

func (e *ErrorInfo) Error() string {
	if e.Detail == "" {
		return e.ErrorCode
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Detail)
}

const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeRawContentUnavailable = "RAW_CONTENT_UNAVAILABLE"
	CodeSiteNotConfigured     = "SITE_NOT_CONFIGURED"
	CodeSiteNotSetUp          = "SITE_NOT_SET_UP"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeOperationInProgress   = "OPERATION_IN_PROGRESS"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeStaleSession          = "STALE_SESSION"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeEgressBlocked         = "EGRESS_BLOCKED_BY_POLICY"
	CodeSiteAuthFailed        = "SITE_AUTH_FAILED"
	CodeSiteRequestFailed     = "SITE_REQUEST_FAILED"
	CodePartialFailure        = "PARTIAL_FAILURE"
	CodeResponseParseFailed   = "RESPONSE_PARSE_FAILED"
	CodeFileReadFailed        = "FILE_READ_FAILED"
	CodeFileWriteFailed       = "FILE_WRITE_FAILED"
)

const (
	ActionRetry         = "retry"
	ActionRegenerate    = "regenerate"
	ActionOpenSettings  = "open_settings"
	ActionReconnectSite = "reconnect_site"
	ActionClose         = "close"
)

const (
	PhaseSettings = "settings"
	PhaseSite     = "site"
	PhasePosts    = "posts"
	PhaseIdeas    = "ideas"
	PhaseGenerate = "generate"
	PhaseInsert   = "insert"
	PhaseDelete   = "delete"
	PhaseScore    = "score"
)

const (
	SubphaseCreateRecord  = "create_record"
	SubphaseUpdateContent = "update_content"
	SubphaseDeleteRecord  = "delete_record"
	SubphaseStream        = "stream"
)

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func RawContentUnavailable(phase string, postID int) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeRawContentUnavailable,
		Phase:     phase,
		Retryable: false,
		PostID:    postID,
		Detail:    "post content can only be edited when the raw content is available",
	}
}

func SiteNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeSiteNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionReconnectSite},
	}
}

func SiteNotSetUp(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeSiteNotSetUp,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    "the contentforge_tool post type is not registered on the site",
	}
}

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func OperationInProgress(phase string, postID int) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeOperationInProgress,
		Phase:     phase,
		Retryable: true,
		PostID:    postID,
	}
}

func InvalidTransition(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeInvalidTransition,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func StaleSession(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeStaleSession,
		Phase:     phase,
		Retryable: false,
		Detail:    "the workflow session was closed or replaced",
	}
}

func ProviderAuthFailed(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NetworkUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func EgressBlocked(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeEgressBlocked,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func SiteAuthFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeSiteAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionReconnectSite},
		Detail:    detail,
	}
}

func SiteRequestFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeSiteRequestFailed,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

// PartialFailure reports a delete whose content edit landed while the tool
// record deletion did not. The orphaned record id travels in ToolID.
func PartialFailure(phase string, postID, toolID int, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodePartialFailure,
		Phase:     phase,
		Subphase:  SubphaseDeleteRecord,
		Retryable: false,
		PostID:    postID,
		ToolID:    toolID,
		Detail:    detail,
	}
}

func ResponseParseFailed(phase, detail, snippet string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeResponseParseFailed,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
		Snippet:   snippet,
	}
}

func FileReadFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileReadFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func FileWriteFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeFileWriteFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}
