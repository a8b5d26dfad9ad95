// Package workflow models the create-a-tool session for one post. Transitions
// are pure: Apply returns a new Session and never mutates its input.
package workflow

import (
	"contentforge/engine/internal/content"
	"contentforge/engine/internal/posts"
	"contentforge/engine/internal/toolgen"
)

type Stage string

const (
	StageIdle           Stage = "idle"
	StageSelectingIdea  Stage = "selecting_idea"
	StageSelectedIdea   Stage = "selected_idea"
	StageGenerating     Stage = "generating"
	StageGeneratedReady Stage = "generated_ready"
	StageInserting      Stage = "inserting"
	StageSuccess        Stage = "success"
	StageError          Stage = "error"
)

// DefaultPlacement is used until the user picks a placement.
const DefaultPlacement = content.StrategyEnd

// Token identifies one opened session. Zero means no session.
type Token uint64

// Session is an immutable snapshot of the active workflow.
type Session struct {
	Token            Token            `json:"token"`
	Stage            Stage            `json:"stage"`
	Post             *posts.Post      `json:"post,omitempty"`
	Ideas            []toolgen.Idea   `json:"ideas,omitempty"`
	IdeasLoaded      bool             `json:"ideas_loaded,omitempty"`
	SelectedIdea     *toolgen.Idea    `json:"selected_idea,omitempty"`
	GeneratedContent string           `json:"generated_content,omitempty"`
	Placement        content.Strategy `json:"placement,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
	FailedStage      Stage            `json:"failed_stage,omitempty"`
	Marker           string           `json:"marker,omitempty"`
	ToolID           int              `json:"tool_id,omitempty"`
	InsertedPost     *posts.Post      `json:"inserted_post,omitempty"`
}

// Idle is the empty session.
func Idle() Session {
	return Session{Stage: StageIdle}
}

// PostID returns the target post id, or zero in Idle.
func (s Session) PostID() int {
	if s.Post == nil {
		return 0
	}
	return s.Post.ID
}

// Active reports whether a session is open.
func (s Session) Active() bool {
	return s.Stage != StageIdle
}

// CanRegenerate reports whether Regenerate is legal in the current stage.
func (s Session) CanRegenerate() bool {
	switch s.Stage {
	case StageGeneratedReady:
		return true
	case StageError:
		return s.FailedStage == StageSelectedIdea || s.FailedStage == StageGenerating
	}
	return false
}

// CanConfirmInsert reports whether ConfirmInsert is legal in the current stage.
func (s Session) CanConfirmInsert() bool {
	return s.Stage == StageGeneratedReady || (s.Stage == StageError && s.FailedStage == StageInserting)
}

// CanRetryIdeas reports whether RetryIdeas is legal in the current stage: after
// a failed request, or after a reply that carried no ideas.
func (s Session) CanRetryIdeas() bool {
	if s.Stage == StageSelectingIdea {
		return s.IdeasLoaded && len(s.Ideas) == 0
	}
	return s.Stage == StageError && s.FailedStage == StageSelectingIdea
}

func (s Session) clone() Session {
	if s.Post != nil {
		post := *s.Post
		s.Post = &post
	}
	if s.Ideas != nil {
		s.Ideas = append([]toolgen.Idea(nil), s.Ideas...)
	}
	if s.SelectedIdea != nil {
		idea := *s.SelectedIdea
		s.SelectedIdea = &idea
	}
	if s.InsertedPost != nil {
		post := *s.InsertedPost
		s.InsertedPost = &post
	}
	return s
}
