package workflow

import (
	"errors"
	"fmt"

	"contentforge/engine/internal/toolgen"
)

var (
	ErrStaleSession      = errors.New("stale workflow session")
	ErrInvalidTransition = errors.New("invalid workflow transition")
)

func invalid(s Session, ev Event) error {
	return fmt.Errorf("%w: %s in stage %s", ErrInvalidTransition, ev.eventName(), s.Stage)
}

// Apply returns the session that results from ev. Every event except Open must
// carry the active session token; mismatches return ErrStaleSession and the
// input session unchanged.
func Apply(s Session, token Token, ev Event) (Session, error) {
	if open, ok := ev.(Open); ok {
		if open.Token == 0 || open.Token == s.Token {
			return s, fmt.Errorf("%w: open requires a fresh token", ErrInvalidTransition)
		}
		post := open.Post
		return Session{
			Token:     open.Token,
			Stage:     StageSelectingIdea,
			Post:      &post,
			Placement: DefaultPlacement,
		}, nil
	}
	if s.Token == 0 || token != s.Token {
		return s, ErrStaleSession
	}
	next := s.clone()
	switch e := ev.(type) {
	case Close:
		return Idle(), nil

	case IdeasReceived:
		if s.Stage != StageSelectingIdea {
			return s, invalid(s, ev)
		}
		ideas := e.Ideas
		if len(ideas) > toolgen.MaxIdeas {
			ideas = ideas[:toolgen.MaxIdeas]
		}
		next.Ideas = append([]toolgen.Idea{}, ideas...)
		next.IdeasLoaded = true
		next.LastError = ""
		return next, nil

	case IdeasFailed:
		if s.Stage != StageSelectingIdea {
			return s, invalid(s, ev)
		}
		return failed(next, e.Err), nil

	case RetryIdeas:
		if !s.CanRetryIdeas() {
			return s, invalid(s, ev)
		}
		next.Stage = StageSelectingIdea
		next.Ideas = nil
		next.IdeasLoaded = false
		next.LastError = ""
		next.FailedStage = ""
		return next, nil

	case SelectIdea:
		if s.Stage != StageSelectingIdea {
			return s, invalid(s, ev)
		}
		if e.Index < 0 || e.Index >= len(s.Ideas) {
			return s, fmt.Errorf("%w: idea index %d out of range", ErrInvalidTransition, e.Index)
		}
		idea := s.Ideas[e.Index]
		next.SelectedIdea = &idea
		next.Stage = StageSelectedIdea
		next.GeneratedContent = ""
		return next, nil

	case ChunkReceived:
		if s.Stage != StageSelectedIdea && s.Stage != StageGenerating {
			return s, invalid(s, ev)
		}
		next.Stage = StageGenerating
		next.GeneratedContent = s.GeneratedContent + e.Text
		return next, nil

	case GenerationComplete:
		if s.Stage != StageGenerating {
			return s, invalid(s, ev)
		}
		next.Stage = StageGeneratedReady
		return next, nil

	case GenerationFailed:
		if s.Stage != StageSelectedIdea && s.Stage != StageGenerating {
			return s, invalid(s, ev)
		}
		next.GeneratedContent = ""
		return failed(next, e.Err), nil

	case Regenerate:
		if !s.CanRegenerate() {
			return s, invalid(s, ev)
		}
		next.Stage = StageSelectedIdea
		next.GeneratedContent = ""
		next.LastError = ""
		next.FailedStage = ""
		return next, nil

	case ChoosePlacement:
		if s.Stage != StageGeneratedReady {
			return s, invalid(s, ev)
		}
		next.Placement = e.Strategy
		return next, nil

	case ConfirmInsert:
		if !s.CanConfirmInsert() {
			return s, invalid(s, ev)
		}
		if e.Strategy != "" {
			next.Placement = e.Strategy
		}
		next.Stage = StageInserting
		next.LastError = ""
		next.FailedStage = ""
		return next, nil

	case InsertSucceeded:
		if s.Stage != StageInserting {
			return s, invalid(s, ev)
		}
		next.Stage = StageSuccess
		next.ToolID = e.ToolID
		next.Marker = e.Marker
		if e.Post != nil {
			post := *e.Post
			next.InsertedPost = &post
		}
		return next, nil

	case InsertFailed:
		if s.Stage != StageInserting {
			return s, invalid(s, ev)
		}
		return failed(next, e.Err), nil
	}
	return s, invalid(s, ev)
}

func failed(s Session, message string) Session {
	s.FailedStage = s.Stage
	s.Stage = StageError
	s.LastError = message
	return s
}
