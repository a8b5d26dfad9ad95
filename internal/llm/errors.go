package llm

import (
	"errors"
	"fmt"
	"strings"

	"contentforge/engine/internal/egress"
)

var (
	ErrUnauthorized  = errors.New("llm unauthorized")
	ErrUnavailable   = errors.New("llm unavailable")
	ErrEgressBlocked = egress.ErrBlocked
	ErrRateLimited   = errors.New("llm rate limited")
	ErrEmptyResponse = errors.New("llm empty response")
	ErrModelNotFound = errors.New("llm model not found")
)

const maxSnippetRunes = 200

// ParseError reports a provider response that is not the expected JSON shape.
type ParseError struct {
	What    string
	Snippet string
	Err     error
}

// NewParseError keeps a bounded snippet of the raw response for diagnostics.
func NewParseError(what, raw string, err error) *ParseError {
	return &ParseError{What: what, Snippet: Snippet(raw), Err: err}
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s", e.What)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (response: %q)", e.Snippet)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Snippet trims raw to a short single-line excerpt.
func Snippet(raw string) string {
	trimmed := strings.Join(strings.Fields(raw), " ")
	runes := []rune(trimmed)
	if len(runes) <= maxSnippetRunes {
		return trimmed
	}
	return string(runes[:maxSnippetRunes]) + "..."
}
