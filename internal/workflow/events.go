package workflow

import (
	"contentforge/engine/internal/content"
	"contentforge/engine/internal/posts"
	"contentforge/engine/internal/toolgen"
)

// Event is an input to Apply.
type Event interface {
	eventName() string
}

// Open starts a session for Post under a fresh token, replacing any session
// that was not committed.
type Open struct {
	Post  posts.Post
	Token Token
}

type IdeasReceived struct {
	Ideas []toolgen.Idea
}

type IdeasFailed struct {
	Err string
}

// SelectIdea picks Ideas[Index].
type SelectIdea struct {
	Index int
}

type ChunkReceived struct {
	Text string
}

type GenerationComplete struct{}

type GenerationFailed struct {
	Err string
}

type ChoosePlacement struct {
	Strategy content.Strategy
}

// ConfirmInsert starts insertion. An empty Strategy keeps the current
// placement.
type ConfirmInsert struct {
	Strategy content.Strategy
}

type InsertSucceeded struct {
	ToolID int
	Marker string
	Post   *posts.Post
}

type InsertFailed struct {
	Err string
}

type Close struct{}

type Regenerate struct{}

type RetryIdeas struct{}

func (Open) eventName() string               { return "open" }
func (IdeasReceived) eventName() string      { return "ideas_received" }
func (IdeasFailed) eventName() string        { return "ideas_failed" }
func (SelectIdea) eventName() string         { return "select_idea" }
func (ChunkReceived) eventName() string      { return "chunk_received" }
func (GenerationComplete) eventName() string { return "generation_complete" }
func (GenerationFailed) eventName() string   { return "generation_failed" }
func (ChoosePlacement) eventName() string    { return "choose_placement" }
func (ConfirmInsert) eventName() string      { return "confirm_insert" }
func (InsertSucceeded) eventName() string    { return "insert_succeeded" }
func (InsertFailed) eventName() string       { return "insert_failed" }
func (Close) eventName() string              { return "close" }
func (Regenerate) eventName() string         { return "regenerate" }
func (RetryIdeas) eventName() string         { return "retry_ideas" }

// EventName returns the stable name used in logs.
func EventName(ev Event) string {
	return ev.eventName()
}
