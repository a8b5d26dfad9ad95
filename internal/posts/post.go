package posts

import (
	"time"

	"contentforge/engine/internal/content"
)

// Post is a WordPress post as tracked by the registry. HasTool and ToolID are
// derived from the content marker.
type Post struct {
	ID               int        `json:"id"`
	Title            string     `json:"title"`
	RawContent       string     `json:"raw_content"`
	RawAvailable     bool       `json:"raw_available"`
	RenderedContent  string     `json:"rendered_content"`
	Link             string     `json:"link"`
	FeaturedImageURL string     `json:"featured_image_url,omitempty"`
	Date             time.Time  `json:"date"`
	HasTool          bool       `json:"has_tool"`
	ToolID           *int       `json:"tool_id,omitempty"`
	OpportunityScore *int       `json:"opportunity_score,omitempty"`
	Rationale        string     `json:"rationale,omitempty"`
	ToolCreationDate *time.Time `json:"tool_creation_date,omitempty"`
}

// ScoreUpdate is one entry of an opportunity scoring batch.
type ScoreUpdate struct {
	ID        int    `json:"id"`
	Score     int    `json:"opportunity_score"`
	Rationale string `json:"rationale,omitempty"`
}

func (p Post) Source() content.Source {
	return content.Source{
		Raw:          p.RawContent,
		Rendered:     p.RenderedContent,
		RawAvailable: p.RawAvailable,
	}
}

// WithDerivedTool recomputes HasTool and ToolID from the post content.
func (p Post) WithDerivedTool() Post {
	found := content.Detect(p.Source())
	p.HasTool = found.Present
	p.ToolID = nil
	if found.Present {
		p.ToolID = intPtr(found.ToolID)
	}
	return p
}

// MarkToolInserted returns a patch recording a freshly inserted tool.
func MarkToolInserted(toolID int, at time.Time) func(*Post) {
	return func(p *Post) {
		p.HasTool = true
		p.ToolID = intPtr(toolID)
		created := at.UTC()
		p.ToolCreationDate = &created
	}
}

// MarkToolRemoved returns a patch clearing tool state and the opportunity score.
func MarkToolRemoved(rawContent string) func(*Post) {
	return func(p *Post) {
		p.RawContent = rawContent
		p.HasTool = false
		p.ToolID = nil
		p.ToolCreationDate = nil
		p.OpportunityScore = nil
		p.Rationale = ""
	}
}

// ScoreKey is the opportunity sort key; unscored posts rank below any score.
func (p Post) ScoreKey() int {
	if p.OpportunityScore == nil {
		return -1
	}
	return *p.OpportunityScore
}

func (p Post) clone() Post {
	if p.ToolID != nil {
		p.ToolID = intPtr(*p.ToolID)
	}
	if p.OpportunityScore != nil {
		p.OpportunityScore = intPtr(*p.OpportunityScore)
	}
	if p.ToolCreationDate != nil {
		created := *p.ToolCreationDate
		p.ToolCreationDate = &created
	}
	return p
}

func intPtr(v int) *int {
	return &v
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
