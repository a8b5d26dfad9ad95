package toolgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"contentforge/engine/internal/llm"
)

const maxPromptContentRunes = 6000
const maxScoreExcerptRunes = 600

const ideasSystemPrompt = `You suggest interactive tools (calculators, quizzes, checklists, charts, timers, converters, generators) that make a blog post more useful to its readers.
Reply with JSON only, shaped as {"ideas":[{"title":"...","description":"...","icon":"calculator|quiz|checklist|chart|timer|converter|generator|tool"}]}.
Return at most 3 ideas. Each description is one or two sentences.`

const snippetSystemPrompt = `You build a single self-contained interactive HTML snippet for a WordPress post.
Rules:
- Output only HTML. No markdown fences, no commentary.
- Inline all CSS in one <style> element and all JavaScript in one <script> element.
- Scope every CSS selector under one wrapper element with a unique class so the snippet does not affect the page.
- No external scripts, fonts or images.
- The snippet must work on mobile and desktop.`

const scoreSystemPrompt = `You rate how much each blog post would benefit from an embedded interactive tool.
Reply with JSON only, shaped as {"scores":[{"id":123,"opportunity_score":0,"rationale":"..."}]}.
opportunity_score is an integer from 0 to 100. rationale is one short sentence.`

// PostSummary is the compact view of a post sent for opportunity scoring.
type PostSummary struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

func ideasMessages(title, content string) []llm.Message {
	user := fmt.Sprintf("Post title: %s\n\nPost content:\n%s", strings.TrimSpace(title), PlainText(content, maxPromptContentRunes))
	return []llm.Message{llm.System(ideasSystemPrompt), llm.User(user)}
}

func snippetMessages(title, content string, idea Idea, themeColor string) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\n", idea.Title)
	fmt.Fprintf(&b, "What it does: %s\n", idea.Description)
	if color := strings.TrimSpace(themeColor); color != "" {
		fmt.Fprintf(&b, "Accent color: %s\n", color)
	}
	fmt.Fprintf(&b, "\nPost title: %s\n\nPost content:\n%s", strings.TrimSpace(title), PlainText(content, maxPromptContentRunes))
	return []llm.Message{llm.System(snippetSystemPrompt), llm.User(b.String())}
}

func scoreMessages(summaries []PostSummary) ([]llm.Message, error) {
	trimmed := make([]PostSummary, 0, len(summaries))
	for _, summary := range summaries {
		summary.Excerpt = PlainText(summary.Excerpt, maxScoreExcerptRunes)
		trimmed = append(trimmed, summary)
	}
	data, err := json.Marshal(trimmed)
	if err != nil {
		return nil, err
	}
	return []llm.Message{llm.System(scoreSystemPrompt), llm.User("Posts:\n" + string(data))}, nil
}

// PlainText renders post HTML as whitespace-collapsed text capped at limit
// runes. A non-positive limit disables the cap.
func PlainText(html string, limit int) string {
	text := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("script, style").Remove()
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
