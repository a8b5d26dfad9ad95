package toolgen

import (
	"encoding/json"
	"errors"
	"strings"

	"contentforge/engine/internal/llm"
	"contentforge/engine/internal/posts"
)

// parseIdeas accepts {"ideas":[...]} or a bare array, optionally wrapped in a
// markdown fence or surrounded by prose.
func parseIdeas(raw string) ([]Idea, error) {
	candidate := extractJSON(raw)
	if candidate == "" {
		return nil, llm.NewParseError("ideas", raw, errors.New("no JSON value found"))
	}
	var ideas []Idea
	if strings.HasPrefix(candidate, "[") {
		if err := json.Unmarshal([]byte(candidate), &ideas); err != nil {
			return nil, llm.NewParseError("ideas", raw, err)
		}
	} else {
		var envelope struct {
			Ideas *[]Idea `json:"ideas"`
		}
		if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
			return nil, llm.NewParseError("ideas", raw, err)
		}
		if envelope.Ideas == nil {
			return nil, llm.NewParseError("ideas", raw, errors.New(`missing "ideas" field`))
		}
		ideas = *envelope.Ideas
	}
	result := make([]Idea, 0, MaxIdeas)
	for _, idea := range ideas {
		idea = idea.normalized()
		if idea.Title == "" || idea.Description == "" {
			return nil, llm.NewParseError("ideas", raw, errors.New("idea missing title or description"))
		}
		result = append(result, idea)
		if len(result) == MaxIdeas {
			break
		}
	}
	return result, nil
}

func parseScores(raw string) ([]posts.ScoreUpdate, error) {
	candidate := extractJSON(raw)
	if candidate == "" {
		return nil, llm.NewParseError("scores", raw, errors.New("no JSON value found"))
	}
	var updates []posts.ScoreUpdate
	if strings.HasPrefix(candidate, "[") {
		if err := json.Unmarshal([]byte(candidate), &updates); err != nil {
			return nil, llm.NewParseError("scores", raw, err)
		}
		return updates, nil
	}
	var envelope struct {
		Scores []posts.ScoreUpdate `json:"scores"`
	}
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		return nil, llm.NewParseError("scores", raw, err)
	}
	return envelope.Scores, nil
}

func extractJSON(output string) string {
	trimmed := strings.TrimSpace(output)
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	for _, block := range fenceBlocks(trimmed, "json") {
		if json.Valid([]byte(block)) {
			return block
		}
	}
	for index := 0; index < len(trimmed); index++ {
		if trimmed[index] != '{' && trimmed[index] != '[' {
			continue
		}
		end := balancedEnd(trimmed[index:])
		if end <= 0 {
			continue
		}
		candidate := trimmed[index : index+end]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return ""
}

// fenceBlocks returns the bodies of ``` fences whose language tag is empty or
// matches lang.
func fenceBlocks(output, lang string) []string {
	var blocks []string
	for len(output) > 0 {
		start := strings.Index(output, "```")
		if start < 0 {
			break
		}
		remaining := output[start+3:]
		newline := strings.Index(remaining, "\n")
		if newline < 0 {
			break
		}
		tag := strings.TrimSpace(remaining[:newline])
		body := remaining[newline+1:]
		end := strings.Index(body, "```")
		if end < 0 {
			break
		}
		if tag == "" || strings.EqualFold(tag, lang) {
			if block := strings.TrimSpace(body[:end]); block != "" {
				blocks = append(blocks, block)
			}
		}
		output = body[end+3:]
	}
	return blocks
}

func balancedEnd(input string) int {
	stack := []byte{input[0]}
	inString := false
	escaped := false
	for index := 1; index < len(input); index++ {
		ch := input[index]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, ch)
		case '}', ']':
			open := stack[len(stack)-1]
			if (ch == '}' && open != '{') || (ch == ']' && open != '[') {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return index + 1
			}
		}
	}
	return -1
}

// CleanSnippet drops a markdown fence the model may have wrapped around the
// generated HTML.
func CleanSnippet(snippet string) string {
	trimmed := strings.TrimSpace(snippet)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if blocks := fenceBlocks(trimmed, "html"); len(blocks) > 0 {
		return blocks[0]
	}
	trimmed = strings.TrimPrefix(trimmed, "```html")
	trimmed = strings.TrimPrefix(trimmed, "```")
	return strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
}
