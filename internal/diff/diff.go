// Package diff renders line diffs of post content changes.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

type Hunk struct {
	Lines []Line `json:"lines"`
}

// Preview summarizes how a content edit changes a post.
type Preview struct {
	Hunks     []Hunk `json:"hunks"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Truncated bool   `json:"truncated,omitempty"`
}

const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

const (
	DefaultContextLines = 3
	MaxDiffLines        = 5000
)

// Lines returns every line of before/after tagged as context, added or removed.
func Lines(before, after string) []Line {
	before, after = terminate(before), terminate(after)
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lineArray)

	var lines []Line
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// Build groups changed lines into hunks with up to contextLines unchanged
// lines around each change. Inputs larger than MaxDiffLines are not diffed.
func Build(before, after string, contextLines int) Preview {
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}
	if lineCount(before)+lineCount(after) > MaxDiffLines {
		return Preview{Truncated: true}
	}
	lines := Lines(before, after)
	preview := Preview{}
	keep := make([]bool, len(lines))
	for i, line := range lines {
		if line.Type == LineContext {
			continue
		}
		if line.Type == LineAdded {
			preview.Added++
		} else {
			preview.Removed++
		}
		for j := max(0, i-contextLines); j <= min(len(lines)-1, i+contextLines); j++ {
			keep[j] = true
		}
	}
	var current *Hunk
	for i, line := range lines {
		if !keep[i] {
			current = nil
			continue
		}
		if current == nil {
			preview.Hunks = append(preview.Hunks, Hunk{})
			current = &preview.Hunks[len(preview.Hunks)-1]
		}
		current.Lines = append(current.Lines, line)
	}
	return preview
}

// terminate adds a final newline so the last line compares equal whether or
// not the caller's text ended with one.
func terminate(value string) string {
	if value == "" || strings.HasSuffix(value, "\n") {
		return value
	}
	return value + "\n"
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(value, "\n") + 1
}
