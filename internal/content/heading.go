package content

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	blockHeadingOpen  = regexp.MustCompile(`<!--\s*wp:heading(?:\s+(\{.*?\}))?\s*-->`)
	blockHeadingClose = regexp.MustCompile(`<!--\s*/wp:heading\s*-->`)
	rawHeadingTag     = regexp.MustCompile(`(?i)<h[23](?:\s[^>]*)?>`)
)

type headingSpan struct {
	start int
	end   int
}

// lastHeading returns the start offset of the rightmost level 2 or 3 heading.
// A raw tag inside a Gutenberg heading block belongs to that block, so the
// block comment is the insertion point.
func lastHeading(html string) (int, bool) {
	best := -1
	var blocks []headingSpan
	for _, loc := range blockHeadingOpen.FindAllStringSubmatchIndex(html, -1) {
		attrs := ""
		if loc[2] >= 0 {
			attrs = html[loc[2]:loc[3]]
		}
		if level := blockHeadingLevel(attrs); level != 2 && level != 3 {
			continue
		}
		span := headingSpan{start: loc[0], end: loc[1]}
		if closing := blockHeadingClose.FindStringIndex(html[loc[1]:]); closing != nil {
			span.end = loc[1] + closing[1]
		} else if tag := rawHeadingTag.FindStringIndex(html[loc[1]:]); tag != nil {
			// Unclosed block: it still owns the heading tag that follows.
			span.end = loc[1] + tag[1]
		}
		blocks = append(blocks, span)
		if span.start > best {
			best = span.start
		}
	}
	for _, loc := range rawHeadingTag.FindAllStringIndex(html, -1) {
		if insideBlock(blocks, loc[0]) {
			continue
		}
		if loc[0] > best {
			best = loc[0]
		}
	}
	return best, best >= 0
}

func blockHeadingLevel(attrs string) int {
	if strings.TrimSpace(attrs) == "" {
		return 2
	}
	var parsed struct {
		Level int `json:"level"`
	}
	if err := json.Unmarshal([]byte(attrs), &parsed); err != nil || parsed.Level == 0 {
		return 2
	}
	return parsed.Level
}

func insideBlock(blocks []headingSpan, offset int) bool {
	for _, span := range blocks {
		if offset >= span.start && offset < span.end {
			return true
		}
	}
	return false
}
