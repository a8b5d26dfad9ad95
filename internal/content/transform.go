package content

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy selects where InsertMarker places a new marker.
type Strategy string

const (
	StrategyEnd         Strategy = "end"
	StrategyAISuggested Strategy = "ai-suggested"
	StrategyManual      Strategy = "manual"
)

var (
	// A marker alone inside a shortcode block or paragraph goes with its wrapper.
	removablePattern = regexp.MustCompile(
		`<!--\s*wp:shortcode\s*-->\s*\[contentforge_tool id="\d+"\]\s*<!--\s*/wp:shortcode\s*-->` +
			`|<p>\s*\[contentforge_tool id="\d+"\]\s*</p>` +
			`|\[contentforge_tool id="\d+"\]`,
	)
	blankRunPattern = regexp.MustCompile(`(?:[ \t\r]*\n){3,}`)
)

// ParseStrategy validates a placement name. "start" is accepted as an alias
// of the heading-based placement.
func ParseStrategy(value string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StrategyEnd):
		return StrategyEnd, nil
	case string(StrategyAISuggested), "start", "ai_suggested":
		return StrategyAISuggested, nil
	case string(StrategyManual):
		return StrategyManual, nil
	default:
		return "", fmt.Errorf("unknown placement strategy %q", value)
	}
}

// RemoveMarker strips every marker, collapses the blank lines left behind and
// trims the result. Applying it twice yields the same output as applying it once.
func RemoveMarker(html string) string {
	stripped := html
	// Removing an inner marker can join its neighbours into a new one.
	for {
		next := removablePattern.ReplaceAllString(stripped, "")
		if next == stripped {
			break
		}
		stripped = next
	}
	stripped = blankRunPattern.ReplaceAllString(stripped, "\n\n")
	return strings.TrimSpace(stripped)
}

// InsertMarker removes any existing marker and places marker according to
// strategy. Manual placement returns html untouched.
func InsertMarker(html, marker string, strategy Strategy) string {
	if strategy == StrategyManual {
		return html
	}
	base := RemoveMarker(html)
	if strategy == StrategyAISuggested {
		if at, ok := lastHeading(base); ok {
			return spliceBefore(base, at, marker)
		}
	}
	return appendMarker(base, marker)
}

// Remove is RemoveMarker guarded by raw content availability.
func Remove(src Source) (string, error) {
	if !src.RawAvailable {
		return "", ErrRawContentUnavailable
	}
	return RemoveMarker(src.Raw), nil
}

// Insert is InsertMarker guarded by raw content availability.
func Insert(src Source, marker string, strategy Strategy) (string, error) {
	if !src.RawAvailable {
		return "", ErrRawContentUnavailable
	}
	return InsertMarker(src.Raw, marker, strategy), nil
}

func appendMarker(base, marker string) string {
	if base == "" {
		return marker
	}
	return base + "\n\n" + marker
}

func spliceBefore(base string, at int, marker string) string {
	head := strings.TrimRight(base[:at], " \t\r\n")
	tail := base[at:]
	if head == "" {
		return marker + "\n\n" + tail
	}
	return head + "\n\n" + marker + "\n\n" + tail
}
