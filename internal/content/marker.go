package content

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Shortcode is the WordPress shortcode tag that references a generated tool record.
const Shortcode = "contentforge_tool"

// ErrRawContentUnavailable is returned when a mutation is requested but only
// rendered HTML was fetched for the post.
var ErrRawContentUnavailable = errors.New("raw content unavailable")

var markerPattern = regexp.MustCompile(`\[contentforge_tool id="(\d+)"\]`)

// Detection reports whether a marker was found and which tool id it carries.
type Detection struct {
	Present bool `json:"present"`
	ToolID  int  `json:"tool_id,omitempty"`
}

// Source carries both representations of a post body. Raw is authoritative
// and only editable when RawAvailable is set.
type Source struct {
	Raw          string
	Rendered     string
	RawAvailable bool
}

// MarkerFor builds the exact marker text for a tool id.
func MarkerFor(toolID int) string {
	return fmt.Sprintf(`[%s id="%d"]`, Shortcode, toolID)
}

// DetectMarker returns the first marker in html whose id parses as an integer.
func DetectMarker(html string) Detection {
	for _, match := range markerPattern.FindAllStringSubmatch(html, -1) {
		id, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		return Detection{Present: true, ToolID: id}
	}
	return Detection{}
}

// Detect checks raw and rendered content. A raw match wins over a rendered one.
func Detect(src Source) Detection {
	if src.RawAvailable {
		if found := DetectMarker(src.Raw); found.Present {
			return found
		}
	}
	return DetectMarker(src.Rendered)
}

// CountMarkers returns how many marker tokens html contains.
func CountMarkers(html string) int {
	return len(markerPattern.FindAllStringIndex(html, -1))
}
