package toolgen

import "strings"

const MaxIdeas = 3

// Icon tags understood by the host UI.
const (
	IconCalculator = "calculator"
	IconQuiz       = "quiz"
	IconChecklist  = "checklist"
	IconChart      = "chart"
	IconTimer      = "timer"
	IconConverter  = "converter"
	IconGenerator  = "generator"
	IconTool       = "tool"
)

var iconAliases = map[string]string{
	"calculator": IconCalculator,
	"calc":       IconCalculator,
	"quiz":       IconQuiz,
	"question":   IconQuiz,
	"checklist":  IconChecklist,
	"list":       IconChecklist,
	"check":      IconChecklist,
	"chart":      IconChart,
	"graph":      IconChart,
	"timer":      IconTimer,
	"clock":      IconTimer,
	"converter":  IconConverter,
	"convert":    IconConverter,
	"generator":  IconGenerator,
	"wand":       IconGenerator,
	"tool":       IconTool,
}

// Idea is a suggested interactive tool for a post.
type Idea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// NormalizeIcon maps a provider supplied icon tag onto the known set.
func NormalizeIcon(icon string) string {
	if mapped, ok := iconAliases[strings.ToLower(strings.TrimSpace(icon))]; ok {
		return mapped
	}
	return IconTool
}

func (i Idea) normalized() Idea {
	return Idea{
		Title:       strings.TrimSpace(i.Title),
		Description: strings.TrimSpace(i.Description),
		Icon:        NormalizeIcon(i.Icon),
	}
}
