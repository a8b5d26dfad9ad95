package toolgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanSnippet(t *testing.T) {
	assert.Equal(t, "<div>Q</div>", CleanSnippet("```html\n<div>Q</div>\n```"))
	assert.Equal(t, "<div>Q</div>", CleanSnippet("  <div>Q</div>\n"))
	assert.Equal(t, "<div>Q</div>", CleanSnippet("```\n<div>Q</div>"))
}

func TestExtractJSONSkipsBrokenCandidates(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON(`note [oops {"a":1}`))
	assert.Equal(t, `{"s":"}"}`, extractJSON(`x {"s":"}"} y`))
	assert.Equal(t, "", extractJSON("no json here"))
}

func TestPlainText(t *testing.T) {
	html := "<h2>Title</h2><p>Some   text</p><script>alert(1)</script><style>p{}</style>"
	assert.Equal(t, "TitleSome text", PlainText(html, 0))
	assert.Equal(t, "Title...", PlainText(html, 5))
}

func TestNormalizeIcon(t *testing.T) {
	assert.Equal(t, IconTimer, NormalizeIcon(" Clock "))
	assert.Equal(t, IconTool, NormalizeIcon(""))
}
