package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "## Problem\ntext", "## Problem\ntext"},
		{"markdown fence", "```markdown\n## Problem\ntext\n```", "## Problem\ntext"},
		{"bare fence", "```\n<html></html>\n```\n", "<html></html>"},
		{"inner fence kept", "intro\n```go\nx\n```", "intro\n```go\nx\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestExtractHTML(t *testing.T) {
	in := "Here is your page:\n```html\n<!DOCTYPE html>\n<html><body>x</body></html>\n```"
	assert.Equal(t, "<!DOCTYPE html>\n<html><body>x</body></html>", extractHTML(in))

	trailing := "<html><body>x</body></html>\nLet me know if you want changes."
	assert.Equal(t, "<html><body>x</body></html>", extractHTML(trailing))
}

func TestRegionAndInteractiveCounts(t *testing.T) {
	doc, err := parseHTML(`<header></header><main><section></section><section></section></main><a href="#x">x</a><div onclick="go()"></div>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"header", "main", "section"}, regionKinds(doc))
	assert.Equal(t, 2, interactiveCount(doc))
}

func TestExternalResources(t *testing.T) {
	doc, err := parseHTML(`<head>
<script src="app.js"></script>
<script src="https://cdn.example.com/x.js"></script>
<link rel="stylesheet" href="//fonts.example.com/f.css">
</head><body><img src="data:image/png;base64,AAAA"></body>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/x.js", "//fonts.example.com/f.css"}, externalResources(doc))
}

func TestHeadingsAndSection(t *testing.T) {
	doc := "# Title\n\n## Problem\nSlow.\n\n## Requirements\n1. Fast.\n2. Cheap.\n\n## Users\nTeams."
	assert.Equal(t, []string{"Problem", "Requirements", "Users"}, headings(doc))
	assert.Equal(t, "1. Fast.\n2. Cheap.", section(doc, "requirements"))
	assert.Empty(t, section(doc, "Risks"))
	assert.Equal(t, []string{"Success Metrics", "Out of Scope"}, missingSections(doc))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "A scheduling assistant", title("A scheduling assistant. It does more."))
	long := "An extremely long idea description that keeps going well past the length a poster frame can show at once"
	got := title(long)
	assert.LessOrEqual(t, len([]rune(got)), maxTitleChars)
	assert.True(t, len(got) > 3 && got[len(got)-3:] == "...")
}
