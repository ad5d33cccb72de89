package delivery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/digest-cli/internal/model"
)

func TestRender(t *testing.T) {
	t.Parallel()
	d := model.Digest{
		GeneratedAt: time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC),
		Sections: []model.DigestSection{
			{Topic: "AI", Summary: "## Key Takeaways\n\n- **Chips** are scarce", Sources: []string{"https://news.example/chips"}},
			{Topic: "Climate", Summary: "Plain text <script>alert(1)</script>"},
		},
	}

	html, text, err := NewRenderer("").Render(d)
	require.NoError(t, err)

	assert.Contains(t, html, "Your Daily News Digest")
	assert.Contains(t, html, "May 02, 2026 | 2 Topics Analyzed")
	assert.Contains(t, html, "<strong>Chips</strong>")
	assert.Contains(t, html, `href="https://news.example/chips"`)
	assert.NotContains(t, html, "<script>")
	assert.Less(t, strings.Index(html, ">AI</h2>"), strings.Index(html, ">Climate</h2>"))

	assert.Contains(t, text, "Your Daily News Digest")
	assert.Contains(t, text, "**Chips** are scarce")
	assert.NotContains(t, text, "<h2")
}

func TestRender_EscapesTopic(t *testing.T) {
	t.Parallel()
	html, _, err := NewRenderer("Digest").Render(model.Digest{
		Sections: []model.DigestSection{{Topic: "<b>AI</b>", Summary: "x"}},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "&lt;b&gt;AI&lt;/b&gt;")
	assert.Contains(t, html, "1 Topics Analyzed")
}

func TestRender_GroupsLargeCounts(t *testing.T) {
	t.Parallel()
	sections := make([]model.DigestSection, 1200)
	for i := range sections {
		sections[i] = model.DigestSection{Topic: "t", Summary: "s"}
	}
	html, _, err := NewRenderer("").Render(model.Digest{Sections: sections})
	require.NoError(t, err)
	assert.Contains(t, html, "1,200 Topics Analyzed")
}
