package mdconvert_test

import (
	"strings"
	"testing"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/mdconvert"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const homepage = `<!doctype html>
<html>
<head><title>Linear - Plan and build products</title><style>body{color:red}</style></head>
<body>
<nav><a href="/login">Log in</a></nav>
<div class="cookie-banner">We use cookies</div>
<main>
  <h1>Linear</h1>
  <p>Linear is a <strong>purpose-built</strong> tool for planning.</p>
  <script>track("visit")</script>
  <table><tr><th>Plan</th><th>Price</th></tr><tr><td>Free</td><td>$0</td></tr></table>
  <a href="/pricing">See plans</a>
  <a href="#features">Features</a>
  <a href="https://linear.app/integrations" onclick="evil()">Integrations</a>
</main>
<footer>Copyright</footer>
</body>
</html>`

type recordingSink struct {
	metadata.NoopSink
	errors []metadata.ErrorCause
}

func (r *recordingSink) RecordError(_ time.Time, _ string, _ string, cause metadata.ErrorCause, _ string, _ []metadata.Attribute) {
	r.errors = append(r.errors, cause)
}

func TestConvert_KeepsMainContentAsMarkdown(t *testing.T) {
	// GIVEN a homepage with chrome, scripts and a main region
	rule := mdconvert.NewRule(&metadata.NoopSink{}, 0)

	// WHEN converted
	result, err := rule.Convert("https://linear.app", []byte(homepage))

	// THEN only the main region survives, as markdown
	require.Nil(t, err)
	md := string(result.GetMarkdownContent())
	assert.Contains(t, md, "# Linear")
	assert.Contains(t, md, "**purpose-built**")
	assert.Contains(t, md, "| Plan | Price |")
	assert.NotContains(t, md, "track(")
	assert.NotContains(t, md, "color:red")
	assert.NotContains(t, md, "Log in")
	assert.NotContains(t, md, "cookies")
	assert.NotContains(t, md, "Copyright")
	assert.Equal(t, "Linear - Plan and build products", result.GetTitle())
	assert.False(t, result.Truncated())
}

func TestConvert_ArticleExcludesSiblingText(t *testing.T) {
	// GIVEN an article followed by sibling sections outside it
	rule := mdconvert.NewRule(&metadata.NoopSink{}, 0)
	page := `<html><body>
<section><p>Trusted by teams everywhere</p></section>
<article><h2>Notion</h2><p>All-in-one workspace.</p></article>
<aside>Related: Coda</aside>
<footer>Terms and privacy</footer>
</body></html>`

	// WHEN converted
	result, err := rule.Convert("https://notion.so", []byte(page))

	// THEN the markdown holds the article and nothing around it
	require.Nil(t, err)
	md := string(result.GetMarkdownContent())
	assert.True(t, strings.HasPrefix(md, "## Notion"), md)
	assert.Contains(t, md, "All-in-one workspace.")
	assert.NotContains(t, md, "Coda")
	assert.NotContains(t, md, "Terms")
	assert.NotContains(t, md, "Trusted")
}

func TestConvert_ClassifiesLinks(t *testing.T) {
	rule := mdconvert.NewRule(&metadata.NoopSink{}, 0)

	result, err := rule.Convert("https://linear.app", []byte(homepage))
	require.Nil(t, err)

	kinds := map[string]mdconvert.LinkKind{}
	for _, l := range result.GetLinkRefs() {
		kinds[l.GetRaw()] = l.GetKind()
	}
	assert.Equal(t, mdconvert.KindPricing, kinds["/pricing"])
	assert.Equal(t, mdconvert.KindAnchor, kinds["#features"])
	assert.Equal(t, mdconvert.KindNavigation, kinds["https://linear.app/integrations"])
	assert.NotContains(t, kinds, "/login")
}

func TestConvert_FallsBackToBody(t *testing.T) {
	rule := mdconvert.NewRule(&metadata.NoopSink{}, 0)

	result, err := rule.Convert("https://x.io", []byte(`<html><body><h2>Pricing</h2><p>Free forever.</p></body></html>`))

	require.Nil(t, err)
	assert.Contains(t, string(result.GetMarkdownContent()), "## Pricing")
	assert.Contains(t, string(result.GetMarkdownContent()), "Free forever.")
}

func TestConvert_TruncatesAtRuneBudget(t *testing.T) {
	// GIVEN a page longer than the budget, with multi-byte runes
	rule := mdconvert.NewRule(&metadata.NoopSink{}, 10)
	page := "<p>" + strings.Repeat("é", 50) + "</p>"

	// WHEN converted
	result, err := rule.Convert("https://x.io", []byte(page))

	// THEN the output holds exactly ten runes and is flagged
	require.Nil(t, err)
	assert.True(t, result.Truncated())
	assert.Equal(t, strings.Repeat("é", 10), string(result.GetMarkdownContent()))
}

func TestConvert_EmptyDocuments(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"blank", "   "},
		{"only scripts", "<html><body><script>app()</script></body></html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			rule := mdconvert.NewRule(sink, 0)

			_, err := rule.Convert("https://x.io", []byte(tt.html))

			require.NotNil(t, err)
			var convErr *mdconvert.ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Equal(t, mdconvert.ErrCauseEmptyDocument, convErr.Cause)
			assert.Equal(t, []metadata.ErrorCause{metadata.CauseContentInvalid}, sink.errors)
		})
	}
}
