package mdconvert

import (
	"bytes"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
	"golang.org/x/net/html"
)

/*
Conversion pipeline
- Sanitize with a UGC policy: scripts, styles, iframes and handlers go
- Keep the main content region when the page marks one
- Drop page chrome that carries no product facts (nav, cookie banners)
- Convert to GitHub-flavored Markdown, tables included
- Cut at a rune budget so one huge page cannot blow the model context

The output is input for an extraction model, not for humans, so
visual fidelity does not matter.
*/

// DefaultMaxChars bounds the markdown handed to the extraction model.
const DefaultMaxChars = 60000

type ConvertRule interface {
	Convert(pageURL string, rawHTML []byte) (ConversionResult, failure.ClassifiedError)
}

var _ ConvertRule = (*MarkdownRule)(nil)

type MarkdownRule struct {
	metadataSink metadata.MetadataSink
	policy       *bluemonday.Policy
	conv         *converter.Converter
	maxChars     int
}

func NewRule(metadataSink metadata.MetadataSink, maxChars int) *MarkdownRule {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("main", "article", "section", "header", "footer", "nav", "aside")
	policy.AllowAttrs("class", "id", "role").Globally()

	return &MarkdownRule{
		metadataSink: metadataSink,
		policy:       policy,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		maxChars: maxChars,
	}
}

func (r *MarkdownRule) Convert(pageURL string, rawHTML []byte) (ConversionResult, failure.ClassifiedError) {
	result, err := r.convert(rawHTML)
	if err != nil {
		r.metadataSink.RecordError(
			time.Now(),
			"mdconvert",
			"MarkdownRule.Convert",
			mapConversionErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, pageURL),
			},
		)
		return ConversionResult{}, err
	}
	return result, nil
}

var chromeSelectors = strings.Join([]string{
	"nav",
	"[role=navigation]",
	"[id*=cookie]",
	"[class*=cookie]",
	"[class*=consent]",
	"[aria-hidden=true]",
}, ", ")

func (r *MarkdownRule) convert(rawHTML []byte) (ConversionResult, *ConversionError) {
	if len(bytes.TrimSpace(rawHTML)) == 0 {
		return ConversionResult{}, &ConversionError{Cause: ErrCauseEmptyDocument}
	}

	// The title lives in <head>, which the sanitizer drops.
	title := ""
	if raw, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML)); err == nil {
		title = strings.TrimSpace(raw.Find("head title").First().Text())
	}

	clean := r.policy.SanitizeBytes(rawHTML)
	root, err := html.Parse(bytes.NewReader(clean))
	if err != nil {
		return ConversionResult{}, &ConversionError{Cause: ErrCauseParseFailure, Message: err.Error()}
	}

	doc := goquery.NewDocumentFromNode(root)
	doc.Find(chromeSelectors).Remove()
	content := doc.Find("main, [role=main], article").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	if content.Length() == 0 || strings.TrimSpace(content.Text()) == "" {
		return ConversionResult{}, &ConversionError{Cause: ErrCauseEmptyDocument, Message: "no text content"}
	}

	// Converting the node in place walks its siblings too, so the region
	// is rendered on its own first.
	fragment, err := goquery.OuterHtml(content)
	if err != nil {
		return ConversionResult{}, &ConversionError{Cause: ErrCauseConversionFailure, Message: err.Error()}
	}
	converted, convErr := r.conv.ConvertString(fragment)
	if convErr != nil {
		return ConversionResult{}, &ConversionError{Cause: ErrCauseConversionFailure, Message: convErr.Error()}
	}
	markdown, truncated := truncateRunes(bytes.TrimSpace([]byte(converted)), r.maxChars)

	return NewConversionResult(title, markdown, extractLinkRefs(doc), truncated), nil
}

func truncateRunes(b []byte, max int) ([]byte, bool) {
	if utf8.RuneCount(b) <= max {
		return b, false
	}
	n := 0
	for i := range string(b) {
		if n == max {
			return b[:i], true
		}
		n++
	}
	return b, false
}

// extractLinkRefs lists anchors in document order, flagging the ones that
// look like a pricing page so a caller can fetch it as well.
func extractLinkRefs(doc *goquery.Document) []LinkRef {
	var linkRefs []LinkRef
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		linkRefs = append(linkRefs, toLinkRef(href, s.Text()))
	})
	return linkRefs
}

func toLinkRef(raw, text string) LinkRef {
	switch {
	case strings.HasPrefix(raw, "#"):
		return NewLinkRef(raw, KindAnchor)
	case strings.Contains(strings.ToLower(raw), "pricing"),
		strings.EqualFold(strings.TrimSpace(text), "pricing"):
		return NewLinkRef(raw, KindPricing)
	default:
		return NewLinkRef(raw, KindNavigation)
	}
}
