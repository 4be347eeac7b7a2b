package mdconvert

// ConversionResult is a page reduced to the text an extraction model reads.
type ConversionResult struct {
	title           string
	markdownContent []byte
	linkRefs        []LinkRef
	truncated       bool
}

func NewConversionResult(
	title string,
	markdownContent []byte,
	linkRefs []LinkRef,
	truncated bool,
) ConversionResult {
	return ConversionResult{
		title:           title,
		markdownContent: markdownContent,
		linkRefs:        linkRefs,
		truncated:       truncated,
	}
}

func (c *ConversionResult) GetTitle() string {
	return c.title
}

func (c *ConversionResult) GetMarkdownContent() []byte {
	return c.markdownContent
}

func (c *ConversionResult) GetLinkRefs() []LinkRef {
	return c.linkRefs
}

// Truncated reports whether the markdown was cut at the size limit.
func (c *ConversionResult) Truncated() bool {
	return c.truncated
}

type LinkKind string

const (
	KindNavigation LinkKind = "navigation"
	KindPricing    LinkKind = "pricing"
	KindAnchor     LinkKind = "anchor"
)

type LinkRef struct {
	raw  string
	kind LinkKind
}

func NewLinkRef(
	raw string,
	kind LinkKind,
) LinkRef {
	return LinkRef{
		raw:  raw,
		kind: kind,
	}
}

func (l *LinkRef) GetRaw() string {
	return l.raw
}

func (l *LinkRef) GetKind() LinkKind {
	return l.kind
}
