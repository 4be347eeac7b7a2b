package resolver

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/saas-intel/pkg/urlutil"
)

// Candidate is a proposed homepage with the score that justified it.
type Candidate struct {
	URL      string
	Score    int
	Strategy string
}

// Input is everything a strategy may look at for one product.
type Input struct {
	Target     Target
	HTML       string
	Doc        *goquery.Document
	Links      []string
	Denylist   []string
	SourceHost string
}

// Strategy proposes a homepage from a rendered listing page. Strategies
// run in order and the first confident answer wins.
type Strategy interface {
	Name() string
	Propose(in Input) (Candidate, bool)
}

// DefaultStrategies returns the built-in chain, most explicit first.
func DefaultStrategies() []Strategy {
	return []Strategy{
		VisitWebsiteStrategy{},
		NamedDomainStrategy{},
		ScoredLinksStrategy{},
	}
}

var anchorSelectors = []string{
	`a[href*="?ref=saashub"][rel~="nofollow"]`,
	`a.product-website-link`,
	`a[data-action="visit-website"]`,
	`a.website-link`,
	`.website-link a`,
	`.product-links a[rel~="nofollow"]`,
}

var anchorTexts = regexp.MustCompile(`(?i)^\s*(visit (the )?website|official (web)?site|visit site|go to website)\b`)

var rawAnchorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)href="(https?://[^"]+)\?ref=saashub"`),
	regexp.MustCompile(`(?i)href="(https?://[^"]+)"[^>]*>\s*Visit Website`),
	regexp.MustCompile(`(?i)href="(https?://[^"]+)"[^>]*>\s*Official Website`),
	regexp.MustCompile(`(?i)class="website-link"[^>]*href="(https?://[^"]+)"`),
}

// VisitWebsiteStrategy trusts an explicit "visit website" control.
type VisitWebsiteStrategy struct{}

func (VisitWebsiteStrategy) Name() string { return "visit_website" }

func (s VisitWebsiteStrategy) Propose(in Input) (Candidate, bool) {
	accept := func(href string) (Candidate, bool) {
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(strings.ToLower(href), "http") {
			return Candidate{}, false
		}
		clean := urlutil.StripTrackingParams(href)
		if excluded(clean, in.Denylist, in.SourceHost) {
			return Candidate{}, false
		}
		return Candidate{URL: clean, Score: ScoreExplicitAnchor, Strategy: s.Name()}, true
	}

	if in.Doc != nil {
		for _, sel := range anchorSelectors {
			var found Candidate
			var ok bool
			in.Doc.Find(sel).EachWithBreak(func(_ int, a *goquery.Selection) bool {
				href, _ := a.Attr("href")
				found, ok = accept(href)
				return !ok
			})
			if ok {
				return found, true
			}
		}
		var found Candidate
		var ok bool
		in.Doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if !anchorTexts.MatchString(a.Text()) {
				return true
			}
			href, _ := a.Attr("href")
			found, ok = accept(href)
			return !ok
		})
		if ok {
			return found, true
		}
	}

	// Markup goquery could not see, such as anchors inside inline scripts.
	for _, re := range rawAnchorPatterns {
		for _, m := range re.FindAllStringSubmatch(in.HTML, -1) {
			if c, ok := accept(m[1]); ok {
				return c, true
			}
		}
	}
	return Candidate{}, false
}

var embeddedURL = regexp.MustCompile(`https?://[a-zA-Z0-9][a-zA-Z0-9.-]*\.[a-zA-Z]{2,}(?:/[^\s"'<>\\]*)?`)

// externalCandidates gathers every non-excluded URL on the page, anchors
// first, and reduces each to its https root.
func externalCandidates(in Input) []scored {
	keys := newNameKeys(in.Target.Name, in.Target.Slug)
	seen := map[string]int{}
	var out []scored
	add := func(raw string) {
		if excluded(raw, in.Denylist, in.SourceHost) {
			return
		}
		root := urlutil.Root(raw)
		if root == "" {
			return
		}
		depth := urlutil.PathDepth(pathOf(raw))
		if i, ok := seen[root]; ok {
			if depth < out[i].depth {
				out[i].depth = depth
			}
			return
		}
		seen[root] = len(out)
		host := urlutil.Host(raw)
		out = append(out, scored{
			url:   root,
			host:  host,
			score: keys.score(host),
			depth: depth,
		})
	}
	for _, l := range in.Links {
		add(l)
	}
	for _, m := range embeddedURL.FindAllString(in.HTML, -1) {
		add(m)
	}
	return out
}

type scored struct {
	url   string
	host  string
	score int
	depth int
}

// rank orders by score, then shallow paths, then registrable hosts, then
// shorter hosts.
func rank(cands []scored) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		aSub := urlutil.RegistrableDomain(a.host) != a.host
		bSub := urlutil.RegistrableDomain(b.host) != b.host
		if aSub != bSub {
			return !aSub
		}
		return len(a.host) < len(b.host)
	})
}

// NamedDomainStrategy accepts only a URL whose domain is the product's
// slug or name.
type NamedDomainStrategy struct{}

func (NamedDomainStrategy) Name() string { return "named_domain" }

func (s NamedDomainStrategy) Propose(in Input) (Candidate, bool) {
	cands := externalCandidates(in)
	rank(cands)
	if len(cands) == 0 || cands[0].score < ScoreExactNoDigits {
		return Candidate{}, false
	}
	return Candidate{URL: cands[0].url, Score: cands[0].score, Strategy: s.Name()}, true
}

// ScoredLinksStrategy takes the best scored external link, provided it
// clears MinConfidence.
type ScoredLinksStrategy struct{}

func (ScoredLinksStrategy) Name() string { return "scored_links" }

func (s ScoredLinksStrategy) Propose(in Input) (Candidate, bool) {
	cands := externalCandidates(in)
	rank(cands)
	if len(cands) == 0 || cands[0].score < MinConfidence {
		return Candidate{}, false
	}
	return Candidate{URL: cands[0].url, Score: cands[0].score, Strategy: s.Name()}, true
}
