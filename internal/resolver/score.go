package resolver

import (
	"strings"
	"unicode"

	"github.com/rohmanhakim/saas-intel/pkg/urlutil"
)

// MinConfidence is the lowest score a candidate needs to be returned.
// Anything under it is a guess, and a wrong homepage poisons extraction.
const MinConfidence = 100

const (
	ScoreExplicitAnchor = 2000
	ScoreExact          = 1000
	ScoreExactNoDigits  = 900
	ScoreSlugInDomain   = 500
	ScoreNameInDomain   = 400
	ScoreDomainInSlug   = 200
	ScoreDomainInName   = 150
	ScoreUnrelated      = 1
)

// DefaultDenylist holds hosts that are never a product homepage. Entries
// match the host itself and any subdomain.
var DefaultDenylist = []string{
	"schema.org", "w3.org", "google.com", "googletagmanager.com", "googleapis.com", "gstatic.com",
	"facebook.com", "twitter.com", "x.com", "linkedin.com", "youtube.com", "youtu.be",
	"instagram.com", "github.com", "cloudflare.com", "cloudflareinsights.com",
	"segment.com", "imgix.net", "lu.ma",
	"producthunt.app.link", "apps.apple.com", "play.google.com", "itunes.apple.com",
	"appstore.com", "onelink.me", "branch.io", "adjust.com", "app.link", "appsto.re",
	"producthunt.com", "saashub.com",
}

var assetExtensions = []string{".png", ".jpg", ".jpeg", ".svg", ".gif", ".webp", ".ico", ".css", ".js"}

type nameKeys struct {
	name         string
	slug         string
	nameNoDigits string
	slugNoDigits string
}

func newNameKeys(name, slug string) nameKeys {
	n := squash(name)
	s := squash(slug)
	return nameKeys{name: n, slug: s, nameNoDigits: stripDigits(n), slugNoDigits: stripDigits(s)}
}

func squash(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "-", "")
}

func stripDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, s)
}

// Score rates how likely host is the homepage of a product called name
// with the given slug. "cursor2" and "cursor.com" match through the
// digit-less variants.
func Score(host, name, slug string) int {
	return newNameKeys(name, slug).score(host)
}

func (k nameKeys) score(host string) int {
	// Compare against the registrable label so "app.notion.so" scores as
	// "notion" and not "app".
	base := urlutil.DomainBase(strings.ToLower(host))
	if base == "" {
		return 0
	}
	switch {
	case nonEmptyEq(base, k.slug) || nonEmptyEq(base, k.name):
		return ScoreExact
	case nonEmptyEq(base, k.slugNoDigits) || nonEmptyEq(base, k.nameNoDigits):
		return ScoreExactNoDigits
	case len(k.slug) > 3 && strings.Contains(base, k.slug):
		return ScoreSlugInDomain
	case len(k.nameNoDigits) > 3 && strings.Contains(base, k.nameNoDigits):
		return ScoreNameInDomain
	case len(base) > 3 && strings.Contains(k.slug, base):
		return ScoreDomainInSlug
	case len(base) > 3 && strings.Contains(k.nameNoDigits, base):
		return ScoreDomainInName
	default:
		return ScoreUnrelated
	}
}

func nonEmptyEq(a, b string) bool {
	return b != "" && a == b
}

// excluded reports whether raw must never be a candidate: a denylisted or
// source host, or a static asset.
func excluded(raw string, denylist []string, sourceHost string) bool {
	host := urlutil.Host(raw)
	if host == "" {
		return true
	}
	if sourceHost != "" && urlutil.HostMatches(host, sourceHost) {
		return true
	}
	for _, d := range denylist {
		if urlutil.HostMatches(host, d) {
			return true
		}
	}
	path := strings.ToLower(pathOf(raw))
	for _, ext := range assetExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func pathOf(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[i:]
	}
	return ""
}
