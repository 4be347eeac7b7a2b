package urlutil

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// localeSuffixes are stripped from the end of a path until none matches,
// so "/home/en" and "/en/home" both reduce to "".
var localeSuffixes = []string{"/en", "/en-us", "/en-gb", "/home", "/index"}

// Normalize maps a homepage URL to its deduplication key: host and path with
// no scheme, no "www." prefix, no trailing slash, no query or fragment and
// no locale or index suffix. Empty input yields "".
//
//	Normalize("https://Foo.com/")     == "foo.com"
//	Normalize("http://www.foo.com")   == "foo.com"
//	Normalize("https://foo.com/en-us") == "foo.com"
func Normalize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	u, err := url.Parse(EnsureScheme(raw))
	if err != nil || u.Host == "" {
		return ""
	}

	host := strings.TrimPrefix(u.Host, "www.")
	if h, port := u.Hostname(), u.Port(); port == "80" || port == "443" {
		host = strings.TrimPrefix(h, "www.")
	}

	return host + trimLocaleSuffixes(u.Path)
}

func trimLocaleSuffixes(p string) string {
	p = strings.TrimRight(p, "/")
	for {
		trimmed := false
		for _, suffix := range localeSuffixes {
			if strings.HasSuffix(p, suffix) {
				p = strings.TrimRight(strings.TrimSuffix(p, suffix), "/")
				trimmed = true
			}
		}
		if !trimmed {
			return p
		}
	}
}

// EnsureScheme prefixes https:// to scheme-less input such as "foo.com/x".
func EnsureScheme(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

// Canonicalize gives a URL a single spelling for display and storage:
// lowercase scheme and host, no default port, no fragment, no query and no
// trailing slash except on the root path. The result is idempotent.
func Canonicalize(source url.URL) url.URL {
	c := source
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)

	if port := c.Port(); (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
		c.Host = c.Hostname()
	}
	if len(c.Path) > 1 {
		c.Path = strings.TrimRight(c.Path, "/")
		if c.Path == "" {
			c.Path = "/"
		}
	}
	c.Fragment, c.RawFragment = "", ""
	c.RawQuery, c.ForceQuery = "", false
	return c
}

var trackingPrefixes = []string{"utm_"}
var trackingParams = map[string]struct{}{
	"ref": {}, "ref_src": {}, "source": {}, "via": {}, "fbclid": {}, "gclid": {},
}

// StripTrackingParams removes referral and utm_* query parameters, keeping
// every other parameter in its original order.
func StripTrackingParams(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	kept := make([]string, 0)
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if isTrackingParam(strings.ToLower(key)) {
			continue
		}
		kept = append(kept, pair)
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

func isTrackingParam(key string) bool {
	if _, ok := trackingParams[key]; ok {
		return true
	}
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Host returns the lowercased host of raw without port and without "www.".
func Host(raw string) string {
	u, err := url.Parse(EnsureScheme(strings.TrimSpace(raw)))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Root returns "https://<host>" for raw, dropping path, query and "www.".
func Root(raw string) string {
	h := Host(raw)
	if h == "" {
		return ""
	}
	return "https://" + h
}

// RegistrableDomain returns the eTLD+1 of host ("app.foo.co.uk" gives
// "foo.co.uk"), or host itself when the public suffix list has no answer.
func RegistrableDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// DomainBase returns the label a product name would match: the registrable
// domain minus its public suffix ("app.notion.so" gives "notion").
func DomainBase(host string) string {
	reg := RegistrableDomain(host)
	suffix, _ := publicsuffix.PublicSuffix(reg)
	base := strings.TrimSuffix(reg, "."+suffix)
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	return base
}

// HostMatches reports whether host equals domain or is a subdomain of it.
// Plain substring containment is not a match: "notgithub.com" does not
// match "github.com".
func HostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// PathDepth counts the non-empty segments of a URL path.
func PathDepth(p string) int {
	p = path.Clean("/" + p)
	if p == "/" {
		return 0
	}
	return strings.Count(p, "/")
}
