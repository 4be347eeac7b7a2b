package store

import (
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/urlutil"
)

// merge folds b into the existing product a and reports whether two
// different sources were unified.
//
// Rules:
//   - b's homepage replaces a's only when b's URL came from a discovery API,
//     a's did not, and the normalized URLs differ
//   - source ids and source URLs are unioned, a's entries win
//   - topics are unioned as a set
//   - tagline is taken from b when a has none or b is authoritative
//   - votes are taken from b only when a has none
//   - other scalars are only filled when empty on a
//
// does NOT take lock; caller must hold s.mu
func (s *Store) merge(a, b *product.Product) bool {
	key := a.Key()
	authoritative := b.HomepageOrigin == product.OriginAPI && a.HomepageOrigin != product.OriginAPI

	switch {
	case a.HomepageURL == "" && b.HomepageURL != "":
		s.replaceHomepage(a, key, b.HomepageURL, b.HomepageOrigin)
	case authoritative && b.HomepageURL != "" &&
		urlutil.Normalize(a.HomepageURL) != urlutil.Normalize(b.HomepageURL):
		s.replaceHomepage(a, key, b.HomepageURL, b.HomepageOrigin)
	case authoritative && b.HomepageURL != "":
		// Same normalized URL: keep a's spelling, only upgrade provenance.
		a.HomepageOrigin = product.OriginAPI
	}

	unionSources(a, b)
	for src, id := range b.SourceIDs {
		s.index.PutSourceID(string(src), id, key)
	}
	a.Topics = unionTopics(a.Topics, b.Topics)

	if b.Tagline != "" && (a.Tagline == "" || authoritative) {
		a.Tagline = b.Tagline
	}
	if a.Votes == nil && b.Votes != nil {
		v := *b.Votes
		a.Votes = &v
	}
	fillScalars(a, b)

	cross := a.Source != b.Source && b.Source != product.SourceMerged
	if a.Source != b.Source {
		a.Source = product.SourceMerged
	}
	s.dirty = true
	return cross
}

// fillEmpty enriches a with b's values only where a has nothing. Populated
// fields are never overwritten.
//
// does NOT take lock; caller must hold s.mu
func (s *Store) fillEmpty(a, b *product.Product) {
	key := a.Key()
	if a.HomepageURL == "" && b.HomepageURL != "" {
		if owner, taken := s.index.Lookup(b.HomepageURL); !taken || owner == key {
			s.replaceHomepage(a, key, b.HomepageURL, b.HomepageOrigin)
		}
	}
	unionSources(a, b)
	for src, id := range b.SourceIDs {
		s.index.PutSourceID(string(src), id, key)
	}
	if len(a.Topics) == 0 && len(b.Topics) > 0 {
		a.Topics = append([]string(nil), b.Topics...)
	}
	if a.Tagline == "" {
		a.Tagline = b.Tagline
	}
	if a.Votes == nil && b.Votes != nil {
		v := *b.Votes
		a.Votes = &v
	}
	fillScalars(a, b)
	s.dirty = true
}

// does NOT take lock; caller must hold s.mu
func (s *Store) replaceHomepage(a *product.Product, key, homepageURL string, origin product.Origin) {
	if a.HomepageURL != "" {
		s.index.Remove(a.HomepageURL, key)
	}
	a.HomepageURL = homepageURL
	a.HomepageOrigin = origin
	a.HomepageDiscovered = true
	now := s.now()
	if a.HomepageCheckedAt == nil {
		a.HomepageCheckedAt = &now
	}
	s.index.Put(homepageURL, key)
}

func unionSources(a, b *product.Product) {
	if a.SourceIDs == nil {
		a.SourceIDs = map[product.Source]string{}
	}
	if a.SourceURLs == nil {
		a.SourceURLs = map[product.Source]string{}
	}
	for src, id := range b.SourceIDs {
		if _, ok := a.SourceIDs[src]; !ok {
			a.SourceIDs[src] = id
		}
	}
	for src, u := range b.SourceURLs {
		if _, ok := a.SourceURLs[src]; !ok {
			a.SourceURLs[src] = u
		}
	}
}

func unionTopics(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if _, ok := seen[t]; ok || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func fillScalars(a, b *product.Product) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&a.Name, b.Name)
	fill(&a.Description, b.Description)
	fill(&a.Slug, b.Slug)
	fill(&a.SeedQuery, b.SeedQuery)
	fill(&a.SourceURL, b.SourceURL)
	fill(&a.RedirectURL, b.RedirectURL)
	fill(&a.ThumbnailURL, b.ThumbnailURL)
	fill(&a.LaunchedAt, b.LaunchedAt)
	fill(&a.FeaturedAt, b.FeaturedAt)
	if a.ReviewsCount == 0 {
		a.ReviewsCount = b.ReviewsCount
	}
	if a.ReviewsRating == nil && b.ReviewsRating != nil {
		r := *b.ReviewsRating
		a.ReviewsRating = &r
	}
	if len(a.Makers) == 0 && len(b.Makers) > 0 {
		a.Makers = append([]product.Maker(nil), b.Makers...)
	}
	if a.Raw == nil && b.Raw != nil {
		a.Raw = append([]byte(nil), b.Raw...)
	}
	if a.DiscoveredAt == nil {
		a.DiscoveredAt = b.DiscoveredAt
	}
}
