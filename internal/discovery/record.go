// Package discovery holds the canonical record both discovery sources
// emit, and the errors they surface.
package discovery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/product"
)

// Source is one discovery backend, queried once per seed.
type Source interface {
	Name() product.Source
	Discover(ctx context.Context, seed string, limit int) ([]Record, error)
}

// Record is a source result normalized at ingestion. Source-specific
// fields that have no home here survive in Raw.
type Record struct {
	Source        product.Source
	ID            string
	Name          string
	Tagline       string
	Description   string
	Slug          string
	SeedQuery     string
	Topics        []string
	Votes         *int
	ReviewsCount  int
	ReviewsRating *float64
	Makers        []product.Maker
	ThumbnailURL  string
	LaunchedAt    string
	FeaturedAt    string
	// HomepageURL is set only when the API returned the real site.
	HomepageURL string
	SourceURL   string
	// RedirectURL is a tracking link that still has to be resolved.
	RedirectURL string
	Raw         json.RawMessage
}

// ToProduct converts r to a pending store entity discovered at now.
func (r Record) ToProduct(now time.Time) *product.Product {
	p := &product.Product{
		ID:            r.ID,
		Name:          r.Name,
		Tagline:       r.Tagline,
		Description:   r.Description,
		Slug:          r.Slug,
		SeedQuery:     r.SeedQuery,
		Topics:        append([]string(nil), r.Topics...),
		Votes:         r.Votes,
		ReviewsCount:  r.ReviewsCount,
		ReviewsRating: r.ReviewsRating,
		Makers:        append([]product.Maker(nil), r.Makers...),
		ThumbnailURL:  r.ThumbnailURL,
		LaunchedAt:    r.LaunchedAt,
		FeaturedAt:    r.FeaturedAt,
		HomepageURL:   r.HomepageURL,
		SourceURL:     r.SourceURL,
		RedirectURL:   r.RedirectURL,
		Source:        r.Source,
		Status:        product.StatusPending,
		DiscoveredAt:  &now,
		Raw:           r.Raw,
	}
	if r.HomepageURL != "" {
		p.HomepageOrigin = product.OriginAPI
	}
	p.SourceIDs = map[product.Source]string{}
	p.SourceURLs = map[product.Source]string{}
	if r.ID != "" {
		p.SourceIDs[r.Source] = r.ID
	}
	if r.SourceURL != "" {
		p.SourceURLs[r.Source] = r.SourceURL
	}
	p.Migrate()
	return p
}
