package extraction

import (
	"time"

	"github.com/rohmanhakim/saas-intel/internal/product"
)

// CollectedProduct is one line of the output file: discovery provenance,
// resolved URLs and whatever the model extracted.
type CollectedProduct struct {
	RecordID          string                    `json:"record_id"`
	Source            product.Source            `json:"source"`
	ProductID         string                    `json:"product_id,omitempty"`
	SeedQuery         string                    `json:"seed_query"`
	DiscoveredAt      *time.Time                `json:"discovered_at,omitempty"`
	HomepageURL       string                    `json:"homepage_url"`
	SourceURL         string                    `json:"source_url,omitempty"`
	SourceURLs        map[product.Source]string `json:"source_urls"`
	Topics            []string                  `json:"topics"`
	Votes             *int                      `json:"votes_count,omitempty"`
	ProductInfo       *ProductInfo              `json:"product_info"`
	ExtractionSuccess bool                      `json:"extraction_success"`
	ExtractionError   string                    `json:"extraction_error,omitempty"`
	ExtractedAt       time.Time                 `json:"extracted_at"`
}

// NewCollectedProduct joins a stored product with its extraction result.
// recordID is assigned by the output writer.
func NewCollectedProduct(p *product.Product, info *ProductInfo, extractedAt time.Time) CollectedProduct {
	urls := make(map[product.Source]string, len(p.SourceURLs))
	for k, v := range p.SourceURLs {
		urls[k] = v
	}
	topics := append([]string{}, p.Topics...)
	return CollectedProduct{
		Source:            p.Source,
		ProductID:         p.Key(),
		SeedQuery:         p.SeedQuery,
		DiscoveredAt:      p.DiscoveredAt,
		HomepageURL:       p.HomepageURL,
		SourceURL:         p.SourceURL,
		SourceURLs:        urls,
		Topics:            topics,
		Votes:             p.Votes,
		ProductInfo:       info,
		ExtractionSuccess: info != nil,
		ExtractedAt:       extractedAt.UTC(),
	}
}
