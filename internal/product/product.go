package product

import (
	"encoding/json"
	"strings"
	"time"
)

// CurrentSchemaVersion is bumped whenever a field with a non-zero default is
// added to Product. Migrate upgrades anything older.
const CurrentSchemaVersion = 2

type Source string

const (
	SourceSaaSHub     Source = "saashub"
	SourceProductHunt Source = "producthunt"
	SourceMerged      Source = "merged"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Origin says where HomepageURL came from. An API-native URL outranks one
// scraped from a listing page.
type Origin string

const (
	OriginNone     Origin = ""
	OriginAPI      Origin = "api"
	OriginResolved Origin = "resolved"
)

type Maker struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Headline string `json:"headline,omitempty"`
}

// Product is one discovered SaaS product and its lifecycle in the pipeline.
type Product struct {
	SchemaVersion int `json:"schema_version"`

	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Tagline     string   `json:"tagline,omitempty"`
	Description string   `json:"description,omitempty"`
	Slug        string   `json:"slug,omitempty"`
	SeedQuery   string   `json:"seed_query,omitempty"`
	Topics      []string `json:"topics"`

	Votes         *int     `json:"votes_count,omitempty"`
	ReviewsCount  int      `json:"reviews_count,omitempty"`
	ReviewsRating *float64 `json:"reviews_rating,omitempty"`
	Makers        []Maker  `json:"makers"`
	ThumbnailURL  string   `json:"thumbnail_url,omitempty"`
	LaunchedAt    string   `json:"created_at,omitempty"`
	FeaturedAt    string   `json:"featured_at,omitempty"`

	HomepageURL    string            `json:"homepage_url,omitempty"`
	HomepageOrigin Origin            `json:"homepage_origin,omitempty"`
	SourceURL      string            `json:"source_url,omitempty"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	SourceIDs      map[Source]string `json:"source_ids"`
	SourceURLs     map[Source]string `json:"source_urls"`
	Source         Source            `json:"source"`

	HomepageDiscovered bool `json:"homepage_discovered"`
	// Set once resolution ran, found or not, so a rerun does not repeat it.
	HomepageCheckedAt *time.Time `json:"homepage_checked_at,omitempty"`

	Extracted          bool   `json:"extracted"`
	Status             Status `json:"status"`
	FailureReason      string `json:"failure_reason,omitempty"`
	ExtractionAttempts int    `json:"extraction_attempts"`
	ExtractionError    string `json:"extraction_error,omitempty"`

	DiscoveredAt  *time.Time `json:"discovered_at,omitempty"`
	ExtractedAt   *time.Time `json:"extracted_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// Key is the storage key: the native id, else the lowercased name with
// spaces turned into dashes.
func (p *Product) Key() string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return id
	}
	return NameKey(p.Name)
}

func NameKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Migrate fills defaults for fields an older record may lack. It never
// fails and running it twice changes nothing.
func (p *Product) Migrate() {
	if p.Topics == nil {
		p.Topics = []string{}
	}
	if p.Makers == nil {
		p.Makers = []Maker{}
	}
	if p.SourceIDs == nil {
		p.SourceIDs = map[Source]string{}
	}
	if p.SourceURLs == nil {
		p.SourceURLs = map[Source]string{}
	}
	if p.Source == "" {
		if strings.HasPrefix(p.ID, "ph_") {
			p.Source = SourceProductHunt
		} else {
			p.Source = SourceSaaSHub
		}
	}
	if p.Source != SourceMerged {
		if _, ok := p.SourceIDs[p.Source]; !ok && p.ID != "" {
			p.SourceIDs[p.Source] = p.ID
		}
		if _, ok := p.SourceURLs[p.Source]; !ok && p.SourceURL != "" {
			p.SourceURLs[p.Source] = p.SourceURL
		}
	}
	if p.Status == "" {
		if p.Extracted {
			p.Status = StatusCompleted
		} else {
			p.Status = StatusPending
		}
	}
	if p.HomepageURL != "" {
		p.HomepageDiscovered = true
	}
	p.SchemaVersion = CurrentSchemaVersion
}

// HasHomepage reports whether the product can go to extraction.
func (p *Product) HasHomepage() bool {
	return strings.TrimSpace(p.HomepageURL) != ""
}

// NeedsHomepage reports whether resolution should still run for the product.
func (p *Product) NeedsHomepage() bool {
	return !p.HasHomepage() && p.HomepageCheckedAt == nil
}

// NeedsExtraction reports whether the product is pending with a homepage.
func (p *Product) NeedsExtraction() bool {
	return p.Status == StatusPending && !p.Extracted && p.HasHomepage()
}

func (p *Product) MarkCompleted(at time.Time) {
	p.Status = StatusCompleted
	p.Extracted = true
	p.ExtractedAt = &at
	p.CompletedAt = &at
	p.FailureReason = ""
	p.ExtractionError = ""
}

func (p *Product) MarkFailed(at time.Time, reason string) {
	p.Status = StatusFailed
	p.FailedAt = &at
	p.FailureReason = reason
	p.ExtractionError = reason
}

// RecordAttempt counts one extraction try. A rate-limited try leaves the
// product pending so it is retried on the next run.
func (p *Product) RecordAttempt(at time.Time, errMsg string) {
	p.ExtractionAttempts++
	p.LastAttemptAt = &at
	if errMsg != "" {
		p.ExtractionError = errMsg
		p.FailureReason = errMsg
	}
}

// Reset returns the product to pending, as the operator reset does.
func (p *Product) Reset() {
	p.Status = StatusPending
	p.Extracted = false
	p.FailureReason = ""
	p.ExtractionError = ""
	p.ExtractionAttempts = 0
	p.FailedAt = nil
	p.CompletedAt = nil
	p.ExtractedAt = nil
	p.LastAttemptAt = nil
}

// ResetAll also forgets a failed homepage lookup so it is retried.
func (p *Product) ResetAll() {
	p.Reset()
	if !p.HasHomepage() {
		p.HomepageCheckedAt = nil
	}
}

// Clone returns a deep copy so callers cannot alias store internals.
func (p *Product) Clone() *Product {
	c := *p
	c.Topics = append([]string(nil), p.Topics...)
	c.Makers = append([]Maker(nil), p.Makers...)
	c.SourceIDs = cloneMap(p.SourceIDs)
	c.SourceURLs = cloneMap(p.SourceURLs)
	if p.Votes != nil {
		v := *p.Votes
		c.Votes = &v
	}
	if p.ReviewsRating != nil {
		r := *p.ReviewsRating
		c.ReviewsRating = &r
	}
	if p.Raw != nil {
		c.Raw = append(json.RawMessage(nil), p.Raw...)
	}
	return &c
}

func cloneMap(m map[Source]string) map[Source]string {
	if m == nil {
		return nil
	}
	out := make(map[Source]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
