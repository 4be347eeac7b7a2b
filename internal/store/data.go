package store

import "github.com/rohmanhakim/saas-intel/internal/product"

// Outcome of Add. DuplicateRejected is a counter, never an error.
type Outcome int

const (
	Inserted Outcome = iota
	Merged
	DuplicateRejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	case DuplicateRejected:
		return "duplicate"
	default:
		return "unknown"
	}
}

type AddResult struct {
	Outcome Outcome
	// Key of the product that now holds the data.
	Key string
	// CrossSource is set when two sources were unified, which is what the
	// merge counter counts.
	CrossSource bool
}

type HomepageResult struct {
	// Key of the product that owns the URL afterwards. It differs from the
	// requested key when the product was merged into an existing one.
	Key         string
	MergedInto  bool
	CrossSource bool
}

type Stats struct {
	Total      int                    `json:"total"`
	Pending    int                    `json:"pending"`
	Completed  int                    `json:"completed"`
	Failed     int                    `json:"failed"`
	NoHomepage int                    `json:"no_homepage"`
	PerSource  map[product.Source]int `json:"per_source"`
}

type Option func(*Store)

// WithIndexCache offers a persisted URL index together with the journal
// fingerprint it was taken at. It is adopted only if the journal still has
// that fingerprint; otherwise the index is rebuilt from the products.
func WithIndexCache(snapshot map[string]string, fingerprint string) Option {
	return func(s *Store) {
		s.indexCache = snapshot
		s.indexFingerprint = fingerprint
	}
}
