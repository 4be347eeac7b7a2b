package store_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/store"
	"github.com/stretchr/testify/require"
)

type errorRecord struct {
	action string
	cause  metadata.ErrorCause
	detail string
}

// recordingSink captures errors and artifacts reported by the store.
type recordingSink struct {
	metadata.NoopSink
	mu        sync.Mutex
	errors    []errorRecord
	artifacts []string
}

func (r *recordingSink) RecordError(_ time.Time, _ string, action string, cause metadata.ErrorCause, details string, _ []metadata.Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, errorRecord{action: action, cause: cause, detail: details})
}

func (r *recordingSink) RecordArtifact(_ metadata.ArtifactKind, path string, _ []metadata.Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, path)
}

var fixedNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T, path string, opts ...store.Option) (*store.Store, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	s, err := store.Open(path, sink, opts...)
	require.NoError(t, err)
	s.SetClock(func() time.Time { return fixedNow })
	return s, sink
}

func tempStorePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "data", "targets.jsonl")
}

func intPtr(v int) *int { return &v }

func saashubProduct(id, name, homepage string) *product.Product {
	return &product.Product{
		ID:             id,
		Name:           name,
		HomepageURL:    homepage,
		HomepageOrigin: product.OriginResolved,
		SourceURL:      "https://www.saashub.com/" + id,
		Source:         product.SourceSaaSHub,
		Tagline:        "scraped tagline",
		Topics:         []string{"notes", "wiki"},
	}
}

func productHuntProduct(id, name, homepage string) *product.Product {
	return &product.Product{
		ID:             id,
		Name:           name,
		HomepageURL:    homepage,
		HomepageOrigin: product.OriginAPI,
		SourceURL:      "https://www.producthunt.com/posts/" + name,
		Source:         product.SourceProductHunt,
		Tagline:        "api tagline",
		Topics:         []string{"wiki", "productivity"},
		Votes:          intPtr(321),
	}
}
