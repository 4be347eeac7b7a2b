// Package render fetches product pages for homepage resolution and
// extraction. Two backends share one contract: a static HTTP collector and
// a headless browser for pages that only exist after JavaScript runs.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
)

const (
	KindHTTP = "http"
	KindRod  = "rod"
)

type Options struct {
	// Return as soon as the DOM is parsed instead of waiting for every
	// subresource.
	WaitDOMReady bool
	// Skip any on-disk or browser cache for this fetch.
	BypassCache bool
	Timeout     time.Duration
}

// Page is the outcome of one fetch. A failed fetch has Success false and
// Error set; it is never returned as a Go error so callers can record it
// against the entity.
type Page struct {
	URL     string
	Success bool
	Status  int
	HTML    string
	Links   []string
	Error   string
}

func failed(url string, status int, format string, args ...any) Page {
	return Page{URL: url, Status: status, Error: fmt.Sprintf(format, args...)}
}

type Renderer interface {
	Fetch(ctx context.Context, url string, opts Options) Page
	Close() error
}

type Settings struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
	// CacheDir enables the on-disk response cache of the HTTP backend.
	CacheDir string
	// RemoteURL connects the browser backend to a running Chrome.
	RemoteURL string
}

// New builds the renderer named by kind.
func New(kind string, settings Settings, metadataSink metadata.MetadataSink) (Renderer, error) {
	switch kind {
	case KindHTTP, "":
		return NewCollyRenderer(settings, metadataSink), nil
	case KindRod:
		return NewRodRenderer(settings, metadataSink), nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", kind)
	}
}
