package resolver_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/render"
)

// fakeRenderer serves canned pages and tracks how many fetches overlap.
type fakeRenderer struct {
	mu       sync.Mutex
	pages    map[string]render.Page
	delay    time.Duration
	inFlight int
	maxSeen  int
	fetched  []string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{pages: map[string]render.Page{}}
}

func (f *fakeRenderer) serve(url string, links ...string) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		b.WriteString(`<a href="` + l + `">link</a>`)
	}
	b.WriteString("</body></html>")
	f.serveHTML(url, b.String(), links...)
}

func (f *fakeRenderer) serveHTML(url, html string, links ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = render.Page{URL: url, Success: true, Status: 200, HTML: html, Links: links}
}

func (f *fakeRenderer) Fetch(ctx context.Context, url string, _ render.Options) render.Page {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.fetched = append(f.fetched, url)
	page, ok := f.pages[url]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if !ok {
		return render.Page{URL: url, Status: 404, Error: "not found"}
	}
	return page
}

func (f *fakeRenderer) Close() error { return nil }

func (f *fakeRenderer) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
