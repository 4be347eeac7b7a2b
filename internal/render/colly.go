package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
)

/*
CollyRenderer fetches static HTML.

  - One collector per fetch, so callbacks never leak between URLs
  - robots.txt is honored only when configured
  - The response cache is skipped when the caller asks for it
  - Links are returned absolute, in document order, without duplicates
*/
type CollyRenderer struct {
	settings     Settings
	metadataSink metadata.MetadataSink
}

func NewCollyRenderer(settings Settings, metadataSink metadata.MetadataSink) *CollyRenderer {
	return &CollyRenderer{settings: settings, metadataSink: metadataSink}
}

func (r *CollyRenderer) Fetch(ctx context.Context, url string, opts Options) Page {
	if err := ctx.Err(); err != nil {
		return failed(url, 0, "%v", err)
	}

	options := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	}
	if r.settings.UserAgent != "" {
		options = append(options, colly.UserAgent(r.settings.UserAgent))
	}
	if r.settings.CacheDir != "" && !opts.BypassCache {
		options = append(options, colly.CacheDir(r.settings.CacheDir))
	}
	c := colly.NewCollector(options...)
	c.IgnoreRobotsTxt = !r.settings.RespectRobots
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.settings.Timeout
	}
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	var (
		mu      sync.Mutex
		page    = Page{URL: url}
		seen    = map[string]struct{}{}
		started = time.Now()
	)
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(strings.TrimSpace(e.Attr("href")))
		if link == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		page.Links = append(page.Links, link)
	})
	c.OnResponse(func(resp *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		page.URL = resp.Request.URL.String()
		page.Status = resp.StatusCode
		page.HTML = string(resp.Body)
		page.Success = true
	})
	c.OnError(func(resp *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		page.Success = false
		page.Error = err.Error()
		if resp != nil {
			page.Status = resp.StatusCode
		}
	})

	err := c.Visit(url)
	c.Wait()
	var visited *colly.AlreadyVisitedError
	if err != nil && !errors.As(err, &visited) {
		page.Success = false
		page.Error = err.Error()
	}

	r.metadataSink.RecordFetch(page.URL, page.Status, time.Since(started), "text/html", 0)
	return page
}

func (r *CollyRenderer) Close() error {
	return nil
}
