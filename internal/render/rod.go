package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
)

const defaultRodTimeout = 30 * time.Second

// Resource types never needed to read a homepage.
var blockedResources = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage: true,
	proto.NetworkResourceTypeFont:  true,
	proto.NetworkResourceTypeMedia: true,
}

// RodRenderer drives headless Chrome with stealth patches applied. The
// browser is launched on first use and shared by every fetch.
type RodRenderer struct {
	settings     Settings
	metadataSink metadata.MetadataSink

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

func NewRodRenderer(settings Settings, metadataSink metadata.MetadataSink) *RodRenderer {
	return &RodRenderer{settings: settings, metadataSink: metadataSink}
}

func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("render: renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	wsURL := r.settings.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch: %w", err)
		}
		wsURL = u
		r.lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	r.browser = b
	return b, nil
}

func (r *RodRenderer) Fetch(ctx context.Context, url string, opts Options) Page {
	started := time.Now()
	page := r.fetch(ctx, url, opts)
	r.metadataSink.RecordFetch(page.URL, page.Status, time.Since(started), "text/html", 0)
	return page
}

func (r *RodRenderer) fetch(ctx context.Context, url string, opts Options) Page {
	b, err := r.ensureBrowser()
	if err != nil {
		return failed(url, 0, "%v", err)
	}

	tab, err := stealth.Page(b)
	if err != nil {
		return failed(url, 0, "render: create tab: %v", err)
	}
	defer tab.Close()

	router := tab.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blockedResources[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	defer func() { _ = router.Stop() }()

	if opts.BypassCache {
		_ = proto.NetworkSetCacheDisabled{CacheDisabled: true}.Call(tab)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.settings.Timeout
	}
	if timeout <= 0 {
		timeout = defaultRodTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := tab.Context(navCtx)

	event := proto.PageLifecycleEventNameLoad
	if opts.WaitDOMReady {
		event = proto.PageLifecycleEventNameDOMContentLoaded
	}
	wait := p.WaitNavigation(event)
	if err := p.Navigate(url); err != nil {
		return failed(url, 0, "render: navigate %s: %v", url, err)
	}
	wait()

	html, err := p.HTML()
	if err != nil {
		return failed(url, 0, "render: read DOM: %v", err)
	}

	result := Page{URL: url, Success: true, Status: 200, HTML: html}
	if info, err := p.Info(); err == nil && info.URL != "" {
		result.URL = info.URL
	}
	links, err := p.Eval(`() => Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`)
	if err == nil {
		seen := map[string]struct{}{}
		for _, v := range links.Value.Arr() {
			link := strings.TrimSpace(v.Str())
			if link == "" {
				continue
			}
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			result.Links = append(result.Links, link)
		}
	}
	return result
}

func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Kill()
		r.lnch = nil
	}
	return err
}
