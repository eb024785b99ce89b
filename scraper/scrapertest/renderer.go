// Package scrapertest provides an in-memory Renderer for adapter tests.
package scrapertest

import (
	"context"
	"fmt"
	"sync"

	"car-advisor/scraper"
)

// Renderer serves canned pages keyed by URL. Each URL may hold a queue of
// pages; the last one repeats once the queue drains.
type Renderer struct {
	mu      sync.Mutex
	pages   map[string][]*scraper.Page
	errs    map[string]error
	Visits  []string
	Cleared int
	Closed  bool
}

// New creates an empty Renderer.
func New() *Renderer {
	return &Renderer{pages: make(map[string][]*scraper.Page), errs: make(map[string]error)}
}

// Serve queues pages for url. Pages without a URL inherit it.
func (r *Renderer) Serve(url string, pages ...*scraper.Page) *Renderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pages {
		if p.URL == "" {
			p.URL = url
		}
	}
	r.pages[url] = append(r.pages[url], pages...)
	return r
}

// Fail makes every render of url return err.
func (r *Renderer) Fail(url string, err error) *Renderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[url] = err
	return r
}

// Factory returns a RendererFactory handing out r.
func (r *Renderer) Factory() scraper.RendererFactory {
	return func(context.Context) (scraper.Renderer, error) { return r, nil }
}

func (r *Renderer) Render(ctx context.Context, url string) (*scraper.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Visits = append(r.Visits, url)
	if err := r.errs[url]; err != nil {
		return nil, err
	}
	queue := r.pages[url]
	if len(queue) == 0 {
		// Unknown pages render as an empty result list.
		return &scraper.Page{URL: url, HTML: "<html><body></body></html>"}, nil
	}
	page := queue[0]
	if len(queue) > 1 {
		r.pages[url] = queue[1:]
	}
	cp := *page
	return &cp, ctx.Err()
}

func (r *Renderer) ClearCookies(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cleared++
	return nil
}

func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Closed {
		return fmt.Errorf("renderer closed twice")
	}
	r.Closed = true
	return nil
}
