// Package scraper defines the listing source contract and the browser,
// pacing and selector plumbing shared by the site adapters.
package scraper

import (
	"context"
	"errors"
	"strings"
	"time"

	"car-advisor/metrics"
	"car-advisor/models"
	"car-advisor/utils"
)

var (
	// ErrBrowserNotFound is a configuration error: no rendering client could be located.
	ErrBrowserNotFound = errors.New("scraper: browser binary not found")
	// ErrBlocked is returned once a site keeps serving its anti-bot page after all cooldowns.
	ErrBlocked = errors.New("scraper: blocked by site")
)

// Source is one external listing site.
type Source interface {
	Name() string
	Profile() models.SourceProfile
	// Scrape returns every listing currently visible on the site.
	Scrape(ctx context.Context) ([]*models.RawListing, error)
}

// Page is a rendered document snapshot.
type Page struct {
	URL   string // final URL after redirects
	Title string
	HTML  string
}

// Renderer drives one rendering client session.
type Renderer interface {
	Render(ctx context.Context, url string) (*Page, error)
	ClearCookies(ctx context.Context) error
	Close() error
}

// RendererFactory starts a fresh Renderer for one adapter invocation.
type RendererFactory func(ctx context.Context) (Renderer, error)

// Options carries the collaborators every adapter needs.
type Options struct {
	NewRenderer RendererFactory
	Pacer       *Pacer
	// Cooldown paces the wait after a block page is detected.
	Cooldown     *Pacer
	Retry        *utils.RetryConfig
	Logger       *utils.Logger
	Metrics      *metrics.Metrics
	MaxPages     int // 0 means no cap
	BlockRetries int
	SelectorsDir string
}

// WithDefaults fills unset collaborators with inert values.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = utils.NewLogger()
	}
	if o.Pacer == nil {
		o.Pacer = NewPacer(0, 0)
	}
	if o.Cooldown == nil {
		o.Cooldown = NewPacer(10*time.Second, 15*time.Second)
	}
	if o.Retry == nil {
		o.Retry = &utils.RetryConfig{MaxAttempts: 1, Logger: o.Logger}
	}
	return o
}

// BlockMarkers describes how a site signals that the session was flagged.
type BlockMarkers struct {
	Title []string `yaml:"title"`
	Body  []string `yaml:"body"`
}

// Detect reports whether page looks like a block page.
func (b BlockMarkers) Detect(page *Page) bool {
	title := strings.ToLower(page.Title)
	for _, m := range b.Title {
		if m != "" && strings.Contains(title, strings.ToLower(m)) {
			return true
		}
	}
	if len(b.Body) == 0 {
		return false
	}
	body := strings.ToLower(page.HTML)
	for _, m := range b.Body {
		if m != "" && strings.Contains(body, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
