package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
}

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// BrowserOptions configures a chromedp session.
type BrowserOptions struct {
	Binary      string
	DevToolsURL string
	Headless    bool
	PageTimeout time.Duration
	// Settle is how long to let client-side rendering finish after navigation.
	Settle time.Duration
}

// Browser is a chromedp backed Renderer.
type Browser struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	settle  time.Duration
}

// BrowserFactory returns a RendererFactory launching a Browser per call.
func BrowserFactory(opts BrowserOptions) RendererFactory {
	return func(ctx context.Context) (Renderer, error) {
		return NewBrowser(ctx, opts)
	}
}

// NewBrowser starts a browser. It fails with ErrBrowserNotFound before
// launching anything when no binary can be located.
func NewBrowser(ctx context.Context, opts BrowserOptions) (*Browser, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	if opts.DevToolsURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, opts.DevToolsURL)
	} else {
		bin, err := ResolveBrowser(opts.Binary)
		if err != nil {
			return nil, err
		}
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(bin),
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1920, 1080),
			chromedp.UserAgent(userAgents[rand.Intn(len(userAgents))]),
		)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, allocOpts...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	// Run with no actions launches the process so start-up errors surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	timeout := opts.PageTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Browser{ctx: browserCtx, cancel: cancel, timeout: timeout, settle: opts.Settle}, nil
}

// Render opens url in a new tab and snapshots the rendered document.
func (b *Browser) Render(ctx context.Context, url string) (*Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	out := &Page{}
	err := chromedp.Run(tabCtx,
		// Installed before navigation so the site's own scripts never see the flag.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
		chromedp.Sleep(b.settle),
		chromedp.Location(&out.URL),
		chromedp.Title(&out.Title),
		chromedp.OuterHTML("html", &out.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	return out, nil
}

// ClearCookies drops every cookie held by the browser.
func (b *Browser) ClearCookies(ctx context.Context) error {
	if err := chromedp.Run(b.ctx, network.ClearBrowserCookies()); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return ctx.Err()
}

// Close shuts the browser down and releases the process.
func (b *Browser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	return err
}

// ResolveBrowser locates a Chrome/Chromium binary. An explicit override must
// exist; otherwise well-known names on PATH and install paths are tried.
func ResolveBrowser(override string) (string, error) {
	if override != "" {
		if path, err := exec.LookPath(override); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrBrowserNotFound, override)
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrBrowserNotFound
}
