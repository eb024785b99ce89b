package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"car-advisor/utils"
)

// PageURL fills the {page} placeholder of a search URL template.
// Templates keep their percent-escapes, so fmt verbs are not used.
func PageURL(template string, page int) string {
	return strings.ReplaceAll(template, "{page}", strconv.Itoa(page))
}

// FetchPage renders url with retries, then checks the result against the
// block markers. A blocked session gets its cookies cleared and is reloaded
// after a cooldown, at most opts.BlockRetries times, before ErrBlocked.
func FetchPage(ctx context.Context, r Renderer, url, source string, markers BlockMarkers, opts Options) (*Page, error) {
	render := func() (*Page, error) {
		var page *Page
		err := opts.Retry.Do(ctx, source+" render", func() error {
			p, err := r.Render(ctx, url)
			if err != nil {
				return permanent(ctx, err)
			}
			page = p
			return nil
		})
		return page, err
	}

	page, err := render()
	if err != nil {
		return nil, err
	}

	for attempt := 0; markers.Detect(page); attempt++ {
		opts.Metrics.IncBlock(source)
		if attempt >= opts.BlockRetries {
			return nil, fmt.Errorf("%w: %s after %d cooldowns", ErrBlocked, url, attempt)
		}
		opts.Logger.Warn("[%s] Blocking detected on %s, cooling down (%d/%d)", source, url, attempt+1, opts.BlockRetries)
		if err := r.ClearCookies(ctx); err != nil {
			opts.Logger.Warn("[%s] %v", source, err)
		}
		if err := opts.Cooldown.Wait(ctx); err != nil {
			return nil, err
		}
		if page, err = render(); err != nil {
			return nil, err
		}
	}

	opts.Metrics.IncPage(source)
	return page, nil
}

// permanent marks render failures that another attempt cannot fix. A page
// timeout is retried; only the end of the whole run is final.
func permanent(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, ErrBrowserNotFound) {
		return fmt.Errorf("%w: %w", utils.ErrPermanent, err)
	}
	return err
}
