// Package gumtree scrapes used-car search results from gumtree.com.
package gumtree

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"car-advisor/models"
	"car-advisor/scraper"
	"car-advisor/utils"
)

const (
	name     = "gumtree"
	currency = "GBP"
)

//go:embed selectors.yaml
var defaultSelectors []byte

var (
	listingIDRegexp = regexp.MustCompile(`/(\d+)$`)

	errMissingAnchor = errors.New("title or anchor missing")
	errMissingID     = errors.New("no listing id in link")
)

// Selectors is the site-specific DOM configuration.
type Selectors struct {
	SearchURL     string               `yaml:"search_url"`
	BaseURL       string               `yaml:"base_url"`
	LandingMarker string               `yaml:"landing_marker"`
	Block         scraper.BlockMarkers `yaml:"block"`
	Card          string               `yaml:"card"`
	Anchor        string               `yaml:"anchor"`
	Title         string               `yaml:"title"`
	Year          string               `yaml:"year"`
	Mileage       string               `yaml:"mileage"`
	Fuel          string               `yaml:"fuel"`
	Price         string               `yaml:"price"`
	Location      string               `yaml:"location"`
}

// Scraper walks Gumtree result pages until they run out.
type Scraper struct {
	sel  Selectors
	opts scraper.Options
}

// New loads the selector set and returns a ready-to-use Scraper.
func New(opts scraper.Options) (*Scraper, error) {
	var sel Selectors
	if err := scraper.LoadSelectors(name, defaultSelectors, opts.SelectorsDir, &sel); err != nil {
		return nil, err
	}
	if sel.SearchURL == "" || sel.Card == "" || sel.Anchor == "" {
		return nil, fmt.Errorf("gumtree selectors: search_url, card and anchor are required")
	}
	return &Scraper{sel: sel, opts: opts.WithDefaults()}, nil
}

func (s *Scraper) Name() string { return name }

func (s *Scraper) Profile() models.SourceProfile {
	return models.SourceProfile{
		Name:     name,
		Currency: currency,
		BaseURL:  s.sel.BaseURL,
		Title:    models.SplitYearPrefixed,
	}
}

// Scrape requests pages 1, 2, ... and stops on an empty page, on the
// non-paginated landing redirect, or at the page cap.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.RawListing, error) {
	log := s.opts.Logger
	log.Info("[gumtree] Starting scrape")

	r, err := s.opts.NewRenderer(ctx)
	if err != nil {
		return nil, fmt.Errorf("gumtree: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn("[gumtree] Closing browser: %v", err)
		}
	}()

	seen := utils.NewIDSet()
	listings := make([]*models.RawListing, 0)

	for page := 1; s.opts.MaxPages == 0 || page <= s.opts.MaxPages; page++ {
		url := scraper.PageURL(s.sel.SearchURL, page)
		log.Info("[gumtree] Scraping page %d: %s", page, url)

		doc, err := scraper.FetchPage(ctx, r, url, name, s.sel.Block, s.opts)
		if err != nil {
			return nil, fmt.Errorf("gumtree page %d: %w", page, err)
		}

		if s.sel.LandingMarker != "" && strings.Contains(doc.URL, s.sel.LandingMarker) {
			log.Warn("[gumtree] Reached non-paginated landing page, ending scrape")
			break
		}

		records, err := s.extract(doc.HTML)
		if err != nil {
			return nil, fmt.Errorf("gumtree page %d: %w", page, err)
		}
		if len(records) == 0 {
			log.Warn("[gumtree] Page %d returned 0 listings, stopping", page)
			break
		}

		added := 0
		for _, rec := range records {
			if !seen.Add(rec.ListingID) {
				log.Debug("[gumtree] Duplicate listing skipped: %s", rec.ListingID)
				s.opts.Metrics.IncSkipped(name, "duplicate")
				continue
			}
			listings = append(listings, rec)
			added++
		}
		s.opts.Metrics.AddScraped(name, added)
		log.Info("[gumtree] Page %d done, %d listings so far", page, len(listings))

		if added == 0 {
			log.Warn("[gumtree] Page %d only repeated earlier listings, stopping", page)
			break
		}

		if err := s.opts.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	log.Info("[gumtree] Scrape complete, total raw listings: %d", len(listings))
	return listings, nil
}

// extract pulls every well-formed card out of a rendered result page.
// Malformed cards are logged and skipped.
func (s *Scraper) extract(html string) ([]*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var records []*models.RawListing
	doc.Find(s.sel.Card).Each(func(i int, card *goquery.Selection) {
		rec, err := s.parseCard(card)
		if err != nil {
			reason := "parse_error"
			if errors.Is(err, errMissingID) {
				reason = "missing_id"
			}
			s.opts.Metrics.IncSkipped(name, reason)
			s.opts.Logger.Warn("[gumtree] Skipping card #%d: %v", i+1, err)
			return
		}
		records = append(records, rec)
	})
	return records, nil
}

func (s *Scraper) parseCard(card *goquery.Selection) (*models.RawListing, error) {
	href, _ := card.Find(s.sel.Anchor).First().Attr("href")
	href = strings.TrimSpace(href)
	title := text(card, s.sel.Title)
	if href == "" || title == "" {
		return nil, errMissingAnchor
	}

	id := listingID(href)
	if id == "" {
		return nil, fmt.Errorf("%w: %s", errMissingID, href)
	}

	rec := &models.RawListing{
		ListingID: id,
		Title:     title,
		Year:      text(card, s.sel.Year),
		Mileage:   text(card, s.sel.Mileage),
		FuelType:  text(card, s.sel.Fuel),
		RawPrice:  text(card, s.sel.Price),
		Gearbox:   gearboxFromTitle(title),
		URL:       href,
		Source:    name,
	}
	loc := text(card, s.sel.Location)

	required := []struct{ field, value string }{
		{"year", rec.Year}, {"mileage", rec.Mileage}, {"fuel", rec.FuelType}, {"price", rec.RawPrice}, {"location", loc},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("listing %s: missing %s", id, r.field)
		}
	}
	rec.Location = map[string]string{"raw": loc}
	return rec, nil
}

// listingID takes the trailing digits of an advert link.
func listingID(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	m := listingIDRegexp.FindStringSubmatch(strings.TrimRight(href, "/"))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Gumtree cards carry no transmission field; the title is the only hint.
func gearboxFromTitle(title string) string {
	if strings.Contains(strings.ToLower(title), "automatic") {
		return "automatic"
	}
	return "manual"
}

func text(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(card.Find(selector).First().Text())
}
