// Package autoscout scrapes used-car search results from autoscout24.com.
package autoscout

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"car-advisor/models"
	"car-advisor/scraper"
	"car-advisor/utils"
)

const (
	name     = "autoscout24"
	currency = "EUR"
)

//go:embed selectors.yaml
var defaultSelectors []byte

var errMissingID = errors.New("no listing id in link")

// Selectors is the site-specific DOM configuration.
type Selectors struct {
	SearchURL    string               `yaml:"search_url"`
	BaseURL      string               `yaml:"base_url"`
	Country      string               `yaml:"country"`
	Block        scraper.BlockMarkers `yaml:"block"`
	Card         string               `yaml:"card"`
	Anchor       string               `yaml:"anchor"`
	Title        string               `yaml:"title"`
	Price        string               `yaml:"price"`
	Mileage      string               `yaml:"mileage"`
	Gearbox      string               `yaml:"gearbox"`
	Registration string               `yaml:"registration"`
	Fuel         string               `yaml:"fuel"`
	Power        string               `yaml:"power"`
	Address      string               `yaml:"address"`
}

type Scraper struct {
	sel  Selectors
	opts scraper.Options
}

func New(opts scraper.Options) (*Scraper, error) {
	var sel Selectors
	if err := scraper.LoadSelectors(name, defaultSelectors, opts.SelectorsDir, &sel); err != nil {
		return nil, err
	}
	if sel.SearchURL == "" || sel.Card == "" || sel.Anchor == "" {
		return nil, fmt.Errorf("autoscout24 selectors: search_url, card and anchor are required")
	}
	return &Scraper{sel: sel, opts: opts.WithDefaults()}, nil
}

func (s *Scraper) Name() string { return name }

func (s *Scraper) Profile() models.SourceProfile {
	return models.SourceProfile{
		Name:     name,
		Currency: currency,
		BaseURL:  s.sel.BaseURL,
		Title:    models.SplitBrandModel,
	}
}

// Scrape walks result pages until one comes back without cards.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.RawListing, error) {
	log := s.opts.Logger
	log.Info("[autoscout24] Starting scrape")

	r, err := s.opts.NewRenderer(ctx)
	if err != nil {
		return nil, fmt.Errorf("autoscout24: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn("[autoscout24] Closing browser: %v", err)
		}
	}()

	seen := utils.NewIDSet()
	var listings []*models.RawListing

	for page := 1; s.opts.MaxPages == 0 || page <= s.opts.MaxPages; page++ {
		url := scraper.PageURL(s.sel.SearchURL, page)
		log.Info("[autoscout24] Scraping page %d", page)

		doc, err := scraper.FetchPage(ctx, r, url, name, s.sel.Block, s.opts)
		if err != nil {
			return nil, fmt.Errorf("autoscout24 page %d: %w", page, err)
		}

		records, cards, err := s.extract(doc.HTML)
		if err != nil {
			return nil, fmt.Errorf("autoscout24 page %d: %w", page, err)
		}
		log.Info("[autoscout24] Found %d cards on page %d", cards, page)
		if cards == 0 {
			break
		}

		added := 0
		for _, rec := range records {
			if !seen.Add(rec.ListingID) {
				s.opts.Metrics.IncSkipped(name, "duplicate")
				continue
			}
			listings = append(listings, rec)
			added++
		}
		s.opts.Metrics.AddScraped(name, added)

		// A page that only repeats earlier cards means pagination wrapped around.
		if added == 0 {
			log.Warn("[autoscout24] No new listings on page %d, stopping", page)
			break
		}

		if err := s.opts.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	log.Info("[autoscout24] Scrape complete, total raw listings: %d", len(listings))
	return listings, nil
}

// extract returns the parsed listings and the number of cards seen, which
// may exceed len(records) when cards fail to parse.
func (s *Scraper) extract(html string) ([]*models.RawListing, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("parse html: %w", err)
	}

	cards := doc.Find(s.sel.Card)
	var records []*models.RawListing
	cards.Each(func(i int, card *goquery.Selection) {
		rec, err := s.parseCard(card)
		if err != nil {
			reason := "parse_error"
			if errors.Is(err, errMissingID) {
				reason = "missing_id"
			}
			s.opts.Metrics.IncSkipped(name, reason)
			s.opts.Logger.Warn("[autoscout24] Card #%d - Error parsing card: %v", i+1, err)
			return
		}
		records = append(records, rec)
	})
	return records, cards.Length(), nil
}

func (s *Scraper) parseCard(card *goquery.Selection) (*models.RawListing, error) {
	href, _ := card.Find(s.sel.Anchor).First().Attr("href")
	href = strings.TrimSpace(href)
	id := listingID(href)
	if id == "" {
		return nil, fmt.Errorf("%w: %q", errMissingID, href)
	}

	rec := &models.RawListing{
		ListingID: id,
		Title:     text(card, s.sel.Title),
		RawPrice:  text(card, s.sel.Price),
		Mileage:   text(card, s.sel.Mileage),
		Gearbox:   text(card, s.sel.Gearbox),
		Year:      text(card, s.sel.Registration),
		FuelType:  text(card, s.sel.Fuel),
		Power:     text(card, s.sel.Power),
		URL:       href,
		Source:    name,
	}

	address := strings.Fields(text(card, s.sel.Address))
	required := []struct{ field, value string }{
		{"title", rec.Title}, {"price", rec.RawPrice}, {"mileage", rec.Mileage},
		{"gearbox", rec.Gearbox}, {"fuel", rec.FuelType},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("listing %s: missing %s", id, r.field)
		}
	}
	if len(address) == 0 {
		return nil, fmt.Errorf("listing %s: missing seller address", id)
	}

	rec.Location = map[string]string{
		"country": s.sel.Country,
		"city":    address[len(address)-1],
	}
	return rec, nil
}

// listingID is the last dash-separated token of the final path segment.
// A segment without a dash has no id.
func listingID(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	seg := href[strings.LastIndex(href, "/")+1:]
	i := strings.LastIndex(seg, "-")
	if i < 0 {
		return ""
	}
	return seg[i+1:]
}

func text(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(card.Find(selector).First().Text())
}
