package gumtree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"car-advisor/scraper"
	"car-advisor/scraper/scrapertest"
)

func card(href, title, year, mileage, fuel, price, loc string) string {
	return fmt.Sprintf(`<article data-q="search-result">
  <a data-q="search-result-anchor" href="%s">
    <div data-q="tile-title">%s</div>
  </a>
  <span data-q="motors-year">%s</span>
  <span data-q="motors-mileage">%s</span>
  <span data-q="motors-fuel-type">%s</span>
  <div data-testid="price">%s</div>
  <div data-q="tile-location">%s</div>
</article>`, href, title, year, mileage, fuel, price, loc)
}

func resultPage(cards ...string) *scraper.Page {
	return &scraper.Page{Title: "Used cars for sale", HTML: "<html><body>" + strings.Join(cards, "\n") + "</body></html>"}
}

func pageURL(t *testing.T, s *Scraper, n int) string {
	t.Helper()
	return scraper.PageURL(s.sel.SearchURL, n)
}

func newTestScraper(t *testing.T, r *scrapertest.Renderer) *Scraper {
	t.Helper()
	s, err := New(scraper.Options{
		NewRenderer:  r.Factory(),
		Cooldown:     scraper.NewPacer(0, 0),
		BlockRetries: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestScrapeWalksPagesUntilEmpty(t *testing.T) {
	r := scrapertest.New()
	s := newTestScraper(t, r)

	r.Serve(pageURL(t, s, 1), resultPage(
		card("/p/cars/2015-bmw-3-series/1234567", "2015 BMW 3 Series 320d Automatic", "2015", "60,000 miles", "Diesel", "£9,995", "Leeds, West Yorkshire"),
		card("/p/cars/ford-focus/no-id-here", "Ford Focus", "2012", "80,000 miles", "Petrol", "£3,000", "York"),
	))
	r.Serve(pageURL(t, s, 2), resultPage(
		card("/p/cars/vauxhall-corsa/7654321", "Vauxhall Corsa 1.2", "2018", "30,000 miles", "Petrol", "£6,500", "Bristol"),
	))

	got, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(got))
	}
	if !r.Closed {
		t.Error("renderer was not closed")
	}
	if len(r.Visits) != 3 {
		t.Errorf("visits: got %d, want 3 (two pages plus the empty one)", len(r.Visits))
	}

	first := got[0]
	if first.ListingID != "1234567" {
		t.Errorf("listing id: got %q", first.ListingID)
	}
	if first.Gearbox != "automatic" {
		t.Errorf("gearbox: got %q, want automatic", first.Gearbox)
	}
	if first.Location["raw"] != "Leeds, West Yorkshire" {
		t.Errorf("location: got %v", first.Location)
	}
	if first.Source != "gumtree" || first.RawPrice != "£9,995" {
		t.Errorf("unexpected record: %+v", first)
	}
	if got[1].Gearbox != "manual" {
		t.Errorf("second gearbox: got %q, want manual", got[1].Gearbox)
	}
}

func TestScrapeStopsAtLandingRedirect(t *testing.T) {
	r := scrapertest.New()
	s := newTestScraper(t, r)

	r.Serve(pageURL(t, s, 1), resultPage(
		card("/p/cars/audi-a3/111", "Audi A3", "2016", "50,000 miles", "Petrol", "£8,000", "Leeds"),
	))
	landing := resultPage(card("/p/cars/audi-a4/222", "Audi A4", "2017", "40,000 miles", "Diesel", "£11,000", "Hull"))
	landing.URL = "https://www.gumtree.com/cars-vans-motorbikes/cars"
	r.Serve(pageURL(t, s, 2), landing)

	got, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 1 || got[0].ListingID != "111" {
		t.Errorf("expected only the page 1 listing, got %+v", got)
	}
}

func TestScrapeStopsOnRepeatedPage(t *testing.T) {
	r := scrapertest.New()
	s := newTestScraper(t, r)

	page := resultPage(card("/p/cars/audi-a3/111", "Audi A3", "2016", "50,000 miles", "Petrol", "£8,000", "Leeds"))
	r.Serve(pageURL(t, s, 1), page)
	r.Serve(pageURL(t, s, 2), resultPage(card("/p/cars/audi-a3/111", "Audi A3", "2016", "50,000 miles", "Petrol", "£8,000", "Leeds")))

	got, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 listing, got %d", len(got))
	}
	if len(r.Visits) != 2 {
		t.Errorf("visits: got %d, want 2", len(r.Visits))
	}
}

func TestScrapeBlocked(t *testing.T) {
	r := scrapertest.New()
	s := newTestScraper(t, r)
	r.Serve(pageURL(t, s, 1), &scraper.Page{Title: "Sorry, something went wrong"})

	_, err := s.Scrape(context.Background())
	if !errors.Is(err, scraper.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if !r.Closed {
		t.Error("renderer was not closed after failure")
	}
}

func TestParseCardRequiresFields(t *testing.T) {
	s := newTestScraper(t, scrapertest.New())
	html := "<html><body>" +
		card("/p/cars/x/1", "Kia Ceed", "", "10,000 miles", "Petrol", "£1", "Leeds") +
		card("/p/cars/x/2", "Kia Ceed", "2019", "10,000 miles", "Petrol", "", "Leeds") +
		card("/p/cars/x/3", "Kia Ceed", "2019", "10,000 miles", "Petrol", "£1", "Leeds") +
		"</body></html>"

	got, err := s.extract(html)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 1 || got[0].ListingID != "3" {
		t.Errorf("expected only listing 3, got %+v", got)
	}
}

func TestListingID(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/p/cars/bmw/1234567", "1234567"},
		{"/p/cars/bmw/1234567/", "1234567"},
		{"/p/cars/bmw/1234567?utm=feed", "1234567"},
		{"/p/cars/bmw/abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := listingID(tt.href); got != tt.want {
			t.Errorf("listingID(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
