package autoscout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"car-advisor/scraper"
	"car-advisor/scraper/scrapertest"
)

type fixture struct {
	href, title, price, mileage, gearbox, reg, fuel, power, address string
}

func (f fixture) html() string {
	power := ""
	if f.power != "" {
		power = fmt.Sprintf(`<span data-testid="VehicleDetails-speedometer">%s</span>`, f.power)
	}
	return fmt.Sprintf(`<article data-testid="list-item">
  <a href="%s"><h2>%s</h2></a>
  <p class="PriceAndSeals_current_price__ykUpx">%s</p>
  <span data-testid="VehicleDetails-mileage_road">%s</span>
  <span data-testid="VehicleDetails-transmission">%s</span>
  <span data-testid="VehicleDetails-calendar">%s</span>
  <span data-testid="VehicleDetails-gas_pump">%s</span>
  %s
  <span data-testid="sellerinfo-address">%s</span>
</article>`, f.href, f.title, f.price, f.mileage, f.gearbox, f.reg, f.fuel, power, f.address)
}

var golf = fixture{
	href:    "https://www.autoscout24.com/offers/volkswagen-golf-1-6-tdi-diesel-grey-3f2a9c",
	title:   "Volkswagen Golf 1.6 TDI",
	price:   "€ 12,490",
	mileage: "85,000 km",
	gearbox: "Manual",
	reg:     "03/2017",
	fuel:    "Diesel",
	power:   "85 kW (116 hp)",
	address: "DE-10115 Berlin",
}

func resultPage(cards ...fixture) *scraper.Page {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cards {
		b.WriteString(c.html())
	}
	b.WriteString("</body></html>")
	return &scraper.Page{Title: "Used cars", HTML: b.String()}
}

func newTestScraper(t *testing.T, r *scrapertest.Renderer, opts scraper.Options) *Scraper {
	t.Helper()
	opts.NewRenderer = r.Factory()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestScrape(t *testing.T) {
	r := scrapertest.New()
	s := newTestScraper(t, r, scraper.Options{})

	noPower := golf
	noPower.href = "https://www.autoscout24.com/offers/bmw-320-d-77aa01"
	noPower.title = "BMW 320"
	noPower.power = ""

	broken := golf
	broken.href = "https://www.autoscout24.com/offers/audi-a4-5511"
	broken.price = ""

	r.Serve(scraper.PageURL(s.sel.SearchURL, 1), resultPage(golf, noPower, broken))
	r.Serve(scraper.PageURL(s.sel.SearchURL, 2), resultPage())

	got, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(got))
	}

	g := got[0]
	if g.ListingID != "3f2a9c" {
		t.Errorf("listing id: got %q", g.ListingID)
	}
	if g.Year != "03/2017" || g.Power != "85 kW (116 hp)" {
		t.Errorf("raw fields: year %q power %q", g.Year, g.Power)
	}
	if g.Location["city"] != "Berlin" || g.Location["country"] != "germany" {
		t.Errorf("location: got %v", g.Location)
	}
	if got[1].Power != "" {
		t.Errorf("missing power should stay empty, got %q", got[1].Power)
	}
	if !r.Closed {
		t.Error("renderer was not closed")
	}
}

func TestScrapeHonoursMaxPages(t *testing.T) {
	r := scrapertest.New()
	s := newTestScraper(t, r, scraper.Options{MaxPages: 2})

	for page := 1; page <= 5; page++ {
		c := golf
		c.href = fmt.Sprintf("https://www.autoscout24.com/offers/vw-golf-%d", page)
		r.Serve(scraper.PageURL(s.sel.SearchURL, page), resultPage(c))
	}

	got, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 2 || len(r.Visits) != 2 {
		t.Errorf("expected 2 listings over 2 pages, got %d listings, %d visits", len(got), len(r.Visits))
	}
}

func TestSelectorOverride(t *testing.T) {
	dir := t.TempDir()
	override := `search_url: "https://example.test/lst?page={page}"
card: "div.car"
anchor: "a"
title: "h3"
price: ".price"
mileage: ".km"
gearbox: ".gear"
registration: ".reg"
fuel: ".fuel"
address: ".addr"
country: "Austria"
`
	if err := os.WriteFile(filepath.Join(dir, "autoscout24.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	r := scrapertest.New()
	s := newTestScraper(t, r, scraper.Options{SelectorsDir: dir})
	r.Serve("https://example.test/lst?page=1", &scraper.Page{HTML: `<div class="car">
<a href="/offers/skoda-octavia-42"><h3>Skoda Octavia</h3></a>
<span class="price">€ 9.000</span><span class="km">120.000 km</span>
<span class="gear">Automatic</span><span class="reg">01/2015</span>
<span class="fuel">Petrol</span><span class="addr">1010 Wien</span></div>`})

	got, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(got))
	}
	if got[0].ListingID != "42" || got[0].Location["country"] != "Austria" {
		t.Errorf("unexpected record %+v", got[0])
	}
}

func TestListingID(t *testing.T) {
	tests := []struct{ href, want string }{
		{"https://www.autoscout24.com/offers/vw-golf-abc", "abc"},
		{"/offers/vw-golf-abc/?ipc=x", "abc"},
		{"", ""},
		{"/offers/abc", ""},
		{"/offers/vw-golf/abc", ""},
		{"/offers/vw-golf-", ""},
	}
	for _, tt := range tests {
		if got := listingID(tt.href); got != tt.want {
			t.Errorf("listingID(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
