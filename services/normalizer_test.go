package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"car-advisor/models"
)

var fixedClock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

var (
	autoscoutProfile = models.SourceProfile{Name: "autoscout24", Currency: "EUR", BaseURL: "https://www.autoscout24.com", Title: models.SplitBrandModel}
	gumtreeProfile   = models.SourceProfile{Name: "gumtree", Currency: "GBP", BaseURL: "https://www.gumtree.com", Title: models.SplitYearPrefixed}
)

func TestNormalizeAutoscout(t *testing.T) {
	n := NewNormalizer(fixedClock)
	raw := &models.RawListing{
		ListingID: "3f2a9c",
		Title:     "Volkswagen Golf 1.6 TDI",
		RawPrice:  "€12,345",
		Mileage:   "45 000 km",
		Year:      "03/2017",
		FuelType:  " Diesel ",
		Gearbox:   "Manual",
		Power:     "85 kW (116 hp)",
		URL:       "https://www.autoscout24.com/offers/volkswagen-golf-3f2a9c",
		Location:  map[string]string{"country": "germany", "city": "Berlin"},
		Source:    "autoscout24",
	}

	got, err := n.Normalize(raw, autoscoutProfile)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := &models.Listing{
		ListingID: "3f2a9c",
		Brand:     "volkswagen",
		Model:     "golf",
		Year:      models.IntPtr(2017),
		Mileage:   45000,
		FuelType:  "diesel",
		Gearbox:   "manual",
		PowerKW:   models.IntPtr(85),
		Price:     12345,
		Currency:  "EUR",
		Location:  map[string]string{"country": "germany", "city": "Berlin"},
		Source:    "autoscout24",
		ScrapedAt: fixedClock(),
		URL:       "https://www.autoscout24.com/offers/volkswagen-golf-3f2a9c",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeGumtree(t *testing.T) {
	n := NewNormalizer(fixedClock)
	raw := &models.RawListing{
		ListingID: "1234567",
		Title:     "2015 BMW 3 Series 320d Automatic",
		RawPrice:  "£9,995",
		Mileage:   "60,000 miles",
		Year:      "2015",
		FuelType:  "Diesel",
		Gearbox:   "automatic",
		URL:       "/p/cars/2015-bmw-3-series/1234567",
		Location:  map[string]string{"raw": "Leeds,  West Yorkshire"},
		Source:    "gumtree",
	}

	got, err := n.Normalize(raw, gumtreeProfile)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Brand != "bmw" || got.Model != "3 series" {
		t.Errorf("brand/model: got %q/%q, want bmw/3 series", got.Brand, got.Model)
	}
	if got.PowerKW != nil {
		t.Errorf("power should be absent, got %d", *got.PowerKW)
	}
	if got.Currency != "GBP" {
		t.Errorf("currency: got %q", got.Currency)
	}
	if got.URL != "https://www.gumtree.com/p/cars/2015-bmw-3-series/1234567" {
		t.Errorf("url: got %q", got.URL)
	}
	if got.Location["raw"] != "Leeds, West Yorkshire" {
		t.Errorf("location: got %q", got.Location["raw"])
	}
}

func TestNormalizeMissingOptionalFields(t *testing.T) {
	n := NewNormalizer(fixedClock)
	got, err := n.Normalize(&models.RawListing{ListingID: "x1", RawPrice: "1000"}, autoscoutProfile)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Brand != models.Unknown || got.Model != models.Unknown {
		t.Errorf("brand/model: got %q/%q", got.Brand, got.Model)
	}
	if got.FuelType != models.Unknown || got.Gearbox != models.Unknown {
		t.Errorf("fuel/gearbox: got %q/%q", got.FuelType, got.Gearbox)
	}
	if got.Year != nil || got.PowerKW != nil {
		t.Errorf("year and power should be absent")
	}
	if got.Source != "autoscout24" {
		t.Errorf("source should default to the profile name, got %q", got.Source)
	}
}

func TestNormalizeRequiredFields(t *testing.T) {
	n := NewNormalizer(fixedClock)

	tests := []struct {
		name string
		raw  *models.RawListing
		want error
	}{
		{"no id", &models.RawListing{RawPrice: "€100"}, ErrMissingID},
		{"blank id", &models.RawListing{ListingID: "  ", RawPrice: "€100"}, ErrMissingID},
		{"no price", &models.RawListing{ListingID: "1", RawPrice: "Price on request"}, ErrMissingPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.raw, autoscoutProfile)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseDigits(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"€12,345", 12345, true},
		{"45 000 km", 45000, true},
		{"£9,995", 9995, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok, err := parseDigits(tt.in)
		if err != nil || got != tt.want || ok != tt.wantOK {
			t.Errorf("parseDigits(%q) = %d, %v, %v; want %d, %v", tt.in, got, ok, err, tt.want, tt.wantOK)
		}
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want int // 0 means absent
	}{
		{"03/2017", 2017},
		{"2015", 2015},
		{"1998 (facelift 2001)", 2001},
		{"2031", 0},
		{"new", 0},
		{"", 0},
	}
	for _, tt := range tests {
		got := parseYear(tt.in, 2026)
		switch {
		case tt.want == 0 && got != nil:
			t.Errorf("parseYear(%q) = %d, want absent", tt.in, *got)
		case tt.want != 0 && (got == nil || *got != tt.want):
			t.Errorf("parseYear(%q) = %v, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		title     string
		policy    models.TitleSplit
		wantBrand string
		wantModel string
	}{
		{"BMW 320d Touring", models.SplitBrandModel, "bmw", "320d"},
		{"Tesla", models.SplitBrandModel, "tesla", models.Unknown},
		{"", models.SplitBrandModel, models.Unknown, models.Unknown},
		{"2015 Ford Focus Zetec 1.0", models.SplitYearPrefixed, "ford", "focus zetec"},
		{"2015 Ford Focus", models.SplitYearPrefixed, "ford", "focus"},
		{"Land Rover Defender", models.SplitYearPrefixed, "land", "rover defender"},
		{"2019", models.SplitYearPrefixed, models.Unknown, models.Unknown},
	}
	for _, tt := range tests {
		brand, model := splitTitle(tt.title, tt.policy)
		if brand != tt.wantBrand || model != tt.wantModel {
			t.Errorf("splitTitle(%q) = %q/%q, want %q/%q", tt.title, brand, model, tt.wantBrand, tt.wantModel)
		}
	}
}
