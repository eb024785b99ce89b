package models

import "time"

// Unknown is the sentinel stored for categorical fields a source did not render.
const Unknown = "unknown"

// RawListing holds unprocessed card data exactly as the site rendered it.
// It never reaches the store; the normalizer turns it into a Listing.
type RawListing struct {
	ListingID string
	Title     string
	RawPrice  string
	Mileage   string
	Year      string
	FuelType  string
	Gearbox   string
	Power     string
	URL       string
	Location  map[string]string
	Source    string
}

// TitleSplit selects how a free-text title is split into brand and model.
type TitleSplit int

const (
	// SplitBrandModel takes the first token as brand and the second as model.
	SplitBrandModel TitleSplit = iota
	// SplitYearPrefixed skips a leading 4-digit year, then takes one brand
	// token and up to two model tokens.
	SplitYearPrefixed
)

// SourceProfile is the per-adapter context the normalizer needs.
type SourceProfile struct {
	Name     string
	Currency string
	BaseURL  string
	Title    TitleSplit
}

// Listing is the canonical, normalized record persisted in car_listings.
type Listing struct {
	ID        int64             `json:"-"`
	ListingID string            `json:"listing_id"`
	Brand     string            `json:"brand"`
	Model     string            `json:"model"`
	Year      *int              `json:"year,omitempty"`
	Mileage   int               `json:"mileage"`
	FuelType  string            `json:"fuel_type"`
	Gearbox   string            `json:"gearbox"`
	PowerKW   *int              `json:"power_kw,omitempty"`
	Price     int               `json:"price"`
	Currency  string            `json:"currency"`
	Location  map[string]string `json:"location"`
	Source    string            `json:"source"`
	ScrapedAt time.Time         `json:"scraped_at"`
	URL       string            `json:"url"`
}

// IngestResult summarises one ingestion run.
type IngestResult struct {
	RunID    string
	Inserted int
	Listings []*Listing
	// Failures maps a source name to the error that stopped it.
	Failures map[string]error
	Started  time.Time
	Finished time.Time
	// Report is set when the coordinator was asked for a market summary.
	Report *MarketReport
}

// MarketReport holds the computed analytics over a set of listings. Prices
// are never mixed across currencies, so every price figure is keyed by one.
type MarketReport struct {
	TotalListings int
	BySource      map[string]int
	AveragePrice  map[string]float64 // currency -> mean price
	// AverageByBrand maps currency -> brand -> mean price.
	AverageByBrand map[string]map[string]float64
	Cheapest       map[string]*Listing
	MostExpensive  map[string]*Listing
	MissingYear    int
	MissingPowerKW int
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
