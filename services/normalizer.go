package services

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"car-advisor/models"
)

var (
	// ErrMissingID is returned for a record without a source identifier.
	ErrMissingID = errors.New("listing id missing")
	// ErrMissingPrice is returned when no digits survive price coercion.
	ErrMissingPrice = errors.New("price missing")

	yearRegexp  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	powerRegexp = regexp.MustCompile(`(?i)(\d+)\s?kw\b`)
	digitsOnly  = regexp.MustCompile(`\D`)
)

// Normalizer maps raw adapter records into the canonical Listing shape.
// It holds no state besides the clock.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer stamping records with now. A nil now
// uses the UTC wall clock.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Normalizer{now: now}
}

// Normalize converts raw into a Listing. Optional fields that cannot be
// parsed become "unknown" or nil; a missing identifier or price is an error.
func (n *Normalizer) Normalize(raw *models.RawListing, profile models.SourceProfile) (*models.Listing, error) {
	id := strings.TrimSpace(raw.ListingID)
	if id == "" {
		return nil, ErrMissingID
	}

	price, ok, err := parseDigits(raw.RawPrice)
	if err != nil {
		return nil, fmt.Errorf("listing %s: price %q: %w", id, raw.RawPrice, err)
	}
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, ErrMissingPrice)
	}
	mileage, _, err := parseDigits(raw.Mileage)
	if err != nil {
		return nil, fmt.Errorf("listing %s: mileage %q: %w", id, raw.Mileage, err)
	}

	now := n.now()
	brand, model := splitTitle(raw.Title, profile.Title)

	source := raw.Source
	if source == "" {
		source = profile.Name
	}

	return &models.Listing{
		ListingID: id,
		Brand:     brand,
		Model:     model,
		Year:      parseYear(raw.Year, now.Year()+1),
		Mileage:   mileage,
		FuelType:  category(raw.FuelType),
		Gearbox:   category(raw.Gearbox),
		PowerKW:   parsePower(raw.Power),
		Price:     price,
		Currency:  profile.Currency,
		Location:  normaliseLocation(raw.Location),
		Source:    source,
		ScrapedAt: now,
		URL:       absoluteURL(profile.BaseURL, raw.URL),
	}, nil
}

// parseDigits strips every non-digit and parses the rest. ok is false when
// nothing remains.
func parseDigits(s string) (v int, ok bool, err error) {
	digits := digitsOnly.ReplaceAllString(s, "")
	if digits == "" {
		return 0, false, nil
	}
	v, err = strconv.Atoi(digits)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// parseYear takes the last 4-digit year in s not later than maxYear.
// "03/2017" gives 2017.
func parseYear(s string, maxYear int) *int {
	matches := yearRegexp.FindAllString(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		y, err := strconv.Atoi(matches[i])
		if err == nil && y <= maxYear {
			return models.IntPtr(y)
		}
	}
	return nil
}

func parsePower(s string) *int {
	m := powerRegexp.FindStringSubmatch(s)
	if len(m) < 2 {
		return nil
	}
	kw, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return models.IntPtr(kw)
}

func splitTitle(title string, policy models.TitleSplit) (brand, model string) {
	parts := strings.Fields(strings.ToLower(title))
	modelTokens := 1

	if policy == models.SplitYearPrefixed {
		if len(parts) > 0 && len(parts[0]) == 4 && isDigits(parts[0]) {
			parts = parts[1:]
		}
		modelTokens = 2
	}

	brand, model = models.Unknown, models.Unknown
	if len(parts) > 0 {
		brand = parts[0]
	}
	if len(parts) > 1 {
		end := min(1+modelTokens, len(parts))
		model = strings.Join(parts[1:end], " ")
	}
	return brand, model
}

// category lowercases and collapses whitespace, with "unknown" for blanks.
func category(s string) string {
	s = strings.ToLower(normaliseText(s))
	if s == "" {
		return models.Unknown
	}
	return s
}

func normaliseLocation(loc map[string]string) map[string]string {
	out := make(map[string]string, len(loc))
	for k, v := range loc {
		if v = normaliseText(v); v != "" {
			out[k] = v
		}
	}
	return out
}

func absoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == "" || ref == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
