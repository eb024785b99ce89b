package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"car-advisor/models"
	"car-advisor/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate summarises one run's collected listings.
func (s *InsightService) Generate(listings []*models.Listing) *models.MarketReport {
	report := &models.MarketReport{
		BySource:       make(map[string]int),
		AveragePrice:   make(map[string]float64),
		AverageByBrand: make(map[string]map[string]float64),
		Cheapest:       make(map[string]*models.Listing),
		MostExpensive:  make(map[string]*models.Listing),
	}
	report.TotalListings = len(listings)

	type sum struct {
		total float64
		n     int
	}
	byCurrency := make(map[string]*sum)
	byBrand := make(map[string]map[string]*sum)

	for _, l := range listings {
		report.BySource[l.Source]++
		if l.Year == nil {
			report.MissingYear++
		}
		if l.PowerKW == nil {
			report.MissingPowerKW++
		}
		if l.Price <= 0 {
			continue
		}

		cur := l.Currency
		if byCurrency[cur] == nil {
			byCurrency[cur] = &sum{}
			byBrand[cur] = make(map[string]*sum)
		}
		byCurrency[cur].total += float64(l.Price)
		byCurrency[cur].n++
		if byBrand[cur][l.Brand] == nil {
			byBrand[cur][l.Brand] = &sum{}
		}
		byBrand[cur][l.Brand].total += float64(l.Price)
		byBrand[cur][l.Brand].n++

		if c := report.Cheapest[cur]; c == nil || l.Price < c.Price {
			report.Cheapest[cur] = l
		}
		if m := report.MostExpensive[cur]; m == nil || l.Price > m.Price {
			report.MostExpensive[cur] = l
		}
	}

	for cur, agg := range byCurrency {
		report.AveragePrice[cur] = round2(agg.total / float64(agg.n))
		report.AverageByBrand[cur] = make(map[string]float64, len(byBrand[cur]))
		for brand, b := range byBrand[cur] {
			report.AverageByBrand[cur][brand] = round2(b.total / float64(b.n))
		}
	}

	if s.logger != nil {
		s.logger.Debug("[insights] Report over %d listings, %d currencies", report.TotalListings, len(byCurrency))
	}
	return report
}

// Print writes a human-readable report to w.
func (s *InsightService) Print(w io.Writer, r *models.MarketReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🚗 USED CAR MARKET REPORT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings collected : \033[1m%d\033[0m\n", r.TotalListings)
	for _, src := range sortedKeys(r.BySource) {
		fmt.Fprintf(w, "  %-24s : %d\n", src, r.BySource[src])
	}
	fmt.Fprintf(w, "  Missing year / power     : %d / %d\n\n", r.MissingYear, r.MissingPowerKW)

	for _, cur := range sortedKeys(r.AveragePrice) {
		fmt.Fprintf(w, "\033[1;33m  Prices (%s)\033[0m\n", cur)
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  Average price : \033[1;32m%.2f\033[0m\n", r.AveragePrice[cur])
		if c := r.Cheapest[cur]; c != nil {
			fmt.Fprintf(w, "  Cheapest      : %d  %s %s\n", c.Price, c.Brand, c.Model)
		}
		if m := r.MostExpensive[cur]; m != nil {
			fmt.Fprintf(w, "  Most expensive: %d  %s %s\n", m.Price, m.Brand, m.Model)
		}

		// Top brands by average price
		brands := r.AverageByBrand[cur]
		names := sortedKeys(brands)
		sort.SliceStable(names, func(i, j int) bool { return brands[names[i]] > brands[names[j]] })
		if len(names) > 5 {
			names = names[:5]
		}
		for i, b := range names {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-28s %.2f\n", i+1, truncate(b, 26), brands[b])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
