package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"car-advisor/models"
)

// CSVWriter appends run snapshots to a CSV file whose columns mirror the
// listings table. Safe for concurrent use.
type CSVWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	rows int
}

// NewCSVWriter opens path for appending, creating parent directories. The
// header is written only when the file is new or empty, so successive runs
// accumulate in one file.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat %q: %w", path, err)
	}

	c := &CSVWriter{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := c.w.Write(listingColumns); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		c.w.Flush()
	}
	return c, nil
}

func (c *CSVWriter) WriteListings(listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		rec, err := csvRecord(l)
		if err != nil {
			return err
		}
		if err := c.w.Write(rec); err != nil {
			return fmt.Errorf("csv: write %s: %w", l.ListingID, err)
		}
		c.rows++
	}
	c.w.Flush()
	return c.w.Error()
}

// Rows reports how many listings this writer has appended.
func (c *CSVWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return err
	}
	return c.f.Close()
}

// csvRecord lays l out in listingColumns order. Absent year or power is an
// empty cell; location is its JSON form.
func csvRecord(l *models.Listing) ([]string, error) {
	loc, err := json.Marshal(locationOrEmpty(l.Location))
	if err != nil {
		return nil, fmt.Errorf("csv: encode location of %s: %w", l.ListingID, err)
	}
	return []string{
		l.ListingID,
		l.Brand,
		l.Model,
		optionalInt(l.Year),
		strconv.Itoa(l.Mileage),
		l.FuelType,
		l.Gearbox,
		optionalInt(l.PowerKW),
		strconv.Itoa(l.Price),
		l.Currency,
		string(loc),
		l.Source,
		l.ScrapedAt.UTC().Format(time.RFC3339),
		l.URL,
	}, nil
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
