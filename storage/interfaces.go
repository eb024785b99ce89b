package storage

import (
	"context"

	"car-advisor/models"
)

// ListingStore is the persistence contract for canonical listings.
// Rows are keyed by listing_id and are never overwritten.
type ListingStore interface {
	// InsertIfAbsent writes listings whose listing_id is not yet stored and
	// reports how many rows were new. It is all-or-nothing.
	InsertIfAbsent(ctx context.Context, listings []*models.Listing) (int, error)
	Query(ctx context.Context, f Filter, limit int) ([]*models.Listing, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// SnapshotWriter exports a run's collected listings outside the store.
type SnapshotWriter interface {
	WriteListings(listings []*models.Listing) error
	Close() error
}

// Filter narrows a Query. Empty strings, nil bounds and a zero MinYear are
// ignored.
type Filter struct {
	Brand    string
	Model    string
	Gearbox  string
	FuelType string
	Source   string
	// Mileage bounds are inclusive; a zero bound is still a bound.
	MinMileage *int
	MaxMileage *int
	MinYear    int
}
