package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"car-advisor/models"
	"car-advisor/utils"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultBatchSize = 50
)

// listingColumns is the insert column order; scanListing reads "id" first.
var listingColumns = []string{
	"listing_id", "brand", "model", "year", "mileage", "fuel_type", "gearbox",
	"power_kw", "price", "currency", "location", "source", "scraped_at", "url",
}

type dialect struct {
	placeholder func(n int) string
	schema      []string
	// timeArg converts scraped_at into the driver's bind type.
	timeArg func(t time.Time) any
}

var dialects = map[string]dialect{
	DriverPostgres: {
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		timeArg:     func(t time.Time) any { return t },
		schema: []string{
			`CREATE TABLE IF NOT EXISTS car_listings (
				id          BIGSERIAL PRIMARY KEY,
				listing_id  TEXT        NOT NULL UNIQUE,
				brand       TEXT        NOT NULL,
				model       TEXT        NOT NULL,
				year        INTEGER,
				mileage     INTEGER     NOT NULL CHECK (mileage >= 0),
				fuel_type   TEXT        NOT NULL,
				gearbox     TEXT        NOT NULL,
				power_kw    INTEGER,
				price       INTEGER     NOT NULL CHECK (price >= 0),
				currency    VARCHAR(3)  NOT NULL,
				location    JSONB       NOT NULL DEFAULT '{}',
				source      VARCHAR(50) NOT NULL,
				scraped_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				url         TEXT        NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_car_listings_brand_model ON car_listings(brand, model)`,
			`CREATE INDEX IF NOT EXISTS idx_car_listings_source      ON car_listings(source)`,
			`CREATE INDEX IF NOT EXISTS idx_car_listings_price       ON car_listings(price)`,
		},
	},
	DriverSQLite: {
		placeholder: func(int) string { return "?" },
		timeArg:     func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
		schema: []string{
			`CREATE TABLE IF NOT EXISTS car_listings (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				listing_id  TEXT    NOT NULL UNIQUE,
				brand       TEXT    NOT NULL,
				model       TEXT    NOT NULL,
				year        INTEGER,
				mileage     INTEGER NOT NULL CHECK (mileage >= 0),
				fuel_type   TEXT    NOT NULL,
				gearbox     TEXT    NOT NULL,
				power_kw    INTEGER,
				price       INTEGER NOT NULL CHECK (price >= 0),
				currency    TEXT    NOT NULL,
				location    TEXT    NOT NULL DEFAULT '{}',
				source      TEXT    NOT NULL,
				scraped_at  TEXT    NOT NULL,
				url         TEXT    NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_car_listings_brand_model ON car_listings(brand, model)`,
			`CREATE INDEX IF NOT EXISTS idx_car_listings_source      ON car_listings(source)`,
			`CREATE INDEX IF NOT EXISTS idx_car_listings_price       ON car_listings(price)`,
		},
	},
}

// Options configures Open.
type Options struct {
	Driver       string
	DSN          string
	BatchSize    int
	PingAttempts int
	PingDelay    time.Duration
	Logger       *utils.Logger
}

// SQLStore persists listings to PostgreSQL or SQLite through database/sql.
type SQLStore struct {
	db        *sql.DB
	dialect   dialect
	batchSize int
	logger    *utils.Logger
}

// Open connects to the database, waits for it to answer, runs the schema
// migration and returns a ready-to-use SQLStore.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	d, ok := dialects[opts.Driver]
	if !ok {
		return nil, fmt.Errorf("storage: unsupported driver %q", opts.Driver)
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("storage: empty connection string for %s", opts.Driver)
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewLogger()
	}
	if opts.PingAttempts == 0 {
		opts.PingAttempts = 10
	}
	if opts.PingDelay == 0 {
		opts.PingDelay = 2 * time.Second
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", opts.Driver, err)
	}
	if opts.Driver == DriverSQLite {
		// A single connection serialises writers and keeps in-memory DSNs coherent.
		db.SetMaxOpenConns(1)
	}

	retry := &utils.RetryConfig{MaxAttempts: opts.PingAttempts, BaseDelay: opts.PingDelay, Logger: opts.Logger}
	if err := retry.Do(ctx, opts.Driver+" ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, dialect: d, batchSize: opts.BatchSize, logger: opts.Logger}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", opts.Driver, err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertIfAbsent batch-inserts listings in one transaction. Rows whose
// listing_id already exists are skipped; any other failure rolls back the
// whole call.
func (s *SQLStore) InsertIfAbsent(ctx context.Context, listings []*models.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	inserted := 0
	for i := 0; i < len(listings); i += s.batchSize {
		end := min(i+s.batchSize, len(listings))
		n, err := s.insertBatch(ctx, tx, listings[i:end])
		if err != nil {
			return 0, fmt.Errorf("storage: insert batch %d-%d: %w", i, end, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit: %w", err)
	}
	s.logger.Debug("[storage] Inserted %d of %d listings", inserted, len(listings))
	return inserted, nil
}

func (s *SQLStore) insertBatch(ctx context.Context, tx *sql.Tx, batch []*models.Listing) (int, error) {
	cols := len(listingColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*cols)

	for idx, l := range batch {
		if l.ListingID == "" {
			return 0, fmt.Errorf("listing without listing_id")
		}
		loc, err := json.Marshal(locationOrEmpty(l.Location))
		if err != nil {
			return 0, fmt.Errorf("encode location for %s: %w", l.ListingID, err)
		}

		ph := make([]string, cols)
		for c := range ph {
			ph[c] = s.dialect.placeholder(idx*cols + c + 1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			l.ListingID, l.Brand, l.Model, nullableInt(l.Year), l.Mileage, l.FuelType, l.Gearbox,
			nullableInt(l.PowerKW), l.Price, l.Currency, string(loc), l.Source,
			s.dialect.timeArg(l.ScrapedAt), l.URL)
	}

	query := fmt.Sprintf(`
		INSERT INTO car_listings (%s)
		VALUES %s
		ON CONFLICT (listing_id) DO NOTHING
	`, strings.Join(listingColumns, ", "), strings.Join(valueStrings, ","))

	res, err := tx.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Query returns stored listings matching f ordered by id. limit <= 0
// returns every match.
func (s *SQLStore) Query(ctx context.Context, f Filter, limit int) ([]*models.Listing, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, s.dialect.placeholder(len(args))))
	}
	if f.Brand != "" {
		add("brand = %s", strings.ToLower(f.Brand))
	}
	if f.Model != "" {
		add("model = %s", strings.ToLower(f.Model))
	}
	if f.Gearbox != "" {
		add("gearbox = %s", strings.ToLower(f.Gearbox))
	}
	if f.FuelType != "" {
		add("fuel_type = %s", strings.ToLower(f.FuelType))
	}
	if f.Source != "" {
		add("source = %s", f.Source)
	}
	if f.MinMileage != nil {
		add("mileage >= %s", *f.MinMileage)
	}
	if f.MaxMileage != nil {
		add("mileage <= %s", *f.MaxMileage)
	}
	if f.MinYear > 0 {
		add("year >= %s", f.MinYear)
	}

	query := "SELECT id, " + strings.Join(listingColumns, ", ") + " FROM car_listings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Count returns the number of stored listings.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM car_listings").Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanListing(rows *sql.Rows) (*models.Listing, error) {
	var (
		l           models.Listing
		year, power sql.NullInt64
		loc         []byte
		scrapedAt   timeValue
	)
	if err := rows.Scan(
		&l.ID, &l.ListingID, &l.Brand, &l.Model, &year, &l.Mileage, &l.FuelType, &l.Gearbox,
		&power, &l.Price, &l.Currency, &loc, &l.Source, &scrapedAt, &l.URL,
	); err != nil {
		return nil, err
	}
	if year.Valid {
		l.Year = models.IntPtr(int(year.Int64))
	}
	if power.Valid {
		l.PowerKW = models.IntPtr(int(power.Int64))
	}
	l.Location = map[string]string{}
	if len(loc) > 0 {
		if err := json.Unmarshal(loc, &l.Location); err != nil {
			return nil, fmt.Errorf("decode location for %s: %w", l.ListingID, err)
		}
	}
	l.ScrapedAt = time.Time(scrapedAt)
	return &l, nil
}

// timeValue scans TIMESTAMPTZ columns as well as RFC 3339 text.
type timeValue time.Time

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = timeValue(v)
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		*t = timeValue(time.Time{})
	default:
		return fmt.Errorf("unsupported scraped_at type %T", src)
	}
	return nil
}

func (t *timeValue) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = timeValue(parsed)
	return nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func locationOrEmpty(loc map[string]string) map[string]string {
	if loc == nil {
		return map[string]string{}
	}
	return loc
}
