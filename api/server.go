// Package api exposes price predictions and stored listings over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"car-advisor/metrics"
	"car-advisor/models"
	"car-advisor/predict"
	"car-advisor/storage"
	"car-advisor/utils"
)

const (
	defaultListingLimit = 20
	maxListingLimit     = 100
)

// Predictor is the part of predict.Service the API needs.
type Predictor interface {
	Predict(req models.PredictionRequest) (*models.Prediction, error)
}

type Options struct {
	// RateLimit is the sustained requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
	Logger    *utils.Logger
	Metrics   *metrics.Metrics
}

type Server struct {
	predictor Predictor
	store     storage.ListingStore
	opts      Options
	handler   http.Handler
}

// New wires the routes. predictor may be nil until a model is trained; the
// predict endpoint then answers 503.
func New(predictor Predictor, store storage.ListingStore, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = utils.NewLogger()
	}
	s := &Server{predictor: predictor, store: store, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("GET /listings", s.handleListings)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = max(1, int(opts.RateLimit))
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	s.handler = Chain(mux,
		Recover(opts.Logger),
		AccessLog(opts.Logger),
		RateLimit(limiter),
		OTel("caradvisor-api"),
	)
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("[api] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.opts.Logger.Info("[api] Shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type errorBody struct {
	Error       string   `json:"error"`
	Field       string   `json:"field,omitempty"`
	Value       string   `json:"value,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		writeError(w, http.StatusServiceUnavailable, "no trained model loaded")
		return
	}

	var req models.PredictionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	p, err := s.predictor.Predict(req)
	var unknown *predict.UnknownCategoryError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, p)
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:       err.Error(),
			Field:       unknown.Field,
			Value:       unknown.Value,
			Suggestions: unknown.Suggestions,
		})
	case errors.Is(err, predict.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.opts.Logger.Error("[api] predict: %v", err)
		writeError(w, http.StatusInternalServerError, "prediction failed")
	}
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.Filter{
		Brand:    q.Get("brand"),
		Model:    q.Get("model"),
		Gearbox:  q.Get("gearbox"),
		FuelType: q.Get("fuel_type"),
		Source:   q.Get("source"),
	}

	limit := defaultListingLimit
	ints := []struct {
		key string
		set func(int)
	}{
		{"limit", func(v int) { limit = v }},
		{"min_year", func(v int) { f.MinYear = v }},
		{"min_mileage", func(v int) { f.MinMileage = models.IntPtr(v) }},
		{"max_mileage", func(v int) { f.MaxMileage = models.IntPtr(v) }},
	}
	for _, p := range ints {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, p.key+" must be a non-negative integer")
			return
		}
		p.set(v)
	}
	if limit == 0 || limit > maxListingLimit {
		limit = maxListingLimit
	}

	listings, err := s.store.Query(r.Context(), f, limit)
	if err != nil {
		s.opts.Logger.Error("[api] listings: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(listings), "listings": listings})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "listings": n, "model_loaded": s.predictor != nil})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
