// Package predict trains and serves the used-car price model.
package predict

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"car-advisor/metrics"
	"car-advisor/models"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid prediction request")

// goodDealRatio is the share of the estimate below which an asking price
// counts as a good deal.
const goodDealRatio = 0.9

type ServiceOptions struct {
	CacheSize int
	Metrics   *metrics.Metrics
}

// Service answers prediction requests against one loaded Artifact. It is
// safe for concurrent use.
type Service struct {
	artifact *Artifact
	cache    *lru.Cache[models.PredictionRequest, models.Prediction]
	metrics  *metrics.Metrics
}

func NewService(a *Artifact, opts ServiceOptions) (*Service, error) {
	if a == nil || a.Forest == nil {
		return nil, fmt.Errorf("predict: service needs a trained artifact")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	cache, err := lru.New[models.PredictionRequest, models.Prediction](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{artifact: a, cache: cache, metrics: opts.Metrics}, nil
}

// Predict validates and encodes req, then compares its price with the
// model estimate. Unknown categories are rejected with *UnknownCategoryError.
func (s *Service) Predict(req models.PredictionRequest) (*models.Prediction, error) {
	req = canonicalRequest(req)
	if err := validate(req); err != nil {
		return nil, err
	}
	if p, ok := s.cache.Get(req); ok {
		s.metrics.IncPrediction(p.Verdict)
		return &p, nil
	}

	x, err := s.artifact.Encode(req)
	if err != nil {
		return nil, err
	}
	estimate := s.artifact.Forest.Predict(x)

	p := models.Prediction{Verdict: models.VerdictTooExpensive, EstimatedPrice: round2(estimate)}
	if float64(req.Price) < estimate*goodDealRatio {
		p.Verdict = models.VerdictGoodDeal
		p.Message = fmt.Sprintf("✅ Good deal! Estimated market price: %.2f", p.EstimatedPrice)
	} else {
		p.Message = fmt.Sprintf("❌ Too expensive. Estimated market price: %.2f", p.EstimatedPrice)
	}

	s.cache.Add(req, p)
	s.metrics.IncPrediction(p.Verdict)
	return &p, nil
}

// CheckCategory reports whether value is known for field, returning an
// *UnknownCategoryError with suggestions when it is not.
func (s *Service) CheckCategory(field, value string) error {
	enc, ok := s.artifact.Encoders[field]
	if !ok {
		return fmt.Errorf("predict: no encoder for %s", field)
	}
	_, err := enc.Encode(value)
	return err
}

func canonicalRequest(req models.PredictionRequest) models.PredictionRequest {
	req.Brand = canonical(req.Brand)
	req.Model = canonical(req.Model)
	req.FuelType = canonical(req.FuelType)
	req.Gearbox = canonical(req.Gearbox)
	return req
}

func validate(req models.PredictionRequest) error {
	var missing []string
	if req.Brand == "" {
		missing = append(missing, "brand")
	}
	if req.Model == "" {
		missing = append(missing, "model")
	}
	if req.FuelType == "" {
		missing = append(missing, "fuel_type")
	}
	if req.Gearbox == "" {
		missing = append(missing, "gearbox")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if req.Year < 1900 || req.Year > 2100 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidRequest, req.Year)
	}
	if req.Mileage < 0 || req.PowerKW < 0 || req.Price < 0 {
		return fmt.Errorf("%w: numeric fields must be non-negative", ErrInvalidRequest)
	}
	return nil
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
