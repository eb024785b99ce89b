package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"car-advisor/models"
	"car-advisor/utils"
)

// ErrNotEnoughData is returned when too few usable listings remain.
var ErrNotEnoughData = errors.New("predict: not enough training data")

// TrainOptions configures Train.
type TrainOptions struct {
	Forest ForestParams
	// TestFraction of the usable rows is held out for the MAE estimate.
	TestFraction float64
	MinSamples   int
	Logger       *utils.Logger
	Now          func() time.Time
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.Forest.Trees == 0 {
		o.Forest = DefaultForestParams()
	}
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		o.TestFraction = 0.2
	}
	if o.MinSamples <= 0 {
		o.MinSamples = 5
	}
	if o.Logger == nil {
		o.Logger = utils.NewLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Train fits encoders and a forest on stored listings. Rows without brand,
// model or year are dropped and a missing power figure counts as 0.
func Train(ctx context.Context, listings []*models.Listing, opts TrainOptions) (*Artifact, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	var rows []*models.Listing
	for _, l := range listings {
		if l.Year == nil || l.Brand == "" || l.Brand == models.Unknown || l.Model == "" || l.Model == models.Unknown {
			continue
		}
		rows = append(rows, l)
	}
	log.Info("[train] Loaded %d listings, %d usable", len(listings), len(rows))
	if len(rows) < opts.MinSamples {
		return nil, fmt.Errorf("%w: %d usable rows, need %d", ErrNotEnoughData, len(rows), opts.MinSamples)
	}

	a := &Artifact{Version: artifactVersion, Encoders: make(map[string]*LabelEncoder)}
	cols := map[string][]string{}
	for _, l := range rows {
		cols[FieldBrand] = append(cols[FieldBrand], l.Brand)
		cols[FieldModel] = append(cols[FieldModel], l.Model)
		cols[FieldFuelType] = append(cols[FieldFuelType], l.FuelType)
		cols[FieldGearbox] = append(cols[FieldGearbox], l.Gearbox)
	}
	for _, field := range CategoricalFields {
		a.Encoders[field] = FitLabelEncoder(field, cols[field])
	}

	X := make([]models.FeatureVector, len(rows))
	y := make([]float64, len(rows))
	for i, l := range rows {
		x, err := a.Encode(requestFor(l))
		if err != nil {
			return nil, err
		}
		X[i], y[i] = x, float64(l.Price)
	}

	rng := rand.New(rand.NewPCG(opts.Forest.Seed, uint64(len(rows))))
	perm := rng.Perm(len(rows))
	holdout := min(int(math.Round(float64(len(rows))*opts.TestFraction)), len(rows)-1)
	testIdx, trainIdx := perm[:holdout], perm[holdout:]

	trainX := make([]models.FeatureVector, len(trainIdx))
	trainY := make([]float64, len(trainIdx))
	for k, i := range trainIdx {
		trainX[k], trainY[k] = X[i], y[i]
	}

	start := time.Now()
	forest, err := FitForest(ctx, trainX, trainY, opts.Forest)
	if err != nil {
		return nil, err
	}
	a.Forest = forest
	a.Samples = len(trainIdx)
	a.Holdout = len(testIdx)
	a.TrainedAt = opts.Now().UTC()

	if len(testIdx) > 0 {
		var sum float64
		for _, i := range testIdx {
			sum += math.Abs(forest.Predict(X[i]) - y[i])
		}
		a.MAE = sum / float64(len(testIdx))
	}
	log.Info("[train] Fitted %d trees on %d rows in %v, holdout MAE %.2f over %d rows",
		len(forest.Trees), a.Samples, time.Since(start).Round(time.Millisecond), a.MAE, a.Holdout)
	return a, nil
}

func requestFor(l *models.Listing) models.PredictionRequest {
	req := models.PredictionRequest{
		Brand:    l.Brand,
		Model:    l.Model,
		Mileage:  l.Mileage,
		FuelType: l.FuelType,
		Gearbox:  l.Gearbox,
		Price:    l.Price,
	}
	if l.Year != nil {
		req.Year = *l.Year
	}
	if l.PowerKW != nil {
		req.PowerKW = *l.PowerKW
	}
	return req
}
