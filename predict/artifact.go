package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"car-advisor/models"
)

// Categorical feature names, also the keys of Artifact.Encoders.
const (
	FieldBrand    = "brand"
	FieldModel    = "model"
	FieldFuelType = "fuel_type"
	FieldGearbox  = "gearbox"
)

// CategoricalFields lists the encoded fields in feature order.
var CategoricalFields = []string{FieldBrand, FieldModel, FieldFuelType, FieldGearbox}

const artifactVersion = 1

// ErrNoArtifact is returned when the model file does not exist yet.
var ErrNoArtifact = errors.New("predict: model artifact not found")

// Artifact bundles the fitted encoders and forest with training metadata.
type Artifact struct {
	Version   int                      `json:"version"`
	TrainedAt time.Time                `json:"trained_at"`
	Samples   int                      `json:"samples"`
	Holdout   int                      `json:"holdout"`
	MAE       float64                  `json:"mae"`
	Encoders  map[string]*LabelEncoder `json:"encoders"`
	Forest    *Forest                  `json:"forest"`
}

// Encode turns a request into the model's feature vector. Categorical
// values outside the vocabulary yield an *UnknownCategoryError.
func (a *Artifact) Encode(req models.PredictionRequest) (models.FeatureVector, error) {
	var x models.FeatureVector
	codes := map[string]*float64{
		FieldBrand:    &x[models.FeatureBrand],
		FieldModel:    &x[models.FeatureModel],
		FieldFuelType: &x[models.FeatureFuel],
		FieldGearbox:  &x[models.FeatureGearbox],
	}
	values := map[string]string{
		FieldBrand:    req.Brand,
		FieldModel:    req.Model,
		FieldFuelType: req.FuelType,
		FieldGearbox:  req.Gearbox,
	}
	for _, field := range CategoricalFields {
		enc, ok := a.Encoders[field]
		if !ok {
			return x, fmt.Errorf("predict: artifact has no %s encoder", field)
		}
		code, err := enc.Encode(values[field])
		if err != nil {
			return x, err
		}
		*codes[field] = float64(code)
	}
	x[models.FeatureYear] = float64(req.Year)
	x[models.FeatureMileage] = float64(req.Mileage)
	x[models.FeaturePowerKW] = float64(req.PowerKW)
	return x, nil
}

// Save writes the artifact as JSON, creating parent directories.
func (a *Artifact) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("predict: create model dir: %w", err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("predict: encode artifact: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("predict: write artifact: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadArtifact reads an artifact written by Save.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoArtifact, path)
	}
	if err != nil {
		return nil, fmt.Errorf("predict: read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("predict: decode artifact %s: %w", path, err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("predict: artifact version %d, want %d", a.Version, artifactVersion)
	}
	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return nil, fmt.Errorf("predict: artifact %s has no trees", path)
	}
	return &a, nil
}
