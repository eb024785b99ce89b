package models

// FeatureCount is the width of the model input.
const FeatureCount = 7

// Feature vector positions, in the order the model was trained on.
const (
	FeatureBrand = iota
	FeatureModel
	FeatureYear
	FeatureMileage
	FeatureFuel
	FeatureGearbox
	FeaturePowerKW
)

// FeatureVector is the fixed-order numeric encoding of a listing.
type FeatureVector [FeatureCount]float64

// PredictionRequest is what the presentation adapters collect from a user.
type PredictionRequest struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	Mileage  int    `json:"mileage"`
	FuelType string `json:"fuel_type"`
	Gearbox  string `json:"gearbox"`
	PowerKW  int    `json:"power_kw"`
	Price    int    `json:"price"`
}

// Verdict labels.
const (
	VerdictGoodDeal     = "good_deal"
	VerdictTooExpensive = "too_expensive"
)

// Prediction is the service answer for one request.
type Prediction struct {
	Verdict        string  `json:"verdict"`
	EstimatedPrice float64 `json:"estimated_price"`
	Message        string  `json:"message"`
}
