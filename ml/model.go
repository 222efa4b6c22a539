package ml

import "time"

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeBagging      = "bagging"
)

type Classifier interface {
	Predict(features []float64) (int, float64, error)
}

// Model is a loaded classifier together with what the artifact recorded
// about how it was trained.
type Model struct {
	Classifier

	Type         string
	Version      string
	FeatureNames []string
	Scaler       *ScalerStats
	TrainedAt    time.Time
	Metrics      *EvaluationMetrics
}

type EvaluationMetrics struct {
	Accuracy   float64 `json:"accuracy"`
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	DataPoints int     `json:"data_points"`
}
