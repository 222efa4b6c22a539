package ml

import (
	"errors"
	"fmt"
)

// ScalerStats are the per-column bounds learned by Fit, in FeatureNames order.
type ScalerStats struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

type MinMaxScaler struct {
	stats *ScalerStats
}

func NewMinMaxScaler(stats *ScalerStats) (*MinMaxScaler, error) {
	if stats == nil {
		return &MinMaxScaler{}, nil
	}
	if len(stats.Min) != len(stats.Max) {
		return nil, errors.New("scaler stats min/max length mismatch")
	}
	return &MinMaxScaler{stats: stats}, nil
}

func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("rows is empty")
	}
	width := len(rows[0])
	mins := make([]float64, width)
	maxs := make([]float64, width)
	copy(mins, rows[0])
	copy(maxs, rows[0])
	for i, row := range rows[1:] {
		if len(row) != width {
			return fmt.Errorf("row %d has %d columns, expected %d", i+1, len(row), width)
		}
		for j, value := range row {
			if value < mins[j] {
				mins[j] = value
			}
			if value > maxs[j] {
				maxs[j] = value
			}
		}
	}
	s.stats = &ScalerStats{Min: mins, Max: maxs}
	return nil
}

func (s *MinMaxScaler) Transform(rows [][]float64) ([][]float64, error) {
	if s.stats == nil {
		return nil, errors.New("scaler not fitted")
	}
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		normalized, err := NormalizeVector(row, s.stats.Min, s.stats.Max)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		scaled[i] = normalized
	}
	return scaled, nil
}

// FitTransform fits on rows and scales them. On a single row every column is
// constant, so the result is all zeros.
func (s *MinMaxScaler) FitTransform(rows [][]float64) ([][]float64, error) {
	if err := s.Fit(rows); err != nil {
		return nil, err
	}
	return s.Transform(rows)
}

func (s *MinMaxScaler) Fitted() bool {
	return s.stats != nil
}

func (s *MinMaxScaler) Stats() *ScalerStats {
	if s.stats == nil {
		return nil
	}
	return &ScalerStats{
		Min: append([]float64(nil), s.stats.Min...),
		Max: append([]float64(nil), s.stats.Max...),
	}
}

func NormalizeFeature(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (value - min) / (max - min)
}

func NormalizeVector(values []float64, mins []float64, maxs []float64) ([]float64, error) {
	if len(values) != len(mins) || len(values) != len(maxs) {
		return nil, errors.New("values/mins/maxs length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		result[i] = NormalizeFeature(values[i], mins[i], maxs[i])
	}
	return result, nil
}
