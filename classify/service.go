// Package classify turns form measurements into a heart-failure result:
// validate, encode, derive recovery potential, scale, predict, label.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"heartfail/apperr"
	"heartfail/config"
	"heartfail/db"
	"heartfail/logger"
	"heartfail/ml"
	"heartfail/monitoring"
	"heartfail/report"
	"heartfail/validation"
)

type ModelSource interface {
	Get() (*ml.Model, error)
}

// ReferenceData supplies the rows used when the scaler is fitted on the dataset.
type ReferenceData interface {
	FeatureMatrix(ctx context.Context) ([][]float64, error)
}

type Result struct {
	ID           string              `json:"id"`
	Label        int                 `json:"label"`
	Result       string              `json:"result"`
	Confidence   float64             `json:"confidence"`
	Features     ml.ClinicalFeatures `json:"features"`
	Scaled       []float64           `json:"scaled"`
	Scaler       string              `json:"scaler"`
	ModelVersion string              `json:"model_version"`
	Report       report.Report       `json:"report"`
	CreatedAt    time.Time           `json:"created_at"`
}

type cached struct {
	label      int
	confidence float64
}

type Options struct {
	Scaler    string
	CacheSize int
	Locale    string
	// RecordHistory stores every classification in the SQLite history.
	RecordHistory bool
}

type Service struct {
	models    ModelSource
	reference ReferenceData
	opts      Options
	cache     *lru.Cache[string, cached]
}

func NewService(models ModelSource, reference ReferenceData, opts Options) (*Service, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.Scaler == "" {
		opts.Scaler = config.ScalerArtifact
	}
	cache, err := lru.New[string, cached](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{models: models, reference: reference, opts: opts, cache: cache}, nil
}

// Invalidate drops cached predictions; called when the model is swapped.
func (s *Service) Invalidate(*ml.Model) {
	s.cache.Purge()
}

// Prepare validates and encodes the measurements without touching the model.
func (s *Service) Prepare(m ml.Measurements) (ml.ClinicalFeatures, error) {
	if err := validation.Validate(m); err != nil {
		return ml.ClinicalFeatures{}, validation.AsAppError(err)
	}
	features, err := ml.BuildFeatures(m)
	if err != nil {
		return ml.ClinicalFeatures{}, apperr.Validation(err.Error())
	}
	return features, nil
}

func (s *Service) Report(m ml.Measurements) (report.Report, error) {
	features, err := s.Prepare(m)
	if err != nil {
		return report.Report{}, err
	}
	return report.Build(features, s.opts.Locale), nil
}

func (s *Service) Classify(ctx context.Context, m ml.Measurements) (*Result, error) {
	features, err := s.Prepare(m)
	if err != nil {
		monitoring.ClassificationErrors.WithLabelValues("validation").Inc()
		return nil, err
	}

	model, err := s.models.Get()
	if err != nil {
		monitoring.ClassificationErrors.WithLabelValues("model_unavailable").Inc()
		return nil, apperr.ModelUnavailable(err)
	}

	scaled, scalerUsed, err := s.scale(ctx, model, ml.FeatureVector(features))
	if err != nil {
		monitoring.ClassificationErrors.WithLabelValues("scaling").Inc()
		return nil, apperr.Internal(err)
	}

	key := cacheKey(model.Version, scaled)
	entry, hit := s.cache.Get(key)
	monitoring.RecordCacheLookup(hit)
	if !hit {
		label, confidence, err := model.Predict(scaled)
		if err != nil {
			monitoring.ClassificationErrors.WithLabelValues("predict").Inc()
			return nil, apperr.Internal(fmt.Errorf("predict: %w", err))
		}
		entry = cached{label: label, confidence: confidence}
		s.cache.Add(key, entry)
	}

	result := &Result{
		ID:           uuid.NewString(),
		Label:        entry.label,
		Result:       ml.ResultLabel(entry.label),
		Confidence:   entry.confidence,
		Features:     features,
		Scaled:       scaled,
		Scaler:       scalerUsed,
		ModelVersion: model.Version,
		Report:       report.Build(features, s.opts.Locale),
		CreatedAt:    time.Now().UTC(),
	}
	monitoring.Classifications.WithLabelValues(result.Result).Inc()

	if s.opts.RecordHistory {
		s.record(result)
	}
	return result, nil
}

// scale picks the configured scaler source and falls back to fitting on the
// single input row, which maps every column to 0.
func (s *Service) scale(ctx context.Context, model *ml.Model, row []float64) ([]float64, string, error) {
	mode := s.opts.Scaler
	var scaler *ml.MinMaxScaler

	switch mode {
	case config.ScalerArtifact:
		if model.Scaler != nil {
			sc, err := ml.NewMinMaxScaler(model.Scaler)
			if err != nil {
				return nil, "", err
			}
			scaler = sc
		} else {
			logger.Log.Debug("model artifact has no scaler stats, fitting on input row")
		}
	case config.ScalerDataset:
		if s.reference != nil {
			rows, err := s.reference.FeatureMatrix(ctx)
			if err == nil && len(rows) > 0 {
				sc := &ml.MinMaxScaler{}
				if err := sc.Fit(rows); err != nil {
					return nil, "", err
				}
				scaler = sc
			} else {
				logger.Log.Warn("reference dataset unavailable, fitting scaler on input row", zap.Error(err))
			}
		}
	}

	if scaler == nil {
		mode = config.ScalerRow
		scaler = &ml.MinMaxScaler{}
		scaled, err := scaler.FitTransform([][]float64{row})
		if err != nil {
			return nil, "", err
		}
		return scaled[0], mode, nil
	}
	scaled, err := scaler.Transform([][]float64{row})
	if err != nil {
		return nil, "", err
	}
	return scaled[0], mode, nil
}

func (s *Service) record(result *Result) {
	features := make(map[string]float64, len(ml.FeatureNames()))
	for i, value := range ml.FeatureVector(result.Features) {
		features[ml.FeatureNames()[i]] = value
	}
	err := db.SavePrediction(db.Prediction{
		ID:           result.ID,
		Features:     features,
		Label:        result.Label,
		Result:       result.Result,
		Confidence:   result.Confidence,
		ModelVersion: result.ModelVersion,
		CreatedAt:    result.CreatedAt,
	})
	if err != nil && !errors.Is(err, db.ErrNotInitialized) {
		logger.Log.Warn("saving prediction history", zap.String("id", result.ID), zap.Error(err))
	}
}

func cacheKey(version string, scaled []float64) string {
	var b strings.Builder
	b.WriteString(version)
	for _, v := range scaled {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
