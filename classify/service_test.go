package classify

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartfail/apperr"
	"heartfail/artifact"
	"heartfail/config"
	"heartfail/db"
	"heartfail/ml"
)

type stubClassifier struct {
	label int
	calls int
	seen  [][]float64
}

func (s *stubClassifier) Predict(features []float64) (int, float64, error) {
	s.calls++
	s.seen = append(s.seen, append([]float64(nil), features...))
	return s.label, 0.7, nil
}

type staticModels struct {
	model *ml.Model
	err   error
}

func (s staticModels) Get() (*ml.Model, error) { return s.model, s.err }

type staticReference [][]float64

func (s staticReference) FeatureMatrix(context.Context) ([][]float64, error) { return s, nil }

func newService(t *testing.T, models ModelSource, ref ReferenceData, opts Options) *Service {
	t.Helper()
	svc, err := NewService(models, ref, opts)
	require.NoError(t, err)
	return svc
}

func TestClassifyRowScalerCollapsesToZero(t *testing.T) {
	clf := &stubClassifier{label: 1}
	svc := newService(t, staticModels{model: &ml.Model{Classifier: clf, Version: "v1"}}, nil, Options{Scaler: config.ScalerRow})

	result, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.NoError(t, err)
	assert.Equal(t, "Indikasi gagal jantung", result.Result)
	assert.Equal(t, 1, result.Label)
	assert.Equal(t, config.ScalerRow, result.Scaler)
	assert.Equal(t, make([]float64, 13), result.Scaled)
	assert.Len(t, result.Report.Rows, 13)
	assert.NotEmpty(t, result.ID)
}

func TestClassifyHealthyLabel(t *testing.T) {
	clf := &stubClassifier{label: 0}
	svc := newService(t, staticModels{model: &ml.Model{Classifier: clf}}, nil, Options{})

	result, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.NoError(t, err)
	assert.Equal(t, "Sehat", result.Result)
}

func TestClassifyUsesArtifactScaler(t *testing.T) {
	mins := make([]float64, 13)
	maxs := make([]float64, 13)
	for i := range maxs {
		maxs[i] = 100
	}
	clf := &stubClassifier{}
	model := &ml.Model{Classifier: clf, Version: "v1", Scaler: &ml.ScalerStats{Min: mins, Max: maxs}}
	svc := newService(t, staticModels{model: model}, nil, Options{Scaler: config.ScalerArtifact})

	result, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.NoError(t, err)
	assert.Equal(t, config.ScalerArtifact, result.Scaler)
	assert.InDelta(t, 0.35, result.Scaled[0], 1e-12)
}

func TestClassifyArtifactWithoutStatsFallsBackToRow(t *testing.T) {
	svc := newService(t, staticModels{model: &ml.Model{Classifier: &stubClassifier{}}}, nil, Options{Scaler: config.ScalerArtifact})
	result, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.NoError(t, err)
	assert.Equal(t, config.ScalerRow, result.Scaler)
}

func TestClassifyDatasetScaler(t *testing.T) {
	low := make([]float64, 13)
	high := make([]float64, 13)
	for i := range high {
		high[i] = 70
	}
	svc := newService(t, staticModels{model: &ml.Model{Classifier: &stubClassifier{}}}, staticReference{low, high}, Options{Scaler: config.ScalerDataset})

	result, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.NoError(t, err)
	assert.Equal(t, config.ScalerDataset, result.Scaler)
	assert.InDelta(t, 0.5, result.Scaled[0], 1e-12)
}

func TestClassifyCachesPredictions(t *testing.T) {
	clf := &stubClassifier{label: 1}
	svc := newService(t, staticModels{model: &ml.Model{Classifier: clf, Version: "v1"}}, nil, Options{})

	for i := 0; i < 3; i++ {
		_, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, clf.calls)

	svc.Invalidate(nil)
	_, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.NoError(t, err)
	assert.Equal(t, 2, clf.calls)
}

func TestClassifyValidationError(t *testing.T) {
	svc := newService(t, staticModels{model: &ml.Model{Classifier: &stubClassifier{}}}, nil, Options{})
	m := ml.DefaultMeasurements()
	m.SerumSodium = 0

	_, err := svc.Classify(context.Background(), m)
	require.Error(t, err)
	appErr := apperr.From(err)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Contains(t, appErr.Details, "serum_sodium")
}

func TestClassifyModelMissing(t *testing.T) {
	svc := newService(t, artifact.NewHolder(), nil, Options{})

	_, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperr.StatusCode(err))
	assert.True(t, errors.Is(err, artifact.ErrModelMissing))
}

func TestClassifyRecordsHistory(t *testing.T) {
	require.NoError(t, db.InitDB(filepath.Join(t.TempDir(), "history.db")))
	defer db.Close()

	svc := newService(t, staticModels{model: &ml.Model{Classifier: &stubClassifier{label: 1}, Version: "v9"}}, nil, Options{RecordHistory: true})
	result, err := svc.Classify(context.Background(), ml.DefaultMeasurements())
	require.NoError(t, err)

	history, err := db.QueryPredictions(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.ID, history[0].ID)
	assert.Equal(t, "v9", history[0].ModelVersion)
	assert.Equal(t, 35.0, history[0].Features["age"])
}

func TestReportMatchesFeatures(t *testing.T) {
	svc := newService(t, artifact.NewHolder(), nil, Options{Locale: "en"})
	r, err := svc.Report(ml.DefaultMeasurements())
	require.NoError(t, err)

	want, err := ml.BuildFeatures(ml.DefaultMeasurements())
	require.NoError(t, err)
	got := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		got[i] = row.Value
	}
	if diff := cmp.Diff(ml.FeatureVector(want), got); diff != "" {
		t.Fatalf("report values mismatch (-want +got):\n%s", diff)
	}
}
