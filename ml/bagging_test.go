package ml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableData() ([][]float64, []int) {
	var features [][]float64
	var labels []int
	for i := 0; i < 40; i++ {
		x := float64(i) / 40
		features = append(features, []float64{x, 1 - x})
		if x < 0.5 {
			labels = append(labels, 0)
		} else {
			labels = append(labels, 1)
		}
	}
	return features, labels
}

func TestBaggingEnsembleTrainPredict(t *testing.T) {
	features, labels := separableData()
	model := NewBaggingEnsemble(5, 3, 42)
	require.NoError(t, model.Train(features, labels))
	assert.Len(t, model.Trees(), 5)

	label, share, err := model.Predict([]float64{0.05, 0.95})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
	assert.Greater(t, share, 0.5)

	label, _, err = model.Predict([]float64{0.95, 0.05})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}

func TestBaggingEnsembleUntrained(t *testing.T) {
	_, _, err := (&BaggingEnsemble{}).Predict([]float64{1})
	assert.Error(t, err)
	assert.Error(t, (&BaggingEnsemble{}).Train(nil, nil))
}

func TestArtifactRoundTripThroughLoadModel(t *testing.T) {
	features, labels := separableData()
	rows := make([][]float64, len(features))
	for i, f := range features {
		row := make([]float64, len(FeatureNames()))
		copy(row, f)
		rows[i] = row
	}
	model := NewBaggingEnsemble(3, 2, 1)
	require.NoError(t, model.Train(rows, labels))

	scaler := &MinMaxScaler{}
	require.NoError(t, scaler.Fit(rows))
	artifact, err := NewArtifact(model, scaler.Stats(), &EvaluationMetrics{Accuracy: 1})
	require.NoError(t, err)
	assert.Equal(t, ModelTypeBagging, artifact.ModelType)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, SaveArtifact(path, artifact))

	loaded, err := LoadModel(ModelTypeBagging, path)
	require.NoError(t, err)
	assert.Equal(t, ModelTypeBagging, loaded.Type)
	assert.Len(t, loaded.Version, 12)
	require.NotNil(t, loaded.Scaler)
	assert.Equal(t, scaler.Stats().Max, loaded.Scaler.Max)

	probe := make([]float64, len(FeatureNames()))
	probe[0] = 0.9
	want, _, err := model.Predict(probe)
	require.NoError(t, err)
	got, _, err := loaded.Predict(probe)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadModelLegacyTree(t *testing.T) {
	tree := NewDecisionTree(2)
	require.NoError(t, tree.Train([][]float64{{1}, {2}, {8}, {9}}, []int{0, 0, 1, 1}))
	path := filepath.Join(t.TempDir(), "dt.model")
	require.NoError(t, tree.Save(path))

	model, err := LoadModel(ModelTypeDecisionTree, path)
	require.NoError(t, err)
	label, _, err := model.Predict([]float64{8.5})
	require.NoError(t, err)
	assert.Equal(t, 1, label)

	_, err = LoadModel(ModelTypeBagging, path)
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestDecodeModelRejectsBadArtifacts(t *testing.T) {
	cases := map[string]string{
		"no estimators":   `{"model_type":"bagging","estimators":[]}`,
		"unknown type":    `{"model_type":"svm","estimators":[[{"is_leaf":true}]]}`,
		"type mismatch":   `{"model_type":"decision_tree","estimators":[[{"is_leaf":true}]]}`,
		"feature width":   `{"model_type":"bagging","feature_names":["a"],"estimators":[[{"is_leaf":true}]]}`,
		"not json":        `pickle`,
		"empty estimator": `{"model_type":"bagging","estimators":[[]]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeModel(ModelTypeBagging, []byte(payload))
			assert.Error(t, err)
		})
	}
}
