package ml

import "testing"

type constantClassifier int

func (c constantClassifier) Predict(features []float64) (int, float64, error) {
	return int(c), 1, nil
}

func TestSplitDataset(t *testing.T) {
	features := make([][]float64, 10)
	labels := make([]int, 10)
	for i := range features {
		features[i] = []float64{float64(i)}
		labels[i] = i % 2
	}
	trainX, trainY, testX, testY := SplitDataset(features, labels, 0.3, 7)
	if len(trainX) != 7 || len(trainY) != 7 {
		t.Fatalf("expected 7 training rows, got %d/%d", len(trainX), len(trainY))
	}
	if len(testX) != 3 || len(testY) != 3 {
		t.Fatalf("expected 3 test rows, got %d/%d", len(testX), len(testY))
	}
	for i, row := range trainX {
		if int(row[0])%2 != trainY[i] {
			t.Fatalf("feature/label pairing broken at %d", i)
		}
	}

	again, _, _, _ := SplitDataset(features, labels, 0.3, 7)
	for i := range again {
		if again[i][0] != trainX[i][0] {
			t.Fatal("same seed must give the same split")
		}
	}
}

func TestEvaluate(t *testing.T) {
	testX := [][]float64{{0}, {1}, {2}, {3}}
	testY := []int{1, 1, 0, 0}

	metrics, err := Evaluate(constantClassifier(1), testX, testY)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.Accuracy != 0.5 || metrics.Precision != 0.5 || metrics.Recall != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if metrics.DataPoints != 4 {
		t.Fatalf("expected 4 data points, got %d", metrics.DataPoints)
	}

	metrics, err = Evaluate(constantClassifier(0), testX, testY)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.Precision != 0 || metrics.Recall != 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}
