package ml

import (
	"errors"
	"fmt"
	"math/rand"
)

// BaggingEnsemble trains each tree on a bootstrap sample of the training set
// and predicts by majority vote.
type BaggingEnsemble struct {
	Estimators     int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           int64

	trees []*DecisionTree
}

func NewBaggingEnsemble(estimators, maxDepth int, seed int64) *BaggingEnsemble {
	return &BaggingEnsemble{
		Estimators:     estimators,
		MaxDepth:       maxDepth,
		MinSamplesLeaf: 1,
		Seed:           seed,
	}
}

func (b *BaggingEnsemble) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if b.Estimators <= 0 {
		b.Estimators = 10
	}

	rnd := rand.New(rand.NewSource(b.Seed))
	trees := make([]*DecisionTree, 0, b.Estimators)
	for i := 0; i < b.Estimators; i++ {
		sampleX := make([][]float64, len(features))
		sampleY := make([]int, len(labels))
		for j := range features {
			idx := rnd.Intn(len(features))
			sampleX[j] = features[idx]
			sampleY[j] = labels[idx]
		}
		tree := &DecisionTree{MaxDepth: b.MaxDepth, MinSamplesLeaf: b.MinSamplesLeaf}
		if err := tree.Train(sampleX, sampleY); err != nil {
			return fmt.Errorf("estimator %d: %w", i, err)
		}
		trees = append(trees, tree)
	}
	b.trees = trees
	return nil
}

// Predict returns the majority class and the share of trees that voted for it.
func (b *BaggingEnsemble) Predict(features []float64) (int, float64, error) {
	if len(b.trees) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	votes := make([]int, 0, len(b.trees))
	for i, tree := range b.trees {
		label, _, err := tree.Predict(features)
		if err != nil {
			return 0, 0, fmt.Errorf("estimator %d: %w", i, err)
		}
		votes = append(votes, label)
	}
	label, share := majorityLabel(votes)
	return label, share, nil
}

func (b *BaggingEnsemble) Trees() []*DecisionTree {
	return b.trees
}

func (b *BaggingEnsemble) SetTrees(trees []*DecisionTree) {
	b.trees = trees
	b.Estimators = len(trees)
}
