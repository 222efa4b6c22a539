package ml

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrUnsupportedModel = errors.New("unsupported model type")

// Artifact is the on-disk model format.
type Artifact struct {
	ModelType    string             `json:"model_type"`
	Version      string             `json:"version,omitempty"`
	FeatureNames []string           `json:"feature_names"`
	Classes      []int              `json:"classes"`
	Scaler       *ScalerStats       `json:"scaler,omitempty"`
	Estimators   [][]TreeNode       `json:"estimators"`
	TrainedAt    time.Time          `json:"trained_at"`
	Metrics      *EvaluationMetrics `json:"metrics,omitempty"`
}

func LoadModel(modelType, path string) (*Model, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeModel(modelType, payload)
}

// DecodeModel accepts a full Artifact, or for decision_tree the bare node
// array written by DecisionTree.Save.
func DecodeModel(modelType string, payload []byte) (*Model, error) {
	sum := sha256.Sum256(payload)
	version := hex.EncodeToString(sum[:])[:12]

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if modelType != ModelTypeDecisionTree {
			return nil, fmt.Errorf("%w: bare node list for %q", ErrUnsupportedModel, modelType)
		}
		var nodes []TreeNode
		if err := json.Unmarshal(trimmed, &nodes); err != nil {
			return nil, fmt.Errorf("decode tree: %w", err)
		}
		if len(nodes) == 0 {
			return nil, errors.New("tree has no nodes")
		}
		tree := &DecisionTree{}
		tree.SetNodes(nodes)
		return &Model{Classifier: tree, Type: ModelTypeDecisionTree, Version: version}, nil
	}

	var artifact Artifact
	if err := json.Unmarshal(trimmed, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if artifact.ModelType == "" {
		artifact.ModelType = modelType
	}
	if modelType != "" && artifact.ModelType != modelType {
		return nil, fmt.Errorf("artifact is %q, configured %q", artifact.ModelType, modelType)
	}
	if len(artifact.Estimators) == 0 {
		return nil, errors.New("artifact has no estimators")
	}
	if artifact.Version != "" {
		version = artifact.Version
	}
	if len(artifact.FeatureNames) > 0 && len(artifact.FeatureNames) != len(FeatureNames()) {
		return nil, fmt.Errorf("artifact expects %d features, form produces %d", len(artifact.FeatureNames), len(FeatureNames()))
	}
	if artifact.Scaler != nil && len(artifact.Scaler.Min) != len(FeatureNames()) {
		return nil, errors.New("artifact scaler width does not match feature row")
	}

	trees := make([]*DecisionTree, len(artifact.Estimators))
	for i, nodes := range artifact.Estimators {
		if len(nodes) == 0 {
			return nil, fmt.Errorf("estimator %d has no nodes", i)
		}
		tree := &DecisionTree{}
		tree.SetNodes(nodes)
		trees[i] = tree
	}

	model := &Model{
		Type:         artifact.ModelType,
		Version:      version,
		FeatureNames: artifact.FeatureNames,
		Scaler:       artifact.Scaler,
		TrainedAt:    artifact.TrainedAt,
		Metrics:      artifact.Metrics,
	}
	switch artifact.ModelType {
	case ModelTypeDecisionTree:
		if len(trees) != 1 {
			return nil, fmt.Errorf("decision_tree artifact has %d estimators", len(trees))
		}
		model.Classifier = trees[0]
	case ModelTypeBagging:
		ensemble := &BaggingEnsemble{}
		ensemble.SetTrees(trees)
		model.Classifier = ensemble
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, artifact.ModelType)
	}
	return model, nil
}

func SaveArtifact(path string, artifact Artifact) error {
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// NewArtifact captures a trained classifier in the on-disk format.
func NewArtifact(classifier Classifier, scaler *ScalerStats, metrics *EvaluationMetrics) (Artifact, error) {
	artifact := Artifact{
		FeatureNames: FeatureNames(),
		Classes:      []int{0, 1},
		Scaler:       scaler,
		TrainedAt:    time.Now().UTC(),
		Metrics:      metrics,
	}
	switch c := classifier.(type) {
	case *DecisionTree:
		artifact.ModelType = ModelTypeDecisionTree
		artifact.Estimators = [][]TreeNode{c.Nodes()}
	case *BaggingEnsemble:
		artifact.ModelType = ModelTypeBagging
		for _, tree := range c.Trees() {
			artifact.Estimators = append(artifact.Estimators, tree.Nodes())
		}
	default:
		return Artifact{}, fmt.Errorf("%w: %T", ErrUnsupportedModel, classifier)
	}
	if len(artifact.Estimators) == 0 || len(artifact.Estimators[0]) == 0 {
		return Artifact{}, errors.New("model not trained")
	}
	return artifact, nil
}
