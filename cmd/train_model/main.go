package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"heartfail/config"
	"heartfail/dataset"
	"heartfail/db"
	"heartfail/logger"
	"heartfail/ml"
)

type trainOptions struct {
	Dataset    string
	ModelPath  string
	ModelType  string
	Estimators int
	MaxDepth   int
	MinLeaf    int
	TestRatio  float64
	Seed       int64
	DBPath     string
	Timeout    time.Duration
}

var opts trainOptions

var rootCmd = &cobra.Command{
	Use:          "train_model",
	Short:        "Train the heart failure classifier and write a model artifact",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		if err := logger.Init(logger.Config{Level: level, Format: "console"}); err != nil {
			return err
		}
		defer logger.Sync()

		ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
		defer cancel()

		artifact, err := train(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "model saved to %s (accuracy=%.3f precision=%.3f recall=%.3f)\n",
			opts.ModelPath, artifact.Metrics.Accuracy, artifact.Metrics.Precision, artifact.Metrics.Recall)
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.Dataset, "dataset", config.DefaultDatasetURL, "Training CSV (URL or local path)")
	f.StringVar(&opts.ModelPath, "model-path", config.DefaultModelURL, "Artifact output path")
	f.StringVar(&opts.ModelType, "model-type", ml.ModelTypeBagging, "bagging or decision_tree")
	f.IntVar(&opts.Estimators, "estimators", 10, "Trees in the bagging ensemble")
	f.IntVar(&opts.MaxDepth, "max-depth", 8, "Maximum tree depth")
	f.IntVar(&opts.MinLeaf, "min-samples-leaf", 1, "Minimum samples per leaf")
	f.Float64Var(&opts.TestRatio, "test-ratio", 0.2, "Share of rows held out for evaluation")
	f.Int64Var(&opts.Seed, "seed", 42, "Random seed for the split and bootstrap samples")
	f.StringVar(&opts.DBPath, "db", "heartfail.db", "SQLite database for the training log (empty to skip)")
	f.DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "Overall timeout including the dataset download")
	f.String("log-level", "info", "Log level")
}

// train fits the scaler on the training split only, so evaluation sees
// the same transform the server applies to unseen form input.
func train(ctx context.Context, o trainOptions) (ml.Artifact, error) {
	ds, err := dataset.Fetch(ctx, &http.Client{Timeout: o.Timeout}, o.Dataset)
	if err != nil {
		return ml.Artifact{}, fmt.Errorf("load dataset: %w", err)
	}
	labels, err := ds.Labels()
	if err != nil {
		return ml.Artifact{}, err
	}
	if ds.Len() < 2 {
		return ml.Artifact{}, errors.New("dataset needs at least two rows")
	}
	logger.Log.Info("dataset loaded", zap.String("source", o.Dataset), zap.Int("rows", ds.Len()))

	trainX, trainY, testX, testY := ml.SplitDataset(ds.FeatureMatrix(), labels, o.TestRatio, o.Seed)

	scaler := &ml.MinMaxScaler{}
	trainScaled, err := scaler.FitTransform(trainX)
	if err != nil {
		return ml.Artifact{}, fmt.Errorf("fit scaler: %w", err)
	}
	testScaled, err := scaler.Transform(testX)
	if err != nil {
		return ml.Artifact{}, fmt.Errorf("scale test rows: %w", err)
	}

	var classifier interface {
		ml.Classifier
		Train([][]float64, []int) error
	}
	switch o.ModelType {
	case ml.ModelTypeBagging:
		ensemble := ml.NewBaggingEnsemble(o.Estimators, o.MaxDepth, o.Seed)
		ensemble.MinSamplesLeaf = o.MinLeaf
		classifier = ensemble
	case ml.ModelTypeDecisionTree:
		tree := ml.NewDecisionTree(o.MaxDepth)
		tree.MinSamplesLeaf = o.MinLeaf
		classifier = tree
	default:
		return ml.Artifact{}, fmt.Errorf("%w: %q", ml.ErrUnsupportedModel, o.ModelType)
	}
	if err := classifier.Train(trainScaled, trainY); err != nil {
		return ml.Artifact{}, fmt.Errorf("train: %w", err)
	}

	metrics, err := ml.Evaluate(classifier, testScaled, testY)
	if err != nil {
		return ml.Artifact{}, fmt.Errorf("evaluate: %w", err)
	}
	logger.Log.Info("model evaluated",
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("recall", metrics.Recall),
		zap.Int("test_rows", metrics.DataPoints))

	artifact, err := ml.NewArtifact(classifier, scaler.Stats(), &metrics)
	if err != nil {
		return ml.Artifact{}, err
	}
	if dir := filepath.Dir(o.ModelPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ml.Artifact{}, err
		}
	}
	if err := ml.SaveArtifact(o.ModelPath, artifact); err != nil {
		return ml.Artifact{}, fmt.Errorf("save artifact: %w", err)
	}
	model, err := ml.LoadModel(artifact.ModelType, o.ModelPath)
	if err != nil {
		return ml.Artifact{}, fmt.Errorf("reload artifact: %w", err)
	}

	if o.DBPath != "" {
		if err := recordTraining(o.DBPath, artifact, model.Version, ds.Len()); err != nil {
			logger.Log.Warn("training log not written", zap.Error(err))
		}
	}
	return artifact, nil
}

func recordTraining(path string, artifact ml.Artifact, version string, rows int) error {
	if err := db.InitDB(path); err != nil {
		return err
	}
	defer db.Close()
	return db.SaveTrainingLog(db.TrainingLog{
		ModelName:    artifact.ModelType,
		ModelVersion: version,
		Accuracy:     artifact.Metrics.Accuracy,
		Precision:    artifact.Metrics.Precision,
		Recall:       artifact.Metrics.Recall,
		TrainedAt:    artifact.TrainedAt,
		DataPoints:   rows,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
