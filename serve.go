package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"heartfail/apperr"
	"heartfail/artifact"
	"heartfail/classify"
	"heartfail/config"
	"heartfail/dataset"
	"heartfail/db"
	qhttp "heartfail/http"
	"heartfail/logger"
	"heartfail/ml"
	"heartfail/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web form, JSON API and live websocket",
	RunE:  runServe,
}

// services is everything a running process shares between commands.
type services struct {
	holder    *artifact.Holder
	reference *dataset.Reference
	service   *classify.Service
}

// bootstrap fetches the model and warms the dataset cache concurrently. A
// missing model is not fatal: the holder keeps the error and classification
// answers 503 until a model appears.
func bootstrap(ctx context.Context, cfg *config.Config, recordHistory bool) (*services, error) {
	client := &http.Client{Timeout: cfg.Model.FetchTimeout}
	holder := artifact.NewHolder()
	loader := dataset.NewLoader(client, cfg.Dataset.CacheTTL)
	reference := loader.Reference(cfg.Dataset.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		model, err := artifact.Prepare(gctx, artifact.Options{
			Source:  cfg.Model.URL,
			Path:    cfg.Model.Path,
			Type:    cfg.Model.Type,
			SHA256:  cfg.Model.SHA256,
			Timeout: cfg.Model.FetchTimeout,
			Client:  client,
		})
		if err != nil {
			logger.Log.Error(apperr.ModelUnavailable(err).Message, zap.Error(err))
			holder.Fail(err)
			return nil
		}
		holder.Set(model)
		return nil
	})
	g.Go(func() error {
		if cfg.Dataset.URL == "" {
			return nil
		}
		start := time.Now()
		ds, err := reference.Dataset(gctx)
		monitoring.ObserveFetch("dataset", time.Since(start), err)
		if err != nil {
			if cfg.ML.Scaler == config.ScalerDataset {
				logger.Log.Warn("dataset unavailable, scaler will fit on the input row", zap.Error(err))
			} else {
				logger.Log.Warn("dataset unavailable", zap.Error(err))
			}
			return nil
		}
		logger.Log.Info("dataset loaded", zap.String("source", ds.Source), zap.Int("rows", ds.Len()))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ref classify.ReferenceData
	if cfg.Dataset.URL != "" {
		ref = reference
	}
	service, err := classify.NewService(holder, ref, classify.Options{
		Scaler:        cfg.ML.Scaler,
		CacheSize:     cfg.ML.CacheSize,
		Locale:        cfg.Locale,
		RecordHistory: recordHistory,
	})
	if err != nil {
		return nil, err
	}
	holder.Subscribe(service.Invalidate)
	return &services{holder: holder, reference: reference, service: service}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history := cfg.Database.Path != ""
	if history {
		if err := db.InitDB(cfg.Database.Path); err != nil {
			return err
		}
		defer db.Close()
		logger.Log.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	svc, err := bootstrap(ctx, cfg, history)
	if err != nil {
		return err
	}

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	})
	qhttp.SetClassifier(svc.service)
	qhttp.SetModelStatus(svc.holder)
	qhttp.SetPageSize(cfg.Dataset.PageSize)
	if cfg.Dataset.URL != "" {
		qhttp.SetDatasetSource(svc.reference)
	}
	svc.holder.Subscribe(func(m *ml.Model) { server.Hub().NotifyModel(m) })

	if cfg.Model.Watch {
		watcher, err := artifact.NewWatcher(cfg.Model.Path, cfg.Model.Type, cfg.Model.SHA256, svc.holder)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Log.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Log.Info("exiting")
	return nil
}
