package artifact

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"heartfail/logger"
	"heartfail/ml"
	"heartfail/monitoring"
)

// Watcher reloads the model into a Holder whenever the file at path is
// written or replaced. The parent directory is watched because downloads and
// editors replace the file by rename.
type Watcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	holder    *Holder
	path      string
	modelType string
	checksum  string
	debounce  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
}

// NewWatcher reloads path into holder. A non-empty checksum rejects any file
// whose digest differs.
func NewWatcher(path, modelType, checksum string, holder *Holder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:   fw,
		holder:    holder,
		path:      abs,
		modelType: modelType,
		checksum:  checksum,
		debounce:  250 * time.Millisecond,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.running = true
	go w.run(ctx)
	logger.Log.Info("watching model file", zap.String("path", w.path))
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		logger.Log.Warn("closing model watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Log.Warn("model watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	if err := VerifyChecksum(w.path, w.checksum); err != nil {
		monitoring.ModelReloads.WithLabelValues("checksum").Inc()
		logger.Log.Warn("model reload rejected, keeping previous model", zap.String("path", w.path), zap.Error(err))
		return
	}
	model, err := ml.LoadModel(w.modelType, w.path)
	if err != nil {
		monitoring.ModelReloads.WithLabelValues("error").Inc()
		logger.Log.Warn("model reload failed, keeping previous model", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.holder.Set(model)
	monitoring.ModelReloads.WithLabelValues("ok").Inc()
	logger.Log.Info("model reloaded", zap.String("version", model.Version))
}
