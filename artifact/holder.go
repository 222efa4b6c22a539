package artifact

import (
	"sync"

	"heartfail/ml"
	"heartfail/monitoring"
)

// Holder is the model currently serving requests. Set swaps it atomically and
// notifies subscribers, which the classify service uses to drop its cache.
type Holder struct {
	mu        sync.RWMutex
	model     *ml.Model
	loadErr   error
	listeners []func(*ml.Model)
}

func NewHolder() *Holder {
	return &Holder{loadErr: ErrModelMissing}
}

func (h *Holder) Get() (*ml.Model, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.model == nil {
		return nil, h.loadErr
	}
	return h.model, nil
}

// Set installs model. A nil model is ignored so Get keeps reporting why none
// is loaded.
func (h *Holder) Set(model *ml.Model) {
	if model == nil {
		return
	}
	h.mu.Lock()
	h.model = model
	h.loadErr = nil
	listeners := append([]func(*ml.Model){}, h.listeners...)
	h.mu.Unlock()

	monitoring.SetModelLoaded(true)
	for _, fn := range listeners {
		fn(model)
	}
}

// Fail records why no model is available. An already loaded model stays in place.
func (h *Holder) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		h.loadErr = err
	}
}

func (h *Holder) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model != nil
}

func (h *Holder) Subscribe(fn func(*ml.Model)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}
