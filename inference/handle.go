package inference

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/zlog"
)

// ErrModelNotLoaded is returned by a Handle that holds no engine.
var ErrModelNotLoaded = errors.New("model not loaded")

// Loader builds a fresh engine.
type Loader func(ctx context.Context) (*Engine, error)

// ModelLoader returns a Loader that loads args through the model registry.
func ModelLoader(args model.NewModelArgs) Loader {
	return func(ctx context.Context) (*Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewEngineBuilder().WithModelArgs(args).Build()
	}
}

// Handle owns the engine serving requests. Predictions hold a read lock for their whole
// run, so an engine replaced by Reload is only closed once no request is using it.
type Handle struct {
	mu        sync.RWMutex
	engine    *Engine
	loader    Loader
	version   string
	loadedAt  time.Time
	lastErr   error
	observers []func(ready bool)
}

// NewHandle creates an empty handle. Nothing is loaded until Load is called.
//
// Arguments:
//   - loader: Builds the engine on Load and Reload.
//   - version: Reported until a loaded model supplies its own.
//
// Returns:
//   - *Handle: The handle.
func NewHandle(loader Loader, version string) *Handle {
	return &Handle{loader: loader, version: version}
}

// OnChange registers fn to be called with the readiness after every Load or Reload.
func (h *Handle) OnChange(fn func(ready bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Load builds the engine if none is loaded yet. A failure is logged, remembered for
// LastError and returned; the handle stays not ready.
func (h *Handle) Load(ctx context.Context) error {
	h.mu.RLock()
	loaded := h.engine != nil
	h.mu.RUnlock()
	if loaded {
		return nil
	}
	return h.swap(ctx, "load")
}

// Reload builds a new engine and swaps it in. On failure the current engine, if any,
// keeps serving.
func (h *Handle) Reload(ctx context.Context) error {
	return h.swap(ctx, "reload")
}

func (h *Handle) swap(ctx context.Context, op string) error {
	start := time.Now()
	next, err := h.loader(ctx)

	h.mu.Lock()
	if err != nil {
		h.lastErr = err
		ready := h.engine != nil
		observers := h.observers
		h.mu.Unlock()

		zlog.Error("model "+op+" failed", zap.Error(err), zap.Bool("still_serving", ready))
		notify(observers, ready)
		return errors.Wrapf(err, "model %s failed", op)
	}

	prev := h.engine
	h.engine = next
	h.loadedAt = time.Now()
	h.lastErr = nil
	opts := next.Model().Options()
	if opts.Version != "" {
		h.version = opts.Version
	}
	observers := h.observers
	h.mu.Unlock()

	zlog.Info("model "+op+" complete",
		zap.String("backend", string(opts.Name)),
		zap.String("path", opts.Path),
		zap.String("version", h.Version()),
		zap.String("device", opts.Device),
		zap.Duration("took", time.Since(start)))
	notify(observers, true)

	if prev != nil {
		if err := prev.Close(); err != nil {
			zlog.Warn("closing previous model failed", zap.Error(err))
		}
	}
	return nil
}

func notify(observers []func(bool), ready bool) {
	for _, fn := range observers {
		fn(ready)
	}
}

// Ready reports whether an engine is loaded.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine != nil
}

// Version is the loaded model's version, or the configured one.
func (h *Handle) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// LoadedAt is when the current engine was swapped in; zero if never.
func (h *Handle) LoadedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadedAt
}

// Uptime is the time since the current engine was loaded; zero if none is.
func (h *Handle) Uptime() time.Duration {
	loadedAt := h.LoadedAt()
	if loadedAt.IsZero() {
		return 0
	}
	return time.Since(loadedAt)
}

// LastError is the most recent load failure, cleared by a successful load.
func (h *Handle) LastError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}

// Options describes the loaded model.
func (h *Handle) Options() (model.BaseModel, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.engine == nil {
		return model.BaseModel{}, ErrModelNotLoaded
	}
	return h.engine.Model().Options(), nil
}

// Predict classifies one image with the current engine.
func (h *Handle) Predict(ctx context.Context, data []byte) (*Prediction, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.engine == nil {
		return nil, ErrModelNotLoaded
	}
	return h.engine.Predict(ctx, data)
}

// PredictBatch classifies several images with the current engine.
func (h *Handle) PredictBatch(ctx context.Context, inputs [][]byte) ([]*Prediction, []error, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.engine == nil {
		return nil, nil, ErrModelNotLoaded
	}
	preds, errs := h.engine.PredictBatch(ctx, inputs)
	return preds, errs, nil
}

// Close releases the current engine. The handle is not ready afterwards.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		return nil
	}
	err := h.engine.Close()
	h.engine = nil
	return err
}
