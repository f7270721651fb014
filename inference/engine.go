// Package inference - Turns uploaded images into class predictions and owns the loaded model.
package inference

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/models"
	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/models/model/preprocess"
	"github.com/nvr-ai/braintumor/zlog"
)

// ErrInferenceFailed is returned when the model fails or produces unusable scores.
var ErrInferenceFailed = errors.New("inference failed")

// Engine runs preprocessing, the model forward pass and the softmax for one model. It is
// safe for concurrent use when the model is.
type Engine struct {
	model        model.Model
	meta         *model.Metadata
	preprocessor *preprocess.Preprocessor
	classes      *models.OutputClassSet
	now          func() time.Time
}

// EngineBuilder builds an Engine with a fluent API.
type EngineBuilder struct {
	model     model.Model
	meta      *model.Metadata
	maxPixels int64
	now       func() time.Time
	err       error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{now: time.Now}
}

// WithModelArgs resolves metadata and loads a model through the registry.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModelArgs(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if args.Metadata == nil {
		meta, err := model.LoadMetadata(args.MetadataPath, args.ImageSize)
		if err != nil {
			b.err = err
			return b
		}
		args.Metadata = meta
	}
	m, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.model = m
	b.meta = args.Metadata
	b.maxPixels = args.MaxPixels
	return b
}

// WithModel uses an already loaded model.
func (b *EngineBuilder) WithModel(m model.Model) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.model = m
	return b
}

// WithMetadata sets the preprocessing statistics and shapes. Without it the engine uses
// the defaults sized to the model's input shape.
func (b *EngineBuilder) WithMetadata(meta *model.Metadata) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.meta = meta
	return b
}

// WithMaxPixels bounds width*height of inputs before they are decoded. Zero keeps the
// images package default.
func (b *EngineBuilder) WithMaxPixels(n int64) *EngineBuilder {
	b.maxPixels = n
	return b
}

// WithClock replaces time.Now, for tests.
func (b *EngineBuilder) WithClock(now func() time.Time) *EngineBuilder {
	b.now = now
	return b
}

// HasError checks if the engine builder has errors.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the engine.
//
// Returns:
//   - *Engine: The engine.
//   - error: The first error from the builder chain, or a configuration error.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.New("model not configured")
	}

	opts := b.model.Options()
	meta := b.meta
	if meta == nil {
		size := model.DefaultImageSize
		if len(opts.InputShape) == 4 {
			size = int(opts.InputShape[3])
		}
		meta = model.DefaultMetadata(size)
		if len(opts.Classes) > 0 {
			meta.Classes = opts.Classes
		}
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	classes, err := models.NewOutputClassSet(meta.Classes)
	if err != nil {
		return nil, err
	}
	preCfg := preprocess.GetClassifierConfig(meta)
	preCfg.MaxPixels = b.maxPixels
	pre, err := preprocess.NewPreprocessor(preCfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		model:        b.model,
		meta:         meta,
		preprocessor: pre,
		classes:      classes,
		now:          b.now,
	}, nil
}

// Model returns the wrapped model.
func (e *Engine) Model() model.Model {
	return e.model
}

// Classes returns the labels in model output order.
func (e *Engine) Classes() []string {
	return e.classes.Labels()
}

// Predict classifies one encoded image.
//
// Arguments:
//   - ctx: The request context.
//   - data: The encoded image bytes.
//
// Returns:
//   - *Prediction: The prediction.
//   - error: preprocess.ErrInvalidImage or preprocess.ErrImageTooLarge (wrapped) for bad
//     input, ErrInferenceFailed (wrapped) for model failures.
func (e *Engine) Predict(ctx context.Context, data []byte) (*Prediction, error) {
	start := e.now()

	pre, err := e.preprocessor.Preprocess(data)
	if err != nil {
		return nil, err
	}
	return e.classify(ctx, pre.Data, start)
}

// PredictTensor classifies an already preprocessed tensor.
func (e *Engine) PredictTensor(ctx context.Context, tensor []float32) (*Prediction, error) {
	return e.classify(ctx, tensor, e.now())
}

// PredictBatch classifies several images. Preprocessing runs in parallel; failures are
// reported per item and do not stop the rest.
//
// Arguments:
//   - ctx: The request context.
//   - inputs: The encoded images.
//
// Returns:
//   - []*Prediction: One result per input, nil where it failed.
//   - []error: One error per input, nil where it succeeded.
func (e *Engine) PredictBatch(ctx context.Context, inputs [][]byte) ([]*Prediction, []error) {
	start := e.now()
	results, errs := e.preprocessor.BatchPreprocess(inputs, runtime.NumCPU())

	preds := make([]*Prediction, len(inputs))
	for i, pre := range results {
		if errs[i] != nil {
			continue
		}
		preds[i], errs[i] = e.classify(ctx, pre.Data, start)
	}
	return preds, errs
}

func (e *Engine) classify(ctx context.Context, tensor []float32, start time.Time) (*Prediction, error) {
	scores, err := e.model.Forward(ctx, tensor)
	if err != nil {
		return nil, errors.Wrap(ErrInferenceFailed, err.Error())
	}
	if len(scores) != e.classes.Len() {
		return nil, errors.Wrap(ErrInferenceFailed,
			fmt.Sprintf("model returned %d scores for %d classes", len(scores), e.classes.Len()))
	}

	probs := Softmax(scores)
	if !finite(probs) {
		return nil, errors.Wrap(ErrInferenceFailed, "model returned non-finite scores")
	}

	best := Argmax(probs)
	predicted, err := e.classes.GetName(best)
	if err != nil {
		return nil, errors.Wrap(ErrInferenceFailed, err.Error())
	}
	probabilities := make(map[string]float64, len(probs))
	for i, p := range probs {
		probabilities[e.classes.Classes[i].Name] = p
	}

	end := e.now()
	pred := &Prediction{
		PredictedClass:   predicted,
		Confidence:       probs[best],
		Probabilities:    probabilities,
		ProcessingTimeMs: roundMillis(end.Sub(start)),
		PredictionID:     NewPredictionID(),
		Timestamp:        end.UTC(),
	}

	zlog.Debug("prediction",
		zap.String("prediction_id", pred.PredictionID),
		zap.String("class", pred.PredictedClass),
		zap.Float64("confidence", pred.Confidence),
		zap.Float64("processing_time_ms", pred.ProcessingTimeMs))
	return pred, nil
}

// Close releases the model.
func (e *Engine) Close() error {
	return e.model.Close()
}
