package benchmark

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/braintumor/inference"
	"github.com/nvr-ai/braintumor/util"
)

var classes = []string{"glioma", "meningioma", "no_tumor", "pituitary"}

// echoPredictor predicts the class named by the input bytes; "error" fails.
type echoPredictor struct {
	calls atomic.Int64
}

func (e *echoPredictor) Predict(_ context.Context, data []byte) (*inference.Prediction, error) {
	e.calls.Add(1)
	if string(data) == "error" {
		return nil, errors.New("boom")
	}
	return &inference.Prediction{PredictedClass: string(data), Confidence: 1}, nil
}

func TestRun(t *testing.T) {
	p := &echoPredictor{}
	inputs := [][]byte{[]byte("glioma"), []byte("pituitary"), []byte("error"), []byte("glioma")}

	m, err := Run(context.Background(), p, inputs, Scenario{Name: "smoke", Iterations: 8, WarmupRuns: 2, Concurrency: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(10), p.calls.Load())
	assert.Equal(t, 2, m.Errors)
	assert.Equal(t, 0.25, m.ErrorRate)
	assert.Equal(t, map[string]int64{"glioma": 4, "pituitary": 2}, m.ClassCounts)
	assert.LessOrEqual(t, m.Latency.Min, m.Latency.P50)
	assert.LessOrEqual(t, m.Latency.P50, m.Latency.P95)
	assert.LessOrEqual(t, m.Latency.P99, m.Latency.Max)
	assert.Greater(t, m.NumCPU, 0)
}

func TestRunValidation(t *testing.T) {
	_, err := Run(context.Background(), &echoPredictor{}, nil, Scenario{Iterations: 1})
	assert.Error(t, err)
	_, err = Run(context.Background(), &echoPredictor{}, [][]byte{[]byte("glioma")}, Scenario{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, &echoPredictor{}, [][]byte{[]byte("glioma")}, Scenario{Iterations: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 5.0, percentile(sorted, 50))
	assert.Equal(t, 10.0, percentile(sorted, 95))
	assert.Equal(t, 1.0, percentile(sorted, 0))

	s := summarize([]float64{4, 2})
	assert.Equal(t, 3.0, s.Mean)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, LatencyStats{}, summarize(nil))
}

func file(label, predicted string) util.ImageFile {
	return util.ImageFile{Path: label + "/" + predicted, Label: label, Data: []byte(predicted)}
}

func TestEvaluate(t *testing.T) {
	files := []util.ImageFile{
		file("glioma", "glioma"),
		file("glioma", "glioma"),
		file("glioma", "meningioma"),
		file("meningioma", "meningioma"),
		file("no_tumor", "no_tumor"),
		file("pituitary", "pituitary"),
		file("pituitary", "error"),
	}

	ev, err := Evaluate(context.Background(), &echoPredictor{}, files, classes)
	require.NoError(t, err)

	assert.Equal(t, 7, ev.Total)
	assert.Equal(t, 1, ev.Failed)
	assert.InDelta(t, 5.0/7.0, ev.Accuracy, 1e-12)
	assert.Equal(t, 2, ev.Confusion[0][0])
	assert.Equal(t, 1, ev.Confusion[0][1])

	gl := ev.PerClass["glioma"]
	assert.Equal(t, 3, gl.Support)
	assert.Equal(t, 1.0, gl.Precision)
	assert.InDelta(t, 2.0/3.0, gl.Recall, 1e-12)

	men := ev.PerClass["meningioma"]
	assert.Equal(t, 0.5, men.Precision)
	assert.Equal(t, 1.0, men.Recall)

	pit := ev.PerClass["pituitary"]
	assert.Equal(t, 1.0, pit.Precision)
	assert.Equal(t, 0.5, pit.Recall)

	// Macro averages: precision (1 + .5 + 1 + 1) / 4, recall (2/3 + 1 + 1 + .5) / 4.
	assert.InDelta(t, 0.875, ev.Precision, 1e-12)
	assert.InDelta(t, (2.0/3.0+2.5)/4, ev.Recall, 1e-12)

	failures := ev.Check(DefaultThresholds())
	assert.Len(t, failures, 3)
	assert.Empty(t, ev.Check(Thresholds{MinAccuracy: 0.7, MinPrecision: 0.8, MinRecall: 0.75}))
}

func TestEvaluateErrors(t *testing.T) {
	_, err := Evaluate(context.Background(), &echoPredictor{}, nil, classes)
	assert.Error(t, err)

	_, err = Evaluate(context.Background(), &echoPredictor{}, []util.ImageFile{file("cat", "glioma")}, classes)
	assert.Error(t, err)
}
