// Package audit - Append-only prediction records written to files, Kafka and MySQL.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/inference"
	"github.com/nvr-ai/braintumor/zlog"
)

// Entry is one audited prediction.
type Entry struct {
	PredictionID     string    `json:"prediction_id"`
	PredictedClass   string    `json:"predicted_class"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	ModelVersion     string    `json:"model_version,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// FromPrediction builds the audit entry for p.
func FromPrediction(p *inference.Prediction, modelVersion string) Entry {
	return Entry{
		PredictionID:     p.PredictionID,
		PredictedClass:   p.PredictedClass,
		Confidence:       p.Confidence,
		ProcessingTimeMs: p.ProcessingTimeMs,
		ModelVersion:     modelVersion,
		Timestamp:        p.Timestamp,
	}
}

// Sink stores audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Multi fans an entry out to every sink.
type Multi []Sink

// Record writes e to every sink and returns the first failure after trying them all.
func (m Multi) Record(ctx context.Context, e Entry) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink and returns the first failure.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ErrQueueFull is returned by Async.Record when the buffer is full and the entry is dropped.
var ErrQueueFull = errors.New("audit queue full")

// Async records entries on a background goroutine so slow sinks do not hold up requests.
type Async struct {
	sink    Sink
	queue   chan Entry
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewAsync starts a worker writing to sink.
//
// Arguments:
//   - sink: The sink to write to.
//   - buffer: How many entries may wait before Record starts dropping them.
//   - timeout: Per entry deadline for the sink.
//
// Returns:
//   - *Async: The running dispatcher.
func NewAsync(sink Sink, buffer int, timeout time.Duration) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	a := &Async{sink: sink, queue: make(chan Entry, buffer), timeout: timeout}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Record(ctx, e); err != nil {
			zlog.Warn("audit record failed",
				zap.String("prediction_id", e.PredictionID), zap.Error(err))
		}
		cancel()
	}
}

// Record queues e without blocking.
func (a *Async) Record(_ context.Context, e Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errors.New("audit sink closed")
	}
	select {
	case a.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains the queue, then closes the sink.
func (a *Async) Close() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		a.wg.Wait()
		err = a.sink.Close()
	})
	return err
}
