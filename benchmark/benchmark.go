// Package benchmark - Latency benchmarks and accuracy evaluation for a loaded classifier.
package benchmark

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/braintumor/inference"
)

// Predictor classifies one encoded image. *inference.Engine and *inference.Handle satisfy it.
type Predictor interface {
	Predict(ctx context.Context, data []byte) (*inference.Prediction, error)
}

// Scenario defines a specific test configuration.
type Scenario struct {
	Name        string `json:"name"`
	Iterations  int    `json:"iterations"`
	WarmupRuns  int    `json:"warmup_runs"`
	Concurrency int    `json:"concurrency"`
}

// LatencyStats summarizes per prediction wall-clock times in milliseconds.
type LatencyStats struct {
	Mean float64 `json:"mean_ms"`
	Min  float64 `json:"min_ms"`
	Max  float64 `json:"max_ms"`
	P50  float64 `json:"p50_ms"`
	P95  float64 `json:"p95_ms"`
	P99  float64 `json:"p99_ms"`
}

// MemoryMetrics captures memory usage statistics.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
}

// PerformanceMetrics captures detailed performance data.
type PerformanceMetrics struct {
	Scenario             Scenario         `json:"scenario"`
	Timestamp            time.Time        `json:"timestamp"`
	TotalDuration        time.Duration    `json:"total_duration"`
	PredictionsPerSecond float64          `json:"predictions_per_second"`
	Latency              LatencyStats     `json:"latency"`
	MemoryStats          MemoryMetrics    `json:"memory_stats"`
	NumCPU               int              `json:"num_cpu"`
	Errors               int              `json:"errors"`
	ErrorRate            float64          `json:"error_rate"`
	ClassCounts          map[string]int64 `json:"class_counts"`
}

// Run executes a scenario, cycling through inputs.
//
// Arguments:
//   - ctx: Cancels the run between predictions.
//   - p: The classifier under test.
//   - inputs: Encoded images.
//   - sc: Iterations, warmup runs and concurrency. Zero concurrency means one worker.
//
// Returns:
//   - *PerformanceMetrics: The measurements.
//   - error: An error if there is nothing to run or ctx is cancelled.
func Run(ctx context.Context, p Predictor, inputs [][]byte, sc Scenario) (*PerformanceMetrics, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no test images")
	}
	if sc.Iterations <= 0 {
		return nil, errors.Errorf("iterations must be positive, got %d", sc.Iterations)
	}
	if sc.Concurrency <= 0 {
		sc.Concurrency = 1
	}

	for i := 0; i < sc.WarmupRuns; i++ {
		_, _ = p.Predict(ctx, inputs[i%len(inputs)])
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	var (
		mu        sync.Mutex
		latencies = make([]float64, 0, sc.Iterations)
		counts    = make(map[string]int64)
		failures  int
		next      = make(chan int)
		wg        sync.WaitGroup
	)

	start := time.Now()
	for w := 0; w < sc.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				t0 := time.Now()
				pred, err := p.Predict(ctx, inputs[i%len(inputs)])
				took := float64(time.Since(t0)) / float64(time.Millisecond)

				mu.Lock()
				if err != nil {
					failures++
				} else {
					latencies = append(latencies, took)
					counts[pred.PredictedClass]++
				}
				mu.Unlock()
			}
		}()
	}

	var cancelled error
	for i := 0; i < sc.Iterations; i++ {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
		case next <- i:
		}
		if cancelled != nil {
			break
		}
	}
	close(next)
	wg.Wait()
	total := time.Since(start)

	if cancelled != nil {
		return nil, cancelled
	}

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	return &PerformanceMetrics{
		Scenario:             sc,
		Timestamp:            start,
		TotalDuration:        total,
		PredictionsPerSecond: float64(len(latencies)) / total.Seconds(),
		Latency:              summarize(latencies),
		MemoryStats: MemoryMetrics{
			AllocBytes:      endMem.Alloc,
			TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
			SysBytes:        endMem.Sys,
			NumGC:           endMem.NumGC - startMem.NumGC,
			HeapAllocBytes:  endMem.HeapAlloc,
		},
		NumCPU:      runtime.NumCPU(),
		Errors:      failures,
		ErrorRate:   float64(failures) / float64(sc.Iterations),
		ClassCounts: counts,
	}, nil
}

func summarize(ms []float64) LatencyStats {
	if len(ms) == 0 {
		return LatencyStats{}
	}
	sorted := append([]float64(nil), ms...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return LatencyStats{
		Mean: sum / float64(len(sorted)),
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
		P99:  percentile(sorted, 99),
	}
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
