package monitoring

import (
	"sync"
	"time"
)

// Record is one successful prediction kept in the rolling history.
type Record struct {
	Class            string    `json:"class"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// Summary is the JSON document served by /stats.
type Summary struct {
	TotalPredictions        int64            `json:"total_predictions"`
	TotalErrors             int64            `json:"total_errors"`
	UptimeSeconds           float64          `json:"uptime_seconds"`
	PredictionsPerMinute    float64          `json:"predictions_per_minute"`
	ErrorRate               float64          `json:"error_rate"`
	ClassDistribution       map[string]int64 `json:"class_distribution"`
	AverageConfidence       float64          `json:"average_confidence"`
	AverageProcessingTimeMs float64          `json:"average_processing_time_ms"`
	MinProcessingTimeMs     float64          `json:"min_processing_time_ms"`
	MaxProcessingTimeMs     float64          `json:"max_processing_time_ms"`
	LastPredictionTime      *time.Time       `json:"last_prediction_time"`
	RecentPredictions       []Record         `json:"recent_predictions"`
}

// Collector keeps running totals and a bounded window of recent predictions. Averages,
// minimum and maximum are taken over the window; totals cover the process lifetime.
type Collector struct {
	mu          sync.Mutex
	total       int64
	errors      int64
	classes     map[string]int64
	history     *window[Record]
	start       time.Time
	last        time.Time
	recentLimit int
	now         func() time.Time
}

// NewCollector creates a collector keeping the last maxHistory predictions.
func NewCollector(maxHistory int) *Collector {
	return newCollectorAt(maxHistory, time.Now)
}

func newCollectorAt(maxHistory int, now func() time.Time) *Collector {
	return &Collector{
		classes:     make(map[string]int64),
		history:     newWindow[Record](maxHistory),
		start:       now(),
		recentLimit: 10,
		now:         now,
	}
}

// RecordPrediction adds a successful prediction.
func (c *Collector) RecordPrediction(class string, confidence, processingTimeMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = c.now()
	c.total++
	c.classes[class]++
	c.history.push(Record{
		Class:            class,
		Confidence:       confidence,
		ProcessingTimeMs: processingTimeMs,
		Timestamp:        c.last.UTC(),
	})
}

// RecordError counts a failed prediction request.
func (c *Collector) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

// Recent returns up to n of the latest predictions, oldest first.
func (c *Collector) Recent(n int) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recent(n)
}

func (c *Collector) recent(n int) []Record {
	all := c.history.values()
	if n >= 0 && n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

// Summary returns the current statistics.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	uptime := c.now().Sub(c.start).Seconds()
	s := Summary{
		TotalPredictions:  c.total,
		TotalErrors:       c.errors,
		UptimeSeconds:     uptime,
		ClassDistribution: make(map[string]int64, len(c.classes)),
		RecentPredictions: c.recent(c.recentLimit),
	}
	for k, v := range c.classes {
		s.ClassDistribution[k] = v
	}
	if uptime > 0 {
		s.PredictionsPerMinute = float64(c.total) / uptime * 60
	}
	denom := c.total
	if denom < 1 {
		denom = 1
	}
	s.ErrorRate = float64(c.errors) / float64(denom)

	if c.history.len() > 0 {
		var confSum, timeSum float64
		records := c.history.values()
		s.MinProcessingTimeMs = records[0].ProcessingTimeMs
		s.MaxProcessingTimeMs = records[0].ProcessingTimeMs
		for _, r := range records {
			confSum += r.Confidence
			timeSum += r.ProcessingTimeMs
			if r.ProcessingTimeMs < s.MinProcessingTimeMs {
				s.MinProcessingTimeMs = r.ProcessingTimeMs
			}
			if r.ProcessingTimeMs > s.MaxProcessingTimeMs {
				s.MaxProcessingTimeMs = r.ProcessingTimeMs
			}
		}
		s.AverageConfidence = confSum / float64(len(records))
		s.AverageProcessingTimeMs = timeSum / float64(len(records))
	}
	if !c.last.IsZero() {
		last := c.last.UTC()
		s.LastPredictionTime = &last
	}
	return s
}
