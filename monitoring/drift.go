package monitoring

import (
	"fmt"
	"math"
	"sync"
)

// DefaultDriftThreshold is the largest tolerated per-class share difference.
const DefaultDriftThreshold = 0.15

// DriftReport compares the live predicted-class distribution with the baseline.
type DriftReport struct {
	DriftDetected bool               `json:"drift_detected"`
	Message       string             `json:"message,omitempty"`
	MaxDrift      float64            `json:"max_drift"`
	Threshold     float64            `json:"drift_threshold"`
	Scores        map[string]float64 `json:"drift_scores,omitempty"`
	Baseline      map[string]float64 `json:"baseline_distribution,omitempty"`
	Current       map[string]float64 `json:"current_distribution,omitempty"`
}

// DriftMonitor counts predicted classes and flags drift when any baseline class share
// moves by more than the threshold.
type DriftMonitor struct {
	mu        sync.Mutex
	threshold float64
	baseline  map[string]float64
	current   map[string]int64
}

// NewDriftMonitor creates a monitor with no baseline. A non-positive threshold means
// DefaultDriftThreshold.
func NewDriftMonitor(threshold float64) *DriftMonitor {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	return &DriftMonitor{threshold: threshold, current: make(map[string]int64)}
}

// SetBaseline sets the expected distribution. Values may be counts or shares; they are
// normalized to sum to 1.
func (d *DriftMonitor) SetBaseline(dist map[string]float64) error {
	var total float64
	for class, v := range dist {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("baseline value for %q must be a non-negative number", class)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("baseline distribution is empty")
	}

	baseline := make(map[string]float64, len(dist))
	for class, v := range dist {
		baseline[class] = v / total
	}

	d.mu.Lock()
	d.baseline = baseline
	d.mu.Unlock()
	return nil
}

// Update counts one prediction of class.
func (d *DriftMonitor) Update(class string) {
	d.mu.Lock()
	d.current[class]++
	d.mu.Unlock()
}

// Check compares the current distribution with the baseline.
func (d *DriftMonitor) Check() DriftReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	report := DriftReport{Threshold: d.threshold}
	if d.baseline == nil {
		report.Message = "No baseline set"
		return report
	}

	var total int64
	for _, n := range d.current {
		total += n
	}
	if total == 0 {
		report.Message = "No predictions yet"
		return report
	}

	report.Current = make(map[string]float64, len(d.current))
	for class, n := range d.current {
		report.Current[class] = float64(n) / float64(total)
	}
	report.Baseline = make(map[string]float64, len(d.baseline))
	report.Scores = make(map[string]float64, len(d.baseline))
	for class, p := range d.baseline {
		report.Baseline[class] = p
		drift := math.Abs(p - report.Current[class])
		report.Scores[class] = drift
		if drift > report.MaxDrift {
			report.MaxDrift = drift
		}
	}
	report.DriftDetected = report.MaxDrift > d.threshold
	return report
}
