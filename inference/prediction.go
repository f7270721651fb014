package inference

import (
	"math"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
)

// Prediction is the result of classifying one image.
type Prediction struct {
	PredictedClass   string             `json:"predicted_class"`
	Confidence       float64            `json:"confidence"`
	Probabilities    map[string]float64 `json:"probabilities"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	PredictionID     string             `json:"prediction_id"`
	Timestamp        time.Time          `json:"timestamp"`
}

// NewPredictionID returns a unique identifier for a prediction.
func NewPredictionID() string {
	return "pred_" + uuid.NewString()
}

// Softmax turns raw scores into probabilities. The maximum is subtracted before
// exponentiation and the sum is accumulated in float64.
func Softmax(scores []float32) []float64 {
	if len(scores) == 0 {
		return nil
	}
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	exps := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		exps[i] = float64(math32.Exp(s - maxScore))
		sum += exps[i]
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// Argmax returns the index of the largest value. The first index wins a tie.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// finite reports whether every value is a real number.
func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// roundMillis converts d to milliseconds rounded to 2 decimals.
func roundMillis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
