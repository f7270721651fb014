package benchmark

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/braintumor/util"
)

// Thresholds are the minimum scores a model needs before it is deployed.
type Thresholds struct {
	MinAccuracy  float64 `json:"min_accuracy"`
	MinPrecision float64 `json:"min_precision"`
	MinRecall    float64 `json:"min_recall"`
}

// DefaultThresholds returns the release gate used by cmd/validate.
func DefaultThresholds() Thresholds {
	return Thresholds{MinAccuracy: 0.95, MinPrecision: 0.93, MinRecall: 0.90}
}

// ClassScores holds the one-vs-rest scores of one class.
type ClassScores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation is the result of classifying a labelled dataset.
type Evaluation struct {
	Classes   []string               `json:"classes"`
	Total     int                    `json:"total"`
	Failed    int                    `json:"failed"`
	Accuracy  float64                `json:"accuracy"`
	Precision float64                `json:"precision"`
	Recall    float64                `json:"recall"`
	PerClass  map[string]ClassScores `json:"per_class"`
	// Confusion[i][j] counts images labelled Classes[i] predicted as Classes[j].
	Confusion [][]int `json:"confusion_matrix"`
}

// Evaluate classifies every labelled file and scores the predictions. Precision and recall
// are macro averages over classes. Files that fail to classify count as wrong.
//
// Arguments:
//   - ctx: Cancels the evaluation.
//   - p: The classifier under test.
//   - files: Images with Label set to one of classes.
//   - classes: The labels in model output order.
//
// Returns:
//   - *Evaluation: The scores.
//   - error: An error if a label is unknown or ctx is cancelled.
func Evaluate(ctx context.Context, p Predictor, files []util.ImageFile, classes []string) (*Evaluation, error) {
	if len(files) == 0 {
		return nil, errors.New("no labelled images")
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	ev := &Evaluation{
		Classes:   classes,
		Total:     len(files),
		PerClass:  make(map[string]ClassScores, len(classes)),
		Confusion: make([][]int, len(classes)),
	}
	for i := range ev.Confusion {
		ev.Confusion[i] = make([]int, len(classes))
	}

	support := make([]int, len(classes))
	correct := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		truth, ok := index[f.Label]
		if !ok {
			return nil, errors.Errorf("%s: unknown label %q", f.Path, f.Label)
		}
		support[truth]++

		pred, err := p.Predict(ctx, f.Data)
		if err != nil {
			ev.Failed++
			continue
		}
		got, ok := index[pred.PredictedClass]
		if !ok {
			ev.Failed++
			continue
		}
		ev.Confusion[truth][got]++
		if got == truth {
			correct++
		}
	}

	ev.Accuracy = float64(correct) / float64(len(files))

	var precisionSum, recallSum float64
	for i, c := range classes {
		tp := ev.Confusion[i][i]
		predicted := 0
		for r := range classes {
			predicted += ev.Confusion[r][i]
		}
		s := ClassScores{Support: support[i]}
		if predicted > 0 {
			s.Precision = float64(tp) / float64(predicted)
		}
		if support[i] > 0 {
			s.Recall = float64(tp) / float64(support[i])
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		ev.PerClass[c] = s
		precisionSum += s.Precision
		recallSum += s.Recall
	}
	ev.Precision = precisionSum / float64(len(classes))
	ev.Recall = recallSum / float64(len(classes))
	return ev, nil
}

// Check returns one message per threshold the evaluation misses.
func (e *Evaluation) Check(th Thresholds) []string {
	var failures []string
	if e.Accuracy < th.MinAccuracy {
		failures = append(failures, fmt.Sprintf("accuracy %.4f below %.2f", e.Accuracy, th.MinAccuracy))
	}
	if e.Precision < th.MinPrecision {
		failures = append(failures, fmt.Sprintf("precision %.4f below %.2f", e.Precision, th.MinPrecision))
	}
	if e.Recall < th.MinRecall {
		failures = append(failures, fmt.Sprintf("recall %.4f below %.2f", e.Recall, th.MinRecall))
	}
	return failures
}
