// Package classifier wraps the pretrained spectrogram image classifier.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInference wraps failures while running the model on one image.
var ErrInference = errors.New("classifier inference failed")

// Classifier maps a spectrogram image to a label and per-label probabilities.
type Classifier interface {
	// Labels returns the model's fixed label order.
	Labels() []string
	Classify(ctx context.Context, img image.Image) (*Result, error)
}

// LabelProb is one entry of the probability vector.
type LabelProb struct {
	Label string  `json:"label"`
	Prob  float64 `json:"probability"`
}

// Result is a classification outcome. Label is always the argmax of
// Probabilities, which are ordered like Classifier.Labels and sum to 1.
type Result struct {
	Label         string      `json:"label"`
	Index         int         `json:"index"`
	Probabilities []LabelProb `json:"probabilities"`
}

// Confidence returns the probability of the predicted label.
func (r *Result) Confidence() float64 {
	if r == nil || r.Index < 0 || r.Index >= len(r.Probabilities) {
		return 0
	}
	return r.Probabilities[r.Index].Prob
}

// NewResult pairs probs with labels and picks the argmax; ties go to the
// lowest index.
func NewResult(labels []string, probs []float64) (*Result, error) {
	if len(labels) == 0 {
		return nil, errors.New("no labels")
	}
	if len(probs) != len(labels) {
		return nil, fmt.Errorf("model produced %d scores for %d labels", len(probs), len(labels))
	}
	out := &Result{Index: -1, Probabilities: make([]LabelProb, len(labels))}
	best := math.Inf(-1)
	for i, p := range probs {
		out.Probabilities[i] = LabelProb{Label: labels[i], Prob: p}
		if p > best {
			best = p
			out.Index = i
		}
	}
	if out.Index < 0 {
		return nil, errors.New("no finite scores")
	}
	out.Label = labels[out.Index]
	return out, nil
}

// Softmax converts logits to probabilities.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	max := math.Inf(-1)
	for _, v := range logits {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - max)
		if math.IsNaN(e) {
			e = 0
		}
		out[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) {
		return uniform(len(logits))
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Normalize rescales non-negative scores so they sum to 1. Negative and NaN
// scores count as 0; an all-zero vector becomes uniform.
func Normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	var sum float64
	for i, v := range scores {
		if math.IsNaN(v) || v < 0 || math.IsInf(v, 0) {
			v = 0
		}
		out[i] = v
		sum += v
	}
	if sum == 0 {
		return uniform(len(scores))
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}
