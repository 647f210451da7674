package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// Fake is a deterministic classifier used by the mock backend and tests.
// Without Scores it derives probabilities from the mean brightness of the
// image so different spectrograms yield different labels.
type Fake struct {
	labels []string

	mu     sync.Mutex
	scores []float64
	err    error
	calls  int
}

// NewFake builds a Fake over labels.
func NewFake(labels []string) (*Fake, error) {
	if len(labels) == 0 {
		return nil, errors.New("fake classifier needs at least one label")
	}
	checked, err := checkLabels(append([]string(nil), labels...))
	if err != nil {
		return nil, err
	}
	return &Fake{labels: checked}, nil
}

// SetScores fixes the raw scores returned for every call; they are
// normalized before use.
func (f *Fake) SetScores(scores ...float64) {
	f.mu.Lock()
	f.scores = append([]float64(nil), scores...)
	f.mu.Unlock()
}

// SetError makes every following call fail with err wrapped in ErrInference.
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Calls reports how many times Classify ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Labels() []string {
	return append([]string(nil), f.labels...)
}

func (f *Fake) Classify(ctx context.Context, img image.Image) (*Result, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.calls++
	scores := append([]float64(nil), f.scores...)
	failErr := f.err
	f.mu.Unlock()

	if failErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, failErr)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInference)
	}
	if len(scores) == 0 {
		scores = brightnessScores(img, len(f.labels))
	}
	if len(scores) != len(f.labels) {
		return nil, fmt.Errorf("%w: %d scores for %d labels", ErrInference, len(scores), len(f.labels))
	}
	res, err := NewResult(f.labels, Normalize(scores))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return res, nil
}

// brightnessScores spreads n scores around the image's mean luminance.
func brightnessScores(img image.Image, n int) []float64 {
	b := img.Bounds()
	var sum float64
	var count int
	for y := b.Min.Y; y < b.Max.Y; y += 4 {
		for x := b.Min.X; x < b.Max.X; x += 4 {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 0xffff
			count++
		}
	}
	mean := 0.0
	if count > 0 {
		mean = sum / float64(count)
	}

	scores := make([]float64, n)
	for i := range scores {
		center := (float64(i) + 0.5) / float64(n)
		d := mean - center
		scores[i] = 1 / (1 + 50*d*d)
	}
	return scores
}
