// Package pipeline runs one upload through decode, spectrogram, inference and
// content lookup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/soundlens/internal/audio"
	"github.com/straja-ai/soundlens/internal/classifier"
	"github.com/straja-ai/soundlens/internal/content"
	"github.com/straja-ai/soundlens/internal/events"
	"github.com/straja-ai/soundlens/internal/redact"
	"github.com/straja-ai/soundlens/internal/spectrogram"
	"github.com/straja-ai/soundlens/internal/telemetry"
)

// Errors returned by Run, matched with errors.Is.
var (
	ErrUnsupportedFormat = audio.ErrUnsupportedFormat
	ErrDecode            = audio.ErrDecode
	ErrInference         = classifier.ErrInference
)

// Deps are the collaborators of a Pipeline. Telemetry and Events are optional.
type Deps struct {
	// Formats lists the accepted upload formats; empty accepts every decodable one.
	Formats    []string
	MaxSeconds float64
	Generator  *spectrogram.Generator
	Classifier classifier.Classifier
	Resolver   *content.Resolver
	Telemetry  *telemetry.Provider
	Events     *events.Emitter
}

// Upload is one submitted audio file.
type Upload struct {
	Filename string
	Data     []byte
}

// Latency holds per-stage timings.
type Latency struct {
	Decode      time.Duration
	Spectrogram time.Duration
	Inference   time.Duration
	Total       time.Duration
}

// Outcome is everything the presentation layer needs for one request.
type Outcome struct {
	RequestID   string
	Format      audio.Format
	Duration    float64 // seconds of audio analysed
	Truncated   bool
	Spectrogram *image.RGBA
	PNG         []byte
	Result      *classifier.Result
	Content     content.Bundle
	Fallback    bool
	Latency     Latency
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	formats    map[audio.Format]bool
	maxSeconds float64
	gen        *spectrogram.Generator
	clf        classifier.Classifier
	resolver   *content.Resolver
	tel        *telemetry.Provider
	events     *events.Emitter
}

// New checks deps and builds a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Generator == nil {
		return nil, errors.New("pipeline: spectrogram generator is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("pipeline: content resolver is required")
	}
	p := &Pipeline{
		maxSeconds: deps.MaxSeconds,
		gen:        deps.Generator,
		clf:        deps.Classifier,
		resolver:   deps.Resolver,
		tel:        deps.Telemetry,
		events:     deps.Events,
	}
	if len(deps.Formats) > 0 {
		p.formats = make(map[audio.Format]bool, len(deps.Formats))
		for _, f := range deps.Formats {
			p.formats[audio.Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), ".")))] = true
		}
	}
	if p.tel == nil {
		p.tel = telemetry.Noop()
	}
	return p, nil
}

// Labels returns the classifier's label order.
func (p *Pipeline) Labels() []string { return p.clf.Labels() }

// Formats returns the accepted formats, or nil when any decodable one is.
func (p *Pipeline) Formats() []string {
	if p.formats == nil {
		return nil
	}
	out := make([]string, 0, len(p.formats))
	for _, f := range []audio.Format{audio.FormatWAV, audio.FormatMP3, audio.FormatFLAC} {
		if p.formats[f] {
			out = append(out, string(f))
		}
	}
	return out
}

// Run processes one upload. Every call emits exactly one event, success or not.
func (p *Pipeline) Run(ctx context.Context, up Upload) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	out := &Outcome{RequestID: uuid.NewString()}

	ctx, span := p.tel.StartSpan(ctx, "soundlens.classify", map[string]interface{}{
		"soundlens.request_id": out.RequestID,
		"audio.bytes":          len(up.Data),
	})
	defer span.End()

	err := p.run(ctx, up, out)
	out.Latency.Total = time.Since(start)

	outcome := outcomeOf(err)
	label := ""
	if out.Result != nil {
		label = out.Result.Label
		span.SetAttributes(telemetry.SafeAttributes(map[string]interface{}{
			"soundlens.label":    label,
			"soundlens.fallback": out.Fallback,
		})...)
	}
	if err != nil {
		span.RecordError(err)
	}
	p.tel.RecordRequest(ctx, outcome, string(out.Format), label, events.Millis(out.Latency.Total))
	p.emit(ctx, up, out, outcome, err)

	if err != nil {
		redact.Logf("classify request_id=%s outcome=%s error=%v total=%s", out.RequestID, outcome, err, out.Latency.Total.Round(time.Millisecond))
		return nil, err
	}
	redact.Logf("classify request_id=%s label=%s confidence=%.4f fallback=%t total=%s", out.RequestID, label, out.Result.Confidence(), out.Fallback, out.Latency.Total.Round(time.Millisecond))
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, up Upload, out *Outcome) error {
	format, err := audio.FormatFromFilename(up.Filename)
	if err != nil {
		return err
	}
	out.Format = format
	if p.formats != nil && !p.formats[format] {
		return fmt.Errorf("%w: .%s uploads are disabled", ErrUnsupportedFormat, format)
	}

	t := time.Now()
	clip, err := audio.Decode(ctx, up.Data, format, audio.Options{
		TargetRate: p.gen.Config().SampleRate,
		MaxSeconds: p.maxSeconds,
	})
	out.Latency.Decode = time.Since(t)
	p.tel.RecordStage(ctx, "decode", events.Millis(out.Latency.Decode))
	if err != nil {
		return err
	}
	out.Duration = clip.Duration()
	out.Truncated = clip.Truncated

	t = time.Now()
	img, err := p.gen.Generate(clip.Samples)
	if err != nil {
		if errors.Is(err, spectrogram.ErrEmptyInput) {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return fmt.Errorf("spectrogram: %w", err)
	}
	png, err := spectrogram.EncodePNG(img)
	if err != nil {
		return fmt.Errorf("encode spectrogram: %w", err)
	}
	out.Latency.Spectrogram = time.Since(t)
	p.tel.RecordStage(ctx, "spectrogram", events.Millis(out.Latency.Spectrogram))
	out.Spectrogram = img
	out.PNG = png

	if err := ctx.Err(); err != nil {
		return err
	}

	t = time.Now()
	res, err := p.clf.Classify(ctx, img)
	out.Latency.Inference = time.Since(t)
	p.tel.RecordStage(ctx, "inference", events.Millis(out.Latency.Inference))
	if err != nil {
		if errors.Is(err, ErrInference) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInference, err)
	}
	out.Result = res

	bundle, ok := p.resolver.Resolve(res.Label)
	out.Content = bundle
	out.Fallback = !ok
	return nil
}

func (p *Pipeline) emit(ctx context.Context, up Upload, out *Outcome, outcome string, err error) {
	if p.events == nil {
		return
	}
	ev := events.New(out.RequestID, outcome)
	ev.Audio = events.AudioInfo{
		Format:          string(out.Format),
		Bytes:           len(up.Data),
		DurationSeconds: out.Duration,
	}
	if out.Result != nil {
		probs := make(map[string]float64, len(out.Result.Probabilities))
		for _, lp := range out.Result.Probabilities {
			probs[lp.Label] = lp.Prob
		}
		ev.Result = &events.ResultInfo{Label: out.Result.Label, Probabilities: probs}
	}
	ev.Content = events.ContentInfo{Fallback: out.Fallback}
	ev.LatencyMs = events.LatencyMs{
		Decode:      events.Millis(out.Latency.Decode),
		Spectrogram: events.Millis(out.Latency.Spectrogram),
		Inference:   events.Millis(out.Latency.Inference),
		Total:       events.Millis(out.Latency.Total),
	}
	if err != nil {
		ev.Error = redact.String(err.Error())
	}
	p.events.Emit(ctx, ev)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return events.OutcomeOK
	case errors.Is(err, ErrUnsupportedFormat):
		return events.OutcomeUnsupportedFormat
	case errors.Is(err, ErrDecode):
		return events.OutcomeDecodeError
	case errors.Is(err, ErrInference):
		return events.OutcomeInferenceError
	default:
		return events.OutcomeError
	}
}
