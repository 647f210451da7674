// Package app assembles the pipeline and its collaborators from config. It
// is shared by the server and the command line tools.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/straja-ai/soundlens/internal/artifact"
	"github.com/straja-ai/soundlens/internal/classifier"
	"github.com/straja-ai/soundlens/internal/config"
	"github.com/straja-ai/soundlens/internal/content"
	"github.com/straja-ai/soundlens/internal/events"
	"github.com/straja-ai/soundlens/internal/pipeline"
	"github.com/straja-ai/soundlens/internal/redact"
	"github.com/straja-ai/soundlens/internal/spectrogram"
	"github.com/straja-ai/soundlens/internal/telemetry"
)

// Version is reported to telemetry.
var Version = "dev"

// Options tweak Build for the different binaries.
type Options struct {
	// SkipEvents leaves the event emitter unset, e.g. for benchmarks.
	SkipEvents bool
	// Progress overrides artifact download progress reporting.
	Progress artifact.ProgressFunc
}

// App owns every long-lived component and releases them in Close.
type App struct {
	Config     *config.Config
	Classifier classifier.Classifier
	Generator  *spectrogram.Generator
	Resolver   *content.Resolver
	Telemetry  *telemetry.Provider
	Events     *events.Emitter
	Pipeline   *pipeline.Pipeline

	closeModel func()
}

// Build validates cfg, fetches the model if needed, loads it and wires the
// pipeline. Any error is fatal for the caller.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close(context.Background())
		}
	}()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "soundlens",
		Version:  Version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry = tel

	if err := a.loadClassifier(ctx, opts); err != nil {
		return nil, err
	}

	a.Generator, err = spectrogram.New(SpectrogramConfig(cfg.Spectrogram))
	if err != nil {
		return nil, err
	}

	table, err := loadTable(cfg.Content, a.Classifier.Labels())
	if err != nil {
		return nil, err
	}
	a.Resolver = content.NewResolver(table, func(label string) {
		tel.RecordFallback(context.Background(), label)
	})

	if cfg.Events.Enabled && !opts.SkipEvents {
		sinks, err := events.NewSinks(cfg.Events.Sinks)
		if err != nil {
			return nil, err
		}
		a.Events = events.NewEmitter(events.EmitterConfig{
			QueueSize:       cfg.Events.QueueSize,
			Workers:         cfg.Events.Workers,
			ShutdownTimeout: cfg.Events.ShutdownTimeout,
			OnDrop:          func() { tel.RecordEventDropped(context.Background()) },
		}, sinks)
	}

	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Formats:    cfg.Audio.Formats,
		MaxSeconds: cfg.Audio.MaxSeconds,
		Generator:  a.Generator,
		Classifier: a.Classifier,
		Resolver:   a.Resolver,
		Telemetry:  tel,
		Events:     a.Events,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Close flushes events and telemetry and releases the model.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Events != nil {
		a.Events.Close(ctx)
	}
	if a.closeModel != nil {
		a.closeModel()
	}
	if a.Telemetry != nil {
		a.Telemetry.Shutdown(ctx)
	}
}

func (a *App) loadClassifier(ctx context.Context, opts Options) error {
	m := a.Config.Model
	switch strings.ToLower(m.Backend) {
	case "mock":
		fake, err := classifier.NewFake(m.MockLabels)
		if err != nil {
			return fmt.Errorf("mock classifier: %w", err)
		}
		redact.Logf("classifier: using mock backend with labels %v", fake.Labels())
		a.Classifier = fake
		return nil
	case "onnx", "":
	default:
		return fmt.Errorf("unknown model backend %q", m.Backend)
	}

	if _, err := FetchModel(ctx, a.Config, opts.Progress); err != nil {
		return fmt.Errorf("fetch model: %w", err)
	}

	model, err := classifier.LoadModel(ModelOptions(m))
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	redact.Logf("classifier: loaded %s with %d labels", model.ModelFile(), len(model.Labels()))
	a.Classifier = model
	a.closeModel = model.Close
	return nil
}

// FetchModel makes sure the configured artifact files exist under model.dir.
func FetchModel(ctx context.Context, cfg *config.Config, progress artifact.ProgressFunc) (string, error) {
	src := ArtifactSource(cfg.Model.Source)
	return artifact.Ensure(ctx, cfg.Model.Dir, src, artifact.Options{
		Timeout:  time.Duration(cfg.Model.Source.TimeoutSeconds) * time.Second,
		Progress: progress,
	})
}

// ArtifactSource converts the config section.
func ArtifactSource(s config.SourceConfig) artifact.Source {
	src := artifact.Source{URLTemplate: s.URLTemplate}
	for _, f := range s.Files {
		src.Files = append(src.Files, artifact.File{ID: f.ID, Path: f.Path, SHA256: f.SHA256, Size: f.Size})
	}
	return src
}

// ModelOptions converts the config section.
func ModelOptions(m config.ModelConfig) classifier.ModelOptions {
	pre := classifier.Preprocess{Size: m.InputSize}
	copy(pre.Mean[:], m.Mean)
	copy(pre.Std[:], m.Std)
	return classifier.ModelOptions{
		Dir:        m.Dir,
		File:       m.File,
		LabelsFile: m.LabelsFile,
		InputName:  m.InputName,
		OutputName: m.OutputName,
		InputType:  m.InputType,
		Output:     m.Output,
		Preprocess: pre,
	}
}

// SpectrogramConfig converts the config section.
func SpectrogramConfig(s config.SpectrogramConfig) spectrogram.Config {
	return spectrogram.Config{
		SampleRate: s.SampleRate,
		NFFT:       s.NFFT,
		HopLength:  s.HopLength,
		NumMels:    s.NumMels,
		FMin:       s.FMin,
		FMax:       s.FMax,
		TopDB:      s.TopDB,
		Size:       s.Size,
	}
}

// loadTable reads the content table and checks it against labels. Divergence
// aborts in strict mode and is logged otherwise.
func loadTable(c config.ContentConfig, labels []string) (content.Table, error) {
	var (
		table content.Table
		err   error
	)
	if strings.TrimSpace(c.Path) == "" {
		table = content.DemoTable(labels)
	} else if table, err = content.LoadTable(c.Path); err != nil {
		return nil, err
	}

	if err := table.Validate(labels); err != nil {
		if c.IsStrict() {
			return nil, fmt.Errorf("content table does not match classifier labels: %w", err)
		}
		redact.Logf("content: table does not match classifier labels, unmapped labels will get placeholders: %v", err)
	}
	return table, nil
}
