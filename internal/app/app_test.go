package app

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/straja-ai/soundlens/internal/audio/audiotest"
	"github.com/straja-ai/soundlens/internal/config"
	"github.com/straja-ai/soundlens/internal/pipeline"
)

func mockConfig(t *testing.T, labels ...string) *config.Config {
	t.Helper()
	t.Setenv("SOUNDLENS_MODEL_BACKEND", "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	cfg.Model.Backend = "mock"
	if len(labels) > 0 {
		cfg.Model.MockLabels = labels
	}
	cfg.Spectrogram.Size = 64
	return cfg
}

func TestBuildMockBackend(t *testing.T) {
	cfg := mockConfig(t)
	a, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close(context.Background())

	if got := strings.Join(a.Pipeline.Labels(), ","); got != "calm,energetic,game" {
		t.Fatalf("unexpected labels %q", got)
	}
	if a.Events != nil {
		t.Fatalf("events should be disabled by default")
	}

	wav := audiotest.WAV(t, audiotest.Sine(440, 22050, 22050, 0.5), 22050, 1)
	out, err := a.Pipeline.Run(context.Background(), pipeline.Upload{Filename: "tone.wav", Data: wav})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Fallback {
		t.Fatalf("demo table should cover every mock label")
	}
	if len(out.Content.Images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(out.Content.Images))
	}
}

func TestBuildStrictContentMismatch(t *testing.T) {
	cfg := mockConfig(t, "a", "b", "c", "d")
	if _, err := Build(context.Background(), cfg, Options{}); err == nil {
		t.Fatalf("expected strict content check to fail")
	}
}

func TestBuildLenientContentMismatch(t *testing.T) {
	cfg := mockConfig(t, "a", "b", "c", "d")
	strict := false
	cfg.Content.Strict = &strict

	a, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close(context.Background())

	b, fallback := a.Resolver.Resolve("d")
	if !fallback {
		t.Fatalf("expected fallback for unmapped label")
	}
	if len(b.Texts) != 3 {
		t.Fatalf("fallback bundle should have 3 texts, got %d", len(b.Texts))
	}
}

func TestBuildContentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content.yaml")
	yml := `labels:
  x:
    images: [https://example.com/1.png, https://example.com/2.png, https://example.com/3.png]
    videos: [https://youtu.be/a, https://youtu.be/b, https://youtu.be/c]
    texts: [one, two, three]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write content: %v", err)
	}
	cfg := mockConfig(t, "x")
	cfg.Content.Path = path

	a, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close(context.Background())

	b, fallback := a.Resolver.Resolve("x")
	if fallback || b.Texts[0] != "one" {
		t.Fatalf("unexpected bundle %+v fallback=%t", b, fallback)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Spectrogram.NFFT = 1000
	if _, err := Build(context.Background(), cfg, Options{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestBuildOnnxMissingModel(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Model.Backend = "onnx"
	cfg.Model.Dir = t.TempDir()
	if _, err := Build(context.Background(), cfg, Options{}); err == nil {
		t.Fatalf("expected error for missing model file")
	}
}

func TestBuildEventsFileSink(t *testing.T) {
	cfg := mockConfig(t)
	path := filepath.Join(t.TempDir(), "events.jsonl")
	cfg.Events.Enabled = true
	cfg.Events.Sinks = []config.SinkConfig{{Type: "file_jsonl", Path: path}}

	a, err := Build(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := a.Pipeline.Run(context.Background(), pipeline.Upload{Filename: "notes.txt", Data: []byte("hello")}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	a.Close(context.Background())

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var lines int
	for sc.Scan() {
		var ev struct {
			Outcome string `json:"outcome"`
		}
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Outcome != "unsupported_format" {
			t.Fatalf("unexpected outcome %q", ev.Outcome)
		}
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected 1 event, got %d", lines)
	}
}

func TestConversions(t *testing.T) {
	cfg := mockConfig(t)
	opts := ModelOptions(cfg.Model)
	if opts.Preprocess.Size != 224 || opts.Preprocess.Std[2] != 0.225 {
		t.Fatalf("unexpected preprocess %+v", opts.Preprocess)
	}
	src := ArtifactSource(config.SourceConfig{
		URLTemplate: "https://example.com/{id}",
		Files:       []config.FileConfig{{ID: "abc", Path: "model.onnx", Size: 10}},
	})
	if len(src.Files) != 1 || src.URL("abc") != "https://example.com/abc" {
		t.Fatalf("unexpected source %+v", src)
	}
	if SpectrogramConfig(cfg.Spectrogram).Size != 64 {
		t.Fatalf("spectrogram size not carried over")
	}
}
