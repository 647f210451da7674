package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds SoundLens configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Spectrogram SpectrogramConfig `yaml:"spectrogram"`
	Model       ModelConfig       `yaml:"model"`
	Content     ContentConfig     `yaml:"content"`
	Events      EventsConfig      `yaml:"events"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type AudioConfig struct {
	Formats    []string `yaml:"formats"` // wav | mp3 | flac
	MaxSeconds float64  `yaml:"max_seconds"`
}

type SpectrogramConfig struct {
	SampleRate int     `yaml:"sample_rate"`
	NFFT       int     `yaml:"n_fft"`
	HopLength  int     `yaml:"hop_length"`
	NumMels    int     `yaml:"n_mels"`
	FMin       float64 `yaml:"fmin"`
	FMax       float64 `yaml:"fmax"`
	TopDB      float64 `yaml:"top_db"`
	Size       int     `yaml:"size"` // output image is Size x Size pixels
}

type ModelConfig struct {
	Backend    string       `yaml:"backend"` // onnx | mock
	Dir        string       `yaml:"dir"`
	File       string       `yaml:"file"`
	LabelsFile string       `yaml:"labels_file"`
	InputName  string       `yaml:"input_name"`
	OutputName string       `yaml:"output_name"`
	InputSize  int          `yaml:"input_size"`
	InputType  string       `yaml:"input_type"` // float32 | float16
	Output     string       `yaml:"output"`     // logits | probabilities
	Mean       []float32    `yaml:"mean"`
	Std        []float32    `yaml:"std"`
	MockLabels []string     `yaml:"mock_labels"`
	Source     SourceConfig `yaml:"source"`
}

// SourceConfig describes where the model artifact is fetched from at startup.
type SourceConfig struct {
	URLTemplate    string       `yaml:"url_template"` // must contain {id}
	Files          []FileConfig `yaml:"files"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
}

type FileConfig struct {
	ID     string `yaml:"id"`
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256"`
	Size   int64  `yaml:"size"`
}

type ContentConfig struct {
	Path   string `yaml:"path"` // empty = built-in demo table
	Strict *bool  `yaml:"strict"`
}

// IsStrict reports whether label/content divergence aborts startup.
func (c ContentConfig) IsStrict() bool {
	return c.Strict == nil || *c.Strict
}

type EventsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	QueueSize       int           `yaml:"queue_size"`
	Workers         int           `yaml:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Sinks           []SinkConfig  `yaml:"sinks"`
}

type SinkConfig struct {
	Type    string            `yaml:"type"` // stdout | file_jsonl | webhook
	Path    string            `yaml:"path"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 60 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if len(cfg.Audio.Formats) == 0 {
		cfg.Audio.Formats = []string{"wav", "mp3"}
	}
	for i, f := range cfg.Audio.Formats {
		cfg.Audio.Formats[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	}

	sp := &cfg.Spectrogram
	if sp.SampleRate == 0 {
		sp.SampleRate = 22050
	}
	if sp.NFFT == 0 {
		sp.NFFT = 2048
	}
	if sp.HopLength == 0 {
		sp.HopLength = 512
	}
	if sp.NumMels == 0 {
		sp.NumMels = 128
	}
	if sp.FMax == 0 {
		sp.FMax = 8000
	}
	if sp.TopDB == 0 {
		sp.TopDB = 80
	}
	if sp.Size == 0 {
		sp.Size = 500
	}

	m := &cfg.Model
	if m.Backend == "" {
		m.Backend = "onnx"
	}
	m.Backend = strings.ToLower(strings.TrimSpace(m.Backend))
	if m.Dir == "" {
		m.Dir = "model"
	}
	if m.File == "" {
		m.File = "model.onnx"
	}
	if m.LabelsFile == "" {
		m.LabelsFile = "labels.json"
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.InputSize == 0 {
		m.InputSize = 224
	}
	if m.InputType == "" {
		m.InputType = "float32"
	}
	if m.Output == "" {
		m.Output = "logits"
	}
	if len(m.Mean) == 0 {
		m.Mean = []float32{0.485, 0.456, 0.406}
	}
	if len(m.Std) == 0 {
		m.Std = []float32{0.229, 0.224, 0.225}
	}
	if len(m.MockLabels) == 0 {
		m.MockLabels = []string{"calm", "energetic", "game"}
	}
	if m.Source.URLTemplate == "" {
		m.Source.URLTemplate = "https://drive.google.com/uc?export=download&id={id}"
	}
	if m.Source.TimeoutSeconds <= 0 {
		m.Source.TimeoutSeconds = 300
	}

	if cfg.Events.QueueSize <= 0 {
		cfg.Events.QueueSize = 1000
	}
	if cfg.Events.Workers <= 0 {
		cfg.Events.Workers = 1
	}
	if cfg.Events.ShutdownTimeout <= 0 {
		cfg.Events.ShutdownTimeout = 2 * time.Second
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}

// applyEnvOverrides lets deployments override a few settings without editing YAML.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SOUNDLENS_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("SOUNDLENS_MODEL_DIR")); v != "" {
		cfg.Model.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("SOUNDLENS_MODEL_BACKEND")); v != "" {
		cfg.Model.Backend = strings.ToLower(v)
	}
}
