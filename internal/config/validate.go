package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var supportedFormats = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"flac": true,
}

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}

	if len(cfg.Audio.Formats) == 0 {
		return errors.New("audio.formats must list at least one format")
	}
	for _, f := range cfg.Audio.Formats {
		if !supportedFormats[f] {
			return fmt.Errorf("audio.formats: unsupported format %q", f)
		}
	}
	if cfg.Audio.MaxSeconds < 0 {
		return errors.New("audio.max_seconds must not be negative")
	}

	if err := validateSpectrogramConfig(cfg.Spectrogram); err != nil {
		return err
	}

	if err := validateModelConfig(cfg.Model); err != nil {
		return err
	}

	if err := validateEventsConfig(cfg.Events); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateSpectrogramConfig(s SpectrogramConfig) error {
	if s.SampleRate <= 0 {
		return errors.New("spectrogram.sample_rate must be positive")
	}
	if s.NFFT <= 0 || s.NFFT&(s.NFFT-1) != 0 {
		return fmt.Errorf("spectrogram.n_fft must be a positive power of two, got %d", s.NFFT)
	}
	if s.HopLength <= 0 || s.HopLength > s.NFFT {
		return fmt.Errorf("spectrogram.hop_length must be in (0, n_fft], got %d", s.HopLength)
	}
	if s.NumMels <= 0 {
		return errors.New("spectrogram.n_mels must be positive")
	}
	if s.FMin < 0 || s.FMax <= s.FMin {
		return fmt.Errorf("spectrogram fmin/fmax invalid: fmin=%g fmax=%g", s.FMin, s.FMax)
	}
	if s.FMax > float64(s.SampleRate)/2 {
		return fmt.Errorf("spectrogram.fmax %g exceeds nyquist %g", s.FMax, float64(s.SampleRate)/2)
	}
	if s.TopDB <= 0 {
		return errors.New("spectrogram.top_db must be positive")
	}
	if s.Size <= 0 {
		return errors.New("spectrogram.size must be positive")
	}
	return nil
}

func validateModelConfig(m ModelConfig) error {
	switch m.Backend {
	case "onnx":
	case "mock":
		if len(m.MockLabels) == 0 {
			return errors.New("model.mock_labels must not be empty for the mock backend")
		}
		return nil
	default:
		return fmt.Errorf("model.backend must be onnx or mock, got %q", m.Backend)
	}

	if strings.TrimSpace(m.Dir) == "" {
		return errors.New("model.dir must be set")
	}
	if m.InputSize <= 0 {
		return errors.New("model.input_size must be positive")
	}
	switch m.InputType {
	case "float32", "float16":
	default:
		return fmt.Errorf("model.input_type must be float32 or float16, got %q", m.InputType)
	}
	switch m.Output {
	case "logits", "probabilities":
	default:
		return fmt.Errorf("model.output must be logits or probabilities, got %q", m.Output)
	}
	if len(m.Mean) != 3 || len(m.Std) != 3 {
		return errors.New("model.mean and model.std must have 3 entries")
	}
	for i, s := range m.Std {
		if s <= 0 {
			return fmt.Errorf("model.std[%d] must be positive", i)
		}
	}

	if len(m.Source.Files) == 0 {
		return nil
	}
	if !strings.Contains(m.Source.URLTemplate, "{id}") {
		return errors.New("model.source.url_template must contain {id}")
	}
	u, err := url.Parse(strings.ReplaceAll(m.Source.URLTemplate, "{id}", "x"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("model.source.url_template is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("model.source.url_template must be http or https")
	}
	for i, f := range m.Source.Files {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("model.source.files[%d] missing id", i)
		}
		p := strings.TrimSpace(f.Path)
		if p == "" {
			return fmt.Errorf("model.source.files[%d] missing path", i)
		}
		if filepath.IsAbs(p) || strings.HasPrefix(filepath.Clean(p), "..") {
			return fmt.Errorf("model.source.files[%d] path %q must stay inside model.dir", i, f.Path)
		}
	}
	return nil
}

func validateEventsConfig(e EventsConfig) error {
	if !e.Enabled {
		return nil
	}
	for i, s := range e.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "stdout":
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("events sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("events sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("events sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("events sink %d (webhook) url must be http or https", i)
			}
		default:
			return fmt.Errorf("events sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}
