package spectrogram

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"github.com/r9y9/gossp/stft"
)

// ErrEmptyInput is returned when there are no samples to analyze.
var ErrEmptyInput = errors.New("spectrogram: no samples")

// amin is the power floor applied before taking logarithms.
const amin = 1e-10

// Config represents the configuration for generating mel spectrogram images.
type Config struct {
	SampleRate int
	NFFT       int
	HopLength  int
	NumMels    int
	FMin       float64
	FMax       float64
	TopDB      float64
	Size       int
}

// DefaultConfig matches librosa's melspectrogram defaults at 22.05 kHz with
// 128 mel bands capped at 8 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate: 22050,
		NFFT:       2048,
		HopLength:  512,
		NumMels:    128,
		FMin:       0,
		FMax:       8000,
		TopDB:      80,
		Size:       500,
	}
}

// Generator turns waveforms into fixed-size mel spectrogram images.
// It holds only precomputed read-only tables and is safe for concurrent use.
type Generator struct {
	cfg     Config
	window  []float64
	filters [][]float64
}

// New validates cfg and precomputes the analysis window and mel filterbank.
func New(cfg Config) (*Generator, error) {
	if cfg.SampleRate <= 0 || cfg.NFFT <= 0 || cfg.HopLength <= 0 || cfg.NumMels <= 0 || cfg.Size <= 0 {
		return nil, fmt.Errorf("spectrogram: invalid config %+v", cfg)
	}
	if cfg.FMax <= cfg.FMin {
		return nil, fmt.Errorf("spectrogram: fmax %g must exceed fmin %g", cfg.FMax, cfg.FMin)
	}
	if cfg.TopDB <= 0 {
		cfg.TopDB = 80
	}

	// Periodic Hann: the symmetric window of length n+1 without its last point.
	win := window.Hann(cfg.NFFT + 1)[:cfg.NFFT]

	return &Generator{
		cfg:     cfg,
		window:  win,
		filters: melFilterbank(cfg.SampleRate, cfg.NFFT, cfg.NumMels, cfg.FMin, cfg.FMax),
	}, nil
}

// Config returns the generator configuration.
func (g *Generator) Config() Config { return g.cfg }

// MelPower computes the mel-scaled power spectrogram as [mel][frame].
// Frames are centered: the signal is zero padded by NFFT/2 on both sides.
func (g *Generator) MelPower(samples []float64) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}

	half := g.cfg.NFFT / 2
	padded := make([]float64, len(samples)+2*half)
	copy(padded[half:], samples)

	s := stft.New(g.cfg.HopLength, g.cfg.NFFT)
	s.Window = g.window
	spectrum := s.STFT(padded)

	nBins := g.cfg.NFFT/2 + 1
	mel := make([][]float64, g.cfg.NumMels)
	for m := range mel {
		mel[m] = make([]float64, len(spectrum))
	}

	power := make([]float64, nBins)
	for t, frame := range spectrum {
		for k := 0; k < nBins && k < len(frame); k++ {
			a := cmplx.Abs(frame[k])
			power[k] = a * a
		}
		for m, filter := range g.filters {
			var acc float64
			for k, w := range filter {
				if w != 0 {
					acc += w * power[k]
				}
			}
			mel[m][t] = acc
		}
	}
	return mel, nil
}

// PowerToDB converts power to decibels relative to the peak value and floors
// the result at peak-topDB. An all-zero input yields all zeros, never -Inf.
func PowerToDB(power [][]float64, topDB float64) [][]float64 {
	ref := 0.0
	for _, row := range power {
		for _, v := range row {
			if v > ref {
				ref = v
			}
		}
	}
	refDB := 10 * math.Log10(math.Max(amin, ref))

	out := make([][]float64, len(power))
	peak := math.Inf(-1)
	for i, row := range power {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || v < 0 {
				v = 0
			}
			db := 10*math.Log10(math.Max(amin, v)) - refDB
			out[i][j] = db
			if db > peak {
				peak = db
			}
		}
	}

	if topDB > 0 && !math.IsInf(peak, -1) {
		floor := peak - topDB
		for _, row := range out {
			for j, v := range row {
				if v < floor {
					row[j] = floor
				}
			}
		}
	}
	return out
}

// Generate produces the Size x Size spectrogram image for samples.
func (g *Generator) Generate(samples []float64) (*image.RGBA, error) {
	power, err := g.MelPower(samples)
	if err != nil {
		return nil, err
	}
	return g.Render(PowerToDB(power, g.cfg.TopDB)), nil
}
