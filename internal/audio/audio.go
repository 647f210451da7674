// Package audio decodes uploaded clips into mono waveforms at a fixed sample rate.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// Format is a supported upload container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

var (
	// ErrUnsupportedFormat is returned for uploads whose extension is not accepted.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrDecode is wrapped by every failure to parse an audio payload.
	ErrDecode = errors.New("audio decode failed")
)

// resampleQuality is passed to beep.Resample; beep accepts 1..64.
const resampleQuality = 4

// Clip is a decoded mono waveform.
type Clip struct {
	Samples    []float64
	SampleRate int
	// SourceRate and SourceChannels describe the payload before downmix/resample.
	SourceRate     int
	SourceChannels int
	Truncated      bool
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Options control decoding.
type Options struct {
	TargetRate int
	// MaxSeconds truncates longer clips; 0 keeps everything.
	MaxSeconds float64
}

// FormatFromFilename maps a file name to a Format by its extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))
	switch Format(ext) {
	case FormatWAV, FormatMP3, FormatFLAC:
		return Format(ext), nil
	case "wave":
		return FormatWAV, nil
	}
	if ext == "" {
		return "", fmt.Errorf("%w: file %q has no extension", ErrUnsupportedFormat, name)
	}
	return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
}

// maxStalls is how many consecutive empty reads end a stream that never
// reports exhaustion.
const maxStalls = 3

// Decode parses data as format and returns a mono clip at opts.TargetRate.
// Payloads shorter than their header declares fail with ErrDecode.
func Decode(ctx context.Context, data []byte, format Format, opts Options) (*Clip, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if opts.TargetRate <= 0 {
		return nil, errors.New("target sample rate must be positive")
	}

	var (
		stream   beep.Streamer
		rate     int
		channels int
		declared int
		closer   io.Closer
	)

	switch format {
	case FormatWAV:
		s, f, err := wav.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: wav: %v", ErrDecode, err)
		}
		stream, rate, channels, declared, closer = s, int(f.SampleRate), f.NumChannels, s.Len(), s
	case FormatMP3:
		s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
		}
		stream, rate, channels, closer = s, int(f.SampleRate), f.NumChannels, s
	case FormatFLAC:
		s, err := decodeFLAC(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: flac: %v", ErrDecode, err)
		}
		stream, rate, channels = s, s.rate, s.channels
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if closer != nil {
		defer closer.Close()
	}

	if rate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrDecode, rate)
	}

	src := &guard{ctx: ctx, s: stream}
	stream = src
	if rate != opts.TargetRate {
		stream = beep.Resample(resampleQuality, beep.SampleRate(rate), beep.SampleRate(opts.TargetRate), stream)
	}

	limit := 0
	if opts.MaxSeconds > 0 {
		limit = int(opts.MaxSeconds * float64(opts.TargetRate))
	}

	samples, truncated, err := drain(stream, limit)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !truncated && declared > 0 && src.frames < declared {
		return nil, fmt.Errorf("%w: truncated payload, %d of %d frames", ErrDecode, src.frames, declared)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples in %s payload", ErrDecode, format)
	}

	return &Clip{
		Samples:        samples,
		SampleRate:     opts.TargetRate,
		SourceRate:     rate,
		SourceChannels: channels,
		Truncated:      truncated,
	}, nil
}

// drain reads a beep stream to the end, averaging both channels to mono.
// beep always hands out stereo frames; mono sources duplicate the channel.
func drain(s beep.Streamer, limit int) ([]float64, bool, error) {
	buf := make([][2]float64, 4096)
	out := make([]float64, 0, 1<<16)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			if limit > 0 && len(out) >= limit {
				return out, true, nil
			}
			out = append(out, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, false, err
	}
	return out, false, nil
}

// guard sits between a decoder and the resampler. It ends the stream when the
// context is done or the decoder keeps returning nothing without finishing,
// and counts the source frames it passed on.
type guard struct {
	ctx    context.Context
	s      beep.Streamer
	frames int
	stalls int
	err    error
}

func (g *guard) Stream(samples [][2]float64) (int, bool) {
	if g.err != nil {
		return 0, false
	}
	for {
		if err := g.ctx.Err(); err != nil {
			g.err = err
			return 0, false
		}
		n, ok := g.s.Stream(samples)
		g.frames += n
		if n > 0 || !ok || len(samples) == 0 {
			g.stalls = 0
			return n, ok
		}
		g.stalls++
		if g.stalls >= maxStalls {
			g.err = errors.New("truncated payload")
			return 0, false
		}
	}
}

func (g *guard) Err() error {
	if g.err != nil {
		return g.err
	}
	return g.s.Err()
}
