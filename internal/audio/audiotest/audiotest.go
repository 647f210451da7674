// Package audiotest builds in-memory audio fixtures for tests.
package audiotest

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// flacBlock is the block size of FLAC fixtures.
const flacBlock = 1024

// Sine returns n samples of a sine tone at freq Hz.
func Sine(freq float64, rate, n int, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

// WAV encodes mono samples in [-1, 1] as a 16-bit PCM WAV file with the given
// channel count (samples are duplicated across channels).
func WAV(t testing.TB, samples []float64, rate, channels int) []byte {
	t.Helper()

	if channels <= 0 {
		channels = 1
	}
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav fixture: %v", err)
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	data := make([]int, 0, len(samples)*channels)
	for _, s := range samples {
		v := int(math.Round(math.Max(-1, math.Min(1, s)) * 32767))
		for c := 0; c < channels; c++ {
			data = append(data, v)
		}
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close wav fixture: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav fixture: %v", err)
	}
	return out
}

// FLAC encodes one 16-bit sample slice per channel as a verbatim FLAC stream.
// All channels must have the same length, a positive multiple of 1024.
func FLAC(t testing.TB, channels [][]float64, rate int) []byte {
	t.Helper()

	if len(channels) == 0 || len(channels) > 8 {
		t.Fatalf("flac fixture: unsupported channel count %d", len(channels))
	}
	n := len(channels[0])
	if n == 0 || n%flacBlock != 0 {
		t.Fatalf("flac fixture: %d samples is not a multiple of %d", n, flacBlock)
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlock,
		BlockSizeMax:  flacBlock,
		SampleRate:    uint32(rate),
		NChannels:     uint8(len(channels)),
		BitsPerSample: 16,
		NSamples:      uint64(n),
	}
	out := new(bytes.Buffer)
	enc, err := flac.NewEncoder(out, info)
	if err != nil {
		t.Fatalf("flac fixture: new encoder: %v", err)
	}

	for off := 0; off < n; off += flacBlock {
		f := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         flacBlock,
				SampleRate:        uint32(rate),
				Channels:          frame.Channels(len(channels) - 1),
				BitsPerSample:     16,
			},
		}
		for c, samples := range channels {
			if len(samples) != n {
				t.Fatalf("flac fixture: channel %d has %d samples, want %d", c, len(samples), n)
			}
			sub := &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   make([]int32, flacBlock),
				NSamples:  flacBlock,
			}
			for i := range sub.Samples {
				v := math.Max(-1, math.Min(1, samples[off+i]))
				sub.Samples[i] = int32(math.Round(v * 32767))
			}
			f.Subframes = append(f.Subframes, sub)
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("flac fixture: write frame: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("flac fixture: close: %v", err)
	}
	return out.Bytes()
}
