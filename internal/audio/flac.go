package audio

import (
	"errors"
	"io"
	"math"

	"github.com/mewkiz/flac"
)

// flacStreamer adapts a fully parsed FLAC stream to beep.Streamer so it can
// share the resample and downmix path with the beep decoders.
type flacStreamer struct {
	frames   [][2]float64
	pos      int
	rate     int
	channels int
}

func decodeFLAC(r io.Reader) (*flacStreamer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	info := stream.Info
	if info == nil || info.NChannels == 0 {
		return nil, errors.New("missing stream info")
	}
	if info.BitsPerSample == 0 || info.BitsPerSample > 32 {
		return nil, errors.New("unsupported bits per sample")
	}
	scale := math.Exp2(float64(info.BitsPerSample) - 1)

	out := &flacStreamer{
		rate:     int(info.SampleRate),
		channels: int(info.NChannels),
	}
	if info.NSamples > 0 && info.NSamples < 1<<28 {
		out.frames = make([][2]float64, 0, info.NSamples)
	}

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(frame.Subframes) == 0 {
			continue
		}
		// every channel is averaged into both slots so drain yields the
		// mono mix unchanged
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			var sum float64
			for _, sub := range frame.Subframes {
				if i < len(sub.Samples) {
					sum += float64(sub.Samples[i])
				}
			}
			v := sum / float64(len(frame.Subframes)) / scale
			out.frames = append(out.frames, [2]float64{v, v})
		}
	}
	return out, nil
}

func (s *flacStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.frames) {
		return 0, false
	}
	n := copy(samples, s.frames[s.pos:])
	s.pos += n
	return n, true
}

func (s *flacStreamer) Err() error { return nil }
