package realtime

import (
	"fmt"
	"io"
	"math"

	"github.com/codewandler/realtime-go/internal/pcm"
	"github.com/faiface/beep"
)

const resampleQuality = 3

// pcmStreamer plays mono PCM16 samples as a beep stereo stream.
type pcmStreamer struct {
	data []int16
	pos  int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// ResamplePCM converts mono PCM16 samples from one rate to another.
func ResamplePCM(samples []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return append([]int16(nil), samples...), nil
	}

	resampler := beep.Resample(resampleQuality, beep.SampleRate(fromRate), beep.SampleRate(toRate), &pcmStreamer{data: samples})

	out := make([]int16, 0, len(samples)*toRate/fromRate+1)
	buf := make([][2]float64, 1024)
	for {
		n, ok := resampler.Stream(buf)
		for i := 0; i < n; i++ {
			mono := (buf[i][0] + buf[i][1]) / 2.0
			out = append(out, int16(math.Max(-1, math.Min(1, mono))*32767))
		}
		if !ok {
			break
		}
	}
	return out, nil
}

// ResampleWriter resamples mono PCM16 bytes written to it and forwards them to
// Sink. Writes must hold whole samples.
type ResampleWriter struct {
	Sink     io.Writer
	FromRate int
	ToRate   int
}

func (w *ResampleWriter) Write(p []byte) (int, error) {
	if w.FromRate == w.ToRate {
		return w.Sink.Write(p)
	}

	out, err := ResamplePCM(pcm.Decode(p), w.FromRate, w.ToRate)
	if err != nil {
		return 0, err
	}
	if _, err := w.Sink.Write(pcm.Encode(out)); err != nil {
		return 0, err
	}
	return len(p), nil
}
