// Package pcm converts between 16-bit little-endian PCM byte streams, sample
// slices and their base64 wire form.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const DefaultSampleRate = 24_000

// Decode converts little-endian PCM16 bytes into samples. A trailing odd byte
// is dropped.
func Decode(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func Encode(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func DecodeBase64(s string) ([]int16, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return Decode(b), nil
}

func EncodeBase64(samples []int16) string {
	return base64.StdEncoding.EncodeToString(Encode(samples))
}

// SampleIndex returns floor(ms * rate / 1000).
func SampleIndex(ms, rate int) int {
	return int(int64(ms) * int64(rate) / 1000)
}

// Millis returns floor(samples / rate * 1000).
func Millis(samples, rate int) int {
	return int(int64(samples) * 1000 / int64(rate))
}

// Slice returns samples[start:end] clamped to the bounds of samples, as a copy.
func Slice(samples []int16, start, end int) []int16 {
	start = max(0, min(start, len(samples)))
	end = max(start, min(end, len(samples)))
	out := make([]int16, end-start)
	copy(out, samples[start:end])
	return out
}
