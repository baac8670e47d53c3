package realtime

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// FixedChunkReader re-frames a PCM byte stream into chunks of a fixed size.
// Only the final chunk before EOF may be shorter.
type FixedChunkReader struct {
	r         io.Reader
	buf       []byte
	tmp       []byte
	chunkSize int
	eof       bool
}

func NewFixedChunkReader(r io.Reader, chunkSize int) *FixedChunkReader {
	return &FixedChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
		tmp:       make([]byte, chunkSize),
	}
}

// NewAudioChunkReader frames mono PCM16 at sampleRate into chunks spanning
// latency.
func NewAudioChunkReader(r io.Reader, sampleRate int, latency time.Duration) *FixedChunkReader {
	return NewFixedChunkReader(r, chunkSize(sampleRate, latency))
}

// chunkSize is the number of mono PCM16 bytes covering d.
func chunkSize(sampleRate int, d time.Duration) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return max(frames, 1) * 2
}

func (f *FixedChunkReader) ChunkSize() int {
	return f.chunkSize
}

func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.chunkSize)
	}

	for len(f.buf) < f.chunkSize && !f.eof {
		n, err := f.r.Read(f.tmp)
		if n > 0 {
			f.buf = append(f.buf, f.tmp[:n]...)
		}
		if errors.Is(err, io.EOF) {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	n := min(f.chunkSize, len(f.buf))
	copy(p, f.buf[:n])
	f.buf = f.buf[:copy(f.buf, f.buf[n:])]
	return n, nil
}
