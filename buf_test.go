package realtime

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedChunkReader(t *testing.T) {
	r := NewFixedChunkReader(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}), 4)
	buf := make([]byte, 8)

	var chunks [][]byte
	for {
		n, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, append([]byte(nil), buf[:n]...))
	}

	assert.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10}}, chunks)
}

func TestFixedChunkReaderShortBuffer(t *testing.T) {
	r := NewFixedChunkReader(bytes.NewReader(nil), 4)
	_, err := r.Read(make([]byte, 3))
	require.Error(t, err)
}

func TestAudioChunkSize(t *testing.T) {
	assert.Equal(t, 9600, chunkSize(24_000, 200*time.Millisecond))
	assert.Equal(t, 4800, NewAudioChunkReader(bytes.NewReader(nil), 24_000, 100*time.Millisecond).ChunkSize())
	assert.Equal(t, 2, chunkSize(24_000, 0))
}
