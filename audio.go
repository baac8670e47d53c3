package realtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/codewandler/realtime-go/api"
	"github.com/codewandler/realtime-go/internal/pcm"
	"github.com/smallnest/ringbuffer"
)

const playbackWindow = 60 * time.Second

var ErrPlaybackFull = errors.New("playback buffer full")

// AudioIO bridges a caller's audio device to the conversation. The device
// runs at deviceRate, the conversation at rate.
type AudioIO struct {
	rate       int
	deviceRate int
	logger     *slog.Logger

	capture  *ringbuffer.RingBuffer // device audio resampled to rate
	playback *ringbuffer.RingBuffer // assistant audio resampled to deviceRate

	input        io.Writer // input receives microphone audio from the caller.
	output       io.Reader // output yields assistant audio for the speaker.
	captureChunk *FixedChunkReader
}

func NewAudioIO(rate, deviceRate int, latency time.Duration, logger *slog.Logger) *AudioIO {
	capture := ringbuffer.New(chunkSize(rate, latency) * 4).SetBlocking(true)
	playback := ringbuffer.New(chunkSize(deviceRate, playbackWindow)).SetBlocking(true)

	return &AudioIO{
		rate:       rate,
		deviceRate: deviceRate,
		logger:     logger,
		capture:    capture,
		playback:   playback,
		input: &ResampleWriter{
			Sink:     capture,
			FromRate: deviceRate,
			ToRate:   rate,
		},
		output:       NewAudioChunkReader(playback, deviceRate, latency),
		captureChunk: NewAudioChunkReader(capture, rate, latency),
	}
}

// Play queues assistant audio for the speaker without waiting for the reader.
// Audio that does not fit into the playback buffer is dropped and reported
// as ErrPlaybackFull.
func (a *AudioIO) Play(samples []int16) error {
	out, err := ResamplePCM(samples, a.rate, a.deviceRate)
	if err != nil {
		return err
	}

	data := pcm.Encode(out)
	dropped := 0
	if free := a.playback.Free() &^ 1; free < len(data) {
		dropped = len(data) - free
		data = data[:free]
	}
	for len(data) > 0 {
		n, err := a.playback.TryWrite(data)
		data = data[n:]
		switch {
		case err == nil:
		case errors.Is(err, ringbuffer.ErrAcquireLock):
			runtime.Gosched()
		case errors.Is(err, ringbuffer.ErrIsFull), errors.Is(err, ringbuffer.ErrTooMuchDataToWrite):
			dropped += len(data)
			data = nil
		default:
			return err
		}
	}

	if dropped > 0 {
		return fmt.Errorf("%w: dropped %d samples", ErrPlaybackFull, dropped/2)
	}
	return nil
}

// Interrupt drops assistant audio that has not been read yet. A reader blocked
// on the speaker side keeps waiting for new audio.
func (a *AudioIO) Interrupt() {
	discard := make([]byte, 32*1024)
	for {
		n, err := a.playback.TryRead(discard)
		if errors.Is(err, ringbuffer.ErrAcquireLock) {
			runtime.Gosched()
			continue
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// pump sends captured audio until the capture buffer is closed.
func (a *AudioIO) pump(send func([]int16) error) {
	buf := make([]byte, a.captureChunk.ChunkSize())
	for {
		n, err := a.captureChunk.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.logger.Error("failed to read captured audio", slog.Any("err", err))
			}
			return
		}

		if err := send(pcm.Decode(buf[:n])); err != nil {
			if errors.Is(err, api.ErrNotConnected) {
				a.logger.Debug("dropping captured audio, not connected")
				continue
			}
			a.logger.Error("failed to send captured audio", slog.Any("err", err))
		}
	}
}

func (a *AudioIO) Close() {
	a.capture.CloseWriter()
	a.playback.CloseWriter()
}
