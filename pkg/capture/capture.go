// Package capture implements the outbound half of the audio pipeline: it
// pulls raw microphone samples from a Source, packs them into fixed-size
// wire frames, and meters voice activity on a side channel.
package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/core"
)

// DefaultFrameSamples is the fixed outbound frame size (128 ms at 16 kHz).
const DefaultFrameSamples = 2048

// Source yields raw microphone samples as floats in [-1, 1] at the capture
// sample rate. Implementations request echo cancellation and noise
// suppression from the device where the platform supports it.
type Source interface {
	// ReadSamples fills buf and returns the number of samples read.
	ReadSamples(buf []float32) (int, error)

	// Close releases the underlying device.
	Close() error
}

// Frame is one encoded outbound audio frame ready for the wire.
type Frame struct {
	// Payload is base64-wrapped 16-bit LE PCM.
	Payload string

	// Duration is the exact play time of the frame's samples.
	Duration time.Duration
}

// Options configures an Encoder.
type Options struct {
	// FrameSamples is the fixed frame size in samples. Default 2048.
	FrameSamples int

	// Logger for per-frame diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Encoder continuously reads from a Source, encodes fixed-size frames, and
// publishes RMS energy per frame. The energy side channel never blocks on
// the frame consumer: a slow transport drops frames but metering continues.
type Encoder struct {
	cfg          audio.Config
	frameSamples int
	source       Source
	logger       *slog.Logger

	frames chan Frame
	levels chan float64
	done   chan struct{}

	stopOnce sync.Once
	started  atomic.Bool

	errMu sync.Mutex
	err   error
}

// NewEncoder creates an Encoder over the given source.
func NewEncoder(source Source, opts Options) *Encoder {
	frameSamples := opts.FrameSamples
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		cfg:          audio.CaptureConfig(),
		frameSamples: frameSamples,
		source:       source,
		logger:       logger,
		frames:       make(chan Frame, 32),
		levels:       make(chan float64, 8),
		done:         make(chan struct{}),
	}
}

// Frames yields encoded outbound frames. Closed when the encoder stops.
func (e *Encoder) Frames() <-chan Frame {
	return e.frames
}

// Levels yields per-frame RMS energy for voice-activity detection.
// Values are dropped, never queued, when the consumer lags.
func (e *Encoder) Levels() <-chan float64 {
	return e.levels
}

// Start begins the capture loop. It may be called once.
func (e *Encoder) Start() error {
	if e.source == nil {
		return core.NewInvalidRequestError("capture source must not be nil")
	}
	if e.started.Swap(true) {
		return core.NewInvalidRequestError("encoder already started")
	}
	go e.run()
	return nil
}

// Stop terminates the capture loop and releases the source.
func (e *Encoder) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		_ = e.source.Close()
	})
}

// Err returns the terminal encoder error, if any. A plain end-of-stream is
// not an error; a device failure surfaces as a permission/device error.
func (e *Encoder) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *Encoder) setErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) run() {
	defer close(e.frames)
	defer close(e.levels)

	buf := make([]float32, e.frameSamples)
	filled := 0

	for {
		select {
		case <-e.done:
			return
		default:
		}

		n, err := e.source.ReadSamples(buf[filled:])
		if n > 0 {
			filled += n
		}
		if filled == e.frameSamples {
			e.emitFrame(buf)
			filled = 0
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.setErr(core.NewPermissionError("audio input device failed", err))
				e.logger.Error("capture source failed", "err", err)
			}
			return
		}
	}
}

// emitFrame meters then encodes one full frame. Metering happens first and
// never blocks; the frame itself is dropped if the consumer is full.
func (e *Encoder) emitFrame(samples []float32) {
	select {
	case e.levels <- audio.RMSEnergy(samples):
	default:
	}

	frame := Frame{
		Payload:  audio.EncodeFrame(audio.EncodePCM16(samples)),
		Duration: e.cfg.Duration(len(samples) * audio.BytesPerSample),
	}
	select {
	case e.frames <- frame:
	case <-e.done:
	default:
		e.logger.Warn("frame consumer stalled, dropping capture frame")
	}
}
