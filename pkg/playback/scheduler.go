// Package playback implements gapless scheduling of inbound model speech.
// Frames arrive in playback order but with arbitrary network jitter; the
// scheduler lines them up back to back on an audio-clock cursor so the
// output contains no gaps and no overlap.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/core"
)

// scheduleLead is how far ahead of a frame's start time the sink write is
// issued, and how early the active flag flips before audible output.
const scheduleLead = 20 * time.Millisecond

// Sink is the audio output device. Sequential Play calls are rendered
// back to back; Reset drops anything not yet rendered.
type Sink interface {
	Play(pcm []byte) error
	Reset() error
	Close() error
}

// Scheduler drives a Sink from a stream of wire frames.
//
// One AI turn can arrive as several bursts, so the active flag is not
// cleared when the queue drains; it is cleared only by MarkTurnBoundary.
type Scheduler struct {
	cfg    audio.Config
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	epoch  time.Time
	cursor time.Duration
	active bool
	gen    int
	timers map[*time.Timer]struct{}
}

// Options configures a Scheduler.
type Options struct {
	// Now overrides the audio clock source. Nil means time.Now.
	Now func() time.Time

	// Logger for per-frame diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// NewScheduler creates a Scheduler over the given sink.
func NewScheduler(sink Sink, opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cfg:    audio.PlaybackConfig(),
		sink:   sink,
		logger: logger,
		now:    now,
		timers: make(map[*time.Timer]struct{}),
	}
	s.epoch = now()
	return s
}

// clockLocked returns the current audio-clock reading.
func (s *Scheduler) clockLocked() time.Duration {
	return s.now().Sub(s.epoch)
}

// Enqueue decodes one wire frame and schedules it at the cursor.
// It returns the frame's computed start time on the audio clock.
//
// A malformed frame is dropped with a warning; the session continues.
func (s *Scheduler) Enqueue(payload string) (time.Duration, error) {
	pcm, err := audio.DecodeFrame(payload)
	if err != nil {
		decodeErr := core.NewPlaybackDecodeError("bad base64 audio frame", err)
		s.logger.Warn("dropping inbound frame", "err", decodeErr)
		return 0, decodeErr
	}
	if len(pcm) < audio.BytesPerSample {
		decodeErr := core.NewPlaybackDecodeError("frame shorter than one sample", nil)
		s.logger.Warn("dropping inbound frame", "err", decodeErr)
		return 0, decodeErr
	}
	// Trim a trailing odd byte rather than rejecting the whole frame.
	pcm = pcm[:len(pcm)/audio.BytesPerSample*audio.BytesPerSample]

	duration := s.cfg.Duration(len(pcm))

	s.mu.Lock()
	clock := s.clockLocked()
	if s.cursor < clock {
		// Underrun: snap forward to now instead of stacking a backlog of
		// retroactive starts.
		s.cursor = clock
	}
	start := s.cursor
	s.cursor = start + duration
	s.active = true
	gen := s.gen

	delay := start - clock - scheduleLead
	if delay < 0 {
		delay = 0
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		stale := gen != s.gen
		s.mu.Unlock()
		if stale {
			return
		}
		if err := s.sink.Play(pcm); err != nil {
			s.logger.Warn("sink write failed", "err", err)
		}
	})
	s.timers[timer] = struct{}{}
	s.mu.Unlock()

	return start, nil
}

// Active reports whether an AI turn is currently audible or imminently so.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// MarkTurnBoundary clears the active flag. Only an explicit turn-boundary
// event may clear it; a momentarily empty queue between bursts may not.
func (s *Scheduler) MarkTurnBoundary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// Remaining returns how much scheduled audio is still ahead of the clock.
func (s *Scheduler) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.cursor - s.clockLocked()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset discards the cursor and all scheduled-but-unplayed audio. Used on
// session (re)start and teardown; pending audio is dropped, not drained.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.gen++
	for timer := range s.timers {
		timer.Stop()
		delete(s.timers, timer)
	}
	s.epoch = s.now()
	s.cursor = 0
	s.active = false
	s.mu.Unlock()

	if err := s.sink.Reset(); err != nil {
		s.logger.Warn("sink reset failed", "err", err)
	}
}

// Close resets the scheduler and releases the sink.
func (s *Scheduler) Close() error {
	s.Reset()
	return s.sink.Close()
}
