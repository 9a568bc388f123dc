package playback

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/voxprep/voxprep/pkg/audio"
)

// FFplaySink renders 24 kHz mono PCM through an ffplay subprocess.
// Sequential writes to ffplay's stdin are rendered gaplessly; Reset
// restarts the process, dropping whatever it had buffered.
type FFplaySink struct {
	path     string
	logLevel string
	volume   int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFplaySink starts an ffplay process for the playback wire format.
func NewFFplaySink() (*FFplaySink, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, fmt.Errorf("ffplay is required for playback (install ffmpeg/ffplay): %w", err)
	}
	s := &FFplaySink{path: "ffplay", logLevel: "error", volume: 80}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s, s.startLocked()
}

func (s *FFplaySink) startLocked() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}
	args := []string{
		"-hide_banner",
		"-loglevel", s.logLevel,
		"-nostats",
		"-volume", fmt.Sprintf("%d", s.volume),
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", fmt.Sprintf("%d", audio.PlaybackSampleRateHz),
		"-i", "-",
	}
	cmd := exec.Command(s.path, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL can pick a silent dummy backend on macOS; prefer CoreAudio.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return err
	}
	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		_ = c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

// Play implements Sink.
func (s *FFplaySink) Play(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		if err := s.startLocked(); err != nil {
			return err
		}
	}
	_, err := s.stdin.Write(pcm)
	return err
}

// Reset implements Sink by restarting ffplay, dropping buffered audio.
func (s *FFplaySink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.startLocked()
}

// Close implements Sink.
func (s *FFplaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *FFplaySink) closeLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
}
