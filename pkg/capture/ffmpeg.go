package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"runtime"

	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/core"
)

// FFmpegSource captures microphone audio through an ffmpeg subprocess,
// resampled to 16 kHz mono float samples.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	raw    []byte
}

// NewFFmpegSource starts ffmpeg against the platform's default input device.
// A missing binary or an unsupported platform is a terminal permission-class
// error: the caller cannot retry its way out of it.
func NewFFmpegSource() (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, core.NewPermissionError("ffmpeg is required for microphone capture", err)
	}
	args, err := micArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, core.NewPermissionError("start microphone capture", err)
	}
	return &FFmpegSource{cmd: cmd, stdout: stdout}, nil
}

func micArgs(goos string) ([]string, error) {
	// The audio filters request the echo-cancellation/noise-suppression
	// analog of what a browser capture stream negotiates with the device.
	common := []string{
		"-ac", "1", "-ar", fmt.Sprintf("%d", audio.CaptureSampleRateHz),
		"-af", "afftdn",
		"-f", "f32le", "-",
	}
	switch goos {
	case "darwin":
		return append([]string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
		}, common...), nil
	case "linux":
		return append([]string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
		}, common...), nil
	default:
		return nil, core.NewPermissionError(
			fmt.Sprintf("microphone capture is not implemented for %s (supported: darwin, linux)", goos), nil)
	}
}

// ReadSamples implements Source.
func (s *FFmpegSource) ReadSamples(buf []float32) (int, error) {
	if s == nil || s.stdout == nil {
		return 0, io.EOF
	}
	need := len(buf) * 4
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]
	n, err := s.stdout.Read(raw)
	// Carry a partial trailing sample into the error path; ffmpeg writes
	// whole samples so in practice n is always a multiple of 4.
	samples := n / 4
	for i := 0; i < samples; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		buf[i] = math.Float32frombits(bits)
	}
	return samples, err
}

// Close implements Source.
func (s *FFmpegSource) Close() error {
	if s == nil {
		return nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	return nil
}
