// Package audio holds the PCM math shared by the capture and playback
// pipelines: format configuration, float/int16 conversion, base64 framing,
// and energy metering for voice-activity detection.
package audio

import (
	"encoding/base64"
	"math"
	"time"
)

// Capture and playback use different sample rates. The asymmetry is a
// contract of the remote conversational service and must be preserved.
const (
	CaptureSampleRateHz  = 16000
	PlaybackSampleRateHz = 24000
	BytesPerSample       = 2
)

// Config specifies PCM format parameters for one direction of audio.
type Config struct {
	SampleRateHz  int `json:"sample_rate_hz"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// CaptureConfig returns the outbound (microphone) wire format.
func CaptureConfig() Config {
	return Config{SampleRateHz: CaptureSampleRateHz, Channels: 1, BitsPerSample: 16}
}

// PlaybackConfig returns the inbound (model speech) wire format.
func PlaybackConfig() Config {
	return Config{SampleRateHz: PlaybackSampleRateHz, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRateHz * c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the play time of the given byte count.
func (c Config) Duration(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// BytesForDuration returns the byte count covering d.
func (c Config) BytesForDuration(d time.Duration) int {
	return int(int64(c.BytesPerSecond()) * int64(d) / int64(time.Second))
}

// EncodePCM16 converts float samples to 16-bit signed little-endian PCM.
// Each sample is clamped to [-1, 1] before scaling.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM to float samples
// normalized to [-1, 1]. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out
}

// EncodeFrame wraps raw PCM bytes for the JSON wire format.
func EncodeFrame(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame unwraps a base64 wire payload back to raw PCM bytes.
func DecodeFrame(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}

// RMSEnergy computes the root-mean-square energy of float samples.
// Returns a value between 0.0 and 1.0.
func RMSEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMSEnergyPCM computes RMS energy directly from 16-bit LE PCM bytes.
func RMSEnergyPCM(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		v := int16(pcm[i]) | int16(pcm[i+1])<<8
		n := float64(v) / 32768.0
		sum += n * n
	}
	return math.Sqrt(sum / float64(samples))
}
