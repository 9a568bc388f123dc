package audio

import (
	"math"
	"testing"
	"time"
)

func TestEncodePCM16_ClampsOutOfRange(t *testing.T) {
	pcm := EncodePCM16([]float32{2.0, -3.0})
	if len(pcm) != 4 {
		t.Fatalf("len = %d, want 4", len(pcm))
	}
	hi := int16(pcm[0]) | int16(pcm[1])<<8
	lo := int16(pcm[2]) | int16(pcm[3])<<8
	if hi != 32767 {
		t.Errorf("clamped positive = %d, want 32767", hi)
	}
	if lo != -32767 {
		t.Errorf("clamped negative = %d, want -32767", lo)
	}
}

func TestEncodeDecodePCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.99, -0.99}
	out := DecodePCM16(EncodePCM16(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > 1.0/32768.0+1e-6 {
			t.Errorf("sample %d: got %v, want ~%v", i, out[i], in[i])
		}
	}
}

func TestDecodePCM16_IgnoresTrailingByte(t *testing.T) {
	out := DecodePCM16([]byte{0x00, 0x40, 0x7f})
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
}

func TestConfig_DurationMath(t *testing.T) {
	cfg := PlaybackConfig()
	if got := cfg.BytesPerSecond(); got != 48000 {
		t.Fatalf("BytesPerSecond = %d, want 48000", got)
	}
	if got := cfg.Duration(48000); got != time.Second {
		t.Errorf("Duration(48000) = %v, want 1s", got)
	}
	if got := cfg.BytesForDuration(500 * time.Millisecond); got != 24000 {
		t.Errorf("BytesForDuration(500ms) = %d, want 24000", got)
	}

	out := CaptureConfig()
	if got := out.Duration(32000); got != time.Second {
		t.Errorf("capture Duration(32000) = %v, want 1s", got)
	}
}

func TestRMSEnergy(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("RMSEnergy(nil) = %v, want 0", got)
	}

	// A constant-amplitude signal has RMS equal to that amplitude.
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.5
	}
	if got := RMSEnergy(samples); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("RMSEnergy = %v, want 0.5", got)
	}

	// The PCM-bytes path should agree with the float path.
	pcm := EncodePCM16(samples)
	if got := RMSEnergyPCM(pcm); math.Abs(got-0.5) > 1e-3 {
		t.Errorf("RMSEnergyPCM = %v, want ~0.5", got)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	pcm := EncodePCM16([]float32{0.1, -0.1, 0.2})
	decoded, err := DecodeFrame(EncodeFrame(pcm))
	if err != nil {
		t.Fatalf("DecodeFrame error: %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Fatalf("frame round trip mismatch")
	}
	if _, err := DecodeFrame("not-base64!!"); err == nil {
		t.Fatalf("DecodeFrame should reject malformed input")
	}
}
