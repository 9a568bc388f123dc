package interview

import "testing"

func TestDeriveMode(t *testing.T) {
	const threshold = 0.02
	cases := []struct {
		name           string
		level          float64
		playbackActive bool
		want           UIMode
	}{
		{"silent, no playback", 0.0, false, ModeIdle},
		{"silent, playback active", 0.0, true, ModeAI},
		{"below threshold, playback active", 0.019, true, ModeAI},
		{"at threshold, playback active", 0.02, true, ModeAI},
		{"speech, no playback", 0.4, false, ModeUser},
		{"speech wins over playback", 0.4, true, ModeUser},
		{"just over threshold wins over playback", 0.021, true, ModeUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveMode(tc.level, threshold, tc.playbackActive); got != tc.want {
				t.Fatalf("DeriveMode(%v, %v, %v) = %q, want %q",
					tc.level, threshold, tc.playbackActive, got, tc.want)
			}
		})
	}
}
