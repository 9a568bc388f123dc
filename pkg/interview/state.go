package interview

// SessionState is the session lifecycle status.
type SessionState string

const (
	StateIdle             SessionState = "idle"
	StateStarting         SessionState = "starting"
	StateActive           SessionState = "active"
	StateEnding           SessionState = "ending"
	StateGeneratingReport SessionState = "generating-report"
	StateCompleted        SessionState = "completed"
	// StateError is terminal until an explicit restart.
	StateError SessionState = "error"
)

// ConnStatus is the transport connection status.
type ConnStatus string

const (
	ConnDisconnected ConnStatus = "disconnected"
	ConnConnecting   ConnStatus = "connecting"
	ConnConnected    ConnStatus = "connected"
	ConnError        ConnStatus = "error"
)

// UIMode drives the visual indicator. It is derived, never stored.
type UIMode string

const (
	ModeIdle UIMode = "idle"
	ModeUser UIMode = "user"
	ModeAI   UIMode = "ai"
)

// DefaultVoiceActivityThreshold is the RMS energy above which the user is
// considered to be speaking.
const DefaultVoiceActivityThreshold = 0.02

// DeriveMode computes the UI mode. Energy over the threshold always wins:
// the microphone stays live while the model talks, and user speech must
// show as user speech. Below threshold the mode follows playback.
func DeriveMode(level, threshold float64, playbackActive bool) UIMode {
	if level > threshold {
		return ModeUser
	}
	if playbackActive {
		return ModeAI
	}
	return ModeIdle
}
