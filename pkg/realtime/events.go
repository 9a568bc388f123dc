package realtime

// Event is emitted by Session.Events(). Order matches wire order.
type Event interface {
	eventType() string
}

// ConnectedEvent fires once after the websocket dial succeeds.
type ConnectedEvent struct{}

func (ConnectedEvent) eventType() string { return "connected" }

// SetupCompleteEvent fires when the server accepts the setup message.
// Nothing should be sent on the session before this arrives.
type SetupCompleteEvent struct{}

func (SetupCompleteEvent) eventType() string { return "setup_complete" }

// AudioFrameEvent carries one base64 PCM16 chunk of model speech at 24 kHz.
type AudioFrameEvent struct {
	Payload  string
	MimeType string
}

func (AudioFrameEvent) eventType() string { return "audio_frame" }

// TextDeltaEvent carries a partial text fragment of the model's turn.
type TextDeltaEvent struct {
	Text string
}

func (TextDeltaEvent) eventType() string { return "text_delta" }

// InputTranscriptionEvent is a fragment of the recognized user speech.
type InputTranscriptionEvent struct {
	Text string
}

func (InputTranscriptionEvent) eventType() string { return "input_transcription" }

// OutputTranscriptionEvent is a fragment of the transcript of model speech.
type OutputTranscriptionEvent struct {
	Text string
}

func (OutputTranscriptionEvent) eventType() string { return "output_transcription" }

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) eventType() string { return "turn_complete" }

// InterruptedEvent means the model's turn was cut off by user speech.
type InterruptedEvent struct{}

func (InterruptedEvent) eventType() string { return "interrupted" }

// ToolCallEvent delivers the function calls of one toolCall frame.
type ToolCallEvent struct {
	Calls []FunctionCall
}

func (ToolCallEvent) eventType() string { return "tool_call" }

// GoAwayEvent warns that the server will drop the connection.
type GoAwayEvent struct {
	TimeLeft string
}

func (GoAwayEvent) eventType() string { return "go_away" }

// DisconnectedEvent is the last event on the channel. Err carries the
// terminal error, nil on a clean close.
type DisconnectedEvent struct {
	Err error
}

func (DisconnectedEvent) eventType() string { return "disconnected" }
