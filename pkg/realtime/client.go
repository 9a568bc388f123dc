package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/core"
)

const (
	// DefaultEndpoint is the bidirectional streaming endpoint of the
	// conversational AI service.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultDialTimeout = 15 * time.Second

	captureMimeType = "audio/pcm;rate=16000"
)

// Config configures one live session. Exactly one of AccessToken (the
// short-lived credential minted at session init) or APIKey must be set.
type Config struct {
	Endpoint    string
	AccessToken string
	APIKey      string

	Model             string
	SystemInstruction string
	Tools             []FunctionDeclaration
	VoiceName         string

	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Session is one live websocket connection. A session is single-use: once
// the connection drops, the caller starts over with a new Dial.
type Session struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial connects, sends the setup message, and starts the read loop. The
// returned session is not ready for realtime input until SetupCompleteEvent
// arrives on Events(); enforcing that is the caller's job.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, core.NewInvalidRequestError("model must not be empty")
	}
	if cfg.AccessToken == "" && cfg.APIKey == "" {
		return nil, core.NewInvalidRequestError("an access token or API key is required")
	}

	endpoint, err := sessionURL(cfg)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		timeout := cfg.DialTimeout
		if timeout <= 0 {
			timeout = defaultDialTimeout
		}
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	conn, resp, err := dialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, core.NewTransportError("dial", "websocket dial rejected: "+resp.Status, err)
		}
		return nil, core.NewTransportError("dial", "websocket dial failed", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		conn:   conn,
		logger: logger,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}

	if err := s.sendJSON(ClientMessage{Setup: buildSetup(cfg)}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.emit(ConnectedEvent{})
	go s.readLoop()
	return s, nil
}

func sessionURL(cfg Config) (string, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid session endpoint")
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", core.NewInvalidRequestError("session endpoint must use ws(s) or http(s)")
	}
	q := u.Query()
	if cfg.AccessToken != "" {
		q.Set("access_token", cfg.AccessToken)
	} else {
		q.Set("key", cfg.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func buildSetup(cfg Config) *Setup {
	setup := &Setup{
		Model: cfg.Model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if cfg.VoiceName != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: &VoiceConfig{
				PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &Content{
			Parts: []Part{{Text: cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		setup.Tools = []Tool{{FunctionDeclarations: cfg.Tools}}
	}
	return setup
}

// Events yields the session's inbound events. The channel closes after a
// final DisconnectedEvent.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// SendAudioFrame streams one base64 PCM16 capture frame.
func (s *Session) SendAudioFrame(payload string) error {
	return s.sendJSON(ClientMessage{
		RealtimeInput: &RealtimeInput{
			Audio: &Blob{MimeType: captureMimeType, Data: payload},
		},
	})
}

// SendText sends a complete user text turn, e.g. the kickoff message.
func (s *Session) SendText(text string) error {
	return s.sendJSON(ClientMessage{
		ClientContent: &ClientContent{
			Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
			TurnComplete: true,
		},
	})
}

// SendToolResponse acknowledges tool calls.
func (s *Session) SendToolResponse(responses []FunctionResponse) error {
	return s.sendJSON(ClientMessage{
		ToolResponse: &ToolResponse{FunctionResponses: responses},
	})
}

func (s *Session) sendJSON(v any) error {
	if s == nil {
		return core.NewInvalidRequestError("session must not be nil")
	}
	if s.closed.Load() {
		return core.NewTransportError("write", "session is closed", nil)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return core.NewTransportError("write", "websocket write failed", err)
	}
	return nil
}

// Close closes the connection and waits for the read loop to finish.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err blocks until the session ends and returns its terminal error, nil on
// a clean close.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(DisconnectedEvent{})
				return
			}
			terminal := core.NewTransportError("read", "connection lost", err)
			s.setErr(terminal)
			s.emit(DisconnectedEvent{Err: terminal})
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			terminal := core.NewTransportError("read", "malformed server frame", err)
			s.setErr(terminal)
			s.emit(DisconnectedEvent{Err: terminal})
			return
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg ServerMessage) {
	switch {
	case msg.SetupComplete != nil:
		s.emit(SetupCompleteEvent{})
	case msg.ServerContent != nil:
		s.dispatchContent(msg.ServerContent)
	case msg.ToolCall != nil:
		if len(msg.ToolCall.FunctionCalls) > 0 {
			s.emit(ToolCallEvent{Calls: msg.ToolCall.FunctionCalls})
		}
	case msg.GoAway != nil:
		s.emit(GoAwayEvent{TimeLeft: msg.GoAway.TimeLeft})
	default:
		// Unknown frame kinds are skipped so protocol additions do not
		// break running sessions.
	}
}

func (s *Session) dispatchContent(content *ServerContent) {
	if content.Interrupted {
		s.emit(InterruptedEvent{})
	}
	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		s.emit(InputTranscriptionEvent{Text: content.InputTranscription.Text})
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		s.emit(OutputTranscriptionEvent{Text: content.OutputTranscription.Text})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			switch {
			case part.InlineData != nil && strings.HasPrefix(part.InlineData.MimeType, "audio/pcm"):
				s.emit(AudioFrameEvent{
					Payload:  part.InlineData.Data,
					MimeType: part.InlineData.MimeType,
				})
			case part.Text != "":
				s.emit(TextDeltaEvent{Text: part.Text})
			}
		}
	}
	if content.TurnComplete {
		s.emit(TurnCompleteEvent{})
	}
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("event consumer stalled, dropping event",
			"event", event.eventType())
	}
}

// PlaybackMimeType reports whether a mime type matches the inbound audio
// contract. The rate is pinned; a mismatch means misconfiguration upstream.
func PlaybackMimeType(mimeType string) bool {
	if !strings.HasPrefix(mimeType, "audio/pcm") {
		return false
	}
	_, rate, found := strings.Cut(mimeType, "rate=")
	if !found {
		// Rate omitted: the contract's default applies.
		return true
	}
	want := strconv.Itoa(audio.PlaybackSampleRateHz)
	return strings.TrimSpace(rate) == want || strings.HasPrefix(rate, want+";")
}
