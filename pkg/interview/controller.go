package interview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxprep/voxprep/pkg/capture"
	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/realtime"
)

const (
	// DefaultCompletionFallbackDelay defers session end after a completion
	// signal when the playback scheduler cannot report remaining audio.
	DefaultCompletionFallbackDelay = 5 * time.Second

	// DefaultCompletionMargin is added to the remaining playback time so
	// the model's closing remarks are not cut off.
	DefaultCompletionMargin = time.Second

	// DefaultCaptureStartDelay is how long after the kickoff message the
	// microphone starts. Capturing first risks ambient noise being read as
	// the session-start trigger.
	DefaultCaptureStartDelay = 300 * time.Millisecond

	defaultKickoffMessage = "I'm ready. Please introduce yourself briefly and ask the first question."
)

// InitResult is what the collaborator returns at session init.
type InitResult struct {
	Credential         string                         `json:"credential"`
	ModelID            string                         `json:"modelId"`
	SystemInstructions string                         `json:"systemInstructions"`
	Tools              []realtime.FunctionDeclaration `json:"toolDefinitions,omitempty"`
	Questions          []Question                     `json:"questions"`
}

// SessionStore is the collaborator API surface the controller depends on.
type SessionStore interface {
	TurnStore
	InitSession(ctx context.Context, sessionID string) (*InitResult, error)
	FetchReport(ctx context.Context, sessionID string) (*Report, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// Transport is one live connection. realtime.Session implements it.
type Transport interface {
	Events() <-chan realtime.Event
	SendAudioFrame(payload string) error
	SendText(text string) error
	SendToolResponse(responses []realtime.FunctionResponse) error
	Close() error
}

// DialFunc opens a Transport.
type DialFunc func(ctx context.Context, cfg realtime.Config) (Transport, error)

// AudioCapture is the microphone pipeline. capture.Encoder implements it.
type AudioCapture interface {
	Start() error
	Stop()
	Frames() <-chan capture.Frame
	Levels() <-chan float64
	Err() error
}

// CaptureFactory builds a fresh capture pipeline per session; the encoder
// is single-use.
type CaptureFactory func() (AudioCapture, error)

// Player is the playback side. playback.Scheduler implements it.
type Player interface {
	Enqueue(payload string) (time.Duration, error)
	Active() bool
	MarkTurnBoundary()
	Remaining() time.Duration
	Reset()
}

// Config tunes one controller.
type Config struct {
	SessionID string

	// Endpoint and VoiceName are passed through to the transport dial.
	Endpoint  string
	VoiceName string

	VoiceActivityThreshold  float64
	FlushThreshold          int
	CaptureStartDelay       time.Duration
	CompletionMargin        time.Duration
	CompletionFallbackDelay time.Duration
	KickoffMessage          string

	Logger *slog.Logger
	Now    func() time.Time
}

func (c *Config) fillDefaults() {
	if c.VoiceActivityThreshold <= 0 {
		c.VoiceActivityThreshold = DefaultVoiceActivityThreshold
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = DefaultFlushThreshold
	}
	if c.CaptureStartDelay <= 0 {
		c.CaptureStartDelay = DefaultCaptureStartDelay
	}
	if c.CompletionMargin <= 0 {
		c.CompletionMargin = DefaultCompletionMargin
	}
	if c.CompletionFallbackDelay <= 0 {
		c.CompletionFallbackDelay = DefaultCompletionFallbackDelay
	}
	if c.KickoffMessage == "" {
		c.KickoffMessage = defaultKickoffMessage
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Deps are the controller's collaborators. Capture, playback and transport
// are exclusively owned by the controller for a session's lifetime.
type Deps struct {
	Store      SessionStore
	Dial       DialFunc
	NewCapture CaptureFactory
	Player     Player
}

// Snapshot is the controller's published state. The UI is a pure observer
// of this value.
type Snapshot struct {
	State                SessionState
	Conn                 ConnStatus
	Mode                 UIMode
	CurrentQuestion      int
	QuestionCount        int
	TurnCount            int
	AISignaledCompletion bool
	Err                  error
	Report               *Report
}

// Controller is the session state machine. All session state is mutated
// from a single run loop; observers read snapshots.
type Controller struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	cmds    chan command
	updates chan Snapshot

	mu      sync.Mutex
	snap    Snapshot
	running bool

	playerAbsent bool

	// Run-loop-owned state, untouched outside the loop.
	session      Transport
	mic          AudioCapture
	buffer       *TurnBuffer
	bridge       *Bridge
	questions    []Question
	aiText       string
	aiTranscript string
	userText     string
	aiTurns      int
	signaled     bool
}

type command int

const (
	cmdEnd command = iota
	cmdDispose
)

// noopPlayer stands in when no playback scheduler is available, e.g. a
// transcript-only run. Deferred completion then uses the fallback delay.
type noopPlayer struct{}

func (noopPlayer) Enqueue(string) (time.Duration, error) { return 0, nil }
func (noopPlayer) Active() bool                          { return false }
func (noopPlayer) MarkTurnBoundary()                     {}
func (noopPlayer) Remaining() time.Duration              { return 0 }
func (noopPlayer) Reset()                                {}

// NewController wires a controller. Start must be called to run a session.
func NewController(deps Deps, cfg Config) *Controller {
	cfg.fillDefaults()
	playerAbsent := deps.Player == nil
	if playerAbsent {
		deps.Player = noopPlayer{}
	}
	c := &Controller{
		cfg:          cfg,
		deps:         deps,
		playerAbsent: playerAbsent,
		logger:       cfg.Logger,
		cmds:         make(chan command, 4),
		updates:      make(chan Snapshot, 16),
		snap: Snapshot{
			State: StateIdle,
			Conn:  ConnDisconnected,
			Mode:  ModeIdle,
		},
	}
	return c
}

// Snapshot returns the current published state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Updates yields a snapshot after every state change. Slow consumers miss
// intermediate snapshots, never the channel.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

func (c *Controller) publish(mutate func(*Snapshot)) {
	c.mu.Lock()
	mutate(&c.snap)
	snap := c.snap
	c.mu.Unlock()
	select {
	case c.updates <- snap:
	default:
	}
}

// Start runs idle -> starting: init the session with the collaborator,
// reset playback, and connect the transport. The session goes active once
// the service confirms setup.
func (c *Controller) Start(ctx context.Context) error {
	snap := c.Snapshot()
	if snap.State != StateIdle {
		return core.NewInvalidRequestError("session can only start from idle")
	}

	// Commands queued against a previous session must not reach this one.
drain:
	for {
		select {
		case <-c.cmds:
		default:
			break drain
		}
	}

	c.publish(func(s *Snapshot) {
		s.State = StateStarting
		s.Conn = ConnConnecting
		s.Err = nil
		s.Report = nil
		s.AISignaledCompletion = false
		s.TurnCount = 0
		s.CurrentQuestion = 0
	})
	c.deps.Player.Reset()

	init, err := c.deps.Store.InitSession(ctx, c.cfg.SessionID)
	if err != nil {
		c.failStart(err)
		return err
	}
	tools := init.Tools
	if len(tools) == 0 {
		tools = ToolDeclarations()
	}

	session, err := c.deps.Dial(ctx, realtime.Config{
		Endpoint:          c.cfg.Endpoint,
		AccessToken:       init.Credential,
		Model:             init.ModelID,
		SystemInstruction: init.SystemInstructions,
		Tools:             tools,
		VoiceName:         c.cfg.VoiceName,
		Logger:            c.logger,
	})
	if err != nil {
		c.failStart(err)
		return err
	}

	c.session = session
	c.buffer = NewTurnBuffer(c.cfg.FlushThreshold, c.cfg.Now)
	c.bridge = NewBridge(c.deps.Store, c.buffer, c.cfg.SessionID, c.logger)
	c.questions = init.Questions
	c.aiText, c.aiTranscript, c.userText = "", "", ""
	c.aiTurns = 0
	c.signaled = false

	c.publish(func(s *Snapshot) {
		s.Conn = ConnConnected
		s.QuestionCount = len(c.questions)
	})

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	go c.run(ctx)
	return nil
}

func (c *Controller) failStart(err error) {
	c.logger.Error("session start failed", "session_id", c.cfg.SessionID, "error", err)
	c.publish(func(s *Snapshot) {
		s.State = StateError
		s.Conn = ConnError
		s.Err = err
	})
}

// End requests a user-initiated session end. Outside a running session it
// is a no-op so a late command cannot leak into the next session.
func (c *Controller) End() {
	switch c.Snapshot().State {
	case StateStarting, StateActive:
	default:
		return
	}
	select {
	case c.cmds <- cmdEnd:
	default:
	}
}

// Dispose tears the session down from any state.
func (c *Controller) Dispose() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		select {
		case c.cmds <- cmdDispose:
		default:
		}
		return
	}
	c.publish(func(s *Snapshot) {
		s.State = StateIdle
		s.Conn = ConnDisconnected
		s.Mode = ModeIdle
	})
}

// Retake clears the stored attempt so a fresh session starts clean. Only
// valid once the previous session is finished.
func (c *Controller) Retake(ctx context.Context) error {
	snap := c.Snapshot()
	if snap.State != StateCompleted && snap.State != StateError {
		return core.NewInvalidRequestError("retake requires a finished session")
	}
	if err := c.deps.Store.ResetSession(ctx, c.cfg.SessionID); err != nil {
		return err
	}
	c.publish(func(s *Snapshot) {
		*s = Snapshot{State: StateIdle, Conn: ConnDisconnected, Mode: ModeIdle}
	})
	return nil
}

func (c *Controller) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	var (
		frames       <-chan capture.Frame
		levels       <-chan float64
		captureTimer <-chan time.Time
		endTimer     <-chan time.Time
		events       = c.session.Events()
	)

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			c.publish(func(s *Snapshot) {
				s.State = StateIdle
				s.Conn = ConnDisconnected
				s.Mode = ModeIdle
			})
			return

		case cmd := <-c.cmds:
			switch cmd {
			case cmdEnd:
				c.finish(ctx)
				return
			case cmdDispose:
				c.teardown()
				c.publish(func(s *Snapshot) {
					s.State = StateIdle
					s.Conn = ConnDisconnected
					s.Mode = ModeIdle
				})
				return
			}

		case <-captureTimer:
			captureTimer = nil
			mic, err := c.deps.NewCapture()
			if err != nil {
				c.fail(err)
				return
			}
			if err := mic.Start(); err != nil {
				c.fail(err)
				return
			}
			c.mic = mic
			frames = mic.Frames()
			levels = mic.Levels()

		case frame, ok := <-frames:
			if !ok {
				// A closed frame channel with a recorded error means the
				// microphone died mid-session. That is terminal.
				if err := c.mic.Err(); err != nil {
					c.fail(err)
					return
				}
				frames = nil
				continue
			}
			if c.Snapshot().State != StateActive {
				continue
			}
			if err := c.session.SendAudioFrame(frame.Payload); err != nil {
				c.fail(err)
				return
			}

		case level, ok := <-levels:
			if !ok {
				levels = nil
				continue
			}
			mode := DeriveMode(level, c.cfg.VoiceActivityThreshold, c.deps.Player.Active())
			c.publish(func(s *Snapshot) { s.Mode = mode })

		case <-endTimer:
			c.finish(ctx)
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch e := event.(type) {
			case realtime.SetupCompleteEvent:
				c.publish(func(s *Snapshot) { s.State = StateActive })
				if err := c.session.SendText(c.cfg.KickoffMessage); err != nil {
					c.fail(err)
					return
				}
				captureTimer = time.After(c.cfg.CaptureStartDelay)

			case realtime.AudioFrameEvent:
				if !realtime.PlaybackMimeType(e.MimeType) {
					c.logger.Warn("dropping audio frame with unexpected format", "mime_type", e.MimeType)
					continue
				}
				if _, err := c.deps.Player.Enqueue(e.Payload); err != nil {
					// Malformed frame: drop it, the session continues.
					c.logger.Warn("dropping undecodable audio frame", "error", err)
				}

			case realtime.TextDeltaEvent:
				c.aiText += e.Text

			case realtime.OutputTranscriptionEvent:
				c.aiTranscript += e.Text

			case realtime.InputTranscriptionEvent:
				c.userText += e.Text

			case realtime.TurnCompleteEvent:
				c.commitTurns(ctx)
				c.deps.Player.MarkTurnBoundary()

			case realtime.InterruptedEvent:
				c.deps.Player.Reset()

			case realtime.ToolCallEvent:
				if done := c.handleToolCalls(ctx, e.Calls, &endTimer); done {
					return
				}

			case realtime.GoAwayEvent:
				c.logger.Warn("service will close the connection", "time_left", e.TimeLeft)

			case realtime.DisconnectedEvent:
				err := e.Err
				if err == nil {
					err = core.NewTransportError("session", "connection closed by the service", nil)
				}
				c.fail(err)
				return
			}
		}
	}
}

// commitTurns turns the accumulated transcription fragments into stored
// turns. The user's utterance precedes the model's reply to it.
func (c *Controller) commitTurns(ctx context.Context) {
	if c.userText != "" {
		c.bridge.AddTurn(ctx, SpeakerUser, c.userText, "")
		c.userText = ""
		c.publish(func(s *Snapshot) { s.TurnCount++ })
	}
	aiContent := c.aiTranscript
	if aiContent == "" {
		aiContent = c.aiText
	}
	if aiContent != "" {
		turnType := TurnQuestion
		switch {
		case c.aiTurns == 0:
			turnType = TurnIntroduction
		case c.signaled:
			turnType = TurnConclusion
		}
		c.bridge.AddTurn(ctx, SpeakerAI, aiContent, turnType)
		c.aiTurns++
		c.aiText, c.aiTranscript = "", ""
		c.publish(func(s *Snapshot) { s.TurnCount++ })
	}
}

func (c *Controller) handleToolCalls(ctx context.Context, calls []realtime.FunctionCall, endTimer *<-chan time.Time) bool {
	responses := make([]realtime.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		switch inv := ParseToolCall(call).(type) {
		case AnswerAssessment:
			c.bridge.SaveAnswer(ctx, inv.Answer)
			next := inv.Answer.QuestionIndex + 1
			c.publish(func(s *Snapshot) {
				if next > s.CurrentQuestion {
					s.CurrentQuestion = next
				}
			})

		case CompletionSignal:
			c.signaled = true
			delay := c.completionDelay()
			c.logger.Info("completion signaled, deferring end",
				"questions_asked", inv.QuestionsAsked,
				"delay", delay)
			c.publish(func(s *Snapshot) { s.AISignaledCompletion = true })
			*endTimer = time.After(delay)

		case IgnoredTool:
			c.logger.Debug("ignoring tool call", "tool", inv.Name)
		}
		responses = append(responses, realtime.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"acknowledged": true},
		})
	}
	if err := c.session.SendToolResponse(responses); err != nil {
		c.fail(err)
		return true
	}
	return false
}

// completionDelay is the remaining scheduled playback plus a safety margin,
// so the closing remarks play out before the session ends.
func (c *Controller) completionDelay() time.Duration {
	if c.playerAbsent {
		return c.cfg.CompletionFallbackDelay
	}
	return c.deps.Player.Remaining() + c.cfg.CompletionMargin
}

// finish runs the ending sequence: stop capture, disconnect, tail-flush,
// then fetch the report. A failed tail flush or report fetch still leaves
// the session completed; the graded answers went out individually already.
func (c *Controller) finish(ctx context.Context) {
	c.publish(func(s *Snapshot) {
		s.State = StateEnding
		s.Mode = ModeIdle
	})

	if c.mic != nil {
		c.mic.Stop()
		c.mic = nil
	}
	c.commitTurns(ctx)
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	c.publish(func(s *Snapshot) { s.Conn = ConnDisconnected })

	c.bridge.Wait()
	if err := c.bridge.Complete(ctx); err != nil {
		c.logger.Warn("final flush failed, completing anyway",
			"session_id", c.cfg.SessionID,
			"unflushed", c.buffer.Len(),
			"error", err)
		c.publish(func(s *Snapshot) {
			s.State = StateCompleted
			s.Err = err
		})
		return
	}

	c.publish(func(s *Snapshot) { s.State = StateGeneratingReport })
	report, err := c.deps.Store.FetchReport(ctx, c.cfg.SessionID)
	if err != nil {
		reportErr := core.NewReportError(err)
		c.logger.Warn("report generation failed", "session_id", c.cfg.SessionID, "error", err)
		c.publish(func(s *Snapshot) {
			s.State = StateCompleted
			s.Err = reportErr
		})
		return
	}
	c.publish(func(s *Snapshot) {
		s.State = StateCompleted
		s.Report = report
	})
}

// fail moves to the terminal error state and aborts in-flight work.
func (c *Controller) fail(err error) {
	c.logger.Error("session failed", "session_id", c.cfg.SessionID, "error", err)
	c.teardown()
	c.publish(func(s *Snapshot) {
		s.State = StateError
		s.Conn = ConnError
		s.Mode = ModeIdle
		s.Err = err
	})
}

func (c *Controller) teardown() {
	if c.mic != nil {
		c.mic.Stop()
		c.mic = nil
	}
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
	c.deps.Player.Reset()
}
