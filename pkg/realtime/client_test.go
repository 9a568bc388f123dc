package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxprep/voxprep/pkg/core"
)

func newWebsocketTestServer(t *testing.T, handler func(conn *websocket.Conn)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return wsURL, server.Close
}

func dialTest(t *testing.T, endpoint string) *Session {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session, err := Dial(ctx, Config{
		Endpoint:    endpoint,
		AccessToken: "tok_test",
		Model:       "models/gemini-2.0-flash-live-001",
	})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	return session
}

func collectEvents(t *testing.T, session *Session) []Event {
	t.Helper()

	var events []Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event, ok := <-session.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			t.Fatalf("timed out waiting for session events, got %d so far", len(events))
		}
	}
}

func TestDial_RequiresModelAndCredential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := Dial(ctx, Config{AccessToken: "tok"}); core.KindOf(err) != core.ErrInvalidRequest {
		t.Fatalf("missing model: err = %v", err)
	}
	if _, err := Dial(ctx, Config{Model: "models/x"}); core.KindOf(err) != core.ErrInvalidRequest {
		t.Fatalf("missing credential: err = %v", err)
	}
}

func TestDial_SendsSetupWithToolsAndTranscription(t *testing.T) {
	t.Parallel()

	setupCh := make(chan ClientMessage, 1)
	serverURL, closeServer := newWebsocketTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		setupCh <- msg
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	session, err := Dial(ctx, Config{
		Endpoint:          serverURL,
		AccessToken:       "tok_test",
		Model:             "models/gemini-2.0-flash-live-001",
		SystemInstruction: "You are an interviewer.",
		Tools: []FunctionDeclaration{
			{Name: "complete_interview"},
			{Name: "record_answer_assessment"},
		},
	})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer session.Close()

	msg := <-setupCh
	if msg.Setup == nil {
		t.Fatalf("first frame was not a setup message")
	}
	if msg.Setup.Model != "models/gemini-2.0-flash-live-001" {
		t.Fatalf("setup model = %q", msg.Setup.Model)
	}
	if msg.Setup.SystemInstruction == nil || msg.Setup.SystemInstruction.Parts[0].Text != "You are an interviewer." {
		t.Fatalf("setup lost the system instruction: %+v", msg.Setup.SystemInstruction)
	}
	if len(msg.Setup.Tools) != 1 || len(msg.Setup.Tools[0].FunctionDeclarations) != 2 {
		t.Fatalf("setup tools = %+v", msg.Setup.Tools)
	}
	if msg.Setup.InputAudioTranscription == nil || msg.Setup.OutputAudioTranscription == nil {
		t.Fatalf("setup must enable transcription both ways")
	}

	events := collectEvents(t, session)
	var sawSetupComplete bool
	for _, event := range events {
		if _, ok := event.(SetupCompleteEvent); ok {
			sawSetupComplete = true
		}
	}
	if !sawSetupComplete {
		t.Fatalf("no SetupCompleteEvent in %v", events)
	}
	if err := session.Err(); err != nil {
		t.Fatalf("session err after clean close: %v", err)
	}
}

func TestSession_EventOrderWithinServerContent(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newWebsocketTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "I led the migration"},
		}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []map[string]any{
				{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "AAAA"}},
				{"text": "Good, tell me more"},
			}},
			"outputTranscription": map[string]any{"text": "Good, tell me more"},
		}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
			"turnComplete": true,
		}})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	session := dialTest(t, serverURL)
	defer session.Close()

	events := collectEvents(t, session)

	var kinds []string
	for _, event := range events {
		kinds = append(kinds, event.eventType())
	}
	want := []string{
		"connected",
		"setup_complete",
		"input_transcription",
		"output_transcription",
		"audio_frame",
		"text_delta",
		"turn_complete",
		"disconnected",
	}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (all: %v)", i, kinds[i], want[i], kinds)
		}
	}
}

func TestSession_ToolCallAndInterrupt(t *testing.T) {
	t.Parallel()

	toolResponseCh := make(chan ClientMessage, 1)
	serverURL, closeServer := newWebsocketTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"interrupted": true}})
		_ = conn.WriteJSON(map[string]any{"toolCall": map[string]any{
			"functionCalls": []map[string]any{
				{"id": "fc_1", "name": "complete_interview", "args": map[string]any{"questions_asked": 3}},
			},
		}})
		var reply ClientMessage
		if err := conn.ReadJSON(&reply); err != nil {
			return
		}
		toolResponseCh <- reply
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	session := dialTest(t, serverURL)
	defer session.Close()

	var sawInterrupt bool
	for event := range session.Events() {
		switch e := event.(type) {
		case InterruptedEvent:
			sawInterrupt = true
		case ToolCallEvent:
			if len(e.Calls) != 1 || e.Calls[0].Name != "complete_interview" {
				t.Fatalf("tool call = %+v", e.Calls)
			}
			if err := session.SendToolResponse([]FunctionResponse{
				{ID: e.Calls[0].ID, Name: e.Calls[0].Name, Response: map[string]any{"acknowledged": true}},
			}); err != nil {
				t.Fatalf("SendToolResponse: %v", err)
			}
		}
	}
	if !sawInterrupt {
		t.Fatalf("interrupted flag was not surfaced")
	}

	reply := <-toolResponseCh
	if reply.ToolResponse == nil || len(reply.ToolResponse.FunctionResponses) != 1 {
		t.Fatalf("tool response = %+v", reply.ToolResponse)
	}
	if got := reply.ToolResponse.FunctionResponses[0].ID; got != "fc_1" {
		t.Fatalf("tool response id = %q", got)
	}
}

func TestSession_AbruptCloseIsTransportError(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newWebsocketTestServer(t, func(conn *websocket.Conn) {
		var msg ClientMessage
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		// Drop the connection without a close handshake.
		_ = conn.Close()
	})
	defer closeServer()

	session := dialTest(t, serverURL)
	defer session.Close()

	events := collectEvents(t, session)
	last, ok := events[len(events)-1].(DisconnectedEvent)
	if !ok {
		t.Fatalf("last event = %T, want DisconnectedEvent", events[len(events)-1])
	}
	if core.KindOf(last.Err) != core.ErrTransport {
		t.Fatalf("disconnect err kind = %q, want transport", core.KindOf(last.Err))
	}
	if core.KindOf(session.Err()) != core.ErrTransport {
		t.Fatalf("session err kind = %q, want transport", core.KindOf(session.Err()))
	}
}

func TestSession_SendAfterCloseFails(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newWebsocketTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var msg ClientMessage
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer closeServer()

	session := dialTest(t, serverURL)
	if err := session.SendAudioFrame("AAAA"); err != nil {
		t.Fatalf("SendAudioFrame while open: %v", err)
	}
	_ = session.Close()
	if err := session.SendAudioFrame("AAAA"); core.KindOf(err) != core.ErrTransport {
		t.Fatalf("send after close: err = %v", err)
	}
}

func TestPlaybackMimeType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mime string
		want bool
	}{
		{"audio/pcm;rate=24000", true},
		{"audio/pcm", true},
		{"audio/pcm;rate=16000", false},
		{"audio/ogg", false},
	}
	for _, tc := range cases {
		if got := PlaybackMimeType(tc.mime); got != tc.want {
			t.Errorf("PlaybackMimeType(%q) = %v, want %v", tc.mime, got, tc.want)
		}
	}
}
