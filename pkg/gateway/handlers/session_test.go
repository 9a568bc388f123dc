package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxprep/voxprep/pkg/gateway/config"
	"github.com/voxprep/voxprep/pkg/gateway/report"
	"github.com/voxprep/voxprep/pkg/gateway/server"
	"github.com/voxprep/voxprep/pkg/gateway/store"
	"github.com/voxprep/voxprep/pkg/gateway/tokens"
	"github.com/voxprep/voxprep/pkg/interview"
)

func testConfig() config.Config {
	return config.Config{
		AuthMode:     config.AuthModeDisabled,
		Model:        "gemini-2.0-flash-live-001",
		VoiceName:    "Puck",
		MaxBodyBytes: 1 << 20,
	}
}

func newTestGateway(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	questions := []interview.Question{
		{Text: "Tell me about yourself.", Category: "background"},
		{Text: "Describe a hard bug you fixed.", Category: "behavioral"},
	}
	srv := server.New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), server.Deps{
		Store:     mem,
		Minter:    tokens.Static{Credential: "test-token"},
		Reports:   report.Plain{},
		Questions: questions,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mem
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, out
}

func initSession(t *testing.T, ts *httptest.Server, sessionID string) interview.InitResult {
	t.Helper()
	resp, body := postJSON(t, ts.URL+"/v1/session/init", map[string]string{"sessionId": sessionID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("init status = %d, body %s", resp.StatusCode, body)
	}
	var out interview.InitResult
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode init response: %v", err)
	}
	return out
}

func turnsUpTo(from, to int) []interview.ConversationTurn {
	var out []interview.ConversationTurn
	for seq := from; seq <= to; seq++ {
		speaker := interview.SpeakerAI
		if seq%2 == 0 {
			speaker = interview.SpeakerUser
		}
		out = append(out, interview.ConversationTurn{
			Seq:       seq,
			Speaker:   speaker,
			Content:   "turn",
			Timestamp: time.Date(2026, 3, 14, 9, 0, seq, 0, time.UTC),
		})
	}
	return out
}

func TestInit_ReturnsSessionMaterial(t *testing.T) {
	t.Parallel()
	ts, _ := newTestGateway(t)

	out := initSession(t, ts, "sess-init")
	if out.Credential != "test-token" {
		t.Fatalf("credential = %q", out.Credential)
	}
	if out.ModelID != "gemini-2.0-flash-live-001" {
		t.Fatalf("modelId = %q", out.ModelID)
	}
	if len(out.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(out.Questions))
	}
	if len(out.Tools) != 2 {
		t.Fatalf("tool declarations = %d, want 2", len(out.Tools))
	}
	if out.SystemInstructions == "" {
		t.Fatal("system instructions empty")
	}
}

func TestFlush_SavesContiguousBatches(t *testing.T) {
	t.Parallel()
	ts, mem := newTestGateway(t)
	initSession(t, ts, "sess-flush")

	resp, body := postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-flush",
		"turns":     turnsUpTo(1, 8),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("flush status = %d, body %s", resp.StatusCode, body)
	}
	var out struct {
		SavedCount int `json:"savedCount"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode flush response: %v", err)
	}
	if out.SavedCount != 8 {
		t.Fatalf("savedCount = %d, want 8", out.SavedCount)
	}

	stored, err := mem.Transcript(t.Context(), "sess-flush")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(stored) != 8 {
		t.Fatalf("stored turns = %d, want 8", len(stored))
	}
}

func TestFlush_RetriedBatchIsIdempotent(t *testing.T) {
	t.Parallel()
	ts, _ := newTestGateway(t)
	initSession(t, ts, "sess-retry")

	postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-retry", "turns": turnsUpTo(1, 8),
	})
	resp, body := postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-retry", "turns": turnsUpTo(1, 8),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retried flush status = %d, body %s", resp.StatusCode, body)
	}
	var out struct {
		SavedCount int `json:"savedCount"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SavedCount != 0 {
		t.Fatalf("savedCount = %d, want 0 for an already-stored batch", out.SavedCount)
	}
}

func TestFlush_SequenceGapIsConflict(t *testing.T) {
	t.Parallel()
	ts, _ := newTestGateway(t)
	initSession(t, ts, "sess-gap")

	postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-gap", "turns": turnsUpTo(1, 4),
	})
	resp, body := postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-gap", "turns": turnsUpTo(6, 8),
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("gap flush status = %d, want 409, body %s", resp.StatusCode, body)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Code != "sequence_conflict" {
		t.Fatalf("error code = %q", env.Error.Code)
	}
}

func TestFlush_UnknownSessionIsNotFound(t *testing.T) {
	t.Parallel()
	ts, _ := newTestGateway(t)

	resp, body := postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "never-initialized", "turns": turnsUpTo(1, 2),
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", resp.StatusCode, body)
	}
}

func TestAnswerCompleteReport_EndToEnd(t *testing.T) {
	t.Parallel()
	ts, _ := newTestGateway(t)
	initSession(t, ts, "sess-report")

	postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-report", "turns": turnsUpTo(1, 8),
	})

	for i, score := range []float64{6.0, 8.0} {
		resp, body := postJSON(t, ts.URL+"/v1/session/answer", map[string]any{
			"sessionId":     "sess-report",
			"questionIndex": i,
			"answer":        "an answer",
			"overallScore":  score,
			"scores": map[string]float64{
				"clarity": score, "structure": score, "relevance": score,
				"depth": score, "confidence": score,
			},
			"feedback": "solid",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("answer %d status = %d, body %s", i, resp.StatusCode, body)
		}
	}

	resp, body := postJSON(t, ts.URL+"/v1/session/complete", map[string]any{
		"sessionId":      "sess-report",
		"remainingTurns": turnsUpTo(9, 10),
		"transcript":     turnsUpTo(1, 10),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, ts.URL+"/v1/session/report", map[string]string{"sessionId": "sess-report"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d, body %s", resp.StatusCode, body)
	}
	var out struct {
		ReportData interview.Report `json:"reportData"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	rep := out.ReportData
	if rep.SessionID != "sess-report" {
		t.Fatalf("report sessionId = %q", rep.SessionID)
	}
	if len(rep.Answers) != 2 {
		t.Fatalf("report answers = %d, want 2", len(rep.Answers))
	}
	if rep.OverallScore != 7.0 {
		t.Fatalf("overallScore = %v, want 7.0", rep.OverallScore)
	}
	if rep.Summary == "" {
		t.Fatal("summary empty")
	}

	// Second fetch serves the stored report with the same timestamp.
	_, body2 := postJSON(t, ts.URL+"/v1/session/report", map[string]string{"sessionId": "sess-report"})
	var out2 struct {
		ReportData interview.Report `json:"reportData"`
	}
	if err := json.Unmarshal(body2, &out2); err != nil {
		t.Fatalf("decode second report: %v", err)
	}
	if !out2.ReportData.GeneratedAt.Equal(rep.GeneratedAt) {
		t.Fatal("second fetch regenerated the report")
	}
}

func TestReset_AllowsRestartingAtSequenceOne(t *testing.T) {
	t.Parallel()
	ts, mem := newTestGateway(t)
	initSession(t, ts, "sess-reset")

	postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-reset", "turns": turnsUpTo(1, 8),
	})
	resp, body := postJSON(t, ts.URL+"/v1/session/reset", map[string]string{"sessionId": "sess-reset"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, body %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, ts.URL+"/v1/session/flush", map[string]any{
		"sessionId": "sess-reset", "turns": turnsUpTo(1, 3),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post-reset flush status = %d, body %s", resp.StatusCode, body)
	}
	stored, err := mem.Transcript(t.Context(), "sess-reset")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(stored) != 3 || stored[0].Seq != 1 {
		t.Fatalf("post-reset transcript = %d turns starting at %d", len(stored), stored[0].Seq)
	}
}

func TestAuthRequired_RejectsMissingKey(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AuthMode = config.AuthModeRequired
	cfg.APIKeys = map[string]struct{}{"vp-key": {}}
	srv := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), server.Deps{
		Store:     store.NewMemory(),
		Minter:    tokens.Static{Credential: "t"},
		Reports:   report.Plain{},
		Questions: defaultTestQuestions(),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, _ := postJSON(t, ts.URL+"/v1/session/init", map[string]string{"sessionId": "s"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/session/init",
		bytes.NewReader([]byte(`{"sessionId":"s"}`)))
	req.Header.Set("Authorization", "Bearer vp-key")
	req.Header.Set("Content-Type", "application/json")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed request: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("authed status = %d, want 200", authed.StatusCode)
	}
}

func TestRequestID_IsEchoed(t *testing.T) {
	t.Parallel()
	ts, _ := newTestGateway(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id header")
	}
}

func defaultTestQuestions() []interview.Question {
	return []interview.Question{{Text: "Tell me about yourself.", Category: "background"}}
}
