package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/gateway/config"
	"github.com/voxprep/voxprep/pkg/gateway/report"
	"github.com/voxprep/voxprep/pkg/gateway/store"
	"github.com/voxprep/voxprep/pkg/gateway/tokens"
	"github.com/voxprep/voxprep/pkg/interview"
)

// SessionHandler serves the six session lifecycle endpoints.
type SessionHandler struct {
	Config    config.Config
	Store     store.Store
	Minter    tokens.Minter
	Reports   report.Writer
	Questions []interview.Question
	Logger    *slog.Logger

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (h SessionHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h SessionHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{ sessionID() string }) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, r, core.NewInvalidRequestError("failed to read request body"))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeErr(w, r, core.NewInvalidRequestError("malformed JSON body"))
		return false
	}
	if strings.TrimSpace(dst.sessionID()) == "" {
		writeErr(w, r, core.NewInvalidRequestError("sessionId is required"))
		return false
	}
	return true
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (req sessionRequest) sessionID() string { return req.SessionID }

type flushRequest struct {
	SessionID string                       `json:"sessionId"`
	Turns     []interview.ConversationTurn `json:"turns"`
}

func (req flushRequest) sessionID() string { return req.SessionID }

type answerRequest struct {
	SessionID string `json:"sessionId"`
	interview.StructuredAnswer
}

func (req answerRequest) sessionID() string { return req.SessionID }

type completeRequest struct {
	SessionID      string                       `json:"sessionId"`
	RemainingTurns []interview.ConversationTurn `json:"remainingTurns"`
	Transcript     []interview.ConversationTurn `json:"transcript"`
}

func (req completeRequest) sessionID() string { return req.SessionID }

type okResponse struct {
	OK bool `json:"ok"`
}

// Init creates the session, mints the client credential and returns
// everything the client needs to connect: model, system instructions, tool
// declarations and the question set.
func (h SessionHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Store.InitSession(r.Context(), req.SessionID); err != nil {
		writeErr(w, r, err)
		return
	}
	credential, err := h.Minter.Mint(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, interview.InitResult{
		Credential:         credential,
		ModelID:            h.Config.Model,
		SystemInstructions: systemInstructions(h.Questions),
		Tools:              interview.ToolDeclarations(),
		Questions:          h.Questions,
	})
}

// Flush appends a transcript batch. Batches that would break the stored
// turn sequence are rejected with 409 so the client retains them.
func (h SessionHandler) Flush(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if !h.decode(w, r, &req) {
		return
	}
	saved, err := h.Store.AppendTurns(r.Context(), req.SessionID, req.Turns)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SavedCount int `json:"savedCount"`
	}{SavedCount: saved})
}

// Answer upserts one scored answer.
func (h SessionHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.QuestionIndex < 0 {
		writeErr(w, r, core.NewInvalidRequestError("questionIndex must be >= 0"))
		return
	}
	if err := h.Store.SaveAnswer(r.Context(), req.SessionID, req.StructuredAnswer); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Complete saves the tail of the transcript and marks the session done.
func (h SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Store.CompleteSession(r.Context(), req.SessionID, req.RemainingTurns); err != nil {
		writeErr(w, r, err)
		return
	}
	if n := len(req.Transcript); n > 0 {
		if stored, err := h.Store.Transcript(r.Context(), req.SessionID); err == nil && len(stored) != n {
			h.Logger.Warn("transcript length mismatch at complete",
				"session_id", req.SessionID, "client", n, "stored", len(stored))
		}
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Report returns the stored report, generating and saving it on first call.
func (h SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	if rep, ok, err := h.Store.Report(r.Context(), req.SessionID); err != nil {
		writeErr(w, r, err)
		return
	} else if ok {
		writeJSON(w, http.StatusOK, reportResponse{ReportData: *rep})
		return
	}

	answers, err := h.Store.Answers(r.Context(), req.SessionID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	transcript, err := h.Store.Transcript(r.Context(), req.SessionID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	summary, err := h.Reports.Write(r.Context(), answers, transcript)
	if err != nil {
		writeErr(w, r, core.NewReportError(err))
		return
	}

	rep := interview.Report{
		SessionID:    req.SessionID,
		Summary:      summary,
		OverallScore: averageScore(answers),
		Answers:      answers,
		GeneratedAt:  h.now(),
	}
	if err := h.Store.SaveReport(r.Context(), req.SessionID, rep); err != nil {
		// The report is already built; losing the cache only costs a
		// regeneration on the next fetch.
		h.Logger.Warn("save report failed", "session_id", req.SessionID, "error", err)
	}
	writeJSON(w, http.StatusOK, reportResponse{ReportData: rep})
}

type reportResponse struct {
	ReportData interview.Report `json:"reportData"`
}

// Reset wipes the session's stored data so a retake starts from turn one.
func (h SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Store.ResetSession(r.Context(), req.SessionID); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func averageScore(answers []interview.StructuredAnswer) float64 {
	if len(answers) == 0 {
		return 0
	}
	var total float64
	for _, a := range answers {
		total += a.OverallScore
	}
	return total / float64(len(answers))
}
