// Package store persists interview sessions for the gateway.
package store

import (
	"context"

	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/gateway/apierror"
	"github.com/voxprep/voxprep/pkg/interview"
)

// Store is the persistence surface the session handlers depend on. Postgres
// backs production; the in-memory implementation backs tests and local runs.
type Store interface {
	// InitSession creates the session row if it does not exist yet.
	InitSession(ctx context.Context, sessionID string) error

	// AppendTurns saves a flush batch. Turns whose sequence numbers are
	// already stored are skipped so retried flushes are idempotent; the
	// remainder must continue the stored sequence without gaps or the whole
	// batch is rejected. Returns the number of newly stored turns.
	AppendTurns(ctx context.Context, sessionID string, turns []interview.ConversationTurn) (int, error)

	// SaveAnswer upserts one scored answer, keyed by question index.
	SaveAnswer(ctx context.Context, sessionID string, answer interview.StructuredAnswer) error

	// CompleteSession appends any remaining turns under the same sequence
	// rules and marks the session completed.
	CompleteSession(ctx context.Context, sessionID string, remaining []interview.ConversationTurn) error

	// Answers returns the stored answers ordered by question index.
	Answers(ctx context.Context, sessionID string) ([]interview.StructuredAnswer, error)

	// Transcript returns all stored turns ordered by sequence number.
	Transcript(ctx context.Context, sessionID string) ([]interview.ConversationTurn, error)

	// Report returns the stored report, or ok=false when none was saved.
	Report(ctx context.Context, sessionID string) (rep *interview.Report, ok bool, err error)

	// SaveReport stores the generated report for later re-fetches.
	SaveReport(ctx context.Context, sessionID string, rep interview.Report) error

	// ResetSession deletes the session's turns, answers and report so a
	// retake starts clean.
	ResetSession(ctx context.Context, sessionID string) error

	// Ping checks backend liveness.
	Ping(ctx context.Context) error
}

func errSessionNotFound(sessionID string) *core.Error {
	return &core.Error{
		Kind:    core.ErrInvalidRequest,
		Message: "unknown session " + sessionID,
		Code:    apierror.CodeSessionNotFound,
	}
}

func errSequenceConflict(message string) *core.Error {
	return &core.Error{
		Kind:    core.ErrInvalidRequest,
		Message: message,
		Code:    apierror.CodeSequenceConflict,
	}
}

// checkContiguous filters out turns already stored (seq <= maxSeq) and
// verifies the remainder continues at maxSeq+1 without gaps or duplicates.
func checkContiguous(maxSeq int, turns []interview.ConversationTurn) ([]interview.ConversationTurn, error) {
	fresh := make([]interview.ConversationTurn, 0, len(turns))
	next := maxSeq + 1
	for _, t := range turns {
		if t.Seq <= maxSeq {
			continue
		}
		if t.Seq != next {
			return nil, errSequenceConflict("batch breaks turn sequence")
		}
		fresh = append(fresh, t)
		next++
	}
	return fresh, nil
}
