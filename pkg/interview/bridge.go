package interview

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxprep/voxprep/pkg/core"
)

// TurnStore is the slice of the collaborator API the persistence bridge
// needs. pkg/store.Client implements it.
type TurnStore interface {
	FlushTurns(ctx context.Context, sessionID string, turns []ConversationTurn) (int, error)
	SaveAnswer(ctx context.Context, sessionID string, answer StructuredAnswer) error
	CompleteSession(ctx context.Context, sessionID string, remaining, transcript []ConversationTurn) error
}

// Bridge moves conversation data to durable storage. Plain turns are
// batched through the TurnBuffer; structured answers are posted one by one
// the moment they arrive, because losing a scored answer is worse than
// losing a batch of transcript turns.
type Bridge struct {
	store     TurnStore
	buffer    *TurnBuffer
	sessionID string
	logger    *slog.Logger

	answers sync.WaitGroup
}

func NewBridge(store TurnStore, buffer *TurnBuffer, sessionID string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{store: store, buffer: buffer, sessionID: sessionID, logger: logger}
}

// AddTurn appends one turn and flushes when the batch threshold is reached.
// Flush failures are swallowed here; the turns stay buffered for the next
// boundary.
func (p *Bridge) AddTurn(ctx context.Context, speaker Speaker, content string, turnType TurnType) ConversationTurn {
	turn, full := p.buffer.Add(speaker, content, turnType)
	if full {
		if err := p.Flush(ctx); err != nil {
			p.logger.Warn("turn flush failed, batch retained",
				"session_id", p.sessionID,
				"pending", p.buffer.Len(),
				"error", err)
		}
	}
	return turn
}

// Flush sends every pending turn. On success the batch is cleared; on
// failure it is kept intact so the next flush retries the whole run and the
// sequence stays contiguous.
func (p *Bridge) Flush(ctx context.Context) error {
	batch := p.buffer.Pending()
	if len(batch) == 0 {
		return nil
	}
	if _, err := p.store.FlushTurns(ctx, p.sessionID, batch); err != nil {
		return core.NewPersistenceError("flush", err)
	}
	p.buffer.MarkFlushed(len(batch))
	return nil
}

// SaveAnswer posts one structured answer without blocking the caller.
// Failure is logged only; the answer content is redundant with the live
// transcript.
func (p *Bridge) SaveAnswer(ctx context.Context, answer StructuredAnswer) {
	p.answers.Add(1)
	go func() {
		defer p.answers.Done()
		if err := p.store.SaveAnswer(ctx, p.sessionID, answer); err != nil {
			p.logger.Warn("answer save failed",
				"session_id", p.sessionID,
				"question_index", answer.QuestionIndex,
				"error", err)
		}
	}()
}

// Complete performs the tail flush: any sub-threshold remainder plus the
// full in-memory transcript go to the complete endpoint in one call.
func (p *Bridge) Complete(ctx context.Context) error {
	remaining := p.buffer.Pending()
	transcript := p.buffer.Transcript()
	if err := p.store.CompleteSession(ctx, p.sessionID, remaining, transcript); err != nil {
		return core.NewPersistenceError("complete", err)
	}
	p.buffer.MarkFlushed(len(remaining))
	return nil
}

// Wait blocks until every in-flight answer post has finished.
func (p *Bridge) Wait() {
	p.answers.Wait()
}
