package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeTurnStore struct {
	mu        sync.Mutex
	flushes   [][]ConversationTurn
	answers   []StructuredAnswer
	completes int
	remaining []ConversationTurn
	full      []ConversationTurn

	flushErr    error
	answerErr   error
	completeErr error
}

func (s *fakeTurnStore) FlushTurns(_ context.Context, _ string, turns []ConversationTurn) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushErr != nil {
		return 0, s.flushErr
	}
	s.flushes = append(s.flushes, append([]ConversationTurn(nil), turns...))
	return len(turns), nil
}

func (s *fakeTurnStore) SaveAnswer(_ context.Context, _ string, answer StructuredAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answerErr != nil {
		return s.answerErr
	}
	s.answers = append(s.answers, answer)
	return nil
}

func (s *fakeTurnStore) CompleteSession(_ context.Context, _ string, remaining, transcript []ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completes++
	s.remaining = append([]ConversationTurn(nil), remaining...)
	s.full = append([]ConversationTurn(nil), transcript...)
	return nil
}

func (s *fakeTurnStore) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flushes)
}

func newTestBridge(store *fakeTurnStore) (*Bridge, *TurnBuffer) {
	buf := NewTurnBuffer(8, nil)
	return NewBridge(store, buf, "sess_test", nil), buf
}

func TestBridge_ThresholdFlush(t *testing.T) {
	store := &fakeTurnStore{}
	bridge, buf := newTestBridge(store)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		bridge.AddTurn(ctx, SpeakerUser, "content", "")
	}

	if got := store.flushCount(); got != 1 {
		t.Fatalf("flush calls = %d, want exactly 1", got)
	}
	if got := len(store.flushes[0]); got != 8 {
		t.Fatalf("flushed batch size = %d, want 8", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not empty after threshold flush: %d pending", buf.Len())
	}
}

func TestBridge_FailedFlushRetainsBatchForNextBoundary(t *testing.T) {
	store := &fakeTurnStore{flushErr: errors.New("storage down")}
	bridge, buf := newTestBridge(store)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		bridge.AddTurn(ctx, SpeakerUser, "content", "")
	}
	if buf.Len() != 8 {
		t.Fatalf("failed flush dropped turns: %d pending, want 8", buf.Len())
	}

	// The next boundary retries with the accumulated batch.
	store.mu.Lock()
	store.flushErr = nil
	store.mu.Unlock()
	bridge.AddTurn(ctx, SpeakerAI, "content", "")

	if got := store.flushCount(); got != 1 {
		t.Fatalf("flush calls after recovery = %d, want 1", got)
	}
	if got := len(store.flushes[0]); got != 9 {
		t.Fatalf("retried batch size = %d, want 9 (8 retained + 1 new)", got)
	}
	seqs := store.flushes[0]
	for i, turn := range seqs {
		if turn.Seq != i+1 {
			t.Fatalf("seq %d at position %d after retry", turn.Seq, i)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not cleared after successful retry")
	}
}

func TestBridge_TailFlushOnComplete(t *testing.T) {
	store := &fakeTurnStore{}
	bridge, _ := newTestBridge(store)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		bridge.AddTurn(ctx, SpeakerUser, "content", "")
	}
	if err := bridge.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if store.completes != 1 {
		t.Fatalf("complete calls = %d, want 1", store.completes)
	}
	if got := len(store.remaining); got != 3 {
		t.Fatalf("tail batch = %d turns, want 3 (11 mod 8)", got)
	}
	if got := len(store.full); got != 11 {
		t.Fatalf("transcript = %d turns, want 11", got)
	}
	for i, turn := range store.full {
		if turn.Seq != i+1 {
			t.Fatalf("transcript gap: seq %d at position %d", turn.Seq, i)
		}
	}
}

func TestBridge_SaveAnswerDoesNotBlockOnFailure(t *testing.T) {
	store := &fakeTurnStore{answerErr: errors.New("storage down")}
	bridge, _ := newTestBridge(store)

	bridge.SaveAnswer(context.Background(), StructuredAnswer{QuestionIndex: 0})
	bridge.Wait()
	// Failure is logged, nothing else happens.
	if len(store.answers) != 0 {
		t.Fatalf("failed answer recorded anyway")
	}
}

func TestBridge_AnswersBypassBatching(t *testing.T) {
	store := &fakeTurnStore{}
	bridge, _ := newTestBridge(store)
	ctx := context.Background()

	bridge.AddTurn(ctx, SpeakerUser, "content", "")
	bridge.SaveAnswer(ctx, StructuredAnswer{QuestionIndex: 0, OverallScore: 8})
	bridge.Wait()

	if len(store.answers) != 1 {
		t.Fatalf("answer posts = %d, want 1 immediately", len(store.answers))
	}
	if store.flushCount() != 0 {
		t.Fatalf("an answer save must not trigger a turn flush")
	}
}
