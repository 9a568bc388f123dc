package interview

import (
	"sync"
	"time"
)

// DefaultFlushThreshold is how many buffered turns trigger a flush.
const DefaultFlushThreshold = 8

// TurnBuffer accumulates conversation turns and assigns their sequence
// numbers. Pending turns stay in the buffer until a flush succeeds, so a
// failed flush is retried with the accumulated batch at the next boundary.
type TurnBuffer struct {
	mu         sync.Mutex
	threshold  int
	nextSeq    int
	pending    []ConversationTurn
	transcript []ConversationTurn
	now        func() time.Time
}

// NewTurnBuffer creates a buffer. threshold <= 0 means the default; now nil
// means time.Now.
func NewTurnBuffer(threshold int, now func() time.Time) *TurnBuffer {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &TurnBuffer{threshold: threshold, nextSeq: 1, now: now}
}

// Add appends one turn and reports whether the pending batch has reached
// the flush threshold.
func (b *TurnBuffer) Add(speaker Speaker, content string, turnType TurnType) (ConversationTurn, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	turn := ConversationTurn{
		Seq:       b.nextSeq,
		Speaker:   speaker,
		Content:   content,
		Timestamp: b.now(),
		TurnType:  turnType,
	}
	b.nextSeq++
	b.pending = append(b.pending, turn)
	b.transcript = append(b.transcript, turn)
	return turn, len(b.pending) >= b.threshold
}

// Pending returns a copy of the unflushed turns.
func (b *TurnBuffer) Pending() []ConversationTurn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ConversationTurn(nil), b.pending...)
}

// MarkFlushed removes the first n pending turns after a successful flush.
func (b *TurnBuffer) MarkFlushed(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n >= len(b.pending) {
		b.pending = nil
		return
	}
	b.pending = append([]ConversationTurn(nil), b.pending[n:]...)
}

// Transcript returns a copy of every turn of the session, flushed or not.
func (b *TurnBuffer) Transcript() []ConversationTurn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ConversationTurn(nil), b.transcript...)
}

// Len reports the number of pending (unflushed) turns.
func (b *TurnBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Reset clears everything and restarts sequence numbering at 1.
func (b *TurnBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq = 1
	b.pending = nil
	b.transcript = nil
}
