package store

import (
	"context"
	"sort"
	"sync"

	"github.com/voxprep/voxprep/pkg/interview"
)

// Memory is an in-process Store for tests and local development.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*memSession
}

type memSession struct {
	turns     []interview.ConversationTurn
	answers   map[int]interview.StructuredAnswer
	report    *interview.Report
	completed bool
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*memSession)}
}

func (m *Memory) InitSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.sessions[sessionID] = &memSession{answers: make(map[int]interview.StructuredAnswer)}
	}
	return nil
}

func (m *Memory) session(sessionID string) (*memSession, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, errSessionNotFound(sessionID)
	}
	return s, nil
}

func (m *Memory) AppendTurns(ctx context.Context, sessionID string, turns []interview.ConversationTurn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.session(sessionID)
	if err != nil {
		return 0, err
	}
	fresh, err := checkContiguous(len(s.turns), turns)
	if err != nil {
		return 0, err
	}
	s.turns = append(s.turns, fresh...)
	return len(fresh), nil
}

func (m *Memory) SaveAnswer(ctx context.Context, sessionID string, answer interview.StructuredAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	s.answers[answer.QuestionIndex] = answer
	return nil
}

func (m *Memory) CompleteSession(ctx context.Context, sessionID string, remaining []interview.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	fresh, err := checkContiguous(len(s.turns), remaining)
	if err != nil {
		return err
	}
	s.turns = append(s.turns, fresh...)
	s.completed = true
	return nil
}

func (m *Memory) Answers(ctx context.Context, sessionID string) ([]interview.StructuredAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]interview.StructuredAnswer, 0, len(s.answers))
	for _, a := range s.answers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out, nil
}

func (m *Memory) Transcript(ctx context.Context, sessionID string) ([]interview.ConversationTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]interview.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

func (m *Memory) Report(ctx context.Context, sessionID string) (*interview.Report, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.session(sessionID)
	if err != nil {
		return nil, false, err
	}
	if s.report == nil {
		return nil, false, nil
	}
	rep := *s.report
	return &rep, true, nil
}

func (m *Memory) SaveReport(ctx context.Context, sessionID string, rep interview.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	s.report = &rep
	return nil
}

func (m *Memory) ResetSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	s.turns = nil
	s.answers = make(map[int]interview.StructuredAnswer)
	s.report = nil
	s.completed = false
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
