package interview

import "time"

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerAI   Speaker = "ai"
	SpeakerUser Speaker = "user"
)

// TurnType is optional turn metadata.
type TurnType string

const (
	TurnIntroduction TurnType = "introduction"
	TurnQuestion     TurnType = "question"
	TurnConclusion   TurnType = "conclusion"
)

// Question is one interview question. The set is fetched once at session
// init and is immutable for the session's lifetime; questions are referenced
// by ordinal index.
type Question struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// ConversationTurn is one complete utterance. Sequence numbers are 1-based
// and contiguous across the whole session. A turn is immutable once created.
type ConversationTurn struct {
	Seq       int       `json:"seq"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	TurnType  TurnType  `json:"turnType,omitempty"`
}

// ScoreBreakdown is the five named sub-scores of a graded answer, each on
// the same scale as the overall score.
type ScoreBreakdown struct {
	Clarity    float64 `json:"clarity"`
	Structure  float64 `json:"structure"`
	Relevance  float64 `json:"relevance"`
	Depth      float64 `json:"depth"`
	Confidence float64 `json:"confidence"`
}

// StructuredAnswer is one fully-scored response to one question. It is
// produced only by the answer-scoring tool call; the model, not the client,
// decides when an answer is complete enough to score.
type StructuredAnswer struct {
	QuestionIndex int            `json:"questionIndex"`
	Answer        string         `json:"answer"`
	OverallScore  float64        `json:"overallScore"`
	Scores        ScoreBreakdown `json:"scores"`
	Feedback      string         `json:"feedback,omitempty"`
	Strengths     []string       `json:"strengths,omitempty"`
	Weaknesses    []string       `json:"weaknesses,omitempty"`
	Suggestions   []string       `json:"suggestions,omitempty"`
	ToneAnalysis  string         `json:"toneAnalysis,omitempty"`
}

// Report is the post-interview report assembled by the collaborator.
type Report struct {
	SessionID    string             `json:"sessionId"`
	Summary      string             `json:"summary"`
	OverallScore float64            `json:"overallScore"`
	Answers      []StructuredAnswer `json:"answers"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}
