package interview

import (
	"github.com/voxprep/voxprep/pkg/realtime"
)

// Tool names the model may invoke. Anything else is ignored by the engine.
const (
	ToolCompleteInterview      = "complete_interview"
	ToolRecordAnswerAssessment = "record_answer_assessment"
)

// ToolInvocation is a decoded tool call. Exactly three variants exist:
// CompletionSignal, AnswerAssessment, and IgnoredTool for unknown names.
type ToolInvocation interface {
	toolName() string
}

// CompletionSignal means the model considers the interview finished.
type CompletionSignal struct {
	QuestionsAsked int
}

func (CompletionSignal) toolName() string { return ToolCompleteInterview }

// AnswerAssessment carries one scored answer.
type AnswerAssessment struct {
	Answer StructuredAnswer
}

func (AnswerAssessment) toolName() string { return ToolRecordAnswerAssessment }

// IgnoredTool is any tool name this engine does not act on. It is still
// acknowledged on the wire so the model keeps going.
type IgnoredTool struct {
	Name string
}

func (t IgnoredTool) toolName() string { return t.Name }

// ParseToolCall decodes one function call into its typed variant.
func ParseToolCall(call realtime.FunctionCall) ToolInvocation {
	switch call.Name {
	case ToolCompleteInterview:
		return CompletionSignal{QuestionsAsked: intArg(call.Args, "questions_asked")}
	case ToolRecordAnswerAssessment:
		return AnswerAssessment{Answer: StructuredAnswer{
			QuestionIndex: intArg(call.Args, "question_index"),
			Answer:        stringArg(call.Args, "answer"),
			OverallScore:  floatArg(call.Args, "overall_score"),
			Scores: ScoreBreakdown{
				Clarity:    floatArg(call.Args, "clarity"),
				Structure:  floatArg(call.Args, "structure"),
				Relevance:  floatArg(call.Args, "relevance"),
				Depth:      floatArg(call.Args, "depth"),
				Confidence: floatArg(call.Args, "confidence"),
			},
			Feedback:     stringArg(call.Args, "feedback"),
			Strengths:    stringSliceArg(call.Args, "strengths"),
			Weaknesses:   stringSliceArg(call.Args, "weaknesses"),
			Suggestions:  stringSliceArg(call.Args, "suggestions"),
			ToneAnalysis: stringArg(call.Args, "tone_analysis"),
		}}
	default:
		return IgnoredTool{Name: call.Name}
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// scoreSchema is reused for the overall score and each sub-score.
func scoreSchema(desc string) *realtime.Schema {
	return &realtime.Schema{Type: "number", Description: desc}
}

// ToolDeclarations returns the function declarations advertised at setup.
// The gateway embeds these in its init response; the client falls back to
// them when the response omits tool definitions.
func ToolDeclarations() []realtime.FunctionDeclaration {
	stringList := &realtime.Schema{Type: "array", Items: &realtime.Schema{Type: "string"}}
	return []realtime.FunctionDeclaration{
		{
			Name:        ToolCompleteInterview,
			Description: "Signal that every interview question has been asked and answered and the interview should end.",
			Parameters: &realtime.Schema{
				Type: "object",
				Properties: map[string]*realtime.Schema{
					"questions_asked": {Type: "integer", Description: "How many questions were asked in total."},
				},
				Required: []string{"questions_asked"},
			},
		},
		{
			Name:        ToolRecordAnswerAssessment,
			Description: "Record the assessment of the candidate's answer to one question, immediately after they finish answering it.",
			Parameters: &realtime.Schema{
				Type: "object",
				Properties: map[string]*realtime.Schema{
					"question_index": {Type: "integer", Description: "Zero-based index of the question being assessed."},
					"answer":         {Type: "string", Description: "The candidate's answer, verbatim."},
					"overall_score":  scoreSchema("Overall score from 0 to 10."),
					"clarity":        scoreSchema("How clearly the answer was delivered, 0 to 10."),
					"structure":      scoreSchema("How well the answer was organized, 0 to 10."),
					"relevance":      scoreSchema("How relevant the answer was to the question, 0 to 10."),
					"depth":          scoreSchema("Depth of insight and detail, 0 to 10."),
					"confidence":     scoreSchema("How confident the delivery sounded, 0 to 10."),
					"feedback":       {Type: "string", Description: "Overall feedback on the answer."},
					"strengths":      stringList,
					"weaknesses":     stringList,
					"suggestions":    stringList,
					"tone_analysis":  {Type: "string", Description: "Brief analysis of the candidate's tone."},
				},
				Required: []string{"question_index", "answer", "overall_score"},
			},
		},
	}
}
