// Package report turns stored interview data into a readable summary.
package report

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/interview"
)

// Writer produces the free-text summary of a finished interview. The rest
// of the report (scores, per-answer detail) is assembled from stored data.
type Writer interface {
	Write(ctx context.Context, answers []interview.StructuredAnswer, transcript []interview.ConversationTurn) (string, error)
}

// Gemini asks a text model to write the summary.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewTransportError("genai client", "create client failed", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Write(ctx context.Context, answers []interview.StructuredAnswer, transcript []interview.ConversationTurn) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(summaryPrompt(answers, transcript)), nil)
	if err != nil {
		return "", core.NewReportError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", core.NewReportError(fmt.Errorf("model returned empty summary"))
	}
	return text, nil
}

func summaryPrompt(answers []interview.StructuredAnswer, transcript []interview.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("You are reviewing a completed mock job interview. ")
	b.WriteString("Write a concise performance summary for the candidate in two or three paragraphs: ")
	b.WriteString("overall impression first, then the main strength and the main area to improve. ")
	b.WriteString("Address the candidate directly. Do not repeat the numeric scores.\n\n")

	b.WriteString("Graded answers:\n")
	for _, a := range answers {
		fmt.Fprintf(&b, "Q%d (score %.1f): %s\n", a.QuestionIndex+1, a.OverallScore, a.Feedback)
	}

	b.WriteString("\nTranscript:\n")
	for _, t := range transcript {
		fmt.Fprintf(&b, "[%s] %s\n", t.Speaker, t.Content)
	}
	return b.String()
}

// Plain builds a summary from the stored assessments alone, with no model
// call. It backs tests and keeps report generation working when the text
// model is unreachable.
type Plain struct{}

func (Plain) Write(ctx context.Context, answers []interview.StructuredAnswer, transcript []interview.ConversationTurn) (string, error) {
	if len(answers) == 0 {
		return "No answers were graded in this session.", nil
	}
	var total float64
	best, worst := answers[0], answers[0]
	for _, a := range answers {
		total += a.OverallScore
		if a.OverallScore > best.OverallScore {
			best = a
		}
		if a.OverallScore < worst.OverallScore {
			worst = a
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You answered %d questions with an average score of %.1f. ", len(answers), total/float64(len(answers)))
	fmt.Fprintf(&b, "Your strongest answer was to question %d", best.QuestionIndex+1)
	if len(best.Strengths) > 0 {
		fmt.Fprintf(&b, " (%s)", best.Strengths[0])
	}
	fmt.Fprintf(&b, "; question %d has the most room to improve", worst.QuestionIndex+1)
	if len(worst.Suggestions) > 0 {
		fmt.Fprintf(&b, ": %s", worst.Suggestions[0])
	}
	b.WriteString(".")
	return b.String(), nil
}
