package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/voxprep/voxprep/pkg/interview"
)

// defaultQuestions is the built-in interview set, used unless a questions
// file is configured.
var defaultQuestions = []interview.Question{
	{Text: "Tell me about yourself and what draws you to this role.", Category: "background"},
	{Text: "Describe a challenging project you worked on. What made it difficult and how did you handle it?", Category: "behavioral"},
	{Text: "Tell me about a time you disagreed with a teammate. How did you resolve it?", Category: "behavioral"},
	{Text: "What is a skill you are currently working to improve, and how?", Category: "growth"},
	{Text: "Where do you see yourself in five years?", Category: "motivation"},
}

// LoadQuestions reads a JSON array of questions from path, or returns the
// built-in set when path is empty.
func LoadQuestions(path string) ([]interview.Question, error) {
	if path == "" {
		return defaultQuestions, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	var qs []interview.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, fmt.Errorf("parse questions file: %w", err)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("questions file %s is empty", path)
	}
	return qs, nil
}

// systemInstructions builds the prompt that turns the live model into an
// interviewer bound to the given question set and grading tools.
func systemInstructions(questions []interview.Question) string {
	var b strings.Builder
	b.WriteString("You are a professional job interviewer conducting a spoken mock interview. ")
	b.WriteString("Introduce yourself briefly, then ask the questions below one at a time, in order. ")
	b.WriteString("Listen to each answer, ask at most one short follow-up when the answer is thin, then move on.\n\n")
	b.WriteString("After each completed answer, call record_answer_assessment with the zero-based question index, ")
	b.WriteString("the candidate's answer verbatim, and your scores before asking the next question. ")
	b.WriteString("After the final answer is assessed, thank the candidate, give one sentence of closing feedback, ")
	b.WriteString("and call complete_interview with the number of questions asked.\n\n")
	b.WriteString("Questions:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s", i+1, q.Text)
		if q.Category != "" {
			fmt.Fprintf(&b, " [%s]", q.Category)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nKeep your speech natural and concise. Never mention the tools or the scoring out loud.")
	return b.String()
}
