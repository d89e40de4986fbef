// Package prompts builds the structured prompts sent to the generative
// model for question synthesis and rubric grading.
package prompts

import (
	"fmt"
	"strings"

	"github.com/examforge/examforge/internal/model"
)

// GenerationInput carries everything the synthesis prompt needs.
type GenerationInput struct {
	Context    string
	Subject    string
	Topics     []string
	Count      int
	Difficulty model.Difficulty
	Language   string
}

// BuildGeneration constructs the system prompt for question synthesis.
// The model is instructed to emit exactly the requested count, vary the
// question types, and answer with a single JSON object.
func BuildGeneration(in GenerationInput) string {
	var sb strings.Builder
	sb.WriteString("You are an exam author. Create exam questions strictly from the reference material below.\n\n")
	sb.WriteString("REFERENCE MATERIAL:\n" + in.Context + "\n\n")
	sb.WriteString("SUBJECT: " + in.Subject + "\n")
	if len(in.Topics) > 0 {
		sb.WriteString("TOPICS: " + strings.Join(in.Topics, ", ") + "\n")
	}
	sb.WriteString(fmt.Sprintf("DIFFICULTY: %s\n", in.Difficulty))
	sb.WriteString(fmt.Sprintf("LANGUAGE: write all questions, options, answers and explanations in %q.\n\n", in.Language))

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString(fmt.Sprintf("- Produce exactly %d questions.\n", in.Count))
	sb.WriteString("- Vary the question types: multiple_choice, short_answer, true_false.\n")
	sb.WriteString("- For multiple_choice questions emit exactly 4 options, exactly one of which equals the correct answer.\n")
	sb.WriteString(`- For true_false questions the correct answer must be "true" or "false".` + "\n")
	sb.WriteString("- Include a short explanation for every question.\n")
	sb.WriteString("\nRespond ONLY with a JSON object of this shape:\n")
	sb.WriteString(`{"questions": [{"type": "multiple_choice", "question": "...", "options": ["...", "...", "...", "..."], "correct_answer": "...", "explanation": "...", "difficulty": "` + string(in.Difficulty) + `"}]}`)
	sb.WriteString("\n")
	return sb.String()
}

// BuildRubric constructs the system prompt for grading one free-text
// answer on a 0.0-1.0 scale.
func BuildRubric(q model.Question, answer, language string) string {
	var sb strings.Builder
	sb.WriteString("You are an exam grader. Grade the student's answer to the following question.\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n\n")
	sb.WriteString("REFERENCE ANSWER (not shown to student):\n" + q.CorrectAnswer + "\n\n")
	if q.Explanation != "" {
		sb.WriteString("EXPLANATION:\n" + q.Explanation + "\n\n")
	}
	sb.WriteString("STUDENT ANSWER:\n" + answer + "\n\n")
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Score the answer from 0.0 (entirely wrong) to 1.0 (fully correct), with partial credit.\n")
	sb.WriteString(fmt.Sprintf("- Give one sentence of feedback in %q.\n", language))
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"score": <number 0.0 to 1.0>, "feedback": "<one sentence>"}`)
	sb.WriteString("\n")
	return sb.String()
}
