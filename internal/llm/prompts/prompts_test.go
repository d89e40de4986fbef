package prompts

import (
	"strings"
	"testing"

	"github.com/examforge/examforge/internal/model"
)

func TestBuildGeneration(t *testing.T) {
	prompt := BuildGeneration(GenerationInput{
		Context:    "Newton's laws of motion.",
		Subject:    "Physics",
		Topics:     []string{"Mechanics", "Forces"},
		Count:      10,
		Difficulty: model.DifficultyMedium,
		Language:   "en",
	})

	for _, want := range []string{
		"Newton's laws of motion.",
		"SUBJECT: Physics",
		"TOPICS: Mechanics, Forces",
		"exactly 10 questions",
		"exactly 4 options",
		`"true" or "false"`,
		"Respond ONLY with a JSON object",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildGenerationNoTopics(t *testing.T) {
	prompt := BuildGeneration(GenerationInput{
		Context:    "material",
		Subject:    "History",
		Count:      5,
		Difficulty: model.DifficultyEasy,
		Language:   "en",
	})
	if strings.Contains(prompt, "TOPICS:") {
		t.Error("prompt should omit topics section when no topics are set")
	}
}

func TestBuildRubric(t *testing.T) {
	q := model.Question{
		Text:          "Define inertia.",
		CorrectAnswer: "Resistance of a body to changes in its motion.",
		Explanation:   "First law.",
	}
	prompt := BuildRubric(q, "Objects keep moving unless stopped.", "ru")

	for _, want := range []string{
		q.Text,
		q.CorrectAnswer,
		q.Explanation,
		"Objects keep moving unless stopped.",
		`"ru"`,
		"0.0 (entirely wrong) to 1.0 (fully correct)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildRubricNoExplanation(t *testing.T) {
	q := model.Question{Text: "x?", CorrectAnswer: "y"}
	prompt := BuildRubric(q, "z", "en")
	if strings.Contains(prompt, "EXPLANATION") {
		t.Error("prompt should omit explanation section when empty")
	}
}
