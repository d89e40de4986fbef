package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/llm/prompts"
	"github.com/examforge/examforge/internal/model"
)

// maxContextChars bounds the reference material packed into one synthesis
// prompt.
const maxContextChars = 12000

// SynthesisInput carries retrieved content plus the generation parameters.
type SynthesisInput struct {
	Chunks     []model.ContentChunk
	Subject    string
	Topics     []string
	Count      int
	Difficulty model.Difficulty
	Language   string
}

// GradeResult holds the model's assessment of a single free-text answer.
type GradeResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, maxTokens int) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:       openai.NewClientWithConfig(config),
		model:     modelName,
		maxTokens: maxTokens,
	}
}

// Ping verifies the endpoint is reachable and the model list is readable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint check: %w", err)
	}
	return nil
}

// complete issues one request/response model call. No streaming.
func (c *Client) complete(ctx context.Context, systemPrompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "LLM API call", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.KindUpstream, "LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateQuestions builds a synthesis prompt from the retrieved chunks,
// issues one model call, and parses the structured payload. Under-delivery
// is tolerated; structurally invalid items are not. Retry policy belongs
// to the caller.
func (c *Client) GenerateQuestions(ctx context.Context, in SynthesisInput) ([]model.DraftQuestion, error) {
	prompt := prompts.BuildGeneration(prompts.GenerationInput{
		Context:    buildContext(in.Chunks),
		Subject:    in.Subject,
		Topics:     in.Topics,
		Count:      in.Count,
		Difficulty: in.Difficulty,
		Language:   in.Language,
	})

	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return nil, err
	}
	slog.Debug("LLM generation response", "raw", raw)

	return ParseQuestions(raw, in.Count, in.Difficulty)
}

// ParseQuestions extracts and validates the question payload from a raw
// model response.
func ParseQuestions(raw string, requested int, fallback model.Difficulty) ([]model.DraftQuestion, error) {
	payload, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var out struct {
		Questions []model.DraftQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "parse question payload", err).WithRaw(raw)
	}
	if len(out.Questions) == 0 {
		return nil, apperr.New(apperr.KindValidation, "model returned no questions").WithRaw(raw)
	}

	for i := range out.Questions {
		if err := normalizeDraft(&out.Questions[i], fallback); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("question %d", i+1), err).WithRaw(raw)
		}
	}
	if len(out.Questions) > requested {
		out.Questions = out.Questions[:requested]
	}
	return out.Questions, nil
}

// normalizeDraft checks one synthesized question against the structural
// invariants and normalizes its fields in place.
func normalizeDraft(d *model.DraftQuestion, fallback model.Difficulty) error {
	d.Type = model.QuestionType(strings.ToLower(strings.TrimSpace(string(d.Type))))
	d.Text = strings.TrimSpace(d.Text)
	d.CorrectAnswer = strings.TrimSpace(d.CorrectAnswer)

	if d.Text == "" {
		return fmt.Errorf("empty question text")
	}
	if d.CorrectAnswer == "" {
		return fmt.Errorf("empty correct answer")
	}
	if !model.ValidDifficulty(d.Difficulty) {
		d.Difficulty = fallback
	}

	switch d.Type {
	case model.QuestionMultipleChoice:
		if len(d.Options) < 2 {
			return fmt.Errorf("multiple_choice needs at least 2 options, got %d", len(d.Options))
		}
		found := false
		for i := range d.Options {
			d.Options[i] = strings.TrimSpace(d.Options[i])
			if d.Options[i] == d.CorrectAnswer {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("correct answer is not among the options")
		}
	case model.QuestionTrueFalse:
		d.Options = nil
		d.CorrectAnswer = strings.ToLower(d.CorrectAnswer)
		if d.CorrectAnswer != "true" && d.CorrectAnswer != "false" {
			return fmt.Errorf("true_false answer must be \"true\" or \"false\", got %q", d.CorrectAnswer)
		}
	case model.QuestionShortAnswer:
		d.Options = nil
	default:
		return fmt.Errorf("unknown question type %q", d.Type)
	}
	return nil
}

// GradeAnswer asks the model to score one free-text answer on a 0.0-1.0
// scale with one sentence of feedback in the exam's language.
func (c *Client) GradeAnswer(ctx context.Context, q model.Question, answer, language string) (GradeResult, error) {
	prompt := prompts.BuildRubric(q, answer, language)

	raw, err := c.complete(ctx, prompt, 0.1)
	if err != nil {
		return GradeResult{}, err
	}
	slog.Debug("LLM grading response", "raw", raw)

	return ParseGrade(raw)
}

// ParseGrade extracts the rubric score payload from a raw model response.
// Scores outside [0,1] are clamped.
func ParseGrade(raw string) (GradeResult, error) {
	payload, err := ExtractJSONObject(raw)
	if err != nil {
		return GradeResult{}, err
	}
	var result GradeResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return GradeResult{}, apperr.Wrap(apperr.KindValidation, "parse grading payload", err).WithRaw(raw)
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 1 {
		result.Score = 1
	}
	return result, nil
}

// buildContext concatenates chunk texts into a bounded context window.
func buildContext(chunks []model.ContentChunk) string {
	var sb strings.Builder
	for _, ch := range chunks {
		text := strings.TrimSpace(ch.Text)
		if text == "" {
			continue
		}
		if sb.Len()+len(text)+5 > maxContextChars {
			remaining := maxContextChars - sb.Len() - 5
			if remaining > 0 {
				sb.WriteString(text[:remaining])
			}
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(text)
	}
	return sb.String()
}
