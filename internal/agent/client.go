package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"triage-agent/internal/triage"
)

const understandPrompt = `You are a clinical intake assistant. Extract the patient's symptoms from the latest message,
using the earlier conversation and the already known facts for context.
Reply with a single JSON object and nothing else, using exactly these keys:
{"chief_complaint": string|null, "duration": string|null, "severity_self": string|null,
 "age_band": string|null, "associated_symptoms": [string]}
Use null for anything the patient has not said. Do not guess and do not diagnose.`

const rephrasePrompt = "You are a medical triage assistant. Rewrite this triage summary in a clear, empathetic, " +
	"patient-friendly way (2-3 sentences). Keep the triage level and the recommended action unchanged."

// Client talks to an OpenAI-compatible chat completion API. It serves as the
// Text Understanding service for the extractor and the Text Generation
// service for the summary generator.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
}

func NewClient(baseURL, apiKey, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.2,
	}
}

// UnderstandSymptoms returns the raw JSON reply; validation is the caller's job.
func (c *Client) UnderstandSymptoms(ctx context.Context, message string, history []triage.Turn, prior triage.SymptomFrame) (string, error) {
	known, err := json.Marshal(prior)
	if err != nil {
		return "", err
	}

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: understandPrompt},
		{Role: openai.ChatMessageRoleSystem, Content: "Known facts: " + string(known)},
	}
	for _, t := range history {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.UserMessage},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.SystemResponse},
		)
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       msgs,
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
}

func (c *Client) Rephrase(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rephrasePrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: c.temperature,
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", triage.ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", triage.ErrMalformedResponse)
	}
	return content, nil
}

// classify tags transport and API errors so stage failures get a reason.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("text service: %w", ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("text service: %w", err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", triage.ErrMalformedResponse, err)
	}
	return fmt.Errorf("%w: %v", triage.ErrServiceUnavailable, err)
}
