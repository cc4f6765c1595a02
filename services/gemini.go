package services

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

const DefaultModelName = "gemini-2.5-flash"

// TextGenerator is the hosted text-generation contract used by the analytics
// builder and the question generator.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type GenerateOptions struct {
	SystemInstruction string
	Temperature       *float32
	JSONResponse      bool
}

// GeminiService handles Gemini text generation
type GeminiService struct {
	genaiClient *genai.Client
	model       string
}

func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}

	slog.Info("Gemini client created", "model", model)
	return &GeminiService{
		genaiClient: genaiClient,
		model:       model,
	}, nil
}

// GenerateText sends a single-turn prompt and returns the concatenated text of the response.
func (g *GeminiService) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if g == nil || g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	config := &genai.GenerateContentConfig{}
	if opts.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser)
	}
	if opts.Temperature != nil {
		config.Temperature = opts.Temperature
	}
	if opts.JSONResponse {
		config.ResponseMIMEType = "application/json"
	}

	result, err := g.genaiClient.Models.GenerateContent(
		ctx,
		g.model,
		genai.Text(prompt),
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := result.Text()
	slog.Debug("Gemini response received", "model", g.model, "response_length", len(text))
	return text, nil
}
