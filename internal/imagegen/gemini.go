package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/vista-staging/internal/metrics"
)

// DefaultModel is the Gemini image model used when none is configured.
const DefaultModel = "gemini-2.5-flash-image"

// contentGenerator is the subset of *genai.Models used by GeminiClient.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient edits images with a Gemini image model through the genai SDK.
type GeminiClient struct {
	models contentGenerator
	model  string
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a client for the Gemini Developer API.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("imagegen: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClient{models: client.Models, model: model}, nil
}

// Model returns the configured model id.
func (c *GeminiClient) Model() string { return c.model }

// Edit sends the source image, the mask if any, and the prompt as a single
// user turn and returns the first image in the response.
func (c *GeminiClient) Edit(ctx context.Context, req Request) (*Result, error) {
	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, &Error{Type: ErrTypeInvalidRequest, Message: "source image is required"}
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data}},
	}
	if req.Mask != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: req.Mask.MIMEType, Data: req.Mask.Data}})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})

	log.Info().
		Str("model", c.model).
		Int("image_bytes", len(req.Image.Data)).
		Str("image_mime", req.Image.MIMEType).
		Bool("masked", req.Mask != nil).
		Int("prompt_chars", len(req.Prompt)).
		Msg("Sending image to Gemini for staging")

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	)
	elapsed := time.Since(start)

	var result *Result
	if err == nil {
		result, err = parseResponse(resp)
	}
	if err != nil {
		genErr := Classify(err)
		recordCall(c.model, genErr.Type.String(), elapsed)
		log.Error().
			Err(err).
			Str("type", genErr.Type.String()).
			Dur("duration", elapsed).
			Msg("Gemini image generation failed")
		return nil, genErr
	}

	recordCall(c.model, "success", elapsed)
	log.Info().
		Int("output_bytes", len(result.Data)).
		Str("output_mime", result.MIMEType).
		Dur("duration", elapsed).
		Msg("Gemini image generation complete")
	return result, nil
}

// parseResponse collects the first inline image and all text parts.
func parseResponse(resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &Error{Type: ErrTypeEmptyResult, Message: "Gemini returned no candidates"}
	}
	result := &Result{}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 && result.Data == nil {
				result.Data = part.InlineData.Data
				result.MIMEType = part.InlineData.MIMEType
			}
			if part.Text != "" {
				result.Text += part.Text
			}
		}
	}
	if result.Data == nil {
		return nil, &Error{
			Type:    ErrTypeEmptyResult,
			Message: fmt.Sprintf("no image returned in response (text: %s)", truncate(result.Text, 200)),
		}
	}
	if result.MIMEType == "" {
		result.MIMEType = "image/png"
	}
	return result, nil
}

func recordCall(model, result string, elapsed time.Duration) {
	metrics.Default().
		Dimension("Model", model).
		Dimension("Result", result).
		Metric("GenerationLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GenerationResult").
		Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
