package extract

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for extraction.
const DefaultModel = "gemini-2.5-flash"

// Request is one structured-output extraction call.
type Request struct {
	Schema            *genai.Schema
	SystemInstruction string
	Content           string
}

// Client issues structured-output requests to the extraction service.
// Implementations return *APIError for application-level failures.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeminiClient is a Client backed by the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini API client for model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Generate sends req and returns the raw JSON text of the response.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
		ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Content), cfg)
	if err != nil {
		return "", fromGenai(err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return resp.Text(), nil
}

func fromGenai(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Code: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{Code: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("generate content: %w", err)
}

// RecordSchema is the response schema: an array of lecture objects.
func RecordSchema() *genai.Schema {
	nullableString := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Nullable: genai.Ptr(true), Description: desc}
	}
	nullableInt := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeInteger, Nullable: genai.Ptr(true), Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":                 nullableString("Lecture title"),
				"date":                  nullableString("Date the lecture takes place"),
				"time":                  nullableString("Time the lecture takes place"),
				"location":              nullableString("Venue"),
				"activity_hours":        nullableString("Community service hours awarded"),
				"restrictions":          nullableString("Who may register"),
				"max_registrations":     nullableInt("Registration capacity"),
				"current_registrations": nullableInt("Number of people registered so far"),
				"start_date":            nullableString("Registration opening date"),
				"end_date":              nullableString("Registration closing date"),
				"officer_name":          nullableString("Responsible officer"),
				"officer_email":         nullableString("Officer email address"),
				"officer_phone":         nullableString("Officer phone number"),
				"source_url": {
					Type:        genai.TypeString,
					Description: "The URL on the SOURCE_URL line at the top of the page, copied exactly",
				},
			},
			Required: []string{"source_url"},
			PropertyOrdering: []string{
				"source_url", "title", "date", "time", "location", "activity_hours", "restrictions",
				"max_registrations", "current_registrations", "start_date", "end_date",
				"officer_name", "officer_email", "officer_phone",
			},
		},
	}
}
