package adapter

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/model"
	"google.golang.org/genai"
)

const defaultGenerativeModel = "gemini-2.0-flash"

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

// NewGemini creates a Gemini API client authenticated by API key.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: defaultGenerativeModel,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	return resp, nil
}

// Validate sends a minimal generation request to verify the API key.
func (g *GeminiClient) Validate(ctx context.Context) error {
	contents := []*genai.Content{
		genai.NewContentFromText("Reply with OK.", genai.RoleUser),
	}
	if _, err := g.GenerateContent(ctx, contents, &genai.GenerateContentConfig{}); err != nil {
		return err
	}
	return nil
}

// classifyGeminiError maps a genai failure onto the error taxonomy so that
// callers can distinguish auth, quota, and transport failures.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return goerr.Wrap(model.ErrAuth, "gemini api rejected credentials",
				goerr.V("status", apiErr.Status), goerr.V("message", apiErr.Message))
		case 429:
			return goerr.Wrap(model.ErrQuota, "gemini api quota exhausted",
				goerr.V("status", apiErr.Status), goerr.V("message", apiErr.Message))
		default:
			return goerr.Wrap(err, "gemini api error",
				goerr.V("code", apiErr.Code), goerr.V("status", apiErr.Status))
		}
	}

	return goerr.Wrap(model.ErrNetwork, "gemini request failed", goerr.V("cause", err.Error()))
}

// ClassifyGeminiErrorForTest exposes classifyGeminiError for testing
func ClassifyGeminiErrorForTest(err error) error {
	return classifyGeminiError(err)
}
