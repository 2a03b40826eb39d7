// Package gemini adapts the Google Gen AI SDK to llm.Provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"SonicMirror/pkg/retry"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.0-flash"

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini: empty response")

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates text with a Gemini model.
type Client struct {
	models generator
	model  string
}

// New creates a Client for the Gemini API using apiKey.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithGenerator(cli.Models, model), nil
}

func newWithGenerator(g generator, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{models: g, model: model}
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "gemini" }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends prompt as a single user turn and returns the concatenated
// text of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", Classify(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", retry.Permanent(ErrEmptyResponse)
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Classify tags err for the retrier. Quota exhaustion (HTTP 429 or status
// RESOURCE_EXHAUSTED) is transient; every other failure, including an
// expired attempt deadline, is permanent.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return retry.Transient(fmt.Errorf("gemini: %w", err))
		}
		return retry.Permanent(fmt.Errorf("gemini: %w", err))
	}
	return retry.Permanent(fmt.Errorf("gemini: %w", err))
}
