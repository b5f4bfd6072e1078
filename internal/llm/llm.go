// Package llm wraps the Gemini API for prompt-in, text-out generation with
// optional structured (JSON schema) output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 30 * time.Second
)

// ErrNoAPIKey is returned by NewClient when no API key is provided.
var ErrNoAPIKey = errors.New("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")

// Client represents a client for interacting with Gemini.
type Client struct {
	modelName   string
	timeout     time.Duration
	temperature float32
	gClient     *genai.Client
}

// Config configures a Client.
type Config struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float32
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens      int32         // Maximum number of tokens to generate
	Temperature    float32       // Temperature for randomness (0.0 to 1.0)
	Model          string        // Model to use (optional, defaults to client's model)
	ResponseSchema *genai.Schema // Optional: schema for structured JSON output
}

// NewClient creates a new LLM client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:   cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		gClient:     gClient,
	}, nil
}

// ModelName returns the default model of the client.
func (c *Client) ModelName() string {
	return c.modelName
}

// GenerateText sends prompt to the model and returns the response text. When a
// ResponseSchema is given the response is constrained to JSON matching it.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, c.buildConfig(options))
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from LLM")
	}

	return text, nil
}

func (c *Client) buildConfig(options TextGenerationOptions) *genai.GenerateContentConfig {
	temperature := options.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	if options.MaxTokens == 0 && temperature == 0 && options.ResponseSchema == nil {
		return nil
	}

	config := &genai.GenerateContentConfig{}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = options.MaxTokens
	}
	if temperature > 0 {
		config.Temperature = &temperature
	}
	if options.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = options.ResponseSchema
	}
	return config
}

// StripCodeFence removes a surrounding ```json (or bare ```) fence from a model
// response so it can be unmarshaled.
func StripCodeFence(response string) string {
	clean := strings.TrimSpace(response)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```JSON")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}
