// Package gemini implements the relay's remote generative service on top of
// the Google Gen AI SDK (Gemini, Imagen and Veo models).
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/maauso/genmedia-relay/internal/relay"
)

// Static errors for Gemini adapter operations.
var (
	// ErrAPIKeyRequired is returned when a call is made without a credential.
	ErrAPIKeyRequired = errors.New("gemini: API key is required")
	// ErrModelRequired is returned when a payload does not name a model.
	ErrModelRequired = fmt.Errorf("gemini: payload.model is required: %w", relay.ErrInvalidPayload)
	// ErrPromptRequired is returned when a payload does not carry a prompt.
	ErrPromptRequired = fmt.Errorf("gemini: payload.prompt is required: %w", relay.ErrInvalidPayload)
	// ErrContentsRequired is returned when a generateContent payload has no contents.
	ErrContentsRequired = fmt.Errorf("gemini: payload.contents is required: %w", relay.ErrInvalidPayload)
	// ErrInvalidPayload is returned when a payload cannot be decoded.
	ErrInvalidPayload = fmt.Errorf("gemini: %w", relay.ErrInvalidPayload)
	// ErrEmptyProbe is returned when the probe call yields no text.
	ErrEmptyProbe = errors.New("gemini: probe returned no text")
)

// Client is the genai-backed implementation of relay.Service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the Gemini API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client for calls to the remote service.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Gemini adapter. A genai client is built per call
// because the credential can differ between requests in client mode.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time check that Client implements relay.Service.
var _ relay.Service = (*Client)(nil)

// imagesPayload mirrors the SDK's generateImages parameters.
type imagesPayload struct {
	Model  string                       `json:"model"`
	Prompt string                       `json:"prompt"`
	Config *genai.GenerateImagesConfig `json:"config,omitempty"`
}

// contentPayload mirrors the SDK's generateContent parameters.
type contentPayload struct {
	Model    string                       `json:"model"`
	Contents []*genai.Content             `json:"contents"`
	Config   *genai.GenerateContentConfig `json:"config,omitempty"`
}

// videosPayload mirrors the SDK's generateVideos parameters.
type videosPayload struct {
	Model  string                      `json:"model"`
	Prompt string                      `json:"prompt"`
	Image  *genai.Image                `json:"image,omitempty"`
	Config *genai.GenerateVideosConfig `json:"config,omitempty"`
}

// Probe issues a minimal generateContent call.
func (c *Client) Probe(ctx context.Context, apiKey, model, prompt string) (string, error) {
	client, err := c.newGenAI(ctx, apiKey)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", wrapAPIError("probe", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyProbe
	}
	return text, nil
}

// GenerateImages forwards an image generation request.
func (c *Client) GenerateImages(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
	var p imagesPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Model == "" {
		return nil, ErrModelRequired
	}
	if p.Prompt == "" {
		return nil, ErrPromptRequired
	}

	client, err := c.newGenAI(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateImages(ctx, p.Model, p.Prompt, p.Config)
	if err != nil {
		return nil, wrapAPIError("generate images", err)
	}
	return encode(resp)
}

// GenerateContent forwards a content generation request.
func (c *Client) GenerateContent(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
	var p contentPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Model == "" {
		return nil, ErrModelRequired
	}
	if len(p.Contents) == 0 {
		return nil, ErrContentsRequired
	}

	client, err := c.newGenAI(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, p.Model, p.Contents, p.Config)
	if err != nil {
		return nil, wrapAPIError("generate content", err)
	}
	return encode(resp)
}

// GenerateVideos submits a long-running video generation request.
func (c *Client) GenerateVideos(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
	var p videosPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Model == "" {
		return nil, ErrModelRequired
	}
	if p.Prompt == "" {
		return nil, ErrPromptRequired
	}

	client, err := c.newGenAI(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	op, err := client.Models.GenerateVideos(ctx, p.Model, p.Prompt, p.Image, p.Config)
	if err != nil {
		return nil, wrapAPIError("generate videos", err)
	}
	return encode(op)
}

// GetVideosOperation queries the status of a video operation by name.
func (c *Client) GetVideosOperation(ctx context.Context, apiKey, operationName string) (json.RawMessage, error) {
	client, err := c.newGenAI(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	op, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: operationName}, nil)
	if err != nil {
		return nil, wrapAPIError("get videos operation", err)
	}
	return encode(op)
}

func (c *Client) newGenAI(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyRequired
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func decodePayload(payload json.RawMessage, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode response: %w", err)
	}
	return data, nil
}
