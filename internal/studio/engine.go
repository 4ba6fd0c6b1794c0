// Package studio is the client workflow engine on top of the relay.
// It checks readiness, manages the client-held credential, generates and
// edits images, and drives long-running video jobs to completion.
package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/maauso/genmedia-relay/internal/job"
	"github.com/maauso/genmedia-relay/internal/relay"
)

// Default models and output settings.
const (
	DefaultImageModel   = "imagen-4.0-generate-001"
	DefaultEditModel    = "gemini-2.5-flash-image-preview"
	DefaultImageMIME    = "image/jpeg"
	DefaultPollInterval = 10 * time.Second
)

// maxDownloadBytes bounds a single media download.
const maxDownloadBytes = 512 << 20

// PartKind tells text and image parts of an edit result apart.
type PartKind string

const (
	// PartText is a text part; Value holds the text.
	PartText PartKind = "text"
	// PartImage is an image part; Value holds a data URI.
	PartImage PartKind = "image"
)

// Part is one element of an edit result, in the order the model emitted it.
type Part struct {
	Kind  PartKind `json:"kind"`
	Value string   `json:"value"`
}

// CredentialStore persists the client-held credential.
type CredentialStore interface {
	GeminiAPIKey(ctx context.Context) (string, error)
	SetGeminiAPIKey(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Engine runs studio workflows against the relay.
// It is safe for concurrent use; the cached credential is the only shared state.
type Engine struct {
	relay        Client
	mode         relay.Mode
	store        CredentialStore
	httpClient   *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
	imageModel   string
	editModel    string

	mu  sync.RWMutex
	key string
}

// Option is a function that configures an Engine.
type Option func(*Engine)

// WithPollInterval sets the delay between video status checks.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithCredentialStore sets where the client-held credential is persisted.
func WithCredentialStore(s CredentialStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDownloadClient sets the HTTP client used to fetch finished media.
func WithDownloadClient(c *http.Client) Option {
	return func(e *Engine) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithImageModel overrides the image generation model.
func WithImageModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.imageModel = model
		}
	}
}

// WithEditModel overrides the image editing model.
func WithEditModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.editModel = model
		}
	}
}

// New creates an Engine talking to the relay through client.
func New(client Client, mode relay.Mode, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, ErrRelayRequired
	}
	if mode != relay.ModeServer && mode != relay.ModeClient {
		return nil, fmt.Errorf("%w: %q", relay.ErrUnknownMode, mode)
	}

	e := &Engine{
		relay:        client,
		mode:         mode,
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		imageModel:   DefaultImageModel,
		editModel:    DefaultEditModel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Mode returns the credential mode the engine runs in.
func (e *Engine) Mode() relay.Mode {
	return e.mode
}

// LoadCredential reads the persisted credential into the cache.
// It is a no-op in server mode or without a store.
func (e *Engine) LoadCredential(ctx context.Context) error {
	if e.mode != relay.ModeClient || e.store == nil {
		return nil
	}
	key, err := e.store.GeminiAPIKey(ctx)
	if err != nil {
		return fmt.Errorf("studio: load credential: %w", err)
	}
	e.setKey(key)
	return nil
}

// HasCredential reports whether a client-held credential is cached.
func (e *Engine) HasCredential() bool {
	return e.cachedKey() != ""
}

// CheckReadiness reports whether the relay accepts a validate call.
// It never fails; every error is logged and reported as false.
func (e *Engine) CheckReadiness(ctx context.Context) bool {
	key := ""
	if e.mode == relay.ModeClient {
		key = e.cachedKey()
		if key == "" {
			return false
		}
	}

	var result relay.ValidateResult
	if err := e.call(ctx, relay.EndpointValidate, key, struct{}{}, &result); err != nil {
		e.logger.InfoContext(ctx, "relay not ready",
			slog.String("mode", string(e.mode)),
			slog.String("error", err.Error()),
		)
		return false
	}
	return result.Success
}

// SetCredential validates key and, on success, persists and caches it.
// An empty key clears the stored credential and returns false.
// Any validation failure also clears it.
func (e *Engine) SetCredential(ctx context.Context, key string) (bool, error) {
	if e.mode != relay.ModeClient {
		return false, ErrModeMismatch
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return false, e.clearCredential(ctx)
	}

	var result relay.ValidateResult
	err := e.call(ctx, relay.EndpointValidate, key, struct{}{}, &result)
	if err == nil && !result.Success {
		err = ErrUnauthorized
	}
	if err != nil {
		if clearErr := e.clearCredential(ctx); clearErr != nil {
			e.logger.WarnContext(ctx, "failed to clear credential",
				slog.String("error", clearErr.Error()),
			)
		}
		return false, err
	}

	if e.store != nil {
		if err := e.store.SetGeminiAPIKey(ctx, key); err != nil {
			return false, fmt.Errorf("studio: persist credential: %w", err)
		}
	}
	e.setKey(key)
	return true, nil
}

// GenerateImage generates one image for prompt and returns it as data URIs.
func (e *Engine) GenerateImage(ctx context.Context, prompt string) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrBadRequest)
	}

	key, err := e.credential()
	if err != nil {
		return nil, err
	}

	payload := imagesRequest{
		Model:  e.imageModel,
		Prompt: prompt,
		Config: &genai.GenerateImagesConfig{
			NumberOfImages: 1,
			OutputMIMEType: DefaultImageMIME,
		},
	}

	var resp genai.GenerateImagesResponse
	if err := e.call(ctx, relay.EndpointGenerateImages, key, payload, &resp); err != nil {
		return nil, err
	}

	var uris []string
	for _, generated := range resp.GeneratedImages {
		if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			continue
		}
		mime := generated.Image.MIMEType
		if mime == "" {
			mime = DefaultImageMIME
		}
		uris = append(uris, DataURI(mime, generated.Image.ImageBytes))
	}
	if len(uris) == 0 {
		return nil, fmt.Errorf("%w: no images returned", ErrEmptyResult)
	}
	return uris, nil
}

// EditImage applies prompt to image and returns the text and image parts the
// model produced, in emission order.
func (e *Engine) EditImage(ctx context.Context, image []byte, mimeType, prompt string) ([]Part, error) {
	switch {
	case len(image) == 0:
		return nil, fmt.Errorf("%w: image is required", ErrBadRequest)
	case mimeType == "":
		return nil, fmt.Errorf("%w: image MIME type is required", ErrBadRequest)
	case strings.TrimSpace(prompt) == "":
		return nil, fmt.Errorf("%w: prompt is required", ErrBadRequest)
	}

	key, err := e.credential()
	if err != nil {
		return nil, err
	}

	payload := contentRequest{
		Model: e.editModel,
		Contents: []*genai.Content{
			genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromBytes(image, mimeType),
				genai.NewPartFromText(prompt),
			}, genai.RoleUser),
		},
		Config: &genai.GenerateContentConfig{
			ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
		},
	}

	var resp genai.GenerateContentResponse
	if err := e.call(ctx, relay.EndpointGenerateContent, key, payload, &resp); err != nil {
		return nil, err
	}

	parts := contentParts(&resp)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no text or image parts returned", ErrEmptyResult)
	}
	return parts, nil
}

// GenerateVideo submits a video job and polls it until the remote service
// reports completion, then returns the media URI.
// There is no retry cap: the loop ends on completion, on a failed status
// call, or when ctx is cancelled. Cancelling does not stop the remote job.
func (e *Engine) GenerateVideo(ctx context.Context, prompt, model string, image []byte, mimeType string) (string, error) {
	switch {
	case strings.TrimSpace(prompt) == "":
		return "", fmt.Errorf("%w: prompt is required", ErrBadRequest)
	case strings.TrimSpace(model) == "":
		return "", fmt.Errorf("%w: model is required", ErrBadRequest)
	case len(image) > 0 && mimeType == "":
		return "", fmt.Errorf("%w: seed image MIME type is required", ErrBadRequest)
	}

	key, err := e.credential()
	if err != nil {
		return "", err
	}

	payload := videosRequest{
		Model:  model,
		Prompt: prompt,
		Config: &genai.GenerateVideosConfig{NumberOfVideos: 1},
	}
	if len(image) > 0 {
		payload.Image = &genai.Image{ImageBytes: image, MIMEType: mimeType}
	}

	var op genai.GenerateVideosOperation
	if err := e.call(ctx, relay.EndpointGenerateVideos, key, payload, &op); err != nil {
		return "", err
	}

	handle, err := job.New(operationStatus(&op))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIncompleteResult, err)
	}

	e.logger.InfoContext(ctx, "video job submitted",
		slog.String("operation", handle.Name),
		slog.String("model", model),
	)

	// Only the status endpoint embeds a relay-held key, so a job that finished
	// at submission is fetched once more in server mode.
	if handle.IsDone() && e.mode == relay.ModeServer {
		op = genai.GenerateVideosOperation{}
		if err := e.call(ctx, relay.EndpointGetVideosOperation, key, relay.OperationPayload{OperationName: handle.Name}, &op); err != nil {
			return "", err
		}
		if handle, err = job.New(operationStatus(&op)); err != nil {
			return "", fmt.Errorf("%w: %v", ErrIncompleteResult, err)
		}
	}

	for !handle.IsDone() {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("studio: video %s: %w", handle.Name, ctx.Err())
		case <-time.After(e.pollInterval):
		}

		if err := e.refresh(ctx, key, handle, &op); err != nil {
			return "", err
		}
	}

	uri := handle.URI()
	if uri == "" {
		if msg := operationError(&op); msg != "" {
			return "", fmt.Errorf("%w: %s", ErrIncompleteResult, msg)
		}
		return "", ErrIncompleteResult
	}

	e.logger.InfoContext(ctx, "video job done",
		slog.String("operation", handle.Name),
		slog.Duration("elapsed", time.Since(handle.CreatedAt)),
	)

	// The relay only embeds a credential it holds itself.
	if e.mode == relay.ModeClient {
		uri = relay.AppendKey(uri, key)
	}
	return uri, nil
}

// refresh queries the job status and advances handle with it.
func (e *Engine) refresh(ctx context.Context, key string, handle *job.Handle, op *genai.GenerateVideosOperation) error {
	*op = genai.GenerateVideosOperation{}
	if err := e.call(ctx, relay.EndpointGetVideosOperation, key, relay.OperationPayload{OperationName: handle.Name}, op); err != nil {
		return err
	}
	if err := handle.Advance(operationStatus(op)); err != nil {
		return fmt.Errorf("studio: video %s: %w", handle.Name, err)
	}

	e.logger.DebugContext(ctx, "video job polled",
		slog.String("operation", handle.Name),
		slog.Int("polls", handle.Clone().Polls),
		slog.String("state", string(handle.GetState())),
	)
	return nil
}

// Download fetches the media at uri.
func (e *Engine) Download(ctx context.Context, uri string) ([]byte, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: media URI is required", ErrBadRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create download request: %v", ErrBadRequest, err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("studio: download: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: download: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: download returned %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: download returned %d", ErrTransport, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read download: %v", ErrTransport, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: downloaded media is empty", ErrEmptyResult)
	}
	return data, nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// call runs one relay operation. In client mode a rejected credential is
// dropped from the cache and the store.
func (e *Engine) call(ctx context.Context, endpoint relay.Endpoint, key string, payload, out any) error {
	err := e.relay.Call(ctx, endpoint, key, payload, out)
	if err == nil {
		return nil
	}
	if e.mode == relay.ModeClient && errors.Is(err, ErrUnauthorized) {
		if clearErr := e.clearCredential(ctx); clearErr != nil {
			e.logger.WarnContext(ctx, "failed to clear rejected credential",
				slog.String("error", clearErr.Error()),
			)
		}
	}
	return err
}

// credential returns the key to send with a request.
func (e *Engine) credential() (string, error) {
	if e.mode != relay.ModeClient {
		return "", nil
	}
	key := e.cachedKey()
	if key == "" {
		return "", fmt.Errorf("%w: no API key set", ErrUnauthorized)
	}
	return key, nil
}

func (e *Engine) cachedKey() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.key
}

func (e *Engine) setKey(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.key = key
}

func (e *Engine) clearCredential(ctx context.Context) error {
	e.setKey("")
	if e.store == nil {
		return nil
	}
	return e.store.Clear(ctx)
}

// imagesRequest is the generateImages relay payload.
type imagesRequest struct {
	Model  string                      `json:"model"`
	Prompt string                      `json:"prompt"`
	Config *genai.GenerateImagesConfig `json:"config,omitempty"`
}

// contentRequest is the generateContent relay payload.
type contentRequest struct {
	Model    string                       `json:"model"`
	Contents []*genai.Content             `json:"contents"`
	Config   *genai.GenerateContentConfig `json:"config,omitempty"`
}

// videosRequest is the generateVideos relay payload.
type videosRequest struct {
	Model  string                      `json:"model"`
	Prompt string                      `json:"prompt"`
	Image  *genai.Image                `json:"image,omitempty"`
	Config *genai.GenerateVideosConfig `json:"config,omitempty"`
}

// contentParts maps the first candidate's parts onto edit result parts.
func contentParts(resp *genai.GenerateContentResponse) []Part {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}

	var parts []Part
	for _, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p == nil:
		case p.InlineData != nil && len(p.InlineData.Data) > 0:
			mime := p.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			parts = append(parts, Part{Kind: PartImage, Value: DataURI(mime, p.InlineData.Data)})
		case p.Text != "" && !p.Thought:
			parts = append(parts, Part{Kind: PartText, Value: p.Text})
		}
	}
	return parts
}

// operationStatus reduces a video operation to a job status.
func operationStatus(op *genai.GenerateVideosOperation) job.Status {
	status := job.Status{Name: op.Name, Done: op.Done}
	if op.Response == nil {
		return status
	}
	for _, v := range op.Response.GeneratedVideos {
		if v != nil && v.Video != nil && v.Video.URI != "" {
			status.ResultURI = v.Video.URI
			break
		}
	}
	return status
}

// operationError extracts the remote failure message of a finished operation.
func operationError(op *genai.GenerateVideosOperation) string {
	if op.Error == nil {
		return ""
	}
	if msg, ok := op.Error["message"].(string); ok {
		return msg
	}
	return fmt.Sprint(op.Error)
}
