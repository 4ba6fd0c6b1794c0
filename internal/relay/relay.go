package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Static errors for relay dispatch.
var (
	// ErrUnknownMode is returned when the configured credential mode is not recognized.
	ErrUnknownMode = errors.New("relay: unknown credential mode")
	// ErrUnconfigured is returned in server mode when no credential is configured.
	ErrUnconfigured = errors.New("relay: server is missing GEMINI_API_KEY configuration")
	// ErrMissingAPIKey is returned in client mode when the request carries no credential.
	ErrMissingAPIKey = errors.New("relay: apiKey is required")
	// ErrUnknownEndpoint is returned when the endpoint is not recognized.
	ErrUnknownEndpoint = errors.New("relay: unknown endpoint")
	// ErrMissingPayload is returned when the payload is absent or not a JSON object.
	ErrMissingPayload = errors.New("relay: payload is required")
	// ErrInvalidPayload is returned by a Service when a payload lacks required fields.
	ErrInvalidPayload = errors.New("relay: invalid payload")
	// ErrMissingOperationName is returned when getVideosOperation has no operationName.
	ErrMissingOperationName = errors.New("relay: payload.operationName is required")
	// ErrServiceRequired is returned when no remote service is provided.
	ErrServiceRequired = errors.New("relay: remote service is required")
)

// DefaultProbePrompt is the minimal prompt sent by the validate endpoint.
const DefaultProbePrompt = "hi"

// Service is the remote generative service as seen by the relay.
// Payloads are forwarded unchanged; responses are returned as JSON documents.
type Service interface {
	// Probe issues a minimal content-generation call and returns its text.
	Probe(ctx context.Context, apiKey, model, prompt string) (string, error)
	// GenerateImages forwards an image-generation payload.
	GenerateImages(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error)
	// GenerateContent forwards a content-generation payload.
	GenerateContent(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error)
	// GenerateVideos forwards a video-generation payload and returns the operation.
	GenerateVideos(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error)
	// GetVideosOperation returns the current status of a video operation.
	GetVideosOperation(ctx context.Context, apiKey, operationName string) (json.RawMessage, error)
}

// UpstreamError wraps a failure reported by the remote service.
type UpstreamError struct {
	Endpoint Endpoint
	Err      error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Relay dispatches validated requests to the remote service.
type Relay struct {
	service     Service
	mode        Mode
	credentials credentialSource
	probeModel  string
	probePrompt string
	logger      *slog.Logger
}

// Option is a function that configures a Relay.
type Option func(*Relay)

// WithProbeModel sets the model used by the validate endpoint.
func WithProbeModel(model string) Option {
	return func(r *Relay) {
		if model != "" {
			r.probeModel = model
		}
	}
}

// WithLogger sets the logger used for upstream failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Relay for the given deployment mode.
// serverKey is only consulted in ModeServer; in ModeClient it must be empty
// so a held key can never be used for caller requests.
func New(service Service, mode Mode, serverKey string, opts ...Option) (*Relay, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}

	var creds credentialSource
	switch mode {
	case ModeServer:
		creds = envCredential{key: serverKey}
	case ModeClient:
		creds = callerCredential{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	r := &Relay{
		service:     service,
		mode:        mode,
		credentials: creds,
		probeModel:  "gemini-2.5-flash",
		probePrompt: DefaultProbePrompt,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Mode returns the deployment mode of the relay.
func (r *Relay) Mode() Mode {
	return r.mode
}

// Configured reports whether the relay can serve requests at all.
// Only a server-mode relay without a held credential is unconfigured.
func (r *Relay) Configured() bool {
	if r.mode != ModeServer {
		return true
	}
	_, ok := r.credentials.MediaKey()
	return ok
}

// Dispatch performs one relay operation and returns the JSON-encodable result.
func (r *Relay) Dispatch(ctx context.Context, req Request) (any, error) {
	if !req.Endpoint.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, req.Endpoint)
	}
	if !isObject(req.Payload) {
		return nil, ErrMissingPayload
	}

	apiKey, err := r.credentials.Resolve(req)
	if err != nil {
		return nil, err
	}

	var (
		result any
		opErr  error
	)
	switch req.Endpoint {
	case EndpointValidate:
		result, opErr = r.validate(ctx, apiKey)
	case EndpointGenerateImages:
		result, opErr = r.service.GenerateImages(ctx, apiKey, req.Payload)
	case EndpointGenerateContent:
		result, opErr = r.service.GenerateContent(ctx, apiKey, req.Payload)
	case EndpointGenerateVideos:
		result, opErr = r.service.GenerateVideos(ctx, apiKey, req.Payload)
	case EndpointGetVideosOperation:
		result, opErr = r.getVideosOperation(ctx, apiKey, req.Payload)
	}
	if opErr != nil {
		if errors.Is(opErr, ErrMissingOperationName) || errors.Is(opErr, ErrInvalidPayload) {
			return nil, opErr
		}
		r.logger.ErrorContext(ctx, "upstream call failed",
			slog.String("endpoint", string(req.Endpoint)),
			slog.String("error", opErr.Error()),
		)
		return nil, &UpstreamError{Endpoint: req.Endpoint, Err: opErr}
	}
	return result, nil
}

func (r *Relay) validate(ctx context.Context, apiKey string) (ValidateResult, error) {
	text, err := r.service.Probe(ctx, apiKey, r.probeModel, r.probePrompt)
	if err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult{Success: true, Text: text}, nil
}

func (r *Relay) getVideosOperation(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
	var p OperationPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.OperationName == "" {
		return nil, ErrMissingOperationName
	}

	op, err := r.service.GetVideosOperation(ctx, apiKey, p.OperationName)
	if err != nil {
		return nil, err
	}

	key, ok := r.credentials.MediaKey()
	if !ok {
		return op, nil
	}
	return rewriteVideoURIs(op, key)
}

// rewriteVideoURIs appends the credential to every generated video URI of a
// finished operation so the caller can fetch the media directly.
func rewriteVideoURIs(op json.RawMessage, key string) (json.RawMessage, error) {
	// UseNumber keeps large integers in metadata intact through the re-encode.
	dec := json.NewDecoder(bytes.NewReader(op))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("relay: decode operation: %w", err)
	}
	if done, _ := doc["done"].(bool); !done {
		return op, nil
	}

	response, _ := doc["response"].(map[string]any)
	videos, _ := response["generatedVideos"].([]any)
	changed := false
	for _, v := range videos {
		entry, _ := v.(map[string]any)
		video, _ := entry["video"].(map[string]any)
		uri, _ := video["uri"].(string)
		if uri == "" {
			continue
		}
		video["uri"] = AppendKey(uri, key)
		changed = true
	}
	if !changed {
		return op, nil
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("relay: encode operation: %w", err)
	}
	return out, nil
}

// isObject reports whether raw holds a JSON object.
func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
