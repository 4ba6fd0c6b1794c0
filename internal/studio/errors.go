package studio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/maauso/genmedia-relay/internal/job"
	"github.com/maauso/genmedia-relay/internal/relay"
)

// Failure classes returned by every engine operation. Callers match them with
// errors.Is and render them with Message.
var (
	// ErrBadRequest is returned when the relay rejects a request as malformed.
	ErrBadRequest = errors.New("studio: bad request")
	// ErrUnconfigured is returned when the relay has no credential configured.
	ErrUnconfigured = errors.New("studio: relay is not configured")
	// ErrUnauthorized is returned when the credential is missing or rejected.
	ErrUnauthorized = errors.New("studio: credential rejected")
	// ErrEmptyResult is returned when a call succeeded without producing content.
	ErrEmptyResult = errors.New("studio: empty result")
	// ErrIncompleteResult is returned when a finished video job carries no media URI.
	ErrIncompleteResult = errors.New("studio: video finished without a media URI")
	// ErrTransport is returned when the relay cannot be reached or answers garbage.
	ErrTransport = errors.New("studio: transport failure")
	// ErrUpstream is returned for any other failure reported through the relay.
	ErrUpstream = errors.New("studio: remote service failure")
	// ErrModeMismatch is returned when an operation does not apply to the credential mode.
	ErrModeMismatch = errors.New("studio: operation not available in this credential mode")
	// ErrRelayRequired is returned when no relay client is provided.
	ErrRelayRequired = errors.New("studio: relay client is required")
)

// unauthorizedMarkers are fragments the remote service uses when it rejects a key.
var unauthorizedMarkers = []string{
	"api key not valid",
	"api_key_invalid",
	"api key expired",
	"api_key_expired",
	"permission_denied",
}

// RelayError is a non-2xx answer from the relay.
type RelayError struct {
	Endpoint   relay.Endpoint
	StatusCode int
	Code       string
	Message    string
	kind       error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("studio: relay %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap returns the failure class so errors.Is works against the sentinels.
func (e *RelayError) Unwrap() error {
	return e.kind
}

func newRelayError(endpoint relay.Endpoint, status int, code, message string) *RelayError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &RelayError{
		Endpoint:   endpoint,
		StatusCode: status,
		Code:       code,
		Message:    message,
		kind:       classify(status, code, message),
	}
}

// classify maps a relay error answer onto a failure class.
func classify(status int, code, message string) error {
	lower := strings.ToLower(message)
	for _, marker := range unauthorizedMarkers {
		if strings.Contains(lower, marker) {
			return ErrUnauthorized
		}
	}

	switch {
	case code == "MISSING_API_KEY", status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case code == "UNCONFIGURED":
		return ErrUnconfigured
	case status == http.StatusTooManyRequests:
		return ErrTransport
	default:
		return ErrUpstream
	}
}

// Message renders err as the single human-readable line shown to a user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var relayErr *RelayError
	detail := ""
	if errors.As(err, &relayErr) {
		detail = relayErr.Message
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "The operation was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation timed out. Please try again."
	case errors.Is(err, ErrModeMismatch):
		return "API keys are managed by the relay in this deployment."
	case errors.Is(err, ErrUnauthorized):
		return "The API key is missing, invalid, or lacks permission. Set a valid key and try again."
	case errors.Is(err, ErrUnconfigured):
		return "The service is not ready yet. Please contact the operator."
	case errors.Is(err, ErrBadRequest):
		if detail != "" {
			return "The request was rejected: " + detail
		}
		return "The request was rejected: " + strings.TrimPrefix(err.Error(), ErrBadRequest.Error()+": ")
	case errors.Is(err, ErrEmptyResult):
		return "The model returned nothing. Try a different prompt or image."
	case errors.Is(err, ErrIncompleteResult), errors.Is(err, job.ErrRegression), errors.Is(err, job.ErrNameMismatch):
		return "The video could not be retrieved. Please try again."
	case errors.Is(err, ErrTransport):
		return "Could not reach the relay. Check your connection and try again."
	case errors.Is(err, ErrUpstream):
		if detail != "" {
			return "Generation failed: " + detail
		}
		return "Generation failed. Please try again."
	default:
		return err.Error()
	}
}
