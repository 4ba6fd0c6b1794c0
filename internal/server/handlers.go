package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/genmedia-relay/internal/relay"
)

// maxBodyBytes bounds relay request bodies; seed images travel inline.
const maxBodyBytes = 32 << 20

// Handlers contains the HTTP handlers for the relay.
type Handlers struct {
	relay     *relay.Relay
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(r *relay.Relay, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		relay:     r,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Mode:       string(h.relay.Mode()),
		Configured: h.relay.Configured(),
	})
}

// Relay handles requests to /api/relay.
func (h *Handlers) Relay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
		return
	}

	if !h.relay.Configured() {
		h.logger.Error("relay is not configured",
			slog.String("mode", string(h.relay.Mode())),
		)
		writeError(w, http.StatusInternalServerError, relay.ErrUnconfigured.Error(), "UNCONFIGURED")
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "missing or invalid endpoint or payload", "VALIDATION_ERROR")
		return
	}

	result, err := h.relay.Dispatch(r.Context(), relay.Request{
		APIKey:   req.APIKey,
		Endpoint: relay.Endpoint(req.Endpoint),
		Payload:  req.Payload,
	})
	if err != nil {
		h.writeDispatchError(w, req.Endpoint, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeDispatchError maps relay errors onto HTTP status codes.
func (h *Handlers) writeDispatchError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, relay.ErrUnknownEndpoint), errors.Is(err, relay.ErrMissingPayload):
		writeError(w, http.StatusBadRequest, "missing or invalid endpoint or payload", "VALIDATION_ERROR")
	case errors.Is(err, relay.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, relay.ErrMissingAPIKey):
		writeError(w, http.StatusBadRequest, "missing apiKey, endpoint, or payload", "MISSING_API_KEY")
	case errors.Is(err, relay.ErrMissingOperationName):
		writeError(w, http.StatusBadRequest, "operationName is required", "MISSING_OPERATION_NAME")
	case errors.Is(err, relay.ErrUnconfigured):
		writeError(w, http.StatusInternalServerError, err.Error(), "UNCONFIGURED")
	default:
		h.logger.Error("relay call failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error(), "UPSTREAM_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
