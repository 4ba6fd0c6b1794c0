package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genmedia-relay/internal/relay"
)

// mockService implements relay.Service for testing.
type mockService struct {
	mock.Mock
}

func (m *mockService) Probe(ctx context.Context, apiKey, model, prompt string) (string, error) {
	args := m.Called(ctx, apiKey, model, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockService) GenerateImages(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, apiKey, payload)
	return rawArg(args.Get(0)), args.Error(1)
}

func (m *mockService) GenerateContent(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, apiKey, payload)
	return rawArg(args.Get(0)), args.Error(1)
}

func (m *mockService) GenerateVideos(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error) {
	args := m.Called(ctx, apiKey, payload)
	return rawArg(args.Get(0)), args.Error(1)
}

func (m *mockService) GetVideosOperation(ctx context.Context, apiKey, operationName string) (json.RawMessage, error) {
	args := m.Called(ctx, apiKey, operationName)
	return rawArg(args.Get(0)), args.Error(1)
}

func rawArg(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	return json.RawMessage(v.(string))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, mode relay.Mode, serverKey string) (*Handlers, *mockService) {
	t.Helper()
	svc := &mockService{}
	r, err := relay.New(svc, mode, serverKey, relay.WithLogger(testLogger()))
	require.NoError(t, err)
	return NewHandlers(r, testLogger()), svc
}

func postRelay(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/relay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Relay(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "server", resp.Mode)
	assert.True(t, resp.Configured)
}

func TestRelay_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	req := httptest.NewRequest(http.MethodGet, "/api/relay", nil)
	rec := httptest.NewRecorder()

	h.Relay(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, rec).Code)
}

func TestRelay_UnknownEndpoint(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeServer, "key")

	rec := postRelay(t, h, `{"endpoint":"unknown","payload":{}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
	svc.AssertExpectations(t)
}

func TestRelay_MissingPayload(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	rec := postRelay(t, h, `{"endpoint":"validate"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestRelay_NullPayload(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	rec := postRelay(t, h, `{"endpoint":"validate","payload":null}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelay_MissingEndpoint(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	rec := postRelay(t, h, `{"payload":{}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelay_InvalidJSON(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	rec := postRelay(t, h, `not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestRelay_ServerModeUnconfigured(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "")

	rec := postRelay(t, h, `{"endpoint":"validate","payload":{}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "UNCONFIGURED", resp.Code)
	assert.Contains(t, resp.Error, "GEMINI_API_KEY")
}

func TestRelay_ClientModeMissingAPIKey(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeClient, "")

	rec := postRelay(t, h, `{"endpoint":"validate","payload":{}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_API_KEY", decodeError(t, rec).Code)
}

func TestRelay_ValidateSuccess(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeServer, "key")
	svc.On("Probe", mock.Anything, "key", mock.Anything, relay.DefaultProbePrompt).Return("Hi!", nil)

	rec := postRelay(t, h, `{"endpoint":"validate","payload":{}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp relay.ValidateResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Hi!", resp.Text)
}

func TestRelay_ClientModeValidateWithKey(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeClient, "")
	svc.On("Probe", mock.Anything, "user-key", mock.Anything, mock.Anything).Return("ok", nil)

	rec := postRelay(t, h, `{"apiKey":"user-key","endpoint":"validate","payload":{}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestRelay_GenerateImagesVerbatim(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeServer, "key")
	upstream := `{"generatedImages":[{"image":{"imageBytes":"AQID","mimeType":"image/jpeg"}}]}`
	svc.On("GenerateImages", mock.Anything, "key", mock.Anything).Return(upstream, nil)

	rec := postRelay(t, h, `{"endpoint":"generateImages","payload":{"model":"imagen","prompt":"a fox"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, upstream, rec.Body.String())
}

func TestRelay_GetVideosOperationMissingName(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	rec := postRelay(t, h, `{"endpoint":"getVideosOperation","payload":{}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_OPERATION_NAME", decodeError(t, rec).Code)
}

func TestRelay_GetVideosOperationAppendsKey(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeServer, "secret")
	svc.On("GetVideosOperation", mock.Anything, "secret", "operations/7").Return(
		`{"name":"operations/7","done":true,"response":{"generatedVideos":[{"video":{"uri":"https://files/v?alt=media"}}]}}`, nil)

	rec := postRelay(t, h, `{"endpoint":"getVideosOperation","payload":{"operationName":"operations/7"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var op struct {
		Done     bool `json:"done"`
		Response struct {
			GeneratedVideos []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedVideos"`
		} `json:"response"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&op))
	require.Len(t, op.Response.GeneratedVideos, 1)
	assert.True(t, op.Done)
	assert.Equal(t, "https://files/v?alt=media&key=secret", op.Response.GeneratedVideos[0].Video.URI)
}

func TestRelay_UpstreamErrorMessage(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeServer, "key")
	svc.On("GenerateContent", mock.Anything, "key", mock.Anything).Return(nil, errors.New("quota exceeded for model"))

	rec := postRelay(t, h, `{"endpoint":"generateContent","payload":{"model":"m","contents":[]}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "UPSTREAM_ERROR", resp.Code)
	assert.Equal(t, "quota exceeded for model", resp.Error)
}

func TestRelay_InvalidPayloadFromService(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeServer, "key")
	svc.On("GenerateImages", mock.Anything, "key", mock.Anything).
		Return(nil, fmt.Errorf("gemini: payload.model is required: %w", relay.ErrInvalidPayload))

	rec := postRelay(t, h, `{"endpoint":"generateImages","payload":{"prompt":"a fox"}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Contains(t, resp.Error, "payload.model is required")
}

func TestRouter_Integration(t *testing.T) {
	h, svc := newTestHandlers(t, relay.ModeServer, "key")
	svc.On("Probe", mock.Anything, "key", mock.Anything, mock.Anything).Return("ok", nil)

	router := NewRouter(h, testLogger(), DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/relay", bytes.NewReader([]byte(`{"endpoint":"validate","payload":{}}`)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodPut, "/api/relay", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestIDMiddleware_PropagatesHeader(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestCORSMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t, relay.ModeServer, "key")

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/relay", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(0.001, 2, time.Minute, false)(next)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/relay", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/relay", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_IgnoresForwardedForByDefault(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(0.001, 1, time.Minute, false)(next)

	codes := make([]int, 0, 3)
	for _, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/relay", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRateLimitMiddleware_TrustedProxy(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(0.001, 1, time.Minute, true)(next)

	// One proxy address, two forwarded clients.
	codes := make([]int, 0, 3)
	for _, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.1"} {
		req := httptest.NewRequest(http.MethodPost, "/api/relay", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req, false))
	assert.Equal(t, "192.0.2.1", clientIP(req, true))

	req.Header.Set("X-Forwarded-For", "garbage, 198.51.100.7")
	assert.Equal(t, "192.0.2.1", clientIP(req, false))
	assert.Equal(t, "198.51.100.7", clientIP(req, true))
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}
