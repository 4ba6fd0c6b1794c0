package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeGemini serves canned Gemini REST responses keyed by path suffix.
func newFakeGemini(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for suffix, handler := range routes {
			if strings.HasSuffix(r.URL.Path, suffix) {
				handler(w, r)
				return
			}
		}
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	return server
}

func apiKeyOf(r *http.Request) string {
	if key := r.Header.Get("x-goog-api-key"); key != "" {
		return key
	}
	return r.URL.Query().Get("key")
}

func TestProbe_Success(t *testing.T) {
	server := newFakeGemini(t, map[string]func(http.ResponseWriter, *http.Request){
		":generateContent": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Contains(t, r.URL.Path, "gemini-2.5-flash")
			assert.Equal(t, "test-key", apiKeyOf(r))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello"},{"text":" there"}]}}]}`))
		},
	})

	client := NewClient(WithBaseURL(server.URL))

	text, err := client.Probe(context.Background(), "test-key", "gemini-2.5-flash", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)
}

func TestProbe_RemoteErrorKeepsMessage(t *testing.T) {
	server := newFakeGemini(t, map[string]func(http.ResponseWriter, *http.Request){
		":generateContent": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
		},
	})

	client := NewClient(WithBaseURL(server.URL))

	_, err := client.Probe(context.Background(), "bad-key", "gemini-2.5-flash", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestProbe_MissingAPIKey(t *testing.T) {
	client := NewClient()

	_, err := client.Probe(context.Background(), "", "gemini-2.5-flash", "hi")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestGetVideosOperation(t *testing.T) {
	server := newFakeGemini(t, map[string]func(http.ResponseWriter, *http.Request){
		"operations/op-1": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"models/veo/operations/op-1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://files/v.mp4"}}]}}}`))
		},
	})

	client := NewClient(WithBaseURL(server.URL))

	raw, err := client.GetVideosOperation(context.Background(), "test-key", "models/veo/operations/op-1")
	require.NoError(t, err)

	var op struct {
		Name string `json:"name"`
		Done bool   `json:"done"`
	}
	require.NoError(t, json.Unmarshal(raw, &op))
	assert.Equal(t, "models/veo/operations/op-1", op.Name)
	assert.True(t, op.Done)
}

func TestPayloadValidation(t *testing.T) {
	client := NewClient()
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name: "images without model",
			call: func() error {
				_, err := client.GenerateImages(ctx, "k", json.RawMessage(`{"prompt":"p"}`))
				return err
			},
			wantErr: ErrModelRequired,
		},
		{
			name: "images without prompt",
			call: func() error {
				_, err := client.GenerateImages(ctx, "k", json.RawMessage(`{"model":"m"}`))
				return err
			},
			wantErr: ErrPromptRequired,
		},
		{
			name: "content without contents",
			call: func() error {
				_, err := client.GenerateContent(ctx, "k", json.RawMessage(`{"model":"m"}`))
				return err
			},
			wantErr: ErrContentsRequired,
		},
		{
			name: "videos without prompt",
			call: func() error {
				_, err := client.GenerateVideos(ctx, "k", json.RawMessage(`{"model":"m"}`))
				return err
			},
			wantErr: ErrPromptRequired,
		},
		{
			name: "malformed payload",
			call: func() error {
				_, err := client.GenerateVideos(ctx, "k", json.RawMessage(`{"model":7}`))
				return err
			},
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}
}
