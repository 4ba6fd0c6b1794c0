// Package server provides the HTTP surface of the relay.
// It includes handlers, middleware, routes, and DTOs separated from relay types.
package server

import "encoding/json"

// RelayRequest is the HTTP request body for POST /api/relay.
type RelayRequest struct {
	// APIKey is the caller credential. Only read when the relay runs in client mode.
	APIKey string `json:"apiKey,omitempty"`
	// Endpoint is the operation to perform.
	Endpoint string `json:"endpoint" validate:"required,oneof=validate generateImages generateContent generateVideos getVideosOperation"`
	// Payload is the operation-specific body.
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Mode is the credential mode the relay runs in.
	Mode string `json:"mode"`
	// Configured is false when the relay cannot serve requests.
	Configured bool `json:"configured"`
}
