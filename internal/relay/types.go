// Package relay forwards generation requests to the remote generative service
// while resolving the credential according to the deployment mode.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Endpoint names one of the operations the relay forwards.
type Endpoint string

// Recognized relay endpoints.
const (
	EndpointValidate           Endpoint = "validate"
	EndpointGenerateImages     Endpoint = "generateImages"
	EndpointGenerateContent    Endpoint = "generateContent"
	EndpointGenerateVideos     Endpoint = "generateVideos"
	EndpointGetVideosOperation Endpoint = "getVideosOperation"
)

// Endpoints lists every recognized endpoint in a stable order.
var Endpoints = []Endpoint{
	EndpointValidate,
	EndpointGenerateImages,
	EndpointGenerateContent,
	EndpointGenerateVideos,
	EndpointGetVideosOperation,
}

// IsValid returns true if the endpoint is one of the recognized operations.
func (e Endpoint) IsValid() bool {
	for _, known := range Endpoints {
		if e == known {
			return true
		}
	}
	return false
}

// Mode selects where the credential for the remote service comes from.
// A deployment runs in exactly one mode.
type Mode string

const (
	// ModeServer keeps the credential in the relay environment. Callers never send it.
	ModeServer Mode = "server"
	// ModeClient expects the caller to supply the credential with each request.
	ModeClient Mode = "client"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeServer, "":
		return ModeServer, nil
	case ModeClient:
		return ModeClient, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Request is a single operation request accepted by the relay.
type Request struct {
	// APIKey is the caller-supplied credential. Only read in ModeClient.
	APIKey string
	// Endpoint is the operation to perform.
	Endpoint Endpoint
	// Payload is the operation-specific body, forwarded as-is.
	Payload json.RawMessage
}

// ValidateResult is returned by the validate endpoint.
type ValidateResult struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// OperationPayload is the payload of the getVideosOperation endpoint.
type OperationPayload struct {
	OperationName string `json:"operationName"`
}
