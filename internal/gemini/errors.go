package gemini

import (
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// APIError carries the remote service's own error text and status code.
type APIError struct {
	Op      string
	Code    int
	Status  string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// wrapAPIError keeps the remote service's message as the error text so the
// relay can pass it to the caller unchanged.
func wrapAPIError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &APIError{Op: op, Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Message != "" {
		return &APIError{Op: op, Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message, Err: err}
	}
	return fmt.Errorf("gemini: %s: %w", op, err)
}
