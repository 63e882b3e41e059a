package cloud

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the render backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("render backend returned HTTP %d: %s", e.StatusCode, e.Message())
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Message extracts the server-supplied message from an {"error": ...} or
// {"detail": ...} body, falling back to the raw body.
func (e *APIError) Message() string {
	var body struct {
		Error  any `json:"error"`
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil {
		for _, v := range []any{body.Error, body.Detail} {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
