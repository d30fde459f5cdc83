package scm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/iamd3vil/rlsr/errors"
)

// APIError is a non-2xx response from a host API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// parseAPIError reads the message from GitHub ("message") and GitLab
// ("message" or "error") error bodies, falling back to the raw body.
func parseAPIError(service string, status int, body []byte) *APIError {
	apiErr := &APIError{Service: service, StatusCode: status}

	var wire struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil {
		switch m := wire.Message.(type) {
		case string:
			apiErr.Message = m
		case nil:
			apiErr.Message = wire.Error
		default:
			encoded, _ := json.Marshal(m)
			apiErr.Message = string(encoded)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
