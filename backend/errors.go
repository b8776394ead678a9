package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	codeTransport = "BACKEND_TRANSPORT"
	codeDecode    = "BACKEND_DECODE"
	codeEncode    = "BACKEND_ENCODE"
)

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

// IsAuthError reports whether err is a 401 or 403 response.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// IsValidationError reports whether err is a 4xx response other than 401 or 403.
func IsValidationError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && !IsAuthError(err)
}

func decodeAPIError(status int, body []byte) *APIError {
	var raw struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, &raw) == nil {
		apiErr.Code = raw.Code
		apiErr.Message = raw.Message
		var s string
		if apiErr.Message == "" && json.Unmarshal(raw.Error, &s) == nil {
			apiErr.Message = s
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
