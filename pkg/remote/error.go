package remote

import (
	"encoding/json"
	"fmt"
)

// APIError is a structured error body from the hosted repository API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// tryParseAPIError decodes a JSON error body, accepting both the
// {code, error, detail} shape and GitHub's {message} shape.
func tryParseAPIError(body []byte) *APIError {
	var re APIError
	if err := json.Unmarshal(body, &re); err == nil && (re.Message != "" || re.Code != "") {
		return &re
	}
	var gh struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &gh); err == nil && gh.Message != "" {
		return &APIError{Code: "remote_error", Message: gh.Message}
	}
	return nil
}
