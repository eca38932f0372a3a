// Package interceptors provides response interceptors for connection
// requests: status checking, rate limit tracking, logging, metrics and jq
// body filtering.
package interceptors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

const redactedBody = "API request failed (response body redacted for security)"

// Status turns responses with a 4xx or 5xx status into *APIError. Place it
// after any interceptor that needs to see error responses.
type Status struct{}

var _ connection.ResponseInterceptor = Status{}

// OnResponse implements connection.ResponseInterceptor.
func (Status) OnResponse(_ context.Context, req connection.Request, resp *connection.Response, _ connection.Invoker) (*connection.Response, error) {
	if resp == nil || resp.Status < 400 {
		return resp, nil
	}
	return nil, &APIError{
		Method:     req.Type,
		Path:       req.Path,
		StatusCode: resp.Status,
		Body:       sanitizeErrorBody(resp.Body),
		RequestID:  requestIDFromHeader(resp.Headers),
	}
}

func requestIDFromHeader(header http.Header) string {
	if header == nil {
		return ""
	}
	return header.Get("X-Request-Id")
}

// sanitizeErrorBody extracts the error message and validation errors from a
// JSON error body without echoing anything else the server sent back.
func sanitizeErrorBody(body []byte) string {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Errors  any    `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return redactedBody
	}

	result := errResp.Error
	if result == "" {
		result = errResp.Message
	}

	if validationErrors := formatValidationErrors(errResp.Errors); validationErrors != "" {
		if result != "" {
			return result + "\nValidation errors:\n" + validationErrors
		}
		return "Validation errors:\n" + validationErrors
	}
	if result != "" {
		return result
	}
	return redactedBody
}

// formatValidationErrors handles both {"field": "msg"} and
// {"field": ["msg", ...]} shapes.
func formatValidationErrors(errors any) string {
	errMap, ok := errors.(map[string]any)
	if !ok || len(errMap) == 0 {
		return ""
	}

	var lines []string
	for field, value := range errMap {
		switch v := value.(type) {
		case string:
			lines = append(lines, fmt.Sprintf("  %s: %s", field, v))
		case []any:
			for _, msg := range v {
				if s, ok := msg.(string); ok {
					lines = append(lines, fmt.Sprintf("  %s: %s", field, s))
				}
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
