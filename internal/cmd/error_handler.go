package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/salmonumbrella/apiconn/internal/auth"
	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/interceptors"
	"github.com/salmonumbrella/apiconn/internal/transport"
)

// HandleError processes an error and returns a user-friendly message with suggestions
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder

	var apiErr *interceptors.APIError
	var authErr *auth.AuthError
	var typeErr *connection.UnsupportedRequestTypeError
	var reqErr *transport.RequestError

	switch {
	case errors.Is(err, config.ErrNotConfigured):
		msg.WriteString("No API configured.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: apiconn auth login --url https://api.example.com\n")
		msg.WriteString("  - Or set APICONN_BASE_URL, or pass --base-url\n")

	case errors.As(err, &typeErr):
		fmt.Fprintf(&msg, "Error: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Use one of: GET, PATCH, POST\n")

	case errors.As(err, &authErr):
		fmt.Fprintf(&msg, "Authentication failed: %s\n\n", authErr.Reason)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: apiconn auth login\n")
		msg.WriteString("  - Verify your token is valid: apiconn auth status\n")

	case errors.As(err, &apiErr):
		fmt.Fprintf(&msg, "API error (HTTP %d): %s\n\n", apiErr.StatusCode, apiErr.Body)
		msg.WriteString(suggestionsForStatusCode(apiErr.StatusCode, apiErr.Body))
		if apiErr.RequestID != "" {
			fmt.Fprintf(&msg, "\nRequest ID: %s\n", apiErr.RequestID)
		}

	case errors.As(err, &reqErr) && strings.Contains(err.Error(), "connection refused"):
		msg.WriteString("Connection refused.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check if the API server is running\n")
		msg.WriteString("  - Verify the URL: apiconn config show\n")

	case strings.Contains(err.Error(), "no such host"):
		msg.WriteString("DNS resolution failed.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check the base URL spelling\n")
		msg.WriteString("  - Verify your DNS settings\n")

	case strings.Contains(err.Error(), "certificate"):
		msg.WriteString("TLS certificate error.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Verify the server's certificate\n")
		msg.WriteString("  - Ensure you're using https:// correctly\n")

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err.Error())
	}

	return msg.String()
}

func suggestionsForStatusCode(code int, body string) string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggestions:\n")

	switch {
	case code == 400:
		suggestions.WriteString("  - Check your request parameters\n")
		suggestions.WriteString("  - Use --debug to see the full request\n")
		if strings.Contains(body, "required") {
			suggestions.WriteString("  - A required parameter may be missing\n")
		}
	case code == 401:
		suggestions.WriteString("  - Your token may be invalid or expired\n")
		suggestions.WriteString("  - Run: apiconn auth login\n")
	case code == 403:
		suggestions.WriteString("  - The configured identity lacks permission for this action\n")
		suggestions.WriteString("  - Check the channel, producer and device IDs: apiconn config show\n")
	case code == 404:
		suggestions.WriteString("  - The resource doesn't exist\n")
		suggestions.WriteString("  - Check the request path\n")
	case code == 422:
		suggestions.WriteString("  - Validation failed\n")
		suggestions.WriteString("  - Check your input values\n")
	case code == 429:
		suggestions.WriteString("  - Too many requests\n")
		suggestions.WriteString("  - Wait and retry in a few seconds\n")
	case code >= 500:
		suggestions.WriteString("  - Server error - not your fault\n")
		suggestions.WriteString("  - Wait and retry\n")
	default:
		suggestions.WriteString("  - Use --debug for more details\n")
	}

	return suggestions.String()
}
