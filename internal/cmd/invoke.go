package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/suggest"
)

var requestShorthands = []connection.RequestType{
	connection.RequestGet,
	connection.RequestPatch,
	connection.RequestPost,
}

// invokeOptions are the per-request flags shared by invoke and its shorthands.
type invokeOptions struct {
	headers        []string
	params         []string
	rawParams      []string
	data           string
	input          string
	jq             string
	includeHeaders bool
	silent         bool
}

func (o *invokeOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&o.headers, "header", "H", nil, "Request header as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&o.params, "param", "p", nil, "Parameter as key=value (string, repeatable)")
	cmd.Flags().StringArrayVarP(&o.rawParams, "raw-param", "F", nil, "Parameter as key=value (JSON parsed, repeatable)")
	cmd.Flags().StringVarP(&o.data, "data", "d", "", "Parameters as an inline JSON object")
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "Read parameters from a JSON file (use - for stdin)")
	cmd.Flags().StringVar(&o.jq, "jq", "", "jq expression applied to successful JSON responses")
	cmd.Flags().BoolVar(&o.includeHeaders, "include", false, "Include status and response headers in output")
	cmd.Flags().BoolVarP(&o.silent, "silent", "s", false, "Suppress output")
}

func newInvokeCmd() *cobra.Command {
	var opts invokeOptions

	cmd := &cobra.Command{
		Use:   "invoke <type> <path>",
		Short: "Send a request through the connection",
		Long: strings.TrimSpace(`
Send a request through the connection.

The request carries the identity headers of the active profile and runs
through the configured authenticator and response interceptors. GET
parameters are sent as the query string; PATCH and POST parameters as a
JSON body.
`),
		Example: strings.TrimSpace(`
  # GET with query parameters
  apiconn invoke GET /orders -p status=open -p page=2

  # POST with a JSON body
  apiconn invoke POST /orders -d '{"sku":"A-1","qty":2}'

  # PATCH with a typed parameter
  apiconn invoke PATCH /orders/7 -F 'tags=["rush"]'

  # Filter the response
  apiconn invoke GET /orders --jq '.items[].id'
`),
		Args: cobra.ExactArgs(2),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			t, err := parseRequestType(args[0])
			if err != nil {
				return err
			}
			return runInvoke(cmd, t, args[1], opts)
		}),
	}
	opts.register(cmd)
	return cmd
}

func newShorthandCmd(t connection.RequestType) *cobra.Command {
	var opts invokeOptions
	name := strings.ToLower(string(t))

	cmd := &cobra.Command{
		Use:     name + " <path>",
		Short:   fmt.Sprintf("Send a %s request (shorthand for 'invoke %s')", t, t),
		Example: fmt.Sprintf("  apiconn %s /orders", name),
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, t, args[0], opts)
		}),
	}
	opts.register(cmd)
	return cmd
}

// parseRequestType parses s, suggesting the closest supported type on failure.
func parseRequestType(s string) (connection.RequestType, error) {
	t, err := connection.ParseRequestType(s)
	if err == nil {
		return t, nil
	}
	candidates := make([]string, 0, len(connection.RequestTypes))
	for _, rt := range connection.RequestTypes {
		candidates = append(candidates, string(rt))
	}
	if hint := suggest.Closest(s, candidates); hint != "" {
		return "", fmt.Errorf("%w (did you mean %s?)", err, hint)
	}
	return "", err
}

func runInvoke(cmd *cobra.Command, t connection.RequestType, path string, opts invokeOptions) error {
	if opts.data != "" && opts.input != "" {
		return fmt.Errorf("cannot use both --data and --input flags")
	}
	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	params, err := buildParams(opts.params, opts.rawParams, opts.input, opts.data)
	if err != nil {
		return err
	}

	c, err := newClient(cmd, opts.jq)
	if err != nil {
		return err
	}
	resp, err := c.conn.Invoke(cmd.Context(), c.request(t, path, headers, params))
	if closeErr := c.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if opts.silent {
		return nil
	}
	return printResponse(cmd, resp, opts.includeHeaders, c.rateLimit.Last().Meta())
}

func printResponse(cmd *cobra.Command, resp *connection.Response, includeHeaders bool, rateLimit map[string]any) error {
	out := cmd.OutOrStdout()

	if flags.JSON {
		payload := map[string]any{"status": resp.Status, "body": jsonBody(resp.Body)}
		if includeHeaders {
			payload["headers"] = resp.Headers
		}
		if rateLimit != nil {
			payload["rate_limit"] = rateLimit
		}
		return printJSON(cmd, payload)
	}

	if includeHeaders {
		_, _ = fmt.Fprintf(out, "HTTP %d\n", resp.Status)
		keys := make([]string, 0, len(resp.Headers))
		for k := range resp.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range resp.Headers[k] {
				_, _ = fmt.Fprintf(out, "%s: %s\n", k, v)
			}
		}
		_, _ = fmt.Fprintln(out)
	}

	if len(resp.Body) == 0 {
		return nil
	}
	var pretty bytes.Buffer
	if json.Valid(resp.Body) && json.Indent(&pretty, resp.Body, "", "  ") == nil {
		_, _ = fmt.Fprintln(out, pretty.String())
		return nil
	}
	_, _ = fmt.Fprintln(out, string(resp.Body))
	return nil
}

func jsonBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if !json.Valid(body) {
		return string(body)
	}
	return json.RawMessage(body)
}

func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, v := range values {
		key, value, err := parseField(v)
		if err != nil {
			return nil, err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid header %q: name must not be empty", v)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

// buildParams merges --data or --input with --param and --raw-param, the
// individual parameters winning.
func buildParams(fields, rawFields []string, inputFile, data string) (map[string]any, error) {
	params := make(map[string]any)

	if data != "" {
		if err := json.Unmarshal([]byte(data), &params); err != nil {
			return nil, fmt.Errorf("failed to parse --data JSON: %w", err)
		}
	}

	if inputFile != "" {
		var raw []byte
		var err error
		if inputFile == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(inputFile)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("failed to parse input JSON: %w", err)
		}
	}

	for _, field := range fields {
		key, value, err := parseField(field)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}

	for _, field := range rawFields {
		key, value, err := parseRawField(field)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}

	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

var errFieldFormat = errors.New("must be key=value")

// parseField parses a key=value field where value is a string
func parseField(field string) (string, string, error) {
	key, value, ok := strings.Cut(field, "=")
	if !ok {
		return "", "", fmt.Errorf("invalid field format %q: %w", field, errFieldFormat)
	}
	return key, value, nil
}

// parseRawField parses a key=value field where value is JSON
func parseRawField(field string) (string, any, error) {
	key, raw, ok := strings.Cut(field, "=")
	if !ok {
		return "", nil, fmt.Errorf("invalid raw field format %q: %w", field, errFieldFormat)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("invalid JSON in raw field %q: %w", key, err)
	}
	return key, value, nil
}
