package interceptors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/filter"
)

// Filter rewrites successful JSON response bodies with a jq expression.
// Error responses and empty bodies pass through untouched.
type Filter struct {
	code *gojq.Code
}

var _ connection.ResponseInterceptor = (*Filter)(nil)

// NewFilter compiles expr.
func NewFilter(expr string) (*Filter, error) {
	code, err := filter.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Filter{code: code}, nil
}

// OnResponse implements connection.ResponseInterceptor.
func (f *Filter) OnResponse(_ context.Context, _ connection.Request, resp *connection.Response, _ connection.Invoker) (*connection.Response, error) {
	if !resp.OK() || len(resp.Body) == 0 {
		return resp, nil
	}
	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("filter: response is not JSON: %w", err)
	}
	result, err := filter.Run(f.code, data)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("filter: encode result: %w", err)
	}
	out := resp.Clone()
	out.Body = body
	return out, nil
}
