package connection

import (
	"context"
	"net/http"
	"strings"
)

// RequestType selects the transport verb used for a request.
type RequestType string

const (
	RequestGet   RequestType = http.MethodGet
	RequestPatch RequestType = http.MethodPatch
	RequestPost  RequestType = http.MethodPost
)

// RequestTypes lists the request types a Connection can dispatch.
var RequestTypes = []RequestType{RequestGet, RequestPatch, RequestPost}

// Valid reports whether t is one of the dispatchable request types.
func (t RequestType) Valid() bool {
	for _, known := range RequestTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseRequestType maps a verb name to a RequestType, ignoring case and
// surrounding whitespace.
func ParseRequestType(s string) (RequestType, error) {
	t := RequestType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return t, &UnsupportedRequestTypeError{Type: t}
	}
	return t, nil
}

// Request describes a single call made through a Connection.
type Request struct {
	Type                 RequestType
	Path                 string
	Headers              map[string]string
	Parameters           map[string]any
	Authenticators       []Authenticator
	ResponseInterceptors []ResponseInterceptor
}

// Clone returns a copy of r whose maps and slices can be modified without
// affecting r.
func (r Request) Clone() Request {
	out := r
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	if r.Parameters != nil {
		out.Parameters = make(map[string]any, len(r.Parameters))
		for k, v := range r.Parameters {
			out.Parameters[k] = v
		}
	}
	if r.Authenticators != nil {
		out.Authenticators = append([]Authenticator(nil), r.Authenticators...)
	}
	if r.ResponseInterceptors != nil {
		out.ResponseInterceptors = append([]ResponseInterceptor(nil), r.ResponseInterceptors...)
	}
	return out
}

// WithHeader returns a copy of r with the header set.
func (r Request) WithHeader(name, value string) Request {
	out := r.Clone()
	if out.Headers == nil {
		out.Headers = make(map[string]string, 1)
	}
	out.Headers[name] = value
	return out
}

// Response is what a Transport returns for a request.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{Status: r.Status, Headers: r.Headers.Clone()}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Invoker issues requests. A Connection passes itself to authenticators and
// interceptors as an Invoker so they can make follow-up calls.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Authenticator rewrites outgoing requests and observes the matching
// responses. Authenticators run in list order on the way out and again, in
// the same order, on the way back.
//
// InterceptRequest must not send requests; OnResponse may, through conn.
// An OnResponse that returns a nil *Response and a nil error leaves the
// current response in place.
type Authenticator interface {
	InterceptRequest(ctx context.Context, req Request) (Request, error)
	OnResponse(ctx context.Context, req Request, resp *Response, conn Invoker) (*Response, error)
}

// ResponseInterceptor observes or rewrites responses after every
// authenticator has run. As with Authenticator, a nil *Response with a nil
// error keeps the current response.
type ResponseInterceptor interface {
	OnResponse(ctx context.Context, req Request, resp *Response, conn Invoker) (*Response, error)
}

// ResponseInterceptorFunc adapts a function to ResponseInterceptor.
type ResponseInterceptorFunc func(ctx context.Context, req Request, resp *Response, conn Invoker) (*Response, error)

// OnResponse calls f.
func (f ResponseInterceptorFunc) OnResponse(ctx context.Context, req Request, resp *Response, conn Invoker) (*Response, error) {
	return f(ctx, req, resp, conn)
}

// Transport performs the network call for each verb.
type Transport interface {
	Get(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*Response, error)
	Patch(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*Response, error)
	Post(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*Response, error)
}
