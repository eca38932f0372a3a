package interceptors

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

// Metrics counts responses by request type and status class and observes
// response body sizes.
type Metrics struct {
	responses *prometheus.CounterVec
	bodyBytes *prometheus.HistogramVec
}

var _ connection.ResponseInterceptor = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiconn",
			Name:      "responses_total",
			Help:      "Responses received, by request type and status class.",
		}, []string{"type", "status_class"}),
		bodyBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "apiconn",
			Name:      "response_body_bytes",
			Help:      "Size of response bodies in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"type"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.responses, m.bodyBytes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// OnResponse implements connection.ResponseInterceptor.
func (m *Metrics) OnResponse(_ context.Context, req connection.Request, resp *connection.Response, _ connection.Invoker) (*connection.Response, error) {
	if resp == nil {
		return resp, nil
	}
	m.responses.WithLabelValues(string(req.Type), statusClass(resp.Status)).Inc()
	m.bodyBytes.WithLabelValues(string(req.Type)).Observe(float64(len(resp.Body)))
	return resp, nil
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return fmt.Sprintf("%dxx", status/100)
}
