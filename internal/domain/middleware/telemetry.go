package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

// Metrics holds the Prometheus instruments the telemetry stage records to,
// generalized from the host repository's per-HTTP-request metrics into
// per-aggregated-call metrics keyed by capability rather than HTTP route.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the middleware's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_sentinel",
				Name:      "requests_total",
				Help:      "Total number of aggregated calls processed, by capability kind and outcome.",
			},
			[]string{"kind", "backend", "outcome"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcp_sentinel",
				Name:      "request_duration_seconds",
				Help:      "Aggregated call duration in seconds, by capability kind.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
}

var tracer = otel.Tracer("github.com/diaz3618/mcp-sentinel/internal/domain/middleware")

// Telemetry wraps next in an OpenTelemetry span named
// "mcp.<method>.<capability>" and records Prometheus counters/histograms.
// When metrics is nil the stage still emits spans (a no-op exporter if none
// is configured) without panicking on a nil *Metrics.
func Telemetry(metrics *Metrics) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) Response {
			spanName := "mcp." + req.Method + "." + req.CapabilityName
			ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
				attribute.String("mcp.capability_kind", string(req.CapabilityKind)),
				attribute.String("mcp.capability", req.CapabilityName),
				attribute.String("mcp.request_id", req.RequestID),
			))
			defer span.End()

			start := time.Now()
			resp := next(ctx, req)
			elapsed := time.Since(start)

			outcome := "ok"
			if resp.Err != nil {
				outcome = "error"
				span.SetStatus(codes.Error, resp.Err.Error())
			}

			if metrics != nil {
				metrics.RequestsTotal.WithLabelValues(string(req.CapabilityKind), backendLabel(resp), outcome).Inc()
				metrics.RequestDuration.WithLabelValues(string(req.CapabilityKind)).Observe(elapsed.Seconds())
			}

			return resp
		}
	}
}

func backendLabel(resp Response) string {
	if be, ok := resp.Err.(*backend.Error); ok {
		return be.Backend
	}
	return ""
}
