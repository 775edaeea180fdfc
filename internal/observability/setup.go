package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openlms/admin-session/internal/infrastructure/observability"
)

// Setup initializes logging, metrics and tracing and returns the tracer
// shutdown function plus the metrics handler to mount.
func Setup(serviceName string) (func(context.Context) error, http.Handler) {
	observability.InitLogger()
	observability.InitMetrics()
	tracerShutdown := observability.InitTracing(serviceName)
	return tracerShutdown, promhttp.Handler()
}
