package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics recorders are nil-safe so components can run without instrumentation.
type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	Deployments       metric.Int64Counter
	DeployDuration    metric.Float64Histogram
	BusySkips         metric.Int64Counter
	PollTicks         metric.Int64Counter
	DuePosts          metric.Int64Counter
	Syncs             metric.Int64Counter
	Notifications     metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
}

func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.HTTPRequests, err = meter.Int64Counter(
		"autopilot_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = meter.Float64Histogram(
		"autopilot_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.Deployments, err = meter.Int64Counter(
		"autopilot_deployments_total",
		metric.WithDescription("Deployments attempted, by mode and outcome"),
	); err != nil {
		return nil, err
	}
	if m.DeployDuration, err = meter.Float64Histogram(
		"autopilot_deploy_duration_seconds",
		metric.WithDescription("Remote create/update latency in seconds"),
	); err != nil {
		return nil, err
	}
	if m.BusySkips, err = meter.Int64Counter(
		"autopilot_busy_skips_total",
		metric.WithDescription("Operations skipped because another operation held the busy gate"),
	); err != nil {
		return nil, err
	}
	if m.PollTicks, err = meter.Int64Counter(
		"autopilot_poll_ticks_total",
		metric.WithDescription("Schedule poller ticks"),
	); err != nil {
		return nil, err
	}
	if m.DuePosts, err = meter.Int64Counter(
		"autopilot_due_posts_total",
		metric.WithDescription("Due scheduled posts observed by the poller"),
	); err != nil {
		return nil, err
	}
	if m.Syncs, err = meter.Int64Counter(
		"autopilot_cloud_syncs_total",
		metric.WithDescription("Cloud reconciliations, by outcome"),
	); err != nil {
		return nil, err
	}
	if m.Notifications, err = meter.Int64Counter(
		"autopilot_notifications_total",
		metric.WithDescription("User-visible notifications, by kind"),
	); err != nil {
		return nil, err
	}
	if m.ActiveConnections, err = meter.Int64UpDownCounter(
		"autopilot_stream_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)
	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

// RecordDeployment counts one deployment; mode is create or update, outcome success or failure.
func (m *Metrics) RecordDeployment(ctx context.Context, mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	m.Deployments.Add(ctx, 1, labels)
	m.DeployDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordBusySkip(ctx context.Context, operation, holder string) {
	if m == nil {
		return
	}
	m.BusySkips.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("holder", holder),
	))
}

func (m *Metrics) RecordPollTick(ctx context.Context, due int) {
	if m == nil {
		return
	}
	m.PollTicks.Add(ctx, 1)
	m.DuePosts.Add(ctx, int64(due))
}

func (m *Metrics) RecordSync(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Syncs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordNotification(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, -1)
}
