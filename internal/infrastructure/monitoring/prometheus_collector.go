package monitoring

import (
	"net/http"
	"time"

	"bemore/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusCollector struct {
	registry *prometheus.Registry

	// Channels
	channelConnected  *prometheus.GaugeVec
	channelReconnects *prometheus.CounterVec
	channelMessages   *prometheus.CounterVec
	overallStatus     prometheus.Gauge

	// Rendering
	framesRendered      prometheus.Counter
	framesDropped       *prometheus.CounterVec
	frameRenderDuration prometheus.Histogram
	framePoints         prometheus.Histogram

	// Sessions
	sessionsActive  prometheus.Gauge
	sessionsStarted prometheus.Counter
	sessionDuration prometheus.Histogram
	feedbackRatings prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers all metrics on a private registry so that
// several collectors can coexist in one process.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		channelConnected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bemore_channel_connected",
			Help: "1 when the realtime channel is connected, 0 otherwise",
		}, []string{"channel"}),

		channelReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bemore_channel_reconnects_total",
			Help: "Reconnect attempts per realtime channel",
		}, []string{"channel"}),

		channelMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bemore_channel_messages_total",
			Help: "Messages sent and received per realtime channel",
		}, []string{"channel", "direction"}),

		overallStatus: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bemore_connection_status",
			Help: "Overall connection status: 0 disconnected, 1 partial, 2 connected",
		}),

		framesRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "bemore_frames_rendered_total",
			Help: "Landmark frames drawn onto the overlay",
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bemore_frames_dropped_total",
			Help: "Landmark frames dropped before drawing",
		}, []string{"reason"}),

		frameRenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bemore_frame_render_duration_seconds",
			Help:    "Time spent drawing one landmark frame",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),

		framePoints: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bemore_frame_points",
			Help:    "Landmark points per drawn frame",
			Buckets: []float64{0, 1, 68, 128, 256, 468, 478, 1024},
		}),

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bemore_sessions_active",
			Help: "Sessions currently active",
		}),

		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bemore_sessions_started_total",
			Help: "Sessions started",
		}),

		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bemore_session_duration_seconds",
			Help:    "Duration of ended sessions",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		}),

		feedbackRatings: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bemore_feedback_rating",
			Help:    "Submitted session ratings",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bemore_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bemore_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry is the registry all metrics live on.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusCollector) RecordChannelStatus(channel domain.Channel, status domain.ChannelStatus) {
	v := 0.0
	if status.Normalize() == domain.ChannelConnected {
		v = 1
	}
	p.channelConnected.WithLabelValues(string(channel)).Set(v)
}

func (p *PrometheusCollector) RecordReconnect(channel domain.Channel) {
	p.channelReconnects.WithLabelValues(string(channel)).Inc()
}

func (p *PrometheusCollector) RecordMessage(channel domain.Channel, direction string) {
	p.channelMessages.WithLabelValues(string(channel), direction).Inc()
}

func (p *PrometheusCollector) RecordOverallStatus(status domain.OverallStatus) {
	switch status.Status {
	case domain.StateConnected:
		p.overallStatus.Set(2)
	case domain.StatePartial:
		p.overallStatus.Set(1)
	default:
		p.overallStatus.Set(0)
	}
}

// FrameRendered and FrameDropped make the collector a render worker observer.
func (p *PrometheusCollector) FrameRendered(duration time.Duration, points int) {
	p.framesRendered.Inc()
	p.frameRenderDuration.Observe(duration.Seconds())
	p.framePoints.Observe(float64(points))
}

func (p *PrometheusCollector) FrameDropped(reason string) {
	p.framesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordSessionStarted() {
	p.sessionsStarted.Inc()
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) RecordSessionEnded(duration time.Duration) {
	p.sessionsActive.Dec()
	p.sessionDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordFeedback(rating int) {
	p.feedbackRatings.Observe(float64(rating))
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
