package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/softmtls"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Listener metrics
	ConnectionsAcceptedTotal metric.Int64Counter
	AcceptErrorsTotal        metric.Int64Counter

	// Handshake metrics
	HandshakesTotal       metric.Int64Counter
	HandshakeDuration     metric.Float64Histogram
	PeerCertificatesTotal metric.Int64Counter

	// Session metrics
	SessionsActive metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider())
	})
	return metrics
}

// NewMetrics creates the metric instruments from provider. Tests use it with an sdk
// ManualReader, everything else goes through GetMetrics.
func NewMetrics(provider metric.MeterProvider) *Metrics {
	meter := provider.Meter(meterName)

	m := &Metrics{}

	// Listener metrics
	m.ConnectionsAcceptedTotal, _ = meter.Int64Counter(
		"softmtls.connections.accepted.total",
		metric.WithDescription("Total number of TCP connections accepted"),
		metric.WithUnit("{connection}"),
	)

	m.AcceptErrorsTotal, _ = meter.Int64Counter(
		"softmtls.accept.errors.total",
		metric.WithDescription("Total number of listener accept errors"),
		metric.WithUnit("{error}"),
	)

	// Handshake metrics
	m.HandshakesTotal, _ = meter.Int64Counter(
		"softmtls.handshakes.total",
		metric.WithDescription("Total number of completed TLS handshakes by outcome"),
		metric.WithUnit("{handshake}"),
	)

	m.HandshakeDuration, _ = meter.Float64Histogram(
		"softmtls.handshake.duration",
		metric.WithDescription("Duration of TLS handshakes"),
		metric.WithUnit("ms"),
	)

	m.PeerCertificatesTotal, _ = meter.Int64Counter(
		"softmtls.peer_certificates.total",
		metric.WithDescription("Established sessions by whether the client presented a certificate"),
		metric.WithUnit("{session}"),
	)

	// Session metrics
	m.SessionsActive, _ = meter.Int64UpDownCounter(
		"softmtls.sessions.active",
		metric.WithDescription("Number of established sessions handed to the HTTP server"),
		metric.WithUnit("{session}"),
	)

	return m
}
