package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RESTMetrics records dispatcher activity. A nil *RESTMetrics is a no-op.
type RESTMetrics struct {
	venue    string
	requests metric.Int64Counter
	duration metric.Float64Histogram
	wait     metric.Float64Histogram
}

// NewRESTMetrics creates dispatcher instruments on the provided meter, or the global meter when nil.
func NewRESTMetrics(meter metric.Meter, venue string) *RESTMetrics {
	if meter == nil {
		meter = otel.Meter("krakenbridge.rest")
	}
	m := &RESTMetrics{venue: venue}
	m.requests, _ = meter.Int64Counter(MetricRESTRequests,
		metric.WithDescription("REST calls dispatched, by endpoint and outcome"),
		metric.WithUnit("{request}"))
	m.duration, _ = meter.Float64Histogram(MetricRESTDuration,
		metric.WithDescription("Round-trip latency of REST calls excluding admission wait"),
		metric.WithUnit("ms"))
	m.wait, _ = meter.Float64Histogram(MetricAdmissionWait,
		metric.WithDescription("Time spent waiting for rate-limit admission"),
		metric.WithUnit("ms"))
	return m
}

// RecordRequest records one completed call. errType is empty on success.
func (m *RESTMetrics) RecordRequest(ctx context.Context, endpoint, category, errType string, took time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if errType != "" {
		result = ResultError
	}
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrVenue.String(m.venue),
		AttrEndpoint.String(endpoint),
		AttrCategory.String(category),
		AttrResult.String(result),
	}
	if errType != "" {
		attrs = append(attrs, AttrErrorType.String(errType))
	}
	if m.requests != nil {
		m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(took)/float64(time.Millisecond), metric.WithAttributes(attrs[:4]...))
	}
}

// RecordAdmissionWait records time spent in the admission controller.
func (m *RESTMetrics) RecordAdmissionWait(ctx context.Context, category string, waited time.Duration) {
	if m == nil || m.wait == nil {
		return
	}
	m.wait.Record(ctx, float64(waited)/float64(time.Millisecond), metric.WithAttributes(
		AttrEnvironment.String(Environment()),
		AttrVenue.String(m.venue),
		AttrCategory.String(category),
	))
}

// SessionMetrics records streaming session activity. A nil *SessionMetrics is a no-op.
type SessionMetrics struct {
	venue         string
	frames        metric.Int64Counter
	unmatched     metric.Int64Counter
	desyncs       metric.Int64Counter
	reconnects    metric.Int64Counter
	subscriptions metric.Int64Counter
}

// NewSessionMetrics creates session instruments on the provided meter, or the global meter when nil.
func NewSessionMetrics(meter metric.Meter, venue string) *SessionMetrics {
	if meter == nil {
		meter = otel.Meter("krakenbridge.ws")
	}
	m := &SessionMetrics{venue: venue}
	m.frames, _ = meter.Int64Counter(MetricWSFrames,
		metric.WithDescription("Inbound frames decoded, by message type"),
		metric.WithUnit("{frame}"))
	m.unmatched, _ = meter.Int64Counter(MetricWSUnmatched,
		metric.WithDescription("Data frames dropped because no live subscription matched"),
		metric.WithUnit("{frame}"))
	m.desyncs, _ = meter.Int64Counter(MetricWSDesyncs,
		metric.WithDescription("Order book checksum mismatches"),
		metric.WithUnit("{desync}"))
	m.reconnects, _ = meter.Int64Counter(MetricWSReconnects,
		metric.WithDescription("Session reconnect attempts, by outcome"),
		metric.WithUnit("{attempt}"))
	m.subscriptions, _ = meter.Int64Counter(MetricWSSubscriptions,
		metric.WithDescription("Subscription state transitions"),
		metric.WithUnit("{transition}"))
	return m
}

func (m *SessionMetrics) base(extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrVenue.String(m.venue),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

func (m *SessionMetrics) RecordFrame(ctx context.Context, messageType string) {
	if m == nil || m.frames == nil {
		return
	}
	m.frames.Add(ctx, 1, m.base(AttrMessageType.String(messageType)))
}

func (m *SessionMetrics) RecordUnmatched(ctx context.Context, channel string) {
	if m == nil || m.unmatched == nil {
		return
	}
	m.unmatched.Add(ctx, 1, m.base(AttrChannel.String(channel)))
}

func (m *SessionMetrics) RecordDesync(ctx context.Context, symbol string) {
	if m == nil || m.desyncs == nil {
		return
	}
	m.desyncs.Add(ctx, 1, m.base(AttrSymbol.String(symbol)))
}

func (m *SessionMetrics) RecordReconnect(ctx context.Context, result string) {
	if m == nil || m.reconnects == nil {
		return
	}
	m.reconnects.Add(ctx, 1, m.base(AttrResult.String(result)))
}

func (m *SessionMetrics) RecordTransition(ctx context.Context, channel, status string) {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.Add(ctx, 1, m.base(AttrChannel.String(channel), AttrStatus.String(status)))
}
