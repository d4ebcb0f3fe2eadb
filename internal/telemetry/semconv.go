package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys shared by client metrics.
const (
	AttrEnvironment  = attribute.Key("environment")
	AttrVenue        = attribute.Key("venue")
	AttrEndpoint     = attribute.Key("endpoint")
	AttrCategory     = attribute.Key("category")
	AttrResult       = attribute.Key("result")
	AttrErrorType    = attribute.Key("error.type")
	AttrChannel      = attribute.Key("channel")
	AttrSymbol       = attribute.Key("symbol")
	AttrMessageType  = attribute.Key("message.type")
	AttrStatus       = attribute.Key("status")
	AttrReason       = attribute.Key("reason")
	AttrConnection   = attribute.Key("connection.state")
	AttrCommandType  = attribute.Key("command.type")
	AttrLimiterScope = attribute.Key("limiter.scope")
)

// Metric instrument names.
const (
	MetricRESTRequests      = "krakenbridge.rest.requests"
	MetricRESTDuration      = "krakenbridge.rest.request.duration"
	MetricAdmissionWait     = "krakenbridge.admission.wait"
	MetricWSFrames          = "krakenbridge.ws.frames"
	MetricWSUnmatched       = "krakenbridge.ws.frames.unmatched"
	MetricWSDesyncs         = "krakenbridge.ws.book.desyncs"
	MetricWSReconnects      = "krakenbridge.ws.reconnects"
	MetricWSSubscriptions   = "krakenbridge.ws.subscription.transitions"
	MetricDBMigrations      = "krakenbridge.db.migrations"
	MetricDBPoolConnections = "krakenbridge.db.pool.connections"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)
