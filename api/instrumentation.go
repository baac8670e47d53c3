package api

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/codewandler/realtime-go/api"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	sentEvents, _ = meter.Int64Counter("realtime.events.sent",
		metric.WithDescription("Client events written to the connection"))
	receivedEvents, _ = meter.Int64Counter("realtime.events.received",
		metric.WithDescription("Server events read from the connection"))
)
