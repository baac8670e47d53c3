package realtime

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/codewandler/realtime-go"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)

	toolCalls, _ = meter.Int64Counter("realtime.tool.calls",
		metric.WithDescription("Tool calls executed on behalf of the model"))
)
