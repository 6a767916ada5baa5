package speechsynthesis

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-companion/core/speechsynthesis"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	segmentsConverted, _  = meter.Int64Counter("speechsynthesis.segments.converted", metric.WithDescription("Segments converted to audio"))
	conversionFailures, _ = meter.Int64Counter("speechsynthesis.segments.failed", metric.WithDescription("Segment conversions that produced no audio because of an error"))
)
