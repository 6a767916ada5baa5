package events

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-companion/core/events"

var logger = otelslog.NewLogger(scopeName)
