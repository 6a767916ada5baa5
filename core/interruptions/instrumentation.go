package interruptions

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-companion/core/interruptions"

var logger = otelslog.NewLogger(scopeName)
