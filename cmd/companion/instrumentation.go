package main

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-companion/cmd/companion"

var logger = otelslog.NewLogger(scopeName)
