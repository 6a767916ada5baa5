package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-companion/core/tools"
)

type bargeInControl interface {
	SetBargeIn(enabled bool)
	BargeIn() bool
}

// speechControl stops playback without raising an interruption, so the turn
// that called the tool carries on.
type speechControl interface {
	Reset()
}

type currentTimeArgs struct {
	Location string `json:"location,omitempty" jsonschema:"description=IANA time zone such as Europe/Zagreb; local time when empty"`
}

type bargeInArgs struct {
	Enabled bool `json:"enabled" jsonschema:"description=true lets the user interrupt speech by talking"`
}

type interruptArgs struct{}

func registerLocalTools(registry *tools.Registry, voice bargeInControl, speech speechControl, now func() time.Time) error {
	return errors.Join(
		tools.Register(registry, "current_time", "Returns the current date and time.",
			func(_ context.Context, args currentTimeArgs) (string, error) {
				t := now()
				if args.Location != "" {
					location, err := time.LoadLocation(args.Location)
					if err != nil {
						return "", fmt.Errorf("unknown location %q: %w", args.Location, err)
					}
					t = t.In(location)
				}
				return t.Format("Monday, 2 January 2006 15:04 MST"), nil
			}),
		tools.Register(registry, "set_voice_barge_in", "Turns interrupting speech by talking on or off.",
			func(_ context.Context, args bargeInArgs) (string, error) {
				if voice == nil {
					return "", fmt.Errorf("voice input is not available")
				}
				voice.SetBargeIn(args.Enabled)
				if voice.BargeIn() {
					return "Voice barge-in is on.", nil
				}
				return "Voice barge-in is off.", nil
			}),
		tools.Register(registry, "interrupt_speech", "Stops the assistant speech that is playing.",
			func(_ context.Context, _ interruptArgs) (string, error) {
				speech.Reset()
				return "Speech stopped.", nil
			}),
	)
}
