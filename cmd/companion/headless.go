package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/koscakluka/ema-companion/core/events"
)

// runHeadless reads one message per line from in and prints replies to out.
// Lines starting with a slash are commands: /interrupt, /state and /quit.
func runHeadless(ctx context.Context, c controller, bus *events.Bus, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	unsubscribe := bus.SubscribeAll(func(event events.Event) {
		switch e := event.(type) {
		case events.UserTranscriptFinal:
			printf("you (voice): %s\n", e.Transcript)
		case events.AssistantResponseFinal:
			printf("%s: %s\n", strings.ToLower(assistantName), e.Content)
		case events.TurnFailed:
			printf("! %s\n", e.Notice)
		case events.AssistantPlaybackInterrupted:
			printf("(interrupted)\n")
		}
	})
	defer unsubscribe()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}

			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit":
				return nil
			case "/interrupt":
				c.Interrupt()
				continue
			case "/state":
				state, _ := json.Marshal(c.Status())
				printf("%s\n", state)
				continue
			}

			// turns run in the background so /interrupt stays responsive
			go func() {
				if err := c.SendText(ctx, line); err != nil {
					logger.Warn("text turn failed", "error", err)
				}
			}()
		}
	}
}
