package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-companion/core/events"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHeadlessSendsLinesAndRunsCommands(t *testing.T) {
	c := &stubController{status: status{Voice: "off"}}
	bus := events.NewBus()
	out := &syncBuffer{}

	in := strings.NewReader("hello\n\n/interrupt\n/state\n/quit\nignored\n")
	done := make(chan error, 1)
	go func() {
		done <- runHeadless(context.Background(), c, bus, in, out)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected headless mode to stop on /quit")
	}

	waitForCondition(t, func() bool { return len(c.Sent()) == 1 })
	if sent := c.Sent(); sent[0].text != "hello" {
		t.Fatalf("expected hello to be sent, got %+v", sent)
	}
	if c.Interrupts() != 1 {
		t.Fatalf("expected one interrupt, got %d", c.Interrupts())
	}
	if !strings.Contains(out.String(), `"voice":"off"`) {
		t.Fatalf("expected state output, got %q", out.String())
	}
}

func TestHeadlessPrintsReplies(t *testing.T) {
	bus := events.NewBus()
	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())

	reader, writer := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- runHeadless(ctx, &stubController{}, bus, reader, out)
	}()

	waitForCondition(t, func() bool { return bus.Listeners(events.KindAssistantResponseFinal) > 0 })
	bus.Publish(events.NewAssistantResponseFinal("t1", "Hi, how are you?"))
	bus.Publish(events.NewTurnFailed("t2", "Too many requests, please try again later.", "status 429"))

	waitForCondition(t, func() bool { return strings.Contains(out.String(), "Too many requests") })
	if !strings.Contains(out.String(), "ema: Hi, how are you?") {
		t.Fatalf("expected reply output, got %q", out.String())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected headless mode to stop on cancel")
	}
	_ = writer.Close()
}
