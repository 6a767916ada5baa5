package main

import (
	"context"
	"sync"
)

type sentMessage struct {
	source string
	text   string
	images []string
}

type stubController struct {
	mu         sync.Mutex
	sent       []sentMessage
	interrupts int
	sendErr    error
	status     status
}

func (c *stubController) SendText(_ context.Context, text string, images ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, sentMessage{text: text, images: images})
	return c.sendErr
}

func (c *stubController) SendExternal(_ context.Context, source, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, sentMessage{source: source, text: text})
	return c.sendErr
}

func (c *stubController) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.interrupts++
}

func (c *stubController) Status() status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

func (c *stubController) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]sentMessage(nil), c.sent...)
}

func (c *stubController) Interrupts() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.interrupts
}
