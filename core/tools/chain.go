package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Chain routes every call to the providers that list the tool, in provider
// order. When an owner fails the next owner is tried; a call nobody could
// execute gets a placeholder result.
type Chain struct {
	providers []Provider
	bus       *events.Bus
}

type ChainOption func(*Chain)

func WithEventBus(bus *events.Bus) ChainOption {
	return func(c *Chain) {
		c.bus = bus
	}
}

func NewChain(providers []Provider, opts ...ChainOption) *Chain {
	c := &Chain{}
	for _, provider := range providers {
		if provider != nil {
			c.providers = append(c.providers, provider)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tools returns the combined catalogue. A name listed by several providers
// appears once.
func (c *Chain) Tools(ctx context.Context) []llms.Tool {
	seen := map[string]bool{}
	catalogue := []llms.Tool{}
	for _, provider := range c.providers {
		for _, tool := range provider.Tools(ctx) {
			if seen[tool.Name] {
				continue
			}
			seen[tool.Name] = true
			catalogue = append(catalogue, tool)
		}
	}

	var snapshot []llms.Tool
	if err := copier.CopyWithOption(&snapshot, catalogue, copier.Option{DeepCopy: true}); err != nil {
		return catalogue
	}
	return snapshot
}

// Execute runs the calls sequentially. It always returns one result per call;
// the error is ErrNoToolExecuted when every call failed.
func (c *Chain) Execute(ctx context.Context, calls []llms.ToolCall) ([]Result, error) {
	results := make([]Result, 0, len(calls))
	var errs []error
	for _, call := range calls {
		c.publish(events.NewToolCallStarted(call.ID, call.Name, call.Arguments))

		content, err := c.execute(ctx, call)
		if err != nil {
			placeholder := Placeholder(call, err)
			logger.Error("tool call failed", "tool", call.Name, "error", err)
			c.publish(events.NewToolCallFailed(call.ID, call.Name, err.Error(), placeholder.Content))
			results = append(results, placeholder)
			errs = append(errs, err)
			continue
		}

		c.publish(events.NewToolCallCompleted(call.ID, call.Name, content))
		results = append(results, Result{ToolCallID: call.ID, Name: call.Name, Content: content})
	}

	if len(calls) > 0 && len(errs) == len(calls) {
		return results, fmt.Errorf("%w: %w", ErrNoToolExecuted, errors.Join(errs...))
	}
	return results, nil
}

func (c *Chain) execute(ctx context.Context, call llms.ToolCall) (string, error) {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))
	span.SetAttributes(attribute.String("tool.call_id", call.ID))

	var errs []error
	for _, provider := range c.providers {
		if !owns(ctx, provider, call.Name) {
			continue
		}
		content, err := c.call(ctx, provider, call)
		if err == nil {
			return content, nil
		}
		logger.Warn("tool provider failed, trying next", "tool", call.Name, "error", err)
		errs = append(errs, err)
	}

	err := fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	if len(errs) > 0 {
		err = fmt.Errorf("failed to execute tool %q: %w", call.Name, errors.Join(errs...))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}

func (c *Chain) call(ctx context.Context, provider Provider, call llms.ToolCall) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", call.Name, r)
		}
	}()
	return provider.Call(ctx, call)
}

func owns(ctx context.Context, provider Provider, name string) bool {
	if registry, ok := provider.(interface{ Has(string) bool }); ok {
		return registry.Has(name)
	}
	for _, tool := range provider.Tools(ctx) {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func (c *Chain) publish(event events.Event) {
	if c.bus != nil {
		c.bus.Publish(event)
	}
}
