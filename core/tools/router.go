// Package tools executes the tool calls requested by the language model.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-companion/core/llms"
)

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrNoToolExecuted = errors.New("no tool call succeeded")
)

// Router executes a batch of tool calls and returns one result per call, in
// call order.
type Router interface {
	Tools(ctx context.Context) []llms.Tool
	Execute(ctx context.Context, calls []llms.ToolCall) ([]Result, error)
}

// Provider owns a set of tools and executes single calls for them.
type Provider interface {
	Tools(ctx context.Context) []llms.Tool
	Call(ctx context.Context, call llms.ToolCall) (string, error)
}

type Result struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// Placeholder is the result recorded for a call that failed or has no owner.
func Placeholder(call llms.ToolCall, err error) Result {
	content := fmt.Sprintf("Tool %s failed or was not found", call.Name)
	if err != nil {
		content = fmt.Sprintf("Tool %s failed: %v", call.Name, err)
	}
	return Result{ToolCallID: call.ID, Name: call.Name, Content: content}
}

// Align returns exactly one result per call in call order. Results are
// matched by tool call id; calls without a result get a placeholder built
// from err.
func Align(calls []llms.ToolCall, results []Result, err error) []Result {
	byID := make(map[string]Result, len(results))
	for _, result := range results {
		if _, ok := byID[result.ToolCallID]; !ok {
			byID[result.ToolCallID] = result
		}
	}

	aligned := make([]Result, 0, len(calls))
	for i, call := range calls {
		result, ok := byID[call.ID]
		if !ok && call.ID == "" && i < len(results) && results[i].ToolCallID == "" {
			result, ok = results[i], true
		}
		if !ok {
			result = Placeholder(call, err)
		}
		result.ToolCallID = call.ID
		if result.Name == "" {
			result.Name = call.Name
		}
		aligned = append(aligned, result)
	}
	return aligned
}
