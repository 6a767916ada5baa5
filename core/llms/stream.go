package llms

import (
	"context"
	"strings"
)

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamReasoningChunk interface {
	StreamChunk
	Reasoning() string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// StreamToolCallChunk carries a complete tool call. Providers accumulate the
// argument deltas before yielding it.
type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

// Accumulator assembles streamed chunks into a Response.
type Accumulator struct {
	content      strings.Builder
	reasoning    strings.Builder
	toolCalls    []ToolCall
	finishReason string
	usage        *Usage
}

func (a *Accumulator) Add(chunk StreamChunk) {
	if chunk == nil {
		return
	}
	if reason := chunk.FinishReason(); reason != nil {
		a.finishReason = *reason
	}

	switch c := chunk.(type) {
	case StreamContentChunk:
		a.content.WriteString(c.Content())
	case StreamReasoningChunk:
		a.reasoning.WriteString(c.Reasoning())
	case StreamToolCallChunk:
		a.toolCalls = append(a.toolCalls, c.ToolCall())
	case StreamUsageChunk:
		usage := c.Usage()
		a.usage = &usage
	}
}

func (a *Accumulator) Response() *Response {
	return &Response{
		Content:      a.content.String(),
		Reasoning:    a.reasoning.String(),
		ToolCalls:    append([]ToolCall(nil), a.toolCalls...),
		FinishReason: a.finishReason,
		Usage:        a.usage,
	}
}

type Usage struct {
	InputTokens         int
	InputTokensDetails  *InputTokensDetails
	OutputTokens        int
	OutputTokensDetails *OutputTokensDetails
	TotalTokens         int

	// QueueTime and TotalTime are reported by some providers, in seconds.
	//
	// Note: This might be just an approximation.
	QueueTime float64
	TotalTime float64
}

// InputTokensDetails represents a detailed breakdown of the input tokens.
type InputTokensDetails struct {
	// CachedTokens represents the number of tokens that were retrieved from the
	// cache.
	CachedTokens int
}

// OutputTokensDetails represents a detailed breakdown of the output tokens.
type OutputTokensDetails struct {
	// ReasoningTokens represents the number of reasoning tokens.
	ReasoningTokens int
}
