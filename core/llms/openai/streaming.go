package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/ema-companion/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxChunkSize = 1024 * 1024

type streamingResponseBody struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role             string     `json:"role,omitempty"`
			Content          string     `json:"content,omitempty"`
			ReasoningContent string     `json:"reasoning_content,omitempty"`
			Reasoning        string     `json:"reasoning,omitempty"`
			ToolCalls        []toolCall `json:"tool_calls,omitempty"`
			FinishReason     *string    `json:"finish_reason,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

// Stream sends a streaming chat-completions request. Nothing is sent until
// the chunks are ranged over.
func (c *Client) Stream(_ context.Context, messages []llms.Message, opts ...llms.CompletionOption) llms.Stream {
	return &Stream{
		client: c,
		body:   c.newRequestBody(messages, true, opts),
	}
}

type Stream struct {
	client *Client
	body   requestBody
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.post(ctx, span, s.body)
		if err != nil {
			fail(err)
			return
		}
		defer resp.Body.Close()

		toolCalls := toolCallAccumulator{}
		defer func() {
			span.SetAttributes(attribute.StringSlice("response.tool_calls", toolCalls.names()))
		}()

		var finishReason *string
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, chunkPrefix) {
				continue
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				fail(fmt.Errorf("%w: error unmarshalling JSON: %w", llms.ErrParse, err))
				return
			}

			if len(responseBody.Choices) > 0 {
				choice := responseBody.Choices[0]
				delta := choice.Delta
				if choice.FinishReason != nil {
					finishReason = choice.FinishReason
				} else if delta.FinishReason != nil {
					finishReason = delta.FinishReason
				}

				if finishReason != nil && *finishReason == finishReasonContentFilter {
					fail(llms.ErrContentFiltered)
					return
				}

				toolCalls.add(delta.ToolCalls)

				reasoning := delta.ReasoningContent
				if reasoning == "" {
					reasoning = delta.Reasoning
				}
				if reasoning != "" {
					if !yield(StreamReasoningChunk{finishReason: finishReason, reasoning: reasoning}, nil) {
						return
					}
				}

				if delta.Content != "" {
					if !yield(StreamContentChunk{finishReason: finishReason, content: delta.Content}, nil) {
						return
					}
				}
			}

			if responseBody.Usage != nil {
				usage := responseBody.Usage.toLLMUsage()
				span.SetAttributes(attribute.Int("usage.input", usage.InputTokens))
				span.SetAttributes(attribute.Int("usage.output", usage.OutputTokens))
				span.SetAttributes(attribute.Int("usage.total", usage.TotalTokens))
				if !yield(StreamUsageChunk{finishReason: finishReason, usage: usage}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				fail(fmt.Errorf("error reading streamed response: %w", context.Cause(ctx)))
			} else {
				fail(fmt.Errorf("%w: error reading streamed response: %w", llms.ErrNetwork, err))
			}
			return
		}

		for _, call := range toolCalls.calls() {
			if !yield(StreamToolCallChunk{finishReason: finishReason, toolCall: call}, nil) {
				return
			}
		}
	}
}

// toolCallAccumulator merges tool call deltas. The first delta of a call
// carries its index, id and name; later deltas append argument fragments.
type toolCallAccumulator struct {
	byIndex map[int]*llms.ToolCall
	order   []int
}

func (a *toolCallAccumulator) add(deltas []toolCall) {
	for i, delta := range deltas {
		index := i
		if delta.Index != nil {
			index = *delta.Index
		}
		if a.byIndex == nil {
			a.byIndex = map[int]*llms.ToolCall{}
		}

		call, ok := a.byIndex[index]
		if !ok {
			call = &llms.ToolCall{}
			a.byIndex[index] = call
			a.order = append(a.order, index)
		}
		if delta.ID != "" {
			call.ID = delta.ID
		}
		if delta.Function.Name != "" {
			call.Name = delta.Function.Name
		}
		call.Arguments += delta.Function.Arguments
	}
}

func (a *toolCallAccumulator) calls() []llms.ToolCall {
	indexes := slices.Clone(a.order)
	slices.Sort(indexes)

	calls := make([]llms.ToolCall, 0, len(indexes))
	for _, index := range indexes {
		calls = append(calls, *a.byIndex[index])
	}
	return calls
}

func (a *toolCallAccumulator) names() []string {
	names := []string{}
	for _, call := range a.calls() {
		names = append(names, call.Name)
	}
	return names
}

type StreamReasoningChunk struct {
	finishReason *string
	reasoning    string
}

func (s StreamReasoningChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamReasoningChunk) Reasoning() string {
	return s.reasoning
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamToolCallChunk struct {
	finishReason *string
	toolCall     llms.ToolCall
}

func (s StreamToolCallChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamToolCallChunk) ToolCall() llms.ToolCall {
	return s.toolCall
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
