package llms

import "testing"

type contentChunk struct {
	finishReason *string
	content      string
}

func (c contentChunk) FinishReason() *string { return c.finishReason }
func (c contentChunk) Content() string       { return c.content }

type reasoningChunk struct{ reasoning string }

func (c reasoningChunk) FinishReason() *string { return nil }
func (c reasoningChunk) Reasoning() string     { return c.reasoning }

type toolCallChunk struct{ toolCall ToolCall }

func (c toolCallChunk) FinishReason() *string { return nil }
func (c toolCallChunk) ToolCall() ToolCall    { return c.toolCall }

func TestAccumulatorAssemblesResponse(t *testing.T) {
	stop := "tool_calls"
	acc := Accumulator{}
	acc.Add(reasoningChunk{reasoning: "thinking"})
	acc.Add(contentChunk{content: "Hel"})
	acc.Add(contentChunk{content: "lo"})
	acc.Add(toolCallChunk{toolCall: ToolCall{ID: "call_1", Name: "lookup", Arguments: "{}"}})
	acc.Add(contentChunk{finishReason: &stop})
	acc.Add(nil)

	response := acc.Response()
	if response.Content != "Hello" {
		t.Fatalf("expected content Hello, got %q", response.Content)
	}
	if response.Reasoning != "thinking" {
		t.Fatalf("expected reasoning, got %q", response.Reasoning)
	}
	if len(response.ToolCalls) != 1 || response.ToolCalls[0].ID != "call_1" {
		t.Fatalf("expected one tool call, got %+v", response.ToolCalls)
	}
	if response.FinishReason != stop {
		t.Fatalf("expected finish reason %q, got %q", stop, response.FinishReason)
	}
}

func TestResponseTextFallsBackToReasoning(t *testing.T) {
	if text := (&Response{Reasoning: "only reasoning"}).Text(); text != "only reasoning" {
		t.Fatalf("expected reasoning fallback, got %q", text)
	}
	if text := (&Response{Content: "content", Reasoning: "reasoning"}).Text(); text != "content" {
		t.Fatalf("expected content, got %q", text)
	}
	var response *Response
	if text := response.Text(); text != "" {
		t.Fatalf("expected empty text for nil response, got %q", text)
	}
}

func TestWithToolsAppends(t *testing.T) {
	options := NewCompletionOptions(
		WithTools(Tool{Name: "a"}),
		WithTools(Tool{Name: "b"}),
		WithTemperature(0.2),
	)
	if len(options.Tools) != 2 || options.Tools[1].Name != "b" {
		t.Fatalf("expected two tools, got %+v", options.Tools)
	}
	if options.Temperature == nil || *options.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", options.Temperature)
	}
}
