package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-companion/core/llms"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, body requestBody)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != completionsPath {
			t.Errorf("expected path %s, got %s", completionsPath, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
			return
		}
		var body requestBody
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
			return
		}
		handler(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeSSE(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, chunk := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func collect(t *testing.T, stream llms.Stream) (*llms.Response, error) {
	t.Helper()
	acc := llms.Accumulator{}
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			return nil, err
		}
		acc.Add(chunk)
	}
	return acc.Response(), nil
}

func TestCompleteSendsMessagesAndTools(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, body requestBody) {
		if body.Stream {
			t.Errorf("expected non-streaming request")
		}
		if len(body.Messages) != 4 {
			t.Errorf("expected 4 messages, got %d", len(body.Messages))
			return
		}
		if body.Messages[2].ToolCalls[0].Function.Name != "lookup" || body.Messages[2].ToolCalls[0].Type != "function" {
			t.Errorf("unexpected assistant tool call: %+v", body.Messages[2])
		}
		if body.Messages[3].Name != "lookup" || body.Messages[3].ToolCallID != "call_1" {
			t.Errorf("unexpected tool message: %+v", body.Messages[3])
		}
		if len(body.Tools) != 1 || body.Tools[0].Function.Name != "lookup" {
			t.Errorf("unexpected tools: %+v", body.Tools)
		}
		if body.ToolChoice == nil || *body.ToolChoice != "auto" {
			t.Errorf("expected tool choice auto, got %v", body.ToolChoice)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"It is sunny."},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`)
	})

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	messages := []llms.Message{
		llms.SystemMessage("be brief"),
		llms.UserMessage("weather?"),
		llms.AssistantMessage("", llms.ToolCall{ID: "call_1", Name: "lookup", Arguments: `{"city":"Prague"}`}),
		llms.ToolMessage("call_1", "lookup", "sunny"),
	}
	response, err := client.Complete(context.Background(), messages,
		llms.WithTools(llms.Tool{Name: "lookup", Description: "weather lookup"}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if response.Content != "It is sunny." {
		t.Fatalf("expected content, got %q", response.Content)
	}
	if response.Usage == nil || response.Usage.TotalTokens != 13 {
		t.Fatalf("expected usage total 13, got %+v", response.Usage)
	}
}

func TestCompleteSendsMultiPartContent(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, body requestBody) {
		if len(body.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(body.Messages))
			return
		}
		if body.Messages[0].Content.Text != "be brief" || body.Messages[0].Content.Parts != nil {
			t.Errorf("expected plain system content, got %+v", body.Messages[0].Content)
		}
		parts := body.Messages[1].Content.Parts
		if len(parts) != 2 {
			t.Errorf("expected 2 content parts, got %+v", body.Messages[1].Content)
			return
		}
		if parts[0].Type != "text" || parts[0].Text != "what is on screen?" {
			t.Errorf("unexpected text part: %+v", parts[0])
		}
		if parts[1].Type != "image_url" || parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/jpeg;base64,AAAA" {
			t.Errorf("unexpected image part: %+v", parts[1])
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"A terminal."},"finish_reason":"stop"}]}`)
	})

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	response, err := client.Complete(context.Background(), []llms.Message{
		llms.SystemMessage("be brief"),
		llms.UserMessageWithParts(llms.TextPart("what is on screen?"), llms.ImagePart("data:image/jpeg;base64,AAAA")),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if response.Content != "A terminal." {
		t.Fatalf("expected content, got %q", response.Content)
	}
}

func TestMessageContentEncoding(t *testing.T) {
	encoded, err := json.Marshal(toMessages([]llms.Message{
		llms.UserMessage("hi"),
		llms.UserMessageWithParts(llms.TextPart("look"), llms.ImagePart("https://example.com/a.png")),
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	expected := `[{"role":"user","content":"hi"},{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"https://example.com/a.png"}}]}]`
	if string(encoded) != expected {
		t.Fatalf("expected %s, got %s", expected, encoded)
	}
}

func TestCompleteReturnsToolCallsAndReasoning(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, body requestBody) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"","reasoning_content":"need weather","tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`)
	})

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	response, err := client.Complete(context.Background(), []llms.Message{llms.UserMessage("hi")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(response.ToolCalls) != 1 || response.ToolCalls[0].Name != "lookup" {
		t.Fatalf("expected lookup tool call, got %+v", response.ToolCalls)
	}
	if response.Text() != "need weather" {
		t.Fatalf("expected reasoning fallback, got %q", response.Text())
	}
}

func TestCompleteMapsErrors(t *testing.T) {
	testCases := []struct {
		name    string
		handler func(w http.ResponseWriter, body requestBody)
		check   func(t *testing.T, err error)
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, body requestBody) {
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":"slow down"}`)
			},
			check: func(t *testing.T, err error) {
				var apiErr *llms.APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %v", err)
				}
				if apiErr.StatusCode != http.StatusTooManyRequests || !strings.Contains(apiErr.Body, "slow down") {
					t.Fatalf("unexpected api error: %+v", apiErr)
				}
			},
		},
		{
			name: "malformed",
			handler: func(w http.ResponseWriter, body requestBody) {
				fmt.Fprint(w, `{"choices":`)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, llms.ErrParse) {
					t.Fatalf("expected ErrParse, got %v", err)
				}
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, body requestBody) {
				fmt.Fprint(w, `{"choices":[]}`)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, llms.ErrParse) {
					t.Fatalf("expected ErrParse, got %v", err)
				}
			},
		},
		{
			name: "content filter",
			handler: func(w http.ResponseWriter, body requestBody) {
				fmt.Fprint(w, `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, llms.ErrContentFiltered) {
					t.Fatalf("expected ErrContentFiltered, got %v", err)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(t, tc.handler)
			client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
			_, err := client.Complete(context.Background(), []llms.Message{llms.UserMessage("hi")})
			tc.check(t, err)
		})
	}
}

func TestCompleteNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(url))
	_, err := client.Complete(context.Background(), []llms.Message{llms.UserMessage("hi")})
	if !errors.Is(err, llms.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestStreamYieldsContentAndAccumulatesToolCalls(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, body requestBody) {
		if !body.Stream {
			t.Errorf("expected streaming request")
		}
		writeSSE(w,
			`{"choices":[{"delta":{"role":"assistant","content":"Let me "}}]}`,
			`{"choices":[{"delta":{"content":"check."}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"ci"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_2","type":"function","function":{"name":"clock","arguments":"{}"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"Prague\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		)
	})

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	var contents []string
	acc := llms.Accumulator{}
	for chunk, err := range client.Stream(context.Background(), []llms.Message{llms.UserMessage("weather?")}).Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if content, ok := chunk.(llms.StreamContentChunk); ok {
			contents = append(contents, content.Content())
		}
		acc.Add(chunk)
	}

	if len(contents) != 2 {
		t.Fatalf("expected 2 content chunks, got %v", contents)
	}
	response := acc.Response()
	if response.Content != "Let me check." {
		t.Fatalf("expected joined content, got %q", response.Content)
	}
	if len(response.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %+v", response.ToolCalls)
	}
	if response.ToolCalls[0].ID != "call_1" || response.ToolCalls[0].Arguments != `{"city":"Prague"}` {
		t.Fatalf("unexpected first tool call: %+v", response.ToolCalls[0])
	}
	if response.ToolCalls[1].Name != "clock" {
		t.Fatalf("unexpected second tool call: %+v", response.ToolCalls[1])
	}
	if response.FinishReason != "tool_calls" {
		t.Fatalf("expected finish reason tool_calls, got %q", response.FinishReason)
	}
}

func TestStreamReasoningField(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, body requestBody) {
		writeSSE(w,
			`{"choices":[{"delta":{"reasoning":"hmm"}}]}`,
			`{"choices":[{"delta":{"reasoning_content":" ok"}}]}`,
		)
	})

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	response, err := collect(t, client.Stream(context.Background(), []llms.Message{llms.UserMessage("hi")}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if response.Reasoning != "hmm ok" || response.Text() != "hmm ok" {
		t.Fatalf("expected reasoning fallback, got %+v", response)
	}
}

func TestStreamErrors(t *testing.T) {
	testCases := []struct {
		name    string
		handler func(w http.ResponseWriter, body requestBody)
		target  error
	}{
		{
			name: "malformed chunk",
			handler: func(w http.ResponseWriter, body requestBody) {
				writeSSE(w, `{"choices":[`)
			},
			target: llms.ErrParse,
		},
		{
			name: "content filter",
			handler: func(w http.ResponseWriter, body requestBody) {
				writeSSE(w, `{"choices":[{"delta":{"content":"partial"}}]}`, `{"choices":[{"delta":{},"finish_reason":"content_filter"}]}`)
			},
			target: llms.ErrContentFiltered,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(t, tc.handler)
			client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
			_, err := collect(t, client.Stream(context.Background(), []llms.Message{llms.UserMessage("hi")}))
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
		})
	}
}

func TestStreamStatusError(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, body requestBody) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "bad key")
	})

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	_, err := collect(t, client.Stream(context.Background(), []llms.Message{llms.UserMessage("hi")}))
	var apiErr *llms.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestTranslator(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, body requestBody) {
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[0].Content.Text != "translate to Japanese" {
			t.Errorf("unexpected messages: %+v", body.Messages)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":" こんにちは \n"},"finish_reason":"stop"}]}`)
	})

	translator := NewTranslator(NewClient("test-key", "test-model", WithBaseURL(server.URL)), "translate to Japanese")
	translated, err := translator.Translate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if translated != "こんにちは" {
		t.Fatalf("expected trimmed translation, got %q", translated)
	}
}
