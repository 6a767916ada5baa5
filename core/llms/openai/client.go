// Package openai talks to OpenAI-compatible chat-completions endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-companion/core/llms"
	"github.com/koscakluka/ema-companion/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	completionsPath = "/chat/completions"
	endMessage      = "[DONE]"
	chunkPrefix     = "data:"

	finishReasonContentFilter = "content_filter"
)

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	header     http.Header
}

type ClientOption func(*Client)

// WithBaseURL points the client at another OpenAI-compatible server. The URL
// is the API root, e.g. "https://api.groq.com/openai/v1".
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultBaseURL,
		header:  http.Header{},
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string {
	return c.model
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	ToolChoice  *string   `json:"tool_choice,omitempty"`
	Tools       []tool    `json:"tools,omitempty"`
}

type completionResponseBody struct {
	Choices []struct {
		Message struct {
			Content          string     `json:"content"`
			ReasoningContent string     `json:"reasoning_content"`
			Reasoning        string     `json:"reasoning"`
			ToolCalls        []toolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

func (c *Client) newRequestBody(messages []llms.Message, stream bool, opts []llms.CompletionOption) requestBody {
	options := llms.NewCompletionOptions(opts...)

	body := requestBody{
		Model:       c.model,
		Messages:    toMessages(messages),
		Stream:      stream,
		Temperature: options.Temperature,
		Tools:       toTools(options.Tools),
	}
	if body.Tools != nil {
		body.ToolChoice = utils.Ptr("auto")
		if options.ToolChoice != "" {
			body.ToolChoice = utils.Ptr(options.ToolChoice)
		}
	}
	return body
}

// post sends the request and returns the response when the status is OK.
func (c *Client) post(ctx context.Context, span trace.Span, body requestBody) (*http.Response, error) {
	span.SetAttributes(attribute.String("request.model", body.Model))
	var toolNames []string
	for _, tool := range body.Tools {
		toolNames = append(toolNames, tool.Function.Name)
	}
	span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	for key := range c.header {
		req.Header.Set(key, c.header.Get(key))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	span.SetAttributes(attribute.String("request.url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("error sending request: %w", context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: error sending request: %w", llms.ErrNetwork, err)
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &llms.APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		if errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err != nil {
			span.SetAttributes(attribute.String("error", fmt.Sprintf("error reading error body: %v", err)))
		} else {
			apiErr.Body = strings.TrimSpace(string(errorBody))
			span.SetAttributes(attribute.String("response.error", apiErr.Body))
		}
		return nil, apiErr
	}
	return resp, nil
}

// Complete sends a non-streaming chat-completions request.
func (c *Client) Complete(ctx context.Context, messages []llms.Message, opts ...llms.CompletionOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	response, err := c.complete(ctx, span, messages, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return response, nil
}

func (c *Client) complete(ctx context.Context, span trace.Span, messages []llms.Message, opts []llms.CompletionOption) (*llms.Response, error) {
	resp, err := c.post(ctx, span, c.newRequestBody(messages, false, opts))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body completionResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("error reading response: %w", context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: error unmarshalling JSON: %w", llms.ErrParse, err)
	}
	if len(body.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", llms.ErrParse)
	}

	choice := body.Choices[0]
	if choice.FinishReason == finishReasonContentFilter {
		return nil, llms.ErrContentFiltered
	}

	response := &llms.Response{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		ToolCalls:    fromToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
	}
	if response.Reasoning == "" {
		response.Reasoning = choice.Message.Reasoning
	}
	if body.Usage != nil {
		usage := body.Usage.toLLMUsage()
		response.Usage = &usage
		span.SetAttributes(attribute.Int("usage.input", usage.InputTokens))
		span.SetAttributes(attribute.Int("usage.output", usage.OutputTokens))
	}

	toolNames := []string{}
	for _, call := range response.ToolCalls {
		toolNames = append(toolNames, call.Name)
	}
	span.SetAttributes(attribute.StringSlice("response.tool_calls", toolNames))
	return response, nil
}
