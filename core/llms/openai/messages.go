package openai

import (
	"bytes"
	"encoding/json"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-companion/core/llms"
)

type message struct {
	Role             string         `json:"role"`
	Content          messageContent `json:"content"`
	Name             string         `json:"name,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	ToolCalls        []toolCall     `json:"tool_calls,omitempty"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
}

// messageContent is encoded as a plain string, or as an array of parts for
// multi-part bodies.
type messageContent struct {
	Text  string
	Parts []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func (c messageContent) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *messageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = messageContent{}
		return nil
	case len(data) > 0 && data[0] == '[':
		c.Text = ""
		return json.Unmarshal(data, &c.Parts)
	}
	c.Parts = nil
	return json.Unmarshal(data, &c.Text)
}

func toContent(msg llms.Message) messageContent {
	if len(msg.Parts) == 0 {
		return messageContent{Text: msg.Content}
	}

	parts := make([]contentPart, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case llms.PartText:
			parts = append(parts, contentPart{Type: string(llms.PartText), Text: part.Text})
		case llms.PartImageURL:
			parts = append(parts, contentPart{Type: string(llms.PartImageURL), ImageURL: &imageURL{URL: part.ImageURL}})
		}
	}
	return messageContent{Parts: parts}
}

type toolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type usage struct {
	PromptTokens        int     `json:"prompt_tokens"`
	CompletionTokens    int     `json:"completion_tokens"`
	TotalTokens         int     `json:"total_tokens"`
	QueueTime           float64 `json:"queue_time"`
	TotalTime           float64 `json:"total_time"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details,omitempty"`
}

func (u *usage) toLLMUsage() llms.Usage {
	result := llms.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
		QueueTime:    u.QueueTime,
		TotalTime:    u.TotalTime,
	}
	if u.PromptTokensDetails != nil {
		result.InputTokensDetails = &llms.InputTokensDetails{CachedTokens: u.PromptTokensDetails.CachedTokens}
	}
	if u.CompletionTokensDetails != nil {
		result.OutputTokensDetails = &llms.OutputTokensDetails{ReasoningTokens: u.CompletionTokensDetails.ReasoningTokens}
	}
	return result
}

func toMessages(messages []llms.Message) []message {
	result := make([]message, 0, len(messages))
	for _, msg := range messages {
		m := message{
			Role:       string(msg.Role),
			Content:    toContent(msg),
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, toolCall{
				ID:   call.ID,
				Type: "function",
				Function: toolCallFunction{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		result = append(result, m)
	}
	return result
}

func toTools(tools []llms.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}

	var functions []toolFunction
	copier.Copy(&functions, tools)

	result := make([]tool, 0, len(functions))
	for _, function := range functions {
		if len(function.Parameters) == 0 {
			function.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		result = append(result, tool{Type: "function", Function: function})
	}
	return result
}

func fromToolCalls(calls []toolCall) []llms.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]llms.ToolCall, 0, len(calls))
	for _, call := range calls {
		result = append(result, llms.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return result
}
