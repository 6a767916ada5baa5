package llms

import (
	"encoding/json"
	"strings"
)

// Role describes who a message is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType names the kind of a ContentPart.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ContentPart is one element of a multi-part message body. ImageURL is an
// http(s) or data: URL.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: url}
}

// Message is a single chat-completions message. The body is Content, or
// Parts when the message mixes text and images. An assistant message with
// tool calls and an empty Content stands for a null body.
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Parts   []ContentPart `json:"parts,omitempty"`

	// ToolCalls is only set on assistant messages requesting tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and Name are only set on tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	// ReasoningContent carries the model's reasoning when the provider
	// returns it separately from the content.
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// UserMessageWithParts builds a multi-part user message. Content holds the
// joined text so text-only consumers still see it.
func UserMessageWithParts(parts ...ContentPart) Message {
	msg := Message{Role: RoleUser, Parts: parts}
	msg.Content = msg.Text()
	return msg
}

func AssistantMessage(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, Name: name}
}

// Text returns the plain text of the body.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, part := range m.Parts {
		if part.Type == PartText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, " ")
}

func (m Message) HasImages() bool {
	for _, part := range m.Parts {
		if part.Type == PartImageURL {
			return true
		}
	}
	return false
}

// WithoutImages folds a multi-part body that carries images back into plain
// text. placeholder is used when no text part is left.
func (m Message) WithoutImages(placeholder string) Message {
	if !m.HasImages() {
		return m
	}
	text := m.Text()
	if text == "" {
		text = placeholder
	}
	m.Content = text
	m.Parts = nil
	return m
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a function the model may call. Parameters is a JSON schema
// object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Response is a single complete reply from a model.
type Response struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

// Text returns the content, falling back to the reasoning when the model left
// the content empty.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	if r.Content != "" {
		return r.Content
	}
	return r.Reasoning
}
