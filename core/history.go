package orchestration

import (
	"regexp"
	"slices"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-companion/core/llms"
)

const (
	maxToolContentLength = 8000
	truncationMarker     = "...(content truncated)"

	removedImagePlaceholder = "(image removed)"
)

var controlCharacters = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// History is the message list of a conversation. It always starts with
// exactly one system message.
type History struct {
	mu       sync.Mutex
	messages []llms.Message
}

func NewHistory(systemPrompt string) *History {
	return &History{messages: []llms.Message{llms.SystemMessage(systemPrompt)}}
}

func (h *History) SetSystemPrompt(prompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages[0].Content = prompt
}

// Restore appends previously persisted messages after the system message.
// System messages among them are skipped.
func (h *History) Restore(messages []llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, msg := range messages {
		if msg.Role == llms.RoleSystem {
			continue
		}
		h.messages = append(h.messages, cloneMessage(msg))
	}
	h.messages = append(h.messages[:1], dropOrphanToolMessages(h.messages[1:])...)
}

// Snapshot returns a deep copy of the messages.
func (h *History) Snapshot() []llms.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	var snapshot []llms.Message
	if err := copier.CopyWithOption(&snapshot, h.messages, copier.Option{DeepCopy: true}); err != nil {
		snapshot = make([]llms.Message, 0, len(h.messages))
		for _, msg := range h.messages {
			snapshot = append(snapshot, cloneMessage(msg))
		}
	}
	return snapshot
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.messages)
}

// Since returns copies of the messages from index on.
func (h *History) Since(index int) []llms.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if index < 1 {
		index = 1
	}
	if index >= len(h.messages) {
		return nil
	}
	messages := make([]llms.Message, 0, len(h.messages)-index)
	for _, msg := range h.messages[index:] {
		messages = append(messages, cloneMessage(msg))
	}
	return messages
}

func (h *History) Append(messages ...llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, msg := range messages {
		if msg.Role == llms.RoleSystem {
			continue
		}
		h.messages = append(h.messages, cloneMessage(msg))
	}
}

// Pop removes the newest message. The system message is never removed.
func (h *History) Pop() (llms.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) <= 1 {
		return llms.Message{}, false
	}
	last := h.messages[len(h.messages)-1]
	h.messages = h.messages[:len(h.messages)-1]
	return last, true
}

// Trim keeps the system message and the newest limit other messages. The
// kept window never starts with tool results whose call was trimmed away.
func (h *History) Trim(limit int) {
	if limit <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rest := h.messages[1:]
	if len(rest) <= limit {
		return
	}
	kept := dropOrphanToolMessages(slices.Clone(rest[len(rest)-limit:]))
	h.messages = append(h.messages[:1:1], kept...)
}

// FoldImages turns every stored multi-part message with images back into
// plain text, so only images added afterwards stay in the history.
func (h *History) FoldImages() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, msg := range h.messages {
		h.messages[i] = msg.WithoutImages(removedImagePlaceholder)
	}
}

func dropOrphanToolMessages(messages []llms.Message) []llms.Message {
	start := 0
	for start < len(messages) && messages[start].Role == llms.RoleTool {
		start++
	}
	return messages[start:]
}

func cloneMessage(msg llms.Message) llms.Message {
	msg.ToolCalls = slices.Clone(msg.ToolCalls)
	msg.Parts = slices.Clone(msg.Parts)
	return msg
}

// cleanForRequest prepares a snapshot for the model: tool results lose
// control characters, are truncated and always carry a name. Images survive
// only on the newest user message and only when keepImages is set; every
// other image message is sent as its text.
func cleanForRequest(messages []llms.Message, keepImages bool) []llms.Message {
	latestUser := -1
	if keepImages {
		latestUser = lastUserIndex(messages)
	}

	for i, msg := range messages {
		if msg.Role == llms.RoleUser && i != latestUser {
			messages[i] = msg.WithoutImages(removedImagePlaceholder)
		}
		if msg.Role != llms.RoleTool {
			continue
		}
		content := controlCharacters.ReplaceAllString(msg.Content, "")
		if runes := []rune(content); len(runes) > maxToolContentLength {
			content = string(runes[:maxToolContentLength]) + truncationMarker
		}
		messages[i].Content = content
		if messages[i].Name == "" {
			messages[i].Name = "unknown_tool"
		}
	}
	return messages
}

func lastUserIndex(messages []llms.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.RoleUser {
			return i
		}
	}
	return -1
}
