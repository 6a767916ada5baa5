package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-companion/core/llms"
)

// Translator rewrites text before it is synthesized, using a chat model
// instructed by a system prompt.
type Translator struct {
	client       llms.Client
	systemPrompt string
}

func NewTranslator(client llms.Client, systemPrompt string) *Translator {
	return &Translator{client: client, systemPrompt: systemPrompt}
}

func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	messages := []llms.Message{llms.UserMessage(text)}
	if t.systemPrompt != "" {
		messages = append([]llms.Message{llms.SystemMessage(t.systemPrompt)}, messages...)
	}

	response, err := t.client.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to translate text: %w", err)
	}
	translated := strings.TrimSpace(response.Content)
	if translated == "" {
		return "", fmt.Errorf("failed to translate text: %w", llms.ErrParse)
	}
	return translated, nil
}
