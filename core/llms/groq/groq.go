// Package groq configures the OpenAI-compatible client for Groq.
package groq

import "github.com/koscakluka/ema-companion/core/llms/openai"

const BaseURL = "https://api.groq.com/openai/v1"

func NewClient(apiKey, model string, opts ...openai.ClientOption) *openai.Client {
	return openai.NewClient(apiKey, model, append([]openai.ClientOption{openai.WithBaseURL(BaseURL)}, opts...)...)
}
