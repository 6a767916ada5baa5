package llms

import "slices"

type CompletionOptions struct {
	Tools       []Tool
	Temperature *float64
	// ToolChoice is passed through to the provider ("auto", "required",
	// "none"). Empty means "auto" when tools are present.
	ToolChoice string
}

type CompletionOption func(*CompletionOptions)

func NewCompletionOptions(opts ...CompletionOption) CompletionOptions {
	options := CompletionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithTools adds tools to the request. Repeating this option appends more
// tools.
func WithTools(tools ...Tool) CompletionOption {
	return func(opts *CompletionOptions) {
		opts.Tools = append(opts.Tools, slices.Clone(tools)...)
	}
}

func WithTemperature(temperature float64) CompletionOption {
	return func(opts *CompletionOptions) {
		opts.Temperature = &temperature
	}
}

// WithToolChoice forces ("required") or forbids ("none") tool calls.
func WithToolChoice(choice string) CompletionOption {
	return func(opts *CompletionOptions) {
		opts.ToolChoice = choice
	}
}
