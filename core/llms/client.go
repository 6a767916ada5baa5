package llms

import (
	"context"
	"errors"
	"fmt"
)

// Client sends a message history and returns the complete reply.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts ...CompletionOption) (*Response, error)
}

// StreamingClient additionally delivers the reply incrementally.
type StreamingClient interface {
	Client
	Stream(ctx context.Context, messages []Message, opts ...CompletionOption) Stream
}

var (
	ErrNetwork         = errors.New("network failure")
	ErrParse           = errors.New("malformed model response")
	ErrContentFiltered = errors.New("response blocked by content filter")
)

// APIError is returned when the provider answers with a non-OK status.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("non-OK HTTP status: %s", e.Status)
	}
	return fmt.Sprintf("non-OK HTTP status: %s: %s", e.Status, e.Body)
}
