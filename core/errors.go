package orchestration

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-companion/core/llms"
)

var (
	// ErrUserInterrupted ends a turn silently. Converse never returns it.
	ErrUserInterrupted = errors.New("turn interrupted by user")
	// ErrBusy is returned by TryConverse while another turn is running.
	ErrBusy = errors.New("another turn is in progress")

	errIterationBudget = errors.New("iteration budget exhausted")
	errProtocolAnomaly = errors.New("model returned neither content nor tool calls")
)

type Category string

const (
	CategoryAuth          Category = "auth"
	CategoryForbidden     Category = "forbidden"
	CategoryNotFound      Category = "not_found"
	CategoryRateLimit     Category = "rate_limit"
	CategoryServer        Category = "server"
	CategoryContentFilter Category = "content_filter"
	CategoryNetwork       Category = "network"
	CategoryParse         Category = "parse"
	CategoryUnknown       Category = "unknown"
)

// UpstreamError is a failed model call, classified for the user.
type UpstreamError struct {
	Category Category
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error: %v", e.Category, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Notice is the short message shown to the user.
func (e *UpstreamError) Notice() string {
	switch e.Category {
	case CategoryAuth:
		return "The API key was rejected, please check the configuration."
	case CategoryForbidden:
		return "Access to the API is forbidden, please contact support."
	case CategoryNotFound:
		return "The API address is invalid, please check the configuration."
	case CategoryRateLimit:
		return "Too many requests, please try again later."
	case CategoryServer:
		return "The AI service is unavailable, please try again later."
	case CategoryContentFilter:
		return "The reply was blocked by a content filter, try another topic."
	case CategoryNetwork:
		return "Network connection failed, please check the network and API address."
	case CategoryParse:
		return "The API response could not be read, please try again."
	}

	message := "unknown"
	if e.Err != nil {
		message = e.Err.Error()
	}
	if len(message) > 100 {
		message = message[:100] + "..."
	}
	return "Something went wrong: " + message
}

func classify(err error) *UpstreamError {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream
	}

	category := CategoryUnknown
	var apiErr *llms.APIError
	switch {
	case errors.As(err, &apiErr):
		category = categoryForStatus(apiErr.StatusCode)
	case errors.Is(err, llms.ErrContentFiltered):
		category = CategoryContentFilter
	case errors.Is(err, llms.ErrNetwork):
		category = CategoryNetwork
	case errors.Is(err, llms.ErrParse):
		category = CategoryParse
	}
	return &UpstreamError{Category: category, Err: err}
}

func categoryForStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized:
		return CategoryAuth
	case status == http.StatusForbidden:
		return CategoryForbidden
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status >= 500:
		return CategoryServer
	}
	return CategoryUnknown
}
