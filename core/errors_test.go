package orchestration

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/koscakluka/ema-companion/core/llms"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{name: "unauthorized", err: &llms.APIError{StatusCode: 401}, expected: CategoryAuth},
		{name: "forbidden", err: &llms.APIError{StatusCode: 403}, expected: CategoryForbidden},
		{name: "not found", err: &llms.APIError{StatusCode: 404}, expected: CategoryNotFound},
		{name: "rate limited", err: fmt.Errorf("call: %w", &llms.APIError{StatusCode: 429}), expected: CategoryRateLimit},
		{name: "server", err: &llms.APIError{StatusCode: 503}, expected: CategoryServer},
		{name: "bad request", err: &llms.APIError{StatusCode: 400}, expected: CategoryUnknown},
		{name: "content filter", err: llms.ErrContentFiltered, expected: CategoryContentFilter},
		{name: "network", err: fmt.Errorf("%w: dial: refused", llms.ErrNetwork), expected: CategoryNetwork},
		{name: "parse", err: llms.ErrParse, expected: CategoryParse},
		{name: "other", err: errors.New("odd"), expected: CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := classify(tt.err)
			if upstream.Category != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, upstream.Category)
			}
			if !errors.Is(upstream, tt.err) {
				t.Fatalf("expected upstream error to wrap the cause")
			}
			if upstream.Notice() == "" {
				t.Fatalf("expected a notice")
			}
		})
	}
}

func TestUnknownNoticeIsTruncated(t *testing.T) {
	notice := (&UpstreamError{Category: CategoryUnknown, Err: errors.New(strings.Repeat("x", 300))}).Notice()

	if !strings.HasSuffix(notice, "...") || len(notice) > 130 {
		t.Fatalf("expected truncated notice, got %q", notice)
	}
}
