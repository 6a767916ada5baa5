package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/koscakluka/ema-companion/core/llms"
)

func TestStoreRoundTripsTurns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()

	err = store.Append(ctx, "main",
		llms.UserMessage("what time is it?"),
		llms.AssistantMessage("", llms.ToolCall{ID: "c1", Name: "current_time", Arguments: "{}"}),
		llms.ToolMessage("c1", "current_time", "12:00"),
		llms.AssistantMessage("It is noon."),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("expected no error on close, got %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("expected reopen to succeed, got %v", err)
	}
	defer store.Close()

	messages, err := store.Load(ctx, "main", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[1].Role != llms.RoleAssistant || len(messages[1].ToolCalls) != 1 || messages[1].ToolCalls[0].Name != "current_time" {
		t.Fatalf("unexpected tool call message: %+v", messages[1])
	}
	if messages[2].ToolCallID != "c1" || messages[2].Name != "current_time" {
		t.Fatalf("unexpected tool message: %+v", messages[2])
	}
	if messages[3].Content != "It is noon." {
		t.Fatalf("unexpected final message: %+v", messages[3])
	}

	newest, err := store.Load(ctx, "main", 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(newest) != 2 || newest[0].Role != llms.RoleTool || newest[1].Content != "It is noon." {
		t.Fatalf("expected the two newest messages in order, got %+v", newest)
	}

	other, _ := store.Load(ctx, "other", 0)
	if len(other) != 0 {
		t.Fatalf("expected no messages for another conversation, got %d", len(other))
	}
}

func TestStoreRoundTripsContentParts(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	err = store.Append(ctx, "main",
		llms.UserMessageWithParts(llms.TextPart("what is this?"), llms.ImagePart("data:image/png;base64,AAAA")))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	messages, err := store.Load(ctx, "main", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(messages) != 1 || len(messages[0].Parts) != 2 {
		t.Fatalf("expected one message with two parts, got %+v", messages)
	}
	if messages[0].Parts[1].Type != llms.PartImageURL || messages[0].Parts[1].ImageURL != "data:image/png;base64,AAAA" {
		t.Fatalf("unexpected image part: %+v", messages[0].Parts[1])
	}
	if messages[0].Text() != "what is this?" {
		t.Fatalf("expected text of the parts, got %q", messages[0].Text())
	}
}
