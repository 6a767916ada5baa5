package conversations

import (
	"context"
	"testing"

	"github.com/koscakluka/ema-companion/core/llms"
)

func TestMemoryStoreLoadsNewestInOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Append(ctx, "a", llms.UserMessage("one"), llms.AssistantMessage("two"))
	_ = store.Append(ctx, "a", llms.UserMessage("three"))
	_ = store.Append(ctx, "b", llms.UserMessage("other"))

	messages, err := store.Load(ctx, "a", 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "two" || messages[1].Content != "three" {
		t.Fatalf("expected [two three], got %+v", messages)
	}

	all, _ := store.Load(ctx, "a", 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
}

func TestMemoryStoreCopiesToolCalls(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	msg := llms.AssistantMessage("", llms.ToolCall{ID: "c1", Name: "x"})
	_ = store.Append(ctx, "a", msg)
	msg.ToolCalls[0].Name = "mutated"

	messages, _ := store.Load(ctx, "a", 0)
	if messages[0].ToolCalls[0].Name != "x" {
		t.Fatalf("expected stored copy to be unaffected, got %q", messages[0].ToolCalls[0].Name)
	}
}
