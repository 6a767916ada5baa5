package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/koscakluka/ema-companion/core/events"
	"github.com/koscakluka/ema-companion/core/llms"
)

type stubProvider struct {
	tools []llms.Tool
	call  func(ctx context.Context, call llms.ToolCall) (string, error)
}

func (p *stubProvider) Tools(context.Context) []llms.Tool { return p.tools }

func (p *stubProvider) Call(ctx context.Context, call llms.ToolCall) (string, error) {
	return p.call(ctx, call)
}

type eventRecorder struct {
	mu    sync.Mutex
	kinds []events.Kind
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, event.Kind())
}

func (r *eventRecorder) snapshot() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Kind(nil), r.kinds...)
}

func TestRegisterReflectsSchemaAndDecodesArguments(t *testing.T) {
	registry := NewRegistry()
	err := Register(registry, "set_voice_barge_in", "Toggle barge-in",
		func(ctx context.Context, arguments struct {
			Enabled bool `json:"enabled" jsonschema:"description=Whether speech interrupts output"`
		}) (string, error) {
			if arguments.Enabled {
				return "on", nil
			}
			return "off", nil
		})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	tools := registry.Tools(context.Background())
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	var schema map[string]any
	if err := json.Unmarshal(tools[0].Parameters, &schema); err != nil {
		t.Fatalf("expected valid schema, got %v", err)
	}
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	properties, _ := schema["properties"].(map[string]any)
	if _, ok := properties["enabled"]; !ok {
		t.Fatalf("expected enabled property, got %v", schema)
	}
	if _, ok := schema["$schema"]; ok {
		t.Fatalf("expected no $schema key, got %v", schema)
	}

	result, err := registry.Call(context.Background(), llms.ToolCall{ID: "c1", Name: "set_voice_barge_in", Arguments: `{"enabled":true}`})
	if err != nil || result != "on" {
		t.Fatalf("expected on, got %q (%v)", result, err)
	}
	result, err = registry.Call(context.Background(), llms.ToolCall{ID: "c2", Name: "set_voice_barge_in", Arguments: `not json`})
	if err != nil || result != "off" {
		t.Fatalf("expected zero-value arguments on bad JSON, got %q (%v)", result, err)
	}
}

type namedArguments struct {
	Location string `json:"location,omitempty"`
}

func TestParametersSchemaHandlesEveryArgumentKind(t *testing.T) {
	testCases := []struct {
		name       string
		reflect    func() (json.RawMessage, error)
		expectType string
	}{
		{name: "named struct", reflect: ParametersSchema[namedArguments], expectType: "object"},
		{name: "anonymous struct", reflect: ParametersSchema[struct {
			Enabled bool `json:"enabled"`
		}], expectType: "object"},
		{name: "map", reflect: ParametersSchema[map[string]any], expectType: "object"},
		{name: "string", reflect: ParametersSchema[string], expectType: "string"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			parameters, err := testCase.reflect()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			var schema map[string]any
			if err := json.Unmarshal(parameters, &schema); err != nil {
				t.Fatalf("expected valid schema, got %v", err)
			}
			if schema["type"] != testCase.expectType {
				t.Fatalf("expected %s schema, got %v", testCase.expectType, schema)
			}
		})
	}
}

func TestRegisterAcceptsMapArguments(t *testing.T) {
	registry := NewRegistry()
	err := Register(registry, "echo", "Echo arguments", func(ctx context.Context, arguments map[string]any) (string, error) {
		value, _ := arguments["text"].(string)
		return value, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	result, err := registry.Call(context.Background(), llms.ToolCall{ID: "c1", Name: "echo", Arguments: `{"text":"hi"}`})
	if err != nil || result != "hi" {
		t.Fatalf("expected hi, got %q (%v)", result, err)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	_, err := NewRegistry().Call(context.Background(), llms.ToolCall{Name: "missing"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	handler := func(context.Context, json.RawMessage) (string, error) { return "", nil }
	for _, name := range []string{"b", "a", "c"} {
		if err := registry.RegisterHandler(llms.Tool{Name: name}, handler); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	registry.Unregister("a")

	tools := registry.Tools(context.Background())
	if len(tools) != 2 || tools[0].Name != "b" || tools[1].Name != "c" {
		t.Fatalf("expected [b c], got %+v", tools)
	}
	if err := registry.RegisterHandler(llms.Tool{}, handler); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestChainReturnsOneResultPerCallInOrder(t *testing.T) {
	bus := events.NewBus()
	recorder := &eventRecorder{}
	bus.SubscribeAll(recorder.record)

	local := NewRegistry()
	_ = local.RegisterHandler(llms.Tool{Name: "x"}, func(context.Context, json.RawMessage) (string, error) { return "ok", nil })
	_ = local.RegisterHandler(llms.Tool{Name: "broken"}, func(context.Context, json.RawMessage) (string, error) {
		return "", errors.New("boom")
	})

	chain := NewChain([]Provider{local}, WithEventBus(bus))
	calls := []llms.ToolCall{
		{ID: "c1", Name: "x"},
		{ID: "c2", Name: "broken"},
		{ID: "c3", Name: "unknown"},
	}
	results, err := chain.Execute(context.Background(), calls)
	if err != nil {
		t.Fatalf("expected no error while one call succeeded, got %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, call := range calls {
		if results[i].ToolCallID != call.ID {
			t.Fatalf("expected result %d for %s, got %s", i, call.ID, results[i].ToolCallID)
		}
	}
	if results[0].Content != "ok" {
		t.Fatalf("expected ok, got %q", results[0].Content)
	}
	if !strings.Contains(results[1].Content, "boom") {
		t.Fatalf("expected placeholder with error, got %q", results[1].Content)
	}
	if !strings.Contains(results[2].Content, "unknown") {
		t.Fatalf("expected placeholder naming the tool, got %q", results[2].Content)
	}

	expected := []events.Kind{
		events.KindToolCallStarted, events.KindToolCallCompleted,
		events.KindToolCallStarted, events.KindToolCallFailed,
		events.KindToolCallStarted, events.KindToolCallFailed,
	}
	got := recorder.snapshot()
	if len(got) != len(expected) {
		t.Fatalf("expected events %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected events %v, got %v", expected, got)
		}
	}
}

func TestChainFallsBackToNextOwner(t *testing.T) {
	remote := &stubProvider{
		tools: []llms.Tool{{Name: "search"}},
		call: func(context.Context, llms.ToolCall) (string, error) {
			return "", errors.New("server down")
		},
	}
	local := NewRegistry()
	_ = local.RegisterHandler(llms.Tool{Name: "search"}, func(context.Context, json.RawMessage) (string, error) {
		return "local result", nil
	})

	chain := NewChain([]Provider{remote, local})
	if tools := chain.Tools(context.Background()); len(tools) != 1 {
		t.Fatalf("expected deduplicated catalogue, got %+v", tools)
	}
	results, err := chain.Execute(context.Background(), []llms.ToolCall{{ID: "c1", Name: "search"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if results[0].Content != "local result" {
		t.Fatalf("expected local fallback, got %q", results[0].Content)
	}
}

func TestChainAllFailedReportsError(t *testing.T) {
	panicking := &stubProvider{
		tools: []llms.Tool{{Name: "x"}},
		call: func(context.Context, llms.ToolCall) (string, error) {
			panic("tool exploded")
		},
	}
	chain := NewChain([]Provider{panicking})
	results, err := chain.Execute(context.Background(), []llms.ToolCall{{ID: "c1", Name: "x"}, {ID: "c2", Name: "y"}})
	if !errors.Is(err, ErrNoToolExecuted) {
		t.Fatalf("expected ErrNoToolExecuted, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected placeholders for every call, got %d", len(results))
	}
}

func TestAlignFillsMissingResults(t *testing.T) {
	calls := []llms.ToolCall{{ID: "c1", Name: "a"}, {ID: "c2", Name: "b"}, {ID: "c3", Name: "c"}}
	results := []Result{{ToolCallID: "c3", Content: "three"}, {ToolCallID: "c1", Content: "one"}}

	aligned := Align(calls, results, errors.New("lost"))
	if len(aligned) != 3 {
		t.Fatalf("expected 3 results, got %d", len(aligned))
	}
	if aligned[0].Content != "one" || aligned[2].Content != "three" {
		t.Fatalf("expected results reordered by call, got %+v", aligned)
	}
	if aligned[1].ToolCallID != "c2" || !strings.Contains(aligned[1].Content, "lost") {
		t.Fatalf("expected placeholder for c2, got %+v", aligned[1])
	}
	if aligned[0].Name != "a" {
		t.Fatalf("expected name filled from call, got %q", aligned[0].Name)
	}
}
