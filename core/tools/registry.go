package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-companion/core/llms"
)

// Handler executes a call with its raw JSON arguments.
type Handler func(ctx context.Context, arguments json.RawMessage) (string, error)

type registeredTool struct {
	tool    llms.Tool
	handler Handler
}

// Registry holds local function tools.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]registeredTool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]registeredTool{}}
}

// RegisterHandler adds a tool with an explicit schema. Registering a name
// again replaces the earlier tool.
func (r *Registry) RegisterHandler(tool llms.Tool, handler Handler) error {
	if strings.TrimSpace(tool.Name) == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[tool.Name]; !ok {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = registeredTool{tool: tool, handler: handler}
	return nil
}

// Register adds a typed tool. The parameter schema is reflected from T and
// arguments are decoded into T before the handler runs. Arguments that are
// not valid JSON are logged and replaced with the zero value.
func Register[T any](r *Registry, name, description string, handler func(ctx context.Context, arguments T) (string, error)) error {
	parameters, err := ParametersSchema[T]()
	if err != nil {
		return fmt.Errorf("failed to reflect parameters of tool %q: %w", name, err)
	}

	return r.RegisterHandler(llms.Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}, func(ctx context.Context, raw json.RawMessage) (string, error) {
		var arguments T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &arguments); err != nil {
				logger.Warn("failed to parse tool arguments, using defaults", "tool", name, "error", err)
				arguments = *new(T)
			}
		}
		return handler(ctx, arguments)
	})
}

// ParametersSchema reflects the JSON schema of T. Named and anonymous
// structs, maps and scalars are all inlined.
func ParametersSchema[T any]() (json.RawMessage, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.ReflectFromType(reflect.TypeFor[T]())
	schema.Version = ""
	schema.ID = ""

	parameters, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return parameters, nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tools, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Tools(context.Context) []llms.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].tool)
	}
	return tools
}

func (r *Registry) Call(ctx context.Context, call llms.ToolCall) (string, error) {
	r.mu.RLock()
	registered, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	arguments := json.RawMessage(strings.TrimSpace(call.Arguments))
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	return registered.handler(ctx, arguments)
}
