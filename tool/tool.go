package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
)

type Choice string

const (
	ChoiceAuto     Choice = "auto"
	ChoiceNone     Choice = "none"
	ChoiceRequired Choice = "required"
)

const TypeFunction = "function"

var (
	ErrNotFound  = errors.New("tool not found")
	ErrNoName    = errors.New("tool definition has no name")
	ErrNoHandler = errors.New("tool has no handler")
)

// Definition describes a function the model may call.
type Definition struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Handler executes a tool call with its decoded arguments. The result must be
// JSON serializable.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Params reflects T into an object schema suitable for Definition.Parameters.
func Params[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var v T
	s := r.Reflect(v)
	s.Version = ""
	return s
}

// EmptyParams is the schema of a tool without arguments.
func EmptyParams() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
}

type Registration struct {
	Definition Definition
	Handler    Handler
}

// Registry maps tool names to their definition and handler.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

// Add registers a tool, replacing any previous registration of the same name.
func (r *Registry) Add(def Definition, h Handler) (Registration, error) {
	if def.Name == "" {
		return Registration{}, ErrNoName
	}
	if h == nil {
		return Registration{}, fmt.Errorf("%w: %s", ErrNoHandler, def.Name)
	}
	if def.Type == "" {
		def.Type = TypeFunction
	}
	if def.Parameters == nil {
		def.Parameters = EmptyParams()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	reg := Registration{Definition: def, Handler: h}
	r.tools[def.Name] = reg
	return reg, nil
}

func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.tools, name)
	return nil
}

func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Definitions returns all registered definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, reg := range r.tools {
		defs = append(defs, reg.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Registration)
}
