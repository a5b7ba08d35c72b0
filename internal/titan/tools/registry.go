// Package tools is TITAN's Tool Executor: a static registry of six
// built-in tools, each with a fixed capability class, invoked under a
// bounded execution context. The registry shape is grounded on the
// teacher's builtin.Registry — a closed, name-keyed table populated once
// at startup — generalised from dynamic LLM tool definitions to the
// spec's fixed (name, class, handler) triples.
package tools

import (
	"context"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

// ExecutionContext carries everything a tool handler needs and nothing
// it is allowed to reach around: the sandbox root, the exec allowlist, a
// deadline, and output-size caps.
type ExecutionContext struct {
	WorkspaceRoot    string
	CommandAllowlist []string
	TimeoutMS        int64
	MaxOutputBytes   int
	BypassPathGuard  bool
}

// Result is a tool invocation's outcome.
type Result struct {
	Output string
	Error  error
}

// Handler executes one tool call against input, honouring ectx.
type Handler func(ctx context.Context, ectx ExecutionContext, input string) Result

// Definition is a registry entry: a tool's name, capability class, and
// handler.
type Definition struct {
	Name       string
	Permission store.Permission
	Handler    Handler
}

// Registry is the closed, static table of built-in tools. New tools are
// declarative entries added to DefaultRegistry; the executor itself
// never branches on tool name beyond a map lookup.
type Registry struct {
	tools map[string]Definition
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds def to the registry. It panics on a duplicate name,
// which indicates a programming error in the registration sequence, not
// a runtime condition callers should handle.
func (r *Registry) Register(def Definition) {
	if _, dup := r.tools[def.Name]; dup {
		panic("tools: duplicate tool registration: " + def.Name)
	}
	r.tools[def.Name] = def
}

// Get returns the definition for name and whether it was found.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// PermissionFor resolves a tool's actual capability class, falling back
// to fallback when the tool is unknown to this registry — the broker
// uses this to honour a plan's declared permission for tools the
// registry doesn't recognise (e.g. connector or skill tool names).
func (r *Registry) PermissionFor(name string, fallback store.Permission) store.Permission {
	if def, ok := r.tools[name]; ok {
		return def.Permission
	}
	return fallback
}

// Execute runs the named tool. A registry miss returns a Result whose
// Error is an *ErrUnknownTool; otherwise it returns the handler's own
// Result, whose Error is set when the tool fails.
func (r *Registry) Execute(ctx context.Context, ectx ExecutionContext, name, input string) Result {
	def, ok := r.tools[name]
	if !ok {
		return Result{Error: &ErrUnknownTool{Name: name}}
	}
	return def.Handler(ctx, ectx, input)
}

// ErrUnknownTool is returned by Execute for a name not in the registry.
type ErrUnknownTool struct{ Name string }

func (e *ErrUnknownTool) Error() string { return "tools: unknown tool " + e.Name }

// NewDefaultRegistry returns a Registry pre-populated with the six
// built-in tools named in the core's tool table.
func NewDefaultRegistry() *Registry {
	r := New()
	r.Register(Definition{Name: "list_dir", Permission: store.PermissionRead, Handler: ListDir})
	r.Register(Definition{Name: "read_file", Permission: store.PermissionRead, Handler: ReadFile})
	r.Register(Definition{Name: "search_text", Permission: store.PermissionRead, Handler: SearchText})
	r.Register(Definition{Name: "write_file", Permission: store.PermissionWrite, Handler: WriteFile})
	r.Register(Definition{Name: "run_command", Permission: store.PermissionExec, Handler: RunCommand})
	r.Register(Definition{Name: "http_get", Permission: store.PermissionNet, Handler: HTTPGet})
	return r
}
