// Package connectors is TITAN's typed external-API connector pipeline:
// each connector type exports a small set of capability-classed tools,
// mediated through the same store/policy machinery as native tools
// rather than a parallel authorization path.
//
// Grounded on internal/gitai/builtin's Tool/Registry shape
// (ConnectorToolDescriptor parallels llm.ToolDefinition, Type parallels
// builtin.Tool, Registry is the same name-keyed lookup) generalised from
// an LLM-facing tool definition to the spec's required_scopes/risk_class
// pair, and on app.go's resolveSecretArgs/interpolateSecretString for how
// a connector resolves credentials without the plaintext ever reaching a
// trace.
package connectors

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

// ConnectorToolDescriptor is one tool a connector type exposes.
type ConnectorToolDescriptor struct {
	Name           string
	Description    string
	RequiredScopes []string
	RiskClass      store.Permission
}

// Type is the interface every connector type implements — a tagged
// variant per external API, not an open inheritance hierarchy, per the
// spec's own design note on cyclic/polymorphic structures.
type Type interface {
	// Kind is the connector type's identifier, matched against
	// store.Connector.Type (e.g. "github").
	Kind() string

	// Descriptors lists the tools this connector type exposes.
	Descriptors() []ConnectorToolDescriptor

	// Execute runs toolName with input (already secret-resolved by the
	// mediation layer) against a configured connector instance.
	Execute(ctx context.Context, connector *store.Connector, toolName, input string, secrets SecretResolver) (string, error)
}

// Registry holds all registered connector types, keyed by Kind.
type Registry struct {
	types map[string]Type
}

// NewRegistry returns an empty connector type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds t to the registry, keyed by t.Kind(). It panics on a
// duplicate kind, which indicates a programming error in the
// registration sequence — the same contract as builtin.Registry.Register.
func (r *Registry) Register(t Type) {
	if _, dup := r.types[t.Kind()]; dup {
		panic("connectors: duplicate connector type registration: " + t.Kind())
	}
	r.types[t.Kind()] = t
}

// Get returns the connector Type registered under kind, or nil.
func (r *Registry) Get(kind string) Type {
	return r.types[kind]
}

// Descriptor looks up a tool descriptor by kind and tool name.
func (r *Registry) Descriptor(kind, toolName string) (ConnectorToolDescriptor, error) {
	t := r.Get(kind)
	if t == nil {
		return ConnectorToolDescriptor{}, fmt.Errorf("connectors: unknown connector type %q", kind)
	}
	for _, d := range t.Descriptors() {
		if d.Name == toolName {
			return d, nil
		}
	}
	return ConnectorToolDescriptor{}, fmt.Errorf("connectors: connector type %q has no tool %q", kind, toolName)
}
