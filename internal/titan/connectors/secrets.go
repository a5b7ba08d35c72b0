package connectors

import (
	"fmt"
	"os"
	"strings"
)

// SecretResolver resolves a connector credential by suffix (e.g. "token",
// "api_key"). Implementations decide the actual lookup order; Resolver is
// the production implementation used outside tests.
type SecretResolver interface {
	Resolve(connectorID, suffix string) (string, error)
}

// VaultLookup is the subset of vault.Vault that secret resolution needs,
// kept narrow so this package does not import vault directly and callers
// can pass any compatible store (including a test double).
type VaultLookup interface {
	GetSecret(key string) (string, error)
}

// Resolver implements the spec's secret resolution order: an environment
// variable named by upper-casing "<connector_id>_<suffix>" first, falling
// back to "connector:<id>:<suffix>" in the vault — grounded on app.go's
// GetSecret/interpolateSecretString pair, generalised from a single
// "{{secret:ref}}" placeholder grammar to the two-tier env-then-vault
// lookup the spec names explicitly for connectors.
type Resolver struct {
	Vault VaultLookup
}

// NewResolver returns a Resolver backed by v.
func NewResolver(v VaultLookup) *Resolver {
	return &Resolver{Vault: v}
}

// Resolve implements SecretResolver.
func (r *Resolver) Resolve(connectorID, suffix string) (string, error) {
	envKey := strings.ToUpper(strings.ReplaceAll(connectorID, "-", "_")) + "_" + strings.ToUpper(suffix)
	if v := os.Getenv(envKey); v != "" {
		return v, nil
	}
	if r.Vault == nil {
		return "", fmt.Errorf("connectors: no vault configured, secret %s unresolved", envKey)
	}
	vaultKey := fmt.Sprintf("connector:%s:%s", connectorID, suffix)
	v, err := r.Vault.GetSecret(vaultKey)
	if err != nil {
		return "", fmt.Errorf("connectors: resolve secret for connector %q suffix %q: %w", connectorID, suffix, err)
	}
	return v, nil
}
