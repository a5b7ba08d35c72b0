package connectors_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/connectors"
)

type fakeVault struct {
	secrets map[string]string
}

func (f fakeVault) GetSecret(key string) (string, error) {
	v, ok := f.secrets[key]
	if !ok {
		return "", fmt.Errorf("not found: %s", key)
	}
	return v, nil
}

func TestResolver_PrefersEnvVarOverVault(t *testing.T) {
	t.Setenv("GITHUB_MAIN_TOKEN", "env-token")
	r := connectors.NewResolver(fakeVault{secrets: map[string]string{"connector:github-main:token": "vault-token"}})

	v, err := r.Resolve("github-main", "token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != "env-token" {
		t.Errorf("Resolve = %q, want env-token", v)
	}
}

func TestResolver_FallsBackToVault(t *testing.T) {
	os.Unsetenv("GITHUB_MAIN_TOKEN")
	r := connectors.NewResolver(fakeVault{secrets: map[string]string{"connector:github-main:token": "vault-token"}})

	v, err := r.Resolve("github-main", "token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != "vault-token" {
		t.Errorf("Resolve = %q, want vault-token", v)
	}
}

func TestResolver_ErrorsWhenNeitherEnvNorVaultHasIt(t *testing.T) {
	os.Unsetenv("GITHUB_MAIN_TOKEN")
	r := connectors.NewResolver(fakeVault{secrets: map[string]string{}})

	if _, err := r.Resolve("github-main", "token"); err == nil {
		t.Fatal("expected error when secret is unresolved")
	}
}
