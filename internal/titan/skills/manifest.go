// Package skills is TITAN's signed-skill install/run pipeline: registry
// fetch, hash verification, ed25519 signature verification, staging,
// approval-mediated install finalisation, and bounded run. No teacher
// analogue exists for signed third-party bundles, so this package is
// newly built, grounded on the teacher's tagged-adapter-family idiom
// (runtime.Runtime / docker.Adapter) for the registry source adapters and
// on Go's standard crypto/ed25519 for signature verification — no
// ecosystem signing library appears anywhere in the retrieved corpus.
package skills

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// manifestSchemaDoc is the v1 skill.toml grammar expressed as a JSON
// Schema, validated against the manifest's JSON projection right after
// TOML decoding — grounded on goa-ai/registry/service.go's
// compile-a-resource-then-validate pattern for tool-spec payloads.
var manifestSchemaDoc = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"name", "slug", "version", "entrypoint_type", "entrypoint"},
	"properties": map[string]interface{}{
		"name":            map[string]interface{}{"type": "string", "minLength": 1},
		"slug":            map[string]interface{}{"type": "string", "minLength": 1},
		"version":         map[string]interface{}{"type": "string", "minLength": 1},
		"entrypoint_type": map[string]interface{}{"enum": []interface{}{"prompt", "http", "wasm", "script_stub"}},
		"entrypoint":      map[string]interface{}{"type": "string", "minLength": 1},
	},
}

func compileManifestSchema() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(manifestSchemaDoc)
	if err != nil {
		return nil, fmt.Errorf("skills: marshal manifest schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("skill-manifest.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("skills: add manifest schema resource: %w", err)
	}
	return c.Compile("skill-manifest.json")
}

// validateManifestSchema re-marshals m to its JSON projection and checks
// it against manifestSchemaDoc — the TOML unmarshal above already
// requires slug/version via a hand check, but EntrypointType is a typed
// string alias TOML happily decodes from any string, so this is what
// actually rejects an unrecognised entrypoint_type value.
func validateManifestSchema(m *Manifest) error {
	schema, err := compileManifestSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("skills: marshal manifest for validation: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("skills: unmarshal manifest for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("skills: manifest schema validation: %w", err)
	}
	return nil
}

// EntrypointType is the manifest's declared run mechanism.
type EntrypointType string

const (
	EntrypointPrompt     EntrypointType = "prompt"
	EntrypointHTTP       EntrypointType = "http"
	EntrypointWASM       EntrypointType = "wasm"
	EntrypointScriptStub EntrypointType = "script_stub"
)

// Permissions is a manifest's declared scope and reach.
type Permissions struct {
	Scopes       []string `toml:"scopes" json:"scopes"`
	AllowedPaths []string `toml:"allowed_paths" json:"allowed_paths"`
	AllowedHosts []string `toml:"allowed_hosts" json:"allowed_hosts"`
}

// SignaturePayload is a manifest's optional signature block.
type SignaturePayload struct {
	PublicKeyID   string `toml:"public_key_id" json:"public_key_id"`
	Ed25519SigB64 string `toml:"ed25519_sig_base64" json:"ed25519_sig_base64"`
}

// Manifest is a v1 skill.toml document. JSON tags mirror the TOML names
// so the canonical-JSON signature payload and the schema validation
// below both speak the manifest grammar's own field names rather than Go
// struct-field casing.
type Manifest struct {
	Name           string           `toml:"name" json:"name"`
	Slug           string           `toml:"slug" json:"slug"`
	Version        string           `toml:"version" json:"version"`
	EntrypointType EntrypointType   `toml:"entrypoint_type" json:"entrypoint_type"`
	Entrypoint     string           `toml:"entrypoint" json:"entrypoint"`
	Permissions    Permissions      `toml:"permissions" json:"permissions"`
	Signature      SignaturePayload `toml:"signature" json:"signature"`
}

// LoadManifest reads and parses skill.toml from dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "skill.toml"))
	if err != nil {
		return nil, fmt.Errorf("skills: read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("skills: parse manifest: %w", err)
	}
	if m.Slug == "" || m.Version == "" {
		return nil, fmt.Errorf("skills: manifest missing slug or version")
	}
	if err := validateManifestSchema(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// HasScope reports whether m declares scope (case-sensitive, the manifest
// grammar uses upper-case READ/WRITE/EXEC/NET).
func (m *Manifest) HasScope(scope string) bool {
	for _, s := range m.Permissions.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// canonicalJSON renders v as compact JSON with every object's keys sorted
// recursively. Go's encoding/json already emits map keys sorted and
// struct fields in declaration order, but the manifest's signature payload
// must be stable regardless of struct layout, so this walks a
// map[string]interface{} representation and re-marshals key-sorted at
// every level by hand — no corpus library provides canonical JSON.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// manifestWithoutSignature returns a map representation of m with the
// signature field removed entirely — both the signature hash's skill.toml
// entry (BundleHash with sigStripped) and the ed25519 payload are computed
// against this, not the manifest as signed.
func manifestWithoutSignature(m *Manifest) (map[string]interface{}, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	delete(generic, "signature")
	return generic, nil
}

// BundleHash computes the spec's bundle hash: SHA-256 over every file in
// dir (sorted by relative path), each contributing "rel_path\0contents\0".
// sigStripped, when true, substitutes the manifest-without-signature bytes
// for skill.toml's own contents — this is also how the signature hash is
// computed, with an identical file layout otherwise.
func BundleHash(dir string, sigStripped bool) (string, error) {
	var relPaths []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return relErr
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("skills: walk bundle: %w", err)
	}
	sort.Strings(relPaths)

	h := sha256.New()
	for _, rel := range relPaths {
		var contents []byte
		if sigStripped && rel == "skill.toml" {
			m, err := LoadManifest(dir)
			if err != nil {
				return "", err
			}
			stripped, err := manifestWithoutSignature(m)
			if err != nil {
				return "", err
			}
			contents, err = canonicalJSON(stripped)
			if err != nil {
				return "", err
			}
		} else {
			contents, err = os.ReadFile(filepath.Join(dir, rel))
			if err != nil {
				return "", fmt.Errorf("skills: read %s: %w", rel, err)
			}
		}
		h.Write([]byte(rel))
		h.Write([]byte{0})
		h.Write(contents)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
