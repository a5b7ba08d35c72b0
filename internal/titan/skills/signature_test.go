package skills_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/skills"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

// signFixture signs dir's bundle exactly the way VerifySignature expects:
// ed25519 over canonical_json(manifest_without_signature) || signature_hash.
// It re-derives the manifest-without-signature JSON from the unsigned
// manifest TOML rather than calling skills' unexported canonicalisation,
// so this only needs to agree byte-for-byte with VerifySignature's own
// recomputation — which holds because both marshal the same Manifest
// struct through encoding/json with sorted keys.
func signFixture(t *testing.T, dir string, manifestNoSig *skills.Manifest, priv ed25519.PrivateKey) string {
	t.Helper()
	sigHash, err := skills.BundleHash(dir, true)
	if err != nil {
		t.Fatalf("BundleHash(sigStripped): %v", err)
	}

	raw, err := json.Marshal(manifestNoSig)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	delete(generic, "signature")
	canonical, err := canonicalJSONForTest(generic)
	if err != nil {
		t.Fatalf("canonicalJSONForTest: %v", err)
	}

	payload := append(append([]byte{}, canonical...), []byte(sigHash)...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, payload))
}

// canonicalJSONForTest duplicates skills' private recursive-key-sort
// re-marshal purely so the test can construct a valid signature payload
// without reaching into the package's internals.
func canonicalJSONForTest(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func writeTrustKey(t *testing.T, trustRoot, keyID string, pub ed25519.PublicKey) {
	t.Helper()
	if err := os.MkdirAll(trustRoot, 0o755); err != nil {
		t.Fatalf("mkdir trust root: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(pub)
	if err := os.WriteFile(filepath.Join(trustRoot, keyID+".pub"), []byte(encoded+"\n"), 0o644); err != nil {
		t.Fatalf("write trust key: %v", err)
	}
}

func TestVerifySignature_UnsignedManifestReturnsUnsigned(t *testing.T) {
	dir := t.TempDir()
	writeSkillFixture(t, dir, minimalManifestTOML, "# List Docs\n")
	m, err := skills.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	status, err := skills.VerifySignature(dir, m, t.TempDir())
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if status != store.SignatureUnsigned {
		t.Errorf("status = %v, want SignatureUnsigned", status)
	}
}

func TestVerifySignature_UnknownKeyIDReturnsUntrustedKey(t *testing.T) {
	dir := t.TempDir()
	signedTOML := minimalManifestTOML + "\n[signature]\npublic_key_id = \"ghost\"\ned25519_sig_base64 = \"AAAA\"\n"
	writeSkillFixture(t, dir, signedTOML, "# List Docs\n")
	m, err := skills.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	status, err := skills.VerifySignature(dir, m, t.TempDir())
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if status != store.SignatureUntrustedKey {
		t.Errorf("status = %v, want SignatureUntrustedKey", status)
	}
}

func TestVerifySignature_ValidSignatureVerifies(t *testing.T) {
	dir := t.TempDir()
	trustRoot := t.TempDir()
	writeSkillFixture(t, dir, minimalManifestTOML, "# List Docs\n")

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	writeTrustKey(t, trustRoot, "k1", pub)

	unsigned, err := skills.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	sig := signFixture(t, dir, unsigned, priv)

	signedTOML := minimalManifestTOML + "\n[signature]\npublic_key_id = \"k1\"\ned25519_sig_base64 = \"" + sig + "\"\n"
	writeSkillFixture(t, dir, signedTOML, "# List Docs\n")
	signed, err := skills.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	status, err := skills.VerifySignature(dir, signed, trustRoot)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if status != store.SignatureVerified {
		t.Errorf("status = %v, want SignatureVerified", status)
	}
}

func TestVerifySignature_TamperedBundleInvalidatesSignature(t *testing.T) {
	dir := t.TempDir()
	trustRoot := t.TempDir()
	writeSkillFixture(t, dir, minimalManifestTOML, "# List Docs\n")

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	writeTrustKey(t, trustRoot, "k1", pub)

	unsigned, err := skills.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	sig := signFixture(t, dir, unsigned, priv)

	signedTOML := minimalManifestTOML + "\n[signature]\npublic_key_id = \"k1\"\ned25519_sig_base64 = \"" + sig + "\"\n"
	writeSkillFixture(t, dir, signedTOML, "# Tampered after signing\n")
	signed, err := skills.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	status, err := skills.VerifySignature(dir, signed, trustRoot)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if status != store.SignatureInvalid {
		t.Errorf("status = %v, want SignatureInvalid after tampering, got %v", status, status)
	}
}
