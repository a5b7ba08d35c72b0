package skills

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

// VerifySignature computes dir's signature status per the spec's exact
// recipe: recompute the signature hash (bundle hash with skill.toml's
// contents replaced by the manifest-without-signature, canonical-JSON
// encoded), then verify ed25519 over
// canonical_json(manifest_without_signature) || signature_hash using the
// public key at trustRoot/<key_id>.pub.
func VerifySignature(dir string, m *Manifest, trustRoot string) (store.SignatureStatus, error) {
	if m.Signature.Ed25519SigB64 == "" || m.Signature.PublicKeyID == "" {
		return store.SignatureUnsigned, nil
	}

	keyPath := filepath.Join(trustRoot, m.Signature.PublicKeyID+".pub")
	keyB64, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return store.SignatureUntrustedKey, nil
		}
		return "", fmt.Errorf("skills: read trust key %s: %w", keyPath, err)
	}
	pubKeyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(keyB64)))
	if err != nil || len(pubKeyBytes) != ed25519.PublicKeySize {
		return store.SignatureUntrustedKey, nil
	}
	pubKey := ed25519.PublicKey(pubKeyBytes)

	sigHash, err := BundleHash(dir, true)
	if err != nil {
		return "", err
	}
	stripped, err := manifestWithoutSignature(m)
	if err != nil {
		return "", err
	}
	manifestJSON, err := canonicalJSON(stripped)
	if err != nil {
		return "", err
	}
	payload := append(append([]byte{}, manifestJSON...), []byte(sigHash)...)

	sigBytes, err := base64.StdEncoding.DecodeString(m.Signature.Ed25519SigB64)
	if err != nil {
		return store.SignatureInvalid, nil
	}

	if !ed25519.Verify(pubKey, payload, sigBytes) {
		return store.SignatureInvalid, nil
	}
	return store.SignatureVerified, nil
}
