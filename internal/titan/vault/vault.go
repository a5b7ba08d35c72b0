// Package vault is TITAN's secrets vault: a single encrypted-at-rest file
// holding every credential a connector or skill needs, unlocked with a
// passphrase for the lifetime of a process.
//
// The envelope format generalises the teacher's static-master-key AES-GCM
// scheme (common/crypto) to a passphrase-derived key: Argon2id turns the
// operator's passphrase into a key, XChaCha20-Poly1305 seals the secret
// map under that key, and the envelope is plain JSON so it can be backed
// up or inspected without any vault-specific tooling.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1

	argon2Time    = 3
	argon2MemoryKB = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = chacha20poly1305.KeySize

	saltSize = 16
)

// Envelope is the on-disk JSON representation of a locked vault.
type Envelope struct {
	Version    int    `json:"version"`
	SaltB64    string `json:"salt_b64"`
	NonceB64   string `json:"nonce_b64"`
	Ciphertext string `json:"ciphertext_b64"`
}

// ErrLocked is returned by any operation that requires an unlocked vault.
var ErrLocked = fmt.Errorf("vault: locked")

// ErrSecretNotFound is returned by GetSecret for an unknown key.
var ErrSecretNotFound = fmt.Errorf("vault: secret not found")

// Vault is a passphrase-protected secret map persisted to a single file.
type Vault struct {
	mu   sync.Mutex
	path string

	unlocked bool
	key      []byte
	salt     []byte
	secrets  map[string]string
}

// New returns a locked vault backed by the file at path. The file need
// not exist yet — the first Unlock with a passphrase creates it on the
// first Set.
func New(path string) *Vault {
	return &Vault{path: path}
}

// Unlock derives a key from passphrase and decrypts the vault file. If the
// file does not exist yet, Unlock succeeds with an empty secret map and a
// freshly generated salt, matching a brand-new install.
func (v *Vault) Unlock(passphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := os.ReadFile(v.path)
	if os.IsNotExist(err) {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("vault: generate salt: %w", err)
		}
		v.salt = salt
		v.key = deriveKey(passphrase, salt)
		v.secrets = map[string]string{}
		v.unlocked = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("vault: read %s: %w", v.path, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("vault: parse envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return fmt.Errorf("vault: unsupported envelope version %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.SaltB64)
	if err != nil {
		return fmt.Errorf("vault: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil {
		return fmt.Errorf("vault: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return fmt.Errorf("vault: decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("vault: new aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("vault: wrong passphrase or corrupt envelope")
	}

	secrets := map[string]string{}
	if len(plaintext) > 0 {
		if err := json.Unmarshal(plaintext, &secrets); err != nil {
			return fmt.Errorf("vault: parse secrets: %w", err)
		}
	}

	v.salt = salt
	v.key = key
	v.secrets = secrets
	v.unlocked = true
	return nil
}

// Lock discards the derived key and secret map from memory. A locked
// vault must be Unlock-ed again before any other operation succeeds.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k := range v.secrets {
		delete(v.secrets, k)
	}
	v.key = nil
	v.secrets = nil
	v.unlocked = false
}

// IsUnlocked reports whether the vault currently holds a decrypted key.
func (v *Vault) IsUnlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unlocked
}

// SetSecret stores key=value and persists the re-encrypted envelope
// immediately — a vault write is never left only in memory.
func (v *Vault) SetSecret(key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return ErrLocked
	}
	v.secrets[key] = value
	return v.persistLocked()
}

// GetSecret returns the decrypted value for key.
func (v *Vault) GetSecret(key string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return "", ErrLocked
	}
	val, ok := v.secrets[key]
	if !ok {
		return "", ErrSecretNotFound
	}
	return val, nil
}

// DeleteSecret removes key and persists the change.
func (v *Vault) DeleteSecret(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return ErrLocked
	}
	if _, ok := v.secrets[key]; !ok {
		return ErrSecretNotFound
	}
	delete(v.secrets, key)
	return v.persistLocked()
}

// ListKeys returns every stored secret's key, sorted, never the values.
func (v *Vault) ListKeys() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return nil, ErrLocked
	}
	keys := make([]string, 0, len(v.secrets))
	for k := range v.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (v *Vault) persistLocked() error {
	plaintext, err := json.Marshal(v.secrets)
	if err != nil {
		return fmt.Errorf("vault: marshal secrets: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return fmt.Errorf("vault: new aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("vault: generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	env := Envelope{
		Version:    envelopeVersion,
		SaltB64:    base64.StdEncoding.EncodeToString(v.salt),
		NonceB64:   base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal envelope: %w", err)
	}

	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("vault: write temp envelope: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return fmt.Errorf("vault: replace envelope: %w", err)
	}
	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2MemoryKB, argon2Threads, argon2KeyLen)
}
