package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/cadloop/pkg/ports"
)

// envelopeMagic prefixes every sealed artifact body.
var envelopeMagic = []byte("CLE1")

// ErrNotEncrypted is returned by Get when the stored body is not a sealed envelope.
var ErrNotEncrypted = errors.New("artifact is missing encrypted envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals new artifacts. Must be 32 bytes (AES-256).
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open an
	// artifact, so old renders stay readable after a key rotation.
	FallbackKeys [][]byte
}

// ParseKeys decodes base64 keys into an EncryptionConfig.
func ParseKeys(active string, fallback []string) (EncryptionConfig, error) {
	var cfg EncryptionConfig
	key, err := decodeKey(active)
	if err != nil {
		return cfg, fmt.Errorf("invalid encryption key: %w", err)
	}
	cfg.ActiveKey = key
	for i, f := range fallback {
		key, err := decodeKey(f)
		if err != nil {
			return cfg, fmt.Errorf("invalid fallback key %d: %w", i, err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	return cfg, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.ArtifactSink
	config EncryptionConfig
}

// NewEncryption returns a middleware that seals artifact bodies with
// AES-GCM before they reach the wrapped sink. Keys and media types are
// stored in the clear so sinks can still list and serve them.
func NewEncryption(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes", i)
		}
	}
	return func(next ports.ArtifactSink) ports.ArtifactSink {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Put(ctx context.Context, a ports.Artifact) error {
	sealed, err := encrypt(a.Data, m.config.ActiveKey, []byte(a.Key))
	if err != nil {
		return fmt.Errorf("failed to encrypt artifact: %w", err)
	}
	a.Data = append(append([]byte{}, envelopeMagic...), sealed...)
	return m.next.Put(ctx, a)
}

func (m *encryptionMiddleware) Get(ctx context.Context, key string) (ports.Artifact, error) {
	a, err := m.next.Get(ctx, key)
	if err != nil {
		return a, err
	}
	if !bytes.HasPrefix(a.Data, envelopeMagic) {
		return ports.Artifact{}, fmt.Errorf("%s: %w", key, ErrNotEncrypted)
	}
	plain, err := decryptWithRotation(a.Data[len(envelopeMagic):], []byte(key), m.config)
	if err != nil {
		return ports.Artifact{}, fmt.Errorf("failed to decrypt %s: %w", key, err)
	}
	a.Data = plain
	return a, nil
}

func (m *encryptionMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	return m.next.List(ctx, prefix)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

// The artifact key is bound as additional data so a body cannot be
// moved under another key.
func encrypt(plaintext, key, ad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, ad), nil
}

func decryptWithRotation(ciphertext, ad []byte, cfg EncryptionConfig) ([]byte, error) {
	if plain, err := decrypt(ciphertext, cfg.ActiveKey, ad); err == nil {
		return plain, nil
	}
	for _, key := range cfg.FallbackKeys {
		if plain, err := decrypt(ciphertext, key, ad); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key, ad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], ad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
