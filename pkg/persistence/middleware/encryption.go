package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
)

// sealedPrefix marks an encrypted field value.
const sealedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.SnapshotStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts repository content with AES-GCM:
// file contents read during research, tool outputs and patch contents.
// Keys, statuses and titles stay readable so listings keep working.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, state *domain.WorkflowState) error {
	sealed := state.Clone()
	seal := func(s *string) error {
		if *s == "" {
			return nil
		}
		ciphertext, err := encrypt([]byte(*s), m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt state: %w", err)
		}
		*s = sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext)
		return nil
	}
	if err := m.each(sealed, seal); err != nil {
		return err
	}
	return m.next.Save(ctx, sealed)
}

func (m *encryptionMiddleware) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	state, err := m.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	// Values without the prefix were written before encryption was enabled.
	open := func(s *string) error {
		encoded, ok := strings.CutPrefix(*s, sealedPrefix)
		if !ok {
			return nil
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}
		plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return fmt.Errorf("failed to decrypt state: %w", err)
		}
		*s = string(plain)
		return nil
	}
	if err := m.each(state, open); err != nil {
		return nil, err
	}
	return state, nil
}

// each applies fn to every field carrying repository content.
func (m *encryptionMiddleware) each(state *domain.WorkflowState, fn func(*string) error) error {
	for i := range state.RelevantFiles {
		if err := fn(&state.RelevantFiles[i].Content); err != nil {
			return err
		}
	}
	for i := range state.Patches {
		if err := fn(&state.Patches[i].OriginalContent); err != nil {
			return err
		}
		if err := fn(&state.Patches[i].NewContent); err != nil {
			return err
		}
	}
	for i := range state.ResearchHistory {
		results := state.ResearchHistory[i].Results
		for j := range results {
			if err := fn(&results[j].Output); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key domain.WorkflowKey) error {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	return m.next.List(ctx, opts)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// encrypt returns nonce||ciphertext.
func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decryptWithRotation tries the active key, then each fallback in order.
func decryptWithRotation(sealed, active []byte, fallback [][]byte) ([]byte, error) {
	for _, key := range append([][]byte{active}, fallback...) {
		gcm, err := newGCM(key)
		if err != nil {
			continue
		}
		n := gcm.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := gcm.Open(nil, sealed[:n], sealed[n:], nil); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}
