package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
)

// envelopeVar holds the ciphertext inside the stored snapshot's variable
// space. Version, cursor, and timestamps stay plain so optimistic appends
// and staleness sweeps keep working on the wrapped store.
const envelopeVar = "__encrypted__"

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

// snapshotPayload is the encrypted portion of a snapshot.
type snapshotPayload struct {
	Vars     domain.Vars      `json:"vars"`
	Messages []domain.Message `json:"messages"`
}

// NewEncryptionMiddleware creates a middleware that encrypts snapshot
// contents using AES-GCM before they reach the wrapped store.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Create(ctx context.Context) (domain.SessionID, error) {
	return m.next.Create(ctx)
}

func (m *encryptionMiddleware) Append(ctx context.Context, id domain.SessionID, snap *domain.Snapshot) error {
	plainText, err := json.Marshal(snapshotPayload{Vars: snap.Vars, Messages: snap.Messages})
	if err != nil {
		return fmt.Errorf("marshal snapshot payload: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	envelope := &domain.Snapshot{
		SessionID: snap.SessionID,
		Version:   snap.Version,
		Cursor:    snap.Cursor,
		CreatedAt: snap.CreatedAt,
		Vars: domain.Vars{
			envelopeVar: base64.StdEncoding.EncodeToString(ciphertext),
		},
	}
	return m.next.Append(ctx, id, envelope)
}

func (m *encryptionMiddleware) Latest(ctx context.Context, id domain.SessionID) (*domain.Snapshot, error) {
	envelope, err := m.next.Latest(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) History(ctx context.Context, id domain.SessionID) ([]*domain.Snapshot, error) {
	envelopes, err := m.next.History(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Snapshot, len(envelopes))
	for i, env := range envelopes {
		snap, err := m.open(env)
		if err != nil {
			return nil, fmt.Errorf("snapshot v%d: %w", env.Version, err)
		}
		out[i] = snap
	}
	return out, nil
}

func (m *encryptionMiddleware) Info(ctx context.Context, id domain.SessionID) (*domain.SessionInfo, error) {
	info, err := m.next.Info(ctx, id)
	if err != nil {
		return nil, err
	}
	// The wrapped store counts messages on the envelope, which carries
	// none. Recompute from the decrypted latest.
	latest, err := m.Latest(ctx, id)
	if err != nil {
		return nil, err
	}
	info.Messages = len(latest.Messages)
	return info, nil
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]domain.SessionID, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) ExpireIfStale(ctx context.Context, id domain.SessionID, ttl time.Duration) error {
	return m.next.ExpireIfStale(ctx, id, ttl)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id domain.SessionID) error {
	return m.next.Delete(ctx, id)
}

// open decrypts an envelope back into a full snapshot. A snapshot without
// an envelope is rejected: once encryption is on, plain data in the store
// is a misconfiguration, not a fallback.
func (m *encryptionMiddleware) open(envelope *domain.Snapshot) (*domain.Snapshot, error) {
	encryptedStr, ok := envelope.Vars[envelopeVar].(string)
	if !ok {
		// The genesis snapshot is minted by the wrapped store itself and
		// carries no data; everything else must arrive enveloped.
		if len(envelope.Vars) == 0 && len(envelope.Messages) == 0 {
			return envelope, nil
		}
		return nil, errors.New("snapshot is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("decrypt snapshot: %w", err)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(plainText, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot payload: %w", err)
	}

	snap := &domain.Snapshot{
		SessionID: envelope.SessionID,
		Version:   envelope.Version,
		Cursor:    envelope.Cursor,
		CreatedAt: envelope.CreatedAt,
		Vars:      payload.Vars,
		Messages:  payload.Messages,
	}
	if snap.Vars == nil {
		snap.Vars = make(domain.Vars)
	}
	return snap, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
