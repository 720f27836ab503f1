package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "sealed:v1:"

var _ Repo = (*SealedRepo)(nil)

// SealedRepo encrypts bearer material (access and refresh tokens) before it reaches the
// underlying Repo. The ciphertext is bound to its workspace and key, so a value copied
// into another session's slot fails to open.
type SealedRepo struct {
	next Repo
	key  []byte
}

// NewSealedRepo wraps next. encodedKey is a base64 encoded 32 byte key.
func NewSealedRepo(next Repo, encodedKey string) (*SealedRepo, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &SealedRepo{next: next, key: key}, nil
}

func (s *SealedRepo) Get(ctx context.Context, workspaceID, key string) (string, error) {
	value, err := s.next.Get(ctx, workspaceID, key)
	if err != nil || !IsSecretKey(key) {
		return value, err
	}
	return s.open(workspaceID, key, value)
}

func (s *SealedRepo) Set(ctx context.Context, workspaceID, key, value string) error {
	if IsSecretKey(key) {
		sealed, err := s.seal(workspaceID, key, value)
		if err != nil {
			return err
		}
		value = sealed
	}
	return s.next.Set(ctx, workspaceID, key, value)
}

func (s *SealedRepo) Delete(ctx context.Context, workspaceID string, keys ...string) error {
	return s.next.Delete(ctx, workspaceID, keys...)
}

func (s *SealedRepo) Touch(ctx context.Context, workspaceID string) error {
	return s.next.Touch(ctx, workspaceID)
}

func (s *SealedRepo) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	return s.next.DeleteIdle(ctx, before)
}

func (s *SealedRepo) seal(workspaceID, key, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), additionalData(workspaceID, key))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *SealedRepo) open(workspaceID, key, value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return "", fmt.Errorf("value for %s is not sealed", key)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed value for %s is truncated", key)
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData(workspaceID, key))
	if err != nil {
		return "", fmt.Errorf("open sealed value for %s: %w", key, err)
	}
	return string(plaintext), nil
}

func additionalData(workspaceID, key string) []byte {
	return []byte(workspaceID + "/" + key)
}
