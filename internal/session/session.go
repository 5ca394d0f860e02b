// Package session keeps the bearer token issued at sign-in and tells
// interested components when it changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nhle/authnotify/internal/credential"
	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/store"
)

var (
	// ErrNoToken is returned when no one is signed in.
	ErrNoToken = errors.New("no session token")

	// ErrTokenExpired is returned by InspectToken for a token past its exp.
	ErrTokenExpired = errors.New("session token expired")

	// ErrTokenRejected is returned by validators when the server refuses
	// the token.
	ErrTokenRejected = errors.New("session token rejected")
)

// keyringTokenKey is the keyring entry holding the bearer token.
const keyringTokenKey = "access-token"

// Store holds the current bearer token.
type Store interface {
	// Token returns the stored token, or ErrNoToken.
	Token(ctx context.Context) (string, error)

	// SetToken replaces the stored token.
	SetToken(ctx context.Context, token string) error

	// Clear removes the stored token.
	Clear(ctx context.Context) error
}

// KVStore keeps the token under store.KeyToken in a KV, next to the
// notification feed.
type KVStore struct {
	kv store.KV
}

var _ Store = (*KVStore)(nil)

// NewKVStore wraps kv.
func NewKVStore(kv store.KV) *KVStore {
	return &KVStore{kv: kv}
}

// Token returns the stored token, or ErrNoToken when it is absent or blank.
func (s *KVStore) Token(ctx context.Context) (string, error) {
	token, err := s.kv.Get(ctx, store.KeyToken)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("reading session token: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SetToken replaces the stored token.
func (s *KVStore) SetToken(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, store.KeyToken, token); err != nil {
		return fmt.Errorf("writing session token: %w", err)
	}
	return nil
}

// Clear deletes the stored token.
func (s *KVStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, store.KeyToken); err != nil {
		return fmt.Errorf("clearing session token: %w", err)
	}
	return nil
}

// KeyringStore keeps the token in the system keyring. Every change also
// stamps store.KeySessionChanged in marker, when set, because a keyring
// write is invisible to a Watcher on the database.
type KeyringStore struct {
	ring   *credential.Keyring
	marker store.KV
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore wraps ring. marker may be nil.
func NewKeyringStore(ring *credential.Keyring, marker store.KV) *KeyringStore {
	return &KeyringStore{ring: ring, marker: marker}
}

// Token returns the token held in the keyring, or ErrNoToken.
func (s *KeyringStore) Token(ctx context.Context) (string, error) {
	token, err := s.ring.Get(keyringTokenKey)
	if errors.Is(err, credential.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("reading session token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SetToken stores token in the keyring and stamps the change marker.
func (s *KeyringStore) SetToken(ctx context.Context, token string) error {
	if err := s.ring.Set(keyringTokenKey, token); err != nil {
		return fmt.Errorf("writing session token: %w", err)
	}
	return s.markChanged(ctx)
}

// Clear removes the token from the keyring and stamps the change marker.
func (s *KeyringStore) Clear(ctx context.Context) error {
	if err := s.ring.Delete(keyringTokenKey); err != nil {
		return fmt.Errorf("clearing session token: %w", err)
	}
	return s.markChanged(ctx)
}

func (s *KeyringStore) markChanged(ctx context.Context) error {
	if s.marker == nil {
		return nil
	}
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.marker.Set(ctx, store.KeySessionChanged, stamp); err != nil {
		return fmt.Errorf("marking session change: %w", err)
	}
	return nil
}

// Open returns the Store selected by cfg. kv backs the "kv" backend; the
// "keyring" backend keeps its file fallback next to dataPath.
func Open(cfg model.SessionConfig, kv store.KV, dataPath string) (Store, error) {
	switch cfg.Backend {
	case "", "kv":
		return NewKVStore(kv), nil
	case "keyring":
		dir := filepath.Join(filepath.Dir(dataPath), "credentials")
		return NewKeyringStore(credential.New(dir), kv), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
