package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/config"
)

// ErrNoCredential is returned by a CredentialStore that holds no token.
var ErrNoCredential = errors.New("no stored credential")

// CredentialStore is the persistent home of the bearer token.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// NewStore builds the store selected by configuration. The returned close
// function releases any connection held by the store.
func NewStore(cfg config.Config, logger *zap.Logger) (CredentialStore, func(), error) {
	switch cfg.Credential.Store {
	case config.StoreFile:
		return NewFileStore(cfg.Credential.Path), func() {}, nil
	case config.StoreRedis:
		store := NewRedisStore(cfg.Redis, cfg.Credential.RedisKey, logger)
		return store, store.Close, nil
	case config.StoreMemory:
		return NewMemoryStore(""), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown credential store %q", cfg.Credential.Store)
}

// FileStore keeps the token in a single file readable only by its owner.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the token file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (string, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("read credential: %w", err)
	}
	token := strings.TrimSpace(string(content))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (s *FileStore) Save(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("refusing to store an empty credential")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// MemoryStore holds the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store seeded with token (which may be empty).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
