package client

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// TokenFileName is the well-known key the session token is stored under.
const TokenFileName = "token"

// TokenStore persists the single session token. An empty token from Load
// means logged out.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore returns a store holding token.
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (m *MemoryTokenStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryTokenStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	return m.Save("")
}

// FileTokenStore keeps the token in a file readable only by the owner.
type FileTokenStore struct {
	dir string
}

// NewFileTokenStore stores the token under dir.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{dir: dir}
}

// DefaultStateDir is $XDG_CONFIG_HOME/bandsched or the platform equivalent.
func DefaultStateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", oops.Code("CLIENT_STATE_DIR_FAILED").Wrap(err)
	}
	return filepath.Join(base, "bandsched"), nil
}

// Path returns the token file location.
func (f *FileTokenStore) Path() string {
	return filepath.Join(f.dir, TokenFileName)
}

func (f *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", oops.Code("CLIENT_TOKEN_LOAD_FAILED").With("path", f.Path()).Wrap(err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save replaces the token file atomically.
func (f *FileTokenStore) Save(token string) error {
	if token == "" {
		return f.Clear()
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return oops.Code("CLIENT_TOKEN_SAVE_FAILED").With("dir", f.dir).Wrap(err)
	}
	tmp, err := os.CreateTemp(f.dir, TokenFileName+".*")
	if err != nil {
		return oops.Code("CLIENT_TOKEN_SAVE_FAILED").With("dir", f.dir).Wrap(err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return oops.Code("CLIENT_TOKEN_SAVE_FAILED").Wrap(err)
	}
	if _, err := tmp.WriteString(token); err != nil {
		_ = tmp.Close()
		return oops.Code("CLIENT_TOKEN_SAVE_FAILED").Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.Code("CLIENT_TOKEN_SAVE_FAILED").Wrap(err)
	}
	if err := os.Rename(tmp.Name(), f.Path()); err != nil {
		return oops.Code("CLIENT_TOKEN_SAVE_FAILED").With("path", f.Path()).Wrap(err)
	}
	return nil
}

func (f *FileTokenStore) Clear() error {
	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("CLIENT_TOKEN_CLEAR_FAILED").With("path", f.Path()).Wrap(err)
	}
	return nil
}
