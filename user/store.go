// Package user persists the logged in account.
package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codearena/arena/api"
	"github.com/codearena/arena/auth"
	"github.com/codearena/arena/common/atomicfile"
	"github.com/codearena/arena/events"
)

const (
	tokenFileName    = "token"
	userDataFileName = "userData.json"
)

var ErrNoToken = errors.New("result has no token")

// Store holds the credential of the logged in account.
type Store interface {
	Save(r *auth.Result) error
	Clear() error
	// Current returns the stored credential, or nil when logged out.
	Current() (*auth.Result, error)
}

// ChangeEvent is emitted whenever the stored credential changes. Old or New is nil on
// login or logout respectively.
type ChangeEvent struct {
	Old *auth.Result
	New *auth.Result
}

// LoggedIn reports whether store holds a token that has not expired.
func LoggedIn(store Store) bool {
	r, err := store.Current()
	return err == nil && r != nil && !r.Expired(time.Now())
}

type userData struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// FileStore keeps the token and the account record in two files of a data directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(r *auth.Result) error {
	if r == nil || r.Token == "" {
		return ErrNoToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, _ := s.load()

	data, err := json.Marshal(userData{ID: r.AccountID, Username: r.Username, Role: r.Role})
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(s.path(userDataFileName), data, 0o600); err != nil {
		return fmt.Errorf("writing user data: %w", err)
	}
	// The token goes last since its presence is what marks the account as logged in.
	if err := atomicfile.WriteFile(s.path(tokenFileName), []byte(r.Token), 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	slog.Debug("Saved credentials", "username", r.Username, "id", r.AccountID)
	saved := *r
	events.Emit(ChangeEvent{Old: old, New: &saved})
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, _ := s.load()
	if err := atomicfile.Remove(s.path(tokenFileName)); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	if err := atomicfile.Remove(s.path(userDataFileName)); err != nil {
		return fmt.Errorf("removing user data: %w", err)
	}
	if old != nil {
		slog.Debug("Cleared credentials", "username", old.Username)
		events.Emit(ChangeEvent{Old: old})
	}
	return nil
}

func (s *FileStore) Current() (*auth.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*auth.Result, error) {
	token, err := atomicfile.ReadFile(s.path(tokenFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	r := &auth.Result{Token: strings.TrimSpace(string(token))}
	if r.Token == "" {
		return nil, nil
	}
	if claims, err := api.ParseTokenClaims(r.Token); err == nil {
		r.ExpiresAt = claims.ExpiresAt
	}

	raw, err := atomicfile.ReadFile(s.path(userDataFileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("reading user data: %w", err)
	}
	var data userData
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("Ignoring unreadable user data", "error", err)
		return r, nil
	}
	r.AccountID = data.ID
	r.Username = data.Username
	r.Role = data.Role
	return r, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu     sync.Mutex
	result *auth.Result
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Save(r *auth.Result) error {
	if r == nil || r.Token == "" {
		return ErrNoToken
	}
	s.mu.Lock()
	old := s.result
	saved := *r
	s.result = &saved
	s.mu.Unlock()
	events.Emit(ChangeEvent{Old: old, New: &saved})
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	old := s.result
	s.result = nil
	s.mu.Unlock()
	if old != nil {
		events.Emit(ChangeEvent{Old: old})
	}
	return nil
}

func (s *MemoryStore) Current() (*auth.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, nil
	}
	r := *s.result
	return &r, nil
}
