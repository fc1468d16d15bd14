// Package authstate holds the one piece of cross-process shared state: the
// admin's bearer credential. Writers are the login/logout flows; readers
// re-read the persisted token before every authenticated call instead of
// caching validity. Credential changes made by another process arrive as
// external-change signals and are debounced before being republished.
package authstate

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultDebounce = 500 * time.Millisecond

// Change is published to subscribers whenever the credential is set, cleared,
// or observed to have changed externally.
type Change struct {
	Token   string
	Present bool
}

// TokenStore persists the credential between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Delete() error
}

// FileStore keeps the token in a mode-0600 file, the process equivalent of
// the browser's persistent client-side storage.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, []byte(token+"\n"), 0o600)
}

func (f *FileStore) Delete() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore is a TokenStore for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStore(token string) *MemoryStore { return &MemoryStore{token: token} }

func (m *MemoryStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Delete() error {
	return m.Save("")
}

// Service is the injectable credential state: Get/Set/Clear/Subscribe plus a
// debounced external-change signal.
type Service struct {
	store    TokenStore
	logger   *log.Logger
	debounce time.Duration

	mu      sync.Mutex
	subs    map[int]chan Change
	nextSub int
	timer   *time.Timer
	pending Change
}

// Option customizes the service.
type Option func(*Service)

// WithDebounce adjusts how long rapid external changes are coalesced for.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithLogger lets callers supply a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService builds the credential service around a store.
func NewService(store TokenStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   log.New(os.Stderr, "authstate ", log.LstdFlags),
		debounce: defaultDebounce,
		subs:     make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get re-reads the persisted credential. Empty means unauthenticated.
func (s *Service) Get() string {
	token, err := s.store.Load()
	if err != nil {
		s.logger.Printf("load credential: %v", err)
		return ""
	}
	return token
}

// Set stores a new credential and notifies subscribers immediately; local
// writes are not debounced.
func (s *Service) Set(token string) error {
	if err := s.store.Save(token); err != nil {
		return err
	}
	s.publish(Change{Token: token, Present: token != ""})
	return nil
}

// Clear removes the credential and notifies subscribers.
func (s *Service) Clear() {
	if err := s.store.Delete(); err != nil {
		s.logger.Printf("clear credential: %v", err)
	}
	s.publish(Change{})
}

// Subscribe returns a channel of credential changes and a cancel func.
// Delivery is best-effort; a subscriber that is not draining misses updates
// rather than blocking the writer.
func (s *Service) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Change, 4)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

// NotifyExternalChange records that another process changed the credential.
// Rapid repeated signals are coalesced; only the last value within the
// debounce window is published.
func (s *Service) NotifyExternalChange(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = Change{Token: token, Present: token != ""}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flushPending)
}

func (s *Service) flushPending() {
	s.mu.Lock()
	change := s.pending
	s.timer = nil
	s.mu.Unlock()

	// Reconcile the store with what the external writer left behind.
	if err := s.store.Save(change.Token); err != nil {
		s.logger.Printf("reconcile credential: %v", err)
	}
	s.publish(change)
}

func (s *Service) publish(change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
