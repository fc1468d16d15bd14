// Package session establishes and keeps consistent the authenticated admin's
// view of profile, association, session list and current session.
package session

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"

	"github.com/duespay/portal/internal/authstate"
	"github.com/duespay/portal/internal/duespay"
)

// API is the subset of the portal client the service uses.
type API interface {
	GetProfile(ctx context.Context) (*duespay.Profile, error)
	GetAssociationProfile(ctx context.Context) (*duespay.Association, error)
	ListSessions(ctx context.Context) ([]duespay.Session, error)
	CreateSession(ctx context.Context, req duespay.CreateSessionRequest) (*duespay.Session, error)
	SetCurrentSession(ctx context.Context, id int64) error
}

// Credentials is the injected auth-state dependency.
type Credentials interface {
	Get() string
	Subscribe() (<-chan authstate.Change, func())
}

// Snapshot is a point-in-time copy of the bootstrapped state.
type Snapshot struct {
	Profile     *duespay.Profile
	Association *duespay.Association
	Sessions    []duespay.Session
	Current     *duespay.Session
	Initialized bool
}

// CreateResult is the discriminated outcome of CreateSession.
type CreateResult struct {
	OK      bool
	Session *duespay.Session
	Message string
}

// Service owns the bootstrapped admin state.
type Service struct {
	api    API
	creds  Credentials
	logger *log.Logger

	initOnce sync.Once

	mu          sync.Mutex
	profile     *duespay.Profile
	association *duespay.Association
	sessions    []duespay.Session
	current     *duespay.Session
	initialized bool

	subMu   sync.Mutex
	changed map[int]chan duespay.Session
	nextSub int

	stopWatch func()
	watchDone chan struct{}
}

// Option customizes the service.
type Option func(*Service)

// WithLogger lets callers supply a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService builds the bootstrap service.
func NewService(api API, creds Credentials, opts ...Option) *Service {
	s := &Service{
		api:     api,
		creds:   creds,
		logger:  log.New(os.Stderr, "session ", log.LstdFlags),
		changed: make(map[int]chan duespay.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize runs exactly once per service lifetime. Without a credential it
// marks the service initialized with empty state and performs no network
// calls; with one it runs the three bootstrap fetches concurrently. It also
// starts watching for credential changes.
func (s *Service) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		if s.creds.Get() != "" {
			s.fetchAll(ctx)
		} else {
			s.logger.Printf("no credential; skipping authenticated bootstrap")
		}

		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()

		s.watchCredential()
	})
}

// RefreshData re-runs the three bootstrap fetches. Safe to call from several
// goroutines; each fetch writes its own slice of state under the lock.
// Returns false without fetching when no credential is present.
func (s *Service) RefreshData(ctx context.Context) bool {
	if s.creds.Get() == "" {
		return false
	}
	s.fetchAll(ctx)
	return true
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Profile:     s.profile,
		Association: s.association,
		Current:     s.current,
		Initialized: s.initialized,
	}
	snap.Sessions = make([]duespay.Session, len(s.sessions))
	copy(snap.Sessions, s.sessions)
	return snap
}

// SetCurrentSessionByID issues the set-current request, then updates the
// local list and profile in place and broadcasts the switch. Returns false
// without mutating state when the id is not recognized locally or the
// request fails.
func (s *Service) SetCurrentSessionByID(ctx context.Context, id int64) bool {
	s.mu.Lock()
	var target *duespay.Session
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			cp := s.sessions[i]
			target = &cp
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		s.logger.Printf("set current session: id %d not in local list", id)
		return false
	}

	if err := s.api.SetCurrentSession(ctx, id); err != nil {
		s.logger.Printf("set current session: %v", err)
		return false
	}

	target.IsActive = true

	s.mu.Lock()
	for i := range s.sessions {
		s.sessions[i].IsActive = s.sessions[i].ID == id
	}
	s.current = target
	if s.profile != nil {
		if s.profile.Association == nil {
			s.profile.Association = &duespay.AssociationRef{}
		}
		s.profile.Association.CurrentSession = target
	}
	s.mu.Unlock()

	s.broadcast(*target)
	return true
}

// CreateSession creates a session server-side and refreshes the local list on
// success.
func (s *Service) CreateSession(ctx context.Context, req duespay.CreateSessionRequest) CreateResult {
	created, err := s.api.CreateSession(ctx, req)
	if err != nil {
		return CreateResult{Message: createFailureMessage(err)}
	}

	s.fetchSessions(ctx)
	return CreateResult{OK: true, Session: created}
}

// SubscribeSessionChanges returns a channel of current-session switches and a
// cancel func. Listeners typically re-fetch data scoped to the new session.
func (s *Service) SubscribeSessionChanges() (<-chan duespay.Session, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan duespay.Session, 4)
	s.changed[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.changed, id)
	}
	return ch, cancel
}

// Close stops the credential watcher.
func (s *Service) Close() {
	if s.stopWatch != nil {
		s.stopWatch()
		<-s.watchDone
	}
}

// fetchAll runs the three bootstrap fetches concurrently. Their completion
// order is not relied upon and a failure in one leaves the others' state
// intact.
func (s *Service) fetchAll(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.fetchProfile(ctx)
	}()
	go func() {
		defer wg.Done()
		s.fetchAssociation(ctx)
	}()
	go func() {
		defer wg.Done()
		s.fetchSessions(ctx)
	}()
	wg.Wait()
}

func (s *Service) fetchProfile(ctx context.Context) {
	profile, err := s.api.GetProfile(ctx)
	if err != nil {
		// The client has already cleared the credential on ErrUnauthorized.
		s.logger.Printf("fetch profile: %v", err)
		s.mu.Lock()
		s.profile = nil
		s.mu.Unlock()
		return
	}

	current := normalizeCurrent(profile)

	s.mu.Lock()
	s.profile = profile
	if current != nil {
		s.current = current
	}
	s.mu.Unlock()
}

func (s *Service) fetchAssociation(ctx context.Context) {
	association, err := s.api.GetAssociationProfile(ctx)
	if err != nil {
		s.logger.Printf("fetch association: %v", err)
		s.mu.Lock()
		s.association = nil
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.association = association
	s.mu.Unlock()
}

func (s *Service) fetchSessions(ctx context.Context) {
	list, err := s.api.ListSessions(ctx)
	if err != nil {
		s.logger.Printf("fetch sessions: %v", err)
		s.mu.Lock()
		s.sessions = nil
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.sessions = list
	if s.current == nil {
		s.current = pickCurrent(list)
	}
	s.mu.Unlock()
}

// watchCredential reconciles state with credential changes made elsewhere: a
// credential appearing triggers a refresh, one disappearing clears all
// derived state. Debouncing happens upstream in authstate.
func (s *Service) watchCredential() {
	ch, cancel := s.creds.Subscribe()
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopWatch = func() {
		cancel()
		close(stop)
	}
	s.watchDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case change, ok := <-ch:
				if !ok {
					return
				}
				if change.Present {
					s.logger.Printf("credential appeared; refreshing")
					s.fetchAll(context.Background())
				} else {
					s.logger.Printf("credential removed; clearing state")
					s.clearState()
				}
			}
		}
	}()
}

func (s *Service) clearState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = nil
	s.association = nil
	s.sessions = nil
	s.current = nil
}

func (s *Service) broadcast(sess duespay.Session) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.changed {
		select {
		case ch <- sess:
		default:
		}
	}
}

func createFailureMessage(err error) string {
	var rej *duespay.RequestRejected
	if errors.As(err, &rej) {
		return rej.Message
	}
	return err.Error()
}
