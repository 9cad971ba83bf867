// Package service contains the client-side storefront services: the
// authentication session, cart synchronisation, catalog, checkout and order
// history.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// AuthSession errors.
var (
	// ErrLoginSuperseded is returned by a login that finished after a later
	// login or logout had already taken effect.
	ErrLoginSuperseded = errors.New("login superseded by a newer session change")
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthSession owns the bearer credential and the identity it resolves to.
//
// State machine: Unknown -> {Authenticated, Anonymous}, Anonymous ->
// Authenticated on login, Authenticated -> Anonymous on logout or when any
// gateway call reports 401 for the current credential.
//
// A login while authenticated and a successful Refresh keep the state and
// replace the identity. Observers see them as Authenticated -> Authenticated
// with the new identity; that is an identity update, not a state change.
//
// The credential and identity are always swapped together. A login resolves
// the identity before anything is published, and every login or logout takes
// a generation number when it starts. A commit is refused once a newer
// generation has committed, so the last call to start wins; a newer call
// that fails does not block an older one.
type AuthSession struct {
	store      session.CredentialStore
	identities outbound.IdentityGateway
	logger     *slog.Logger
	now        func() time.Time
	validate   *validator.Validate

	gen       atomic.Uint64
	commitMu  sync.Mutex // serializes persistence with the state swap
	committed uint64     // newest generation published; guarded by commitMu

	mu         sync.RWMutex
	state      session.State
	credential string
	identity   *session.Identity

	refresh singleflight.Group

	obsMu     sync.Mutex
	observers map[int]func(session.Transition)
	nextObs   int
}

// AuthSessionOption configures an AuthSession.
type AuthSessionOption func(*AuthSession)

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) AuthSessionOption {
	return func(s *AuthSession) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for credential expiry checks.
func WithClock(now func() time.Time) AuthSessionOption {
	return func(s *AuthSession) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAuthSession creates a session in the Unknown state.
func NewAuthSession(store session.CredentialStore, identities outbound.IdentityGateway, opts ...AuthSessionOption) *AuthSession {
	s := &AuthSession{
		store:      store,
		identities: identities,
		logger:     slog.Default(),
		now:        time.Now,
		validate:   newValidator(),
		state:      session.StateUnknown,
		observers:  make(map[int]func(session.Transition)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize validates the persisted credential and leaves Unknown. Any
// failure discards the credential and ends in Anonymous.
func (s *AuthSession) Initialize(ctx context.Context) session.Session {
	gen := s.gen.Add(1)

	credential, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoCredential) {
			s.logger.Warn("failed to load persisted credential", "error", err)
		}
		s.discard(ctx, gen, session.ReasonInitialize)
		return s.Snapshot()
	}

	if expired, ok := session.CredentialExpired(credential, s.now()); ok && expired {
		s.logger.Info("persisted credential expired", "subject", session.CredentialSubject(credential))
		s.discard(ctx, gen, session.ReasonExpired)
		return s.Snapshot()
	}

	identity, err := s.identities.Me(ctx, credential)
	if err != nil {
		reason := session.ReasonInitialize
		if errors.Is(err, apierr.ErrAuth) {
			reason = session.ReasonRejected
		}
		s.logger.Info("persisted credential rejected", "kind", apierr.KindOf(err).String(), "error", err)
		s.discard(ctx, gen, reason)
		return s.Snapshot()
	}

	if err := s.commit(gen, credential, identity, session.ReasonInitialize, nil); err != nil {
		s.logger.Debug("initialize superseded", "error", err)
	}
	return s.Snapshot()
}

// Login exchanges a username and password for a credential, resolves the
// identity and publishes both together.
func (s *AuthSession) Login(ctx context.Context, username, password string) (session.Session, error) {
	gen := s.gen.Add(1)

	token, err := s.identities.Login(ctx, username, password)
	if err != nil {
		return s.Snapshot(), err
	}
	return s.login(ctx, gen, token.AccessToken, nil)
}

// LoginWithCredential adopts a credential obtained elsewhere. When identity
// is nil it is resolved through the backend first.
func (s *AuthSession) LoginWithCredential(ctx context.Context, credential string, identity *session.Identity) (session.Session, error) {
	gen := s.gen.Add(1)
	if credential == "" {
		return s.Snapshot(), apierr.Validation("login", apierr.FieldError{Field: "credential", Message: "is required"})
	}
	return s.login(ctx, gen, credential, identity)
}

func (s *AuthSession) login(ctx context.Context, gen uint64, credential string, identity *session.Identity) (session.Session, error) {
	if identity == nil {
		id, err := s.identities.Me(ctx, credential)
		if err != nil {
			return s.Snapshot(), err
		}
		identity = id
	}

	err := s.commit(gen, credential, identity, session.ReasonLogin, func() error {
		return s.store.Save(ctx, credential)
	})
	if err != nil {
		return s.Snapshot(), err
	}
	s.logger.Info("logged in", "user", identity.Email, "role", identity.Role.String())
	return s.Snapshot(), nil
}

// Logout drops the session and the persisted credential. The in-memory
// session is dropped even when clearing the store fails.
func (s *AuthSession) Logout(ctx context.Context) error {
	gen := s.gen.Add(1)
	return s.discard(ctx, gen, session.ReasonLogout)
}

// Invalidate drops the session if credential is still the current one. It is
// the handler for 401 responses anywhere in the system; a rejection of an
// already replaced credential is ignored.
func (s *AuthSession) Invalidate(credential string) bool {
	if credential == "" {
		return false
	}

	s.commitMu.Lock()
	s.mu.Lock()
	if s.state != session.StateAuthenticated || s.credential != credential {
		s.mu.Unlock()
		s.commitMu.Unlock()
		return false
	}
	t := s.swapLocked(session.StateAnonymous, "", nil, session.ReasonRejected)
	s.mu.Unlock()

	if err := s.store.Clear(context.Background()); err != nil {
		s.logger.Warn("failed to clear rejected credential", "error", err)
	}
	s.commitMu.Unlock()

	s.logger.Info("session rejected by backend, signed out")
	s.notify(t)
	return true
}

// Refresh re-validates the current credential. Concurrent callers share one
// backend request. A 401 signs the session out; other failures keep it.
func (s *AuthSession) Refresh(ctx context.Context) (session.Session, error) {
	v, err, _ := s.refresh.Do("refresh", func() (any, error) {
		snap := s.Snapshot()
		if !snap.IsAuthenticated() {
			return snap, ErrNotAuthenticated
		}

		identity, err := s.identities.Me(ctx, snap.Credential)
		if err != nil {
			if errors.Is(err, apierr.ErrAuth) {
				s.Invalidate(snap.Credential)
			}
			return s.Snapshot(), err
		}

		s.commitMu.Lock()
		s.mu.Lock()
		if s.state != session.StateAuthenticated || s.credential != snap.Credential {
			s.mu.Unlock()
			s.commitMu.Unlock()
			return s.Snapshot(), nil
		}
		t := s.swapLocked(session.StateAuthenticated, snap.Credential, identity, session.ReasonRefresh)
		s.mu.Unlock()
		s.commitMu.Unlock()

		s.notify(t)
		return s.Snapshot(), nil
	})
	snap, _ := v.(session.Session)
	return snap, err
}

// Signup validates req locally, then creates the account. It does not log in.
func (s *AuthSession) Signup(ctx context.Context, req session.SignupRequest) (*session.Identity, error) {
	if err := validateInput(s.validate, "signup", req); err != nil {
		return nil, err
	}
	return s.identities.Signup(ctx, req)
}

// Credential returns the credential to attach to backend calls, or "" when
// the session is not authenticated.
func (s *AuthSession) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != session.StateAuthenticated {
		return ""
	}
	return s.credential
}

// State returns the current lifecycle state.
func (s *AuthSession) State() session.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns state, credential and identity as one consistent value.
func (s *AuthSession) Snapshot() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return session.Session{
		State:      s.state,
		Credential: s.credential,
		Identity:   s.identity.Clone(),
	}
}

// Subscribe registers fn for every state transition. fn is called after the
// new state is visible and must not block.
func (s *AuthSession) Subscribe(fn func(session.Transition)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// commit publishes an authenticated session for generation gen. persist runs
// first; when it fails nothing is published.
func (s *AuthSession) commit(gen uint64, credential string, identity *session.Identity, reason session.Reason, persist func() error) error {
	s.commitMu.Lock()
	if gen < s.committed {
		s.commitMu.Unlock()
		return ErrLoginSuperseded
	}
	if persist != nil {
		if err := persist(); err != nil {
			s.commitMu.Unlock()
			return err
		}
	}
	s.committed = gen
	s.mu.Lock()
	t := s.swapLocked(session.StateAuthenticated, credential, identity, reason)
	s.mu.Unlock()
	s.commitMu.Unlock()

	s.notify(t)
	return nil
}

// discard moves to Anonymous and clears the persisted credential unless a
// newer generation has already committed.
func (s *AuthSession) discard(ctx context.Context, gen uint64, reason session.Reason) error {
	s.commitMu.Lock()
	if gen < s.committed {
		s.commitMu.Unlock()
		return nil
	}
	s.committed = gen
	s.mu.Lock()
	t := s.swapLocked(session.StateAnonymous, "", nil, reason)
	s.mu.Unlock()

	err := s.store.Clear(ctx)
	s.commitMu.Unlock()

	if err != nil {
		s.logger.Warn("failed to clear persisted credential", "error", err)
	}
	s.notify(t)
	return err
}

// swapLocked replaces the session fields. Caller must hold s.mu.
func (s *AuthSession) swapLocked(to session.State, credential string, identity *session.Identity, reason session.Reason) session.Transition {
	from := s.state
	s.state = to
	s.credential = credential
	s.identity = identity.Clone()
	return session.Transition{
		From:     from,
		To:       to,
		Identity: identity.Clone(),
		Reason:   reason,
	}
}

func (s *AuthSession) notify(t session.Transition) {
	if t.From == t.To && t.To == session.StateAnonymous {
		return
	}
	s.obsMu.Lock()
	fns := make([]func(session.Transition), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}
