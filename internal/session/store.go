// Package session owns the console's single authentication session with the
// upstream proxy backend: token lifecycle, durable snapshot, proactive
// renewal, and forced logout when any call discovers the session is gone.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tunneldeck-console/internal/events"
	"tunneldeck-console/internal/models"
	"tunneldeck-console/internal/state"
	"tunneldeck-console/internal/upstream"
)

// User-facing messages. Raw upstream errors never reach the UI through
// lastError; they may leak server internals.
const (
	msgInvalidCredentials = "invalid username or password"
	msgSessionExpired     = "session expired, please log in again"
	msgLoginUnavailable   = "login failed: proxy backend unavailable"
	msgPasswordRejected   = "password change rejected"
	msgBackendUnreachable = "proxy backend unreachable"
)

// Options tune the session timers
type Options struct {
	// ExpiryCheckInterval is how often remaining token lifetime is checked
	ExpiryCheckInterval time.Duration
	// HealthCheckInterval is how often the backend health is probed while
	// authenticated
	HealthCheckInterval time.Duration
	// RenewThreshold is the remaining-time low-water mark below which
	// renewal is attempted
	RenewThreshold time.Duration
	// RenewWindow is how far a renewal pushes the expiry from now
	RenewWindow time.Duration
}

func (o *Options) normalize() {
	if o.ExpiryCheckInterval <= 0 {
		o.ExpiryCheckInterval = 30 * time.Second
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = 15 * time.Second
	}
	if o.RenewThreshold <= 0 {
		o.RenewThreshold = 5 * time.Minute
	}
	if o.RenewWindow <= o.RenewThreshold {
		o.RenewWindow = 30 * time.Minute
	}
}

// Status is a point-in-time copy of the session state for the UI
type Status struct {
	Authenticated  bool           `json:"authenticated"`
	User           *models.User   `json:"user,omitempty"`
	TokenExpiresAt *time.Time     `json:"token_expires_at,omitempty"`
	Connected      bool           `json:"connected"`
	LastHealth     *models.Health `json:"last_health,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}

// Store is the single session instance for the running console. It is the
// only writer of session state and of the token slot on the upstream client.
type Store struct {
	client *upstream.Client
	state  *state.Store
	opts   Options
	now    func() time.Time

	mu            sync.Mutex
	authenticated bool
	user          *models.User
	token         string
	expiresAt     time.Time
	connected     bool
	lastHealth    *models.Health
	lastError     string
	watch         *watcher
}

// New creates the session store, subscribes it to auth-loss broadcasts, and
// attempts to restore a persisted session. A valid unexpired snapshot goes
// straight to authenticated; anything less is discarded by the state store.
func New(client *upstream.Client, st *state.Store, bus *events.Bus, opts Options) *Store {
	opts.normalize()
	s := &Store{
		client: client,
		state:  st,
		opts:   opts,
		now:    time.Now,
	}

	// Any upstream call can discover mid-flight that the session is gone;
	// the broadcast reaches us without the transport knowing who we are.
	bus.Subscribe(events.AuthExpired, func(events.Event) {
		s.forceLogout(msgSessionExpired)
	})

	s.restore()
	return s
}

// restore loads the persisted snapshot, if any, and resumes the session
func (s *Store) restore() {
	snap, err := s.state.LoadSnapshot(s.now())
	if err != nil {
		log.Printf("session: failed to read persisted snapshot: %v", err)
		return
	}
	if snap == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.token = snap.Token
	s.user = snap.User
	s.expiresAt = snap.ExpiresAt
	s.client.SetAuthToken(snap.Token)
	s.startWatcherLocked()
	log.Printf("session: restored persisted session, expires %s", snap.ExpiresAt.Format(time.RFC3339))
}

// Login exchanges credentials for a session. It never propagates upstream
// errors past its own boundary: failure sets a user-facing message and
// returns false. On success the user record is fetched afterwards; a failed
// fetch is logged but does not revert the login.
func (s *Store) Login(ctx context.Context, username, password string) bool {
	token, err := s.client.Login(ctx, username, password)
	if err != nil {
		s.mu.Lock()
		if errors.Is(err, upstream.ErrUnauthorized) || errors.Is(err, upstream.ErrBadStatus) {
			s.lastError = msgInvalidCredentials
		} else {
			s.lastError = msgLoginUnavailable
		}
		s.mu.Unlock()
		log.Printf("session: login failed: %v", err)
		return false
	}
	if token.AccessToken == "" || token.ExpiresIn <= 0 {
		s.mu.Lock()
		s.lastError = msgInvalidCredentials
		s.mu.Unlock()
		log.Printf("session: malformed login response (expires_in=%d)", token.ExpiresIn)
		return false
	}

	expiresAt := s.now().Add(time.Duration(token.ExpiresIn) * time.Second)

	s.mu.Lock()
	if s.watch != nil {
		s.watch.stop()
		s.watch = nil
	}
	s.authenticated = true
	s.token = token.AccessToken
	s.user = nil
	s.expiresAt = expiresAt
	s.lastError = ""
	s.client.SetAuthToken(token.AccessToken)
	s.persistLocked()
	s.startWatcherLocked()
	s.mu.Unlock()

	// Secondary: the session is already established; a failed user fetch
	// leaves it authenticated with the user record absent.
	user, err := s.client.Me(ctx)
	if err != nil {
		log.Printf("session: failed to fetch user info after login: %v", err)
		return true
	}

	s.mu.Lock()
	if s.authenticated && s.token == token.AccessToken {
		s.user = user
		s.persistLocked()
	}
	s.mu.Unlock()

	return true
}

// Logout tears the session down. Idempotent; safe to call when already
// logged out.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked("")
}

// forceLogout tears the session down in reaction to detected expiry or an
// auth-loss broadcast. Concurrent invocations collapse to one: only the
// first finds the session authenticated.
func (s *Store) forceLogout(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return
	}
	s.clearLocked(msg)
}

// clearLocked resets to unauthenticated, erases the snapshot, and stops the
// watchers. msg, when non-empty, becomes the visible error.
func (s *Store) clearLocked(msg string) {
	if s.watch != nil {
		s.watch.stop()
		s.watch = nil
	}
	s.authenticated = false
	s.user = nil
	s.token = ""
	s.expiresAt = time.Time{}
	s.lastError = msg
	s.client.ClearAuthToken()
	if err := s.state.Clear(); err != nil {
		log.Printf("session: failed to clear persisted snapshot: %v", err)
	}
}

// ChangePassword delegates to the backend. The token is not rotated on
// success; authentication state is untouched on failure.
func (s *Store) ChangePassword(ctx context.Context, current, newPassword string) bool {
	if err := s.client.ChangePassword(ctx, current, newPassword); err != nil {
		log.Printf("session: password change failed: %v", err)
		s.mu.Lock()
		s.lastError = msgPasswordRejected
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	if s.lastError == msgPasswordRejected {
		s.lastError = ""
	}
	s.mu.Unlock()
	return true
}

// RefreshUserInfo re-fetches the current user record. A 401 here is evidence
// the token is already dead and forces logout; other failures are secondary
// and swallowed.
func (s *Store) RefreshUserInfo(ctx context.Context) {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return
	}
	token := s.token
	s.mu.Unlock()

	user, err := s.client.Me(ctx)
	if err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			s.forceLogout(msgSessionExpired)
		} else {
			log.Printf("session: failed to refresh user info: %v", err)
		}
		return
	}

	s.mu.Lock()
	if s.authenticated && s.token == token {
		s.user = user
		s.persistLocked()
	}
	s.mu.Unlock()
}

// RefreshHealth probes the backend. Independent of authentication. A failure
// sets the visible error only when nothing else is currently displayed, so a
// flapping health check never masks a more specific message.
func (s *Store) RefreshHealth(ctx context.Context) {
	health, err := s.client.Health(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.connected = false
		if s.lastError == "" {
			s.lastError = msgBackendUnreachable
		}
		return
	}

	s.connected = true
	s.lastHealth = health
	if s.lastError == msgBackendUnreachable {
		s.lastError = ""
	}
}

// RenewToken extends the token expiry by the renewal window from now and
// re-persists the snapshot. This is a client-side optimistic extension, not
// a server-verified refresh; the expiry only ever moves forward.
func (s *Store) RenewToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renewLocked()
}

func (s *Store) renewLocked() bool {
	if !s.authenticated {
		return false
	}
	newExpiry := s.now().Add(s.opts.RenewWindow)
	if newExpiry.After(s.expiresAt) {
		s.expiresAt = newExpiry
		s.persistLocked()
	}
	return true
}

// checkExpiry is one tick of the expiry watch: past expiry forces logout,
// inside the renewal threshold triggers one renewal, otherwise nothing.
func (s *Store) checkExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return
	}

	remaining := s.expiresAt.Sub(s.now())
	switch {
	case remaining <= 0:
		log.Printf("session: token expired, logging out")
		s.clearLocked(msgSessionExpired)
	case remaining <= s.opts.RenewThreshold:
		s.renewLocked()
	}
}

// persistLocked writes the current snapshot. Callers hold s.mu.
func (s *Store) persistLocked() {
	snap := &models.Snapshot{Token: s.token, User: s.user, ExpiresAt: s.expiresAt}
	if err := s.state.SaveSnapshot(snap); err != nil {
		log.Printf("session: failed to persist snapshot: %v", err)
	}
}

// TokenExpiry returns the token expiry instant; ok is false when no token
// is held.
func (s *Store) TokenExpiry() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return time.Time{}, false
	}
	return s.expiresAt, true
}

// TokenExpired reports whether the token is absent or past its expiry
func (s *Store) TokenExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.authenticated || !s.expiresAt.After(s.now())
}

// DismissError clears the visible error message
func (s *Store) DismissError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

// Status returns a copy of the current session state
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Authenticated: s.authenticated,
		User:          s.user,
		Connected:     s.connected,
		LastHealth:    s.lastHealth,
		LastError:     s.lastError,
	}
	if s.authenticated {
		expiry := s.expiresAt
		st.TokenExpiresAt = &expiry
	}
	return st
}

// Close stops the background watchers without touching the persisted
// snapshot, so the session survives a console restart.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch != nil {
		s.watch.stop()
		s.watch = nil
	}
}
