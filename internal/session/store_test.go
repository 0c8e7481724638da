package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"tunneldeck-console/internal/events"
	"tunneldeck-console/internal/state"
	"tunneldeck-console/internal/upstream"
)

// fakeBackend is a scriptable stand-in for the proxy-management backend
type fakeBackend struct {
	mu        sync.Mutex
	password  string
	expiresIn int64
	meStatus  int // 0 means success
	healthUp  bool
}

func (f *fakeBackend) set(fn func(*fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	password, expiresIn, meStatus, healthUp := f.password, f.expiresIn, f.meStatus, f.healthUp
	f.mu.Unlock()

	switch r.URL.Path {
	case "/auth/login":
		r.ParseForm()
		if r.PostForm.Get("password") != password {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token": "tok-live", "token_type": "bearer", "expires_in": ` +
			strconv.FormatInt(expiresIn, 10) + `}`))
	case "/auth/me":
		if meStatus != 0 {
			w.WriteHeader(meStatus)
			w.Write([]byte(`{"error": "nope"}`))
			return
		}
		w.Write([]byte(`{"id": 1, "username": "admin", "email": "admin@example.com", "active": true, "is_admin": true}`))
	case "/":
		if !healthUp {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status": "ok", "version": "1.2.3"}`))
	case "/auth/change-password":
		var body struct {
			CurrentPassword string `json:"current_password"`
		}
		decodeJSON(r, &body)
		if body.CurrentPassword != password {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "wrong password"}`))
			return
		}
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func decodeJSON(r *http.Request, out any) {
	json.NewDecoder(r.Body).Decode(out)
}

type env struct {
	backend *fakeBackend
	state   *state.Store
	bus     *events.Bus
	client  *upstream.Client
	store   *Store
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()

	backend := &fakeBackend{password: "correctpass", expiresIn: 1800, healthUp: true}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	st, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus()
	client := upstream.New(srv.URL, 5*time.Second, bus)
	store := New(client, st, bus, opts)
	t.Cleanup(store.Close)

	return &env{backend: backend, state: st, bus: bus, client: client, store: store}
}

// setClock pins the store's notion of now
func (e *env) setClock(at time.Time) {
	e.store.mu.Lock()
	e.store.now = func() time.Time { return at }
	e.store.mu.Unlock()
}

func TestLogin_Success(t *testing.T) {
	e := newEnv(t, Options{})
	base := time.Now()
	e.setClock(base)

	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("Login returned false for valid credentials")
	}

	status := e.store.Status()
	if !status.Authenticated {
		t.Fatal("not authenticated after successful login")
	}
	if status.User == nil || status.User.Username != "admin" {
		t.Errorf("User = %+v, want admin record", status.User)
	}
	if status.TokenExpiresAt == nil {
		t.Fatal("TokenExpiresAt missing")
	}
	want := base.Add(1800 * time.Second)
	if !status.TokenExpiresAt.Equal(want) {
		t.Errorf("TokenExpiresAt = %v, want %v", status.TokenExpiresAt, want)
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
	if e.client.Token() != "tok-live" {
		t.Errorf("client token = %q, want tok-live", e.client.Token())
	}

	// Snapshot persisted with identity fields
	snap, err := e.state.LoadSnapshot(base)
	if err != nil || snap == nil {
		t.Fatalf("LoadSnapshot = %v, %v; want persisted snapshot", snap, err)
	}
	if snap.Token != "tok-live" || snap.User == nil || snap.User.Username != "admin" {
		t.Errorf("snapshot = %+v, want token and user persisted", snap)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newEnv(t, Options{})

	if e.store.Login(context.Background(), "admin", "wrongpass") {
		t.Fatal("Login returned true for invalid credentials")
	}

	status := e.store.Status()
	if status.Authenticated {
		t.Error("store must stay unauthenticated")
	}
	if status.LastError != msgInvalidCredentials {
		t.Errorf("LastError = %q, want %q", status.LastError, msgInvalidCredentials)
	}

	snap, _ := e.state.LoadSnapshot(time.Now())
	if snap != nil {
		t.Error("no snapshot must be persisted on failed login")
	}
}

func TestLogin_MalformedResponseStaysOut(t *testing.T) {
	e := newEnv(t, Options{})
	e.backend.set(func(f *fakeBackend) { f.expiresIn = 0 })

	if e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("Login must fail on a response without a usable expiry")
	}
	if e.store.Status().Authenticated {
		t.Error("store must stay unauthenticated")
	}
}

func TestLogin_UserFetchFailureKeepsSession(t *testing.T) {
	e := newEnv(t, Options{})
	e.backend.set(func(f *fakeBackend) { f.meStatus = http.StatusInternalServerError })

	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("Login must succeed even when the user fetch fails")
	}

	status := e.store.Status()
	if !status.Authenticated {
		t.Error("session must stay authenticated with the user record absent")
	}
	if status.User != nil {
		t.Errorf("User = %+v, want absent", status.User)
	}

	// Next successful refresh fills the record in
	e.backend.set(func(f *fakeBackend) { f.meStatus = 0 })
	e.store.RefreshUserInfo(context.Background())
	if u := e.store.Status().User; u == nil || u.Username != "admin" {
		t.Errorf("User after refresh = %+v, want admin record", u)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	e := newEnv(t, Options{})

	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}

	e.store.Logout()
	if e.store.Status().Authenticated {
		t.Error("authenticated after logout")
	}
	if snap, _ := e.state.LoadSnapshot(time.Now()); snap != nil {
		t.Error("snapshot must be cleared by logout")
	}
	if e.client.Token() != "" {
		t.Error("client token must be cleared by logout")
	}

	// Second logout is safe and yields the same end state
	e.store.Logout()
	if e.store.Status().Authenticated {
		t.Error("authenticated after double logout")
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	e := newEnv(t, Options{})

	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}
	before := e.store.Status()
	e.store.Close()

	// A fresh store over the same state must resume the session
	restored := New(e.client, e.state, events.NewBus(), Options{})
	t.Cleanup(restored.Close)

	after := restored.Status()
	if !after.Authenticated {
		t.Fatal("restored store not authenticated")
	}
	if after.User == nil || before.User == nil || after.User.ID != before.User.ID ||
		after.User.Username != before.User.Username {
		t.Errorf("restored user = %+v, want %+v", after.User, before.User)
	}
	if e.client.Token() != "tok-live" {
		t.Errorf("restored client token = %q, want tok-live", e.client.Token())
	}
}

func TestRestore_StaleSnapshotDiscarded(t *testing.T) {
	e := newEnv(t, Options{})

	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}
	e.store.Close()

	// Construct the next store with a clock past the token expiry
	st := e.state
	restored := &Store{
		client: e.client,
		state:  st,
		now:    func() time.Time { return time.Now().Add(48 * time.Hour) },
	}
	restored.opts.normalize()
	restored.restore()
	t.Cleanup(restored.Close)

	if restored.Status().Authenticated {
		t.Error("stale snapshot must not restore a session")
	}
	if snap, _ := st.LoadSnapshot(time.Now()); snap != nil {
		t.Error("stale snapshot must be erased")
	}
}

func TestAuthLossBroadcast_ForcesLogoutOnce(t *testing.T) {
	e := newEnv(t, Options{})

	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}

	// Every subsequent authenticated call discovers the session is gone
	e.backend.set(func(f *fakeBackend) { f.meStatus = http.StatusUnauthorized })

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.store.RefreshUserInfo(context.Background())
		}()
	}
	wg.Wait()

	status := e.store.Status()
	if status.Authenticated {
		t.Fatal("store must reach unauthenticated after 401")
	}
	if status.LastError != msgSessionExpired {
		t.Errorf("LastError = %q, want %q", status.LastError, msgSessionExpired)
	}
	if snap, _ := e.state.LoadSnapshot(time.Now()); snap != nil {
		t.Error("snapshot must be cleared on forced logout")
	}
	if e.client.Token() != "" {
		t.Error("client token must be cleared on forced logout")
	}
}

func TestExpiryWatch_RenewAtThreshold(t *testing.T) {
	opts := Options{RenewThreshold: 5 * time.Minute, RenewWindow: 30 * time.Minute}
	e := newEnv(t, opts)

	base := time.Now()
	e.setClock(base)
	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}
	loginExpiry := base.Add(1800 * time.Second)

	// Exactly at the low-water mark: one renewal, no logout
	atThreshold := loginExpiry.Add(-opts.RenewThreshold)
	e.setClock(atThreshold)
	e.store.checkExpiry()

	status := e.store.Status()
	if !status.Authenticated {
		t.Fatal("renewal must not log out")
	}
	wantExpiry := atThreshold.Add(opts.RenewWindow)
	if !status.TokenExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry after renewal = %v, want %v", status.TokenExpiresAt, wantExpiry)
	}

	// A second tick at the same instant is outside the threshold again
	e.store.checkExpiry()
	if !e.store.Status().TokenExpiresAt.Equal(wantExpiry) {
		t.Error("second tick must not renew again")
	}

	// Renewal re-persisted the snapshot with the extended expiry
	snap, _ := e.state.LoadSnapshot(atThreshold)
	if snap == nil || !snap.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("persisted expiry = %+v, want %v", snap, wantExpiry)
	}
}

func TestExpiryWatch_PastExpiryForcesLogout(t *testing.T) {
	e := newEnv(t, Options{})

	base := time.Now()
	e.setClock(base)
	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}

	e.setClock(base.Add(1801 * time.Second))
	e.store.checkExpiry()

	status := e.store.Status()
	if status.Authenticated {
		t.Fatal("expired token must force logout")
	}
	if status.LastError == "" {
		t.Error("forced expiry must leave a visible message")
	}
}

func TestTokenAccessors(t *testing.T) {
	e := newEnv(t, Options{})

	if _, ok := e.store.TokenExpiry(); ok {
		t.Error("TokenExpiry must report absent before login")
	}
	if !e.store.TokenExpired() {
		t.Error("TokenExpired must be true with no token")
	}

	base := time.Now()
	e.setClock(base)
	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}

	expiry, ok := e.store.TokenExpiry()
	if !ok || !expiry.Equal(base.Add(1800*time.Second)) {
		t.Errorf("TokenExpiry = %v, %v", expiry, ok)
	}
	if e.store.TokenExpired() {
		t.Error("fresh token must not read as expired")
	}

	e.setClock(base.Add(time.Hour))
	if !e.store.TokenExpired() {
		t.Error("past-expiry token must read as expired")
	}
}

func TestRefreshHealth_Success(t *testing.T) {
	e := newEnv(t, Options{})

	e.store.RefreshHealth(context.Background())

	status := e.store.Status()
	if !status.Connected {
		t.Error("Connected must be true after a healthy probe")
	}
	if status.LastHealth == nil || status.LastHealth.Status != "ok" {
		t.Errorf("LastHealth = %+v, want ok snapshot", status.LastHealth)
	}
}

func TestRefreshHealth_FailureDoesNotMaskOtherErrors(t *testing.T) {
	e := newEnv(t, Options{})

	// An unrelated error is already on display
	e.store.Login(context.Background(), "admin", "wrongpass")
	if e.store.Status().LastError != msgInvalidCredentials {
		t.Fatal("setup: expected credential error")
	}

	e.backend.set(func(f *fakeBackend) { f.healthUp = false })
	e.store.RefreshHealth(context.Background())

	status := e.store.Status()
	if status.Connected {
		t.Error("Connected must be false after a failed probe")
	}
	if status.LastError != msgInvalidCredentials {
		t.Errorf("LastError = %q, health failure must not overwrite it", status.LastError)
	}

	// With nothing on display, the health failure becomes visible
	e.store.DismissError()
	e.store.RefreshHealth(context.Background())
	if e.store.Status().LastError != msgBackendUnreachable {
		t.Errorf("LastError = %q, want %q", e.store.Status().LastError, msgBackendUnreachable)
	}
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t, Options{})

	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("login failed")
	}
	tokenBefore := e.client.Token()

	if e.store.ChangePassword(context.Background(), "nope", "NewSecret99!") {
		t.Error("ChangePassword must fail with the wrong current password")
	}
	status := e.store.Status()
	if !status.Authenticated {
		t.Error("a failed password change must not alter authentication state")
	}
	if status.LastError != msgPasswordRejected {
		t.Errorf("LastError = %q, want %q", status.LastError, msgPasswordRejected)
	}

	if !e.store.ChangePassword(context.Background(), "correctpass", "NewSecret99!") {
		t.Error("ChangePassword must succeed with the right current password")
	}
	if e.client.Token() != tokenBefore {
		t.Error("the token is not rotated on password change")
	}
	if e.store.Status().LastError != "" {
		t.Error("a successful change clears its own error")
	}
}

func TestEndToEndScenario(t *testing.T) {
	e := newEnv(t, Options{})
	base := time.Now()
	e.setClock(base)

	// Empty storage, wrong password first
	if e.store.Login(context.Background(), "admin", "wrongpass") {
		t.Fatal("wrong password must fail")
	}
	if e.store.Status().Authenticated {
		t.Fatal("must stay unauthenticated")
	}

	// Correct login with expires_in 1800
	if !e.store.Login(context.Background(), "admin", "correctpass") {
		t.Fatal("correct password must succeed")
	}
	status := e.store.Status()
	if !status.TokenExpiresAt.Equal(base.Add(1800 * time.Second)) {
		t.Errorf("expiry = %v, want now+1800s", status.TokenExpiresAt)
	}
	if snap, _ := e.state.LoadSnapshot(base); snap == nil {
		t.Fatal("snapshot must be persisted")
	}

	// A later call comes back 401
	e.backend.set(func(f *fakeBackend) { f.meStatus = http.StatusUnauthorized })
	e.store.RefreshUserInfo(context.Background())

	status = e.store.Status()
	if status.Authenticated {
		t.Fatal("401 must end the session")
	}
	if status.LastError != msgSessionExpired {
		t.Errorf("LastError = %q, want expiry message", status.LastError)
	}
	if snap, _ := e.state.LoadSnapshot(base); snap != nil {
		t.Error("snapshot must be cleared")
	}
}
