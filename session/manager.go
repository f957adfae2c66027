package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/evolve-healthtech/evolve-go/api"
	"github.com/evolve-healthtech/evolve-go/credentials"
	"github.com/evolve-healthtech/evolve-go/users"
)

const (
	refreshTimeout      = 15 * time.Second
	logoutNotifyTimeout = 10 * time.Second
)

// Manager owns the canonical Session and is its single writer. Every mutation
// goes through its serialized entry points; no other component reads or
// writes session fields directly. It implements api.SessionHandler so the
// request executor can consult it for tokens and drive refreshes.
type Manager struct {
	lock    sync.Mutex
	session Session

	// generation is bumped on every login and clear. A refresh outcome
	// carrying an older generation belongs to a session that no longer
	// exists and is discarded: logout is authoritative.
	generation uint64

	store       credentials.Store
	client      *api.Client
	coordinator *Coordinator
	monitor     *RenewalMonitor
	nowTime     func() time.Time
}

var _ api.SessionHandler = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithRenewal overrides the background-renewal cadence: how often the access
// token's expiry is evaluated, and how much remaining lifetime triggers a
// proactive refresh.
func WithRenewal(interval, threshold time.Duration) ManagerOption {
	return func(m *Manager) {
		m.monitor.interval = interval
		m.monitor.threshold = threshold
	}
}

// NewManager initializes a Manager with its required dependencies and
// registers it as the client's session handler.
func NewManager(store credentials.Store, client *api.Client, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] credentials store is required")
	}
	if client == nil {
		return nil, errors.New("[NewManager] api client is required")
	}

	manager := &Manager{
		store:       store,
		client:      client,
		coordinator: NewCoordinator(),
		nowTime:     time.Now,
	}
	manager.monitor = newRenewalMonitor(manager)

	for _, opt := range options {
		opt(manager)
	}

	client.SetSessionHandler(manager)
	return manager, nil
}

// Close stops the background renewal monitor. The session itself is left
// untouched.
func (m *Manager) Close() {
	m.monitor.Stop()
}

// CurrentSession returns a copy of the session record.
func (m *Manager) CurrentSession() Session {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.session
}

// CurrentUser returns the logged-in user, or nil when logged out.
func (m *Manager) CurrentUser() *users.User {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.session.User
}

// State reports the session's state-machine position.
func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.session.State()
}

// AccessToken implements api.SessionHandler.
func (m *Manager) AccessToken() string {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.session.AccessToken
}

// Login installs an authenticated session, persists it and starts the
// background renewal monitor. Persistence failure is logged, never returned:
// the in-memory session stays valid for the process lifetime.
func (m *Manager) Login(user *users.User, accessToken, refreshToken string) error {
	if user == nil {
		return errors.New("[Manager.Login] user is required")
	}
	if refreshToken == "" {
		return errors.New("[Manager.Login] refresh token is required")
	}

	m.lock.Lock()
	m.session = Session{User: user, AccessToken: accessToken, RefreshToken: refreshToken}
	m.generation++
	m.lock.Unlock()

	log.Info().Str("user_id", user.ID).Msg("session established")
	m.persist()
	m.monitor.Start()
	return nil
}

// LoginWithPassword exchanges credentials for a session. A 401 here is a
// credential rejection, surfaced as api.ErrUnauthorized without touching any
// existing session state.
func (m *Manager) LoginWithPassword(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	payload, _, err := m.client.Execute(ctx, http.MethodPost, api.RouteAuthLogin, body, false)
	if err != nil {
		return errors.Wrap(err, "[Manager.LoginWithPassword] login request")
	}

	var resp struct {
		User    *users.User `json:"user"`
		Access  string      `json:"access"`
		Refresh string      `json:"refresh"`
	}
	if err := api.Decode(payload, &resp); err != nil {
		return errors.Wrap(err, "[Manager.LoginWithPassword] decode login response")
	}
	if resp.User == nil || resp.Refresh == "" {
		return errors.Wrap(api.ErrInvalidResponse, "[Manager.LoginWithPassword] login response missing user or refresh token")
	}

	return m.Login(resp.User, resp.Access, resp.Refresh)
}

// Logout clears the session locally and then notifies the backend
// asynchronously so the refresh token can be invalidated server-side. The
// notification is best effort; the local session is already gone either way.
// Calling Logout when already logged out is a no-op.
func (m *Manager) Logout() {
	m.lock.Lock()
	refreshToken := m.session.RefreshToken
	m.session = Session{}
	m.generation++
	m.lock.Unlock()

	m.monitor.Stop()
	if err := m.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored credentials on logout")
	}

	if refreshToken == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), logoutNotifyTimeout)
		defer cancel()

		body := map[string]string{"refresh": refreshToken}
		if _, _, err := m.client.Execute(ctx, http.MethodPost, api.RouteAuthLogout, body, false); err != nil {
			log.Debug().Err(err).Msg("server-side logout notification failed")
		}
	}()
}

// HandleSessionExpired implements api.SessionHandler: a definitive
// authorization failure clears the session. Idempotent.
func (m *Manager) HandleSessionExpired() {
	if m.State() == StateLoggedOut {
		return
	}
	log.Info().Msg("session expired, clearing")
	m.lock.Lock()
	generation := m.generation
	m.lock.Unlock()
	m.clearIfCurrent(generation)
}

// RefreshAccessToken obtains a new access token using the stored refresh
// token, collapsing concurrent calls into a single network request. Returns
// whether the refresh succeeded. A definitive rejection of the refresh token
// clears the session; a transient failure leaves it untouched.
func (m *Manager) RefreshAccessToken(ctx context.Context) bool {
	return m.coordinator.Do(ctx, m.performRefresh).Success
}

func (m *Manager) performRefresh() Outcome {
	m.lock.Lock()
	refreshToken := m.session.RefreshToken
	generation := m.generation
	m.lock.Unlock()

	if refreshToken == "" {
		return Outcome{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	body := map[string]string{"refresh": refreshToken}
	payload, _, err := m.client.Execute(ctx, http.MethodPost, api.RouteTokenRefresh, body, false)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			// The refresh token itself is invalid or expired.
			log.Info().Msg("refresh token rejected, clearing session")
			m.clearIfCurrent(generation)
			return Outcome{}
		}
		log.Warn().Err(err).Msg("token refresh failed")
		return Outcome{}
	}

	var resp struct {
		Access  string  `json:"access"`
		Refresh *string `json:"refresh"`
	}
	if err := api.Decode(payload, &resp); err != nil || resp.Access == "" {
		log.Warn().Err(err).Msg("malformed token refresh response")
		return Outcome{}
	}

	out := Outcome{Success: true, AccessToken: resp.Access}
	if resp.Refresh != nil {
		out.RefreshToken = *resp.Refresh
	}
	if !m.applyRefresh(generation, out) {
		// The session was cleared (or replaced) while the refresh was in
		// flight. Logout wins; the new tokens are dropped.
		return Outcome{}
	}
	return out
}

// applyRefresh installs refreshed tokens, provided the session that started
// the refresh still exists. An absent rotated token means the prior refresh
// token stays in force.
func (m *Manager) applyRefresh(generation uint64, out Outcome) bool {
	m.lock.Lock()
	if m.generation != generation || m.session.User == nil {
		m.lock.Unlock()
		log.Debug().Msg("discarding refresh outcome for a cleared session")
		return false
	}
	m.session.AccessToken = out.AccessToken
	if out.RefreshToken != "" {
		m.session.RefreshToken = out.RefreshToken
	}
	m.lock.Unlock()

	m.persist()
	return true
}

// RestoreSession reconciles persisted state at process start. A consistent
// stored session (user + refresh token) is hydrated; if no access token was
// stored, one refresh is attempted eagerly. Inconsistent partial state is
// wiped: it must never be treated as logged in. Returns whether an
// authenticated session is in place afterwards.
func (m *Manager) RestoreSession(ctx context.Context) bool {
	user, accessToken, refreshToken, err := m.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load stored credentials")
		return false
	}
	if user == nil && accessToken == "" && refreshToken == "" {
		return false
	}
	if user == nil || refreshToken == "" {
		log.Warn().Msg("inconsistent stored session, clearing")
		if err := m.store.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear inconsistent credentials")
		}
		return false
	}

	m.lock.Lock()
	m.session = Session{User: user, AccessToken: accessToken, RefreshToken: refreshToken}
	m.generation++
	m.lock.Unlock()

	log.Info().Str("user_id", user.ID).Msg("session restored")
	m.monitor.Start()

	if accessToken == "" {
		m.RefreshAccessToken(ctx)
	}
	return m.State() == StateAuthenticated
}

// FetchUser retrieves the profile from the backend and replaces the stored
// user record. On api.ErrSessionExpired the executor has already cleared the
// session; nothing is duplicated here.
func (m *Manager) FetchUser(ctx context.Context) (*users.User, error) {
	payload, _, err := m.client.Execute(ctx, http.MethodGet, api.RouteUserMe, nil, true)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.FetchUser] fetch profile")
	}

	var user users.User
	if err := api.Decode(payload, &user); err != nil {
		return nil, errors.Wrap(err, "[Manager.FetchUser] decode profile")
	}

	m.setUser(&user)
	return &user, nil
}

// UpdateUser sends the changed profile to the backend and, on success,
// replaces the in-memory and persisted user record with the server's copy.
func (m *Manager) UpdateUser(ctx context.Context, user *users.User) (*users.User, error) {
	if user == nil {
		return nil, errors.New("[Manager.UpdateUser] user is required")
	}

	payload, _, err := m.client.Execute(ctx, http.MethodPatch, api.RouteUserMe, user, true)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.UpdateUser] update profile")
	}

	var updated users.User
	if err := api.Decode(payload, &updated); err != nil {
		return nil, errors.Wrap(err, "[Manager.UpdateUser] decode profile")
	}

	m.setUser(&updated)
	return &updated, nil
}

func (m *Manager) setUser(user *users.User) {
	m.lock.Lock()
	if m.session.User == nil {
		// Session was cleared while the request was in flight.
		m.lock.Unlock()
		return
	}
	m.session.User = user
	m.lock.Unlock()

	m.persist()
}

// clearIfCurrent clears session state, but only if no login or logout has
// happened since generation was observed. Prevents a stale refresh failure
// from clobbering a session that replaced the one it belongs to.
func (m *Manager) clearIfCurrent(generation uint64) {
	m.lock.Lock()
	if m.generation != generation {
		m.lock.Unlock()
		return
	}
	m.session = Session{}
	m.generation++
	m.lock.Unlock()

	m.monitor.Stop()
	if err := m.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored credentials")
	}
}

func (m *Manager) persist() {
	m.lock.Lock()
	session := m.session
	m.lock.Unlock()

	if err := m.store.Save(session.User, session.AccessToken, session.RefreshToken); err != nil {
		// Tolerated inconsistency: the in-memory session stays valid.
		log.Error().Err(err).Msg("failed to persist session credentials")
	}
}
