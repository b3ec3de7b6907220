// Package services contains the application services of the Anansi client.
// This file defines the session manager: the one object the CLI talks to
// for account, compute and cloud-login operations.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/anansi/internal/client/client"
	"github.com/dmitrijs2005/anansi/internal/client/cloudlogin"
	"github.com/dmitrijs2005/anansi/internal/client/models"
	"github.com/dmitrijs2005/anansi/internal/common"
	"github.com/dmitrijs2005/anansi/internal/logging"
	"github.com/google/uuid"
)

// ErrNotAuthenticated is returned by Compute when no session is active.
var ErrNotAuthenticated = errors.New("Not authenticated")

const (
	msgAlreadyRegistered = "Email already registered. Try signing in instead."
	msgInvalidAPIKey     = "Invalid API key. Please check and try again."
	msgInvalidEmail      = "Please enter a valid email address."
	msgEmptyAPIKey       = "Please enter your API key."
	msgDemoFailed        = "Failed to create demo account"
	msgSaveFailed        = "Failed to save session"
)

// CredentialStore persists the session between runs.
type CredentialStore interface {
	APIKey(ctx context.Context) (string, error)
	UserProfile(ctx context.Context) (*models.UserProfile, error)
	SaveSession(ctx context.Context, apiKey string, p *models.UserProfile) error
	Clear(ctx context.Context) error
}

// CloudLogin is the marketplace login flow.
type CloudLogin interface {
	Start(ctx context.Context, cloud models.Cloud) (cloudlogin.Result, error)
	State() models.CloudState
	Reset()
	Disconnect(ctx context.Context) error
}

// AuthResult is what Register, CreateDemoAccount and Login report. Error
// is a message ready for display; APIKey is set on successful Register and
// CreateDemoAccount.
type AuthResult struct {
	Success bool
	Error   string
	APIKey  string
}

// SessionState is a snapshot of the authentication state.
type SessionState struct {
	Authenticated bool
	APIKey        string
	Profile       *models.UserProfile
}

// SessionManager composes the credential store, the remote client and the
// cloud login. It is safe for concurrent use; concurrent computes land in
// the history in completion order.
type SessionManager struct {
	store CredentialStore
	api   client.Client
	cloud CloudLogin
	log   logging.Logger
	now   func() time.Time

	mu        sync.Mutex
	state     SessionState
	history   models.History
	listeners []func(SessionState)
}

// NewSessionManager restores a cached session, if any. A cached key and
// profile authenticate immediately without contacting the server; a cache
// that cannot be read is wiped and the session starts signed out.
func NewSessionManager(ctx context.Context, store CredentialStore, api client.Client, cloud CloudLogin, log logging.Logger) *SessionManager {
	m := &SessionManager{
		store: store,
		api:   api,
		cloud: cloud,
		log:   log.With("component", "session"),
		now:   time.Now,
	}
	m.restore(ctx)
	return m
}

func (m *SessionManager) restore(ctx context.Context) {
	key, profile, err := m.loadCached(ctx)
	if err != nil {
		m.log.Warn(ctx, "discarding unreadable session cache", "error", err)
		if err := m.store.Clear(ctx); err != nil {
			m.log.Error(ctx, "failed to clear session cache", "error", err)
		}
		return
	}
	if key == "" || profile == nil {
		return
	}
	m.state = SessionState{Authenticated: true, APIKey: key, Profile: profile}
	m.log.Info(ctx, "restored session", "user_id", profile.ID)
}

func (m *SessionManager) loadCached(ctx context.Context) (string, *models.UserProfile, error) {
	key, err := m.store.APIKey(ctx)
	if err != nil {
		return "", nil, err
	}
	profile, err := m.store.UserProfile(ctx)
	if err != nil {
		return "", nil, err
	}
	return key, profile, nil
}

// State returns a snapshot of the session.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers fn to be called after every session change.
func (m *SessionManager) OnChange(fn func(SessionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Register creates an account for email and signs in with the new key.
func (m *SessionManager) Register(ctx context.Context, email string) AuthResult {
	email, err := common.NormalizeEmail(email)
	if err != nil {
		return AuthResult{Error: msgInvalidEmail}
	}

	m.log.Info(ctx, "registering", "email", email)
	reg, err := m.api.Register(ctx, email)
	if err != nil {
		m.log.Warn(ctx, "registration failed", "error", err)
		if errors.Is(err, client.ErrConflict) {
			return AuthResult{Error: msgAlreadyRegistered}
		}
		return AuthResult{Error: err.Error()}
	}

	profile := &models.UserProfile{
		ID:        reg.UserID,
		Email:     email,
		APIKey:    reg.APIKey,
		CreatedAt: m.now().UTC(),
		Active:    true,
	}
	if err := m.authenticate(ctx, reg.APIKey, profile); err != nil {
		return AuthResult{Error: msgSaveFailed}
	}
	return AuthResult{Success: true, APIKey: reg.APIKey}
}

// CreateDemoAccount signs in with a locally generated demo key. It never
// touches the network.
func (m *SessionManager) CreateDemoAccount(ctx context.Context) AuthResult {
	cred, err := models.NewDemoCredential()
	if err != nil {
		m.log.Error(ctx, "demo key generation failed", "error", err)
		return AuthResult{Error: msgDemoFailed}
	}
	profile := &models.UserProfile{
		ID:        rand.Int64N(1000),
		Email:     common.DemoEmail,
		APIKey:    cred.Key,
		CreatedAt: m.now().UTC(),
		Active:    true,
	}
	if err := m.authenticate(ctx, cred.Key, profile); err != nil {
		return AuthResult{Error: msgDemoFailed}
	}
	return AuthResult{Success: true, APIKey: cred.Key}
}

// Login validates apiKey against the server (demo keys are accepted
// locally) and signs in with it.
func (m *SessionManager) Login(ctx context.Context, apiKey string) AuthResult {
	if apiKey == "" {
		return AuthResult{Error: msgEmptyAPIKey}
	}

	profile, err := m.api.GetProfile(ctx, models.ParseCredential(apiKey))
	if err != nil {
		m.log.Warn(ctx, "login failed", "error", err)
		if errors.Is(err, client.ErrUnauthorized) {
			return AuthResult{Error: msgInvalidAPIKey}
		}
		return AuthResult{Error: err.Error()}
	}
	if err := m.authenticate(ctx, apiKey, profile); err != nil {
		return AuthResult{Error: msgSaveFailed}
	}
	return AuthResult{Success: true}
}

// authenticate persists the session and then switches the in-memory state.
// Compute history starts empty for every new session.
func (m *SessionManager) authenticate(ctx context.Context, apiKey string, profile *models.UserProfile) error {
	if err := m.store.SaveSession(ctx, apiKey, profile); err != nil {
		m.log.Error(ctx, "failed to persist session", "error", err)
		return err
	}
	m.setState(SessionState{Authenticated: true, APIKey: apiKey, Profile: profile})
	m.log.Info(ctx, "authenticated", "user_id", profile.ID)
	return nil
}

// Logout forgets the session locally and resets the cloud login. A storage
// failure is logged and reported, but the in-memory session is gone either way.
func (m *SessionManager) Logout(ctx context.Context) error {
	err := m.store.Clear(ctx)
	if err != nil {
		m.log.Error(ctx, "failed to clear stored session", "error", err)
	}
	m.setState(SessionState{})
	if m.cloud != nil {
		m.cloud.Reset()
	}
	m.log.Info(ctx, "logged out")
	return err
}

func (m *SessionManager) setState(s SessionState) {
	m.mu.Lock()
	m.state = s
	m.history.Reset()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// Compute runs payload under the current session. Every attempt that
// reaches the remote client, successful or not, is recorded in the history
// before Compute returns; the original error is returned unchanged.
func (m *SessionManager) Compute(ctx context.Context, payload models.ComputePayload) (models.ComputeResult, error) {
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()
	if !st.Authenticated || st.APIKey == "" {
		return nil, ErrNotAuthenticated
	}

	result, err := m.api.Compute(ctx, models.ParseCredential(st.APIKey), payload)
	if err != nil {
		m.record(st.APIKey, models.ComputeRun{
			RunID:     "failed_" + uuid.NewString(),
			Function:  payload.Function(),
			Cloud:     "unknown",
			Timestamp: m.now().UTC(),
			Status:    models.RunFailed,
			Result:    map[string]any{"error": err.Error()},
		})
		m.log.Warn(ctx, "compute failed", "fn", payload.Function(), "error", err)
		return nil, err
	}

	run := models.ComputeRun{
		RunID:     result.JobID(),
		Function:  payload.Function(),
		Cloud:     result.Cloud(),
		CostUSD:   result.CostUSD(),
		Timestamp: m.now().UTC(),
		Status:    models.RunCompleted,
		Result:    result,
	}
	if run.RunID == "" {
		run.RunID = "run_" + uuid.NewString()
	}
	if result.Failed() {
		run.Status = models.RunFailed
	}
	m.record(st.APIKey, run)
	m.log.Info(ctx, "compute finished", "run_id", run.RunID, "status", run.Status, "cost_usd", run.CostUSD)
	return result, nil
}

// record pushes run unless the session it ran under has since ended.
func (m *SessionManager) record(apiKey string, run models.ComputeRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.APIKey != apiKey {
		return
	}
	m.history.Push(run)
}

// History returns the recent compute runs, newest first.
func (m *SessionManager) History() []models.ComputeRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Runs()
}

func (m *SessionManager) HistorySummary() models.HistorySummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Summary()
}

// HealthCheck proxies the server health probe.
func (m *SessionManager) HealthCheck(ctx context.Context) (*models.Health, error) {
	return m.api.HealthCheck(ctx)
}

// CloudLogin starts the marketplace login for cloud and returns once the
// buyer is allow-listed. Readiness is reported through CloudState.
func (m *SessionManager) CloudLogin(ctx context.Context, cloud models.Cloud) (cloudlogin.Result, error) {
	if m.cloud == nil {
		return cloudlogin.Result{}, fmt.Errorf("cloud login: %w", cloudlogin.ErrMisconfigured)
	}
	return m.cloud.Start(ctx, cloud)
}

// Disconnect tears the marketplace deployment down. The cloud state is idle
// afterwards whatever the backend answered.
func (m *SessionManager) Disconnect(ctx context.Context) error {
	if m.cloud == nil {
		return nil
	}
	return m.cloud.Disconnect(ctx)
}

func (m *SessionManager) CloudState() models.CloudState {
	if m.cloud == nil {
		return models.CloudState{UIState: models.UIStateIdle}
	}
	return m.cloud.State()
}
