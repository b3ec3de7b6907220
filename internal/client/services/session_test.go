package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/anansi/internal/client/client"
	"github.com/dmitrijs2005/anansi/internal/client/cloudlogin"
	"github.com/dmitrijs2005/anansi/internal/client/credstore"
	"github.com/dmitrijs2005/anansi/internal/client/models"
	"github.com/dmitrijs2005/anansi/internal/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- helpers ----

func newStore(t *testing.T) *credstore.Store {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return credstore.New(db, logging.Discard())
}

// fakeClient implements client.Client and counts every call.
type fakeClient struct {
	calls atomic.Int32

	registerRet *models.Registration
	registerErr error
	profileRet  *models.UserProfile
	profileErr  error
	computeRet  models.ComputeResult
	computeErr  error

	lastCred models.Credential
}

func (f *fakeClient) Register(_ context.Context, _ string) (*models.Registration, error) {
	f.calls.Add(1)
	return f.registerRet, f.registerErr
}

func (f *fakeClient) GetProfile(_ context.Context, cred models.Credential) (*models.UserProfile, error) {
	f.calls.Add(1)
	f.lastCred = cred
	return f.profileRet, f.profileErr
}

func (f *fakeClient) Compute(_ context.Context, cred models.Credential, _ models.ComputePayload) (models.ComputeResult, error) {
	f.calls.Add(1)
	f.lastCred = cred
	return f.computeRet, f.computeErr
}

func (f *fakeClient) HealthCheck(context.Context) (*models.Health, error) {
	f.calls.Add(1)
	return &models.Health{Status: "ok"}, nil
}

type fakeCloud struct {
	resets      atomic.Int32
	disconnects atomic.Int32
	startErr    error
}

func (c *fakeCloud) Start(context.Context, models.Cloud) (cloudlogin.Result, error) {
	return cloudlogin.Result{ChangeSetID: "cs-1"}, c.startErr
}
func (c *fakeCloud) State() models.CloudState { return models.CloudState{UIState: models.UIStateIdle} }
func (c *fakeCloud) Reset()                   { c.resets.Add(1) }
func (c *fakeCloud) Disconnect(context.Context) error {
	c.disconnects.Add(1)
	return nil
}

// brokenStore fails reads with err and records Clear calls.
type brokenStore struct {
	err     error
	cleared atomic.Bool
}

func (s *brokenStore) APIKey(context.Context) (string, error) { return "ak_cached_123", nil }
func (s *brokenStore) UserProfile(context.Context) (*models.UserProfile, error) {
	return nil, s.err
}
func (s *brokenStore) SaveSession(context.Context, string, *models.UserProfile) error { return s.err }
func (s *brokenStore) Clear(context.Context) error {
	s.cleared.Store(true)
	return nil
}

func newManager(t *testing.T, store CredentialStore, api client.Client, cloud CloudLogin) *SessionManager {
	t.Helper()
	m := NewSessionManager(context.Background(), store, api, cloud, logging.Discard())
	m.now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }
	return m
}

// ---- restore ----

func TestRestore_CachedSessionWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	profile := &models.UserProfile{ID: 7, Email: "a@b.com", APIKey: "ak_123456789", Active: true}
	require.NoError(t, store.SaveSession(ctx, "ak_123456789", profile))

	api := &fakeClient{}
	m := newManager(t, store, api, nil)

	st := m.State()
	assert.True(t, st.Authenticated)
	assert.Equal(t, "ak_123456789", st.APIKey)
	if diff := cmp.Diff(profile, st.Profile); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, m.History())
	assert.Zero(t, api.calls.Load())
}

func TestRestore_CorruptProfileClearsStorage(t *testing.T) {
	ctx := context.Background()
	// bypass the store encoder to plant invalid JSON
	db, err := client.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	corrupt := credstore.New(db, logging.Discard())
	require.NoError(t, corrupt.SaveAPIKey(ctx, "ak_123456789"))
	_, err = db.ExecContext(ctx,
		`INSERT INTO metadata(namespace, key, value) VALUES (?, ?, ?)`,
		credstore.Namespace, credstore.KeyUserProfile, []byte("{not json"))
	require.NoError(t, err)

	m := newManager(t, corrupt, &fakeClient{}, nil)
	assert.Equal(t, SessionState{}, m.State())

	key, err := corrupt.APIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
	p, err := corrupt.UserProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRestore_StorageErrorClears(t *testing.T) {
	store := &brokenStore{err: errors.New("disk I/O error")}
	m := newManager(t, store, &fakeClient{}, nil)
	assert.False(t, m.State().Authenticated)
	assert.True(t, store.cleared.Load())
}

func TestRestore_KeyWithoutProfile(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.SaveAPIKey(ctx, "ak_123456789"))

	m := newManager(t, store, &fakeClient{}, nil)
	assert.False(t, m.State().Authenticated)
}

// ---- register / demo / login ----

func TestRegister_EndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/auth/register", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"api_key": "ak_123456789", "user_id": 7})
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store := newStore(t)
	m := newManager(t, store, client.NewHTTPClient(srv.URL), nil)

	res := m.Register(ctx, "  a@b.com ")
	assert.Equal(t, AuthResult{Success: true, APIKey: "ak_123456789"}, res)

	st := m.State()
	assert.True(t, st.Authenticated)
	assert.Equal(t, "ak_123456789", st.APIKey)
	require.NotNil(t, st.Profile)
	assert.Equal(t, "a@b.com", st.Profile.Email)
	assert.EqualValues(t, 7, st.Profile.ID)
	assert.True(t, st.Profile.Active)

	key, err := store.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ak_123456789", key)
	p, err := store.UserProfile(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(st.Profile, p); diff != "" {
		t.Fatalf("stored profile mismatch (-want +got):\n%s", diff)
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestRegister_Failures(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		err     error
		want    string
		network int32
	}{
		{
			name:    "conflict",
			email:   "a@b.com",
			err:     &client.APIError{Op: "register", Status: 409, Message: "Email is taken", Kind: client.ErrConflict},
			want:    "Email already registered. Try signing in instead.",
			network: 1,
		},
		{
			name:    "unavailable",
			email:   "a@b.com",
			err:     &client.APIError{Op: "register", Message: "Unable to connect to server. Please check your internet connection or try again later.", Kind: client.ErrUnavailable},
			want:    "Unable to connect to server. Please check your internet connection or try again later.",
			network: 1,
		},
		{
			name:  "invalid email",
			email: "not-an-email",
			want:  "Please enter a valid email address.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeClient{registerErr: tt.err}
			store := newStore(t)
			m := newManager(t, store, api, nil)

			res := m.Register(context.Background(), tt.email)
			assert.Equal(t, AuthResult{Error: tt.want}, res)
			assert.False(t, m.State().Authenticated)
			assert.Equal(t, tt.network, api.calls.Load())

			key, err := store.APIKey(context.Background())
			require.NoError(t, err)
			assert.Empty(t, key)
		})
	}
}

func TestRegister_SaveFailure(t *testing.T) {
	api := &fakeClient{registerRet: &models.Registration{APIKey: "ak_1", UserID: 1}}
	store := &brokenStore{err: errors.New("disk full")}
	m := newManager(t, store, api, nil)

	res := m.Register(context.Background(), "a@b.com")
	assert.False(t, res.Success)
	assert.False(t, m.State().Authenticated)
}

func TestCreateDemoAccount(t *testing.T) {
	ctx := context.Background()
	api := &fakeClient{}
	store := newStore(t)
	m := newManager(t, store, api, nil)

	res := m.CreateDemoAccount(ctx)
	require.True(t, res.Success)
	assert.Regexp(t, `^ak_demo_[0-9a-z]{13}$`, res.APIKey)

	st := m.State()
	assert.True(t, st.Authenticated)
	assert.Equal(t, "demo@anansi.dev", st.Profile.Email)
	assert.GreaterOrEqual(t, st.Profile.ID, int64(0))
	assert.Less(t, st.Profile.ID, int64(1000))
	assert.Zero(t, api.calls.Load())

	key, err := store.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.APIKey, key)
}

func TestLogin(t *testing.T) {
	profile := &models.UserProfile{ID: 3, Email: "c@d.com", APIKey: "ak_live_abcdef", Active: true}
	tests := []struct {
		name     string
		key      string
		api      *fakeClient
		want     AuthResult
		wantCred models.Credential
	}{
		{
			name:     "live key",
			key:      "ak_live_abcdef",
			api:      &fakeClient{profileRet: profile},
			want:     AuthResult{Success: true},
			wantCred: models.LiveCredential{Key: "ak_live_abcdef"},
		},
		{
			name:     "demo key is classified before the client",
			key:      "ak_demo_0123456789abc",
			api:      &fakeClient{profileRet: profile},
			want:     AuthResult{Success: true},
			wantCred: models.DemoCredential{Key: "ak_demo_0123456789abc"},
		},
		{
			name: "unauthorized",
			key:  "ak_bad",
			api: &fakeClient{profileErr: &client.APIError{
				Op: "profile", Status: 401, Message: "HTTP 401", Kind: client.ErrUnauthorized,
			}},
			want:     AuthResult{Error: "Invalid API key. Please check and try again."},
			wantCred: models.LiveCredential{Key: "ak_bad"},
		},
		{
			name: "timeout passes through",
			key:  "ak_slow",
			api: &fakeClient{profileErr: &client.APIError{
				Op: "profile", Message: "Request timed out. The server may be slow to respond.", Kind: client.ErrTimeout,
			}},
			want:     AuthResult{Error: "Request timed out. The server may be slow to respond."},
			wantCred: models.LiveCredential{Key: "ak_slow"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, newStore(t), tt.api, nil)
			got := m.Login(context.Background(), tt.key)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCred, tt.api.lastCred)
			assert.Equal(t, tt.want.Success, m.State().Authenticated)
		})
	}
}

func TestLogin_EmptyKey(t *testing.T) {
	api := &fakeClient{}
	m := newManager(t, newStore(t), api, nil)
	assert.False(t, m.Login(context.Background(), "").Success)
	assert.Zero(t, api.calls.Load())
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	cloud := &fakeCloud{}
	m := newManager(t, store, &fakeClient{computeRet: models.ComputeResult{"job_id": "j1"}}, cloud)

	var seen []SessionState
	m.OnChange(func(s SessionState) { seen = append(seen, s) })

	require.True(t, m.CreateDemoAccount(ctx).Success)
	_, err := m.Compute(ctx, models.ComputePayload{"fn": "sum"})
	require.NoError(t, err)
	require.Len(t, m.History(), 1)

	require.NoError(t, m.Logout(ctx))
	assert.Equal(t, SessionState{}, m.State())
	assert.Empty(t, m.History())
	assert.EqualValues(t, 1, cloud.resets.Load())
	key, err := store.APIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Authenticated)
	assert.False(t, seen[1].Authenticated)
}

// ---- compute ----

func TestCompute_NotAuthenticated(t *testing.T) {
	api := &fakeClient{}
	m := newManager(t, newStore(t), api, nil)

	_, err := m.Compute(context.Background(), models.ComputePayload{"fn": "sum"})
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, api.calls.Load())
	assert.Empty(t, m.History())
}

func TestCompute_RecordsSuccess(t *testing.T) {
	ctx := context.Background()
	result := models.ComputeResult{
		"job_id":   "job_42",
		"cost_usd": 0.25,
		"metadata": map[string]any{"cloud": "aws"},
	}
	api := &fakeClient{profileRet: &models.UserProfile{ID: 1}, computeRet: result}
	m := newManager(t, newStore(t), api, nil)
	require.True(t, m.Login(ctx, "ak_live_1").Success)

	got, err := m.Compute(ctx, models.ComputePayload{"fn": "matmul"})
	require.NoError(t, err)
	assert.Equal(t, result, got)
	assert.Equal(t, models.LiveCredential{Key: "ak_live_1"}, api.lastCred)

	runs := m.History()
	require.Len(t, runs, 1)
	want := models.ComputeRun{
		RunID:     "job_42",
		Function:  "matmul",
		Cloud:     "aws",
		CostUSD:   0.25,
		Timestamp: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		Status:    models.RunCompleted,
		Result:    result,
	}
	if diff := cmp.Diff(want, runs[0]); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_ResultWithErrorIsFailedRun(t *testing.T) {
	ctx := context.Background()
	api := &fakeClient{profileRet: &models.UserProfile{ID: 1}, computeRet: models.ComputeResult{"error": "bad input"}}
	m := newManager(t, newStore(t), api, nil)
	require.True(t, m.Login(ctx, "ak_live_1").Success)

	_, err := m.Compute(ctx, models.ComputePayload{"fn": "sum"})
	require.NoError(t, err)

	runs := m.History()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	assert.Regexp(t, `^run_`, runs[0].RunID)
	assert.Equal(t, "unknown", runs[0].Cloud)
}

func TestCompute_FailureIsRecordedAndReturned(t *testing.T) {
	ctx := context.Background()
	apiErr := &client.APIError{
		Op: "compute", Message: "Compute request timed out. The operation may be taking longer than expected.", Kind: client.ErrTimeout,
	}
	api := &fakeClient{profileRet: &models.UserProfile{ID: 1}, computeErr: apiErr}
	m := newManager(t, newStore(t), api, nil)
	require.True(t, m.Login(ctx, "ak_live_1").Success)

	_, err := m.Compute(ctx, models.ComputePayload{"fn": "sum"})
	require.ErrorIs(t, err, client.ErrTimeout)
	assert.Same(t, apiErr, err)

	runs := m.History()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	assert.Equal(t, "sum", runs[0].Function)
	assert.Equal(t, "unknown", runs[0].Cloud)
	assert.Zero(t, runs[0].CostUSD)
	assert.Regexp(t, `^failed_`, runs[0].RunID)
	assert.Equal(t, map[string]any{"error": apiErr.Message}, runs[0].Result)
	assert.Equal(t, models.HistorySummary{Failed: 1}, m.HistorySummary())
}

func TestCompute_HistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	api := &fakeClient{profileRet: &models.UserProfile{ID: 1}}
	m := newManager(t, newStore(t), api, nil)
	require.True(t, m.Login(ctx, "ak_live_1").Success)

	for i := 0; i < 25; i++ {
		api.computeRet = models.ComputeResult{"job_id": "job_" + string(rune('a'+i)), "cost_usd": 0.01}
		_, err := m.Compute(ctx, models.ComputePayload{"fn": "sum"})
		require.NoError(t, err)
	}

	runs := m.History()
	require.Len(t, runs, models.HistoryCapacity)
	assert.Equal(t, "job_"+string(rune('a'+24)), runs[0].RunID)
	assert.Equal(t, "job_"+string(rune('a'+15)), runs[len(runs)-1].RunID)
	assert.Equal(t, models.HistoryCapacity, m.HistorySummary().Completed)
	assert.InDelta(t, 0.1, m.HistorySummary().TotalCostUSD, 1e-9)
}

func TestCompute_DemoKeyNeverHitsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	api := client.NewHTTPClient(srv.URL, client.WithDemoDelay(func() time.Duration { return time.Millisecond }))
	m := newManager(t, newStore(t), api, nil)
	res := m.CreateDemoAccount(ctx)
	require.True(t, res.Success)
	require.True(t, m.Login(ctx, res.APIKey).Success)

	out, err := m.Compute(ctx, models.ComputePayload{"fn": "sum"})
	require.NoError(t, err)
	assert.Equal(t, "demo-cloud", out.Cloud())
	require.Len(t, m.History(), 1)
	assert.Equal(t, "demo-cloud", m.History()[0].Cloud)
	assert.Zero(t, hits.Load())
}

func TestCompute_Concurrent(t *testing.T) {
	ctx := context.Background()
	api := &fakeClient{profileRet: &models.UserProfile{ID: 1}, computeRet: models.ComputeResult{"job_id": "j"}}
	m := newManager(t, newStore(t), api, nil)
	require.True(t, m.Login(ctx, "ak_live_1").Success)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Compute(ctx, models.ComputePayload{"fn": "sum"})
		}()
	}
	wg.Wait()
	assert.Len(t, m.History(), 8)
}

// ---- cloud delegation ----

func TestCloudDelegation(t *testing.T) {
	ctx := context.Background()
	cloud := &fakeCloud{}
	m := newManager(t, newStore(t), &fakeClient{}, cloud)

	res, err := m.CloudLogin(ctx, models.CloudAWS)
	require.NoError(t, err)
	assert.Equal(t, "cs-1", res.ChangeSetID)
	require.NoError(t, m.Disconnect(ctx))
	assert.EqualValues(t, 1, cloud.disconnects.Load())
	assert.Equal(t, models.UIStateIdle, m.CloudState().UIState)

	h, err := m.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
}

func TestCloudLogin_WithoutHandshake(t *testing.T) {
	m := newManager(t, newStore(t), &fakeClient{}, nil)
	_, err := m.CloudLogin(context.Background(), models.CloudAWS)
	require.ErrorIs(t, err, cloudlogin.ErrMisconfigured)
	assert.Equal(t, models.UIStateIdle, m.CloudState().UIState)
}
