package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/anansi/internal/client/models"
	"github.com/dmitrijs2005/anansi/internal/common"
	"github.com/dmitrijs2005/anansi/internal/logging"
)

const (
	pathRegister       = "/auth/register"
	pathProfile        = "/auth/me"
	pathCompute        = "/compute"
	pathHealth         = "/health"
	pathAllowList      = "/marketplace/allow-list"
	pathDestroy        = "/destroy"
	maxErrorBodyBytes  = 64 << 10
	msgConnectGeneric  = "Unable to connect to server. Please check your connection."
	msgTimeoutGeneric  = "Request timed out. The server may be slow to respond."
	msgInvalidResponse = "Invalid response from server."
	demoMinDelay       = time.Second
	demoDelaySpread    = 2 * time.Second
)

// Timeouts bounds each operation. A zero field falls back to the default.
type Timeouts struct {
	Register    time.Duration
	Profile     time.Duration
	Compute     time.Duration
	Health      time.Duration
	Marketplace time.Duration
}

// DefaultTimeouts: compute gets longer because jobs run server-side.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Register:    10 * time.Second,
		Profile:     10 * time.Second,
		Compute:     30 * time.Second,
		Health:      5 * time.Second,
		Marketplace: 10 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Register <= 0 {
		t.Register = d.Register
	}
	if t.Profile <= 0 {
		t.Profile = d.Profile
	}
	if t.Compute <= 0 {
		t.Compute = d.Compute
	}
	if t.Health <= 0 {
		t.Health = d.Health
	}
	if t.Marketplace <= 0 {
		t.Marketplace = d.Marketplace
	}
	return t
}

// HTTPClient implements Client and MarketplaceClient over JSON/HTTP.
// It never retries; it is safe for concurrent use.
type HTTPClient struct {
	baseURL        string
	backendBaseURL string
	http           *http.Client
	timeouts       Timeouts
	log            logging.Logger
	demoDelay      func() time.Duration
	now            func() time.Time
}

type Option func(*HTTPClient)

func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.http = h }
}

func WithTimeouts(t Timeouts) Option {
	return func(c *HTTPClient) { c.timeouts = t.withDefaults() }
}

// WithBackendBaseURL points the marketplace calls at a different origin.
// Empty keeps the API base.
func WithBackendBaseURL(u string) Option {
	return func(c *HTTPClient) {
		if u != "" {
			c.backendBaseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

// WithDemoDelay replaces the random 1–3 s pause of demo computes.
func WithDemoDelay(f func() time.Duration) Option {
	return func(c *HTTPClient) { c.demoDelay = f }
}

func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	base := strings.TrimRight(baseURL, "/")
	c := &HTTPClient{
		baseURL:        base,
		backendBaseURL: base,
		http:           &http.Client{},
		timeouts:       DefaultTimeouts(),
		log:            logging.Discard(),
		demoDelay: func() time.Duration {
			return demoMinDelay + time.Duration(rand.Int64N(int64(demoDelaySpread)))
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "api-client")
	return c
}

// operation describes how one endpoint is bounded and how its failures read.
type operation struct {
	name       string
	timeout    time.Duration
	timeoutMsg string
	offlineMsg string
	authErrors bool
	conflicts  bool
	statusMsg  func(status int) string
}

func httpStatusMsg(status int) string { return fmt.Sprintf("HTTP %d", status) }

func (c *HTTPClient) opRegister() operation {
	return operation{
		name:       "register",
		timeout:    c.timeouts.Register,
		timeoutMsg: msgTimeoutGeneric,
		offlineMsg: "Unable to connect to server. Please check your internet connection or try again later.",
		authErrors: true,
		conflicts:  true,
		statusMsg:  httpStatusMsg,
	}
}

func (c *HTTPClient) opProfile() operation {
	return operation{
		name:       "profile",
		timeout:    c.timeouts.Profile,
		timeoutMsg: msgTimeoutGeneric,
		offlineMsg: msgConnectGeneric,
		authErrors: true,
		statusMsg:  httpStatusMsg,
	}
}

func (c *HTTPClient) opCompute() operation {
	return operation{
		name:       "compute",
		timeout:    c.timeouts.Compute,
		timeoutMsg: "Compute request timed out. The operation may be taking longer than expected.",
		offlineMsg: msgConnectGeneric,
		authErrors: true,
		statusMsg:  httpStatusMsg,
	}
}

func (c *HTTPClient) opHealth() operation {
	return operation{
		name:       "health",
		timeout:    c.timeouts.Health,
		timeoutMsg: "Health check timed out.",
		offlineMsg: "Unable to connect to server.",
		statusMsg:  func(status int) string { return fmt.Sprintf("Health check failed: %d", status) },
	}
}

func (c *HTTPClient) opMarketplace(name string) operation {
	return operation{
		name:       name,
		timeout:    c.timeouts.Marketplace,
		timeoutMsg: msgTimeoutGeneric,
		offlineMsg: msgConnectGeneric,
		statusMsg:  func(status int) string { return fmt.Sprintf("Allow-list request failed: %d", status) },
	}
}

// Register creates an account for email and returns the issued key.
func (c *HTTPClient) Register(ctx context.Context, email string) (*models.Registration, error) {
	var out models.Registration
	body := map[string]string{"email": email}
	if err := c.do(ctx, c.opRegister(), http.MethodPost, c.baseURL+pathRegister, "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile validates cred server-side and returns its profile. Demo
// credentials get a synthesized profile without any request.
func (c *HTTPClient) GetProfile(ctx context.Context, cred models.Credential) (*models.UserProfile, error) {
	switch cr := cred.(type) {
	case models.DemoCredential:
		return DemoProfile(cr, rand.Int64N(1000), c.now()), nil
	case models.LiveCredential:
		var out models.UserProfile
		if err := c.do(ctx, c.opProfile(), http.MethodGet, c.baseURL+pathProfile, cr.Key, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("profile: unsupported credential %T", cred)
	}
}

// Compute submits payload. Demo credentials sleep 1–3 s and return a
// synthesized result without any request.
func (c *HTTPClient) Compute(ctx context.Context, cred models.Credential, payload models.ComputePayload) (models.ComputeResult, error) {
	switch cr := cred.(type) {
	case models.DemoCredential:
		return c.demoCompute(ctx)
	case models.LiveCredential:
		var out models.ComputeResult
		if err := c.do(ctx, c.opCompute(), http.MethodPost, c.baseURL+pathCompute, cr.Key, payload, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compute: unsupported credential %T", cred)
	}
}

func (c *HTTPClient) HealthCheck(ctx context.Context) (*models.Health, error) {
	var out models.Health
	if err := c.do(ctx, c.opHealth(), http.MethodGet, c.baseURL+pathHealth, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AllowList asks the backend to allow-list buyerID and returns the change set to poll.
func (c *HTTPClient) AllowList(ctx context.Context, buyerID string, cloud models.Cloud) (string, error) {
	var out struct {
		ChangeSetID string `json:"changeSetId"`
	}
	body := map[string]string{"buyerId": buyerID, "cloud": string(cloud)}
	op := c.opMarketplace("allow-list")
	if err := c.do(ctx, op, http.MethodPost, c.backendBaseURL+pathAllowList, "", body, &out); err != nil {
		return "", err
	}
	if out.ChangeSetID == "" {
		return "", &APIError{Op: op.name, Status: http.StatusOK, Message: "Allow-list response missing changeSetId", Kind: ErrServerRejected}
	}
	return out.ChangeSetID, nil
}

func (c *HTTPClient) AllowListStatus(ctx context.Context, changeSetID string) (*models.AllowListStatus, error) {
	var out models.AllowListStatus
	u := c.backendBaseURL + pathAllowList + "/" + url.PathEscape(changeSetID)
	if err := c.do(ctx, c.opMarketplace("allow-list-status"), http.MethodGet, u, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Destroy tears down the marketplace deployment. The response body is ignored.
func (c *HTTPClient) Destroy(ctx context.Context) error {
	return c.do(ctx, c.opMarketplace("destroy"), http.MethodPost, c.backendBaseURL+pathDestroy, "", nil, nil)
}

// DemoProfile is the fixed profile reported for demo credentials.
func DemoProfile(cred models.DemoCredential, id int64, now time.Time) *models.UserProfile {
	return &models.UserProfile{
		ID:        id,
		Email:     common.DemoEmail,
		APIKey:    cred.Key,
		CreatedAt: now.UTC(),
		Active:    true,
	}
}

func (c *HTTPClient) demoCompute(ctx context.Context) (models.ComputeResult, error) {
	t := time.NewTimer(c.demoDelay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("compute: %w", ctx.Err())
	case <-t.C:
	}

	hash, err := common.MakeRandHexString(4)
	if err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}
	return models.ComputeResult{
		"job_id": fmt.Sprintf("job_%d", c.now().UnixMilli()),
		"result": map[string]any{
			"output":           "Demo computation completed successfully",
			"computation_time": rand.Float64()*5 + 1,
			"verified":         true,
		},
		"cost_usd": rand.Float64() * 0.1,
		"metadata": map[string]any{"cloud": "demo-cloud", "region": "us-west-1"},
		"proof":    map[string]any{"verified": true, "hash": "0x" + hash},
	}, nil
}

// do sends one JSON request bounded by op.timeout and decodes a 2xx body into out.
func (c *HTTPClient) do(ctx context.Context, op operation, method, rawURL, bearer string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, op.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op.name, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+bearer)
	}

	c.log.Debug(ctx, "request", "op", op.name, "method", method, "url", rawURL)
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, op, err)
	}
	defer resp.Body.Close()
	c.log.Debug(ctx, "response", "op", op.name, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(ctx, op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return c.transportError(ctx, op, err)
		}
		return &APIError{Op: op.name, Status: resp.StatusCode, Message: msgInvalidResponse, Kind: ErrServerRejected, Err: err}
	}
	return nil
}

func (c *HTTPClient) transportError(ctx context.Context, op operation, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.log.Warn(ctx, "request timed out", "op", op.name, "timeout", op.timeout)
		return &APIError{Op: op.name, Message: op.timeoutMsg, Kind: ErrTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op.name, err)
	default:
		c.log.Warn(ctx, "request failed", "op", op.name, "error", err)
		return &APIError{Op: op.name, Message: op.offlineMsg, Kind: ErrUnavailable, Err: err}
	}
}

// statusError classifies a non-2xx response. The message comes from the
// JSON body ("message", then "error") or falls back to op.statusMsg.
func (c *HTTPClient) statusError(ctx context.Context, op operation, resp *http.Response) error {
	msg := op.statusMsg(resp.StatusCode)
	if m, ok := decodeErrorMessage(io.LimitReader(resp.Body, maxErrorBodyBytes)); ok {
		msg = m
	} else {
		c.log.Debug(ctx, "could not parse error response as JSON", "op", op.name, "status", resp.StatusCode)
	}

	kind := ErrServerRejected
	lower := strings.ToLower(msg)
	switch {
	case op.conflicts && (resp.StatusCode == http.StatusConflict || strings.Contains(lower, "already registered")):
		kind = ErrConflict
	case op.authErrors && (resp.StatusCode == http.StatusUnauthorized ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid")):
		kind = ErrUnauthorized
	}

	c.log.Warn(ctx, "request rejected", "op", op.name, "status", resp.StatusCode, "message", msg)
	return &APIError{Op: op.name, Status: resp.StatusCode, Message: msg, Kind: kind}
}

// decodeErrorMessage is a fallible parse of an error body; ok is false for
// non-JSON bodies and bodies without a string message.
func decodeErrorMessage(r io.Reader) (string, bool) {
	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return "", false
	}
	for _, k := range []string{"message", "error"} {
		if s, ok := body[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
