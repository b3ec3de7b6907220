package cloudlogin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/anansi/internal/client/models"
	"github.com/dmitrijs2005/anansi/internal/logging"
)

// MarketplaceAPI is the backend surface the handshake drives.
type MarketplaceAPI interface {
	AllowList(ctx context.Context, buyerID string, cloud models.Cloud) (string, error)
	AllowListStatus(ctx context.Context, changeSetID string) (*models.AllowListStatus, error)
	Destroy(ctx context.Context) error
}

// Config tunes a Handshake. Zero durations take the defaults.
type Config struct {
	ClientIDs ClientIDs
	// Origin is the scheme://host:port the login window reports back from.
	Origin              string
	ClosedCheckInterval time.Duration
	PollInterval        time.Duration
	Timeout             time.Duration
}

const (
	DefaultClosedCheckInterval = time.Second
	DefaultPollInterval        = 10 * time.Second
	DefaultTimeout             = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.ClosedCheckInterval <= 0 {
		c.ClosedCheckInterval = DefaultClosedCheckInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result is returned by Start once the buyer is allow-listed. Polling for
// readiness continues in the background.
type Result struct {
	ChangeSetID string
}

// Handshake drives one cloud-login attempt at a time through
// idle → waiting → deploy. Every timer, listener and goroutine of an
// attempt hangs off one attempt context; any terminal transition cancels it.
type Handshake struct {
	cfg    Config
	api    MarketplaceAPI
	opener Opener
	inbox  *Inbox
	log    logging.Logger

	mu        sync.Mutex
	state     models.CloudState
	attempt   uint64
	cancel    context.CancelFunc
	listeners []func(models.CloudState)

	wg sync.WaitGroup
}

func New(cfg Config, api MarketplaceAPI, opener Opener, inbox *Inbox, log logging.Logger) *Handshake {
	return &Handshake{
		cfg:    cfg.withDefaults(),
		api:    api,
		opener: opener,
		inbox:  inbox,
		log:    log.With("component", "cloudlogin"),
		state:  models.CloudState{UIState: models.UIStateIdle},
	}
}

// State returns a snapshot.
func (h *Handshake) State() models.CloudState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// OnChange registers fn to receive every state transition. fn runs on the
// goroutine that caused the transition and must not block.
func (h *Handshake) OnChange(fn func(models.CloudState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Start runs the login window and the allow-list request, then leaves the
// status poll running in the background. On any error the state is back
// to idle when Start returns.
func (h *Handshake) Start(ctx context.Context, cloud models.Cloud) (Result, error) {
	clientID := h.cfg.ClientIDs.For(cloud)
	authURL, err := AuthorizationURL(cloud, clientID, h.cfg.Origin)
	if err != nil {
		return Result{}, err
	}

	h.mu.Lock()
	if h.state.UIState != models.UIStateIdle {
		h.mu.Unlock()
		return Result{}, ErrInProgress
	}
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.Timeout)
	h.attempt++
	id := h.attempt
	h.cancel = cancel
	waiting := models.CloudState{UIState: models.UIStateWaiting, Cloud: cloud}
	listeners := h.setStateLocked(waiting)
	h.mu.Unlock()
	notify(listeners, waiting)

	log := h.log.With("cloud", cloud, "attempt", id)
	log.Info(ctx, "starting cloud login")

	buyerID, err := h.awaitBuyer(ctx, attemptCtx, authURL)
	if err != nil {
		h.finish(id, models.CloudState{UIState: models.UIStateIdle})
		log.Warn(ctx, "cloud login failed", "error", err)
		return Result{}, err
	}
	log.Info(ctx, "got buyer id", "buyer_id", buyerID)

	changeSetID, err := h.api.AllowList(attemptCtx, buyerID, cloud)
	if err != nil {
		h.finish(id, models.CloudState{UIState: models.UIStateIdle})
		log.Warn(ctx, "allow-list request failed", "error", err)
		return Result{}, err
	}
	log.Info(ctx, "got change set", "change_set_id", changeSetID)

	h.mu.Lock()
	if h.attempt != id || h.cancel == nil {
		h.mu.Unlock()
		return Result{}, ErrCancelled
	}
	waiting = models.CloudState{UIState: models.UIStateWaiting, Cloud: cloud, ChangeSetID: changeSetID}
	listeners = h.setStateLocked(waiting)
	h.wg.Add(1)
	h.mu.Unlock()
	notify(listeners, waiting)

	go h.poll(attemptCtx, id, cloud, changeSetID, log)

	return Result{ChangeSetID: changeSetID}, nil
}

// awaitBuyer opens the login window and waits for the first same-origin
// message, the window closing, the attempt deadline or ctx, whichever
// comes first.
func (h *Handshake) awaitBuyer(ctx, attemptCtx context.Context, authURL string) (string, error) {
	msgs := make(chan Message, 1)
	unsubscribe := h.inbox.Subscribe(func(origin string, m Message) {
		if origin != h.cfg.Origin {
			h.log.Debug(ctx, "ignoring message from foreign origin", "origin", origin)
			return
		}
		if m.Type != MessageAuthSuccess && m.Type != MessageAuthError {
			return
		}
		select {
		case msgs <- m:
		default:
		}
	})
	defer unsubscribe()

	win, err := h.opener.Open(attemptCtx, authURL)
	if err != nil {
		return "", fmt.Errorf("open login window: %w", err)
	}
	defer func() { _ = win.Close() }()

	ticker := time.NewTicker(h.cfg.ClosedCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case m := <-msgs:
			return buyerFromMessage(m)
		case <-ticker.C:
			if !win.Closed() {
				continue
			}
			select {
			case m := <-msgs:
				return buyerFromMessage(m)
			default:
				return "", ErrCancelled
			}
		case <-attemptCtx.Done():
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ErrCancelled
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func buyerFromMessage(m Message) (string, error) {
	if m.Type == MessageAuthError {
		msg := strings.TrimSpace(m.Error)
		if msg == "" {
			msg = "Cloud login failed"
		}
		return "", &AuthError{Message: msg}
	}
	if m.BuyerID == "" {
		return "", &AuthError{Message: "authentication response missing buyer id"}
	}
	return m.BuyerID, nil
}

// poll asks for the change-set status every PollInterval until it is READY
// or the attempt context ends. Failed polls are logged and retried.
func (h *Handshake) poll(ctx context.Context, id uint64, cloud models.Cloud, changeSetID string, log logging.Logger) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) &&
				h.finish(id, models.CloudState{UIState: models.UIStateIdle}) {
				log.Warn(ctx, "cloud login timed out before the listing was ready")
			}
			return
		case <-ticker.C:
			st, err := h.api.AllowListStatus(ctx, changeSetID)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn(ctx, "poll request failed", "error", err)
				}
				continue
			}
			log.Debug(ctx, "poll result", "status", st.Status)
			if st.Ready() {
				h.finish(id, models.CloudState{
					UIState:     models.UIStateDeploy,
					Cloud:       cloud,
					ChangeSetID: changeSetID,
					DeployURL:   st.ListingURL,
				})
				log.Info(ctx, "listing ready", "listing_url", st.ListingURL)
				return
			}
		}
	}
}

// finish applies a terminal transition for attempt id and cancels its
// context. It is a no-op (false) when id is no longer the live attempt.
func (h *Handshake) finish(id uint64, next models.CloudState) bool {
	h.mu.Lock()
	if h.attempt != id || h.cancel == nil {
		h.mu.Unlock()
		return false
	}
	h.cancel()
	h.cancel = nil
	listeners := h.setStateLocked(next)
	h.mu.Unlock()

	notify(listeners, next)
	return true
}

// Reset cancels any attempt and returns to idle.
func (h *Handshake) Reset() {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.attempt++
	next := models.CloudState{UIState: models.UIStateIdle}
	listeners := h.setStateLocked(next)
	h.mu.Unlock()

	notify(listeners, next)
}

// Disconnect asks the backend to tear the deployment down and resets to
// idle whatever the outcome. The request error is returned for reporting.
func (h *Handshake) Disconnect(ctx context.Context) error {
	err := h.api.Destroy(ctx)
	if err != nil {
		h.log.Warn(ctx, "disconnect request failed", "error", err)
	}
	h.Reset()
	return err
}

// Close resets and waits for background goroutines to exit.
func (h *Handshake) Close() {
	h.Reset()
	h.wg.Wait()
}

// setStateLocked must be called with h.mu held; it returns the listeners to
// notify once the lock is released.
func (h *Handshake) setStateLocked(s models.CloudState) []func(models.CloudState) {
	h.state = s
	return slices.Clone(h.listeners)
}

func notify(listeners []func(models.CloudState), s models.CloudState) {
	for _, fn := range listeners {
		fn(s)
	}
}
