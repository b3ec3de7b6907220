package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/anansi/internal/client/cloudlogin"
	"github.com/dmitrijs2005/anansi/internal/client/models"
	"github.com/dmitrijs2005/anansi/internal/client/services"
	"github.com/dmitrijs2005/anansi/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Session is the part of services.SessionManager the CLI drives.
type Session interface {
	State() services.SessionState
	Register(ctx context.Context, email string) services.AuthResult
	CreateDemoAccount(ctx context.Context) services.AuthResult
	Login(ctx context.Context, apiKey string) services.AuthResult
	Logout(ctx context.Context) error
	Compute(ctx context.Context, payload models.ComputePayload) (models.ComputeResult, error)
	History() []models.ComputeRun
	HistorySummary() models.HistorySummary
	HealthCheck(ctx context.Context) (*models.Health, error)
	CloudLogin(ctx context.Context, cloud models.Cloud) (cloudlogin.Result, error)
	Disconnect(ctx context.Context) error
	CloudState() models.CloudState
}

type App struct {
	session Session
	reader  *bufio.Reader
	out     io.Writer
	log     logging.Logger

	mu   sync.Mutex
	mode Mode

	// background cloud logins
	wg sync.WaitGroup
}

func NewApp(session Session, in io.Reader, out io.Writer, log logging.Logger) *App {
	return &App{
		session: session,
		reader:  bufio.NewReader(in),
		out:     out,
		log:     log.With("component", "cli"),
	}
}

// Run starts the REPL and blocks until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	a.printf("Welcome to Anansi CLI (type 'help' for commands)\n")
	if st := a.session.State(); st.Authenticated && st.Profile != nil {
		a.printf("Signed in as %s\n", st.Profile.Email)
	}
	runREPL(ctx, a, a.getStatus, a.reader)
}

// Wait blocks until background cloud logins have returned.
func (a *App) Wait() {
	a.wg.Wait()
}

func (a *App) isLoggedIn() bool {
	return a.session.State().Authenticated
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		a.log.Info(ctx, "connectivity changed", "mode", mode)
	}
}

func (a *App) getMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) getStatus() string {
	s := ""
	if st := a.session.State(); st.Authenticated && st.Profile != nil {
		s = st.Profile.Email + " "
	}
	if m := a.getMode(); m != "" {
		s += string(m)
	}
	if cs := a.session.CloudState(); cs.UIState != models.UIStateIdle {
		s += " " + cloudLabel(cs)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// StartOnlineStatusWatcher probes the health endpoint every interval and
// keeps the prompt's online/offline marker current.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	a.probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) probe(ctx context.Context) {
	if _, err := a.session.HealthCheck(ctx); err != nil {
		if ctx.Err() == nil {
			a.setMode(ctx, ModeOffline)
		}
		return
	}
	a.setMode(ctx, ModeOnline)
}

// NotifyCloudState prints cloud-login transitions; register it with the
// handshake's OnChange.
func (a *App) NotifyCloudState(s models.CloudState) {
	switch s.UIState {
	case models.UIStateWaiting:
		if s.ChangeSetID == "" {
			a.printf("Waiting for %s sign-in in the browser...\n", s.Cloud)
		} else {
			a.printf("Allow-listed (change set %s), waiting for the listing...\n", s.ChangeSetID)
		}
	case models.UIStateDeploy:
		a.printf("Listing ready: %s\n", s.DeployURL)
	case models.UIStateIdle:
		a.printf("Cloud session idle.\n")
	}
}

func cloudLabel(s models.CloudState) string {
	if s.Cloud == "" {
		return string(s.UIState)
	}
	return fmt.Sprintf("%s:%s", s.Cloud, s.UIState)
}

func (a *App) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
