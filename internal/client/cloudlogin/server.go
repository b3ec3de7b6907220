package cloudlogin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/anansi/internal/client/models"
	"github.com/dmitrijs2005/anansi/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	MessagePath = "/auth/message"
	CancelPath  = "/auth/cancel"

	maxMessageBytes = 4 << 10
	shutdownTimeout = 5 * time.Second
)

// BuyerResolver turns the authorization code delivered to the callback
// into the marketplace buyer id (AWS account id or Azure tenant id).
type BuyerResolver func(ctx context.Context, code string) (string, error)

// PlaceholderBuyerResolver maps codes without exchanging them: codes
// starting with "aws" become an AWS account id, anything else an Azure
// tenant id.
func PlaceholderBuyerResolver(_ context.Context, code string) (string, error) {
	if strings.HasPrefix(code, string(models.CloudAWS)) {
		return "123456789012", nil
	}
	return "tenant-id-12345", nil
}

// Launcher shows a URL to the user, usually in the system browser.
type Launcher func(url string) error

// CallbackServer is the loopback HTTP endpoint providers redirect to. It
// posts Messages into an Inbox stamped with its own origin, and it is the
// Opener for login windows: each window is a browser tab whose "cancel"
// link marks it closed.
type CallbackServer struct {
	listener net.Listener
	origin   string
	inbox    *Inbox
	resolve  BuyerResolver
	launch   Launcher
	log      logging.Logger

	mu  sync.Mutex
	win *flagWindow
}

type ServerOption func(*CallbackServer)

func WithBuyerResolver(r BuyerResolver) ServerOption {
	return func(s *CallbackServer) { s.resolve = r }
}

func WithLauncher(l Launcher) ServerOption {
	return func(s *CallbackServer) { s.launch = l }
}

// NewCallbackServer binds addr right away so Origin is known before Serve.
// Use "127.0.0.1:0" for an ephemeral port.
func NewCallbackServer(addr string, inbox *Inbox, log logging.Logger, opts ...ServerOption) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	s := &CallbackServer{
		listener: ln,
		origin:   "http://" + ln.Addr().String(),
		inbox:    inbox,
		resolve:  PlaceholderBuyerResolver,
		launch:   OpenBrowser,
		log:      log.With("component", "callback-server"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Origin is scheme://host:port of the server.
func (s *CallbackServer) Origin() string {
	return s.origin
}

// Router returns the chi router with the callback routes mounted.
func (s *CallbackServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(CallbackPath, s.handleCallback)
	r.Post(MessagePath, s.handleMessage)
	r.Get(CancelPath, s.handleCancel)
	return r
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *CallbackServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(s.listener)
	}()
	s.log.Info(ctx, "callback server listening", "origin", s.origin)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// Close releases the listener of a server that was never served.
func (s *CallbackServer) Close() error {
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Open launches url and tracks it as the current login window.
func (s *CallbackServer) Open(ctx context.Context, url string) (Window, error) {
	w := &flagWindow{}
	s.mu.Lock()
	if s.win != nil {
		_ = s.win.Close()
	}
	s.win = w
	s.mu.Unlock()

	s.log.Info(ctx, "opening login window", "url", url, "cancel_url", s.origin+CancelPath)
	if err := s.launch(url); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		if d := q.Get("error_description"); d != "" {
			e = e + ": " + d
		}
		s.inbox.Post(s.origin, Message{Type: MessageAuthError, Error: e})
		renderPage(w, http.StatusOK, "Authentication failed", "You can close this window.")
		return
	}

	code := q.Get("code")
	if code == "" {
		renderPage(w, http.StatusBadRequest, "Missing authorization code", "The provider did not return a code.")
		return
	}

	buyerID, err := s.resolve(r.Context(), code)
	if err != nil {
		s.log.Warn(r.Context(), "could not resolve buyer id", "error", err)
		s.inbox.Post(s.origin, Message{Type: MessageAuthError, Error: err.Error()})
		renderPage(w, http.StatusOK, "Authentication failed", "You can close this window.")
		return
	}

	s.inbox.Post(s.origin, Message{Type: MessageAuthSuccess, BuyerID: buyerID})
	renderPage(w, http.StatusOK, "Processing authentication...", "You can close this window.")
}

// handleMessage lets a page post a Message directly. The request's Origin
// header is passed through untouched; receivers filter on it.
func (s *CallbackServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	var m Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&m); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}
	s.inbox.Post(r.Header.Get("Origin"), m)
	w.WriteHeader(http.StatusAccepted)
}

func (s *CallbackServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.win != nil {
		_ = s.win.Close()
	}
	s.mu.Unlock()
	renderPage(w, http.StatusOK, "Authentication cancelled", "You can close this window.")
}

var pageTemplate = template.Must(template.New("page").Parse(
	`<!doctype html><html><head><title>{{.Title}}</title></head>` +
		`<body><p>{{.Title}}</p><p>{{.Detail}}</p></body></html>`))

func renderPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, struct{ Title, Detail string }{title, detail})
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
