package cloudlogin

import (
	"context"
	"sync/atomic"
)

// Window is the login window showing the provider's authorization page.
type Window interface {
	// Closed reports whether the user closed the window.
	Closed() bool
	Close() error
}

// Opener shows url to the user in a new Window.
type Opener interface {
	Open(ctx context.Context, url string) (Window, error)
}

type flagWindow struct {
	closed atomic.Bool
}

func (w *flagWindow) Closed() bool { return w.closed.Load() }

func (w *flagWindow) Close() error {
	w.closed.Store(true)
	return nil
}
