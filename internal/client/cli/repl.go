package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context, args []string) error
	Demo(ctx context.Context) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Key(ctx context.Context, args []string) error
	Compute(ctx context.Context, args []string) error
	History(ctx context.Context) error
	Health(ctx context.Context) error
	CloudLogin(ctx context.Context, args []string) error
	Cloud(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register [email], demo, login [key], health, cloudlogin aws|azure, cloud, disconnect, exit"
	helpLoggedIn  = "Available commands: whoami, key [show], compute <fn> [json], history, health, cloudlogin aws|azure, cloud, disconnect, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the Anansi CLI.
//
// It reads a line from in, parses the first token as the
// command and passes the remaining tokens to it. Account commands are only
// accepted in the matching state (register/demo/login signed out,
// whoami/key/compute/history/logout signed in). The loop exits on
// EOF, when ctx is done, or when the user types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers print
// their own messages.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("anansi %s> ", statusFn()))
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "register", "demo", "login":
			if a.isLoggedIn() {
				printlnFn("Already logged in; use logout first.")
				continue
			}
			switch cmd {
			case "register":
				_ = a.Register(ctx, args)
			case "demo":
				_ = a.Demo(ctx)
			case "login":
				_ = a.Login(ctx, args)
			}

		case "whoami", "key", "compute", "history", "logout":
			if !a.isLoggedIn() {
				printlnFn("Not logged in. Use register, demo or login.")
				continue
			}
			switch cmd {
			case "whoami":
				_ = a.WhoAmI(ctx)
			case "key":
				_ = a.Key(ctx, args)
			case "compute":
				_ = a.Compute(ctx, args)
			case "history":
				_ = a.History(ctx)
			case "logout":
				_ = a.Logout(ctx)
			}

		case "health":
			_ = a.Health(ctx)

		case "cloudlogin":
			_ = a.CloudLogin(ctx, args)

		case "cloud":
			_ = a.Cloud(ctx)

		case "disconnect":
			_ = a.Disconnect(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
