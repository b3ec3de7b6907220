package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/anansi/internal/client/credstore"
	"github.com/dmitrijs2005/anansi/internal/client/models"
)

// getSimpleText and getSecret are indirections used to facilitate testing.
var (
	getSimpleText = GetSimpleText
	getSecret     = GetSecret
)

var (
	errNotLoggedIn = errors.New("not logged in")
	errUsage       = errors.New("usage")
)

const resultPreviewLen = 200

// Register creates an account. The e-mail comes from args or a prompt.
func (a *App) Register(ctx context.Context, args []string) error {
	email, err := a.argOrPrompt(args, "Enter email")
	if err != nil {
		a.printf("Could not read email: %v\n", err)
		return err
	}
	res := a.session.Register(ctx, email)
	if !res.Success {
		a.printf("Error: %s\n", res.Error)
		return errors.New(res.Error)
	}
	a.printf("Registered. Your API key: %s\nStore it safely; it is the only way to sign in again.\n", res.APIKey)
	return nil
}

// Demo signs in with a locally generated demo account.
func (a *App) Demo(ctx context.Context) error {
	res := a.session.CreateDemoAccount(ctx)
	if !res.Success {
		a.printf("Error: %s\n", res.Error)
		return errors.New(res.Error)
	}
	a.printf("Demo account created. API key: %s\n", res.APIKey)
	return nil
}

// Login signs in with an API key read from args or a hidden prompt.
func (a *App) Login(ctx context.Context, args []string) error {
	key := ""
	if len(args) > 0 {
		key = args[0]
	} else {
		var err error
		if key, err = getSecret(a.reader, "Enter API key", a.out); err != nil {
			a.printf("Could not read API key: %v\n", err)
			return err
		}
	}
	res := a.session.Login(ctx, key)
	if !res.Success {
		a.printf("Error: %s\n", res.Error)
		return errors.New(res.Error)
	}
	if p := a.session.State().Profile; p != nil {
		a.printf("Signed in as %s\n", p.Email)
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		a.printf("Logged out, but the stored session could not be removed: %v\n", err)
		return err
	}
	a.printf("Logged out.\n")
	return nil
}

// WhoAmI prints the cached profile.
func (a *App) WhoAmI(ctx context.Context) error {
	st := a.session.State()
	if !st.Authenticated || st.Profile == nil {
		a.printf("Not logged in.\n")
		return errNotLoggedIn
	}
	p := st.Profile
	a.printf("id:      %d\nemail:   %s\ncreated: %s\nactive:  %t\nkey:     %s\n",
		p.ID, p.Email, p.CreatedAt.Format("2006-01-02 15:04:05 MST"), p.Active, credstore.MaskAPIKey(st.APIKey))
	return nil
}

// Key prints the API key, masked unless "show" is given.
func (a *App) Key(ctx context.Context, args []string) error {
	st := a.session.State()
	if !st.Authenticated {
		a.printf("Not logged in.\n")
		return errNotLoggedIn
	}
	if len(args) > 0 && args[0] == "show" {
		a.printf("%s\n", st.APIKey)
		return nil
	}
	a.printf("%s\n", credstore.MaskAPIKey(st.APIKey))
	return nil
}

// Compute runs "compute <fn> [json object]". The optional object is merged
// into the payload next to "fn".
func (a *App) Compute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: compute <fn> [json]\n")
		return errUsage
	}
	payload, err := buildPayload(args[0], strings.Join(args[1:], " "))
	if err != nil {
		a.printf("Error: %v\n", err)
		return err
	}

	a.printf("Running %s...\n", args[0])
	res, err := a.session.Compute(ctx, payload)
	if err != nil {
		a.printf("Error: %v\n", err)
		return err
	}
	a.printf("Job %s on %s, cost $%.4f\n%s\n", res.JobID(), res.Cloud(), res.CostUSD(), preview(res))
	return nil
}

func buildPayload(fn, rawJSON string) (models.ComputePayload, error) {
	payload := models.ComputePayload{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &payload); err != nil {
			return nil, fmt.Errorf("payload must be a JSON object: %w", err)
		}
	}
	payload["fn"] = fn
	return payload, nil
}

// History prints the recent compute runs, newest first, with a summary.
func (a *App) History(ctx context.Context) error {
	runs := a.session.History()
	if len(runs) == 0 {
		a.printf("No compute runs yet.\n")
		return nil
	}
	for _, r := range runs {
		mark := "ok"
		if r.Status == models.RunFailed {
			mark = "FAILED"
		}
		a.printf("%-6s %-20s %s  %s  $%.4f  %s\n",
			mark, r.Function, r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Cloud, r.CostUSD, r.RunID)
		a.printf("       %s\n", preview(r.Result))
	}
	s := a.session.HistorySummary()
	a.printf("Total cost $%.4f, %d succeeded, %d failed\n", s.TotalCostUSD, s.Completed, s.Failed)
	return nil
}

func (a *App) Health(ctx context.Context) error {
	h, err := a.session.HealthCheck(ctx)
	if err != nil {
		a.setMode(ctx, ModeOffline)
		a.printf("Error: %v\n", err)
		return err
	}
	a.setMode(ctx, ModeOnline)
	a.printf("Server status: %s (%s)\n", h.Status, h.Timestamp)
	return nil
}

// CloudLogin starts "cloudlogin aws|azure" in the background; progress is
// printed by NotifyCloudState.
func (a *App) CloudLogin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: cloudlogin aws|azure\n")
		return errUsage
	}
	cloud, err := models.ParseCloud(args[0])
	if err != nil {
		a.printf("Error: %v\n", err)
		return err
	}
	if st := a.session.CloudState(); st.UIState != models.UIStateIdle {
		a.printf("A cloud login is already %s.\n", st.UIState)
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if _, err := a.session.CloudLogin(ctx, cloud); err != nil && ctx.Err() == nil {
			a.printf("Cloud login failed: %v\n", err)
		}
	}()
	return nil
}

// Cloud prints the cloud-login state.
func (a *App) Cloud(ctx context.Context) error {
	st := a.session.CloudState()
	a.printf("state: %s\n", st.UIState)
	if st.Cloud != "" {
		a.printf("cloud: %s\n", st.Cloud)
	}
	if st.ChangeSetID != "" {
		a.printf("change set: %s\n", st.ChangeSetID)
	}
	if st.DeployURL != "" {
		a.printf("listing: %s\n", st.DeployURL)
	}
	return nil
}

func (a *App) Disconnect(ctx context.Context) error {
	if err := a.session.Disconnect(ctx); err != nil {
		a.printf("Disconnect request failed (%v); local cloud session reset.\n", err)
		return err
	}
	a.printf("Disconnected.\n")
	return nil
}

func (a *App) argOrPrompt(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	return getSimpleText(a.reader, prompt, a.out)
}

// preview renders v as JSON cut to resultPreviewLen characters.
func preview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	s := string(b)
	if r := []rune(s); len(r) > resultPreviewLen {
		return string(r[:resultPreviewLen]) + "..."
	}
	return s
}
