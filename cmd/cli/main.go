package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/anansi/internal/buildinfo"
	"github.com/dmitrijs2005/anansi/internal/client/cli"
	"github.com/dmitrijs2005/anansi/internal/client/client"
	"github.com/dmitrijs2005/anansi/internal/client/cloudlogin"
	"github.com/dmitrijs2005/anansi/internal/client/config"
	"github.com/dmitrijs2005/anansi/internal/client/credstore"
	"github.com/dmitrijs2005/anansi/internal/client/services"
	"github.com/dmitrijs2005/anansi/internal/logging"
	"golang.org/x/sync/errgroup"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()
	logger := logging.NewTextLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg, logger); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := client.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	api := client.NewHTTPClient(cfg.APIBaseURL,
		client.WithBackendBaseURL(cfg.Backend()),
		client.WithLogger(logger),
	)

	inbox := cloudlogin.NewInbox()
	callbacks, err := cloudlogin.NewCallbackServer(cfg.CallbackAddr, inbox, logger)
	if err != nil {
		return err
	}

	handshake := cloudlogin.New(cloudlogin.Config{
		ClientIDs:    cloudlogin.ClientIDs{AWS: cfg.AWSClientID, Azure: cfg.AzureClientID},
		Origin:       callbacks.Origin(),
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.CloudLoginTimeout,
	}, api, callbacks, inbox, logger)

	session := services.NewSessionManager(ctx, credstore.New(db, logger), api, handshake, logger)

	app := cli.NewApp(session, os.Stdin, os.Stdout, logger)
	handshake.OnChange(app.NotifyCloudState)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return callbacks.Serve(gctx)
	})
	g.Go(func() error {
		app.StartOnlineStatusWatcher(gctx, cfg.OnlineCheckInterval)
		return nil
	})

	// The REPL blocks on stdin, which cannot be interrupted; it is left
	// running when a signal ends the process.
	go func() {
		app.Run(gctx)
		stop()
	}()

	err = g.Wait()
	handshake.Close()
	app.Wait()
	return err
}
