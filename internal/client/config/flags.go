package config

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/anansi/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   base URL of the Anansi API
//	-b string   base URL of the marketplace backend
//	-d string   path of the local SQLite database
//	-l string   listen address of the login callback server
//	-v string   log level (debug, info, warn, error)
//	-i int      online check interval (in seconds)
//
// Only these flags are looked at, so -c/-config can share the command line.
func parseFlags(cfg *Config) {
	args := flagx.Select(os.Args[1:], "a", "b", "d", "l", "v", "i")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the Anansi API")
	fs.StringVar(&cfg.BackendBaseURL, "b", cfg.BackendBaseURL, "base URL of the marketplace backend")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.CallbackAddr, "l", cfg.CallbackAddr, "listen address of the login callback server")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
