// Package flagx lets several flag sets share one command line. Each config
// layer picks out only the flags it owns and parses those.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// ConfigEnvVar names the environment variable consulted when neither -c nor
// -config is given.
const ConfigEnvVar = "ANANSI_CONFIG"

// Select returns the arguments that belong to the named flags, in order.
// Names are given without dashes; "-name" and "--name" both match, as they
// do for the flag package. A value is taken from "name=value" or from the
// following argument unless that argument starts with a dash. Scanning
// stops at "--".
func Select(args []string, names ...string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimLeft(n, "-")] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			continue
		}

		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !want[name] {
			continue
		}
		out = append(out, arg)
		if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, args[i])
		}
	}
	return out
}

// ConfigPath returns the JSON config path given via -c or -config in args.
// The last occurrence wins. Without a flag it falls back to ANANSI_CONFIG,
// and to "" when that is unset too.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(Select(args, "c", "config"))

	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}
	return path
}
