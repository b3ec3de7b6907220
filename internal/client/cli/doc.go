// Package cli provides the interactive Anansi command-line client.
//
// An App wraps a session (services.SessionManager in production) and runs a
// REPL over it. Signed out, the user can register with an e-mail, create a
// local demo account or sign in with an API key (read without echo from a
// terminal). Signed in, they can inspect the profile and key, run remote
// computations and browse the last ten runs. The cloud marketplace login
// runs in the background; its transitions are printed as they happen.
//
// A background watcher probes the health endpoint and shows online/offline
// in the prompt. See App.Run, StartOnlineStatusWatcher and runREPL.
package cli
