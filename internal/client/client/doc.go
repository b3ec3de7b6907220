// Package client contains the client-side building blocks that talk to the
// Anansi compute service.
//
// # Overview
//
// The package provides:
//  1. The remote API contracts: Client (register, profile, compute, health)
//     and MarketplaceClient (allow-list, allow-list status, destroy).
//  2. HTTPClient, a JSON/HTTP implementation that bounds every operation with
//     its own deadline (10 s for register and profile, 30 s for compute, 5 s
//     for health) and never retries.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Demo credentials
//
// GetProfile and Compute switch on models.Credential. A DemoCredential is
// answered locally with synthesized data and produces no network traffic.
//
// # Error Handling
//
// Every failure is an *APIError whose Error() is the message to show the
// user. Match the category with errors.Is: ErrTimeout, ErrUnavailable,
// ErrUnauthorized, ErrConflict, ErrServerRejected.
package client
