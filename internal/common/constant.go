// Package common contains constants and small helpers shared by the Anansi
// client packages.
package common

// DemoKeyPrefix marks locally synthesized credentials that must never be
// sent to the remote service.
const DemoKeyPrefix = "ak_demo_"

// DemoEmail is the e-mail reported by every demo profile.
const DemoEmail = "demo@anansi.dev"

// AuthorizationHeaderName carries the bearer API key on outbound requests.
const AuthorizationHeaderName = "Authorization"
