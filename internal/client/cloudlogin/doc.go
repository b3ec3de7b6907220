// Package cloudlogin implements the cloud-marketplace login: an OIDC
// authorization-code login in a browser window, an allow-list request for
// the resulting buyer id, and a status poll until the marketplace listing
// is ready.
//
// The flow moves through models.UIStateIdle → UIStateWaiting →
// UIStateDeploy, falling back to idle on cancellation, error, Reset or the
// ten-minute deadline. Messages from the login window arrive through an
// Inbox and are accepted only from the handshake's own origin.
package cloudlogin
