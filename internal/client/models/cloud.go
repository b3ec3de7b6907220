package models

import (
	"fmt"
	"strings"
)

// Cloud names a marketplace provider.
type Cloud string

const (
	CloudAWS   Cloud = "aws"
	CloudAzure Cloud = "azure"
)

// ParseCloud accepts "aws" or "azure" in any case.
func ParseCloud(s string) (Cloud, error) {
	switch c := Cloud(strings.ToLower(strings.TrimSpace(s))); c {
	case CloudAWS, CloudAzure:
		return c, nil
	default:
		return "", fmt.Errorf("unknown cloud %q (want aws or azure)", s)
	}
}

// UIState is the phase of a cloud-login attempt.
type UIState string

const (
	UIStateIdle    UIState = "idle"
	UIStateWaiting UIState = "waiting"
	UIStateDeploy  UIState = "deploy"
)

// CloudState is a snapshot of the cloud-login session.
// DeployURL is set only in UIStateDeploy.
type CloudState struct {
	UIState     UIState
	Cloud       Cloud
	ChangeSetID string
	DeployURL   string
}

// AllowListStatusReady is the poll status that ends a cloud login.
const AllowListStatusReady = "READY"

// AllowListStatus is the body of GET /marketplace/allow-list/{changeSetId}.
type AllowListStatus struct {
	Status     string `json:"status"`
	ListingURL string `json:"listingUrl,omitempty"`
}

func (s AllowListStatus) Ready() bool { return s.Status == AllowListStatusReady }
