package models

import (
	"strings"

	"github.com/dmitrijs2005/anansi/internal/common"
)

// Credential is either a DemoCredential or a LiveCredential. The prefix
// check happens once, in ParseCredential; everything downstream switches on
// the concrete type.
type Credential interface {
	APIKey() string
	credential()
}

// DemoCredential is synthesized locally and never leaves the process.
type DemoCredential struct {
	Key string
}

// LiveCredential is a bearer key issued by the remote service.
type LiveCredential struct {
	Key string
}

func (c DemoCredential) APIKey() string { return c.Key }
func (c LiveCredential) APIKey() string { return c.Key }

func (DemoCredential) credential() {}
func (LiveCredential) credential() {}

// ParseCredential classifies a raw key.
func ParseCredential(raw string) Credential {
	if strings.HasPrefix(raw, common.DemoKeyPrefix) {
		return DemoCredential{Key: raw}
	}
	return LiveCredential{Key: raw}
}

// NewDemoCredential returns a fresh demo key of the form ak_demo_<13 base36>.
func NewDemoCredential() (DemoCredential, error) {
	suffix, err := common.MakeRandBase36String(13)
	if err != nil {
		return DemoCredential{}, err
	}
	return DemoCredential{Key: common.DemoKeyPrefix + suffix}, nil
}
