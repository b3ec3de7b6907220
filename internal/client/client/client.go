package client

import (
	"context"

	"github.com/dmitrijs2005/anansi/internal/client/models"
)

// Client is the account and compute surface of the remote service.
type Client interface {
	Register(ctx context.Context, email string) (*models.Registration, error)
	GetProfile(ctx context.Context, cred models.Credential) (*models.UserProfile, error)
	Compute(ctx context.Context, cred models.Credential, payload models.ComputePayload) (models.ComputeResult, error)
	HealthCheck(ctx context.Context) (*models.Health, error)
}

// MarketplaceClient is the allow-listing surface used by the cloud login.
type MarketplaceClient interface {
	AllowList(ctx context.Context, buyerID string, cloud models.Cloud) (string, error)
	AllowListStatus(ctx context.Context, changeSetID string) (*models.AllowListStatus, error)
	Destroy(ctx context.Context) error
}
