package cloudlogin

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/anansi/internal/client/models"
	"golang.org/x/oauth2"
)

// CallbackPath is where providers redirect after the login.
const CallbackPath = "/auth/callback"

var providerEndpoints = map[models.Cloud]oauth2.Endpoint{
	models.CloudAWS:   {AuthURL: "https://signin.aws.amazon.com/oauth"},
	models.CloudAzure: {AuthURL: "https://login.microsoftonline.com/organizations/oauth2/v2.0/authorize"},
}

// ClientIDs holds the OIDC client id per provider.
type ClientIDs struct {
	AWS   string
	Azure string
}

func (c ClientIDs) For(cloud models.Cloud) string {
	switch cloud {
	case models.CloudAWS:
		return c.AWS
	case models.CloudAzure:
		return c.Azure
	default:
		return ""
	}
}

// AuthorizationURL builds the authorization-code URL for cloud, redirecting
// to origin + CallbackPath.
func AuthorizationURL(cloud models.Cloud, clientID, origin string) (string, error) {
	endpoint, ok := providerEndpoints[cloud]
	if !ok {
		return "", fmt.Errorf("unsupported cloud %q", cloud)
	}
	if clientID == "" {
		return "", fmt.Errorf("%s %w", strings.ToUpper(string(cloud)), ErrMisconfigured)
	}
	conf := &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    endpoint,
		RedirectURL: origin + CallbackPath,
		Scopes:      []string{"openid"},
	}
	// no state parameter: callback messages are checked by origin only
	return conf.AuthCodeURL(""), nil
}
