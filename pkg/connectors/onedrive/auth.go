// Package onedrive uploads and downloads files on OneDrive and SharePoint
// document libraries through Microsoft Graph.
package onedrive

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/route1io/connectors/pkg/auth"
)

var authorityURL = "https://login.microsoftonline.com"

// Endpoint returns the Microsoft identity platform endpoint of a tenant.
func Endpoint(tenantID string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", authorityURL, tenantID),
		TokenURL:  fmt.Sprintf("%s/%s/oauth2/v2.0/token", authorityURL, tenantID),
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// PermissionsURL returns the consent page a user visits to grant scopes to
// the application.
func PermissionsURL(tenantID, clientID string, scopes []string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("response_type", "code")
	q.Set("prompt", "consent")
	// scopes are space separated and must be encoded as %20, not +
	return Endpoint(tenantID).AuthURL + "?" + q.Encode() + "&scope=" + url.PathEscape(strings.Join(scopes, " "))
}

// OpenPermissionsPrompt opens the consent page in the default browser.
func OpenPermissionsPrompt(tenantID, clientID string, scopes []string) error {
	return auth.OpenBrowser(PermissionsURL(tenantID, clientID, scopes))
}

// RequestAccessToken redeems the authorization code returned by the
// consent page.
func RequestAccessToken(ctx context.Context, code, tenantID, clientID string, scopes []string, redirectURI, clientSecret string) (*oauth2.Token, error) {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     Endpoint(tenantID),
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}
	return auth.Exchange(ctx, cfg, code, oauth2.SetAuthURLParam("scope", strings.Join(scopes, " ")))
}

// RefreshAccessToken returns a new access token for refreshToken.
func RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string, scopes []string, tenantID string) (*oauth2.Token, error) {
	return auth.RefreshToken(ctx, Endpoint(tenantID), clientID, clientSecret, refreshToken, scopes...)
}
