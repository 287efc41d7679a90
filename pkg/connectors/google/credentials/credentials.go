// Package credentials obtains OAuth2 credentials for the Google APIs: from
// a refresh token, from a saved authorized-user file, or from a browser
// consent screen.
package credentials

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/route1io/connectors/pkg/auth"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/json"
	"github.com/route1io/connectors/pkg/logger"
)

// TokenURL is the token endpoint used for refresh-token grants.
const TokenURL = "https://accounts.google.com/o/oauth2/token"

var (
	tokenURL    = TokenURL
	openBrowser = auth.OpenBrowser
)

// Credentials hold a Google token and the client used to refresh it.
type Credentials struct {
	Config *oauth2.Config
	Token  *oauth2.Token
}

// Valid reports whether the access token is present and unexpired.
func (c *Credentials) Valid() bool {
	return c != nil && c.Token.Valid()
}

// TokenSource returns a source that refreshes the token when it expires.
func (c *Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.Config.TokenSource(ctx, c.Token)
}

// Refresh exchanges the refresh token for a new access token.
func (c *Credentials) Refresh(ctx context.Context) error {
	tok, err := auth.RefreshToken(ctx, c.Config.Endpoint, c.Config.ClientID, c.Config.ClientSecret, c.Token.RefreshToken, c.Config.Scopes...)
	if err != nil {
		return err
	}
	c.Token = tok
	return nil
}

// FromRefreshToken returns freshly refreshed credentials. Scopes do not
// affect the refresh; they are recorded for bookkeeping.
func FromRefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string, scopes ...string) (*Credentials, error) {
	c := &Credentials{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: google.Endpoint.AuthURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
			Scopes:       scopes,
		},
		Token: &oauth2.Token{RefreshToken: refreshToken},
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// authorizedUser is the JSON layout written by google-auth and gcloud.
type authorizedUser struct {
	Type         string   `json:"type,omitempty"`
	Token        string   `json:"token,omitempty"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

// FromAuthorizedUserFile loads credentials saved by Save (or by the Python
// and gcloud tooling) and refreshes them when the token has expired.
func FromAuthorizedUserFile(ctx context.Context, path string) (*Credentials, error) {
	c, err := readAuthorizedUser(path)
	if err != nil {
		return nil, err
	}
	if !c.Valid() && c.Token.RefreshToken != "" {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func readAuthorizedUser(path string) (*Credentials, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to read %s", path)
	}

	// Some writers store the JSON document as a JSON string.
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeData, "failed to decode %s", path)
		}
		data = []byte(inner)
	}

	var u authorizedUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData, "failed to decode %s", path)
	}
	if u.ClientID == "" || u.RefreshToken == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "%s is missing client_id or refresh_token", path)
	}

	uri := u.TokenURI
	if uri == "" {
		uri = tokenURL
	}
	tok := &oauth2.Token{AccessToken: u.Token, RefreshToken: u.RefreshToken, TokenType: "Bearer"}
	if u.Expiry != "" {
		if exp, err := time.Parse(time.RFC3339Nano, u.Expiry); err == nil {
			tok.Expiry = exp
		} else if exp, err := time.Parse("2006-01-02T15:04:05.999999", u.Expiry); err == nil {
			tok.Expiry = exp
		}
	}

	return &Credentials{
		Config: &oauth2.Config{
			ClientID:     u.ClientID,
			ClientSecret: u.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: google.Endpoint.AuthURL, TokenURL: uri, AuthStyle: oauth2.AuthStyleInParams},
			Scopes:       u.Scopes,
		},
		Token: tok,
	}, nil
}

// Save writes the credentials as an authorized-user JSON file.
func (c *Credentials) Save(path string) error {
	u := authorizedUser{
		Type:         "authorized_user",
		Token:        c.Token.AccessToken,
		RefreshToken: c.Token.RefreshToken,
		TokenURI:     c.Config.Endpoint.TokenURL,
		ClientID:     c.Config.ClientID,
		ClientSecret: c.Config.ClientSecret,
		Scopes:       c.Config.Scopes,
	}
	if !c.Token.Expiry.IsZero() {
		u.Expiry = c.Token.Expiry.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode credentials")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", path)
	}
	return nil
}

// FromConsentScreen opens the consent page for the OAuth client described
// by clientSecretsFile, waits for the redirect on 127.0.0.1:port (0 picks a
// free port) and saves the result to savePath when it is not empty.
func FromConsentScreen(ctx context.Context, clientSecretsFile string, scopes []string, port int, savePath string) (*Credentials, error) {
	data, err := os.ReadFile(clientSecretsFile) //nolint:gosec // caller-controlled path
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to read %s", clientSecretsFile)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid client secrets file")
	}

	tok, err := auth.ConsentFlow(ctx, cfg, port, openBrowser, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if err != nil {
		return nil, err
	}

	c := &Credentials{Config: cfg, Token: tok}
	if savePath != "" {
		if err := c.Save(savePath); err != nil {
			return nil, err
		}
		logger.Info("saved google credentials", zap.String("path", savePath))
	}
	return c, nil
}

// FullAuthFlow returns valid credentials, reusing authorizedUserFile when
// it exists and running the consent screen (saving to authorizedUserFile)
// when it does not.
func FullAuthFlow(ctx context.Context, authorizedUserFile, clientSecretsFile string, scopes []string, port int) (*Credentials, error) {
	if _, err := os.Stat(authorizedUserFile); err == nil {
		c, err := FromAuthorizedUserFile(ctx, authorizedUserFile)
		if err != nil {
			return nil, err
		}
		if c.Valid() {
			return c, nil
		}
	}
	return FromConsentScreen(ctx, clientSecretsFile, scopes, port, authorizedUserFile)
}
