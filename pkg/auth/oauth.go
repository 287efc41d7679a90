package auth

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
)

// RefreshToken exchanges a refresh token for a new access token at the
// endpoint's token URL. Scopes are sent in the scope field of the grant,
// which the Microsoft identity platform requires.
func RefreshToken(ctx context.Context, endpoint oauth2.Endpoint, clientID, clientSecret, refreshToken string, scopes ...string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "refresh token is required")
	}
	// oauth2.Config drops scopes on refresh; clientcredentials sends them
	// and lets grant_type be replaced.
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     endpoint.TokenURL,
		Scopes:       scopes,
		AuthStyle:    endpoint.AuthStyle,
		EndpointParams: url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		},
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, TokenError(err, "failed to refresh access token")
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// ClientCredentials runs the client_credentials grant. Extra form values
// are sent with the request.
func ClientCredentials(ctx context.Context, tokenURL, clientID, clientSecret string, scopes []string, extra url.Values) (*oauth2.Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TokenURL:       tokenURL,
		Scopes:         scopes,
		EndpointParams: extra,
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, TokenError(err, "client credentials grant failed")
	}
	return tok, nil
}

// Exchange trades an authorization code for a token.
func Exchange(ctx context.Context, cfg *oauth2.Config, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, TokenError(err, "authorization code exchange failed")
	}
	return tok, nil
}

// ConsentFlow runs the browser authorization-code flow: it listens on
// 127.0.0.1:port, opens the consent page with open and exchanges the code
// it receives. cfg.RedirectURL is overwritten with the listener address.
func ConsentFlow(ctx context.Context, cfg *oauth2.Config, port int, open func(string) error, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	srv := NewCallbackServer(port, "/", state)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			logger.Warn("failed to stop callback server", zap.Error(err))
		}
	}()

	cfg.RedirectURL = srv.RedirectURI()
	consentURL := cfg.AuthCodeURL(state, opts...)
	logger.Info("waiting for authorization", zap.String("url", consentURL))
	if open == nil {
		open = OpenBrowser
	}
	if err := open(consentURL); err != nil {
		logger.Warn("could not open browser, visit the URL manually", zap.Error(err))
	}

	code, err := srv.WaitForCode(ctx)
	if err != nil {
		return nil, err
	}
	return Exchange(ctx, cfg, code)
}

// TokenError wraps an oauth2 error with a type derived from the token
// endpoint's response status.
func TokenError(err error, message string) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) && re.Response != nil {
		typ := errors.TypeForStatus(re.Response.StatusCode)
		if re.Response.StatusCode == http.StatusBadRequest {
			// invalid_grant and friends come back as 400
			typ = errors.ErrorTypeAuthentication
		}
		return errors.Wrap(err, typ, message).WithDetail("status", re.Response.StatusCode)
	}
	return errors.Wrap(err, errors.ErrorTypeAuthentication, message)
}

// Expired reports whether a token expiring at expiry is within cushion of
// expiring. A zero expiry never expires.
func Expired(expiry time.Time, cushion time.Duration) bool {
	if expiry.IsZero() {
		return false
	}
	return time.Now().Add(cushion).After(expiry)
}
