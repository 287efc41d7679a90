package applesearchads

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/route1io/connectors/pkg/auth"
	"github.com/route1io/connectors/pkg/errors"
)

const (
	// Audience is the aud claim Apple expects in client secrets.
	Audience = "https://appleid.apple.com"

	// ClientSecretLifetime is the longest validity Apple accepts.
	ClientSecretLifetime = 180 * 24 * time.Hour

	// AccessTokenLifetime is the validity of issued access tokens.
	AccessTokenLifetime = time.Hour

	scope = "searchadsorg"
)

var tokenURL = "https://appleid.apple.com/auth/oauth2/token"

// RefreshClientSecret signs a new ES256 client secret for clientID with the
// private key (PEM) identified by keyID.
func RefreshClientSecret(clientID, teamID, keyID string, privateKeyPEM []byte) (string, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid apple search ads private key")
	}

	now := time.Now().UTC().Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Subject:   clientID,
		Issuer:    teamID,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ClientSecretLifetime)),
	})
	token.Header["kid"] = keyID

	secret, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to sign client secret")
	}
	return secret, nil
}

// ValidateClientSecret returns clientSecret when it has not expired and a
// freshly signed one otherwise. The signature is not checked; Apple does
// that when the secret is used.
func ValidateClientSecret(clientSecret, clientID, teamID, keyID string, privateKeyPEM []byte) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(clientSecret, &claims); err == nil &&
		claims.ExpiresAt != nil && !auth.Expired(claims.ExpiresAt.Time, 0) {
		return clientSecret, nil
	}
	return RefreshClientSecret(clientID, teamID, keyID, privateKeyPEM)
}

// AccessToken is the token endpoint response with its issue and expiry
// times added as Unix timestamps.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp"`
}

// Expired reports whether the token expires within cushion.
func (t *AccessToken) Expired(cushion time.Duration) bool {
	return auth.Expired(time.Unix(t.ExpiresAt, 0), cushion)
}

// RequestAccessToken runs the client_credentials grant with the
// searchadsorg scope.
func RequestAccessToken(ctx context.Context, clientID, clientSecret string) (*AccessToken, error) {
	issued := time.Now().UTC()
	tok, err := auth.ClientCredentials(ctx, tokenURL, clientID, clientSecret, []string{scope}, nil)
	if err != nil {
		return nil, err
	}

	expires := issued.Add(AccessTokenLifetime)
	if !tok.Expiry.IsZero() {
		expires = tok.Expiry
	}
	out := &AccessToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   int64(expires.Sub(issued).Round(time.Second) / time.Second),
		IssuedAt:    issued.Unix(),
		ExpiresAt:   expires.Unix(),
	}
	if s, ok := tok.Extra("scope").(string); ok {
		out.Scope = s
	}
	return out, nil
}
