package credentials

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/testutil"
)

func fakeGoogle(t *testing.T) string {
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			if r.PostForm.Get("refresh_token") == "revoked" {
				testutil.WriteJSON(t, w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
				return
			}
			testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{
				"access_token": "refreshed", "token_type": "Bearer", "expires_in": 3600,
			})
		case "authorization_code":
			testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{
				"access_token": "consented", "refresh_token": "new-refresh", "token_type": "Bearer", "expires_in": 3600,
			})
		default:
			http.Error(w, "bad grant", http.StatusBadRequest)
		}
	}))
	old := tokenURL
	tokenURL = srv.URL
	t.Cleanup(func() { tokenURL = old })
	return srv.URL
}

func TestFromRefreshToken(t *testing.T) {
	fakeGoogle(t)

	c, err := FromRefreshToken(testutil.TestContext(t), "refresh", "cid", "secret", "https://www.googleapis.com/auth/spreadsheets")
	require.NoError(t, err)
	assert.True(t, c.Valid())
	assert.Equal(t, "refreshed", c.Token.AccessToken)
	assert.Equal(t, "refresh", c.Token.RefreshToken)

	_, err = FromRefreshToken(testutil.TestContext(t), "revoked", "cid", "secret")
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestFromAuthorizedUserFileRefreshesExpired(t *testing.T) {
	uri := fakeGoogle(t)
	path := testutil.WriteFile(t, t.TempDir(), "token.json", fmt.Sprintf(`{
		"token": "stale",
		"refresh_token": "refresh",
		"token_uri": %q,
		"client_id": "cid",
		"client_secret": "secret",
		"scopes": ["scope-a"],
		"expiry": "2020-01-01T00:00:00.000000Z"
	}`, uri))

	c, err := FromAuthorizedUserFile(testutil.TestContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", c.Token.AccessToken)
	assert.Equal(t, []string{"scope-a"}, c.Config.Scopes)
}

func TestFromAuthorizedUserFileDoublyEncoded(t *testing.T) {
	fakeGoogle(t)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano)
	inner := fmt.Sprintf(`{"token": "still-good", "refresh_token": "r", "client_id": "cid", "client_secret": "s", "expiry": %q}`, future)
	path := testutil.WriteFile(t, t.TempDir(), "token.json", fmt.Sprintf("%q", inner))

	c, err := FromAuthorizedUserFile(testutil.TestContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, "still-good", c.Token.AccessToken)
}

func TestFromAuthorizedUserFileErrors(t *testing.T) {
	_, err := FromAuthorizedUserFile(testutil.TestContext(t), filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	path := testutil.WriteFile(t, t.TempDir(), "token.json", `{"client_id": "cid"}`)
	_, err = FromAuthorizedUserFile(testutil.TestContext(t), path)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	fakeGoogle(t)
	c, err := FromRefreshToken(testutil.TestContext(t), "refresh", "cid", "secret", "scope-a")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, c.Save(path))

	loaded, err := FromAuthorizedUserFile(testutil.TestContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", loaded.Token.AccessToken)
	assert.Equal(t, "refresh", loaded.Token.RefreshToken)
	assert.WithinDuration(t, c.Token.Expiry, loaded.Token.Expiry, time.Second)
}

func TestFullAuthFlowRunsConsentWhenFileMissing(t *testing.T) {
	uri := fakeGoogle(t)
	dir := t.TempDir()
	secrets := testutil.WriteFile(t, dir, "client_secret.json", fmt.Sprintf(`{"installed": {
		"client_id": "cid",
		"client_secret": "secret",
		"auth_uri": "https://accounts.example.com/auth",
		"token_uri": %q,
		"redirect_uris": ["http://localhost"]
	}}`, uri))
	tokenFile := filepath.Join(dir, "token.json")

	old := openBrowser
	openBrowser = func(consentURL string) error {
		u, err := url.Parse(consentURL)
		if err != nil {
			return err
		}
		q := u.Query()
		assert.Equal(t, "offline", q.Get("access_type"))
		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?code=c&state=" + url.QueryEscape(q.Get("state")))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
	t.Cleanup(func() { openBrowser = old })

	c, err := FullAuthFlow(testutil.TestContext(t), tokenFile, secrets, []string{"scope-a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "consented", c.Token.AccessToken)

	_, err = os.Stat(tokenFile)
	require.NoError(t, err)

	again, err := FullAuthFlow(testutil.TestContext(t), tokenFile, secrets, []string{"scope-a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "consented", again.Token.AccessToken)
}
