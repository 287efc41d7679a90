package applesearchads

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/json"
	"github.com/route1io/connectors/pkg/testutil"
)

func testKey(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func TestRefreshClientSecret(t *testing.T) {
	key, pemKey := testKey(t)

	secret, err := RefreshClientSecret("SEARCHADS.client", "SEARCHADS.team", "key-1", pemKey)
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(secret, &claims, func(tok *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithAudience(Audience))
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "key-1", token.Header["kid"])
	assert.Equal(t, "SEARCHADS.client", claims.Subject)
	assert.Equal(t, "SEARCHADS.team", claims.Issuer)
	assert.Equal(t, ClientSecretLifetime, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	_, err = RefreshClientSecret("c", "t", "k", []byte("not a key"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidateClientSecret(t *testing.T) {
	_, pemKey := testKey(t)

	valid, err := RefreshClientSecret("client", "team", "key", pemKey)
	require.NoError(t, err)
	got, err := ValidateClientSecret(valid, "client", "team", "key", pemKey)
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	expiredSecret, err := expired.SignedString([]byte("x"))
	require.NoError(t, err)

	for _, old := range []string{expiredSecret, "garbage"} {
		got, err = ValidateClientSecret(old, "client", "team", "key", pemKey)
		require.NoError(t, err)
		assert.NotEqual(t, old, got)
		_, _, err = jwt.NewParser().ParseUnverified(got, &jwt.RegisteredClaims{})
		assert.NoError(t, err)
	}
}

func TestRequestAccessToken(t *testing.T) {
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "searchadsorg", r.PostForm.Get("scope"))
		testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{
			"access_token": "at", "token_type": "Bearer", "expires_in": 3600, "scope": "searchadsorg",
		})
	}))
	old := tokenURL
	tokenURL = srv.URL
	t.Cleanup(func() { tokenURL = old })

	tok, err := RequestAccessToken(testutil.TestContext(t), "client", "secret")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "searchadsorg", tok.Scope)
	assert.InDelta(t, 3600, tok.ExpiresAt-tok.IssuedAt, 2)
	assert.False(t, tok.Expired(time.Minute))
}

func granularity(date string, impressions int, spend string) map[string]interface{} {
	return map[string]interface{}{
		"impressions": impressions, "taps": 2, "installs": 1, "newDownloads": 1, "redownloads": 0,
		"latOnInstalls": 1, "latOffInstalls": 0, "ttr": 0.1, "conversionRate": 0.5,
		"avgCPA": map[string]string{"amount": "1.00", "currency": "USD"},
		"avgCPT": map[string]string{"amount": "0.50", "currency": "USD"},
		"avgCPM": map[string]string{"amount": "10.00", "currency": "USD"},
		"localSpend": map[string]string{"amount": spend, "currency": "USD"},
		"date":       date,
	}
}

func TestCampaignReport(t *testing.T) {
	testutil.TestLogger(t)
	var windows [][2]string
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports/campaigns", r.URL.Path)
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		assert.Equal(t, "orgId=77", r.Header.Get("X-AP-Context"))

		var body map[string]interface{}
		require.NoError(t, json.Decode(r.Body, &body))
		assert.Equal(t, "DAILY", body["granularity"])
		assert.Equal(t, []interface{}{"countryOrRegion"}, body["groupBy"])
		start, end := body["startTime"].(string), body["endTime"].(string)
		windows = append(windows, [2]string{start, end})

		testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"reportingDataResponse": map[string]interface{}{"row": []interface{}{
				map[string]interface{}{
					"metadata":    map[string]interface{}{"campaignId": 2, "campaignName": "Zeta"},
					"granularity": []interface{}{granularity(end, 5, "3.00")},
				},
				map[string]interface{}{
					"metadata":    map[string]interface{}{"campaignId": 1, "campaignName": "Alpha"},
					"granularity": []interface{}{granularity(end, 9, "4.50"), granularity(start, 8, "1.25")},
				},
			}}},
		})
	}))

	c := New("at", "77", WithBaseURL(srv.URL), WithRateLimit(0))
	table, err := c.CampaignReport(testutil.TestContext(t),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"2024-01-01", "2024-01-20"}}, windows)
	assert.Equal(t, ReportColumns, table.Columns)
	records := table.Records()
	require.Len(t, records, 4)
	assert.Equal(t, []string{"2024-01-01", "1", "Alpha", "8", "1.25", "2", "1", "1", "0", "1", "0", "0.1", "1.00", "0.50", "10.00", "0.5"}, records[1])
	assert.Equal(t, "2024-01-20", records[2][0])
	assert.Equal(t, "Zeta", records[3][2])
}

func TestCampaignReportPropagatesHTTPErrors(t *testing.T) {
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	c := New("bad", "77", WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := c.CampaignReport(testutil.TestContext(t), time.Now().AddDate(0, 0, -1), time.Now())
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}
