package embed

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) (*Issuer, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewIssuer(Config{Secret: testSecret, Clock: mock}), mock
}

func parseClaims(t *testing.T, token string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		require.Equal(t, jwt.SigningMethodHS256, tok.Method)
		return []byte(testSecret), nil
	}, jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

func TestIssueExpiryMatchesTTL(t *testing.T) {
	issuer, mock := newTestIssuer(t)

	token, err := issuer.Issue(ResourceDashboard, 99, nil, 60*time.Second)
	require.NoError(t, err)

	claims := parseClaims(t, token.Value)
	exp := int64(claims["exp"].(float64))
	require.InDelta(t, mock.Now().Add(60*time.Second).Unix(), exp, 1)
	require.Equal(t, mock.Now().Add(60*time.Second), token.ExpiresAt)
}

func TestIssueClaimShape(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.Issue(ResourceDashboard, 99, map[string]interface{}{"region": "emea"}, time.Minute)
	require.NoError(t, err)

	claims := parseClaims(t, token.Value)
	resource := claims["resource"].(map[string]interface{})
	require.Equal(t, float64(99), resource["dashboard"])
	params := claims["params"].(map[string]interface{})
	require.Equal(t, "emea", params["region"])
}

func TestIssueDefaultsAndClampsTTL(t *testing.T) {
	issuer, mock := newTestIssuer(t)

	token, err := issuer.Issue(ResourceCollection, 10, nil, 0)
	require.NoError(t, err)
	require.Equal(t, mock.Now().Add(DefaultTTL), token.ExpiresAt)

	token, err = issuer.Issue(ResourceCollection, 10, nil, 100*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, mock.Now().Add(MaxTTL), token.ExpiresAt)
}

func TestIssuePathEmbedsResourceType(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	token, err := issuer.Issue(ResourceCollection, 10, nil, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "/embed/collection/"+token.Value, token.Path)
}

func TestIssueRejectsBadInput(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	_, err := issuer.Issue(ResourceType("card"), 1, nil, time.Minute)
	require.Error(t, err)

	_, err = issuer.Issue(ResourceDashboard, 0, nil, time.Minute)
	require.Error(t, err)
}
