package realtime

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "realtime-test-secret"
	testIssuer   = "linkfield"
	testAudience = "linkfield-clients"
)

type fakeConnSource struct {
	query     map[string]string
	header    map[string]string
	principal map[string]interface{}
}

func (f fakeConnSource) Query(key string) string  { return f.query[key] }
func (f fakeConnSource) Header(key string) string { return f.header[key] }
func (f fakeConnSource) Principal(key string) interface{} {
	if f.principal == nil {
		return nil
	}
	return f.principal[key]
}

func signToken(t *testing.T, mutate func(claims jwt.MapClaims)) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": "7",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestTokenVerifier(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, testIssuer, testAudience)

	userID, err := verifier.Verify(signToken(t, nil))
	require.NoError(t, err)
	require.Equal(t, uint(7), userID)

	cases := map[string]string{
		"empty token":    "",
		"wrong issuer":   signToken(t, func(c jwt.MapClaims) { c["iss"] = "someone-else" }),
		"wrong audience": signToken(t, func(c jwt.MapClaims) { c["aud"] = "other-clients" }),
		"expired":        signToken(t, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Second).Unix() }),
		"missing expiry": signToken(t, func(c jwt.MapClaims) { delete(c, "exp") }),
		"zero subject":   signToken(t, func(c jwt.MapClaims) { c["sub"] = "0" }),
		"bad subject":    signToken(t, func(c jwt.MapClaims) { c["sub"] = "alice" }),
	}
	for name, token := range cases {
		_, err := verifier.Verify(token)
		require.ErrorIs(t, err, ErrIdentity, name)
	}
}

func TestTokenVerifierRejectsForeignSignature(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, testIssuer, testAudience)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("another-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(foreign)
	require.ErrorIs(t, err, ErrIdentity)
}

func TestResolveIdentityQueryToken(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, testIssuer, testAudience)

	userID, err := ResolveIdentity(fakeConnSource{
		query: map[string]string{"access_token": signToken(t, nil)},
	}, verifier)
	require.NoError(t, err)
	require.Equal(t, uint(7), userID)
}

func TestResolveIdentityPrincipalClaims(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, testIssuer, testAudience)

	for name, value := range map[string]interface{}{
		"uint":    uint(11),
		"int":     11,
		"float64": float64(11),
		"string":  "11",
	} {
		userID, err := ResolveIdentity(fakeConnSource{
			principal: map[string]interface{}{"user_id": value},
		}, verifier)
		require.NoError(t, err, name)
		require.Equal(t, uint(11), userID, name)
	}
}

// A connection carrying an invalid query token and a valid header token must
// still resolve: the strategies fall through in order.
func TestResolveIdentityFallsThroughInOrder(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, testIssuer, testAudience)

	userID, err := ResolveIdentity(fakeConnSource{
		query:  map[string]string{"access_token": "not-a-token"},
		header: map[string]string{"Authorization": "Bearer " + signToken(t, nil)},
	}, verifier)
	require.NoError(t, err)
	require.Equal(t, uint(7), userID)
}

// The query strategy outranks the header strategy when both carry valid
// tokens.
func TestResolveIdentityQueryPrecedence(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, testIssuer, testAudience)

	queryToken := signToken(t, func(c jwt.MapClaims) { c["sub"] = "1" })
	headerToken := signToken(t, func(c jwt.MapClaims) { c["sub"] = "2" })

	userID, err := ResolveIdentity(fakeConnSource{
		query:  map[string]string{"access_token": queryToken},
		header: map[string]string{"Authorization": "Bearer " + headerToken},
	}, verifier)
	require.NoError(t, err)
	require.Equal(t, uint(1), userID)
}

func TestResolveIdentityAllSourcesFail(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, testIssuer, testAudience)

	_, err := ResolveIdentity(fakeConnSource{
		query:     map[string]string{"access_token": "garbage"},
		header:    map[string]string{"Authorization": "Bearer garbage"},
		principal: map[string]interface{}{"user_id": "not-numeric"},
	}, verifier)
	require.ErrorIs(t, err, ErrIdentity)
}
