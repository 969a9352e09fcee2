package realtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrIdentity indicates no strategy could resolve the caller. Connections
// that hit this are aborted; anonymous realtime sessions are not permitted.
var ErrIdentity = errors.New("identity could not be resolved")

// ConnSource exposes the slice of an inbound connection the identity
// strategies inspect. The websocket conn satisfies it via a thin adapter,
// and tests supply fakes.
type ConnSource interface {
	Query(key string) string
	Header(key string) string
	Principal(key string) interface{}
}

// TokenVerifier validates signed tokens against the server-held symmetric
// key. Issuer, audience and expiry are enforced with zero clock-skew
// tolerance; the subject claim carries the user id.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenVerifier creates a verifier for HMAC-signed tokens.
func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses and validates the token, returning the subject user id.
func (v *TokenVerifier) Verify(tokenString string) (uint, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return 0, ErrIdentity
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
	)
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: %v", ErrIdentity, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("%w: missing subject", ErrIdentity)
	}

	userID, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, fmt.Errorf("%w: invalid subject %q", ErrIdentity, subject)
	}

	return uint(userID), nil
}

// identityStrategy attempts to resolve a user id from one source. A false
// second return means "source absent or invalid, try the next one".
type identityStrategy func(src ConnSource, verifier *TokenVerifier) (uint, bool)

// identityStrategies is the fixed resolution order: query-string token
// (transports that cannot set headers), principal claims attached during the
// HTTP upgrade, then an Authorization bearer token.
var identityStrategies = []identityStrategy{
	queryTokenStrategy,
	principalClaimsStrategy,
	bearerHeaderStrategy,
}

// ResolveIdentity tries each strategy in order; the first success wins.
func ResolveIdentity(src ConnSource, verifier *TokenVerifier) (uint, error) {
	for _, strategy := range identityStrategies {
		if userID, ok := strategy(src, verifier); ok {
			return userID, nil
		}
	}
	return 0, ErrIdentity
}

func queryTokenStrategy(src ConnSource, verifier *TokenVerifier) (uint, bool) {
	token := src.Query("access_token")
	if token == "" {
		return 0, false
	}
	userID, err := verifier.Verify(token)
	if err != nil {
		return 0, false
	}
	return userID, true
}

func principalClaimsStrategy(src ConnSource, _ *TokenVerifier) (uint, bool) {
	value := src.Principal("user_id")
	if value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case uint:
		return v, v != 0
	case int:
		if v > 0 {
			return uint(v), true
		}
	case float64:
		if v > 0 {
			return uint(v), true
		}
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err == nil && parsed != 0 {
			return uint(parsed), true
		}
	}
	return 0, false
}

func bearerHeaderStrategy(src ConnSource, verifier *TokenVerifier) (uint, bool) {
	authorization := src.Header("Authorization")
	if authorization == "" {
		return 0, false
	}
	const bearer = "bearer "
	if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return 0, false
	}
	userID, err := verifier.Verify(authorization[len(bearer):])
	if err != nil {
		return 0, false
	}
	return userID, true
}
