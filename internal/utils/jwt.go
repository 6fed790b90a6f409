package utils // package utils provides helpers for access tokens and secret hashing

import (
	"errors"  // errors for sentinel values
	"strconv" // strconv formats numeric subjects
	"time"    // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// ErrInvalidToken is returned when a token is malformed, expired, has no
// expiry, is signed with another key or carries no usable subject.
var ErrInvalidToken = errors.New("invalid token")

// MaxSubjectLen is the longest subject accepted as a user id; it matches
// the width of the user_id columns.
const MaxSubjectLen = 64

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT whose subject is userID.
// Tokens are normally issued by the identity provider; this is used by
// local tooling and tests.
func NewAccessToken(secret, userID string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseSubject validates an HS256 token and returns its subject.  The
// token must carry an exp claim and the subject must not exceed
// MaxSubjectLen bytes.  Numeric subjects are returned in decimal form so
// both "42" and 42 map to the same user.
func ParseSubject(secret, raw string) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	var sub string
	switch v := claims["sub"].(type) {
	case string:
		sub = v
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return "", ErrInvalidToken
		}
		sub = strconv.FormatUint(uint64(v), 10)
	}
	if sub == "" || len(sub) > MaxSubjectLen {
		return "", ErrInvalidToken
	}
	return sub, nil
}
