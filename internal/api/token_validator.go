package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medrex/healthcare-records/pkg/types"
)

// TokenValidator verifies HMAC-signed bearer tokens. The token subject is
// the caller identity the store authorizes against.
type TokenValidator struct {
	jwtSecret []byte
	issuer    string
	audience  string
}

// NewTokenValidator creates a new token validator. Empty issuer or audience
// disables that check.
func NewTokenValidator(secret, issuer, audience string) *TokenValidator {
	return &TokenValidator{
		jwtSecret: []byte(secret),
		issuer:    issuer,
		audience:  audience,
	}
}

// ValidateToken parses tokenString and returns the caller identity.
func (tv *TokenValidator) ValidateToken(tokenString string) (types.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}
	if tv.audience != "" {
		opts = append(opts, jwt.WithAudience(tv.audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", types.NewAuthenticationError("token expired", err)
		}
		return "", types.NewAuthenticationError("invalid token", err)
	}
	if !token.Valid {
		return "", types.NewAuthenticationError("invalid token", nil)
	}

	identity, err := types.ParseIdentity(claims.Subject)
	if err != nil {
		return "", types.NewAuthenticationError("token has no subject", err)
	}
	return identity, nil
}

// IssueToken signs a token for identity valid for ttl. Used by operators
// and tests to mint caller credentials.
func (tv *TokenValidator) IssueToken(identity types.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identity.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    tv.issuer,
	}
	if tv.audience != "" {
		claims.Audience = jwt.ClaimStrings{tv.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tv.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
