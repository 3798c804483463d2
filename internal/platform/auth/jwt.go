package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const jwtSubjectClaim = "userId"

// JWTVerifier validates HS256 tokens issued by the storefront's own login service. The subject is
// read from the userId claim and falls back to sub.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// JWTOption customises a JWTVerifier.
type JWTOption func(*JWTVerifier)

// WithJWTIssuer requires the iss claim to match issuer.
func WithJWTIssuer(issuer string) JWTOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// NewJWTVerifier constructs a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(_ context.Context, raw string) (VerifiedToken, error) {
	if v == nil {
		return VerifiedToken{}, errors.New("auth: jwt verifier not initialised")
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifiedToken{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return VerifiedToken{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return VerifiedToken{}, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}

	subject := subjectFromClaims(claims)
	if subject == "" {
		return VerifiedToken{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return VerifiedToken{Subject: subject, Claims: map[string]any(claims)}, nil
}

func subjectFromClaims(claims jwt.MapClaims) string {
	switch v := claims[jwtSubjectClaim].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if sub, ok := claims["sub"].(string); ok {
		return strings.TrimSpace(sub)
	}
	return ""
}
