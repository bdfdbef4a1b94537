package identity

import (
	"context"
	"time"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/grant"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
)

// JWT verifies HS256 tokens signed with a shared key. Use IssueToken to mint
// tokens for local development.
type JWT struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWT returns a verifier for tokens signed with signingKey.
func NewJWT(signingKey, issuer, audience string) *JWT {
	return &JWT{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// IssueToken signs a token for subject, valid for ttl.
func (j *JWT) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    j.issuer,
		Audience:  jwt.ClaimStrings{j.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
	if err != nil {
		return "", errors.WithCode(err, codes.Internal)
	}
	return ss, nil
}

// Verify implements grant.Verifier.
func (j *JWT) Verify(ctx context.Context, assertion string) (grant.Subject, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		assertion,
		claims,
		func(token *jwt.Token) (any, error) {
			return j.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return "", invalid(err)
	}
	if claims.Subject == "" {
		return "", invalid(errors.New("empty subject"))
	}
	return grant.Subject(claims.Subject), nil
}
