package identity

import (
	"context"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/grant"
	"google.golang.org/api/idtoken"
)

// Google verifies ID tokens issued by Google Sign-In for a given audience,
// usually the OAuth client ID. See:
// https://developers.google.com/identity/sign-in/web/backend-auth
type Google struct {
	audience string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogle returns a verifier for tokens issued to audience.
func NewGoogle(audience string) *Google {
	return &Google{audience: audience, validate: idtoken.Validate}
}

// Verify implements grant.Verifier.
func (g *Google) Verify(ctx context.Context, assertion string) (grant.Subject, error) {
	payload, err := g.validate(ctx, assertion, g.audience)
	if err != nil {
		return "", invalid(err)
	}
	if payload.Subject == "" {
		return "", invalid(errors.New("empty subject"))
	}
	return grant.Subject(payload.Subject), nil
}
