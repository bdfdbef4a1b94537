package grant

import (
	"net/http"
	"strings"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
)

// Request parameters that may carry the identity assertion, in lookup order.
var assertionParams = []string{"idToken", "id_token"}

// Gate authorizes inbound requests. It fails closed: nothing downstream runs
// unless Authorize returns a Subject.
type Gate struct {
	verifier Verifier
}

// NewGate returns a gate that verifies assertions with v.
func NewGate(v Verifier) *Gate {
	return &Gate{verifier: v}
}

// Authorize extracts the identity assertion from r and verifies it.
//
// The assertion is read from an `Authorization: Bearer <token>` header, or
// failing that from the `idToken` (or `id_token`) query or form parameter.
// Subject identifiers supplied directly by the caller are never trusted.
func (g *Gate) Authorize(r *http.Request) (Subject, error) {
	ctx := r.Context()

	assertion, err := extractAssertion(r)
	if err != nil {
		return "", err
	}

	subject, err := g.verifier.Verify(ctx, assertion)
	if err != nil {
		logging.Warnw(ctx, "grant: identity verification failed", "error", err)
		return "", errors.Mark(ErrUnauthorized, 0)
	}
	if subject == "" {
		logging.Warn(ctx, "grant: verifier returned an empty subject")
		return "", errors.Mark(ErrUnauthorized, 0)
	}

	logging.Track(ctx, "subject", string(subject))
	return subject, nil
}

func extractAssertion(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, _ := strings.Cut(h, " ")
		token = strings.TrimSpace(token)
		if !strings.EqualFold(scheme, "Bearer") || token == "" {
			logging.Warnw(r.Context(), "grant: malformed authorization header", "scheme", scheme)
			return "", errors.Mark(ErrUnauthorized, 1)
		}
		return token, nil
	}

	for _, p := range assertionParams {
		if v := r.FormValue(p); v != "" {
			return v, nil
		}
	}
	return "", errors.Mark(ErrMissingAssertion, 1)
}
