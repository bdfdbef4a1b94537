package grant

import (
	"context"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"golang.org/x/oauth2"
)

// Exchanger trades authorization codes for refresh tokens and stores them. It
// is the only writer of CredentialRecords.
type Exchanger struct {
	oauth OAuthProvider
	store CredentialStore
}

// NewExchanger returns an Exchanger.
func NewExchanger(oauth OAuthProvider, store CredentialStore) *Exchanger {
	return &Exchanger{oauth: oauth, store: store}
}

// ExchangeAndStore exchanges code and overwrites the subject's record with the
// new refresh token. Nothing is written unless the exchange yields a refresh
// token. Codes are single use, a replayed code fails at the provider and the
// failure is not retried.
//
// Concurrent exchanges for the same subject are last-write-wins.
func (e *Exchanger) ExchangeAndStore(ctx context.Context, subject Subject, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.Mark(ErrMissingCode, 0)
	}

	tok, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, providerFailure(ctx, "oauth.exchange", err)
	}
	if tok == nil || tok.RefreshToken == "" {
		return nil, providerFailure(ctx, "oauth.exchange", errors.New("token response has no refresh token"))
	}

	if err := e.store.Set(ctx, subject, CredentialRecord{RefreshToken: tok.RefreshToken}); err != nil {
		return nil, providerFailure(ctx, "store.set", err)
	}

	logging.Infow(ctx, "grant: stored offline credential", "subject", string(subject))
	return tok, nil
}
