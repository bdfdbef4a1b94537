package google

import (
	"context"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"golang.org/x/oauth2"
)

// Exchange trades an authorization code for tokens. Codes are single use, so
// a replayed code fails with an invalid_grant *oauth2.RetrieveError.
func (p *GooglePlugin) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	logging.Infow(ctx, "google: exchanging authorization code", "redirect_url", p.config.RedirectURL)
	tok, err := p.config.Exchange(p.withClient(ctx), code)
	if err != nil {
		return nil, errors.WrapPrefix(err, "google: code exchange failed", 0)
	}
	return tok, nil
}

// Refresh mints a new access token from a refresh token. Nothing is cached,
// every call reaches the token endpoint.
func (p *GooglePlugin) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts := p.config.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, errors.WrapPrefix(err, "google: token refresh failed", 0)
	}
	return tok, nil
}
