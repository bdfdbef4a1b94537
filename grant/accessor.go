package grant

import (
	"context"
	"encoding/json"

	"github.com/dpup/grantrelay/errors"
)

// Accessor reads stored credentials and relays calendar data. It never writes
// to the store and never keeps the access tokens it mints.
type Accessor struct {
	oauth    OAuthProvider
	calendar CalendarProvider
	store    CredentialStore
}

// NewAccessor returns an Accessor.
func NewAccessor(oauth OAuthProvider, calendar CalendarProvider, store CredentialStore) *Accessor {
	return &Accessor{oauth: oauth, calendar: calendar, store: store}
}

// FetchPrimaryCalendarEvents mints a fresh access token from the subject's
// refresh token and lists their primary calendar exactly once. The provider's
// payload is returned untouched.
func (a *Accessor) FetchPrimaryCalendarEvents(ctx context.Context, subject Subject) (json.RawMessage, error) {
	rec, err := a.store.Get(ctx, subject)
	if errors.Is(err, ErrNoCredentialOnFile) {
		return nil, err
	} else if err != nil {
		return nil, providerFailure(ctx, "store.get", err)
	}
	if rec.RefreshToken == "" {
		return nil, errors.Mark(ErrNoCredentialOnFile, 0)
	}

	tok, err := a.oauth.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return nil, providerFailure(ctx, "oauth.refresh", err)
	}

	events, err := a.calendar.ListPrimaryEvents(ctx, tok)
	if err != nil {
		return nil, providerFailure(ctx, "calendar.list", err)
	}
	return events, nil
}
