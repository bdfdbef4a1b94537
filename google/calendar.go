package google

import (
	"context"
	"encoding/json"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// ListPrimaryEvents lists events on the primary calendar of the token's
// owner, returning the API response as JSON.
func (p *GooglePlugin) ListPrimaryEvents(ctx context.Context, tok *oauth2.Token) (json.RawMessage, error) {
	svc, err := p.calendarService(ctx, tok)
	if err != nil {
		return nil, errors.WrapPrefix(err, "google: creating calendar service", 0)
	}

	events, err := svc.Events.List("primary").Context(ctx).Do()
	if err != nil {
		return nil, errors.WrapPrefix(err, "google: listing events", 0)
	}
	logging.Debugw(ctx, "google: listed events", "count", len(events.Items))

	b, err := json.Marshal(events)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return b, nil
}

// calendarService builds a service authorized by tok alone, so that no state
// is shared between callers.
func (p *GooglePlugin) calendarService(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
	client := oauth2.NewClient(p.withClient(ctx), oauth2.StaticTokenSource(tok))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.calendarEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.calendarEndpoint))
	}
	return calendar.NewService(ctx, opts...)
}
