package grant

import (
	"net/http"
)

// handleGrant authorizes the caller, then exchanges the `code` parameter and
// responds with the token result.
func (p *GrantPlugin) handleGrant(r *http.Request) (any, error) {
	subject, err := p.gate.Authorize(r)
	if err != nil {
		return nil, err
	}
	return p.exchanger.ExchangeAndStore(r.Context(), subject, r.FormValue("code"))
}

// handleEvents authorizes the caller and relays their primary calendar
// events.
func (p *GrantPlugin) handleEvents(r *http.Request) (any, error) {
	subject, err := p.gate.Authorize(r)
	if err != nil {
		return nil, err
	}
	return p.accessor.FetchPrimaryCalendarEvents(r.Context(), subject)
}
