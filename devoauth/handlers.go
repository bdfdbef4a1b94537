package devoauth

import (
	"net/http"

	"github.com/dpup/grantrelay/logging"
)

type codeResponse struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// handleCode mints a code for the `subject` parameter.
func (p *DevOAuthPlugin) handleCode(r *http.Request) (any, error) {
	code, err := p.IssueCode(r.Context(), r.FormValue("subject"))
	if err != nil {
		return nil, err
	}
	return &codeResponse{Code: code, RedirectURI: redirectURI}, nil
}

// handleToken serves the OAuth2 token endpoint. Errors are written by the
// go-oauth2 server in the standard JSON shape.
func (p *DevOAuthPlugin) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := p.server.HandleTokenRequest(w, r); err != nil {
		logging.Errorw(r.Context(), "devoauth: writing token response", "error", err)
	}
}
