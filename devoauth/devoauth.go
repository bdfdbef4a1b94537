// Package devoauth runs a small OAuth2 authorization server inside the
// process, for local development and tests that shouldn't reach Google.
//
// The plugin stands in for the google plugin. It issues single-use
// authorization codes for a subject, trades them for refresh tokens, mints
// access tokens from those and serves a fixed event list to holders of a
// valid access token.
//
// Codes are minted with `POST /dev/oauth/code` and the token endpoint is
// served at `POST /dev/oauth/token`, so that OAuth clients, including the
// google plugin pointed at it with `google.tokenUrl`, can talk to it too.
//
//	GR__DEV__OAUTH__ENABLED=true
package devoauth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"github.com/go-oauth2/oauth2/v4"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/go-oauth2/oauth2/v4/manage"
	"github.com/go-oauth2/oauth2/v4/models"
	"github.com/go-oauth2/oauth2/v4/server"
	xoauth2 "golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/grpc/codes"
)

// PluginName can be used to query the devoauth plugin.
const PluginName = "devoauth"

// Redirect URI codes are issued for, matching what popup clients send.
const redirectURI = "postmessage"

func init() {
	grantrelay.RegisterConfigKeys(
		grantrelay.ConfigKeyInfo{
			Key:         "dev.oauth.enabled",
			Description: "Serve tokens from the in-process development OAuth server instead of Google",
			Type:        "bool",
			Default:     false,
		},
		grantrelay.ConfigKeyInfo{
			Key:         "dev.oauth.clientId",
			Description: "Client ID accepted by the development OAuth server",
			Type:        "string",
			Default:     "grantrelay-dev",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "dev.oauth.clientSecret",
			Description: "Client secret accepted by the development OAuth server",
			Type:        "string",
			Default:     "grantrelay-dev-secret",
			Secret:      true,
		},
	)
}

// ErrCodeRequest is returned when a code is requested without a subject.
var ErrCodeRequest = errors.NewC("devoauth: subject required", codes.InvalidArgument).
	WithPublicMessage("subject is required")

// DevOption customizes the DevOAuthPlugin.
type DevOption func(*DevOAuthPlugin)

// WithClient sets the only client the server accepts.
func WithClient(id, secret string) DevOption {
	return func(p *DevOAuthPlugin) {
		p.clientID = id
		p.clientSecret = secret
	}
}

// WithAccessTokenExpiry sets how long minted access tokens are valid.
func WithAccessTokenExpiry(d time.Duration) DevOption {
	return func(p *DevOAuthPlugin) {
		p.accessTokenExpiry = d
	}
}

// WithAuthCodeExpiry sets how long issued codes can be exchanged.
func WithAuthCodeExpiry(d time.Duration) DevOption {
	return func(p *DevOAuthPlugin) {
		p.authCodeExpiry = d
	}
}

// WithEvents sets the events served to token holders.
func WithEvents(events ...*calendar.Event) DevOption {
	return func(p *DevOAuthPlugin) {
		p.events = events
	}
}

// Plugin returns a DevOAuthPlugin configured from `dev.oauth.*`, then opts.
func Plugin(opts ...DevOption) *DevOAuthPlugin {
	p := &DevOAuthPlugin{
		clientID:          grantrelay.ConfigString("dev.oauth.clientId"),
		clientSecret:      grantrelay.ConfigString("dev.oauth.clientSecret"),
		accessTokenExpiry: time.Hour,
		authCodeExpiry:    10 * time.Minute,
		events:            defaultEvents(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.build()
	return p
}

// DevOAuthPlugin implements grant.OAuthProvider and grant.CalendarProvider
// against an in-process go-oauth2 server.
type DevOAuthPlugin struct {
	clientID          string
	clientSecret      string
	accessTokenExpiry time.Duration
	authCodeExpiry    time.Duration
	events            []*calendar.Event

	manager *manage.Manager
	server  *server.Server
	tokens  *tokenStore
}

func (p *DevOAuthPlugin) build() {
	clients := newClientStore(&models.Client{
		ID:     p.clientID,
		Secret: p.clientSecret,
		Domain: redirectURI,
	})
	p.tokens = newTokenStore()

	p.manager = manage.NewDefaultManager()
	p.manager.SetAuthorizeCodeExp(p.authCodeExpiry)
	p.manager.SetAuthorizeCodeTokenCfg(&manage.Config{
		AccessTokenExp:    p.accessTokenExpiry,
		IsGenerateRefresh: true,
	})
	// Refresh tokens stay valid across refreshes, like Google's.
	p.manager.SetRefreshTokenCfg(&manage.RefreshingConfig{
		AccessTokenExp:    p.accessTokenExpiry,
		IsGenerateRefresh: false,
		IsRemoveAccess:    true,
	})
	p.manager.MapClientStorage(clients)
	p.manager.MapTokenStorage(p.tokens)
	p.manager.SetValidateURIHandler(func(baseURI, uri string) error {
		if baseURI != uri {
			return oautherrors.ErrInvalidRedirectURI
		}
		return nil
	})

	p.server = server.NewDefaultServer(p.manager)
	p.server.SetAllowGetAccessRequest(false)
	p.server.SetAllowedGrantType(oauth2.AuthorizationCode, oauth2.Refreshing)
	p.server.SetClientInfoHandler(func(r *http.Request) (string, string, error) {
		if id, secret, ok := r.BasicAuth(); ok {
			return id, secret, nil
		}
		return r.Form.Get("client_id"), r.Form.Get("client_secret"), nil
	})
}

// From grantrelay.Plugin.
func (p *DevOAuthPlugin) Name() string {
	return PluginName
}

// From grantrelay.OptionProvider.
func (p *DevOAuthPlugin) ServerOptions() []grantrelay.ServerOption {
	return []grantrelay.ServerOption{
		grantrelay.WithJSONHandler("POST /dev/oauth/code", p.handleCode),
		grantrelay.WithHTTPHandler("POST /dev/oauth/token", http.HandlerFunc(p.handleToken)),
	}
}

// IssueCode mints a single-use authorization code for subject, as if they
// had just completed a consent popup.
func (p *DevOAuthPlugin) IssueCode(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", errors.Mark(ErrCodeRequest, 0)
	}
	ti, err := p.manager.GenerateAuthToken(ctx, oauth2.Code, &oauth2.TokenGenerateRequest{
		ClientID:    p.clientID,
		UserID:      subject,
		RedirectURI: redirectURI,
		Scope:       calendar.CalendarReadonlyScope,
	})
	if err != nil {
		return "", errors.WrapPrefix(err, "devoauth: issuing code", 0)
	}
	logging.Infow(ctx, "devoauth: issued authorization code", "subject", subject)
	return ti.GetCode(), nil
}

// Exchange trades a code issued by IssueCode for tokens. Each code works
// once.
func (p *DevOAuthPlugin) Exchange(ctx context.Context, code string) (*xoauth2.Token, error) {
	ti, err := p.manager.GenerateAccessToken(ctx, oauth2.AuthorizationCode, &oauth2.TokenGenerateRequest{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURI:  redirectURI,
		Code:         code,
	})
	if err != nil {
		return nil, retrieveError(err)
	}
	return toToken(ti), nil
}

// Refresh mints a new access token from a refresh token.
func (p *DevOAuthPlugin) Refresh(ctx context.Context, refreshToken string) (*xoauth2.Token, error) {
	ti, err := p.manager.RefreshAccessToken(ctx, &oauth2.TokenGenerateRequest{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Refresh:      refreshToken,
	})
	if err != nil {
		return nil, retrieveError(err)
	}
	return toToken(ti), nil
}

// ListPrimaryEvents returns the configured events if tok is a live access
// token, in the shape of a Calendar API events list.
func (p *DevOAuthPlugin) ListPrimaryEvents(ctx context.Context, tok *xoauth2.Token) (json.RawMessage, error) {
	ti, err := p.manager.LoadAccessToken(ctx, tok.AccessToken)
	if err != nil {
		return nil, errors.WrapPrefix(err, "devoauth: rejected access token", 0).WithCode(codes.Unauthenticated)
	}
	b, err := json.Marshal(&calendar.Events{
		Kind:     "calendar#events",
		Summary:  ti.GetUserID(),
		TimeZone: "UTC",
		Items:    p.events,
	})
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return b, nil
}

// toToken converts a go-oauth2 token to the client-side representation.
func toToken(ti oauth2.TokenInfo) *xoauth2.Token {
	tok := &xoauth2.Token{
		AccessToken:  ti.GetAccess(),
		TokenType:    "Bearer",
		RefreshToken: ti.GetRefresh(),
	}
	if exp := ti.GetAccessExpiresIn(); exp > 0 {
		tok.Expiry = ti.GetAccessCreateAt().Add(exp)
	}
	return tok
}

// retrieveError reports a server-side failure the way a remote token
// endpoint would, so callers handle both alike.
func retrieveError(err error) error {
	re := &xoauth2.RetrieveError{ErrorCode: "server_error", ErrorDescription: err.Error()}
	switch err {
	case oautherrors.ErrInvalidAuthorizeCode, oautherrors.ErrInvalidRefreshToken,
		oautherrors.ErrExpiredRefreshToken, oautherrors.ErrInvalidGrant:
		re.ErrorCode = "invalid_grant"
	case oautherrors.ErrInvalidClient:
		re.ErrorCode = "invalid_client"
	}
	return errors.Wrap(re, 1)
}

func defaultEvents() []*calendar.Event {
	start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	return []*calendar.Event{
		{
			Id:      "dev-standup",
			Summary: "Standup",
			Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
			End:     &calendar.EventDateTime{DateTime: start.Add(15 * time.Minute).Format(time.RFC3339)},
		},
		{
			Id:      "dev-review",
			Summary: "Design review",
			Start:   &calendar.EventDateTime{DateTime: start.Add(2 * time.Hour).Format(time.RFC3339)},
			End:     &calendar.EventDateTime{DateTime: start.Add(3 * time.Hour).Format(time.RFC3339)},
		},
	}
}
