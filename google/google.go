// Package google talks to Google's OAuth2 token endpoint and Calendar API.
//
// The plugin trades authorization codes obtained by a web client for tokens,
// using the `postmessage` redirect convention of the Google Identity Services
// code model, and lists events on the primary calendar of a token's owner.
//
// ## Configuring the Google OAuth client
//
// Create a "Web application" client and add the site's origin to the
// Authorized JavaScript origins. No redirect URI is needed when the code is
// obtained with a popup. Request the calendar scope with offline access so
// that Google returns a refresh token on first consent.
//
//	GR__GOOGLE__CLIENT_ID=...apps.googleusercontent.com
//	GR__GOOGLE__CLIENT_SECRET=...
package google

import (
	"context"
	"net/http"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/grpc/codes"
)

// PluginName can be used to query the google plugin.
const PluginName = "google"

// Redirect URL used when the authorization code was obtained by a popup.
const PostMessageRedirect = "postmessage"

func init() {
	grantrelay.RegisterConfigKeys(
		grantrelay.ConfigKeyInfo{
			Key:         "google.clientId",
			Description: "Google OAuth2 client ID",
			Type:        "string",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "google.clientSecret",
			Description: "Google OAuth2 client secret",
			Type:        "string",
			Secret:      true,
		},
		grantrelay.ConfigKeyInfo{
			Key:         "google.redirectUrl",
			Description: "Redirect URL sent with code exchanges",
			Type:        "string",
			Default:     PostMessageRedirect,
		},
		grantrelay.ConfigKeyInfo{
			Key:         "google.tokenUrl",
			Description: "Overrides Google's token endpoint",
			Type:        "string",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "google.scopes",
			Description: "Scopes the authorization code was granted for",
			Type:        "[]string",
			Default:     []string{calendar.CalendarReadonlyScope},
		},
		grantrelay.ConfigKeyInfo{
			Key:         "calendar.endpoint",
			Description: "Overrides the Calendar API base URL",
			Type:        "string",
		},
	)
}

// GoogleOption customizes the GooglePlugin.
type GoogleOption func(*GooglePlugin)

// WithClient sets the OAuth client id and secret.
//
// Config keys: `google.clientId`, `google.clientSecret`.
func WithClient(id, secret string) GoogleOption {
	return func(p *GooglePlugin) {
		p.config.ClientID = id
		p.config.ClientSecret = secret
	}
}

// WithRedirectURL sets the redirect URL sent with code exchanges. It must
// match the one the code was issued for.
func WithRedirectURL(u string) GoogleOption {
	return func(p *GooglePlugin) {
		p.config.RedirectURL = u
	}
}

// WithTokenURL points code exchanges and refreshes at another token endpoint.
func WithTokenURL(u string) GoogleOption {
	return func(p *GooglePlugin) {
		p.config.Endpoint.TokenURL = u
	}
}

// WithScopes sets the scopes associated with the client.
func WithScopes(scopes ...string) GoogleOption {
	return func(p *GooglePlugin) {
		p.config.Scopes = scopes
	}
}

// WithCalendarEndpoint points calendar requests at another base URL.
func WithCalendarEndpoint(u string) GoogleOption {
	return func(p *GooglePlugin) {
		p.calendarEndpoint = u
	}
}

// WithHTTPClient sets the client used for all outbound requests.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(p *GooglePlugin) {
		p.client = c
	}
}

// Plugin returns a GooglePlugin configured from `google.*` and
// `calendar.endpoint`, then opts.
func Plugin(opts ...GoogleOption) *GooglePlugin {
	endpoint := google.Endpoint
	if u := grantrelay.ConfigString("google.tokenUrl"); u != "" {
		endpoint.TokenURL = u
	}
	p := &GooglePlugin{
		config: oauth2.Config{
			ClientID:     grantrelay.ConfigString("google.clientId"),
			ClientSecret: grantrelay.ConfigString("google.clientSecret"),
			RedirectURL:  grantrelay.ConfigString("google.redirectUrl"),
			Scopes:       grantrelay.ConfigStrings("google.scopes"),
			Endpoint:     endpoint,
		},
		calendarEndpoint: grantrelay.ConfigString("calendar.endpoint"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GooglePlugin implements grant.OAuthProvider and grant.CalendarProvider.
type GooglePlugin struct {
	config           oauth2.Config
	calendarEndpoint string
	client           *http.Client
}

// From grantrelay.Plugin.
func (p *GooglePlugin) Name() string {
	return PluginName
}

// From grantrelay.InitializablePlugin.
func (p *GooglePlugin) Init(ctx context.Context, r *grantrelay.Registry) error {
	if p.config.ClientID == "" {
		return errors.NewC("google: config missing client id, set GR__GOOGLE__CLIENT_ID", codes.InvalidArgument)
	}
	if p.config.ClientSecret == "" {
		return errors.NewC("google: config missing client secret, set GR__GOOGLE__CLIENT_SECRET", codes.InvalidArgument)
	}
	return nil
}

// withClient returns a context that makes oauth2 use the configured client.
func (p *GooglePlugin) withClient(ctx context.Context) context.Context {
	if p.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}
