package grant

import (
	"context"
	"net/http"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/errors"
	"google.golang.org/grpc/codes"
)

// PluginName can be used to query the grant plugin.
const PluginName = "grant"

func init() {
	grantrelay.RegisterConfigKeys(
		grantrelay.ConfigKeyInfo{
			Key:         "grant.grantPath",
			Description: "Path of the offline grant endpoint",
			Type:        "string",
			Default:     "/api/offlineGrant",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "grant.eventsPath",
			Description: "Path of the calendar events endpoint",
			Type:        "string",
			Default:     "/api/events",
		},
	)
}

// Names of plugins that collaborators are looked up from when not set
// explicitly.
var collaboratorPlugins = []string{"identity", "credentials", "google", "devoauth"}

// GrantOption customizes the grant plugin.
type GrantOption func(*GrantPlugin)

// WithVerifier sets the identity verifier.
func WithVerifier(v Verifier) GrantOption {
	return func(p *GrantPlugin) {
		p.verifier = v
	}
}

// WithCredentialStore sets the credential store.
func WithCredentialStore(s CredentialStore) GrantOption {
	return func(p *GrantPlugin) {
		p.store = s
	}
}

// WithOAuthProvider sets the OAuth provider used for code exchange and
// refresh.
func WithOAuthProvider(o OAuthProvider) GrantOption {
	return func(p *GrantPlugin) {
		p.oauth = o
	}
}

// WithCalendarProvider sets the calendar provider.
func WithCalendarProvider(c CalendarProvider) GrantOption {
	return func(p *GrantPlugin) {
		p.calendar = c
	}
}

// WithPaths overrides the endpoint paths.
//
// Config keys: `grant.grantPath`, `grant.eventsPath`.
func WithPaths(grantPath, eventsPath string) GrantOption {
	return func(p *GrantPlugin) {
		p.grantPath = grantPath
		p.eventsPath = eventsPath
	}
}

// Plugin returns a new GrantPlugin. Collaborators that aren't set with options
// are resolved at Init from other registered plugins that implement the
// matching interface.
func Plugin(opts ...GrantOption) *GrantPlugin {
	p := &GrantPlugin{
		grantPath:  grantrelay.ConfigString("grant.grantPath"),
		eventsPath: grantrelay.ConfigString("grant.eventsPath"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GrantPlugin serves the offline grant and calendar events endpoints.
type GrantPlugin struct {
	verifier Verifier
	store    CredentialStore
	oauth    OAuthProvider
	calendar CalendarProvider

	grantPath  string
	eventsPath string

	gate      *Gate
	exchanger *Exchanger
	accessor  *Accessor
}

// From grantrelay.Plugin.
func (p *GrantPlugin) Name() string {
	return PluginName
}

// From grantrelay.OptionalDependentPlugin.
func (p *GrantPlugin) OptDeps() []string {
	return collaboratorPlugins
}

// From grantrelay.OptionProvider.
func (p *GrantPlugin) ServerOptions() []grantrelay.ServerOption {
	var opts []grantrelay.ServerOption
	for _, m := range []string{http.MethodGet, http.MethodPost} {
		opts = append(opts,
			grantrelay.WithJSONHandler(m+" "+p.grantPath, p.handleGrant),
			grantrelay.WithJSONHandler(m+" "+p.eventsPath, p.handleEvents),
		)
	}
	return opts
}

// From grantrelay.InitializablePlugin.
func (p *GrantPlugin) Init(ctx context.Context, r *grantrelay.Registry) error {
	for _, name := range collaboratorPlugins {
		pl := r.Get(name)
		if pl == nil {
			continue
		}
		if v, ok := pl.(Verifier); ok && p.verifier == nil {
			p.verifier = v
		}
		if s, ok := pl.(CredentialStore); ok && p.store == nil {
			p.store = s
		}
		if o, ok := pl.(OAuthProvider); ok && p.oauth == nil {
			p.oauth = o
		}
		if c, ok := pl.(CalendarProvider); ok && p.calendar == nil {
			p.calendar = c
		}
	}

	switch {
	case p.verifier == nil:
		return errors.NewC("grant: no identity verifier configured", codes.FailedPrecondition)
	case p.store == nil:
		return errors.NewC("grant: no credential store configured", codes.FailedPrecondition)
	case p.oauth == nil:
		return errors.NewC("grant: no oauth provider configured", codes.FailedPrecondition)
	case p.calendar == nil:
		return errors.NewC("grant: no calendar provider configured", codes.FailedPrecondition)
	}

	p.gate = NewGate(p.verifier)
	p.exchanger = NewExchanger(p.oauth, p.store)
	p.accessor = NewAccessor(p.oauth, p.calendar, p.store)
	return nil
}
