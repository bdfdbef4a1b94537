// Package grant binds verified identities to stored offline OAuth credentials.
//
// A request is first authorized by the Gate, which yields a Subject. The
// Exchanger then trades a one-time authorization code for a refresh token and
// stores it against the Subject, or the Accessor loads the stored refresh
// token, mints a short-lived access token and lists the subject's primary
// calendar events with it.
//
// All collaborators are interfaces so that identity providers, OAuth servers,
// calendar APIs and stores can be swapped, and stubbed in tests.
package grant

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
)

// Subject is a verified identity. Only a Verifier creates one.
type Subject string

// CredentialRecord is the state persisted per subject.
type CredentialRecord struct {
	RefreshToken string
}

// Verifier checks an identity assertion, such as an ID token.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (Subject, error)
}

// CredentialStore holds at most one CredentialRecord per subject.
type CredentialStore interface {
	// Get returns ErrNoCredentialOnFile when the subject has no record.
	Get(ctx context.Context, subject Subject) (*CredentialRecord, error)

	// Set replaces any existing record for the subject.
	Set(ctx context.Context, subject Subject, rec CredentialRecord) error
}

// OAuthProvider talks to an OAuth2 token endpoint.
type OAuthProvider interface {
	// Exchange trades a one-time authorization code for tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh mints a fresh access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CalendarProvider lists events on the token owner's primary calendar.
type CalendarProvider interface {
	ListPrimaryEvents(ctx context.Context, token *oauth2.Token) (json.RawMessage, error)
}

var (
	// Returned when a request carries no identity assertion.
	ErrMissingAssertion = errors.NewC("missing identity assertion", codes.InvalidArgument).
				WithPublicMessage("Missing identity token")

	// Returned when a grant request carries no authorization code.
	ErrMissingCode = errors.NewC("missing authorization code", codes.InvalidArgument).
			WithPublicMessage("Missing auth code")

	// Returned when an identity assertion can't be verified.
	ErrUnauthorized = errors.NewC("identity verification failed", codes.PermissionDenied).
			WithPublicMessage("unauthorized")

	// Returned when a verified subject has never completed a grant.
	ErrNoCredentialOnFile = errors.NewC("no credential on file", codes.FailedPrecondition).
				WithHTTPStatusCode(http.StatusBadRequest).
				WithPublicMessage("No credentials saved for this user.")

	// Returned when the OAuth provider, calendar provider or credential store
	// fails. Detail is logged, never returned.
	ErrExternalProvider = errors.NewC("external provider failure", codes.Unavailable).
				WithHTTPStatusCode(http.StatusBadRequest).
				WithPublicMessage("Upstream provider request failed")
)

// providerFailure logs the cause against the request and returns
// ErrExternalProvider.
func providerFailure(ctx context.Context, op string, cause error) error {
	fields := []any{"op", op, "error", cause}
	var re *oauth2.RetrieveError
	if errors.As(cause, &re) {
		fields = append(fields, "oauth.error_code", re.ErrorCode, "oauth.status", responseStatus(re))
	}
	logging.Warnw(ctx, "grant: provider call failed", fields...)
	logging.Track(ctx, "grant.failed_op", op)
	return errors.Mark(ErrExternalProvider, 1)
}

func responseStatus(re *oauth2.RetrieveError) int {
	if re.Response == nil {
		return 0
	}
	return re.Response.StatusCode
}
