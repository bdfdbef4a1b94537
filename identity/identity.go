// Package identity verifies identity assertions and turns them into
// grant.Subjects.
//
// Three verifiers are provided:
//
//   - Firebase verifies Firebase Authentication ID tokens.
//   - Google verifies Google Sign-In ID tokens.
//   - JWT verifies HS256 tokens signed with a shared key, for local
//     development and tests.
//
// The verifier used by the server is chosen with `identity.verifier`.
package identity

import (
	"context"
	"time"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/grant"
	"github.com/dpup/grantrelay/logging"
	"google.golang.org/grpc/codes"
)

// PluginName can be used to query the identity plugin.
const PluginName = "identity"

// Clock skew tolerated when checking token times.
const leeway = 10 * time.Second

var (
	// Returned for any assertion that fails verification.
	ErrInvalidToken = errors.NewC("identity: invalid token", codes.Unauthenticated)

	// Returned when `identity.verifier` names an unknown verifier.
	ErrUnknownVerifier = errors.NewC("identity: unknown verifier", codes.InvalidArgument)
)

func init() {
	grantrelay.RegisterConfigKeys(
		grantrelay.ConfigKeyInfo{
			Key:         "identity.verifier",
			Description: "Identity verifier to use: firebase, google or jwt",
			Type:        "string",
			Default:     "firebase",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "identity.projectId",
			Description: "Firebase project ID, the expected audience of Firebase ID tokens",
			Type:        "string",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "identity.audience",
			Description: "Expected audience of Google or JWT tokens, defaults to google.clientId or address",
			Type:        "string",
		},
		grantrelay.ConfigKeyInfo{
			Key:         "identity.signingKey",
			Description: "HS256 key for the jwt verifier",
			Type:        "string",
			Secret:      true,
		},
		grantrelay.ConfigKeyInfo{
			Key:         "identity.issuer",
			Description: "Expected issuer of JWT tokens, defaults to address",
			Type:        "string",
		},
	)
}

// FromConfig builds the verifier selected by `identity.verifier`.
func FromConfig(ctx context.Context) (grant.Verifier, error) {
	kind := grantrelay.ConfigString("identity.verifier")
	logging.Infow(ctx, "identity: configuring verifier", "verifier", kind)

	switch kind {
	case "firebase":
		projectID, err := grantrelay.ConfigMustString("identity.projectId", "set GR__IDENTITY__PROJECT_ID to the Firebase project ID")
		if err != nil {
			return nil, err
		}
		return NewFirebase(projectID), nil

	case "google":
		aud := firstNonEmpty(grantrelay.ConfigString("identity.audience"), grantrelay.ConfigString("google.clientId"))
		if aud == "" {
			return nil, errors.NewC("identity: google verifier requires identity.audience or google.clientId", codes.InvalidArgument)
		}
		return NewGoogle(aud), nil

	case "jwt":
		key, err := grantrelay.ConfigMustString("identity.signingKey", "set GR__IDENTITY__SIGNING_KEY")
		if err != nil {
			return nil, err
		}
		address := grantrelay.ConfigString("address")
		return NewJWT(
			key,
			firstNonEmpty(grantrelay.ConfigString("identity.issuer"), address),
			firstNonEmpty(grantrelay.ConfigString("identity.audience"), address),
		), nil
	}
	return nil, errors.Mark(ErrUnknownVerifier, 0).WithPublicMessage("unknown verifier: " + kind)
}

// Plugin registers a verifier with the server, making it available to the
// grant plugin.
func Plugin(v grant.Verifier) *IdentityPlugin {
	return &IdentityPlugin{Verifier: v}
}

// IdentityPlugin wraps a grant.Verifier.
type IdentityPlugin struct {
	grant.Verifier
}

// From grantrelay.Plugin.
func (p *IdentityPlugin) Name() string {
	return PluginName
}

// invalid returns an error matching both ErrInvalidToken and cause.
func invalid(cause error) error {
	return errors.Errorf("%w: %w", ErrInvalidToken, cause).WithCode(codes.Unauthenticated)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
