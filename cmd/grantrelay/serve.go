package main

import (
	"context"

	"github.com/dpup/grantrelay"
	"github.com/dpup/grantrelay/credentials"
	"github.com/dpup/grantrelay/devoauth"
	"github.com/dpup/grantrelay/google"
	"github.com/dpup/grantrelay/grant"
	"github.com/dpup/grantrelay/identity"
	"github.com/dpup/grantrelay/logging"
	"github.com/dpup/grantrelay/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := logging.NewLogger(grantrelay.ConfigString("logging.format"), grantrelay.ConfigString("logging.level"))
		ctx := logging.With(cmd.Context(), logger)

		if w := grantrelay.ConfigWarnings(); w != "" {
			logging.Warn(ctx, w)
		}

		s, err := buildServer(ctx)
		if err != nil {
			return err
		}
		return s.Start()
	},
}

// buildServer wires the plugins selected by config. The development OAuth
// server replaces Google when `dev.oauth.enabled` is set.
func buildServer(ctx context.Context) (*grantrelay.Server, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	verifier, err := identity.FromConfig(ctx)
	if err != nil {
		return nil, err
	}

	opts := []grantrelay.ServerOption{
		grantrelay.WithContext(ctx),
		grantrelay.WithLogger(logging.FromContext(ctx)),
		grantrelay.WithPlugin(storage.Plugin(store)),
		grantrelay.WithPlugin(credentials.Plugin()),
		grantrelay.WithPlugin(identity.Plugin(verifier)),
	}
	if grantrelay.ConfigBool("dev.oauth.enabled") {
		logging.Warn(ctx, "serving tokens from the development OAuth server, do not use in production")
		opts = append(opts, grantrelay.WithPlugin(devoauth.Plugin()))
	} else {
		opts = append(opts, grantrelay.WithPlugin(google.Plugin()))
	}
	opts = append(opts, grantrelay.WithPlugin(grant.Plugin()))

	return grantrelay.New(opts...), nil
}
