package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/splatbot/nsoauth/internal/conf"
	"github.com/splatbot/nsoauth/internal/observability"
	"github.com/splatbot/nsoauth/internal/prompt"
	"github.com/splatbot/nsoauth/internal/provider"
	"github.com/splatbot/nsoauth/internal/tokens"
	"github.com/splatbot/nsoauth/internal/utilities"
)

var (
	sessionToken string
	redirectURL  string
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and obtain a gtoken and bulletToken",
		Long:  "Runs the Nintendo Account login, then exchanges the session token for a web service token (gtoken) and a SplatNet 3 bulletToken.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execWithConfig(cmd, login)
		},
	}

	cmd.Flags().StringVar(&sessionToken, "session-token", "", "skip the login and start from an existing session token")
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "use this redirect url instead of prompting for it")

	return cmd
}

// newService wires the provider clients for one run. Version discovery runs
// first so every stage sees the same versions.
func newService(ctx context.Context, config *conf.GlobalConfiguration) (*tokens.Service, provider.RunContext, error) {
	client := utilities.NewHTTPClient(config.HTTP.Timeout)
	session, err := utilities.NewSessionClient(config.HTTP.Timeout)
	if err != nil {
		return nil, provider.RunContext{}, err
	}

	rc := provider.NewVersions(provider.NewRunContext(config), client, config.Nintendo.AppStoreURL).
		Resolve(ctx, config.Nintendo.DiscoverAppVersion, config.SplatNet.DiscoverWebViewVersion)

	recordVersions(ctx, rc)

	opts := []provider.AttestationOption{
		provider.WithRequestCounter(observability.ObtainMetricCounter("nsoauth_attestation_requests", "Number of F tokens requested from the attestation service")),
	}
	if limit := config.Attestation.RateLimit; limit.Enabled() {
		opts = append(opts, provider.WithRateLimiter(rate.NewLimiter(limit.Limit(), limit.Burst())))
	}

	service := tokens.NewService(
		provider.NewNintendoAccount(rc, session, client),
		provider.NewAttestation(rc, client, opts...),
		provider.NewCoral(rc, client),
		provider.NewSplatNet(rc, client),
	)
	return service, rc, nil
}

func login(ctx context.Context, config *conf.GlobalConfiguration) error {
	ctx = tokens.WithRunID(ctx)

	service, _, err := newService(ctx, config)
	if err != nil {
		return err
	}

	var creds *tokens.Credentials
	switch {
	case sessionToken != "":
		creds, err = service.Acquire(ctx, sessionToken)
	case redirectURL != "":
		creds, err = service.Run(ctx, tokens.StaticRedirect(redirectURL))
	default:
		creds, err = service.Run(ctx, &prompt.Survey{})
	}

	if errors.Is(err, tokens.ErrManualEntry) {
		return enterManually(ctx)
	}
	if err != nil {
		return err
	}

	return printJSON(creds)
}
