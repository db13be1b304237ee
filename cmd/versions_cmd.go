package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splatbot/nsoauth/internal/conf"
	"github.com/splatbot/nsoauth/internal/provider"
	"github.com/splatbot/nsoauth/internal/utilities"
	"github.com/splatbot/nsoauth/internal/utilities/version"
)

var versionsCmd = cobra.Command{
	Use:   "versions",
	Short: "Print the NSO app and SplatNet web view versions that would be used",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execWithConfig(cmd, showVersions)
	},
}

func showVersions(ctx context.Context, config *conf.GlobalConfiguration) error {
	client := utilities.NewHTTPClient(config.HTTP.Timeout)
	rc := provider.NewVersions(provider.NewRunContext(config), client, config.Nintendo.AppStoreURL).
		Resolve(ctx, config.Nintendo.DiscoverAppVersion, config.SplatNet.DiscoverWebViewVersion)
	recordVersions(ctx, rc)

	return printJSON(map[string]string{
		"app_version":      rc.AppVersion,
		"web_view_version": rc.WebViewVersion,
		"coral_user_agent": rc.CoralUserAgent(),
	})
}

func recordVersions(ctx context.Context, rc provider.RunContext) {
	log := logrus.WithFields(logrus.Fields{
		"app_version":      rc.AppVersion,
		"web_view_version": rc.WebViewVersion,
	})
	log.Debug("using client versions")

	if err := version.Record("app", rc.AppVersion); err != nil {
		log.WithError(err).Warn("unable to record app version")
	}
	if err := version.Record("web_view", rc.WebViewVersion); err != nil {
		log.WithError(err).Warn("unable to record web view version")
	}
}
