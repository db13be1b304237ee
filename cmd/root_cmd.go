package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splatbot/nsoauth/internal/conf"
	"github.com/splatbot/nsoauth/internal/observability"
	"github.com/splatbot/nsoauth/internal/provider"
)

var configFile = ""

var rootCmd = cobra.Command{
	Use:           "nsoauth",
	Short:         "Obtain SplatNet 3 credentials for a Nintendo Account",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// RootCommand will setup and return the root command
func RootCommand() *cobra.Command {
	rootCmd.AddCommand(loginCmd(), &enterCmd, &versionsCmd, &versionCmd)
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "the config file to use")

	return &rootCmd
}

func execWithConfig(cmd *cobra.Command, fn func(ctx context.Context, config *conf.GlobalConfiguration) error) error {
	config, err := conf.LoadGlobal(configFile)
	if err != nil {
		logrus.WithError(err).Error("unable to load config")
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer func() {
		cancel()
		observability.WaitForCleanup(context.Background())
	}()

	if err := observability.Configure(ctx, config); err != nil {
		return err
	}

	err = fn(ctx, config)
	if errors.Is(err, provider.ErrUserAbort) {
		logrus.Info("cancelled")
		return nil
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
