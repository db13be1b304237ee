package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/splatbot/nsoauth/internal/conf"
	"github.com/splatbot/nsoauth/internal/prompt"
	"github.com/splatbot/nsoauth/internal/tokens"
)

var enterCmd = cobra.Command{
	Use:   "enter",
	Short: "Enter a gtoken and bulletToken by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execWithConfig(cmd, func(ctx context.Context, _ *conf.GlobalConfiguration) error {
			return enterManually(ctx)
		})
	},
}

func enterManually(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "%s\n\n", tokens.ManualEntryInstructions)

	gtoken, bulletToken, err := tokens.EnterTokens(ctx, &prompt.Survey{})
	if err != nil {
		return err
	}

	creds := &tokens.Credentials{
		WebServiceToken: gtoken,
		BulletToken:     bulletToken,
	}
	if exp, err := tokens.TokenExpiry(gtoken); err == nil {
		creds.ExpiresAt = &exp
	}

	return printJSON(creds)
}
