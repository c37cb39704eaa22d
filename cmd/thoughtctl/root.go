package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/app"
	"github.com/thoughtforge/thoughtsync/internal/auth"
	"github.com/thoughtforge/thoughtsync/pkg/config"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

type builder func() (*app.App, *zap.Logger, error)

// cli carries the lazily built services and the global flags.
type cli struct {
	build  builder
	app    *app.App
	logger *zap.Logger

	userID string
	token  string
	asJSON bool
}

func buildFromConfig() (*app.App, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.Build(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func newRootCmd(build builder) *cobra.Command {
	c := &cli{build: build}

	rootCmd := &cobra.Command{
		Use:           "thoughtctl",
		Short:         "Generate, browse and sync thoughts",
		Long:          "thoughtctl works against the local store when signed out and the remote backend when a user is given and a database is configured.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := c.build()
			if err != nil {
				return err
			}
			c.app, c.logger = a, logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if c.app != nil {
				c.app.Close()
			}
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.userID, "user", "", "Act as this user id (trusted, skips token verification)")
	rootCmd.PersistentFlags().StringVar(&c.token, "token", "", "Access token to verify with the auth provider")
	rootCmd.PersistentFlags().BoolVar(&c.asJSON, "json", false, "Render JSON output")

	rootCmd.AddCommand(
		newGenerateCmd(c),
		newListCmd(c),
		newFavoritesCmd(c),
		newStatsCmd(c),
		newNotificationsCmd(c),
		newMigrateCmd(c),
		newLoginCmd(c),
		newWatchCmd(c),
	)

	return rootCmd
}

// identity resolves the caller from --token, then --user.
func (c *cli) identity(ctx context.Context) (auth.Identity, error) {
	if c.token != "" {
		id, err := c.app.Verifier.Verify(ctx, c.token)
		if err != nil {
			return auth.Anonymous, err
		}
		if !id.Authenticated {
			return auth.Anonymous, fmt.Errorf("token verification is not configured")
		}
		return id, nil
	}
	if c.userID != "" {
		return auth.Identity{UserID: c.userID, Authenticated: true}, nil
	}
	return auth.Anonymous, nil
}

func (c *cli) requireUser(ctx context.Context) (auth.Identity, error) {
	id, err := c.identity(ctx)
	if err != nil {
		return id, err
	}
	if !id.Authenticated {
		return id, fmt.Errorf("this command needs --user or --token")
	}
	return id, nil
}

func (c *cli) writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
