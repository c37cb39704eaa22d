package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/syncer"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move this device's local thoughts and favorites to the user's remote account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.app.Sync.MigrateLocalToRemote(cmd.Context(), id.UserID)
			complete := true
			var partial *apperr.PartialSyncError
			switch {
			case errors.As(err, &partial):
				res, complete = partial.Counts, false
			case err != nil:
				return err
			}
			if c.asJSON {
				return c.writeJSON(cmd, map[string]interface{}{"counts": res, "complete": complete})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderSync(res, complete, newStyles()))
			return err
		},
	}
}

// newLoginCmd verifies a token and treats it as a sign-in on this device,
// which migrates local data once.
func newLoginCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with --token and migrate local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.token == "" {
				return fmt.Errorf("login needs --token")
			}
			id, err := c.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			ran := c.app.Watcher.Observe(cmd.Context(), syncer.AuthState{UserID: id.UserID, Authenticated: true})
			s := newStyles()
			fmt.Fprintln(cmd.OutOrStdout(), s.title.Render("Signed in as "+id.UserID))
			if ran {
				left, err := c.app.Store.Thoughts()
				if err != nil {
					return err
				}
				if len(left) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), s.warn.Render(fmt.Sprintf("%d local thoughts could not be migrated; run migrate to retry", len(left))))
				}
			}
			return nil
		},
	}
}
