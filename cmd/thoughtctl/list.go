package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
)

func newListCmd(c *cli) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent thoughts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.identity(cmd.Context())
			if err != nil {
				return err
			}
			list, err := c.app.Facade.ListThoughts(cmd.Context(), id.UserID, limit, offset)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.writeJSON(cmd, list)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderThoughts("Thoughts", list, newStyles()))
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum thoughts to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Thoughts to skip")

	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals across thoughts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.identity(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := c.app.Facade.Stats(cmd.Context(), id.UserID)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.writeJSON(cmd, stats)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats, newStyles()))
			return err
		},
	}
}

func newFavoritesCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List favorites in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.identity(cmd.Context())
			if err != nil {
				return err
			}
			list, err := c.app.Facade.ListFavorites(cmd.Context(), id.UserID, limit)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.writeJSON(cmd, list)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderFavorites(list, newStyles()))
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum favorites to show (0 for all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <thought-id>",
			Short: "Favorite a thought from your history",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				thoughtID, err := ids.Parse(args[0])
				if err != nil {
					return err
				}
				id, err := c.identity(cmd.Context())
				if err != nil {
					return err
				}
				t, err := findThought(cmd, c, id.UserID, thoughtID)
				if err != nil {
					return err
				}
				return c.app.Facade.AddFavorite(cmd.Context(), t, id.UserID)
			},
		},
		&cobra.Command{
			Use:   "remove <thought-id>",
			Short: "Remove a favorite",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				thoughtID, err := ids.Parse(args[0])
				if err != nil {
					return err
				}
				id, err := c.identity(cmd.Context())
				if err != nil {
					return err
				}
				return c.app.Facade.RemoveFavorite(cmd.Context(), thoughtID, id.UserID)
			},
		},
		&cobra.Command{
			Use:   "reorder <thought-id>...",
			Short: "Set the display order; every favorite must be listed once",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				order := make([]ids.ID, 0, len(args))
				for _, arg := range args {
					thoughtID, err := ids.Parse(arg)
					if err != nil {
						return err
					}
					order = append(order, thoughtID)
				}
				id, err := c.identity(cmd.Context())
				if err != nil {
					return err
				}
				return c.app.Facade.ReorderFavorites(cmd.Context(), id.UserID, order)
			},
		},
	)

	return cmd
}

// findThought looks the id up in the caller's most recent history.
func findThought(cmd *cobra.Command, c *cli, userID string, thoughtID ids.ID) (models.Thought, error) {
	list, err := c.app.Facade.ListThoughts(cmd.Context(), userID, 100, 0)
	if err != nil {
		return models.Thought{}, err
	}
	for _, t := range list {
		if t.ID == thoughtID {
			return t, nil
		}
	}
	return models.Thought{}, fmt.Errorf("thought %s is not in your recent history", thoughtID)
}

func newNotificationsCmd(c *cli) *cobra.Command {
	var limit int
	var markRead string

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show notifications for a signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.requireUser(cmd.Context())
			if err != nil {
				return err
			}
			if markRead != "" {
				nid, err := ids.ParseCanonical(markRead)
				if err != nil {
					return err
				}
				if _, err := c.app.Facade.MarkNotificationRead(cmd.Context(), id.UserID, nid, true); err != nil {
					return err
				}
			}
			list, err := c.app.Facade.ListNotifications(cmd.Context(), id.UserID, limit)
			if err != nil {
				return err
			}
			unread, err := c.app.Facade.UnreadCount(cmd.Context(), id.UserID)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.writeJSON(cmd, map[string]interface{}{"notifications": list, "unread": unread})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderNotifications(list, unread, newStyles()))
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum notifications to show")
	cmd.Flags().StringVar(&markRead, "read", "", "Mark this notification id read first")

	return cmd
}
