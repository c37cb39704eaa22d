package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thoughtforge/thoughtsync/internal/generation"
	"github.com/thoughtforge/thoughtsync/internal/models"
)

func newGenerateCmd(c *cli) *cobra.Command {
	var req generation.Request
	var mood string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a thought and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Mood = models.Mood(mood)
			id, err := c.identity(cmd.Context())
			if err != nil {
				return err
			}
			res, err := c.app.Generator.Generate(cmd.Context(), req, generation.Caller{UserID: id.UserID, Authenticated: id.Authenticated})
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.writeJSON(cmd, res)
			}
			s := newStyles()
			fmt.Fprintln(cmd.OutOrStdout(), renderThought(res.Thought, s))
			if !res.Persisted {
				fmt.Fprintln(cmd.OutOrStdout(), s.warn.Render("not saved: "+res.SaveError))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Topic, "topic", "", "Topic to write about")
	cmd.Flags().StringVar(&mood, "mood", string(models.MoodPhilosophical), "philosophical, humorous or scientific")
	cmd.Flags().StringVar(&req.Category, "category", "", "Optional category tag")
	cmd.Flags().BoolVar(&req.UseAI, "ai", false, "Use the AI engine when signed in")

	return cmd
}
