package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
	"github.com/thoughtforge/thoughtsync/internal/remote"
)

func newWatchCmd(c *cli) *cobra.Command {
	var displayName, page string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow your thoughts live and announce your presence",
		Long:  "watch prints your latest thoughts each time they change. Changes made by other processes arrive only when Redis is configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			id, err := c.requireUser(ctx)
			if err != nil {
				return err
			}
			if !c.app.Facade.Configured() {
				return fmt.Errorf("watch needs a remote database")
			}
			cfg := c.app.Config.Realtime
			s := newStyles()
			out := cmd.OutOrStdout()

			var mu sync.Mutex
			feed := realtime.NewWindow(func(t models.Thought) string { return t.ID.String() }, cfg.FeedWindow)
			show := func() {
				fmt.Fprintln(out, renderThoughts("Live", feed.Items(), s))
			}
			opts := func(name string) realtime.Options {
				return realtime.Options{
					Clock:             c.app.Clock,
					ConnectingTimeout: cfg.ConnectingTimeout,
					Logger:            c.logger,
					OnStatus: func(st realtime.Status) {
						fmt.Fprintln(out, s.meta.Render(name+": "+st.String()))
					},
					OnStall: func() {
						fmt.Fprintln(out, s.warn.Render(name+" still connecting..."))
					},
				}
			}

			sub := realtime.Subscribe(ctx, c.app.Broker, realtime.Spec{
				Table:  remote.TableThoughts,
				Filter: realtime.Filter{Column: "user_id", Value: id.UserID},
			}, func(ch realtime.Change) {
				mu.Lock()
				defer mu.Unlock()
				changed, err := feed.Apply(ch)
				if err != nil {
					c.logger.Warn("dropping undecodable change", zap.Error(err))
				}
				if changed {
					show()
				}
			}, opts("live"))
			defer sub.Unsubscribe()

			st, err := sub.Await(ctx)
			if err != nil {
				return nil
			}
			if st == realtime.StatusFailed {
				return fmt.Errorf("live updates: %w", sub.Err())
			}
			// the first read happens once the listener is attached
			items, err := c.app.Facade.ListThoughts(ctx, id.UserID, cfg.FeedWindow, 0)
			if err != nil {
				return err
			}
			mu.Lock()
			if err := feed.Load(items); err != nil {
				c.logger.Warn("dropping undecodable change", zap.Error(err))
			}
			show()
			mu.Unlock()

			online := realtime.NewPresenceSet()
			presence := realtime.WatchPresence(ctx, c.app.Presence, func(ev realtime.PresenceEvent) {
				online.Apply(ev)
				fmt.Fprintln(out, renderPresence(online.Online(c.app.Clock.Now(), cfg.PresenceTTL), s))
			}, opts("presence"))
			defer presence.Unsubscribe()

			tracker := realtime.NewTracker(c.app.Presence, c.app.Clock, cfg.HeartbeatInterval, realtime.Record{
				UserID:      id.UserID,
				DisplayName: displayName,
				Page:        page,
			}, c.logger)
			tracker.Start(ctx)

			<-ctx.Done()
			if sub.Status() == realtime.StatusFailed {
				c.logger.Warn("live subscription failed", zap.Error(sub.Err()))
			}
			if presence.Status() == realtime.StatusFailed {
				c.logger.Warn("presence unavailable", zap.Error(presence.Err()))
			}
			return tracker.Stop(context.WithoutCancel(ctx))
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Name shown to other watchers")
	cmd.Flags().StringVar(&page, "page", "watch", "Page shown to other watchers")

	return cmd
}
