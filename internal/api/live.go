package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
	"github.com/thoughtforge/thoughtsync/internal/remote"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// liveHandler streams a bounded, live-merged window of the caller's rows
// as server-sent events. Each change produces a "snapshot" event with the
// full window; status transitions produce "status" events. A failed
// subscription ends the stream and the client reconnects to retry.
func (r *Router) liveHandler(c *gin.Context) {
	id := identity(c)
	if !id.Authenticated {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if r.deps.Broker == nil || r.deps.Facade == nil || !r.deps.Facade.Configured() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "live updates not available"})
		return
	}

	window := r.deps.Realtime.FeedWindow
	if window <= 0 {
		window = realtime.DefaultWindow
	}
	spec := realtime.Spec{
		Table:  c.Param("table"),
		Filter: realtime.Filter{Column: "user_id", Value: id.UserID},
	}

	switch spec.Table {
	case remote.TableThoughts:
		streamLive(c, r, spec, window, func(t models.Thought) string { return t.ID.String() },
			func(ctx context.Context) ([]models.Thought, error) {
				return r.deps.Facade.ListThoughts(ctx, id.UserID, window, 0)
			})
	case remote.TableNotifications:
		streamLive(c, r, spec, window, func(n models.Notification) string { return n.ID.String() },
			func(ctx context.Context) ([]models.Notification, error) {
				return r.deps.Facade.ListNotifications(ctx, id.UserID, window)
			})
	default:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown table"})
	}
}

func (r *Router) liveError(c *gin.Context, err error) {
	rpcErr := classify(err)
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": rpcErr.Message, "code": rpcErr.Code})
}

// streamLive subscribes before reading the initial rows; changes that land
// in between are replayed by the window once the rows are loaded.
func streamLive[T any](c *gin.Context, r *Router, spec realtime.Spec, size int, key func(T) string, load func(context.Context) ([]T, error)) {
	w := realtime.NewWindow(key, size)
	dirty := make(chan struct{}, 1)
	statuses := make(chan realtime.Status, 4)
	log := logging.FromContext(c.Request.Context(), r.logger).With(zap.String("table", spec.Table))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := realtime.Subscribe(ctx, r.deps.Broker, spec, func(ch realtime.Change) {
		changed, err := w.Apply(ch)
		if err != nil {
			log.Warn("dropping undecodable change", zap.Error(err))
		}
		if changed {
			select {
			case dirty <- struct{}{}:
			default:
			}
		}
	}, realtime.Options{
		Clock:             r.deps.Clock,
		ConnectingTimeout: r.deps.Realtime.ConnectingTimeout,
		Logger:            log,
		OnStatus: func(st realtime.Status) {
			select {
			case statuses <- st:
			default:
			}
		},
		OnStall: func() {
			log.Warn("live subscription still connecting")
		},
	})
	defer sub.Unsubscribe()

	st, err := sub.Await(ctx)
	if err != nil {
		return
	}
	if st == realtime.StatusFailed {
		r.liveError(c, sub.Err())
		return
	}

	initial, err := load(ctx)
	if err != nil {
		r.liveError(c, err)
		return
	}
	if err := w.Load(initial); err != nil {
		log.Warn("dropping undecodable change", zap.Error(err))
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("status", realtime.StatusConnected.String())
	c.SSEvent("snapshot", nonNil(w.Items()))
	c.Writer.Flush()

	last := realtime.StatusConnected
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-dirty:
			c.SSEvent("snapshot", nonNil(w.Items()))
			return true
		case <-statuses:
			// buffered transitions may be stale; report the current one
			st := sub.Status()
			if st == last {
				return true
			}
			last = st
			c.SSEvent("status", st.String())
			return st != realtime.StatusFailed
		}
	})
}
