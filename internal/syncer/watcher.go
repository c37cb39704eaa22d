package syncer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// AuthState is what the authentication collaborator reports.
type AuthState struct {
	UserID        string
	Authenticated bool
}

// AuthWatcher starts a sync pass when a user signs in. Sign-out and repeated
// signed-in observations do nothing. Pass failures are logged and never
// reach the caller.
type AuthWatcher struct {
	engine *Engine
	logger *zap.Logger

	mu   sync.Mutex
	last AuthState
}

// NewAuthWatcher returns a watcher that starts signed out.
func NewAuthWatcher(engine *Engine, logger *zap.Logger) *AuthWatcher {
	return &AuthWatcher{engine: engine, logger: logging.OrNop(logger).With(zap.String("component", "auth-watcher"))}
}

// Observe records s and reports whether it triggered a pass. The pass runs
// on the caller's goroutine.
func (w *AuthWatcher) Observe(ctx context.Context, s AuthState) bool {
	w.mu.Lock()
	signedIn := !w.last.Authenticated && s.Authenticated && s.UserID != ""
	w.last = s
	w.mu.Unlock()
	if !signedIn {
		return false
	}

	res, err := w.engine.MigrateLocalToRemote(ctx, s.UserID)
	var partial *apperr.PartialSyncError
	switch {
	case err == nil:
		w.logger.Info("sign-in sync complete",
			zap.String("user_id", s.UserID),
			zap.Int("thoughts", res.ThoughtsMigrated),
			zap.Int("favorites", res.FavoritesMigrated))
	case errors.As(err, &partial):
		w.logger.Warn("sign-in sync incomplete, local records kept for retry",
			zap.String("user_id", s.UserID), zap.Error(err))
	case errors.Is(err, apperr.ErrRemoteNotConfigured):
		w.logger.Debug("sign-in sync skipped, local-only mode")
	default:
		w.logger.Error("sign-in sync failed", zap.String("user_id", s.UserID), zap.Error(err))
	}
	return true
}
