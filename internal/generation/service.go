package generation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/persistence"
	"github.com/thoughtforge/thoughtsync/internal/ratelimit"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

// Caller identifies who asked for a generation.
type Caller struct {
	UserID        string
	Authenticated bool
}

// Result is a generated thought and whether it was stored. A thought that
// failed to save is still returned so it can be shown, flagged.
type Result struct {
	Thought   models.Thought `json:"thought"`
	Persisted bool           `json:"persisted"`
	SaveError string         `json:"saveError,omitempty"`
}

// Service generates and persists thoughts.
type Service struct {
	template Engine
	ai       Engine
	limiter  *ratelimit.Limiter
	facade   *persistence.Facade
	logger   *zap.Logger
}

// NewService wires a service. ai may be nil; AI requests then fall back to
// the template engine.
func NewService(template, ai Engine, limiter *ratelimit.Limiter, facade *persistence.Facade, logger *zap.Logger) *Service {
	return &Service{
		template: template,
		ai:       ai,
		limiter:  limiter,
		facade:   facade,
		logger:   logging.OrNop(logger).With(zap.String("component", "generation")),
	}
}

// Generate produces one thought. Template generation by signed-out callers
// counts against the rate limiter and fails with *apperr.RateLimitedError
// once the window's quota is spent.
func (s *Service) Generate(ctx context.Context, req Request, caller Caller) (Result, error) {
	log := logging.FromContext(ctx, s.logger)
	engine := s.template
	if req.UseAI && caller.Authenticated && s.ai != nil {
		engine = s.ai
	} else if req.UseAI {
		log.Debug("AI generation unavailable, using templates", zap.Bool("authenticated", caller.Authenticated))
	}

	if engine == s.template && !caller.Authenticated {
		res, err := s.limiter.Check(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("check rate limit: %w", err)
		}
		if !res.Allowed {
			return Result{}, &apperr.RateLimitedError{ResetAt: res.ResetAt}
		}
	}

	t, err := engine.Generate(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("generate: %w", err)
	}

	userID := ""
	if caller.Authenticated {
		userID = caller.UserID
	}
	saved, err := s.facade.SaveThought(ctx, t, userID)
	if err != nil {
		log.Warn("generated thought not persisted", zap.Error(err))
		return Result{Thought: t, Persisted: false, SaveError: err.Error()}, nil
	}
	return Result{Thought: saved, Persisted: true}, nil
}
