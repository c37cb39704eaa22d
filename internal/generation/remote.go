package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/pkg/config"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
	"github.com/thoughtforge/thoughtsync/pkg/telemetry"
)

// RemoteEngine asks a hosted generation function for a thought.
type RemoteEngine struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

var _ Engine = (*RemoteEngine)(nil)

type remoteRequest struct {
	Topic    string      `json:"topic,omitempty"`
	Mood     models.Mood `json:"mood"`
	Category string      `json:"category,omitempty"`
}

type remoteResponse struct {
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	TokensUsed *int     `json:"tokensUsed"`
	Cost       *float64 `json:"cost"`
	Error      string   `json:"error"`
}

// NewRemoteEngine returns nil when no endpoint is configured.
func NewRemoteEngine(cfg config.GenerationConfig, logger *zap.Logger) *RemoteEngine {
	if cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger = logging.OrNop(logger).With(zap.String("component", "generation-remote"))
	logger.Info("Remote generation engine initialized", zap.String("url", cfg.URL))
	return &RemoteEngine{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Generate posts the request and maps the reply onto a thought.
func (e *RemoteEngine) Generate(ctx context.Context, req Request) (models.Thought, error) {
	ctx, span := telemetry.StartSpan(ctx, "generation.remote")
	defer span.End()
	span.SetAttributes(attribute.String("mood", string(req.Mood)))

	body, err := json.Marshal(remoteRequest{Topic: req.Topic, Mood: req.Mood, Category: req.Category})
	if err != nil {
		return models.Thought{}, fmt.Errorf("failed to encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return models.Thought{}, fmt.Errorf("failed to build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return models.Thought{}, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Thought{}, fmt.Errorf("failed to read generation response: %w", err)
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Thought{}, fmt.Errorf("failed to unmarshal generation response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return models.Thought{}, fmt.Errorf("generation failed with status %d: %s", resp.StatusCode, out.Error)
	}
	if out.Content == "" {
		return models.Thought{}, fmt.Errorf("generation returned no content")
	}

	e.logger.Debug("generated thought", zap.Intp("tokens_used", out.TokensUsed))
	tags := append([]string{}, out.Tags...)
	tags = append(tags, req.Topic, req.Category, string(req.Mood))
	return models.Thought{
		Content:    out.Content,
		Topic:      req.Topic,
		Mood:       req.Mood,
		Category:   req.Category,
		Tags:       models.NormalizeTags(tags),
		Source:     models.SourceGenerated,
		TokensUsed: out.TokensUsed,
		Cost:       out.Cost,
	}, nil
}
