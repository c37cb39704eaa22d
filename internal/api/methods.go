package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/thoughtforge/thoughtsync/internal/apperr"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/generation"
	"github.com/thoughtforge/thoughtsync/internal/ids"
	"github.com/thoughtforge/thoughtsync/internal/models"
	"github.com/thoughtforge/thoughtsync/internal/persistence"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
	"github.com/thoughtforge/thoughtsync/internal/syncer"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// bind decodes params into v. Missing params decode as an empty object.
func bind(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return invalidParams(err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// userID is the caller's id when signed in, empty otherwise.
func userID(c *gin.Context) string {
	id := identity(c)
	if !id.Authenticated {
		return ""
	}
	return id.UserID
}

type idParams struct {
	ID ids.ID `json:"id"`
}

func (p idParams) require() error {
	if p.ID.IsZero() {
		return invalidParams(errors.New("missing required parameter: id"))
	}
	return nil
}

type thoughtsAPI struct {
	facade *persistence.Facade
}

func (a *thoughtsAPI) Save(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Thought models.Thought `json:"thought"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	saved, err := a.facade.SaveThought(c.Request.Context(), p.Thought, userID(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"thought": saved}, nil
}

func (a *thoughtsAPI) List(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.Offset < 0 {
		return nil, invalidParams(errors.New("offset must not be negative"))
	}
	list, err := a.facade.ListThoughts(c.Request.Context(), userID(c), clampLimit(p.Limit), p.Offset)
	if err != nil {
		return nil, err
	}
	return gin.H{"thoughts": nonNil(list)}, nil
}

func (a *thoughtsAPI) Delete(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p idParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if err := p.require(); err != nil {
		return nil, err
	}
	if err := a.facade.DeleteThought(c.Request.Context(), p.ID, userID(c)); err != nil {
		return nil, err
	}
	return gin.H{"deleted": true}, nil
}

func (a *thoughtsAPI) View(c *gin.Context, params json.RawMessage) (interface{}, error) {
	return a.record(c, params, a.facade.RecordView)
}

func (a *thoughtsAPI) Like(c *gin.Context, params json.RawMessage) (interface{}, error) {
	return a.record(c, params, a.facade.RecordLike)
}

func (a *thoughtsAPI) Share(c *gin.Context, params json.RawMessage) (interface{}, error) {
	return a.record(c, params, a.facade.RecordShare)
}

type recordFunc func(ctx context.Context, id ids.ID, userID string) (models.Thought, bool, error)

func (a *thoughtsAPI) record(c *gin.Context, params json.RawMessage, fn recordFunc) (interface{}, error) {
	var p idParams
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if err := p.require(); err != nil {
		return nil, err
	}
	t, found, err := fn(c.Request.Context(), p.ID, userID(c))
	if err != nil {
		return nil, err
	}
	if !found {
		return gin.H{"found": false}, nil
	}
	return gin.H{"found": true, "thought": t}, nil
}

func (a *thoughtsAPI) Stats(c *gin.Context, params json.RawMessage) (interface{}, error) {
	stats, err := a.facade.Stats(c.Request.Context(), userID(c))
	if err != nil {
		return nil, err
	}
	return stats, nil
}

type favoritesAPI struct {
	facade *persistence.Facade
}

func (a *favoritesAPI) Add(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Thought models.Thought `json:"thought"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.Thought.ID.IsZero() {
		return nil, invalidParams(errors.New("missing required parameter: thought.id"))
	}
	if err := a.facade.AddFavorite(c.Request.Context(), p.Thought, userID(c)); err != nil {
		return nil, err
	}
	return gin.H{"favorited": true}, nil
}

func (a *favoritesAPI) Remove(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		ThoughtID ids.ID `json:"thoughtId"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.ThoughtID.IsZero() {
		return nil, invalidParams(errors.New("missing required parameter: thoughtId"))
	}
	if err := a.facade.RemoveFavorite(c.Request.Context(), p.ThoughtID, userID(c)); err != nil {
		return nil, err
	}
	return gin.H{"favorited": false}, nil
}

func (a *favoritesAPI) List(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	list, err := a.facade.ListFavorites(c.Request.Context(), userID(c), clampLimit(p.Limit))
	if err != nil {
		return nil, err
	}
	return gin.H{"favorites": nonNil(list)}, nil
}

func (a *favoritesAPI) Is(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		ThoughtID ids.ID `json:"thoughtId"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.ThoughtID.IsZero() {
		return nil, invalidParams(errors.New("missing required parameter: thoughtId"))
	}
	ok, err := a.facade.IsFavorited(c.Request.Context(), p.ThoughtID, userID(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"favorited": ok}, nil
}

func (a *favoritesAPI) Reorder(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Order []ids.ID `json:"order"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if err := a.facade.ReorderFavorites(c.Request.Context(), userID(c), p.Order); err != nil {
		return nil, err
	}
	return gin.H{"reordered": len(p.Order)}, nil
}

type notificationsAPI struct {
	facade *persistence.Facade
}

func (a *notificationsAPI) List(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Limit int `json:"limit"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = persistence.DefaultNotificationLimit
	}
	list, err := a.facade.ListNotifications(c.Request.Context(), userID(c), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return gin.H{"notifications": nonNil(list)}, nil
}

func (a *notificationsAPI) MarkRead(c *gin.Context, params json.RawMessage) (interface{}, error) {
	p := struct {
		ID   ids.ID `json:"id"`
		Read *bool  `json:"read"`
	}{}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	if p.ID.IsZero() {
		return nil, invalidParams(errors.New("missing required parameter: id"))
	}
	read := true
	if p.Read != nil {
		read = *p.Read
	}
	n, err := a.facade.MarkNotificationRead(c.Request.Context(), userID(c), p.ID, read)
	if err != nil {
		return nil, err
	}
	return gin.H{"notification": n}, nil
}

func (a *notificationsAPI) Unread(c *gin.Context, params json.RawMessage) (interface{}, error) {
	n, err := a.facade.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"unread": n}, nil
}

type syncAPI struct {
	engine *syncer.Engine
}

// Migrate runs a pass for the caller. A partial pass is a result, not an
// error; the unmigrated records stay local.
func (a *syncAPI) Migrate(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id := identity(c)
	if !id.Authenticated {
		return nil, errAuthRequired
	}
	res, err := a.engine.MigrateLocalToRemote(c.Request.Context(), id.UserID)
	var partial *apperr.PartialSyncError
	switch {
	case errors.As(err, &partial):
		return gin.H{"counts": partial.Counts, "complete": false}, nil
	case err != nil:
		return nil, err
	}
	return gin.H{"counts": res, "complete": true}, nil
}

type generateAPI struct {
	service *generation.Service
}

func (a *generateAPI) Generate(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var req generation.Request
	if err := bind(params, &req); err != nil {
		return nil, err
	}
	if req.Mood == "" {
		req.Mood = models.MoodPhilosophical
	}
	id := identity(c)
	return a.service.Generate(c.Request.Context(), req, generation.Caller{UserID: id.UserID, Authenticated: id.Authenticated})
}

type presenceAPI struct {
	channel realtime.PresenceChannel
	clock   clock.Clock
}

func (a *presenceAPI) Heartbeat(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id := identity(c)
	if !id.Authenticated {
		return nil, errAuthRequired
	}
	var p struct {
		DisplayName string `json:"displayName"`
		Page        string `json:"page"`
	}
	if err := bind(params, &p); err != nil {
		return nil, err
	}
	r := realtime.Record{UserID: id.UserID, DisplayName: p.DisplayName, Page: p.Page, LastSeenAt: a.clock.Now().UTC()}
	if err := a.channel.Heartbeat(c.Request.Context(), r); err != nil {
		return nil, fmt.Errorf("presence heartbeat: %w", err)
	}
	return gin.H{"record": r}, nil
}

func (a *presenceAPI) Leave(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id := identity(c)
	if !id.Authenticated {
		return nil, errAuthRequired
	}
	if err := a.channel.Leave(c.Request.Context(), id.UserID); err != nil {
		return nil, fmt.Errorf("presence leave: %w", err)
	}
	return gin.H{"left": true}, nil
}

func (a *presenceAPI) List(c *gin.Context, params json.RawMessage) (interface{}, error) {
	records, err := a.channel.Snapshot(c.Request.Context())
	if err != nil {
		return nil, fmt.Errorf("presence snapshot: %w", err)
	}
	return gin.H{"online": nonNil(records)}, nil
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
