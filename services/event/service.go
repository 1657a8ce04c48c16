package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rewardengine/pkg/cache"
	"rewardengine/pkg/config"
	"rewardengine/pkg/errutil"
	"rewardengine/pkg/rediskey"
	"rewardengine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	events repository.Repository[Event]
	cache  cache.Cache

	activeTTL time.Duration
}

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Cache cache.Cache
	Cfg   *config.Config
}

func NewService(p ServiceParams) *Service {
	activeTTL := 5 * time.Minute
	if p.Cfg != nil && p.Cfg.Cache.ActiveListTTL > 0 {
		activeTTL = p.Cfg.Cache.ActiveListTTL
	}
	return &Service{
		db:        p.DB,
		node:      p.Node,
		events:    repository.ProvideStore[Event](p.DB),
		cache:     p.Cache,
		activeTTL: activeTTL,
	}
}

type CreateEventParams struct {
	Name            string
	Description     string
	ConditionType   ConditionType
	ConditionParams map[string]any
	StartDate       time.Time
	EndDate         time.Time
	Metadata        map[string]any
}

func (s *Service) Create(ctx context.Context, p CreateEventParams) (*Event, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, errutil.ValidationFailed("name is required", nil)
	}
	if p.StartDate.After(p.EndDate) {
		return nil, errutil.ValidationFailed("startDate must not be after endDate", nil)
	}
	if err := validateConditionParams(p.ConditionType, p.ConditionParams); err != nil {
		return nil, err
	}

	now := time.Now()
	e := &Event{
		ID:              s.node.Generate().String(),
		Name:            p.Name,
		Description:     p.Description,
		ConditionType:   p.ConditionType,
		ConditionParams: datatypes.JSONMap(p.ConditionParams),
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		Status:          StatusInactive,
		Metadata:        datatypes.JSONMap(p.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.events.Create(ctx, e); err != nil {
		zap.L().Error("failed to create event", zap.Error(err))
		return nil, err
	}

	s.invalidate(ctx, e.ID)

	return e, nil
}

func validateConditionParams(conditionType ConditionType, params map[string]any) error {
	switch conditionType {
	case ConditionTypeLogin:
		count, ok := numericParam(params, "requiredCount")
		if !ok || count <= 0 {
			return errutil.ValidationFailed("conditionParams.requiredCount must be a positive number", nil)
		}
	case ConditionTypeCustom:
		code, ok := params["eventCode"].(string)
		if !ok || strings.TrimSpace(code) == "" {
			return errutil.ValidationFailed("conditionParams.eventCode is required", nil)
		}
	default:
		return errutil.ValidationFailed(fmt.Sprintf("unsupported condition type %q", conditionType), nil)
	}
	return nil
}

func numericParam(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// FindByID loads an event, serving from cache when possible. A logically
// expired event is corrected and persisted before it is returned, so callers
// never observe an out-of-period event as ACTIVE.
func (s *Service) FindByID(ctx context.Context, id string) (*Event, error) {
	if cached, err := s.cache.Get(ctx, rediskey.BuildEventKey(id)); err == nil {
		var e Event
		if err := json.Unmarshal([]byte(cached), &e); err == nil {
			return s.autoUpdateStatus(ctx, &e)
		}
		// deserialization failure falls through to the source of truth
	}

	e, err := s.events.FindOne(ctx, &Event{ID: id})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errutil.NotFound("event not found", nil)
	}

	e, err = s.autoUpdateStatus(ctx, e)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(e); err == nil {
		_ = s.cache.Set(ctx, rediskey.BuildEventKey(id), string(payload), s.activeTTL)
	}

	return e, nil
}

// FindActive returns events that are ACTIVE and inside their period right now.
// The predicate is applied at the query layer because stored status may lag a
// just-crossed end date until the next auto-update.
func (s *Service) FindActive(ctx context.Context) ([]*Event, error) {
	now := time.Now()

	payload, err := s.cache.GetOrSet(ctx, rediskey.BuildActiveEventsKey(now), s.activeTTL, func(ctx context.Context) (string, error) {
		active, err := s.queryActive(ctx, now)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(active)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	})
	if err != nil {
		return nil, err
	}

	var active []*Event
	if err := json.Unmarshal([]byte(payload), &active); err != nil {
		// corrupt cache entry, fall back to the repository
		zap.L().Warn("failed to decode cached active events", zap.Error(err))
		return s.queryActive(ctx, now)
	}
	return active, nil
}

func (s *Service) queryActive(ctx context.Context, now time.Time) ([]*Event, error) {
	var active []*Event
	if err := s.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Order("created_at DESC").
		Find(&active).Error; err != nil {
		return nil, err
	}
	return active, nil
}

type UpdateEventParams struct {
	Name            *string
	Description     *string
	ConditionParams map[string]any
	StartDate       *time.Time
	EndDate         *time.Time
	Metadata        map[string]any
}

func (s *Service) Update(ctx context.Context, id string, p UpdateEventParams) (*Event, error) {
	e, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, errutil.ValidationFailed("name must not be empty", nil)
		}
		e.Name = *p.Name
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		e.EndDate = *p.EndDate
	}
	if e.StartDate.After(e.EndDate) {
		return nil, errutil.ValidationFailed("startDate must not be after endDate", nil)
	}
	if p.ConditionParams != nil {
		if err := validateConditionParams(e.ConditionType, p.ConditionParams); err != nil {
			return nil, err
		}
		e.ConditionParams = datatypes.JSONMap(p.ConditionParams)
	}
	if p.Metadata != nil {
		e.Metadata = datatypes.JSONMap(p.Metadata)
	}
	e.UpdatedAt = time.Now()

	if err := s.events.Update(ctx, e.ID, map[string]any{
		"name":             e.Name,
		"description":      e.Description,
		"condition_params": e.ConditionParams,
		"start_date":       e.StartDate,
		"end_date":         e.EndDate,
		"metadata":         e.Metadata,
		"updated_at":       e.UpdatedAt,
	}); err != nil {
		zap.L().Error("failed to update event", zap.String("event_id", id), zap.Error(err))
		return nil, err
	}

	s.invalidate(ctx, e.ID)

	return e, nil
}

func (s *Service) ChangeStatus(ctx context.Context, id string, next Status) (*Event, error) {
	e, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !e.CanTransitionTo(next) {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("invalid status transition from %s to %s", e.Status, next), nil)
	}

	e.Status = next
	e.UpdatedAt = time.Now()
	if err := s.events.Update(ctx, e.ID, map[string]any{
		"status":     e.Status,
		"updated_at": e.UpdatedAt,
	}); err != nil {
		return nil, err
	}

	s.invalidate(ctx, e.ID)

	return e, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.events.Delete(ctx, &Event{ID: id}); err != nil {
		if err == gorm.ErrRecordNotFound {
			return errutil.NotFound("event not found", nil)
		}
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// autoUpdateStatus forces a logically expired event to EXPIRED and persists
// the correction before it is handed to callers.
func (s *Service) autoUpdateStatus(ctx context.Context, e *Event) (*Event, error) {
	now := time.Now()
	if e.Status == StatusExpired || !now.After(e.EndDate) {
		return e, nil
	}

	e.Status = StatusExpired
	e.UpdatedAt = now
	if err := s.events.Update(ctx, e.ID, map[string]any{
		"status":     StatusExpired,
		"updated_at": now,
	}); err != nil {
		zap.L().Error("failed to persist expired status", zap.String("event_id", e.ID), zap.Error(err))
		return nil, err
	}

	s.invalidate(ctx, e.ID)

	return e, nil
}

// invalidate drops the per-id key and the current day's active-list key.
// Stale active-list keys for other days expire on their own.
func (s *Service) invalidate(ctx context.Context, id string) {
	_ = s.cache.Del(ctx,
		rediskey.BuildEventKey(id),
		rediskey.BuildActiveEventsKey(time.Now()),
	)
}
