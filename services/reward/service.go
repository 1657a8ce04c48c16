package reward

import (
	"context"
	"strings"
	"time"

	"rewardengine/pkg/errutil"
	"rewardengine/pkg/repository"
	"rewardengine/services/event"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventFinder is the slice of the event store this service needs.
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*event.Event, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	rewards repository.Repository[Reward]
	events  EventFinder
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Events *event.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		rewards: repository.ProvideStore[Reward](p.DB),
		events:  p.Events,
	}
}

type CreateRewardParams struct {
	EventID          string
	Type             string
	Amount           int64
	Description      string
	RequiresApproval bool
	Metadata         map[string]any
}

func (s *Service) Create(ctx context.Context, p CreateRewardParams) (*Reward, error) {
	if strings.TrimSpace(p.EventID) == "" {
		return nil, errutil.ValidationFailed("eventId is required", nil)
	}
	if strings.TrimSpace(p.Type) == "" {
		return nil, errutil.ValidationFailed("type is required", nil)
	}
	if p.Amount < 0 {
		return nil, errutil.ValidationFailed("amount must not be negative", nil)
	}
	if p.Amount == 0 {
		p.Amount = 1
	}

	// rewards always hang off an existing event
	if _, err := s.events.FindByID(ctx, p.EventID); err != nil {
		return nil, err
	}

	now := time.Now()
	r := &Reward{
		ID:               s.node.Generate().String(),
		EventID:          p.EventID,
		Type:             p.Type,
		Amount:           p.Amount,
		Description:      p.Description,
		RequiresApproval: p.RequiresApproval,
		Metadata:         datatypes.JSONMap(p.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.rewards.Create(ctx, r); err != nil {
		zap.L().Error("failed to create reward", zap.Error(err))
		return nil, err
	}

	return r, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*Reward, error) {
	r, err := s.rewards.FindOne(ctx, &Reward{ID: id})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errutil.NotFound("reward not found", nil)
	}
	return r, nil
}

func (s *Service) FindByEventID(ctx context.Context, eventID string) ([]*Reward, error) {
	return s.rewards.Find(ctx, &Reward{EventID: eventID})
}

type UpdateRewardParams struct {
	Type             *string
	Amount           *int64
	Description      *string
	RequiresApproval *bool
	Metadata         map[string]any
}

// Update mutates a reward. EventID is not part of the params on purpose.
func (s *Service) Update(ctx context.Context, id string, p UpdateRewardParams) (*Reward, error) {
	r, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Type != nil {
		if strings.TrimSpace(*p.Type) == "" {
			return nil, errutil.ValidationFailed("type must not be empty", nil)
		}
		r.Type = *p.Type
	}
	if p.Amount != nil {
		if *p.Amount <= 0 {
			return nil, errutil.ValidationFailed("amount must be positive", nil)
		}
		r.Amount = *p.Amount
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.RequiresApproval != nil {
		r.RequiresApproval = *p.RequiresApproval
	}
	if p.Metadata != nil {
		r.Metadata = datatypes.JSONMap(p.Metadata)
	}
	r.UpdatedAt = time.Now()

	if err := s.rewards.Update(ctx, r.ID, map[string]any{
		"type":              r.Type,
		"amount":            r.Amount,
		"description":       r.Description,
		"requires_approval": r.RequiresApproval,
		"metadata":          r.Metadata,
		"updated_at":        r.UpdatedAt,
	}); err != nil {
		zap.L().Error("failed to update reward", zap.String("reward_id", id), zap.Error(err))
		return nil, err
	}

	return r, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.rewards.Delete(ctx, &Reward{ID: id}); err != nil {
		if err == gorm.ErrRecordNotFound {
			return errutil.NotFound("reward not found", nil)
		}
		return err
	}
	return nil
}
