package claim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rewardengine/pkg/config"
	"rewardengine/pkg/errutil"
	"rewardengine/pkg/lock"
	"rewardengine/pkg/rediskey"
	"rewardengine/pkg/repository"
	"rewardengine/services/eligibility"
	"rewardengine/services/event"
	"rewardengine/services/reward"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventFinder is the slice of the event store the processor needs.
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*event.Event, error)
}

// RewardFinder is the slice of the reward store the processor needs.
type RewardFinder interface {
	FindByID(ctx context.Context, id string) (*reward.Reward, error)
}

// Validator is the eligibility check the processor runs before inserting.
type Validator interface {
	Validate(ctx context.Context, userID, eventID string) (*eligibility.Result, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	claims    repository.Repository[RewardClaim]
	events    EventFinder
	rewards   RewardFinder
	evaluator Validator

	locker   lock.Manager
	lockOpts lock.Options
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Events    *event.Service
	Rewards   *reward.Service
	Evaluator *eligibility.Evaluator
	Locker    lock.Manager
	Cfg       *config.Config
}

func NewService(p ServiceParams) *Service {
	lockOpts := lock.Options{
		TTL:        10 * time.Second,
		RetryCount: 3,
		RetryDelay: 100 * time.Millisecond,
	}
	if p.Cfg != nil {
		lockOpts = lock.Options{
			TTL:        p.Cfg.Lock.TTL,
			RetryCount: p.Cfg.Lock.RetryCount,
			RetryDelay: p.Cfg.Lock.RetryDelay,
		}
	}
	return &Service{
		db:        p.DB,
		node:      p.Node,
		claims:    repository.ProvideStore[RewardClaim](p.DB),
		events:    p.Events,
		rewards:   p.Rewards,
		evaluator: p.Evaluator,
		locker:    p.Locker,
		lockOpts:  lockOpts,
	}
}

// CreateClaim runs the full claim protocol: event validity, reward linkage,
// duplicate guard, eligibility, insert, and auto-payout for rewards that need
// no approval. The whole read-then-write sequence runs inside a per
// (user, event) critical section so concurrent requests cannot both pass the
// duplicate guard.
func (s *Service) CreateClaim(ctx context.Context, userID, eventID, rewardID string) (*RewardClaim, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(eventID) == "" || strings.TrimSpace(rewardID) == "" {
		return nil, errutil.ValidationFailed("userId, eventId and rewardId are required", nil)
	}

	var created *RewardClaim
	acquired, err := lock.WithLock(ctx, s.locker, rediskey.BuildClaimLockKey(userID, eventID), s.lockOpts, func(ctx context.Context) error {
		var err error
		created, err = s.createClaimLocked(ctx, userID, eventID, rewardID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, errutil.Conflict("claim already in progress for this user and event", nil)
	}
	return created, nil
}

func (s *Service) createClaimLocked(ctx context.Context, userID, eventID, rewardID string) (*RewardClaim, error) {
	now := time.Now()

	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsValid(now) {
		return nil, errutil.UnprocessableEntity("event not active or out of period", nil)
	}

	rw, err := s.rewards.FindByID(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if rw.EventID != eventID {
		return nil, errutil.ValidationFailed("reward not linked to event", nil)
	}

	// duplicate guard reads the repository, never the cache
	if existing, err := s.claims.FindOne(ctx, &RewardClaim{UserID: userID, EventID: eventID}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errutil.Conflict("user already has a claim for this event", nil)
	}
	if existing, err := s.claims.FindOne(ctx, &RewardClaim{UserID: userID, RewardID: rewardID}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errutil.Conflict("user already has a claim for this reward", nil)
	}

	result, err := s.evaluator.Validate(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if !result.Eligible {
		return nil, errutil.UnprocessableEntity(result.ErrorMessage, nil,
			errutil.WithDetails(resultDetails(result)...))
	}

	status := StatusApproved
	if rw.NeedsApproval() {
		status = StatusPending
	}

	metadata := map[string]any{"claimedAt": now}
	for k, v := range result.Metadata {
		metadata[k] = v
	}

	c := &RewardClaim{
		ID:          s.node.Generate().String(),
		UserID:      userID,
		EventID:     eventID,
		RewardID:    rewardID,
		Status:      status,
		RequestDate: now,
		Metadata:    datatypes.JSONMap(metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.claims.Create(ctx, c); err != nil {
		zap.L().Error("failed to create claim",
			zap.String("user_id", userID), zap.String("event_id", eventID), zap.Error(err))
		return nil, err
	}

	// auto-payout: no approval needed, so COMPLETED immediately. The APPROVED
	// state is observable only transiently between the two writes.
	if !rw.NeedsApproval() {
		processDate := time.Now()
		c.Status = StatusCompleted
		c.ProcessDate = &processDate
		c.UpdatedAt = processDate
		if err := s.claims.Update(ctx, c.ID, map[string]any{
			"status":       StatusCompleted,
			"process_date": processDate,
			"updated_at":   processDate,
		}); err != nil {
			zap.L().Error("failed to complete auto-approved claim", zap.String("claim_id", c.ID), zap.Error(err))
			return nil, err
		}
	}

	return c, nil
}

func resultDetails(result *eligibility.Result) []errutil.Detail {
	details := make([]errutil.Detail, 0, len(result.Metadata))
	for k, v := range result.Metadata {
		details = append(details, errutil.Detail{Field: k, Message: fmt.Sprint(v)})
	}
	return details
}

func (s *Service) Approve(ctx context.Context, claimID, approverID string) (*RewardClaim, error) {
	return s.transition(ctx, claimID, StatusApproved, func(c *RewardClaim, now time.Time) map[string]any {
		c.ApproverID = approverID
		return map[string]any{"approver_id": approverID}
	})
}

func (s *Service) Reject(ctx context.Context, claimID, approverID, reason string) (*RewardClaim, error) {
	return s.transition(ctx, claimID, StatusRejected, func(c *RewardClaim, now time.Time) map[string]any {
		c.ApproverID = approverID
		c.RejectionReason = reason
		return map[string]any{"approver_id": approverID, "rejection_reason": reason}
	})
}

func (s *Service) Complete(ctx context.Context, claimID string) (*RewardClaim, error) {
	return s.transition(ctx, claimID, StatusCompleted, nil)
}

func (s *Service) transition(ctx context.Context, claimID string, next Status, extra func(*RewardClaim, time.Time) map[string]any) (*RewardClaim, error) {
	c, err := s.FindByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	if !c.CanTransitionTo(next) {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("invalid claim transition from %s to %s", c.Status, next), nil)
	}

	now := time.Now()
	updates := map[string]any{
		"status":       next,
		"process_date": now,
		"updated_at":   now,
	}
	if extra != nil {
		for k, v := range extra(c, now) {
			updates[k] = v
		}
	}

	if err := s.claims.Update(ctx, c.ID, updates); err != nil {
		zap.L().Error("failed to transition claim",
			zap.String("claim_id", claimID), zap.String("next", string(next)), zap.Error(err))
		return nil, err
	}

	c.Status = next
	c.ProcessDate = &now
	c.UpdatedAt = now
	return c, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*RewardClaim, error) {
	c, err := s.claims.FindOne(ctx, &RewardClaim{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("claim not found", nil)
	}
	return c, nil
}

func (s *Service) FindByUser(ctx context.Context, userID string) ([]*RewardClaim, error) {
	return s.claims.Find(ctx, &RewardClaim{UserID: userID})
}

func (s *Service) FindByEvent(ctx context.Context, eventID string) ([]*RewardClaim, error) {
	return s.claims.Find(ctx, &RewardClaim{EventID: eventID})
}

func (s *Service) FindByStatus(ctx context.Context, status Status) ([]*RewardClaim, error) {
	return s.claims.Find(ctx, &RewardClaim{Status: status})
}

// HasClaimed reports whether the user holds any claim for the event.
func (s *Service) HasClaimed(ctx context.Context, userID, eventID string) (bool, error) {
	count, err := s.claims.Count(ctx, &RewardClaim{UserID: userID, EventID: eventID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
