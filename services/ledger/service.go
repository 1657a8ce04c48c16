package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"rewardengine/pkg/db/option"
	"rewardengine/pkg/errutil"
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

	entries repository.Repository[UserEvent]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		entries: repository.ProvideStore[UserEvent](p.DB),
	}
}

type RecordParams struct {
	UserID         string
	EventType      string
	EventKey       string
	OccurredAt     *time.Time
	Metadata       map[string]any
	IdempotencyKey string
}

// Record appends a behavioral fact. When an idempotency key is supplied,
// replays of the same key return the already-recorded entry unchanged, even
// when concurrent retries race past the pre-check.
func (s *Service) Record(ctx context.Context, p RecordParams) (*UserEvent, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, errutil.ValidationFailed("userId is required", nil)
	}
	if strings.TrimSpace(p.EventType) == "" {
		return nil, errutil.ValidationFailed("eventType is required", nil)
	}

	if p.IdempotencyKey != "" {
		existing, err := s.FindByIdempotencyKey(ctx, p.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	occurredAt := time.Now()
	if p.OccurredAt != nil {
		occurredAt = *p.OccurredAt
	}

	entry := &UserEvent{
		ID:         s.node.Generate().String(),
		UserID:     p.UserID,
		EventType:  p.EventType,
		EventKey:   p.EventKey,
		OccurredAt: occurredAt,
		Metadata:   datatypes.JSONMap(p.Metadata),
		CreatedAt:  time.Now(),
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		entry.IdempotencyKey = &key
	}

	if err := s.entries.Create(ctx, entry); err != nil {
		// a concurrent retry won the unique-index race; honour the
		// idempotent contract by returning its entry
		if p.IdempotencyKey != "" && isDuplicateKey(err) {
			existing, lookupErr := s.FindByIdempotencyKey(ctx, p.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		zap.L().Error("failed to record user event", zap.String("user_id", p.UserID), zap.Error(err))
		return nil, err
	}

	return entry, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// FindByUser lists a user's entries, optionally filtered by event type, oldest
// first.
func (s *Service) FindByUser(ctx context.Context, userID, eventType string) ([]*UserEvent, error) {
	query := &UserEvent{UserID: userID}
	if eventType != "" {
		query.EventType = eventType
	}
	return s.entries.Find(ctx, query, option.WithSortBy(option.QuerySortBy{
		SortBy:  "occurred_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"occurred_at": true},
	}))
}

// FindByID returns nil when no entry exists.
func (s *Service) FindByID(ctx context.Context, id string) (*UserEvent, error) {
	return s.entries.FindOne(ctx, &UserEvent{ID: id})
}

// FindByIdempotencyKey returns nil when no entry exists for the key.
func (s *Service) FindByIdempotencyKey(ctx context.Context, key string) (*UserEvent, error) {
	return s.entries.FindOne(ctx, &UserEvent{IdempotencyKey: &key})
}

// CountByUserAndType counts a user's lifetime entries of one behavior type.
func (s *Service) CountByUserAndType(ctx context.Context, userID, eventType string) (int64, error) {
	return s.entries.Count(ctx, &UserEvent{UserID: userID, EventType: eventType})
}

// HasEntry reports whether at least one entry exists for the given user,
// behavior type and key.
func (s *Service) HasEntry(ctx context.Context, userID, eventType, eventKey string) (bool, error) {
	count, err := s.entries.Count(ctx, &UserEvent{UserID: userID, EventType: eventType, EventKey: eventKey})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
