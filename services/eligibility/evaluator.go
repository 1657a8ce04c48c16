package eligibility

import (
	"context"
	"fmt"
	"time"

	"rewardengine/pkg/errutil"
	"rewardengine/services/event"
	"rewardengine/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// customEventKeys maps caller-facing condition codes onto the ledger event
// keys they are recorded under. Unmapped codes pass through unchanged.
var customEventKeys = map[string]string{
	"SIGN_UP":        "user-register",
	"register":       "user-register",
	"login":          "user-login",
	"purchase":       "user-purchase",
	"profile_update": "user-profile_update",
}

var supportedConditionTypes = []event.ConditionType{
	event.ConditionTypeLogin,
	event.ConditionTypeCustom,
}

// EventFinder is the slice of the event store the evaluator needs.
type EventFinder interface {
	FindByID(ctx context.Context, id string) (*event.Event, error)
}

// LedgerReader is the slice of the user-event ledger the evaluator needs.
type LedgerReader interface {
	CountByUserAndType(ctx context.Context, userID, eventType string) (int64, error)
	HasEntry(ctx context.Context, userID, eventType, eventKey string) (bool, error)
}

// Evaluator decides whether a user's recorded behavior satisfies an event's
// condition. It is a pure read over the ledger; it never mutates state.
type Evaluator struct {
	events EventFinder
	ledger LedgerReader
	logger *zap.Logger
}

type EvaluatorParams struct {
	fx.In

	Events *event.Service
	Ledger *ledger.Service
	Logger *zap.Logger
}

func NewEvaluator(p EvaluatorParams) *Evaluator {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		events: p.Events,
		ledger: p.Ledger,
		logger: logger,
	}
}

// Evaluate dispatches on the event's condition type. Unknown types fail
// closed.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, ev *event.Event) (bool, error) {
	switch ev.ConditionType {
	case event.ConditionTypeLogin:
		return e.evaluateLogin(ctx, userID, ev)
	case event.ConditionTypeCustom:
		return e.evaluateCustom(ctx, userID, ev)
	default:
		e.logger.Warn("unsupported condition type, failing closed",
			zap.String("event_id", ev.ID),
			zap.String("condition_type", string(ev.ConditionType)))
		return false, nil
	}
}

// evaluateLogin counts the user's lifetime "login" entries. No window filter
// is applied: callers wanting windowed counts filter the ledger themselves.
func (e *Evaluator) evaluateLogin(ctx context.Context, userID string, ev *event.Event) (bool, error) {
	required, ok := ev.RequiredCount()
	if !ok {
		return false, errutil.ValidationFailed("conditionParams.requiredCount is missing", nil)
	}
	count, err := e.ledger.CountByUserAndType(ctx, userID, ledger.EventTypeLogin)
	if err != nil {
		return false, err
	}
	return count >= required, nil
}

func (e *Evaluator) evaluateCustom(ctx context.Context, userID string, ev *event.Event) (bool, error) {
	code, ok := ev.EventCode()
	if !ok {
		return false, errutil.ValidationFailed("conditionParams.eventCode is missing", nil)
	}
	eventKey := code
	if mapped, ok := customEventKeys[code]; ok {
		eventKey = mapped
	}
	return e.ledger.HasEntry(ctx, userID, ledger.EventTypeCustom, eventKey)
}

// Result is the outcome of a full eligibility validation, including audit
// metadata for the claim record.
type Result struct {
	Eligible     bool
	ErrorMessage string
	Metadata     map[string]any
}

// Validate wraps Evaluate with the event-level checks: existence, validity and
// condition-type support. A NotFound from the event store propagates as an
// error; everything else lands in the Result.
func (e *Evaluator) Validate(ctx context.Context, userID, eventID string) (*Result, error) {
	ev, err := e.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !ev.IsValid(now) {
		return &Result{
			Eligible:     false,
			ErrorMessage: "event not active or out of period",
			Metadata: map[string]any{
				"status":    string(ev.Status),
				"startDate": ev.StartDate,
				"endDate":   ev.EndDate,
			},
		}, nil
	}

	if !isSupported(ev.ConditionType) {
		return &Result{
			Eligible:     false,
			ErrorMessage: fmt.Sprintf("unsupported condition type %q", ev.ConditionType),
			Metadata: map[string]any{
				"supportedTypes": supportedConditionTypes,
			},
		}, nil
	}

	eligible, err := e.Evaluate(ctx, userID, ev)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Eligible: eligible,
		Metadata: map[string]any{
			"timestamp":     now,
			"userId":        userID,
			"eventId":       eventID,
			"conditionType": string(ev.ConditionType),
		},
	}
	if !eligible {
		result.ErrorMessage = "event condition not met"
	}
	return result, nil
}

func isSupported(conditionType event.ConditionType) bool {
	for _, t := range supportedConditionTypes {
		if t == conditionType {
			return true
		}
	}
	return false
}
