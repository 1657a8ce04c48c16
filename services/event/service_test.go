package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardengine/pkg/cache"
	"rewardengine/pkg/errutil"
	"rewardengine/pkg/rediskey"
	"rewardengine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, cache.Cache) {
	t.Helper()

	db := testutil.NewTestDB(t, &Event{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	memCache := cache.NewMemory(0)

	svc := NewService(ServiceParams{
		DB:    db,
		Node:  node,
		Cache: memCache,
	})
	return svc, memCache
}

func loginParams(start, end time.Time) CreateEventParams {
	return CreateEventParams{
		Name:            "login streak",
		Description:     "log in three times",
		ConditionType:   ConditionTypeLogin,
		ConditionParams: map[string]any{"requiredCount": 3},
		StartDate:       start,
		EndDate:         end,
	}
}

func TestCreateEventDefaultsInactive(t *testing.T) {
	svc, _ := newTestService(t)

	e, err := svc.Create(context.Background(), loginParams(time.Now(), time.Now().Add(24*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, StatusInactive, e.Status)
	require.NotEmpty(t, e.ID)
}

func TestCreateEventValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.Create(ctx, CreateEventParams{
		Name:          "",
		ConditionType: ConditionTypeLogin,
		StartDate:     now,
		EndDate:       now,
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	p := loginParams(now.Add(time.Hour), now)
	_, err = svc.Create(ctx, p)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	p = loginParams(now, now.Add(time.Hour))
	p.ConditionParams = map[string]any{}
	_, err = svc.Create(ctx, p)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	p.ConditionType = ConditionType("RAFFLE")
	p.ConditionParams = map[string]any{"requiredCount": 1}
	_, err = svc.Create(ctx, p)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	p = CreateEventParams{
		Name:            "signup",
		ConditionType:   ConditionTypeCustom,
		ConditionParams: map[string]any{},
		StartDate:       now,
		EndDate:         now.Add(time.Hour),
	}
	_, err = svc.Create(ctx, p)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestFindByIDNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.FindByID(context.Background(), "missing")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestIsValidPredicate(t *testing.T) {
	now := time.Now()
	e := &Event{
		Status:    StatusActive,
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
	}

	samples := []time.Time{
		now,
		now.Add(-2 * time.Hour),
		now.Add(2 * time.Hour),
		e.StartDate,
		e.EndDate,
	}
	for _, sample := range samples {
		expected := e.Status == StatusActive && !sample.Before(e.StartDate) && !sample.After(e.EndDate)
		require.Equal(t, expected, e.IsValid(sample), "sample %v", sample)
	}

	e.Status = StatusInactive
	require.False(t, e.IsValid(now))
}

func TestStatusTransitionTable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	allowed := map[Status][]Status{
		StatusInactive: {StatusActive, StatusExpired},
		StatusActive:   {StatusInactive, StatusExpired},
		StatusExpired:  {StatusInactive},
	}
	statuses := []Status{StatusInactive, StatusActive, StatusExpired}

	for _, from := range statuses {
		for _, to := range statuses {
			e, err := svc.Create(ctx, loginParams(time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour)))
			require.NoError(t, err)
			if from != StatusInactive {
				_, err = svc.ChangeStatus(ctx, e.ID, from)
				require.NoError(t, err)
			}

			legal := false
			for _, next := range allowed[from] {
				if next == to {
					legal = true
				}
			}

			_, err = svc.ChangeStatus(ctx, e.ID, to)
			if legal {
				require.NoError(t, err, "transition %s -> %s", from, to)
			} else {
				require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity),
					"transition %s -> %s should be rejected", from, to)
			}
		}
	}
}

func TestAutoUpdateStatusExpiresOnRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, loginParams(time.Now().Add(-48*time.Hour), time.Now().Add(time.Hour)))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, e.ID, StatusActive)
	require.NoError(t, err)

	// push the window into the past behind the service's back
	require.NoError(t, svc.db.Model(&Event{}).Where("id = ?", e.ID).
		Update("end_date", time.Now().Add(-time.Minute)).Error)
	svc.invalidate(ctx, e.ID)

	got, err := svc.FindByID(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)

	// the correction was persisted, not just returned
	var stored Event
	require.NoError(t, svc.db.Where("id = ?", e.ID).First(&stored).Error)
	require.Equal(t, StatusExpired, stored.Status)
}

func TestFindActiveAppliesValidityAtQueryLayer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	valid, err := svc.Create(ctx, loginParams(now.Add(-time.Hour), now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, valid.ID, StatusActive)
	require.NoError(t, err)

	// ACTIVE in storage but past its end date: must not be listed
	lagging, err := svc.Create(ctx, loginParams(now.Add(-2*time.Hour), now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, lagging.ID, StatusActive)
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(&Event{}).Where("id = ?", lagging.ID).
		Update("end_date", now.Add(-time.Minute)).Error)
	svc.invalidate(ctx, lagging.ID)

	inactive, err := svc.Create(ctx, loginParams(now.Add(-time.Hour), now.Add(time.Hour)))
	require.NoError(t, err)

	active, err := svc.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, valid.ID, active[0].ID)
	require.NotEqual(t, inactive.ID, active[0].ID)
}

func TestCacheInvalidatedOnSave(t *testing.T) {
	svc, memCache := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, loginParams(time.Now(), time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	// prime the cache
	_, err = svc.FindByID(ctx, e.ID)
	require.NoError(t, err)
	cached, err := memCache.Get(ctx, rediskey.BuildEventKey(e.ID))
	require.NoError(t, err)
	require.Contains(t, cached, "login streak")

	name := "renamed"
	_, err = svc.Update(ctx, e.ID, UpdateEventParams{Name: &name})
	require.NoError(t, err)

	got, err := svc.FindByID(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
}

func TestCachedEventRoundTripsTemporalFields(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	e := &Event{
		ID:            "e1",
		Name:          "n",
		ConditionType: ConditionTypeLogin,
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.Add(time.Hour),
		Status:        StatusActive,
	}

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.True(t, decoded.StartDate.Equal(e.StartDate))
	require.True(t, decoded.EndDate.Equal(e.EndDate))
	require.True(t, decoded.IsValid(now))
}

func TestDeleteEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, loginParams(time.Now(), time.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, e.ID))

	_, err = svc.FindByID(ctx, e.ID)
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	err = svc.Delete(ctx, e.ID)
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}
