package reward

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardengine/pkg/cache"
	"rewardengine/pkg/errutil"
	"rewardengine/services/event"
	"rewardengine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *event.Service) {
	t.Helper()

	db := testutil.NewTestDB(t, &event.Event{}, &Reward{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	events := event.NewService(event.ServiceParams{DB: db, Node: node, Cache: cache.NewMemory(0)})
	return NewService(ServiceParams{DB: db, Node: node, Events: events}), events
}

func seedEvent(t *testing.T, events *event.Service) *event.Event {
	t.Helper()
	e, err := events.Create(context.Background(), event.CreateEventParams{
		Name:            "spring login",
		ConditionType:   event.ConditionTypeLogin,
		ConditionParams: map[string]any{"requiredCount": 1},
		StartDate:       time.Now().Add(-time.Hour),
		EndDate:         time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return e
}

func TestCreateReward(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, events)

	r, err := svc.Create(ctx, CreateRewardParams{
		EventID:          e.ID,
		Type:             "POINT",
		Amount:           500,
		RequiresApproval: true,
	})
	require.NoError(t, err)
	require.Equal(t, e.ID, r.EventID)
	require.EqualValues(t, 500, r.Amount)
	require.True(t, r.NeedsApproval())
}

func TestCreateRewardValidation(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, events)

	cases := []struct {
		name string
		p    CreateRewardParams
	}{
		{"missing event", CreateRewardParams{Type: "POINT"}},
		{"missing type", CreateRewardParams{EventID: e.ID}},
		{"negative amount", CreateRewardParams{EventID: e.ID, Type: "POINT", Amount: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.p)
			require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
		})
	}
}

func TestCreateRewardDefaultsAmount(t *testing.T) {
	svc, events := newTestService(t)
	e := seedEvent(t, events)

	r, err := svc.Create(context.Background(), CreateRewardParams{EventID: e.ID, Type: "ITEM"})
	require.NoError(t, err)
	require.EqualValues(t, 1, r.Amount)
}

func TestCreateRewardRequiresExistingEvent(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateRewardParams{EventID: "ghost", Type: "POINT"})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestUpdateRewardKeepsEventLinkage(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, events)

	r, err := svc.Create(ctx, CreateRewardParams{EventID: e.ID, Type: "POINT", Amount: 10})
	require.NoError(t, err)

	newType := "COUPON"
	newAmount := int64(25)
	approval := true
	updated, err := svc.Update(ctx, r.ID, UpdateRewardParams{
		Type:             &newType,
		Amount:           &newAmount,
		RequiresApproval: &approval,
	})
	require.NoError(t, err)
	require.Equal(t, "COUPON", updated.Type)
	require.EqualValues(t, 25, updated.Amount)
	require.True(t, updated.RequiresApproval)
	require.Equal(t, e.ID, updated.EventID)

	got, err := svc.FindByID(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "COUPON", got.Type)
}

func TestUpdateRewardValidation(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, events)

	r, err := svc.Create(ctx, CreateRewardParams{EventID: e.ID, Type: "POINT"})
	require.NoError(t, err)

	empty := " "
	_, err = svc.Update(ctx, r.ID, UpdateRewardParams{Type: &empty})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	zero := int64(0)
	_, err = svc.Update(ctx, r.ID, UpdateRewardParams{Amount: &zero})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestFindByEventID(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	e1 := seedEvent(t, events)
	e2 := seedEvent(t, events)

	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, CreateRewardParams{EventID: e1.ID, Type: "POINT"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, CreateRewardParams{EventID: e2.ID, Type: "ITEM"})
	require.NoError(t, err)

	got, err := svc.FindByEventID(ctx, e1.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestDeleteReward(t *testing.T) {
	svc, events := newTestService(t)
	ctx := context.Background()
	e := seedEvent(t, events)

	r, err := svc.Create(ctx, CreateRewardParams{EventID: e.ID, Type: "POINT"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, r.ID))
	_, err = svc.FindByID(ctx, r.ID)
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}
