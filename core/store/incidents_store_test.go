package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vahan-ops/core/lifecycle"
)

func newTestDB(t *testing.T) IncidentsStore {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db, "sqlite"))
	return NewIncidentsStore(db)
}

func testIncident(id, challan string) *lifecycle.Incident {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &lifecycle.Incident{
		ID:            id,
		ChallanNumber: challan,
		VehiclePlate:  "MH12AB1234",
		Status:        "open",
		Type:          lifecycle.TypeContest,
		ChallanType:   lifecycle.ChallanCourt,
		Queue:         lifecycle.QueueNewIncidents,
		FineAmount:    1500,
		CreatedAt:     now,
		LastUpdatedAt: now,
		TATDeadline:   now.Add(45 * 24 * time.Hour),
		Version:       1,
	}
}

func TestCreateIncidentGeneratesRegNo(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	first := testIncident("i1", "CH1")
	require.NoError(t, s.CreateIncident(ctx, first, "CHN-{year}-{seq:05}"))
	assert.Equal(t, "CHN-2025-00001", first.IncidentID)

	second := testIncident("i2", "CH2")
	require.NoError(t, s.CreateIncident(ctx, second, "CHN-{year}-{seq:05}"))
	assert.Equal(t, "CHN-2025-00002", second.IncidentID)
}

func TestGetIncidentRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	inc := testIncident("i1", "CH1")
	offence := "overspeeding"
	inc.Offence = &offence
	require.NoError(t, s.CreateIncident(ctx, inc, ""))

	got, err := s.GetIncident(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, inc.ChallanNumber, got.ChallanNumber)
	assert.Equal(t, lifecycle.QueueNewIncidents, got.Queue)
	require.NotNil(t, got.Offence)
	assert.Equal(t, "overspeeding", *got.Offence)
	assert.Nil(t, got.AssignedAgentID)

	byChallan, err := s.GetIncidentByChallan(ctx, "CH1")
	require.NoError(t, err)
	assert.Equal(t, "i1", byChallan.ID)

	_, err = s.GetIncident(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateIncidentVersionConflict(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	inc := testIncident("i1", "CH1")
	require.NoError(t, s.CreateIncident(ctx, inc, ""))

	inc.Queue = lifecycle.QueueScreening
	require.NoError(t, s.UpdateIncident(ctx, inc, 1))
	assert.Equal(t, 2, inc.Version)

	// Stale version loses.
	inc.Queue = lifecycle.QueueLawyerAssigned
	assert.ErrorIs(t, s.UpdateIncident(ctx, inc, 1), ErrConflict)
}

func TestListIncidentsFilterAndSearch(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	a := testIncident("i1", "CH-AAA")
	b := testIncident("i2", "CH-BBB")
	b.Queue = lifecycle.QueueScreening
	b.VehiclePlate = "KA01ZZ0001"
	require.NoError(t, s.CreateIncident(ctx, a, ""))
	require.NoError(t, s.CreateIncident(ctx, b, ""))

	items, err := s.ListIncidents(ctx, IncidentFilter{Queue: string(lifecycle.QueueScreening)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "i2", items[0].ID)

	items, err = s.ListIncidents(ctx, IncidentFilter{Search: "ka01"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "i2", items[0].ID)
}

func TestFollowUpsOrderedNewestFirst(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	inc := testIncident("i1", "CH1")
	require.NoError(t, s.CreateIncident(ctx, inc, ""))

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"f1", "f2", "f3"} {
		fu := &lifecycle.FollowUp{
			ID:         id,
			IncidentID: "i1",
			Outcome:    "called",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
			CreatedBy:  "ops1",
		}
		require.NoError(t, s.AddFollowUp(ctx, fu))
	}

	items, err := s.ListFollowUps(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "f3", items[0].ID)
	assert.Equal(t, "f1", items[2].ID)
}

func TestTimelineAppendAndList(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	inc := testIncident("i1", "CH1")
	require.NoError(t, s.CreateIncident(ctx, inc, ""))
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i, action := range []lifecycle.TimelineAction{lifecycle.ActionCreated, lifecycle.ActionQueueChanged} {
		ta := &lifecycle.TimelineActivity{
			ID:         string(rune('a' + i)),
			IncidentID: "i1",
			Action:     action,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.AddTimeline(ctx, ta))
	}
	items, err := s.ListTimeline(ctx, "i1", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, lifecycle.ActionQueueChanged, items[0].Action)
}

func TestNewlyOverdueAndFlagging(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)

	overdue := testIncident("i1", "CH1")
	overdue.TATDeadline = now.Add(-24 * time.Hour)
	fresh := testIncident("i2", "CH2")
	fresh.TATDeadline = now.Add(24 * time.Hour)
	require.NoError(t, s.CreateIncident(ctx, overdue, ""))
	require.NoError(t, s.CreateIncident(ctx, fresh, ""))

	items, err := s.ListNewlyOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "i1", items[0].ID)

	require.NoError(t, s.MarkOverdueFlagged(ctx, "i1"))
	assert.ErrorIs(t, s.MarkOverdueFlagged(ctx, "i1"), ErrConflict)

	items, err = s.ListNewlyOverdue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteIncidentRemovesOwnedRows(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	inc := testIncident("i1", "CH1")
	require.NoError(t, s.CreateIncident(ctx, inc, ""))
	require.NoError(t, s.AddFollowUp(ctx, &lifecycle.FollowUp{ID: "f1", IncidentID: "i1", Outcome: "called", CreatedAt: time.Now().UTC(), CreatedBy: "ops1"}))
	require.NoError(t, s.AddTimeline(ctx, &lifecycle.TimelineActivity{ID: "t1", IncidentID: "i1", Action: lifecycle.ActionCreated, CreatedAt: time.Now().UTC()}))

	require.NoError(t, s.DeleteIncident(ctx, "i1"))

	_, err := s.GetIncident(ctx, "i1")
	assert.ErrorIs(t, err, ErrNotFound)
	followUps, err := s.ListFollowUps(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, followUps)
	timeline, err := s.ListTimeline(ctx, "i1", 0)
	require.NoError(t, err)
	assert.Empty(t, timeline)

	assert.ErrorIs(t, s.DeleteIncident(ctx, "missing"), ErrNotFound)
}

func TestCountByQueue(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	a := testIncident("i1", "CH1")
	b := testIncident("i2", "CH2")
	c := testIncident("i3", "CH3")
	c.Queue = lifecycle.QueueScreening
	for _, inc := range []*lifecycle.Incident{a, b, c} {
		require.NoError(t, s.CreateIncident(ctx, inc, ""))
	}
	counts, err := s.CountByQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[lifecycle.QueueNewIncidents])
	assert.Equal(t, 1, counts[lifecycle.QueueScreening])
}

func TestBuildRegNo(t *testing.T) {
	assert.Equal(t, "CHN-2025-00007", buildRegNo("CHN-{year}-{seq:05}", 2025, 7))
	assert.Equal(t, "INC/2025/7", buildRegNo("INC/{year}/{seq}", 2025, 7))
	assert.Equal(t, "CHN-2025-00012", buildRegNo("", 2025, 12))
}
