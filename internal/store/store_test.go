package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cybersecbot/internal/campaign"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var target = time.Date(2025, 4, 15, 18, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCampaign(id string) campaign.Campaign {
	return campaign.Campaign{
		ID:              id,
		Kind:            campaign.RecurringMilestone,
		Topic:           campaign.TopicCalendar,
		TargetTime:      target,
		Milestones:      campaign.Reminders([]time.Duration{-time.Hour, -24 * time.Hour}),
		State:           campaign.Active,
		Payload:         []byte(`{"summary":"Club meeting"}`),
		FiredMilestones: []string{},
		Destination:     campaign.Destination{ChannelID: "123"},
		CreatedAt:       target.Add(-48 * time.Hour),
	}
}

func TestOpen_CreatesDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "bot.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")

	s1, err := Open(path)
	require.NoError(t, err)
	c := testCampaign("c1")
	c.FiredMilestones = []string{"-24h0m0s"}
	require.NoError(t, s1.Put(ctx, c))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	active, err := s2.GetAllActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"-24h0m0s"}, active[0].FiredMilestones)
}

func TestPutGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c := testCampaign("c1")
	c.Destination.MessageID = "456"

	require.NoError(t, s.Put(ctx, c))
	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Kind, got.Kind)
	assert.Equal(t, c.Topic, got.Topic)
	assert.True(t, c.TargetTime.Equal(got.TargetTime))
	assert.Equal(t, time.UTC, got.TargetTime.Location())
	assert.Equal(t, c.Milestones, got.Milestones)
	assert.Equal(t, c.State, got.State)
	assert.JSONEq(t, string(c.Payload), string(got.Payload))
	assert.Equal(t, c.Destination, got.Destination)
	assert.True(t, got.ClosedAt.IsZero())
}

func TestPut_IsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c := testCampaign("c1")

	require.NoError(t, s.Put(ctx, c))
	c.FiredMilestones = []string{"-24h0m0s"}
	require.NoError(t, s.Put(ctx, c))
	require.NoError(t, s.Put(ctx, c))

	active, err := s.GetAllActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"-24h0m0s"}, active[0].FiredMilestones)
}

func TestInsert_RejectsExistingId(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c := testCampaign("c1")

	require.NoError(t, s.Insert(ctx, c))
	err := s.Insert(ctx, c)
	assert.ErrorIs(t, err, campaign.ErrExists)

	// Closed campaigns still block the id
	c.Close(campaign.CloseCompleted, target)
	require.NoError(t, s.Put(ctx, c))
	assert.ErrorIs(t, s.Insert(ctx, testCampaign("c1")), campaign.ErrExists)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestGetAllActive_ExcludesClosed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	later := testCampaign("later")
	later.TargetTime = target.Add(time.Hour)
	closed := testCampaign("closed")
	closed.Close(campaign.CloseCompleted, target)
	require.NoError(t, s.Put(ctx, later))
	require.NoError(t, s.Put(ctx, testCampaign("sooner")))
	require.NoError(t, s.Put(ctx, closed))

	active, err := s.GetAllActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "sooner", active[0].ID)
	assert.Equal(t, "later", active[1].ID)
}

func TestUpdate_AppliesAndPersists(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Put(ctx, testCampaign("c1")))

	updated, err := s.Update(ctx, "c1", func(c *campaign.Campaign) error {
		c.MarkFired("-24h0m0s")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"-24h0m0s"}, updated.FiredMilestones)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"-24h0m0s"}, got.FiredMilestones)
}

func TestUpdate_ErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Put(ctx, testCampaign("c1")))
	rejected := errors.New("rejected")

	_, err := s.Update(ctx, "c1", func(c *campaign.Campaign) error {
		c.MarkFired("-1h0m0s")
		c.Payload = []byte(`{"summary":"changed"}`)
		return rejected
	})
	assert.ErrorIs(t, err, rejected)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got.FiredMilestones)
	assert.JSONEq(t, `{"summary":"Club meeting"}`, string(got.Payload))
}

func TestUpdate_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Update(context.Background(), "missing", func(c *campaign.Campaign) error { return nil })
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestDelete_UnknownIdIsNoop(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	assert.NoError(t, s.Delete(ctx, "missing"))

	require.NoError(t, s.Put(ctx, testCampaign("c1")))
	require.NoError(t, s.Delete(ctx, "c1"))
	_, err := s.Get(ctx, "c1")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestDeleteClosedBefore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	old := testCampaign("old")
	old.Close(campaign.CloseCompleted, target.Add(-72*time.Hour))
	recent := testCampaign("recent")
	recent.Close(campaign.CloseCompleted, target)
	require.NoError(t, s.Put(ctx, old))
	require.NoError(t, s.Put(ctx, recent))
	require.NoError(t, s.Put(ctx, testCampaign("active")))

	deleted, err := s.DeleteClosedBefore(ctx, target.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
	_, err = s.Get(ctx, "recent")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "active")
	assert.NoError(t, err)
}

func TestGetAllActive_SkipsCorruptRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, testCampaign("good")))
	require.NoError(t, s.Put(ctx, testCampaign("bad")))
	require.NoError(t, s.db.Exec("UPDATE campaigns SET milestones = 'not json' WHERE id = ?", "bad").Error)

	active, err := s.GetAllActive(ctx)

	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "good", active[0].ID)

	// The corrupt row itself still reports its error
	_, err = s.Get(ctx, "bad")
	assert.Error(t, err)
}
