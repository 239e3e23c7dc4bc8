package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "achievements.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pendingAchievement(id, owner string, submitted time.Time) *achievement.Achievement {
	return &achievement.Achievement{
		ID:          id,
		OwnerID:     owner,
		Title:       "title " + id,
		Body:        "body",
		Type:        achievement.TypeProject,
		Status:      achievement.StatusPending,
		CreatedAt:   submitted,
		UpdatedAt:   submitted,
		SubmittedAt: &submitted,
		Attachments: []achievement.Attachment{
			{ID: id + "-att", AchievementID: id, URL: "https://cdn.example.com/" + id + ".png", Name: id + ".png", Size: 10},
		},
	}
}

func insert(t *testing.T, store *Store, a *achievement.Achievement) {
	t.Helper()
	require.NoError(t, store.Apply(context.Background(), achievement.Change{
		Kind:        achievement.ChangeInsert,
		Achievement: a,
	}))
	a.Version = 1
}

// update guards next against a and advances next to the committed version.
func update(a, next *achievement.Achievement) achievement.Change {
	next.Version = a.Version + 1
	return achievement.Guard(achievement.ChangeUpdate, a, next)
}

func reject(a *achievement.Achievement, decisionID string, at time.Time) achievement.Change {
	next := a.Clone()
	next.Status = achievement.StatusRejected
	next.ReviewerID = "teacher-1"
	next.UpdatedAt = at
	change := update(a, next)
	change.Decision = &achievement.ReviewDecision{
		ID:            decisionID,
		AchievementID: a.ID,
		ReviewerID:    "teacher-1",
		Outcome:       achievement.OutcomeRejected,
		Feedback:      "needs more detail",
		DecidedAt:     at,
	}
	return change
}

func TestStore_InsertAndGet(t *testing.T) {
	store := openTestStore(t)
	a := pendingAchievement("a-1", "s-1", baseTime)
	insert(t, store, a)

	got, err := store.Get(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, a.Title, got.Title)
	assert.Equal(t, achievement.StatusPending, got.Status)
	assert.Equal(t, baseTime, *got.SubmittedAt)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "a-1.png", got.Attachments[0].Name)
	assert.Equal(t, int64(1), got.Version)

	_, err = store.Get(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_UpdateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	a := pendingAchievement("a-1", "s-1", baseTime)
	insert(t, store, a)

	change := reject(a, "d-1", baseTime.Add(time.Minute))
	require.NoError(t, store.Apply(ctx, change))

	got, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	// Same guard again: the row is no longer Pending.
	change.Decision.ID = "d-2"
	err = store.Apply(ctx, change)
	assert.ErrorIs(t, err, achievement.ErrWriteConflict)
	assert.True(t, shared.IsInvalidState(err))

	decisions, err := store.Decisions(ctx, "a-1")
	require.NoError(t, err)
	assert.Len(t, decisions, 1, "failed write must not leave a decision behind")

	missing := pendingAchievement("ghost", "s-1", baseTime)
	missing.Version = 1
	err = store.Apply(ctx, update(missing, missing.Clone()))
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_StaleSnapshotLosesWithSameStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	a := pendingAchievement("a-1", "s-1", baseTime)
	insert(t, store, a)

	// Two writers read version 1; the first keeps the status and commits.
	edited := a.Clone()
	edited.Title = "edited"
	edited.Attachments = nil
	first := update(a, edited)
	first.ReplaceAttachments = true
	require.NoError(t, store.Apply(ctx, first))

	stale := a.Clone()
	stale.Body = "stale body"
	err := store.Apply(ctx, update(a, stale))
	assert.ErrorIs(t, err, achievement.ErrWriteConflict)
	assert.True(t, shared.IsInvalidState(err))

	got, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Title)
	assert.Equal(t, "body", got.Body)
	assert.Empty(t, got.Attachments)
	assert.Equal(t, int64(2), got.Version)

	// Rejected, resubmitted and rejected again: the status matches the first
	// snapshot but the version does not.
	rejected := reject(got, "d-1", baseTime.Add(time.Minute))
	require.NoError(t, store.Apply(ctx, rejected))
	snapshot := rejected.Achievement

	resubmitted := snapshot.Clone()
	resubmitted.Status = achievement.StatusPending
	resubmitted.ReviewerID = ""
	require.NoError(t, store.Apply(ctx, update(snapshot, resubmitted)))
	require.NoError(t, store.Apply(ctx, reject(resubmitted, "d-2", baseTime.Add(2*time.Minute))))

	late := snapshot.Clone()
	late.Title = "late edit"
	err = store.Apply(ctx, update(snapshot, late))
	assert.ErrorIs(t, err, achievement.ErrWriteConflict)

	err = store.Apply(ctx, achievement.Guard(achievement.ChangeDelete, snapshot, snapshot))
	assert.ErrorIs(t, err, achievement.ErrWriteConflict)
}

func TestStore_FailedDecisionRollsBackStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	a := pendingAchievement("a-1", "s-1", baseTime)
	insert(t, store, a)

	_, err := store.DB().Exec(`
		CREATE TRIGGER fail_decisions BEFORE INSERT ON review_decisions
		BEGIN SELECT RAISE(ABORT, 'ledger unavailable'); END;`)
	require.NoError(t, err)

	err = store.Apply(ctx, reject(a, "d-1", baseTime.Add(time.Minute)))
	require.Error(t, err)

	got, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusPending, got.Status)
	assert.Empty(t, got.ReviewerID)
}

func TestStore_DeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	a := pendingAchievement("a-1", "s-1", baseTime)
	insert(t, store, a)
	change := reject(a, "d-1", baseTime.Add(time.Minute))
	require.NoError(t, store.Apply(ctx, change))

	wrongStatus := achievement.Guard(achievement.ChangeDelete, change.Achievement, change.Achievement)
	wrongStatus.ExpectedStatus = achievement.StatusPending
	err := store.Apply(ctx, wrongStatus)
	assert.True(t, shared.IsInvalidState(err), "guard must match current status")

	require.NoError(t, store.Apply(ctx, achievement.Guard(achievement.ChangeDelete, change.Achievement, change.Achievement)))

	_, err = store.Get(ctx, "a-1")
	assert.True(t, shared.IsNotFound(err))

	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT count(*) FROM attachments`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, store.DB().QueryRow(`SELECT count(*) FROM review_decisions`).Scan(&n))
	assert.Zero(t, n)
}

func TestStore_ListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	insert(t, store, pendingAchievement("late", "s-1", baseTime.Add(2*time.Hour)))
	insert(t, store, pendingAchievement("early", "s-2", baseTime))
	insert(t, store, pendingAchievement("middle", "s-1", baseTime.Add(time.Hour)))

	page, err := shared.NewPageRequest(1, 2)
	require.NoError(t, err)

	items, total, err := store.List(ctx, achievement.ListFilter{
		Statuses: []achievement.Status{achievement.StatusPending},
		Order:    achievement.OrderSubmittedAsc,
	}, page)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "early", items[0].ID)
	assert.Equal(t, "middle", items[1].ID)
	assert.Len(t, items[0].Attachments, 1)

	items, total, err = store.List(ctx, achievement.ListFilter{OwnerID: "s-1", Order: achievement.OrderCreatedDesc}, page)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "late", items[0].ID)
}

func TestStore_ListCountAndPageShareOneSnapshot(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	insert(t, store, pendingAchievement("a-1", "s-1", baseTime))

	committed := make(chan error, 1)
	page, err := shared.NewPageRequest(1, 10)
	require.NoError(t, err)

	var seen int
	err = store.read(ctx, func(q querier) error {
		if err := q.QueryRowContext(ctx, `SELECT count(*) FROM achievements`).Scan(&seen); err != nil {
			return err
		}
		go func() {
			committed <- store.Apply(ctx, achievement.Change{
				Kind:        achievement.ChangeInsert,
				Achievement: pendingAchievement("a-2", "s-1", baseTime.Add(time.Minute)),
			})
		}()

		select {
		case err := <-committed:
			t.Errorf("write committed inside the read: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
		return q.QueryRowContext(ctx, `SELECT count(*) FROM achievements`).Scan(&seen)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
	require.NoError(t, <-committed)

	items, total, err := store.List(ctx, achievement.ListFilter{OwnerID: "s-1"}, page)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, total)
}

func TestStore_LatestDecisionsAndFeed(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	a := pendingAchievement("a-1", "s-1", baseTime)
	insert(t, store, a)

	first := reject(a, "d-1", baseTime.Add(time.Minute))
	require.NoError(t, store.Apply(ctx, first))

	resubmitted := first.Achievement.Clone()
	resubmitted.Status = achievement.StatusPending
	resubmitted.ReviewerID = ""
	require.NoError(t, store.Apply(ctx, update(first.Achievement, resubmitted)))

	second := reject(resubmitted, "d-2", baseTime.Add(2*time.Minute))
	second.Decision.Feedback = "still thin"
	require.NoError(t, store.Apply(ctx, second))

	latest, err := store.LatestDecisions(ctx, []string{"a-1", "unknown"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "d-2", latest["a-1"].ID)

	page, _ := shared.NewPageRequest(0, 0)
	feed, total, err := store.OwnerFeed(ctx, "s-1", page)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, feed, 2)
	assert.Equal(t, "still thin", feed[0].Decision.Feedback)
	assert.Equal(t, "title a-1", feed[0].AchievementTitle)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[achievement.StatusRejected])
}

func TestMigrator_RollbackAndStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	m := NewMigrator(store.DB())

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 4)
	for _, s := range status {
		assert.True(t, s.IsApplied, s.Name)
	}

	require.NoError(t, m.Rollback(ctx))
	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status[3].IsApplied)
	assert.True(t, status[2].IsApplied)

	require.NoError(t, m.Migrate(ctx))
	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status[3].IsApplied)
}

func TestSplitMigration(t *testing.T) {
	up, down := splitMigration("-- +migrate Up\nCREATE TABLE x (id INT);\n-- +migrate Down\nDROP TABLE x;\n")
	assert.Contains(t, up, "CREATE TABLE x")
	assert.NotContains(t, up, "DROP")
	assert.Contains(t, down, "DROP TABLE x")
}
