package command

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
	"github.com/alem-hub/achievement-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

var (
	student  = identity.Principal{ID: "student-1", Role: identity.RoleStudent}
	stranger = identity.Principal{ID: "student-2", Role: identity.RoleStudent}
	teacher  = identity.Principal{ID: "teacher-1", Role: identity.RoleTeacher}
	teacher2 = identity.Principal{ID: "teacher-2", Role: identity.RoleTeacher}
	admin    = identity.Principal{ID: "admin-1", Role: identity.RoleAdmin}
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(event shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store    *sqlite.Store
	handlers *Handlers
	events   *recorder
}

// interleavedStore runs afterGet once, between a handler's read and its write.
type interleavedStore struct {
	*sqlite.Store
	afterGet func()
}

func (s *interleavedStore) Get(ctx context.Context, id string) (*achievement.Achievement, error) {
	a, err := s.Store.Get(ctx, id)
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		hook()
	}
	return a, err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets wrap substitute the store the handlers see; the
// fixture keeps the raw store for assertions.
func newFixtureWith(t *testing.T, wrap func(*sqlite.Store) achievement.Store) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var handlerStore achievement.Store = store
	if wrap != nil {
		handlerStore = wrap(store)
	}

	var (
		mu  sync.Mutex
		seq int
	)
	events := &recorder{}
	clock := &testClock{now: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)}
	handlers := NewHandlers(Dependencies{
		Store:  handlerStore,
		Events: events,
		Logger: logger.Nop(),
		Now:    clock.Now,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
	return &fixture{store: store, handlers: handlers, events: events}
}

func content(title, body string) achievement.Content {
	return achievement.Content{Title: title, Body: body, Type: achievement.TypeProject}
}

func (f *fixture) pending(t *testing.T, owner identity.Principal) string {
	t.Helper()
	res, err := f.handlers.SubmitNew.Handle(context.Background(), SubmitNewCommand{
		Actor:   owner,
		Content: content("Compiler", "A toy compiler"),
	})
	require.NoError(t, err)
	return res.ID
}

func (f *fixture) get(t *testing.T, id string) *achievement.Achievement {
	t.Helper()
	a, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return a
}

func intPtr(v int) *int { return &v }

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestLifecycle_RejectResubmitApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{Actor: student, Content: content("Paper", "")})
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusDraft, draft.Status)

	_, err = f.handlers.UpdateContent.Handle(ctx, UpdateContentCommand{
		Actor:         student,
		AchievementID: draft.ID,
		Content:       content("Paper", "Abstract ![fig](https://cdn.example.com/fig.png)"),
	})
	require.NoError(t, err)
	assert.Len(t, f.get(t, draft.ID).Attachments, 1)

	submitted, err := f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: draft.ID})
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusPending, submitted.Status)

	rejected, err := f.handlers.Review.Handle(ctx, ReviewCommand{
		Actor:         teacher,
		AchievementID: draft.ID,
		Decision:      achievement.Decision{Outcome: achievement.OutcomeRejected, Feedback: "  cite sources  "},
	})
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusRejected, rejected.Status)
	assert.Nil(t, rejected.Score)

	_, err = f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: draft.ID})
	require.NoError(t, err)
	resubmitted := f.get(t, draft.ID)
	assert.Equal(t, achievement.StatusPending, resubmitted.Status)
	assert.Empty(t, resubmitted.ReviewerID)

	approved, err := f.handlers.Review.Handle(ctx, ReviewCommand{
		Actor:         teacher,
		AchievementID: draft.ID,
		Decision:      achievement.Decision{Outcome: achievement.OutcomeApproved, Score: intPtr(90)},
	})
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusApproved, approved.Status)
	require.NotNil(t, approved.Score)
	assert.Equal(t, 90, *approved.Score)

	stored := f.get(t, draft.ID)
	assert.Equal(t, teacher.ID, stored.ReviewerID)
	require.NoError(t, stored.CheckInvariants())

	decisions, err := f.store.Decisions(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, achievement.OutcomeApproved, decisions[0].Outcome)
	assert.Equal(t, achievement.OutcomeRejected, decisions[1].Outcome)
	assert.Equal(t, "cite sources", decisions[1].Feedback)

	assert.Equal(t, []shared.EventType{
		shared.EventAchievementCreated,
		shared.EventAchievementUpdated,
		shared.EventAchievementSubmitted,
		shared.EventAchievementReviewed,
		shared.EventAchievementSubmitted,
		shared.EventAchievementReviewed,
	}, f.events.types())
}

func TestSubmit_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{Actor: student, Content: content("Only a title", "")})
	require.NoError(t, err)

	_, err = f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: empty.ID})
	assert.True(t, shared.IsValidation(err), "got %v", err)
	assert.Equal(t, achievement.StatusDraft, f.get(t, empty.ID).Status)

	_, err = f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: stranger, AchievementID: empty.ID})
	assert.True(t, shared.IsNotFound(err), "got %v", err)

	_, err = f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: "missing"})
	assert.True(t, shared.IsNotFound(err), "got %v", err)

	id := f.pending(t, student)
	_, err = f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: id})
	assert.True(t, shared.IsInvalidState(err), "got %v", err)
}

func TestSubmitNew_StoresNothingOnValidationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.SubmitNew.Handle(ctx, SubmitNewCommand{Actor: student, Content: content("Title", "")})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, total, err := f.store.List(ctx, achievement.ListFilter{}, shared.PageRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)

	media := achievement.Content{
		Title:     "Poster",
		Type:      achievement.TypeCompetition,
		MediaRefs: []achievement.MediaRef{{URL: "https://cdn.example.com/poster.pdf", Size: 2048}},
	}
	res, err := f.handlers.SubmitNew.Handle(ctx, SubmitNewCommand{Actor: student, Content: media})
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusPending, res.Status)
	assert.NotNil(t, f.get(t, res.ID).SubmittedAt)
}

func TestCreateDraft_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{Actor: teacher, Content: content("t", "b")})
	assert.True(t, shared.IsForbidden(err), "got %v", err)

	_, err = f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{
		Actor:   student,
		Content: content(strings.Repeat("x", achievement.MaxTitleLength+1), ""),
	})
	assert.True(t, shared.IsValidation(err), "got %v", err)

	_, err = f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{
		Actor:   student,
		Content: achievement.Content{Title: "t", Type: achievement.Type("poem")},
	})
	assert.True(t, shared.IsValidation(err), "got %v", err)
}

func TestUpdateContent_OnlyDraftOrRejected(t *testing.T) {
	f := newFixture(t)
	id := f.pending(t, student)

	_, err := f.handlers.UpdateContent.Handle(context.Background(), UpdateContentCommand{
		Actor:         student,
		AchievementID: id,
		Content:       content("New", "body"),
	})
	assert.True(t, shared.IsInvalidState(err), "got %v", err)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.pending(t, student)

	_, err := f.handlers.Withdraw.Handle(ctx, WithdrawCommand{Actor: stranger, AchievementID: id})
	assert.True(t, shared.IsNotFound(err), "got %v", err)

	res, err := f.handlers.Withdraw.Handle(ctx, WithdrawCommand{Actor: student, AchievementID: id})
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusDraft, res.Status)
	assert.Nil(t, f.get(t, id).SubmittedAt)

	_, err = f.handlers.Withdraw.Handle(ctx, WithdrawCommand{Actor: student, AchievementID: id})
	assert.True(t, shared.IsInvalidState(err), "got %v", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Review
// ─────────────────────────────────────────────────────────────────────────────

func TestReview_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.pending(t, student)
	approve := achievement.Decision{Outcome: achievement.OutcomeApproved}

	tests := []struct {
		name  string
		actor identity.Principal
		id    string
		d     achievement.Decision
		check func(error) bool
	}{
		{"student", student, id, approve, shared.IsForbidden},
		{"admin", admin, id, approve, shared.IsForbidden},
		{"missing", teacher, "missing", approve, shared.IsNotFound},
		{"reject without feedback", teacher, id, achievement.Decision{Outcome: achievement.OutcomeRejected}, shared.IsValidation},
		{"feedback too long", teacher, id, achievement.Decision{
			Outcome:  achievement.OutcomeRejected,
			Feedback: strings.Repeat("y", achievement.MaxFeedbackLength+1),
		}, shared.IsValidation},
		{"score out of range", teacher, id, achievement.Decision{Outcome: achievement.OutcomeApproved, Score: intPtr(101)}, shared.IsValidation},
		{"score on reject", teacher, id, achievement.Decision{
			Outcome: achievement.OutcomeRejected, Feedback: "no", Score: intPtr(10),
		}, shared.IsValidation},
		{"unknown outcome", teacher, id, achievement.Decision{Outcome: achievement.Outcome("Maybe")}, shared.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handlers.Review.Handle(ctx, ReviewCommand{Actor: tt.actor, AchievementID: tt.id, Decision: tt.d})
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	assert.Equal(t, achievement.StatusPending, f.get(t, id).Status)
	decisions, err := f.store.Decisions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestReview_NotPending(t *testing.T) {
	f := newFixture(t)
	draft, err := f.handlers.CreateDraft.Handle(context.Background(), CreateDraftCommand{Actor: student, Content: content("t", "b")})
	require.NoError(t, err)

	_, err = f.handlers.Review.Handle(context.Background(), ReviewCommand{
		Actor:         teacher,
		AchievementID: draft.ID,
		Decision:      achievement.Decision{Outcome: achievement.OutcomeApproved},
	})
	assert.True(t, shared.IsInvalidState(err), "got %v", err)
}

func TestReview_SelfReviewForbidden(t *testing.T) {
	f := newFixture(t)
	published, err := f.handlers.Publish.Handle(context.Background(), PublishCommand{Actor: teacher, Content: content("Talk", "slides")})
	require.NoError(t, err)

	_, err = f.handlers.Review.Handle(context.Background(), ReviewCommand{
		Actor:         teacher,
		AchievementID: published.ID,
		Decision:      achievement.Decision{Outcome: achievement.OutcomeApproved},
	})
	assert.True(t, shared.IsForbidden(err), "got %v", err)
}

func TestReview_ConcurrentReviewersExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	id := f.pending(t, student)

	reviewers := []identity.Principal{teacher, teacher2, teacher, teacher2}
	errs := make([]error, len(reviewers))
	var wg sync.WaitGroup
	for i, r := range reviewers {
		wg.Add(1)
		go func(i int, r identity.Principal) {
			defer wg.Done()
			_, errs[i] = f.handlers.Review.Handle(context.Background(), ReviewCommand{
				Actor:         r,
				AchievementID: id,
				Decision:      achievement.Decision{Outcome: achievement.OutcomeApproved, Score: intPtr(70)},
			})
		}(i, r)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, shared.IsInvalidState(err), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	decisions, err := f.store.Decisions(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
	assert.Equal(t, decisions[0].ReviewerID, f.get(t, id).ReviewerID)
}

func TestReview_LedgerFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.pending(t, student)

	_, err := f.store.DB().Exec(`
		CREATE TRIGGER fail_decisions BEFORE INSERT ON review_decisions
		BEGIN SELECT RAISE(ABORT, 'ledger unavailable'); END;`)
	require.NoError(t, err)

	_, err = f.handlers.Review.Handle(context.Background(), ReviewCommand{
		Actor:         teacher,
		AchievementID: id,
		Decision:      achievement.Decision{Outcome: achievement.OutcomeApproved},
	})
	require.Error(t, err)
	assert.True(t, shared.IsStorageFailure(err), "got %v", err)

	stored := f.get(t, id)
	assert.Equal(t, achievement.StatusPending, stored.Status)
	assert.Empty(t, stored.ReviewerID)
}

func TestSubmit_LosesToEditCommittedAfterRead(t *testing.T) {
	hooked := &interleavedStore{}
	f := newFixtureWith(t, func(s *sqlite.Store) achievement.Store {
		hooked.Store = s
		return hooked
	})
	ctx := context.Background()

	draft, err := f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{Actor: student, Content: content("v1 title", "v1 body")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), draft.Achievement.Version)

	var editErr error
	hooked.afterGet = func() {
		_, editErr = f.handlers.UpdateContent.Handle(ctx, UpdateContentCommand{
			Actor:         student,
			AchievementID: draft.ID,
			Content:       content("v2 title", "v2 body ![shot](https://cdn.example.com/shot.png)"),
		})
	}
	_, err = f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: draft.ID})
	require.NoError(t, editErr)
	assert.True(t, shared.IsInvalidState(err), "got %v", err)

	stored := f.get(t, draft.ID)
	assert.Equal(t, achievement.StatusDraft, stored.Status)
	assert.Equal(t, "v2 title", stored.Title)
	assert.Len(t, stored.Attachments, 1)
	assert.Equal(t, int64(2), stored.Version)

	// Retried against the fresh row, the submit goes through with the edit.
	res, err := f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: draft.ID})
	require.NoError(t, err)
	assert.Equal(t, "v2 title", res.Achievement.Title)
	assert.Equal(t, int64(3), f.get(t, draft.ID).Version)
}

func TestUpdateContent_LosesAfterResubmitAndSecondRejection(t *testing.T) {
	hooked := &interleavedStore{}
	f := newFixtureWith(t, func(s *sqlite.Store) achievement.Store {
		hooked.Store = s
		return hooked
	})
	ctx := context.Background()
	reject := func(id, feedback string) error {
		_, err := f.handlers.Review.Handle(ctx, ReviewCommand{
			Actor:         teacher,
			AchievementID: id,
			Decision:      achievement.Decision{Outcome: achievement.OutcomeRejected, Feedback: feedback},
		})
		return err
	}

	id := f.pending(t, student)
	require.NoError(t, reject(id, "first round"))

	// The edit reads the Rejected row; meanwhile it is resubmitted and
	// rejected again on the old content.
	var raceErr error
	hooked.afterGet = func() {
		if _, raceErr = f.handlers.Submit.Handle(ctx, SubmitCommand{Actor: student, AchievementID: id}); raceErr != nil {
			return
		}
		raceErr = reject(id, "second round")
	}
	_, err := f.handlers.UpdateContent.Handle(ctx, UpdateContentCommand{
		Actor:         student,
		AchievementID: id,
		Content:       content("Rewritten", "new body"),
	})
	require.NoError(t, raceErr)
	assert.True(t, shared.IsInvalidState(err), "got %v", err)

	stored := f.get(t, id)
	assert.Equal(t, achievement.StatusRejected, stored.Status)
	assert.Equal(t, "Compiler", stored.Title)

	decisions, err := f.store.Decisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "second round", decisions[0].Feedback)
}

func TestDelete_LosesToEditCommittedAfterRead(t *testing.T) {
	hooked := &interleavedStore{}
	f := newFixtureWith(t, func(s *sqlite.Store) achievement.Store {
		hooked.Store = s
		return hooked
	})
	ctx := context.Background()

	draft, err := f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{Actor: student, Content: content("Keep me", "")})
	require.NoError(t, err)

	hooked.afterGet = func() {
		_, err := f.handlers.UpdateContent.Handle(ctx, UpdateContentCommand{
			Actor:         student,
			AchievementID: draft.ID,
			Content:       content("Keep me", "now with a body"),
		})
		require.NoError(t, err)
	}
	err = f.handlers.Delete.Handle(ctx, DeleteCommand{Actor: student, AchievementID: draft.ID})
	assert.True(t, shared.IsInvalidState(err), "got %v", err)
	assert.Equal(t, "now with a body", f.get(t, draft.ID).Body)
}

// ─────────────────────────────────────────────────────────────────────────────
// Publish and delete
// ─────────────────────────────────────────────────────────────────────────────

func TestPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.Publish.Handle(ctx, PublishCommand{Actor: student, Content: content("t", "b")})
	assert.True(t, shared.IsForbidden(err), "got %v", err)

	_, err = f.handlers.Publish.Handle(ctx, PublishCommand{Actor: admin, Content: content("t", "b")})
	assert.True(t, shared.IsForbidden(err), "got %v", err)

	_, err = f.handlers.Publish.Handle(ctx, PublishCommand{Actor: teacher, Content: content("t", "")})
	assert.True(t, shared.IsValidation(err), "got %v", err)

	res, err := f.handlers.Publish.Handle(ctx, PublishCommand{Actor: teacher, Content: content("Workshop", "notes")})
	require.NoError(t, err)
	assert.Equal(t, achievement.StatusApproved, res.Status)

	stored := f.get(t, res.ID)
	assert.Equal(t, teacher.ID, stored.ReviewerID)
	assert.Equal(t, teacher.ID, stored.OwnerID)

	decisions, err := f.store.Decisions(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Synthetic)
	assert.Equal(t, achievement.OutcomeApproved, decisions[0].Outcome)

	err = f.handlers.Delete.Handle(ctx, DeleteCommand{Actor: teacher, AchievementID: res.ID})
	assert.True(t, shared.IsInvalidState(err), "got %v", err)
	err = f.handlers.Delete.Handle(ctx, DeleteCommand{Actor: admin, AchievementID: res.ID})
	assert.True(t, shared.IsInvalidState(err), "got %v", err)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.handlers.CreateDraft.Handle(ctx, CreateDraftCommand{
		Actor:   student,
		Content: content("Demo", `<img src="https://cdn.example.com/a.png"> and ![b](https://cdn.example.com/b.png)`),
	})
	require.NoError(t, err)
	assert.Len(t, draft.Achievement.Attachments, 2)

	err = f.handlers.Delete.Handle(ctx, DeleteCommand{Actor: stranger, AchievementID: draft.ID})
	assert.True(t, shared.IsNotFound(err), "got %v", err)

	require.NoError(t, f.handlers.Delete.Handle(ctx, DeleteCommand{Actor: student, AchievementID: draft.ID}))
	_, err = f.store.Get(ctx, draft.ID)
	assert.True(t, shared.IsNotFound(err))

	// Admin removes a rejected item together with its decision.
	id := f.pending(t, student)
	_, err = f.handlers.Review.Handle(ctx, ReviewCommand{
		Actor:         teacher,
		AchievementID: id,
		Decision:      achievement.Decision{Outcome: achievement.OutcomeRejected, Feedback: "off topic"},
	})
	require.NoError(t, err)
	require.NoError(t, f.handlers.Delete.Handle(ctx, DeleteCommand{Actor: admin, AchievementID: id}))

	decisions, err := f.store.Decisions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, decisions)

	err = f.handlers.Delete.Handle(ctx, DeleteCommand{Actor: admin, AchievementID: id})
	assert.True(t, shared.IsNotFound(err), "got %v", err)
}

func TestHandlers_RecordSpans(t *testing.T) {
	f := newFixture(t)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	handlers := NewHandlers(Dependencies{
		Store:  f.store,
		Logger: logger.Nop(),
		Tracer: tp.Tracer(TracerName),
	})
	ctx := context.Background()

	res, err := handlers.SubmitNew.Handle(ctx, SubmitNewCommand{Actor: student, Content: content("Traced", "body")})
	require.NoError(t, err)
	_, err = handlers.Withdraw.Handle(ctx, WithdrawCommand{Actor: stranger, AchievementID: res.ID})
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "achievement.SubmitNew", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "achievement.Withdraw", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
