// Package command contains the write side of the achievement lifecycle:
// one handler per transition, all sharing the same store, bus and clock.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

// TracerName identifies spans emitted by the lifecycle engine.
const TracerName = "github.com/alem-hub/achievement-hub/internal/application/command"

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies wires the lifecycle engine. Store is required; the rest default.
type Dependencies struct {
	Store  achievement.Store
	Events shared.EventPublisher
	Logger *logger.Logger
	Tracer trace.Tracer

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewID generates entity ids. Defaults to UUIDv4.
	NewID func() string
}

// Result is what every lifecycle command returns to the caller.
type Result struct {
	ID          string
	Status      achievement.Status
	Score       *int
	Achievement *achievement.Achievement
}

func resultOf(a *achievement.Achievement) *Result {
	return &Result{ID: a.ID, Status: a.Status, Score: a.Score, Achievement: a}
}

// engine holds what every handler needs.
type engine struct {
	store  achievement.Store
	events shared.EventPublisher
	log    *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

func newEngine(deps Dependencies) *engine {
	e := &engine{
		store:  deps.Store,
		events: deps.Events,
		log:    deps.Logger,
		tracer: deps.Tracer,
		now:    deps.Now,
		newID:  deps.NewID,
	}
	if e.log == nil {
		e.log = logger.Default()
	}
	e.log = e.log.With(logger.Component("lifecycle"))
	if e.tracer == nil {
		e.tracer = otel.Tracer(TracerName)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// clock returns the transition timestamp at the precision both stores keep.
func (e *engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared steps
// ─────────────────────────────────────────────────────────────────────────────

func (e *engine) start(ctx context.Context, op string, actor identity.Principal, achievementID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("achievement.operation", op),
		attribute.String("actor.role", actor.Role.String()),
	}
	if achievementID != "" {
		attrs = append(attrs, attribute.String("achievement.id", achievementID))
	}
	return e.tracer.Start(ctx, "achievement."+op, trace.WithAttributes(attrs...))
}

// finish records err on the span and ends it.
func (e *engine) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// load reads the achievement, keeping NotFound and wrapping anything else.
func (e *engine) load(ctx context.Context, op, id string) (*achievement.Achievement, error) {
	if id == "" {
		return nil, shared.Validation("achievement", op, "achievement id is required")
	}
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, e.storageError(op, id, err)
	}
	return a, nil
}

// apply writes change and publishes event once the transaction has committed.
func (e *engine) apply(ctx context.Context, op string, change achievement.Change, event shared.Event) error {
	if err := e.store.Apply(ctx, change); err != nil {
		return e.storageError(op, change.Achievement.ID, err)
	}
	change.Achievement.Version = change.NextVersion()

	e.log.Info("achievement transition committed",
		logger.Operation(op),
		logger.AchievementID(change.Achievement.ID),
		logger.Status(change.Achievement.Status.String()),
	)

	if e.events != nil && event != nil {
		if err := e.events.Publish(event); err != nil {
			e.log.Warn("failed to publish event",
				logger.Operation(op),
				logger.AchievementID(change.Achievement.ID),
				logger.Err(err),
			)
		}
	}
	return nil
}

// storageError passes typed store errors through and wraps the rest as StorageFailure.
func (e *engine) storageError(op, id string, err error) error {
	if shared.KindOf(err) != nil {
		return err
	}
	e.log.Error("achievement store failure",
		logger.Operation(op),
		logger.AchievementID(id),
		logger.Err(err),
	)
	return shared.WrapError("achievement", op, shared.ErrStorageFailure, "achievement store failed", err)
}

func (e *engine) event(eventType shared.EventType, a *achievement.Achievement, actor identity.Principal, from achievement.Status, at time.Time) shared.AchievementTransitionedEvent {
	return shared.NewAchievementTransitionedEvent(eventType, a.ID, a.OwnerID, actor.ID, from.String(), a.Status.String(), at)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Handlers groups every lifecycle command handler over one engine.
type Handlers struct {
	CreateDraft   *CreateDraftHandler
	UpdateContent *UpdateContentHandler
	Submit        *SubmitHandler
	SubmitNew     *SubmitNewHandler
	Withdraw      *WithdrawHandler
	Review        *ReviewHandler
	Publish       *PublishHandler
	Delete        *DeleteHandler
}

// NewHandlers builds all lifecycle handlers.
func NewHandlers(deps Dependencies) *Handlers {
	e := newEngine(deps)
	return &Handlers{
		CreateDraft:   &CreateDraftHandler{engine: e},
		UpdateContent: &UpdateContentHandler{engine: e},
		Submit:        &SubmitHandler{engine: e},
		SubmitNew:     &SubmitNewHandler{engine: e},
		Withdraw:      &WithdrawHandler{engine: e},
		Review:        &ReviewHandler{engine: e},
		Publish:       &PublishHandler{engine: e},
		Delete:        &DeleteHandler{engine: e},
	}
}
