package command

import (
	"context"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW COMMAND
// A teacher approves or rejects a Pending achievement. The decision and the
// status change are written in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// ReviewCommand contains the reviewer's decision.
type ReviewCommand struct {
	Actor         identity.Principal
	AchievementID string
	Decision      achievement.Decision
}

// ReviewHandler handles ReviewCommand.
type ReviewHandler struct {
	*engine
}

// Handle records the decision.
func (h *ReviewHandler) Handle(ctx context.Context, cmd ReviewCommand) (result *Result, err error) {
	ctx, span := h.start(ctx, "Review", cmd.Actor, cmd.AchievementID)
	defer func() { h.finish(span, err) }()

	if err := achievement.AuthorizeReview(cmd.Actor, nil); err != nil {
		return nil, err
	}
	current, err := h.load(ctx, "Review", cmd.AchievementID)
	if err != nil {
		return nil, err
	}
	if err := achievement.AuthorizeReview(cmd.Actor, current); err != nil {
		return nil, err
	}

	now := h.clock()
	decision := cmd.Decision.Normalize()
	next := current.Clone()
	// Status first, payload second.
	recorded, err := next.Review(h.newID(), cmd.Actor.ID, decision, now)
	if err != nil {
		return nil, err
	}
	if err := decision.Validate(); err != nil {
		return nil, err
	}

	change := achievement.Guard(achievement.ChangeUpdate, current, next)
	change.Decision = recorded
	event := h.event(shared.EventAchievementReviewed, next, cmd.Actor, current.Status, now).
		WithDecision(recorded.ID, recorded.Outcome.String())
	if err := h.apply(ctx, "Review", change, event); err != nil {
		return nil, err
	}
	return resultOf(next), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH COMMAND
// A teacher creates an Approved achievement directly. A synthetic Approved
// decision is appended so the ledger stays complete.
// ══════════════════════════════════════════════════════════════════════════════

// PublishCommand contains the content to publish.
type PublishCommand struct {
	Actor   identity.Principal
	Content achievement.Content
}

// PublishHandler handles PublishCommand.
type PublishHandler struct {
	*engine
}

// Handle publishes the achievement.
func (h *PublishHandler) Handle(ctx context.Context, cmd PublishCommand) (result *Result, err error) {
	ctx, span := h.start(ctx, "Publish", cmd.Actor, "")
	defer func() { h.finish(span, err) }()

	if err := achievement.AuthorizePublish(cmd.Actor); err != nil {
		return nil, err
	}

	now := h.clock()
	a, decision, err := achievement.NewPublished(h.newID(), h.newID(), cmd.Actor.ID, cmd.Content.Normalize(), now, h.newID)
	if err != nil {
		return nil, err
	}

	change := achievement.Change{
		Kind:        achievement.ChangeInsert,
		Achievement: a,
		Decision:    decision,
	}
	event := h.event(shared.EventAchievementPublished, a, cmd.Actor, "", now).
		WithDecision(decision.ID, decision.Outcome.String())
	if err := h.apply(ctx, "Publish", change, event); err != nil {
		return nil, err
	}
	return resultOf(a), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE COMMAND
// Removes a non-approved achievement with its attachments and decisions.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteCommand identifies the achievement to delete.
type DeleteCommand struct {
	Actor         identity.Principal
	AchievementID string
}

// DeleteHandler handles DeleteCommand.
type DeleteHandler struct {
	*engine
}

// Handle deletes the achievement.
func (h *DeleteHandler) Handle(ctx context.Context, cmd DeleteCommand) (err error) {
	ctx, span := h.start(ctx, "Delete", cmd.Actor, cmd.AchievementID)
	defer func() { h.finish(span, err) }()

	current, err := h.load(ctx, "Delete", cmd.AchievementID)
	if err != nil {
		return err
	}
	if err := achievement.AuthorizeDelete(cmd.Actor, current); err != nil {
		return err
	}
	if err := current.CheckDeletable(); err != nil {
		return err
	}

	change := achievement.Guard(achievement.ChangeDelete, current, current)
	event := shared.NewAchievementTransitionedEvent(shared.EventAchievementDeleted,
		current.ID, current.OwnerID, cmd.Actor.ID, current.Status.String(), "", h.clock())
	return h.apply(ctx, "Delete", change, event)
}
