package command

import (
	"context"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT COMMAND
// Moves the owner's Draft or Rejected achievement into the review queue.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitCommand identifies the achievement to submit.
type SubmitCommand struct {
	Actor         identity.Principal
	AchievementID string
}

// SubmitHandler handles SubmitCommand.
type SubmitHandler struct {
	*engine
}

// Handle submits the achievement for review.
func (h *SubmitHandler) Handle(ctx context.Context, cmd SubmitCommand) (result *Result, err error) {
	ctx, span := h.start(ctx, "Submit", cmd.Actor, cmd.AchievementID)
	defer func() { h.finish(span, err) }()

	current, err := h.load(ctx, "Submit", cmd.AchievementID)
	if err != nil {
		return nil, err
	}
	if err := achievement.AuthorizeOwner("Submit", cmd.Actor, current); err != nil {
		return nil, err
	}

	now := h.clock()
	next := current.Clone()
	if err := next.Submit(now); err != nil {
		return nil, err
	}

	change := achievement.Guard(achievement.ChangeUpdate, current, next)
	event := h.event(shared.EventAchievementSubmitted, next, cmd.Actor, current.Status, now)
	if err := h.apply(ctx, "Submit", change, event); err != nil {
		return nil, err
	}
	return resultOf(next), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT NEW COMMAND
// Creates and submits in one transaction. Nothing is stored when the content
// does not satisfy the submission preconditions.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitNewCommand contains the content to create and submit.
type SubmitNewCommand struct {
	Actor   identity.Principal
	Content achievement.Content
}

// SubmitNewHandler handles SubmitNewCommand.
type SubmitNewHandler struct {
	*engine
}

// Handle creates a Pending achievement.
func (h *SubmitNewHandler) Handle(ctx context.Context, cmd SubmitNewCommand) (result *Result, err error) {
	ctx, span := h.start(ctx, "SubmitNew", cmd.Actor, "")
	defer func() { h.finish(span, err) }()

	if err := achievement.AuthorizeCreate(cmd.Actor); err != nil {
		return nil, err
	}

	now := h.clock()
	a, err := achievement.NewDraft(h.newID(), cmd.Actor.ID, cmd.Content.Normalize(), now, h.newID)
	if err != nil {
		return nil, err
	}
	if err := a.Submit(now); err != nil {
		return nil, err
	}

	change := achievement.Change{Kind: achievement.ChangeInsert, Achievement: a}
	event := h.event(shared.EventAchievementSubmitted, a, cmd.Actor, "", now)
	if err := h.apply(ctx, "SubmitNew", change, event); err != nil {
		return nil, err
	}
	return resultOf(a), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WITHDRAW COMMAND
// Returns a Pending achievement to Draft.
// ══════════════════════════════════════════════════════════════════════════════

// WithdrawCommand identifies the achievement to withdraw.
type WithdrawCommand struct {
	Actor         identity.Principal
	AchievementID string
}

// WithdrawHandler handles WithdrawCommand.
type WithdrawHandler struct {
	*engine
}

// Handle withdraws the submission.
func (h *WithdrawHandler) Handle(ctx context.Context, cmd WithdrawCommand) (result *Result, err error) {
	ctx, span := h.start(ctx, "Withdraw", cmd.Actor, cmd.AchievementID)
	defer func() { h.finish(span, err) }()

	current, err := h.load(ctx, "Withdraw", cmd.AchievementID)
	if err != nil {
		return nil, err
	}
	if err := achievement.AuthorizeOwner("Withdraw", cmd.Actor, current); err != nil {
		return nil, err
	}

	now := h.clock()
	next := current.Clone()
	if err := next.Withdraw(now); err != nil {
		return nil, err
	}

	change := achievement.Guard(achievement.ChangeUpdate, current, next)
	event := h.event(shared.EventAchievementWithdrawn, next, cmd.Actor, current.Status, now)
	if err := h.apply(ctx, "Withdraw", change, event); err != nil {
		return nil, err
	}
	return resultOf(next), nil
}
