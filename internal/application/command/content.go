package command

import (
	"context"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE DRAFT COMMAND
// Stores a new Draft owned by the acting student.
// ══════════════════════════════════════════════════════════════════════════════

// CreateDraftCommand contains the draft content.
type CreateDraftCommand struct {
	Actor   identity.Principal
	Content achievement.Content
}

// CreateDraftHandler handles CreateDraftCommand.
type CreateDraftHandler struct {
	*engine
}

// Handle creates the draft.
func (h *CreateDraftHandler) Handle(ctx context.Context, cmd CreateDraftCommand) (result *Result, err error) {
	ctx, span := h.start(ctx, "CreateDraft", cmd.Actor, "")
	defer func() { h.finish(span, err) }()

	if err := achievement.AuthorizeCreate(cmd.Actor); err != nil {
		return nil, err
	}

	now := h.clock()
	a, err := achievement.NewDraft(h.newID(), cmd.Actor.ID, cmd.Content.Normalize(), now, h.newID)
	if err != nil {
		return nil, err
	}

	change := achievement.Change{Kind: achievement.ChangeInsert, Achievement: a}
	event := h.event(shared.EventAchievementCreated, a, cmd.Actor, "", now)
	if err := h.apply(ctx, "CreateDraft", change, event); err != nil {
		return nil, err
	}
	return resultOf(a), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE CONTENT COMMAND
// Replaces title, body, type and attachments of a Draft or Rejected item.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateContentCommand contains the replacement content.
type UpdateContentCommand struct {
	Actor         identity.Principal
	AchievementID string
	Content       achievement.Content
}

// UpdateContentHandler handles UpdateContentCommand.
type UpdateContentHandler struct {
	*engine
}

// Handle rewrites the owner's content.
func (h *UpdateContentHandler) Handle(ctx context.Context, cmd UpdateContentCommand) (result *Result, err error) {
	ctx, span := h.start(ctx, "UpdateContent", cmd.Actor, cmd.AchievementID)
	defer func() { h.finish(span, err) }()

	current, err := h.load(ctx, "UpdateContent", cmd.AchievementID)
	if err != nil {
		return nil, err
	}
	if err := achievement.AuthorizeOwner("UpdateContent", cmd.Actor, current); err != nil {
		return nil, err
	}

	now := h.clock()
	next := current.Clone()
	if err := next.UpdateContent(cmd.Content.Normalize(), now, h.newID); err != nil {
		return nil, err
	}

	change := achievement.Guard(achievement.ChangeUpdate, current, next)
	change.ReplaceAttachments = true
	event := h.event(shared.EventAchievementUpdated, next, cmd.Actor, current.Status, now)
	if err := h.apply(ctx, "UpdateContent", change, event); err != nil {
		return nil, err
	}
	return resultOf(next), nil
}
