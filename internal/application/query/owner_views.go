package query

import (
	"context"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OWNER ACHIEVEMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// OwnerAchievementsQuery selects one page of the actor's own achievements.
type OwnerAchievementsQuery struct {
	Actor    identity.Principal
	Page     int
	PageSize int
}

// OwnerAchievementsHandler handles OwnerAchievementsQuery.
type OwnerAchievementsHandler struct {
	*reader
}

// Handle returns the actor's achievements, newest first. Draft and Pending
// items carry no decision, so a resubmission hides the earlier rejection.
func (h *OwnerAchievementsHandler) Handle(ctx context.Context, q OwnerAchievementsQuery) (shared.Page[Item], error) {
	page, err := shared.NewPageRequest(q.Page, q.PageSize)
	if err != nil {
		return shared.Page[Item]{}, err
	}

	list, total, err := h.store.List(ctx, achievement.ListFilter{
		OwnerID: q.Actor.ID,
		Order:   achievement.OrderCreatedDesc,
	}, page)
	if err != nil {
		return shared.Page[Item]{}, h.storageError("OwnerAchievements", err)
	}
	latest, err := h.store.LatestDecisions(ctx, decidedIDs(list))
	if err != nil {
		return shared.Page[Item]{}, h.storageError("OwnerAchievements", err)
	}
	return shared.NewPage(h.withDecisions("OwnerAchievements", list, latest), total, page), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DECISION HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DecisionHistoryQuery identifies the achievement whose ledger is read.
type DecisionHistoryQuery struct {
	Actor         identity.Principal
	AchievementID string
}

// DecisionHistoryHandler handles DecisionHistoryQuery.
type DecisionHistoryHandler struct {
	*reader
}

// Handle returns every decision, newest first.
func (h *DecisionHistoryHandler) Handle(ctx context.Context, q DecisionHistoryQuery) ([]achievement.ReviewDecision, error) {
	a, err := h.store.Get(ctx, q.AchievementID)
	if err != nil {
		return nil, h.storageError("DecisionHistory", err)
	}
	if err := achievement.AuthorizeReadDecisions(q.Actor, a); err != nil {
		return nil, err
	}

	decisions, err := h.store.Decisions(ctx, a.ID)
	if err != nil {
		return nil, h.storageError("DecisionHistory", err)
	}
	if decisions == nil {
		decisions = []achievement.ReviewDecision{}
	}
	return decisions, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS QUERY
// The owner's feed is derived from the review ledger.
// ══════════════════════════════════════════════════════════════════════════════

// NotificationsQuery selects one page of the actor's feed.
type NotificationsQuery struct {
	Actor    identity.Principal
	Page     int
	PageSize int
}

// NotificationsHandler handles NotificationsQuery.
type NotificationsHandler struct {
	*reader
}

// Handle returns decisions on the actor's achievements, newest first.
func (h *NotificationsHandler) Handle(ctx context.Context, q NotificationsQuery) (shared.Page[achievement.FeedEntry], error) {
	page, err := shared.NewPageRequest(q.Page, q.PageSize)
	if err != nil {
		return shared.Page[achievement.FeedEntry]{}, err
	}

	entries, total, err := h.store.OwnerFeed(ctx, q.Actor.ID, page)
	if err != nil {
		return shared.Page[achievement.FeedEntry]{}, h.storageError("Notifications", err)
	}
	return shared.NewPage(entries, total, page), nil
}
