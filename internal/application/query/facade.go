// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read committed projections.
package query

import (
	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUERY FACADE
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies wires the query handlers. Cache is optional.
type Dependencies struct {
	Store  achievement.Store
	Cache  achievement.CountsCache
	Logger *logger.Logger
}

// Item is an achievement together with the decision a caller should see:
// the latest one while the achievement is Approved or Rejected, nil otherwise.
type Item struct {
	Achievement *achievement.Achievement
	Decision    *achievement.ReviewDecision
}

// Handlers groups every projection.
type Handlers struct {
	PendingQueue  *PendingQueueHandler
	History       *HistoryHandler
	Mine          *OwnerAchievementsHandler
	Decisions     *DecisionHistoryHandler
	Counts        *CountsHandler
	Notifications *NotificationsHandler
}

// NewHandlers builds all query handlers.
func NewHandlers(deps Dependencies) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	r := &reader{store: deps.Store, log: deps.Logger.With(logger.Component("query"))}
	return &Handlers{
		PendingQueue:  &PendingQueueHandler{reader: r},
		History:       &HistoryHandler{reader: r},
		Mine:          &OwnerAchievementsHandler{reader: r},
		Decisions:     &DecisionHistoryHandler{reader: r},
		Counts:        &CountsHandler{reader: r, cache: deps.Cache},
		Notifications: &NotificationsHandler{reader: r},
	}
}

// reader holds the shared read path.
type reader struct {
	store achievement.Store
	log   *logger.Logger
}

// storageError passes typed errors through and wraps the rest as StorageFailure.
func (r *reader) storageError(op string, err error) error {
	if shared.KindOf(err) != nil {
		return err
	}
	r.log.Error("achievement store read failed", logger.Operation(op), logger.Err(err))
	return shared.WrapError("query", op, shared.ErrStorageFailure, "achievement store failed", err)
}

// withDecisions annotates decided achievements with their latest decision.
func (r *reader) withDecisions(op string, list []*achievement.Achievement, latest map[string]achievement.ReviewDecision) []Item {
	items := make([]Item, 0, len(list))
	for _, a := range list {
		item := Item{Achievement: a}
		if a.Status.IsDecided() {
			if d, ok := latest[a.ID]; ok {
				item.Decision = &d
			} else {
				r.log.Warn("decided achievement without decision",
					logger.Operation(op), logger.AchievementID(a.ID), logger.Status(a.Status.String()))
			}
		}
		items = append(items, item)
	}
	return items
}

func decidedIDs(items []*achievement.Achievement) []string {
	var ids []string
	for _, a := range items {
		if a.Status.IsDecided() {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
