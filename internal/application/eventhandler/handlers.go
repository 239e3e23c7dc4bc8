// Package eventhandler reacts to committed lifecycle transitions. Handlers
// run after the transaction, so their failures never undo a transition.
package eventhandler

import (
	"context"
	"time"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// COUNTS INVALIDATION
// Every transition changes the status distribution.
// ═══════════════════════════════════════════════════════════════════════════

// CountsInvalidator drops the cached counts projection.
type CountsInvalidator struct {
	cache   achievement.CountsCache
	logger  *logger.Logger
	timeout time.Duration
}

// NewCountsInvalidator creates the handler.
func NewCountsInvalidator(cache achievement.CountsCache, log *logger.Logger) *CountsInvalidator {
	if log == nil {
		log = logger.Default()
	}
	return &CountsInvalidator{
		cache:   cache,
		logger:  log.With(logger.String("handler", "counts_invalidator")),
		timeout: 2 * time.Second,
	}
}

// Handle implements shared.EventHandler.
func (h *CountsInvalidator) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.InvalidateCounts(ctx); err != nil {
		h.logger.Warn("failed to invalidate counts cache",
			logger.String("event_type", string(event.EventType())),
			logger.AchievementID(event.AggregateID()),
			logger.Err(err),
		)
		return err
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// DECISION FEED
// Delivery is out of scope: the owner reads the feed through the query
// facade. This handler records each new feed entry in the log.
// ═══════════════════════════════════════════════════════════════════════════

// DecisionFeedLogger logs decisions that land in an owner's feed.
type DecisionFeedLogger struct {
	logger *logger.Logger
}

// NewDecisionFeedLogger creates the handler.
func NewDecisionFeedLogger(log *logger.Logger) *DecisionFeedLogger {
	if log == nil {
		log = logger.Default()
	}
	return &DecisionFeedLogger{logger: log.With(logger.String("handler", "decision_feed"))}
}

// Handle implements shared.EventHandler.
func (h *DecisionFeedLogger) Handle(event shared.Event) error {
	e, ok := event.(shared.AchievementTransitionedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}
	if e.EventType() != shared.EventAchievementReviewed {
		return nil
	}

	h.logger.Info("review decision added to owner feed",
		logger.AchievementID(e.AggregateID()),
		logger.String("owner_id", e.OwnerID),
		logger.ActorID(e.ActorID),
		logger.String("decision_id", e.DecisionID),
		logger.String("outcome", e.Outcome),
	)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ═══════════════════════════════════════════════════════════════════════════

// Register subscribes the handlers to bus. cache may be nil.
func Register(bus shared.EventSubscriber, cache achievement.CountsCache, log *logger.Logger) error {
	if cache != nil {
		if err := bus.SubscribeAll(NewCountsInvalidator(cache, log).Handle); err != nil {
			return err
		}
	}
	return bus.Subscribe(shared.EventAchievementReviewed, NewDecisionFeedLogger(log).Handle)
}
