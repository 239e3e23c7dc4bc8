package query

import (
	"context"

	"github.com/alem-hub/achievement-hub/internal/domain/achievement"
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PENDING QUEUE QUERY
// Oldest submission first, so the queue is worked in arrival order.
// ══════════════════════════════════════════════════════════════════════════════

// PendingQueueQuery selects one page of the review queue.
type PendingQueueQuery struct {
	Actor    identity.Principal
	Page     int
	PageSize int
}

// PendingQueueHandler handles PendingQueueQuery.
type PendingQueueHandler struct {
	*reader
}

// Handle returns the page.
func (h *PendingQueueHandler) Handle(ctx context.Context, q PendingQueueQuery) (shared.Page[Item], error) {
	if err := achievement.AuthorizeReviewViews("PendingQueue", q.Actor); err != nil {
		return shared.Page[Item]{}, err
	}
	page, err := shared.NewPageRequest(q.Page, q.PageSize)
	if err != nil {
		return shared.Page[Item]{}, err
	}

	list, total, err := h.store.List(ctx, achievement.ListFilter{
		Statuses: []achievement.Status{achievement.StatusPending},
		Order:    achievement.OrderSubmittedAsc,
	}, page)
	if err != nil {
		return shared.Page[Item]{}, h.storageError("PendingQueue", err)
	}
	return shared.NewPage(h.withDecisions("PendingQueue", list, nil), total, page), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY QUERY
// Decided achievements, most recently decided first.
// ══════════════════════════════════════════════════════════════════════════════

// HistoryQuery selects one page of decided achievements.
type HistoryQuery struct {
	Actor    identity.Principal
	Page     int
	PageSize int

	// Outcome restricts the history to one outcome when set.
	Outcome achievement.Outcome
}

// HistoryHandler handles HistoryQuery.
type HistoryHandler struct {
	*reader
}

// Handle returns the page, each item annotated with its latest decision.
func (h *HistoryHandler) Handle(ctx context.Context, q HistoryQuery) (shared.Page[Item], error) {
	if err := achievement.AuthorizeReviewViews("History", q.Actor); err != nil {
		return shared.Page[Item]{}, err
	}
	page, err := shared.NewPageRequest(q.Page, q.PageSize)
	if err != nil {
		return shared.Page[Item]{}, err
	}

	statuses := []achievement.Status{achievement.StatusApproved, achievement.StatusRejected}
	if q.Outcome != "" {
		if !q.Outcome.IsValid() {
			return shared.Page[Item]{}, shared.Validation("query", "History",
				"outcome must be Approved or Rejected, got %q", q.Outcome)
		}
		// The latest decision always matches the status of a decided item.
		statuses = []achievement.Status{q.Outcome.Status()}
	}

	list, total, err := h.store.List(ctx, achievement.ListFilter{
		Statuses: statuses,
		Order:    achievement.OrderDecidedDesc,
	}, page)
	if err != nil {
		return shared.Page[Item]{}, h.storageError("History", err)
	}
	latest, err := h.store.LatestDecisions(ctx, decidedIDs(list))
	if err != nil {
		return shared.Page[Item]{}, h.storageError("History", err)
	}
	return shared.NewPage(h.withDecisions("History", list, latest), total, page), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COUNTS QUERY
// Served from the cache when one is configured and warm.
// ══════════════════════════════════════════════════════════════════════════════

// CountsQuery requests the per-status totals.
type CountsQuery struct {
	Actor identity.Principal
}

// CountsHandler handles CountsQuery.
type CountsHandler struct {
	*reader
	cache achievement.CountsCache
}

// Handle returns the totals.
func (h *CountsHandler) Handle(ctx context.Context, q CountsQuery) (achievement.StatusCounts, error) {
	if err := achievement.AuthorizeReviewViews("Counts", q.Actor); err != nil {
		return achievement.StatusCounts{}, err
	}

	// The generation is read before counting, so an invalidation that lands
	// while the store is read makes the write-back a no-op.
	var (
		generation int64
		cacheable  bool
	)
	if h.cache != nil {
		counts, gen, ok, err := h.cache.GetCounts(ctx)
		switch {
		case err != nil:
			h.log.Warn("counts cache read failed", logger.Err(err))
		case ok:
			return counts, nil
		default:
			generation, cacheable = gen, true
		}
	}

	byStatus, err := h.store.CountByStatus(ctx)
	if err != nil {
		return achievement.StatusCounts{}, h.storageError("Counts", err)
	}
	counts := achievement.NewStatusCounts(byStatus)

	if cacheable {
		stored, err := h.cache.SetCounts(ctx, generation, counts)
		if err != nil {
			h.log.Warn("counts cache write failed", logger.Err(err))
		} else if !stored {
			h.log.Debug("counts cache invalidated during recompute, not storing")
		}
	}
	return counts, nil
}
