package achievement

import "context"

// StatusCounts is the aggregate status distribution.
type StatusCounts struct {
	Total    int `json:"total"`
	Draft    int `json:"draft"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// NewStatusCounts folds a per-status map into StatusCounts.
func NewStatusCounts(byStatus map[Status]int) StatusCounts {
	c := StatusCounts{
		Draft:    byStatus[StatusDraft],
		Pending:  byStatus[StatusPending],
		Approved: byStatus[StatusApproved],
		Rejected: byStatus[StatusRejected],
	}
	c.Total = c.Draft + c.Pending + c.Approved + c.Rejected
	return c
}

// CountsCache holds the most recent StatusCounts behind a generation counter
// that every invalidation bumps.
type CountsCache interface {
	// GetCounts reports ok=false on a miss, together with the generation the
	// caller must pass to SetCounts. Read it before computing the counts.
	GetCounts(ctx context.Context) (counts StatusCounts, generation int64, ok bool, err error)

	// SetCounts stores counts only while the generation is still current.
	// It reports whether the value was stored.
	SetCounts(ctx context.Context, generation int64, counts StatusCounts) (bool, error)

	// InvalidateCounts bumps the generation and drops the cached value.
	InvalidateCounts(ctx context.Context) error
}
