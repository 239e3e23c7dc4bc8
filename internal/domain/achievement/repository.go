package achievement

import (
	"context"
	"fmt"

	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE CONTRACT
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrAchievementNotFound is returned by reads for an unknown id.
	ErrAchievementNotFound = shared.NewDomainError("achievement", "Get", shared.ErrNotFound, "achievement not found")

	// ErrWriteConflict is returned by Apply when the row no longer carries
	// the expected version and status: another writer got there first.
	ErrWriteConflict = shared.NewDomainError("achievement", "Apply", shared.ErrInvalidState,
		"achievement changed concurrently")
)

// ChangeKind tells the store which write a Change performs.
type ChangeKind int

const (
	// ChangeInsert creates the achievement, its attachments and the optional decision.
	ChangeInsert ChangeKind = iota + 1
	// ChangeUpdate rewrites the achievement row guarded by ExpectedVersion.
	ChangeUpdate
	// ChangeDelete removes the achievement, its attachments and its decisions.
	ChangeDelete
)

// String returns the kind name for logs.
func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is one lifecycle write, applied by the store as a single
// transaction. Either every part commits or none does.
type Change struct {
	Kind ChangeKind

	// Achievement is the new state (Insert/Update) or the target (Delete).
	Achievement *Achievement

	// ExpectedVersion and ExpectedStatus guard Update and Delete: the row
	// must still carry both. Every committed write bumps the version.
	ExpectedVersion int64
	ExpectedStatus  Status

	// ReplaceAttachments rewrites the attachment set on Update.
	ReplaceAttachments bool

	// Decision, when set, is appended to the ledger in the same transaction.
	Decision *ReviewDecision
}

// Validate checks that the change is well formed before it reaches storage.
func (c Change) Validate() error {
	if c.Achievement == nil || c.Achievement.ID == "" {
		return fmt.Errorf("achievement change: missing achievement")
	}
	switch c.Kind {
	case ChangeInsert:
	case ChangeUpdate, ChangeDelete:
		if !c.ExpectedStatus.IsValid() {
			return fmt.Errorf("achievement change: %s requires an expected status", c.Kind)
		}
		if c.ExpectedVersion < 1 {
			return fmt.Errorf("achievement change: %s requires an expected version", c.Kind)
		}
	default:
		return fmt.Errorf("achievement change: unknown kind %s", c.Kind)
	}
	if c.Kind != ChangeDelete {
		if err := c.Achievement.CheckInvariants(); err != nil {
			return err
		}
	}
	if c.Decision != nil && c.Decision.AchievementID != c.Achievement.ID {
		return fmt.Errorf("achievement change: decision belongs to %s, not %s",
			c.Decision.AchievementID, c.Achievement.ID)
	}
	return nil
}

// NextVersion is the version the row carries once the change commits.
func (c Change) NextVersion() int64 {
	if c.Kind == ChangeInsert {
		return 1
	}
	return c.ExpectedVersion + 1
}

// Guard returns an Update or Delete of next, compare-and-set against the
// snapshot current it was derived from.
func Guard(kind ChangeKind, current, next *Achievement) Change {
	return Change{
		Kind:            kind,
		Achievement:     next,
		ExpectedVersion: current.Version,
		ExpectedStatus:  current.Status,
	}
}

// ListOrder selects the ordering of List.
type ListOrder int

const (
	// OrderSubmittedAsc - oldest submission first, ties by id.
	OrderSubmittedAsc ListOrder = iota
	// OrderDecidedDesc - most recently decided first, ties by id.
	OrderDecidedDesc
	// OrderCreatedDesc - newest first, ties by id.
	OrderCreatedDesc
)

// ListFilter selects achievements for a projection.
type ListFilter struct {
	// OwnerID restricts to one owner when non-empty.
	OwnerID string

	// Statuses restricts to the given statuses when non-empty.
	Statuses []Status

	Order ListOrder
}

// Store persists achievements, attachments and the review ledger.
type Store interface {
	// Apply executes a Change atomically.
	// Returns ErrWriteConflict when the version or status guard does not match and
	// ErrAchievementNotFound when the row is gone.
	Apply(ctx context.Context, change Change) error

	// Get returns the achievement with its attachments.
	// Returns ErrAchievementNotFound if absent.
	Get(ctx context.Context, id string) (*Achievement, error)

	// List returns one page of achievements matching filter and the total count.
	List(ctx context.Context, filter ListFilter, page shared.PageRequest) ([]*Achievement, int, error)

	// Decisions returns every decision for the achievement, newest first.
	Decisions(ctx context.Context, achievementID string) ([]ReviewDecision, error)

	// LatestDecisions returns the newest decision per achievement id.
	LatestDecisions(ctx context.Context, achievementIDs []string) (map[string]ReviewDecision, error)

	// OwnerFeed returns decisions on ownerID's achievements, newest first.
	OwnerFeed(ctx context.Context, ownerID string, page shared.PageRequest) ([]FeedEntry, int, error)

	// CountByStatus returns the number of achievements per status.
	CountByStatus(ctx context.Context) (map[Status]int, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error
}
