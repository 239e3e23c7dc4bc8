package achievement

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the verdict of a review decision.
type Outcome string

const (
	OutcomeApproved Outcome = "Approved"
	OutcomeRejected Outcome = "Rejected"
)

// IsValid checks that the outcome is known.
func (o Outcome) IsValid() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// Status returns the achievement status the outcome leads to.
func (o Outcome) Status() Status {
	if o == OutcomeApproved {
		return StatusApproved
	}
	return StatusRejected
}

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// ParseOutcome parses an outcome name, case-insensitively. Unknown values fail.
func ParseOutcome(s string) (Outcome, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(s), string(OutcomeApproved)):
		return OutcomeApproved, nil
	case strings.EqualFold(strings.TrimSpace(s), string(OutcomeRejected)):
		return OutcomeRejected, nil
	default:
		return "", fmt.Errorf("achievement: unknown outcome %q", s)
	}
}

// ReviewDecision is an immutable entry of the review ledger.
type ReviewDecision struct {
	ID            string
	AchievementID string
	ReviewerID    string
	Outcome       Outcome
	Feedback      string
	Score         *int
	DecidedAt     time.Time

	// Synthetic marks the audit entry written by a direct publish.
	Synthetic bool
}

// FeedEntry is a ledger entry projected into an owner's notification feed.
type FeedEntry struct {
	Decision         ReviewDecision
	AchievementTitle string
}
