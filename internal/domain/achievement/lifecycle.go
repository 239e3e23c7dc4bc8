package achievement

import (
	"fmt"
	"time"

	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════
//
//	Draft ──Submit──► Pending ──Review(Approved)──► Approved
//	  ▲                 │  │
//	  └────Withdraw─────┘  └──Review(Rejected)──► Rejected ──Submit──► Pending
//
//	Publish creates Approved directly. Delete is legal from everything but Approved.

// Decision is the reviewer's input to Review.
type Decision struct {
	Outcome  Outcome
	Feedback string
	Score    *int
}

// Normalize returns a copy with normalised feedback.
func (d Decision) Normalize() Decision {
	d.Feedback = NormalizeText(d.Feedback)
	return d
}

// Validate checks the decision payload. It expects normalised feedback.
func (d Decision) Validate() error {
	if !d.Outcome.IsValid() {
		return shared.Validation("achievement", "Review", "outcome must be Approved or Rejected, got %q", d.Outcome)
	}
	if n := TextLength(d.Feedback); n > MaxFeedbackLength {
		return shared.Validation("achievement", "Review", "feedback is %d characters, limit is %d", n, MaxFeedbackLength)
	}
	switch d.Outcome {
	case OutcomeRejected:
		if d.Feedback == "" {
			return shared.Validation("achievement", "Review", "feedback is required when rejecting")
		}
		if d.Score != nil {
			return shared.Validation("achievement", "Review", "score is only allowed when approving")
		}
	case OutcomeApproved:
		if d.Score != nil && (*d.Score < 0 || *d.Score > 100) {
			return shared.Validation("achievement", "Review", "score must be between 0 and 100, got %d", *d.Score)
		}
	}
	return nil
}

// NewDraft creates a Draft owned by ownerID from normalised content.
func NewDraft(id, ownerID string, content Content, now time.Time, newID func() string) (*Achievement, error) {
	if err := content.Validate("CreateDraft"); err != nil {
		return nil, err
	}
	return &Achievement{
		ID:          id,
		OwnerID:     ownerID,
		Title:       content.Title,
		Body:        content.Body,
		Type:        content.Type,
		Status:      StatusDraft,
		Attachments: content.Attachments(id, newID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewPublished creates an Approved achievement authored and approved by
// publisherID, together with its synthetic audit decision.
func NewPublished(id, decisionID, publisherID string, content Content, now time.Time, newID func() string) (*Achievement, *ReviewDecision, error) {
	if err := content.Validate("Publish"); err != nil {
		return nil, nil, err
	}
	if err := checkSubmittable("Publish", content.Title, content.Body, len(content.AllMedia()) > 0); err != nil {
		return nil, nil, err
	}
	submitted := now
	a := &Achievement{
		ID:          id,
		OwnerID:     publisherID,
		Title:       content.Title,
		Body:        content.Body,
		Type:        content.Type,
		Status:      StatusApproved,
		ReviewerID:  publisherID,
		Attachments: content.Attachments(id, newID),
		CreatedAt:   now,
		UpdatedAt:   now,
		SubmittedAt: &submitted,
	}
	d := &ReviewDecision{
		ID:            decisionID,
		AchievementID: id,
		ReviewerID:    publisherID,
		Outcome:       OutcomeApproved,
		DecidedAt:     now,
		Synthetic:     true,
	}
	return a, d, nil
}

// UpdateContent replaces the owner's content. Legal in Draft and Rejected.
func (a *Achievement) UpdateContent(content Content, now time.Time, newID func() string) error {
	if a.Status != StatusDraft && a.Status != StatusRejected {
		return invalidState("UpdateContent", a.Status)
	}
	if err := content.Validate("UpdateContent"); err != nil {
		return err
	}
	a.Title = content.Title
	a.Body = content.Body
	a.Type = content.Type
	a.Attachments = content.Attachments(a.ID, newID)
	a.UpdatedAt = now
	return nil
}

// Submit moves a Draft or Rejected achievement into the review queue.
func (a *Achievement) Submit(now time.Time) error {
	if a.Status != StatusDraft && a.Status != StatusRejected {
		return invalidState("Submit", a.Status)
	}
	if err := checkSubmittable("Submit", a.Title, a.Body, a.HasMedia()); err != nil {
		return err
	}
	a.Status = StatusPending
	a.ReviewerID = ""
	a.Score = nil
	a.SubmittedAt = &now
	a.UpdatedAt = now
	return nil
}

// Withdraw returns a Pending achievement to Draft.
func (a *Achievement) Withdraw(now time.Time) error {
	if a.Status != StatusPending {
		return invalidState("Withdraw", a.Status)
	}
	a.Status = StatusDraft
	a.SubmittedAt = nil
	a.UpdatedAt = now
	return nil
}

// Review records reviewerID's decision on a Pending achievement and returns
// the ledger entry to append. The decision must already be validated.
func (a *Achievement) Review(decisionID, reviewerID string, d Decision, now time.Time) (*ReviewDecision, error) {
	if a.Status != StatusPending {
		return nil, invalidState("Review", a.Status)
	}
	a.Status = d.Outcome.Status()
	a.ReviewerID = reviewerID
	a.Score = nil
	if d.Outcome == OutcomeApproved && d.Score != nil {
		s := *d.Score
		a.Score = &s
	}
	a.UpdatedAt = now
	return &ReviewDecision{
		ID:            decisionID,
		AchievementID: a.ID,
		ReviewerID:    reviewerID,
		Outcome:       d.Outcome,
		Feedback:      d.Feedback,
		Score:         a.Score,
		DecidedAt:     now,
	}, nil
}

// CheckDeletable fails for Approved achievements.
func (a *Achievement) CheckDeletable() error {
	if a.Status == StatusApproved {
		return shared.NewDomainError("achievement", "Delete", shared.ErrInvalidState,
			"approved achievements are immutable history")
	}
	return nil
}

func checkSubmittable(op, title, body string, hasMedia bool) error {
	if title == "" {
		return shared.Validation("achievement", op, "title is required")
	}
	if body == "" && !hasMedia {
		return shared.Validation("achievement", op, "body or at least one media reference is required")
	}
	return nil
}

func invalidState(op string, from Status) error {
	return shared.NewDomainError("achievement", op, shared.ErrInvalidState,
		fmt.Sprintf("%s is not allowed from status %s", op, from))
}
