// Package achievement contains the achievement aggregate, its review ledger
// entries and the lifecycle rules that move it between statuses.
// There are no infrastructure dependencies here.
package achievement

import (
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle status of an achievement.
type Status string

const (
	// StatusDraft - being prepared by its owner, invisible to reviewers.
	StatusDraft Status = "Draft"
	// StatusPending - waiting in the review queue.
	StatusPending Status = "Pending"
	// StatusApproved - accepted by a teacher; immutable history.
	StatusApproved Status = "Approved"
	// StatusRejected - declined by a teacher; may be edited and resubmitted.
	StatusRejected Status = "Rejected"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusRejected}

// IsValid checks that the status is one of the four known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsDecided returns true when a review decision is authoritative for the status.
func (s Status) IsDecided() bool {
	return s == StatusApproved || s == StatusRejected
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status name, case-insensitively. Unknown values fail.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("achievement: unknown status %q", s)
}

// Type classifies the submitted work.
type Type string

const (
	TypeProject       Type = "project"
	TypePaper         Type = "paper"
	TypeSoftware      Type = "software"
	TypeCompetition   Type = "competition"
	TypeCertification Type = "certification"
	TypeOther         Type = "other"
)

// IsValid checks that the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeProject, TypePaper, TypeSoftware, TypeCompetition, TypeCertification, TypeOther:
		return true
	default:
		return false
	}
}

// ParseType parses a type name, case-insensitively. Unknown values fail.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("achievement: unknown type %q", s)
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Achievement is a unit of student or teacher work subject to review.
type Achievement struct {
	// ID - internal identifier (UUID string).
	ID string

	// OwnerID - the submitting principal.
	OwnerID string

	Title string
	Body  string
	Type  Type

	// Status - current lifecycle status.
	Status Status

	// Score - set only while Approved, 0..100.
	Score *int

	// ReviewerID - set iff Status is Approved or Rejected.
	ReviewerID string

	// Attachments - derived from the owner's content.
	Attachments []Attachment

	CreatedAt time.Time
	UpdatedAt time.Time

	// SubmittedAt - time of the last submission; nil for drafts.
	SubmittedAt *time.Time

	// Version - write counter kept by the store, 1 after insert.
	Version int64
}

// Attachment is a media reference owned by an achievement.
type Attachment struct {
	ID            string
	AchievementID string
	URL           string
	Name          string
	Size          int64
}

// IsOwnedBy reports whether principalID owns the achievement.
func (a *Achievement) IsOwnedBy(principalID string) bool {
	return a.OwnerID == principalID
}

// HasMedia reports whether at least one attachment is present.
func (a *Achievement) HasMedia() bool {
	return len(a.Attachments) > 0
}

// Clone returns a deep copy so callers can mutate without aliasing store data.
func (a *Achievement) Clone() *Achievement {
	if a == nil {
		return nil
	}
	c := *a
	if a.Score != nil {
		s := *a.Score
		c.Score = &s
	}
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		c.SubmittedAt = &t
	}
	c.Attachments = append([]Attachment(nil), a.Attachments...)
	return &c
}

// CheckInvariants verifies the reviewer/score rules that hold for every
// stored achievement.
func (a *Achievement) CheckInvariants() error {
	if !a.Status.IsValid() {
		return fmt.Errorf("achievement %s: invalid status %q", a.ID, a.Status)
	}
	if a.Status.IsDecided() != (a.ReviewerID != "") {
		return fmt.Errorf("achievement %s: reviewer must be set iff status is decided (status=%s)", a.ID, a.Status)
	}
	if a.Score != nil && a.Status != StatusApproved {
		return fmt.Errorf("achievement %s: score set on %s achievement", a.ID, a.Status)
	}
	if a.Status == StatusPending && a.SubmittedAt == nil {
		return fmt.Errorf("achievement %s: pending without submission time", a.ID)
	}
	return nil
}
