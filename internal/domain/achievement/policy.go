package achievement

import (
	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// Role gates for lifecycle actions. Ownership failures are reported as
// NotFound so callers cannot probe for other people's ids.

// AuthorizeCreate allows only students to author drafts. Teachers use Publish.
func AuthorizeCreate(p identity.Principal) error {
	if !p.IsStudent() {
		return shared.NewDomainError("achievement", "CreateDraft", shared.ErrForbidden,
			"only students create drafts; teachers publish directly")
	}
	return nil
}

// AuthorizeOwner checks that p owns a.
func AuthorizeOwner(op string, p identity.Principal, a *Achievement) error {
	if !a.IsOwnedBy(p.ID) {
		return shared.NewDomainError("achievement", op, shared.ErrNotFound, "achievement not found")
	}
	return nil
}

// AuthorizeReview requires a teacher who does not own a.
func AuthorizeReview(p identity.Principal, a *Achievement) error {
	if !p.IsTeacher() {
		return shared.NewDomainError("achievement", "Review", shared.ErrForbidden, "only teachers review achievements")
	}
	if a != nil && a.IsOwnedBy(p.ID) {
		return shared.NewDomainError("achievement", "Review", shared.ErrForbidden, "self-review is not permitted")
	}
	return nil
}

// AuthorizePublish requires a teacher.
func AuthorizePublish(p identity.Principal) error {
	if !p.IsTeacher() {
		return shared.NewDomainError("achievement", "Publish", shared.ErrForbidden, "only teachers publish achievements")
	}
	return nil
}

// AuthorizeDelete allows the owner or an admin.
func AuthorizeDelete(p identity.Principal, a *Achievement) error {
	if p.IsAdmin() || a.IsOwnedBy(p.ID) {
		return nil
	}
	return shared.NewDomainError("achievement", "Delete", shared.ErrNotFound, "achievement not found")
}

// AuthorizeReadDecisions allows the owner and the review roles.
func AuthorizeReadDecisions(p identity.Principal, a *Achievement) error {
	if p.CanReadReviewViews() || a.IsOwnedBy(p.ID) {
		return nil
	}
	return shared.NewDomainError("achievement", "Decisions", shared.ErrNotFound, "achievement not found")
}

// AuthorizeReviewViews gates the teacher-side projections.
func AuthorizeReviewViews(op string, p identity.Principal) error {
	if !p.CanReadReviewViews() {
		return shared.NewDomainError("query", op, shared.ErrForbidden, "only teachers and admins may read this view")
	}
	return nil
}
