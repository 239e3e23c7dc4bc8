// Package shared contains common domain types, errors and events that are
// used across all domain packages.
package shared

import "fmt"

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

// Pagination limits shared by every list projection.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest is a validated 1-based page selection.
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPageRequest validates page and pageSize. Zero values fall back to the
// defaults (page 1, DefaultPageSize); anything else out of range is rejected.
func NewPageRequest(page, pageSize int) (PageRequest, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		return PageRequest{}, Validation("query", "Paginate", "page must be >= 1, got %d", page)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return PageRequest{}, Validation("query", "Paginate",
			"pageSize must be between 1 and %d, got %d", MaxPageSize, pageSize)
	}
	return PageRequest{Page: page, PageSize: pageSize}, nil
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit returns the maximum number of rows to return.
func (p PageRequest) Limit() int {
	return p.PageSize
}

// String returns a compact representation for logs.
func (p PageRequest) String() string {
	return fmt.Sprintf("page=%d size=%d", p.Page, p.PageSize)
}

// Page is one slice of a projection together with its navigation metadata.
type Page[T any] struct {
	Items      []T  `json:"items"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPage assembles a Page from the items of req and the total row count.
func NewPage[T any](items []T, total int, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + req.PageSize - 1) / req.PageSize
	}
	return Page[T]{
		Items:      items,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    req.Page < totalPages,
		HasPrev:    req.Page > 1,
	}
}
