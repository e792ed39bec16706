package domain

import "math"

// DefaultTopLimit is the number of rows returned by an unpaginated listing.
const DefaultTopLimit = 10

// PageRequest holds page-number pagination parameters. Both fields are
// 1-based and must be at least 1.
type PageRequest struct {
	Page  int
	Limit int
}

// Offset returns the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Validate checks that page and limit are positive and that the offset fits
// in an int.
func (p PageRequest) Validate() error {
	if p.Page < 1 {
		return ErrInvalidRange("page must be at least 1")
	}
	if p.Limit < 1 {
		return ErrInvalidRange("limit must be at least 1")
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return ErrInvalidRange("page %d with limit %d is out of range", p.Page, p.Limit)
	}
	return nil
}
