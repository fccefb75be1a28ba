package feed

import (
	"fmt"
	"strconv"
)

// ErrInvalidArgument is returned for malformed pagination input.
var ErrInvalidArgument = fmt.Errorf("invalid argument")

// PaginationRequest is the resolved page window for a list call. It is
// passed by value; assemblers never share a mutable request.
type PaginationRequest struct {
	Limit int
	Page  int
}

// PaginationResult is one page of views. Total counts all matching rows
// regardless of the page, MoreAvailable tells whether the next page has at
// least one row.
type PaginationResult[T any] struct {
	Limit         int  `json:"limit"`
	Page          int  `json:"page"`
	Total         int  `json:"total"`
	MoreAvailable bool `json:"moreAvailable"`
	Results       []T  `json:"results"`
}

// DerivePagination resolves untrusted limit/page inputs. A missing or
// non-numeric limit falls back to defaultLimit, a missing, non-numeric or
// negative page falls back to 0. A negative limit is an error, a limit
// above maxLimit is silently clamped. The page is not bounded: an
// out-of-range page yields an empty result with the true total.
func DerivePagination(rawLimit, rawPage string, defaultLimit, maxLimit int) (PaginationRequest, error) {
	limit := defaultLimit
	if v, err := strconv.Atoi(rawLimit); err == nil {
		limit = v
	}

	page := 0
	if v, err := strconv.Atoi(rawPage); err == nil && v > 0 {
		page = v
	}

	if limit < 0 {
		return PaginationRequest{}, fmt.Errorf("%w: limit cannot be negative", ErrInvalidArgument)
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	return PaginationRequest{
		Limit: limit,
		Page:  page,
	}, nil
}
