// Package fetch defines the boundary to the external listing scraper.
// The scraper itself (browser automation against the auction site) runs as a
// separate process; this package only names the contract its adapters fulfil.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heartmarshall/auctionwatch/internal/domain"
)

// ErrorCode classifies a fetch failure. All codes are recoverable:
// the caller retries on its next scheduled tick.
type ErrorCode string

const (
	// CodeNotFound — upstream has no listing for the reference.
	CodeNotFound ErrorCode = "not_found"
	// CodeTimeout — the fetch exceeded its deadline.
	CodeTimeout ErrorCode = "timeout"
	// CodeUpstream — upstream responded with an error or was unreachable.
	CodeUpstream ErrorCode = "upstream"
)

// Error is a typed fetch failure.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed fetch failure.
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the error code from a fetch failure chain.
// Context deadline errors map to CodeTimeout; anything else to CodeUpstream.
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUpstream
}

// IsNotFound reports whether the error chain carries CodeNotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// Summary is one entry of a listing page: enough to decide whether a
// reference is known, not enough to build a full event.
type Summary struct {
	Reference  string
	Title      string
	Category   string
	CurrentBid float64
	EndTime    time.Time
}

// Fetcher retrieves listing pages and full event details from upstream.
// Implementations hold no state between calls; timeouts come from the
// caller's context (short for price checks, long for full detail scrapes).
type Fetcher interface {
	// ListListings returns one page of listing summaries for a category.
	// Pages are 1-based; a page past the end returns an empty slice.
	ListListings(ctx context.Context, category string, page int) ([]Summary, error)

	// FetchDetail returns a full event snapshot for one reference.
	FetchDetail(ctx context.Context, reference string) (domain.Event, error)
}
