package reconcile

import (
	"context"
	"errors"
)

var (
	// ErrNilPage is recorded as a page error when a NextPageFunc returns nil.
	ErrNilPage = errors.New("page source returned no result")

	// ErrCursorRegression is recorded as a page error when a page's
	// LastCursor is behind the cursor it was requested at.
	ErrCursorRegression = errors.New("page cursor moved backwards")

	// ErrUnsupportedPage fails a sweep whose source returns a PageResult
	// that is neither a PageSuccess nor a PageError.
	ErrUnsupportedPage = errors.New("unsupported page result")
)

// PageResult is the outcome of fetching one page of identifiers.
// It is implemented only by PageSuccess and PageError (or pointers to them).
type PageResult[T any] interface {
	// IsLastPage reports whether no further pages should be requested.
	IsLastPage(pageSize int) bool

	isPageResult()
}

// PageSuccess is a successfully fetched page.
type PageSuccess[T any] struct {
	// Items are the identifiers on this page, in source order
	Items []T

	// LastCursor is the cursor of the last item; the next page starts after it
	LastCursor int64
}

// IsLastPage returns true for a short page. A full page may be followed by more.
func (p PageSuccess[T]) IsLastPage(pageSize int) bool {
	return len(p.Items) < pageSize
}

func (PageSuccess[T]) isPageResult() {}

// PageError is a page that could not be fetched.
type PageError struct {
	Err error
}

// IsLastPage always returns false; the producer skips ahead instead.
func (PageError) IsLastPage(int) bool {
	return false
}

func (PageError) isPageResult() {}

// Error implements the error interface.
func (p PageError) Error() string {
	if p.Err == nil {
		return "page fetch failed"
	}
	return "page fetch failed: " + p.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (p PageError) Unwrap() error {
	return p.Err
}

// NewPageSuccess returns a successful page result.
func NewPageSuccess[T any](items []T, lastCursor int64) PageResult[T] {
	return PageSuccess[T]{Items: items, LastCursor: lastCursor}
}

// NewPageError returns a failed page result.
func NewPageError[T any](err error) PageResult[T] {
	return PageError{Err: err}
}

// NextPageFunc fetches the page that starts after cursor.
// Transient failures must be reported as a PageError, not by panicking.
type NextPageFunc[T any] func(ctx context.Context, cursor int64) PageResult[T]

// CheckMatchFunc compares one identifier across both systems.
// found is false when the systems agree. A non-nil error fails the sweep.
type CheckMatchFunc[T, M any] func(ctx context.Context, item T) (mismatch M, found bool, err error)
