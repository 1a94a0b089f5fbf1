// Package source pages through the legacy system's record identifiers.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/sync-reconciler/pkg/logging"
	"github.com/Sternrassler/sync-reconciler/pkg/reconcile"
	"github.com/rs/zerolog"
)

// ErrCursorRegression is reported when a page does not advance past the cursor.
var ErrCursorRegression = errors.New("page does not advance past cursor")

// Fetcher loads JSON documents from the legacy system. *client.Client implements it.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
}

// Config describes the legacy identifier listing.
type Config struct {
	// Path is the listing endpoint, queried as {Path}?after={cursor}&limit={PageSize}
	Path string

	// PageSize is the number of identifiers requested per page
	PageSize int
}

// DefaultConfig lists /ids one hundred at a time.
func DefaultConfig() Config {
	return Config{
		Path:     "/ids",
		PageSize: 100,
	}
}

// idPage is the listing response body.
type idPage struct {
	IDs []int64 `json:"ids"`
}

// HTTPPager turns the legacy listing endpoint into a page source.
type HTTPPager struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// NewHTTPPager creates a pager over the listing endpoint.
func NewHTTPPager(fetcher Fetcher, cfg Config) *HTTPPager {
	return &HTTPPager{
		fetcher: fetcher,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentSource).With().Str("path", cfg.Path).Logger(),
	}
}

// NextPageFunc returns the pager as a reconcile.NextPageFunc.
func (p *HTTPPager) NextPageFunc() reconcile.NextPageFunc[int64] {
	return p.NextPage
}

// NextPage fetches the identifiers after cursor.
// Every failure is reported as a reconcile.PageError.
func (p *HTTPPager) NextPage(ctx context.Context, cursor int64) reconcile.PageResult[int64] {
	query := url.Values{
		"after": {strconv.FormatInt(cursor, 10)},
		"limit": {strconv.Itoa(p.config.PageSize)},
	}

	var page idPage
	if err := p.fetcher.GetJSON(ctx, p.config.Path, query, &page); err != nil {
		p.logger.Warn().Err(err).Int64("cursor", cursor).Msg("Identifier page fetch failed")
		return reconcile.NewPageError[int64](err)
	}

	if err := checkAscending(page.IDs, cursor); err != nil {
		p.logger.Warn().Err(err).Int64("cursor", cursor).Msg("Identifier page rejected")
		return reconcile.NewPageError[int64](err)
	}

	last := cursor
	if n := len(page.IDs); n > 0 {
		last = page.IDs[n-1]
	}

	p.logger.Debug().
		Int64("cursor", cursor).
		Int("count", len(page.IDs)).
		Int64("last_cursor", last).
		Msg("Identifier page fetched")

	return reconcile.NewPageSuccess(page.IDs, last)
}

// checkAscending verifies ids are strictly increasing and all after cursor.
func checkAscending(ids []int64, cursor int64) error {
	prev := cursor
	for i, id := range ids {
		if id <= prev {
			return fmt.Errorf("%w: id %d at position %d after %d", ErrCursorRegression, id, i, prev)
		}
		prev = id
	}
	return nil
}
