// Package compare checks one record at a time between the legacy and the
// modern system and reports how they disagree.
package compare

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"reflect"
	"slices"
	"strconv"

	"github.com/Sternrassler/sync-reconciler/pkg/client"
	"github.com/Sternrassler/sync-reconciler/pkg/logging"
	"github.com/Sternrassler/sync-reconciler/pkg/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var compareMismatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sync_compare_mismatches_total",
	Help: "Total mismatches detected by kind",
}, []string{"kind"})

// Kind classifies a mismatch.
type Kind string

const (
	KindMissingInModern Kind = "missing_in_modern"
	KindMissingInLegacy Kind = "missing_in_legacy"
	KindFieldMismatch   Kind = "field_mismatch"
)

// FieldDiff is one field whose values differ.
type FieldDiff struct {
	Field  string `json:"field"`
	Legacy any    `json:"legacy"`
	Modern any    `json:"modern"`
}

// Mismatch describes how the two systems disagree about one record.
type Mismatch struct {
	ID     int64       `json:"id"`
	Kind   Kind        `json:"kind"`
	Fields []FieldDiff `json:"fields,omitempty"`
}

// Fetcher loads JSON documents from one system. *client.Client implements it.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
}

// Config selects the records and fields to compare.
type Config struct {
	// LegacyPath is the legacy record collection; records live at {LegacyPath}/{id}
	LegacyPath string

	// ModernPath is the modern record collection; records live at {ModernPath}/{id}
	ModernPath string

	// Fields limits the comparison to these top-level fields.
	// Empty compares every field present on either side.
	Fields []string
}

// DefaultConfig compares every field of /records/{id} on both sides.
func DefaultConfig() Config {
	return Config{
		LegacyPath: "/records",
		ModernPath: "/records",
	}
}

// Comparator fetches a record from both systems and diffs them.
type Comparator struct {
	legacy Fetcher
	modern Fetcher
	config Config
	logger zerolog.Logger
}

// NewComparator creates a comparator over the two systems.
func NewComparator(legacy, modern Fetcher, cfg Config) *Comparator {
	return &Comparator{
		legacy: legacy,
		modern: modern,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentCompare),
	}
}

// CheckMatch returns the comparator as a reconcile.CheckMatchFunc.
func (c *Comparator) CheckMatch() reconcile.CheckMatchFunc[int64, Mismatch] {
	return c.Check
}

// Check compares record id. A record missing on both sides is not a mismatch.
// Upstream failures other than 404 are returned as errors.
func (c *Comparator) Check(ctx context.Context, id int64) (Mismatch, bool, error) {
	var legacyDoc, modernDoc map[string]any
	var legacyMissing, modernMissing bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		legacyMissing, err = fetch(gctx, c.legacy, c.config.LegacyPath, id, &legacyDoc)
		return err
	})
	g.Go(func() error {
		var err error
		modernMissing, err = fetch(gctx, c.modern, c.config.ModernPath, id, &modernDoc)
		return err
	})
	if err := g.Wait(); err != nil {
		return Mismatch{}, false, fmt.Errorf("compare record %d: %w", id, err)
	}

	var mismatch Mismatch
	switch {
	case legacyMissing && modernMissing:
		c.logger.Debug().Int64("id", id).Msg("Record missing in both systems")
		return Mismatch{}, false, nil
	case modernMissing:
		mismatch = Mismatch{ID: id, Kind: KindMissingInModern}
	case legacyMissing:
		mismatch = Mismatch{ID: id, Kind: KindMissingInLegacy}
	default:
		diffs := DiffFields(legacyDoc, modernDoc, c.config.Fields)
		if len(diffs) == 0 {
			return Mismatch{}, false, nil
		}
		mismatch = Mismatch{ID: id, Kind: KindFieldMismatch, Fields: diffs}
	}

	compareMismatchesTotal.WithLabelValues(string(mismatch.Kind)).Inc()
	c.logger.Debug().
		Int64("id", id).
		Str("kind", string(mismatch.Kind)).
		Int("fields", len(mismatch.Fields)).
		Msg("Mismatch detected")

	return mismatch, true, nil
}

// fetch loads {collection}/{id}; missing is true on 404.
func fetch(ctx context.Context, f Fetcher, collection string, id int64, out *map[string]any) (missing bool, err error) {
	err = f.GetJSON(ctx, path.Join(collection, strconv.FormatInt(id, 10)), nil, out)
	if errors.Is(err, client.ErrNotFound) {
		return true, nil
	}
	return false, err
}

// DiffFields compares the named top-level fields of two documents.
// With no names, every field present on either side is compared.
// Results are ordered by field name.
func DiffFields(legacy, modern map[string]any, fields []string) []FieldDiff {
	if len(fields) == 0 {
		seen := make(map[string]struct{}, len(legacy)+len(modern))
		for k := range legacy {
			seen[k] = struct{}{}
		}
		for k := range modern {
			seen[k] = struct{}{}
		}
		for k := range seen {
			fields = append(fields, k)
		}
	} else {
		fields = slices.Clone(fields)
	}
	slices.Sort(fields)
	fields = slices.Compact(fields)

	var diffs []FieldDiff
	for _, field := range fields {
		lv, lok := legacy[field]
		mv, mok := modern[field]
		if lok == mok && reflect.DeepEqual(lv, mv) {
			continue
		}
		diffs = append(diffs, FieldDiff{Field: field, Legacy: lv, Modern: mv})
	}
	return diffs
}
