package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"slices"
	"testing"

	"github.com/Sternrassler/sync-reconciler/internal/testutil"
	"github.com/Sternrassler/sync-reconciler/pkg/client"
	"github.com/Sternrassler/sync-reconciler/pkg/reconcile"
)

// stubFetcher returns a fixed body or error and records the query.
type stubFetcher struct {
	body      string
	err       error
	lastPath  string
	lastQuery url.Values
}

func (s *stubFetcher) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	s.lastPath = path
	s.lastQuery = query
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.body), out)
}

func TestHTTPPager_NextPage(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		cursor     int64
		wantError  bool
		wantItems  []int64
		wantCursor int64
	}{
		{
			name:       "full page",
			body:       `{"ids":[11,12,15]}`,
			cursor:     10,
			wantItems:  []int64{11, 12, 15},
			wantCursor: 15,
		},
		{
			name:       "empty page keeps cursor",
			body:       `{"ids":[]}`,
			cursor:     42,
			wantItems:  []int64{},
			wantCursor: 42,
		},
		{
			name:      "transport failure",
			err:       errors.New("connection refused"),
			wantError: true,
		},
		{
			name:      "id not after cursor",
			body:      `{"ids":[5,6]}`,
			cursor:    5,
			wantError: true,
		},
		{
			name:      "unsorted ids",
			body:      `{"ids":[3,2]}`,
			cursor:    0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &stubFetcher{body: tt.body, err: tt.err}
			pager := NewHTTPPager(fetcher, Config{Path: "/ids", PageSize: 3})

			result := pager.NextPage(context.Background(), tt.cursor)

			switch page := result.(type) {
			case reconcile.PageError:
				if !tt.wantError {
					t.Fatalf("unexpected page error: %v", page.Err)
				}
			case reconcile.PageSuccess[int64]:
				if tt.wantError {
					t.Fatalf("expected page error, got %+v", page)
				}
				if len(page.Items) != len(tt.wantItems) || !slices.Equal(page.Items, tt.wantItems) {
					t.Errorf("Items = %v, want %v", page.Items, tt.wantItems)
				}
				if page.LastCursor != tt.wantCursor {
					t.Errorf("LastCursor = %d, want %d", page.LastCursor, tt.wantCursor)
				}
			default:
				t.Fatalf("unexpected page result %T", result)
			}
		})
	}
}

func TestHTTPPager_Query(t *testing.T) {
	fetcher := &stubFetcher{body: `{"ids":[]}`}
	pager := NewHTTPPager(fetcher, Config{Path: "/v1/customer-ids", PageSize: 250})

	pager.NextPage(context.Background(), 1234)

	if fetcher.lastPath != "/v1/customer-ids" {
		t.Errorf("path = %q", fetcher.lastPath)
	}
	if fetcher.lastQuery.Get("after") != "1234" || fetcher.lastQuery.Get("limit") != "250" {
		t.Errorf("query = %v", fetcher.lastQuery)
	}
}

func TestCheckAscending(t *testing.T) {
	if err := checkAscending([]int64{1, 2, 3}, 0); err != nil {
		t.Errorf("ascending ids rejected: %v", err)
	}
	if err := checkAscending([]int64{2, 2}, 0); !errors.Is(err, ErrCursorRegression) {
		t.Errorf("duplicate ids: error = %v, want ErrCursorRegression", err)
	}
}

func TestHTTPPager_SweepOverMockUpstream(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.PutRange(1, 23, func(id int64) map[string]any { return map[string]any{"id": id} })
	mock.FailIDPages(1)

	cfg := client.DefaultConfig("legacy", mock.URL(), "test/1.0")
	cfg.RequestsPerSecond = 0
	cfg.Retry = func(client.ErrorClass) client.RetryConfig {
		return client.RetryConfig{MaxAttempts: 1}
	}
	legacy, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	pager := NewHTTPPager(legacy, Config{Path: "/ids", PageSize: 10})

	rcfg := reconcile.DefaultConfig()
	rcfg.PageSize = 10
	rcfg.ThreadCount = 2
	checkMatch := func(ctx context.Context, id int64) (int64, bool, error) {
		return id, id%10 == 0, nil
	}

	result, err := reconcile.GenerateReport(context.Background(), rcfg, checkMatch, pager.NextPageFunc())
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	// The first page fails and is skipped (ids 1-10), then 11-20 and 21-23 are read.
	if result.PageErrors != 1 {
		t.Errorf("PageErrors = %d, want 1", result.PageErrors)
	}
	if result.ItemsChecked != 13 {
		t.Errorf("ItemsChecked = %d, want 13", result.ItemsChecked)
	}
	if result.PagesChecked != 2 {
		t.Errorf("PagesChecked = %d, want 2", result.PagesChecked)
	}
	if !slices.Equal(result.Mismatches, []int64{20}) {
		t.Errorf("Mismatches = %v, want [20]", result.Mismatches)
	}
	if got := mock.IDRequests(); !slices.Equal(got, []int64{0, 10, 20}) {
		t.Errorf("cursors requested = %v, want [0 10 20]", got)
	}
}
