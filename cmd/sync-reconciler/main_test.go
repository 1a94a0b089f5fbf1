package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/reconcile"
	"github.com/Sternrassler/sync-reconciler/pkg/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// fakeReports serves canned reports by sweep name.
type fakeReports struct {
	reports map[string]*store.Report
	err     error
}

func (f *fakeReports) Latest(ctx context.Context, sweep string) (*store.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	report, ok := f.reports[sweep]
	if !ok {
		return nil, store.ErrNotFound
	}
	return report, nil
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint_RedisDown(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer redisClient.Close()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(redisClient)(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Result().StatusCode)
	}
}

func TestLatestReportHandler(t *testing.T) {
	reports := &fakeReports{reports: map[string]*store.Report{
		"customers": {RunID: "run-1", Sweep: "customers", ItemsChecked: 42},
	}}
	handler := latestReportHandler(reports)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"found", "GET", "/reports/latest?sweep=customers", http.StatusOK},
		{"unknown sweep", "GET", "/reports/latest?sweep=orders", http.StatusNotFound},
		{"missing sweep", "GET", "/reports/latest", http.StatusBadRequest},
		{"post rejected", "POST", "/reports/latest?sweep=customers", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(tt.method, tt.target, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var got store.Report
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.RunID != "run-1" || got.ItemsChecked != 42 {
				t.Errorf("report = %+v", got)
			}
		})
	}
}

func TestLatestReportHandler_StoreError(t *testing.T) {
	handler := latestReportHandler(&fakeReports{err: errors.New("redis down")})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/reports/latest?sweep=customers", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Importing reconcile registers the sweep collectors; touch one so it is exported.
	_ = reconcile.DefaultConfig()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Result().Body)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Result().StatusCode)
	}
	if !strings.Contains(string(body), "# HELP") || !strings.Contains(string(body), "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BAD_INT", "twelve")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_BAD_DUR", "soon")

	if got := getEnv("TEST_STR", "x"); got != "value" {
		t.Errorf("getEnv = %q", got)
	}
	if got := getEnv("TEST_UNSET", "x"); got != "x" {
		t.Errorf("getEnv default = %q", got)
	}
	if got := getEnvInt("TEST_INT", 1); got != 12 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 1); got != 1 {
		t.Errorf("getEnvInt invalid = %d, want default", got)
	}
	if got := getEnvBool("TEST_BOOL", false); !got {
		t.Error("getEnvBool = false")
	}
	if got := getEnvDuration("TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v", got)
	}
	if got := getEnvDuration("TEST_BAD_DUR", time.Second); got != time.Second {
		t.Errorf("getEnvDuration invalid = %v, want default", got)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"email", []string{"email"}},
		{" email , name,,status ", []string{"email", "name", "status"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
