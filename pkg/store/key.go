package store

import (
	"strings"
)

// KeyKind selects which record of a sweep a key addresses.
type KeyKind string

const (
	// KindLatest addresses the most recent report.
	KindLatest KeyKind = "latest"

	// KindHistory addresses the capped report history list.
	KindHistory KeyKind = "history"
)

// ReportKey identifies a stored report record.
type ReportKey struct {
	// Sweep is the sweep name (e.g. "customers")
	Sweep string

	// Kind is latest or history
	Kind KeyKind
}

// String generates the Redis key.
// Format: sync:report:{sweep}:{kind}
//
// Example:
//
//	sync:report:customers:latest
func (k ReportKey) String() string {
	sweep := strings.ToLower(strings.TrimSpace(k.Sweep))
	sweep = strings.ReplaceAll(sweep, ":", "_")
	if sweep == "" {
		sweep = "default"
	}
	return strings.Join([]string{"sync", "report", sweep, string(k.Kind)}, ":")
}
