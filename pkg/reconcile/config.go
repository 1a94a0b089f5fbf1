package reconcile

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a sweep is started with an unusable Config.
var ErrInvalidConfig = errors.New("invalid reconcile config")

// Config holds sweep configuration.
type Config struct {
	// Name labels logs and metrics for this sweep (e.g. "customers")
	Name string

	// ThreadCount is the number of parallel comparison workers
	ThreadCount int

	// PageSize is the number of identifiers requested per page.
	// It is also the skip-ahead distance after a failed page.
	PageSize int

	// MaxPageErrors stops the sweep after this many failed pages
	MaxPageErrors int

	// BufferMultiplier sizes the item buffer as BufferMultiplier × PageSize
	BufferMultiplier int
}

// DefaultConfig returns a sweep configuration suitable for most sources.
func DefaultConfig() Config {
	return Config{
		Name:             "default",
		ThreadCount:      8,
		PageSize:         100,
		MaxPageErrors:    30,
		BufferMultiplier: 2,
	}
}

// Validate checks that every limit is usable.
func (c Config) Validate() error {
	if c.ThreadCount < 1 {
		return fmt.Errorf("%w: thread_count must be >= 1 (got %d)", ErrInvalidConfig, c.ThreadCount)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("%w: page_size must be >= 1 (got %d)", ErrInvalidConfig, c.PageSize)
	}
	if c.MaxPageErrors < 1 {
		return fmt.Errorf("%w: max_page_errors must be >= 1 (got %d)", ErrInvalidConfig, c.MaxPageErrors)
	}
	if c.BufferMultiplier < 1 {
		return fmt.Errorf("%w: buffer_multiplier must be >= 1 (got %d)", ErrInvalidConfig, c.BufferMultiplier)
	}
	return nil
}

// BufferSize returns the capacity of the item channel.
func (c Config) BufferSize() int {
	return c.BufferMultiplier * c.PageSize
}

func (c Config) label() string {
	if c.Name == "" {
		return "default"
	}
	return c.Name
}
