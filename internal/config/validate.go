package config

import (
	"errors"
	"fmt"
)

// Validate checks every field against its allowed range and reports all
// violations at once.
func (c Config) Validate() error {
	var errs []error
	if c.MaxParallel <= 0 {
		errs = append(errs, fmt.Errorf("max_parallel must be positive, got %d", c.MaxParallel))
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		errs = append(errs, fmt.Errorf("quality_threshold must be within 0-100, got %d", c.QualityThreshold))
	}
	if c.TimeoutMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("timeout_multiplier must be positive, got %g", c.TimeoutMultiplier))
	}
	if c.MemoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("memory_limit must be positive, got %d", c.MemoryLimit))
	}
	if c.RetryInitialMS <= 0 {
		errs = append(errs, fmt.Errorf("retry_initial_ms must be positive, got %d", c.RetryInitialMS))
	}
	if c.RetryMaxMS < c.RetryInitialMS {
		errs = append(errs, fmt.Errorf("retry_max_ms (%d) must not be below retry_initial_ms (%d)", c.RetryMaxMS, c.RetryInitialMS))
	}
	return errors.Join(errs...)
}
