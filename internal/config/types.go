package config

import "time"

// Config is the execution-wide policy for one run. Field names match the
// keys accepted in config and pipeline files.
type Config struct {
	MaxParallel         int     `json:"max_parallel" yaml:"max_parallel"`                 // Concurrently running tasks
	QualityThreshold    int     `json:"quality_threshold" yaml:"quality_threshold"`       // 0-100, minimum score to continue past a checkpoint
	TimeoutMultiplier   float64 `json:"timeout_multiplier" yaml:"timeout_multiplier"`     // Scales every task timeout
	MemoryLimit         int     `json:"memory_limit" yaml:"memory_limit"`                 // MB shared by running tasks
	EnableOptimizations bool    `json:"enable_optimizations" yaml:"enable_optimizations"` // Cost-based ordering within a wave
	RetryInitialMS      int     `json:"retry_initial_ms" yaml:"retry_initial_ms"`         // First backoff delay
	RetryMaxMS          int     `json:"retry_max_ms" yaml:"retry_max_ms"`                 // Backoff cap
}

// RetryInitial returns the first backoff delay.
func (c Config) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMS) * time.Millisecond
}

// RetryMax returns the backoff cap.
func (c Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMS) * time.Millisecond
}
