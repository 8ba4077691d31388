package config

// Defaults applied when a key is absent from every config source.
const (
	DefaultMaxParallel       = 4
	DefaultQualityThreshold  = 80
	DefaultTimeoutMultiplier = 1.0
	DefaultMemoryLimit       = 8192
	DefaultRetryInitialMS    = 100
	DefaultRetryMaxMS        = 10000
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxParallel:         DefaultMaxParallel,
		QualityThreshold:    DefaultQualityThreshold,
		TimeoutMultiplier:   DefaultTimeoutMultiplier,
		MemoryLimit:         DefaultMemoryLimit,
		EnableOptimizations: true,
		RetryInitialMS:      DefaultRetryInitialMS,
		RetryMaxMS:          DefaultRetryMaxMS,
	}
}
