package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  string
		projectConfig string
		want          Config
		expectError   bool
	}{
		{
			name: "No config files - returns defaults",
			want: *DefaultConfig(),
		},
		{
			name:         "Global only - overrides parallelism",
			globalConfig: `{"max_parallel": 8}`,
			want: Config{
				MaxParallel:         8,
				QualityThreshold:    80,
				TimeoutMultiplier:   1.0,
				MemoryLimit:         8192,
				EnableOptimizations: true,
				RetryInitialMS:      100,
				RetryMaxMS:          10000,
			},
		},
		{
			name:          "Project overrides global - project wins",
			globalConfig:  `{"max_parallel": 8, "quality_threshold": 50}`,
			projectConfig: `{"max_parallel": 2}`,
			want: Config{
				MaxParallel:         2,
				QualityThreshold:    50,
				TimeoutMultiplier:   1.0,
				MemoryLimit:         8192,
				EnableOptimizations: true,
				RetryInitialMS:      100,
				RetryMaxMS:          10000,
			},
		},
		{
			name:          "Explicit false disables optimizations",
			projectConfig: `{"enable_optimizations": false, "timeout_multiplier": 2.5}`,
			want: Config{
				MaxParallel:         4,
				QualityThreshold:    80,
				TimeoutMultiplier:   2.5,
				MemoryLimit:         8192,
				EnableOptimizations: false,
				RetryInitialMS:      100,
				RetryMaxMS:          10000,
			},
		},
		{
			name:          "Unknown key rejected",
			projectConfig: `{"max_paralel": 2}`,
			expectError:   true,
		},
		{
			name:         "Out of range threshold rejected",
			globalConfig: `{"quality_threshold": 150}`,
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != "" {
				globalPath = filepath.Join(tmpDir, "global.json")
				writeFile(t, globalPath, tt.globalConfig)
			}

			projectPath := ""
			if tt.projectConfig != "" {
				projectPath = filepath.Join(tmpDir, "project.json")
				writeFile(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *cfg != tt.want {
				t.Errorf("config = %+v, want %+v", *cfg, tt.want)
			}
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	writeFile(t, globalPath, "{invalid json")

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
	if !strings.Contains(err.Error(), "global.json") {
		t.Errorf("error %q should mention the file", err)
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("config = %+v, want defaults", *cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults valid", mutate: func(c *Config) {}},
		{name: "zero parallel", mutate: func(c *Config) { c.MaxParallel = 0 }, wantErr: "max_parallel"},
		{name: "negative threshold", mutate: func(c *Config) { c.QualityThreshold = -1 }, wantErr: "quality_threshold"},
		{name: "zero multiplier", mutate: func(c *Config) { c.TimeoutMultiplier = 0 }, wantErr: "timeout_multiplier"},
		{name: "zero memory", mutate: func(c *Config) { c.MemoryLimit = 0 }, wantErr: "memory_limit"},
		{name: "retry cap below initial", mutate: func(c *Config) { c.RetryMaxMS = 10 }, wantErr: "retry_max_ms"},
		{name: "threshold 100 valid", mutate: func(c *Config) { c.QualityThreshold = 100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRetryDurations(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RetryInitial().Milliseconds(); got != 100 {
		t.Errorf("RetryInitial = %dms, want 100ms", got)
	}
	if got := cfg.RetryMax().Seconds(); got != 10 {
		t.Errorf("RetryMax = %gs, want 10s", got)
	}
}
