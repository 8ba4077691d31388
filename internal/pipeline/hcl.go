package pipeline

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// hclFile is the HCL form of a pipeline:
//
//	name = "ci"
//	config {
//	  max_parallel = 2
//	}
//	task "build" {
//	  command = "go build ./..."
//	  timeout = "2m"
//	}
type hclFile struct {
	Name   string     `hcl:"name,optional"`
	Config *hclConfig `hcl:"config,block"`
	Tasks  []hclTask  `hcl:"task,block"`
}

// hclConfig holds only the settings present in the file.
type hclConfig struct {
	MaxParallel         *int     `hcl:"max_parallel,optional"`
	QualityThreshold    *int     `hcl:"quality_threshold,optional"`
	TimeoutMultiplier   *float64 `hcl:"timeout_multiplier,optional"`
	MemoryLimit         *int     `hcl:"memory_limit,optional"`
	EnableOptimizations *bool    `hcl:"enable_optimizations,optional"`
	RetryInitialMS      *int     `hcl:"retry_initial_ms,optional"`
	RetryMaxMS          *int     `hcl:"retry_max_ms,optional"`
}

type hclTask struct {
	Name             string            `hcl:"name,label"`
	Description      string            `hcl:"description,optional"`
	Command          string            `hcl:"command"`
	Timeout          string            `hcl:"timeout,optional"`
	RetryCount       int               `hcl:"retry_count,optional"`
	DependsOn        []string          `hcl:"depends_on,optional"`
	Environment      map[string]string `hcl:"environment,optional"`
	EnvFile          string            `hcl:"env_file,optional"`
	WorkingDirectory string            `hcl:"working_directory,optional"`
	Parallel         bool              `hcl:"parallel,optional"`
	Critical         bool              `hcl:"critical,optional"`
	Condition        string            `hcl:"condition,optional"`
	Resources        *hclResources     `hcl:"resources,block"`
}

type hclResources struct {
	CPU    float64 `hcl:"cpu,optional"`
	Memory int     `hcl:"memory,optional"`
}

func decodeHCL(data []byte, filename string, def *definition) error {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return diags
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return diags
	}

	def.Name = parsed.Name
	if parsed.Config != nil {
		parsed.Config.apply(def)
	}
	for _, t := range parsed.Tasks {
		spec, err := t.spec()
		if err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
		def.Tasks = append(def.Tasks, spec)
	}
	return nil
}

func (c *hclConfig) apply(def *definition) {
	cfg := &def.Config
	if c.MaxParallel != nil {
		cfg.MaxParallel = *c.MaxParallel
	}
	if c.QualityThreshold != nil {
		cfg.QualityThreshold = *c.QualityThreshold
	}
	if c.TimeoutMultiplier != nil {
		cfg.TimeoutMultiplier = *c.TimeoutMultiplier
	}
	if c.MemoryLimit != nil {
		cfg.MemoryLimit = *c.MemoryLimit
	}
	if c.EnableOptimizations != nil {
		cfg.EnableOptimizations = *c.EnableOptimizations
	}
	if c.RetryInitialMS != nil {
		cfg.RetryInitialMS = *c.RetryInitialMS
	}
	if c.RetryMaxMS != nil {
		cfg.RetryMaxMS = *c.RetryMaxMS
	}
}

func (t hclTask) spec() (taskSpec, error) {
	timeout, err := ParseDuration(t.Timeout)
	if err != nil {
		return taskSpec{}, fmt.Errorf("timeout: %w", err)
	}

	spec := taskSpec{
		Name:             t.Name,
		Description:      t.Description,
		Command:          t.Command,
		Timeout:          Duration(timeout),
		RetryCount:       t.RetryCount,
		DependsOn:        t.DependsOn,
		Environment:      t.Environment,
		EnvFile:          t.EnvFile,
		WorkingDirectory: t.WorkingDirectory,
		Parallel:         t.Parallel,
		Critical:         t.Critical,
		Condition:        t.Condition,
	}
	if t.Resources != nil {
		spec.Resources = &resourceSpec{CPU: t.Resources.CPU, Memory: t.Resources.Memory}
	}
	return spec, nil
}
