// Package pipeline loads pipeline definition files into scheduler tasks and
// the configuration they run under.
package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/pipeline/internal/config"
	"github.com/aristath/pipeline/internal/scheduler"
)

// Format is the syntax of a pipeline file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported pipeline file extension %q", filepath.Ext(path))
	}
}

// Pipeline is a loaded definition, ready to hand to the coordinator.
type Pipeline struct {
	Name   string
	Path   string
	Tasks  []scheduler.Task
	Config config.Config // base config overlaid with the file's config section
}

// definition is the shared shape of YAML and JSON pipeline files.
type definition struct {
	Name   string        `yaml:"name" json:"name"`
	Config config.Config `yaml:"config" json:"config"`
	Tasks  []taskSpec    `yaml:"tasks" json:"tasks"`
}

type taskSpec struct {
	Name             string            `yaml:"name" json:"name"`
	Description      string            `yaml:"description" json:"description"`
	Command          string            `yaml:"command" json:"command"`
	Timeout          Duration          `yaml:"timeout" json:"timeout"`
	RetryCount       int               `yaml:"retry_count" json:"retry_count"`
	DependsOn        []string          `yaml:"depends_on" json:"depends_on"`
	Environment      map[string]string `yaml:"environment" json:"environment"`
	EnvFile          string            `yaml:"env_file" json:"env_file"`
	WorkingDirectory string            `yaml:"working_directory" json:"working_directory"`
	Parallel         bool              `yaml:"parallel" json:"parallel"`
	Critical         bool              `yaml:"critical" json:"critical"`
	Condition        string            `yaml:"condition" json:"condition"`
	Resources        *resourceSpec     `yaml:"resources" json:"resources"`
}

type resourceSpec struct {
	CPU    float64 `yaml:"cpu" json:"cpu"`
	Memory int     `yaml:"memory" json:"memory"` // MB
}

// LoadFile reads a pipeline file, choosing the format from its extension.
// Relative env_file and working_directory paths resolve against the file's
// directory.
func LoadFile(path string, base config.Config) (*Pipeline, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	return Parse(data, format, path, base)
}

// Parse decodes a pipeline definition. filename is used for diagnostics and
// to resolve relative paths; it need not exist.
func Parse(data []byte, format Format, filename string, base config.Config) (*Pipeline, error) {
	def := definition{Config: base}

	var err error
	switch format {
	case FormatYAML:
		err = decodeYAML(data, &def)
	case FormatJSON:
		err = decodeJSON(data, &def)
	case FormatHCL:
		err = decodeHCL(data, filename, &def)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode %s: %w", filename, err)
	}

	if err := def.Config.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %s: invalid config: %w", filename, err)
	}
	if len(def.Tasks) == 0 {
		return nil, fmt.Errorf("pipeline: %s: no tasks defined", filename)
	}

	dir := filepath.Dir(filename)
	p := &Pipeline{
		Name:   def.Name,
		Path:   filename,
		Tasks:  make([]scheduler.Task, 0, len(def.Tasks)),
		Config: def.Config,
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	var errs []error
	for i, spec := range def.Tasks {
		task, err := spec.build(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %d (%q): %w", i, spec.Name, err))
			continue
		}
		p.Tasks = append(p.Tasks, task)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pipeline: %s: %w", filename, errors.Join(errs...))
	}
	return p, nil
}

func decodeYAML(data []byte, def *definition) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(def); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(data []byte, def *definition) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(def)
}

func (s taskSpec) build(dir string) (scheduler.Task, error) {
	if s.RetryCount < 0 {
		return scheduler.Task{}, fmt.Errorf("retry_count must be non-negative, got %d", s.RetryCount)
	}
	if strings.TrimSpace(s.Command) == "" {
		return scheduler.Task{}, errors.New("command is required")
	}

	env, err := s.environment(dir)
	if err != nil {
		return scheduler.Task{}, err
	}

	task := scheduler.Task{
		Name:             s.Name,
		Description:      s.Description,
		Command:          s.Command,
		Timeout:          time.Duration(s.Timeout),
		RetryCount:       s.RetryCount,
		DependsOn:        s.DependsOn,
		Environment:      env,
		WorkingDirectory: resolve(dir, s.WorkingDirectory),
		Parallel:         s.Parallel,
		Critical:         s.Critical,
	}
	if s.Resources != nil {
		if s.Resources.Memory < 0 || s.Resources.CPU < 0 {
			return scheduler.Task{}, errors.New("resources must be non-negative")
		}
		task.Resources = &scheduler.Resources{CPU: s.Resources.CPU, MemoryMB: s.Resources.Memory}
	}
	if s.Condition != "" {
		task.Condition, err = compileCondition(s.Condition, env)
		if err != nil {
			return scheduler.Task{}, err
		}
	}
	return task, nil
}

// environment merges env_file under the explicit environment map.
func (s taskSpec) environment(dir string) (map[string]string, error) {
	if s.EnvFile == "" {
		return s.Environment, nil
	}

	env, err := godotenv.Read(resolve(dir, s.EnvFile))
	if err != nil {
		return nil, fmt.Errorf("env_file: %w", err)
	}
	for k, v := range s.Environment {
		env[k] = v
	}
	return env, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
