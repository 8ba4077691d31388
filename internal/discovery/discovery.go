// Package discovery reports whether the programs that tasks invoke can be
// found before a run starts.
package discovery

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/aristath/pipeline/internal/scheduler"
)

// LookPathFunc resolves a program name to a path. exec.LookPath satisfies it.
type LookPathFunc func(file string) (string, error)

// Program is the lookup outcome for one task.
type Program struct {
	Task    string
	Program string
	Path    string // Resolved location, empty when missing or builtin
	Builtin bool   // Handled by the shell itself
	Found   bool
}

// shellBuiltins are commands sh runs without a binary on PATH.
var shellBuiltins = map[string]bool{
	".": true, ":": true, "[": true, "cd": true, "echo": true, "eval": true,
	"exec": true, "exit": true, "export": true, "false": true, "printf": true,
	"read": true, "set": true, "shift": true, "test": true, "true": true,
	"ulimit": true, "umask": true, "unset": true, "wait": true,
}

// Discover resolves every task's program in declaration order. lookPath
// defaults to exec.LookPath.
func Discover(tasks []scheduler.Task, lookPath LookPathFunc) []Program {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return iter.Map(tasks, func(task *scheduler.Task) Program {
		return resolve(task, lookPath)
	})
}

// Missing returns the programs that could not be found.
func Missing(programs []Program) []Program {
	var missing []Program
	for _, p := range programs {
		if !p.Found {
			missing = append(missing, p)
		}
	}
	return missing
}

func resolve(task *scheduler.Task, lookPath LookPathFunc) Program {
	prog := Program{Task: task.Name, Program: task.Program()}

	switch {
	case prog.Program == "":
		return prog
	case shellBuiltins[prog.Program] || isAssignment(prog.Program):
		prog.Builtin, prog.Found = true, true
		return prog
	case strings.ContainsRune(prog.Program, filepath.Separator):
		path := prog.Program
		if !filepath.IsAbs(path) && task.WorkingDirectory != "" {
			path = filepath.Join(task.WorkingDirectory, path)
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			prog.Path, prog.Found = path, true
		}
		return prog
	}

	if path, err := lookPath(prog.Program); err == nil {
		prog.Path, prog.Found = path, true
	}
	return prog
}

// isAssignment reports a leading VAR=value prefix, which sh accepts before a
// command.
func isAssignment(word string) bool {
	i := strings.IndexByte(word, '=')
	return i > 0 && !strings.ContainsAny(word[:i], "/.-")
}
