package pipeline

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/Knetic/govaluate"

	"github.com/aristath/pipeline/internal/scheduler"
)

// envParameters resolves expression variables from the task environment
// first, then the process environment. Unknown names resolve to "".
type envParameters map[string]string

func (p envParameters) lookup(name string) (string, bool) {
	if v, ok := p[name]; ok {
		return v, true
	}
	return os.LookupEnv(name)
}

// Get implements govaluate.Parameters.
func (p envParameters) Get(name string) (interface{}, error) {
	v, _ := p.lookup(name)
	return v, nil
}

func stringArg(fn string, args []interface{}) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s() takes one argument", fn)
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s() expects a string, got %T", fn, args[0])
	}
	return s, nil
}

// functions returns the helpers available inside condition expressions:
// defined("NAME") and exists("path").
func (p envParameters) functions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"defined": func(args ...interface{}) (interface{}, error) {
			name, err := stringArg("defined", args)
			if err != nil {
				return nil, err
			}
			_, set := p.lookup(name)
			return set, nil
		},
		"exists": func(args ...interface{}) (interface{}, error) {
			path, err := stringArg("exists", args)
			if err != nil {
				return nil, err
			}
			_, statErr := os.Stat(path)
			return statErr == nil, nil
		},
	}
}

// envReference matches env.NAME, which govaluate would otherwise treat as a
// struct accessor.
var envReference = regexp.MustCompile(`\benv\.([A-Za-z_][A-Za-z0-9_]*)`)

// compileCondition parses expr once and returns a condition evaluated at
// scheduling time. Variables are environment names, written either bare or
// as env.NAME.
func compileCondition(expr string, env map[string]string) (scheduler.Condition, error) {
	params := make(envParameters, len(env))
	for k, v := range env {
		params[k] = v
	}

	rewritten := envReference.ReplaceAllString(expr, "[$1]")
	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, params.functions())
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", expr, err)
	}

	return func(ctx context.Context) (bool, error) {
		result, err := compiled.Eval(params)
		if err != nil {
			return false, fmt.Errorf("condition %q: %w", expr, err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return false, fmt.Errorf("condition %q evaluated to %v, not a boolean", expr, result)
		}
		return ok, nil
	}, nil
}
