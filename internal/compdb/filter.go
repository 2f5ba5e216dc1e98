package compdb

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"earshot/internal/report"
)

// Filter is a user-supplied expression deciding which records enter the
// database, evaluated against the record's function name, argument vector,
// and working directory. Expressions are pre-compiled.
type Filter struct {
	prog *vm.Program
}

// NewFilter compiles a filter expression. Example:
//
//	args[0] != "cc" or directory startsWith "/src/vendor"
func NewFilter(expression string) (*Filter, error) {
	env := map[string]interface{}{
		"function":  "",
		"args":      []string{},
		"directory": "",
	}
	prog, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling filter expression: %w", err)
	}
	return &Filter{prog: prog}, nil
}

// Match evaluates the filter for one record. A nil filter matches
// everything.
func (f *Filter) Match(rec *report.Record) (bool, error) {
	if f == nil {
		return true, nil
	}
	env := map[string]interface{}{
		"function":  rec.Function,
		"args":      rec.Command,
		"directory": rec.Directory,
	}
	out, err := expr.Run(f.prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluating filter expression: %w", err)
	}
	return out.(bool), nil
}
