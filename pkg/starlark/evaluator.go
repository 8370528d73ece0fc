// Package starlark builds render contexts from Starlark scripts. Top-level
// globals of the script become context keys, and set_variable() writes
// dotted paths directly.
package starlark

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"go.starlark.net/starlark"
)

// Evaluator executes context scripts.
type Evaluator struct {
	thread   *starlark.Thread
	builtins starlark.StringDict
	globals  starlark.StringDict
	explicit tmpl.ObjectValue
	getenv   func(string) (string, bool)
}

// NewEvaluator creates a new Starlark evaluator
func NewEvaluator() *Evaluator {
	e := &Evaluator{
		globals:  make(starlark.StringDict),
		explicit: tmpl.ObjectValue{},
		getenv:   os.LookupEnv,
	}
	e.thread = &starlark.Thread{
		Name: "scriptgen",
		Print: func(_ *starlark.Thread, msg string) {
			slog.Info("starlark", "msg", msg)
		},
	}
	e.builtins = e.createBuiltins()
	return e
}

// SetEnv replaces the environment lookup used by getenv().
func (e *Evaluator) SetEnv(lookup func(string) (string, bool)) {
	e.getenv = lookup
}

// SetGlobal predeclares a variable visible to scripts.
func (e *Evaluator) SetGlobal(name string, value tmpl.Value) {
	e.globals[name] = ConvertToStarlark(value)
}

func (e *Evaluator) predeclared() starlark.StringDict {
	predeclared := make(starlark.StringDict, len(e.builtins)+len(e.globals))
	for k, v := range e.globals {
		predeclared[k] = v
	}
	for k, v := range e.builtins {
		predeclared[k] = v
	}
	return predeclared
}

// Eval evaluates a Starlark expression and returns the result as a Value
func (e *Evaluator) Eval(expr string) (tmpl.Value, error) {
	val, err := starlark.Eval(e.thread, "<eval>", expr, e.predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark evaluation error: %w", err)
	}
	return ConvertFromStarlark(val)
}

// ExecFile executes a Starlark file. src may be nil, in which case the
// file is read from disk.
func (e *Evaluator) ExecFile(filename string, src any) error {
	globals, err := starlark.ExecFile(e.thread, filename, src, e.predeclared())
	if err != nil {
		return fmt.Errorf("starlark execution error: %w", err)
	}
	for k, v := range globals {
		e.globals[k] = v
	}
	return nil
}

// Context exports the script's globals as a render context. Private names
// (leading underscore), functions and modules are skipped. Paths written
// with set_variable() win over globals.
func (e *Evaluator) Context() (tmpl.ObjectValue, error) {
	ctx := tmpl.ObjectValue{}
	keys := make([]string, 0, len(e.globals))
	for k := range e.globals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := e.globals[key]
		if !isExportable(key, val) {
			continue
		}
		conv, err := ConvertFromStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", key, err)
		}
		ctx[key] = conv
	}
	for k, v := range e.explicit {
		ctx[k] = tmpl.Merge(ctx[k], v)
	}
	return ctx, nil
}

func isExportable(key string, val starlark.Value) bool {
	if key == "" || key[0] == '_' || val == starlark.None {
		return false
	}
	_, callable := val.(starlark.Callable)
	return !callable
}

func (e *Evaluator) createBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"set_variable": starlark.NewBuiltin("set_variable", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var path string
			var value starlark.Value
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &path, &value); err != nil {
				return starlark.None, err
			}
			conv, err := ConvertFromStarlark(value)
			if err != nil {
				return starlark.None, fmt.Errorf("set_variable %q: %w", path, err)
			}
			if err := tmpl.SetPath(e.explicit, path, conv); err != nil {
				return starlark.None, err
			}
			return starlark.None, nil
		}),

		"getenv": starlark.NewBuiltin("getenv", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			var def starlark.Value = starlark.None
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name, &def); err != nil {
				return starlark.None, err
			}
			if v, ok := e.getenv(name); ok {
				return starlark.String(v), nil
			}
			return def, nil
		}),
	}
}

// LoadFile is a convenience wrapper: execute filename and export its context.
func LoadFile(filename string) (tmpl.ObjectValue, error) {
	e := NewEvaluator()
	if err := e.ExecFile(filename, nil); err != nil {
		return nil, err
	}
	return e.Context()
}
