// Package tmpl renders the placeholder syntax used by the project setup
// templates: {{name}} variables, {{#if_flag}} conditionals and
// {{#each list}} loops with {{this}} and {{@index}} bindings.
package tmpl

import (
	"log/slog"
	"sync"
)

// Template is a parsed template, safe to render concurrently.
type Template struct {
	Source string
	Root   *SequenceNode
}

// Render renders the template against ctx, which must be an ObjectValue
// or nil.
func (t *Template) Render(ctx Value) (string, error) {
	return RenderRoot(t.Root, ctx)
}

// Compile lexes and parses source without caching.
func Compile(source string) (*Template, error) {
	tokens, err := Lex(source)
	if err != nil {
		return nil, err
	}
	root, err := Parse(tokens)
	if err != nil {
		return nil, err
	}
	return &Template{Source: source, Root: root}, nil
}

// cacheEntry is written exactly once, by whichever caller wins the
// LoadOrStore race; later callers wait on once and read the result.
type cacheEntry struct {
	once sync.Once
	tpl  *Template
	err  error
}

// Engine renders templates and memoizes parse results by source text.
// The cache is append-only and never evicts.
type Engine struct {
	cache   sync.Map // string -> *cacheEntry
	noCache bool
	log     *slog.Logger
}

type Option func(*Engine)

// WithCache enables or disables the parse cache. Enabled by default.
func WithCache(enabled bool) Option {
	return func(e *Engine) { e.noCache = !enabled }
}

// WithLogger sets the logger used for debug diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Parse returns the parsed template for source, from cache when possible.
func (e *Engine) Parse(source string) (*Template, error) {
	if e.noCache {
		return Compile(source)
	}
	v, loaded := e.cache.LoadOrStore(source, &cacheEntry{})
	entry := v.(*cacheEntry)
	entry.once.Do(func() {
		entry.tpl, entry.err = Compile(source)
	})
	if loaded {
		e.log.Debug("template cache hit", "bytes", len(source))
	} else {
		e.log.Debug("template cache miss", "bytes", len(source), "ok", entry.err == nil)
	}
	return entry.tpl, entry.err
}

// RenderTemplate lexes, parses and renders source against ctx. The first
// error from any stage is returned unchanged.
func (e *Engine) RenderTemplate(source string, ctx Value) (string, error) {
	tpl, err := e.Parse(source)
	if err != nil {
		return "", err
	}
	return tpl.Render(ctx)
}

// Len reports the number of cached sources.
func (e *Engine) Len() int {
	n := 0
	e.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

var defaultEngine = NewEngine()

// RenderString renders source with the package-level engine.
func RenderString(source string, ctx Value) (string, error) {
	return defaultEngine.RenderTemplate(source, ctx)
}
