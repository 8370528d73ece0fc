// Package generate executes a manifest: it builds the context, renders
// every job, lints the results and only then writes the outputs.
package generate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/scriptgen/pkg/lint"
	"github.com/neurodesk/scriptgen/pkg/manifest"
	"github.com/neurodesk/scriptgen/pkg/project"
	"github.com/neurodesk/scriptgen/pkg/source"
	"github.com/neurodesk/scriptgen/pkg/tmpl"
)

type Options struct {
	Loader source.Loader
	Engine *tmpl.Engine
	Logger *slog.Logger

	// ExtraContext files are loaded after the manifest's own context
	// files; Sets are applied last.
	ExtraContext []string
	Sets         []string

	// StrictLint turns lint warnings into failures.
	StrictLint bool
	// DryRun renders and lints without writing.
	DryRun bool
}

type Generator struct {
	loader     source.Loader
	engine     *tmpl.Engine
	log        *slog.Logger
	extra      []string
	sets       []string
	strictLint bool
	dryRun     bool
}

func New(opts Options) *Generator {
	g := &Generator{
		loader:     opts.Loader,
		engine:     opts.Engine,
		log:        opts.Logger,
		extra:      opts.ExtraContext,
		sets:       opts.Sets,
		strictLint: opts.StrictLint,
		dryRun:     opts.DryRun,
	}
	if g.loader == nil {
		g.loader = source.FileLoader{}
	}
	if g.engine == nil {
		g.engine = tmpl.NewEngine()
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g
}

// Output is one rendered job.
type Output struct {
	Target   string
	Template string
	// Path is relative to the manifest's output root; Dest is the file
	// written.
	Path       string
	Dest       string
	Content    string
	Executable bool
	Skipped    bool
	Warnings   []string
}

// Error ties a failure to the job and template that caused it.
type Error struct {
	Target   string
	Template string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("target %q (%s): %v", e.Target, e.Template, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Context builds the render context for m: manifest context files, extra
// files, manifest set entries, then command-line overrides.
func (g *Generator) Context(m *manifest.Manifest) (tmpl.ObjectValue, error) {
	paths := append(m.ContextPaths(), g.extra...)
	ctx, err := project.LoadAll(paths)
	if err != nil {
		return nil, fmt.Errorf("loading context: %w", err)
	}
	if err := m.ApplySet(ctx); err != nil {
		return nil, err
	}
	if err := project.ApplySets(ctx, g.sets); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Plan renders and lints every job of m without touching the output tree.
// The first failure aborts the plan.
func (g *Generator) Plan(ctx context.Context, m *manifest.Manifest) ([]Output, error) {
	vars, err := g.Context(m)
	if err != nil {
		return nil, err
	}
	jobs, err := m.Jobs(nil)
	if err != nil {
		return nil, err
	}
	root := m.Root()
	outputs := make([]Output, 0, len(jobs))
	seen := make(map[string]string, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := g.render(ctx, job, vars)
		if err != nil {
			return nil, &Error{Target: job.Target, Template: job.Template, Err: err}
		}
		if out.Skipped {
			g.log.Debug("target skipped", "target", job.Target, "when", job.When)
			outputs = append(outputs, out)
			continue
		}
		if prev, ok := seen[out.Path]; ok {
			return nil, &Error{Target: job.Target, Template: job.Template, Err: fmt.Errorf("output %s already produced by %s", out.Path, prev)}
		}
		seen[out.Path] = job.Target
		out.Dest = filepath.Join(root, out.Path)
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (g *Generator) render(ctx context.Context, job manifest.Job, vars tmpl.ObjectValue) (Output, error) {
	out := Output{Target: job.Target, Template: job.Template, Executable: job.Executable}
	if job.When != "" {
		on, err := enabled(vars, job.When)
		if err != nil {
			return out, err
		}
		if !on {
			out.Skipped = true
			return out, nil
		}
	}
	path, err := job.OutputPath(vars)
	if err != nil {
		return out, err
	}
	out.Path = path

	src, err := g.loader.Load(ctx, job.Template)
	if err != nil {
		return out, err
	}
	content, err := g.engine.RenderTemplate(src, vars)
	if err != nil {
		return out, err
	}
	out.Content = content

	res, err := lint.Check(job.LintKind(path), content)
	if err != nil {
		return out, fmt.Errorf("lint %s: %w", path, err)
	}
	out.Warnings = res.Warnings
	if g.strictLint && len(res.Warnings) > 0 {
		return out, fmt.Errorf("lint %s: %s", path, strings.Join(res.Warnings, "; "))
	}
	return out, nil
}

// enabled applies the renderer's flag rules to a target's when field.
func enabled(vars tmpl.ObjectValue, flag string) (bool, error) {
	v, ok := tmpl.Resolve(tmpl.NewScope(vars), flag)
	if !ok {
		return false, nil
	}
	on, ok := tmpl.Truth(v)
	if !ok {
		return false, fmt.Errorf("when %q: %s value is not a boolean", flag, v.Kind())
	}
	return on, nil
}

// Run plans m and writes the outputs. Nothing is written unless every job
// rendered and linted cleanly.
func (g *Generator) Run(ctx context.Context, m *manifest.Manifest) ([]Output, error) {
	outputs, err := g.Plan(ctx, m)
	if err != nil {
		return nil, err
	}
	for _, out := range outputs {
		for _, w := range out.Warnings {
			g.log.Warn("lint", "output", out.Path, "warning", w)
		}
		if out.Skipped || g.dryRun {
			continue
		}
		if err := WriteFile(out.Dest, strings.NewReader(out.Content), out.Executable); err != nil {
			return nil, fmt.Errorf("writing %s: %w", out.Dest, err)
		}
		g.log.Info("wrote output", "target", out.Target, "path", out.Dest)
	}
	return outputs, nil
}

// WriteFile writes r to dst through a temporary file and a rename, so
// readers never see a partial file.
func WriteFile(dst string, r io.Reader, exec bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if exec {
		mode = 0o755
	}
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, mode); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// Diff reports outputs whose content differs from what is on disk.
func Diff(outputs []Output) ([]string, error) {
	var stale []string
	for _, out := range outputs {
		if out.Skipped {
			continue
		}
		have, err := os.ReadFile(out.Dest)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err != nil || !bytes.Equal(have, []byte(out.Content)) {
			stale = append(stale, out.Dest)
		}
	}
	return stale, nil
}
