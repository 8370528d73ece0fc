// Package manifest describes a generation run: which context files to
// load, which templates to render, and where each output goes.
package manifest

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/neurodesk/scriptgen/pkg/lint"
	"github.com/neurodesk/scriptgen/pkg/source"
	"github.com/neurodesk/scriptgen/pkg/tmpl"
	v "github.com/neurodesk/scriptgen/pkg/validator"
	"gopkg.in/yaml.v3"
)

// TemplateSuffix is stripped from glob matches to form output names.
const TemplateSuffix = ".tmpl"

type Target struct {
	Name       string              `yaml:"name,omitempty"`
	Template   string              `yaml:"template,omitempty"`
	Glob       string              `yaml:"glob,omitempty"`
	Output     tmpl.TemplateString `yaml:"output"`
	Executable bool                `yaml:"executable,omitempty"`
	When       string              `yaml:"when,omitempty"`
	Lint       string              `yaml:"lint,omitempty"`
}

func (t Target) Validate() error {
	var sourceErr error
	switch {
	case t.Template == "" && t.Glob == "":
		sourceErr = fmt.Errorf("one of template or glob is required")
	case t.Template != "" && t.Glob != "":
		sourceErr = fmt.Errorf("template and glob are mutually exclusive")
	}
	return v.All(
		sourceErr,
		v.HasNoTemplate(t.Template, "template"),
		v.HasNoTemplate(t.Glob, "glob"),
		validGlob(t.Glob),
		v.NotEmpty(string(t.Output), "output"),
		t.Output.Validate(),
		literalOutput(t.Output),
		optional(t.When, func() error { return v.Identifier(t.When, "when") }),
		optional(t.Lint, func() error { return v.MatchesAllowed(t.Lint, lint.Names(), "lint") }),
	)
}

func optional(field string, check func() error) error {
	if field == "" {
		return nil
	}
	return check()
}

func validGlob(pattern string) error {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("glob %q is not a valid pattern", pattern)
	}
	return nil
}

// literalOutput checks outputs with no tags up front; templated outputs
// are checked again after rendering.
func literalOutput(out tmpl.TemplateString) error {
	if out == "" || strings.Contains(string(out), "{{") {
		return nil
	}
	return v.RelativePath(string(out), "output")
}

func (t Target) label(i int) string {
	if t.Name != "" {
		return t.Name
	}
	if t.Template != "" {
		return t.Template
	}
	if t.Glob != "" {
		return t.Glob
	}
	return fmt.Sprintf("targets[%d]", i)
}

type Manifest struct {
	Context   []string       `yaml:"context,omitempty"`
	Set       map[string]any `yaml:"set,omitempty"`
	OutputDir string         `yaml:"output_dir,omitempty"`
	Targets   []Target       `yaml:"targets"`

	// Dir is the directory relative paths are resolved against. Load sets
	// it to the manifest's directory.
	Dir string `yaml:"-"`
}

func (m *Manifest) Validate() error {
	var literal []string
	for _, t := range m.Targets {
		if t.Glob == "" && !strings.Contains(string(t.Output), "{{") {
			literal = append(literal, filepath.Clean(string(t.Output)))
		}
	}
	return v.All(
		v.Map(m.Context, func(item, key string) error {
			return v.All(v.NotEmpty(item, key), v.HasNoTemplate(item, key))
		}, "context"),
		v.MapDict(m.Set, func(key string, _ any) error {
			return v.DottedPath(key, "key")
		}, "set"),
		v.HasNoTemplate(m.OutputDir, "output_dir"),
		targetsPresent(m.Targets),
		eachTarget(m.Targets),
		v.NoDuplicates(literal, "target outputs"),
	)
}

func targetsPresent(targets []Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("targets must not be empty")
	}
	return nil
}

// labeledTarget reports a target's failures under its label.
type labeledTarget struct {
	Target
	label string
}

func (t labeledTarget) Validate() error {
	if err := t.Target.Validate(); err != nil {
		return fmt.Errorf("target %q: %w", t.label, err)
	}
	return nil
}

func eachTarget(targets []Target) error {
	labeled := make([]labeledTarget, len(targets))
	for i, t := range targets {
		labeled[i] = labeledTarget{Target: t, label: t.label(i)}
	}
	return v.Each(labeled)
}

// Decode reads and validates a manifest. Unknown keys are rejected.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || source.IsURL(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ContextPaths returns the context files resolved against Dir.
func (m *Manifest) ContextPaths() []string {
	out := make([]string, len(m.Context))
	for i, p := range m.Context {
		out[i] = m.resolve(p)
	}
	return out
}

// Root returns the directory outputs are written under.
func (m *Manifest) Root() string {
	if m.OutputDir == "" {
		return m.Dir
	}
	return m.resolve(m.OutputDir)
}

// ApplySet writes the manifest's set entries into ctx in key order.
func (m *Manifest) ApplySet(ctx tmpl.ObjectValue) error {
	keys := make([]string, 0, len(m.Set))
	for k := range m.Set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if m.Set[k] == nil {
			continue
		}
		val, err := tmpl.FromGo(m.Set[k])
		if err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
		if err := tmpl.SetPath(ctx, k, val); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// Job is one template to render into one output.
type Job struct {
	Target string
	// Template is the name handed to a source.Loader.
	Template string
	// Output is rendered against the context to get the path under
	// Manifest.Root. Suffix, when set, is joined to the rendered value.
	Output     tmpl.TemplateString
	Suffix     string
	Executable bool
	When       string
	Lint       lint.Kind
}

// OutputPath renders the job's output path relative to the output root.
func (j Job) OutputPath(ctx tmpl.Value) (string, error) {
	out, err := j.Output.Render(ctx)
	if err != nil {
		return "", fmt.Errorf("output path: %w", err)
	}
	if j.Suffix != "" {
		out = filepath.Join(out, filepath.FromSlash(j.Suffix))
	}
	if err := v.RelativePath(out, "output"); err != nil {
		return "", err
	}
	return filepath.Clean(out), nil
}

// LintKind is the kind to check the output with: the target's explicit
// choice, or one detected from the output name.
func (j Job) LintKind(output string) lint.Kind {
	if j.Lint != "" {
		return j.Lint
	}
	return lint.Detect(output)
}

// Jobs expands targets into jobs. Glob targets are matched against fsys,
// which should be rooted at Dir; pass nil to use os.DirFS(Dir).
func (m *Manifest) Jobs(fsys fs.FS) ([]Job, error) {
	if fsys == nil {
		fsys = os.DirFS(m.dirOrDot())
	}
	var jobs []Job
	for i, t := range m.Targets {
		base := Job{
			Target:     t.label(i),
			Output:     t.Output,
			Executable: t.Executable,
			When:       t.When,
			Lint:       lint.Kind(t.Lint),
		}
		if t.Template != "" {
			base.Template = m.templateName(fsys, t.Template)
			jobs = append(jobs, base)
			continue
		}
		matches, err := doublestar.Glob(fsys, t.Glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", base.Target, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("target %q: glob %q matched no files", base.Target, t.Glob)
		}
		root, _ := doublestar.SplitPattern(t.Glob)
		slices.Sort(matches)
		for _, match := range matches {
			job := base
			job.Template = m.resolve(filepath.FromSlash(match))
			rel := match
			if root != "." {
				rel = strings.TrimPrefix(match, root+"/")
			}
			job.Suffix = strings.TrimSuffix(rel, TemplateSuffix)
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// templateName resolves a template relative to Dir when it exists there.
// Otherwise the name is kept for the loader to search its own directories.
func (m *Manifest) templateName(fsys fs.FS, name string) string {
	if filepath.IsAbs(name) || source.IsURL(name) {
		return name
	}
	if _, err := fs.Stat(fsys, filepath.ToSlash(filepath.Clean(name))); err != nil {
		return name
	}
	return m.resolve(name)
}

// Sources lists the local files a run reads: context files and templates.
// resolve, when set, maps a template name to the file it is loaded from.
// Watch mode uses it to decide which events matter.
func (m *Manifest) Sources(jobs []Job, resolve func(string) string) []string {
	var out []string
	for _, p := range m.ContextPaths() {
		if !source.IsURL(p) {
			out = append(out, p)
		}
	}
	for _, j := range jobs {
		if source.IsURL(j.Template) {
			continue
		}
		if resolve != nil {
			out = append(out, resolve(j.Template))
		} else {
			out = append(out, j.Template)
		}
	}
	return out
}

func (m *Manifest) dirOrDot() string {
	if m.Dir == "" {
		return "."
	}
	return m.Dir
}
