package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/neurodesk/scriptgen/pkg/manifest"
	"github.com/neurodesk/scriptgen/pkg/source"
)

type WatchOptions struct {
	// Debounce is how long the tree must be quiet before a re-run.
	Debounce time.Duration
	// Ignore holds doublestar patterns matched against paths relative to
	// the manifest's directory.
	Ignore []string
	// OnRun, when set, is called after every run.
	OnRun func([]Output, error)
}

// DefaultIgnore is used when WatchOptions.Ignore is empty.
var DefaultIgnore = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.tmp",
	"**/*.swp",
	"**/*~",
}

type watchState struct {
	gen          *Generator
	opts         WatchOptions
	fsw          *fsnotify.Watcher
	manifestPath string
	watched      map[string]bool
	sources      map[string]bool
	outputs      map[string]bool
	globs        []string
}

// Watch runs the manifest at manifestPath once, then again whenever one of
// its inputs changes, until ctx is cancelled. Runs happen one at a time on
// the calling goroutine; failures are logged and reported to OnRun, and
// never end the watch.
func (g *Generator) Watch(ctx context.Context, manifestPath string, opts WatchOptions) error {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if len(opts.Ignore) == 0 {
		opts.Ignore = DefaultIgnore
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w := &watchState{
		gen:          g,
		opts:         opts,
		fsw:          fsw,
		manifestPath: abs,
		watched:      map[string]bool{},
	}
	if err := w.add(filepath.Dir(abs)); err != nil {
		return err
	}

	trigger := make(chan struct{}, 1)
	deb := NewDebouncer(opts.Debounce, 100, func([]string) {
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	defer deb.Stop()

	w.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			g.log.Debug("file event", "path", event.Name, "op", event.Op.String())
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.ignored(event.Name) {
					_ = w.walk(event.Name)
				}
			}
			if w.relevant(event.Name) {
				deb.Add(event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			g.log.Warn("watch error", "error", err)
		case <-trigger:
			w.run(ctx)
		}
	}
}

func (w *watchState) run(ctx context.Context) {
	outputs, err := w.runOnce(ctx)
	if err != nil {
		w.gen.log.Error("generate failed", "manifest", w.manifestPath, "error", err)
	} else {
		w.gen.log.Info("generate finished", "manifest", w.manifestPath, "outputs", len(outputs))
	}
	if w.opts.OnRun != nil {
		w.opts.OnRun(outputs, err)
	}
}

func (w *watchState) runOnce(ctx context.Context) ([]Output, error) {
	m, err := manifest.Load(w.manifestPath)
	if err != nil {
		return nil, err
	}
	if jobs, err := m.Jobs(nil); err == nil {
		w.track(m, jobs)
	}
	outputs, err := w.gen.Run(ctx, m)
	if err != nil {
		return nil, err
	}
	w.outputs = make(map[string]bool, len(outputs))
	for _, out := range outputs {
		if out.Dest != "" {
			w.outputs[filepath.Clean(out.Dest)] = true
		}
	}
	return outputs, nil
}

// track records which paths feed the manifest and makes sure their
// directories are watched.
func (w *watchState) track(m *manifest.Manifest, jobs []manifest.Job) {
	w.sources = map[string]bool{}
	for _, p := range append(m.Sources(jobs, w.gen.templatePath), w.gen.extra...) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		w.sources[p] = true
		_ = w.add(filepath.Dir(p))
	}
	w.globs = w.globs[:0]
	for _, t := range m.Targets {
		if t.Glob == "" {
			continue
		}
		w.globs = append(w.globs, t.Glob)
		base, _ := doublestar.SplitPattern(t.Glob)
		_ = w.walk(filepath.Join(m.Dir, filepath.FromSlash(base)))
	}
}

// templatePath maps a template name to the file the loader reads it from.
func (g *Generator) templatePath(name string) string {
	if r, ok := g.loader.(source.Resolver); ok {
		if p, ok := r.Resolve(name); ok {
			return p
		}
	}
	return name
}

func (w *watchState) add(dir string) error {
	if w.watched[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.watched[dir] = true
	return nil
}

func (w *watchState) walk(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.add(path); err != nil {
			w.gen.log.Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// rel returns path relative to the manifest directory in slash form.
func (w *watchState) rel(path string) string {
	rel, err := filepath.Rel(filepath.Dir(w.manifestPath), path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *watchState) ignored(path string) bool {
	rel := w.rel(path)
	for _, pattern := range w.opts.Ignore {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	for _, seg := range strings.Split(rel, "/") {
		if len(seg) > 1 && seg[0] == '.' && seg != ".." {
			return true
		}
	}
	return false
}

func (w *watchState) relevant(path string) bool {
	path = filepath.Clean(path)
	if w.ignored(path) || w.outputs[path] {
		return false
	}
	if path == w.manifestPath || w.sources[path] {
		return true
	}
	rel := w.rel(path)
	for _, g := range w.globs {
		if match, _ := doublestar.Match(g, rel); match {
			return true
		}
	}
	return false
}
