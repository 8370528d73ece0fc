// Package source resolves template names to template text.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/scriptgen/pkg/netcache"
)

// Loader returns the source text of a named template.
type Loader interface {
	Load(ctx context.Context, name string) (string, error)
}

type ErrTemplateNotFound struct{ Name string }

func (e ErrTemplateNotFound) Error() string { return "template not found: " + e.Name }

// IsNotFound reports whether err is an ErrTemplateNotFound.
func IsNotFound(err error) bool {
	var nf ErrTemplateNotFound
	return errors.As(err, &nf)
}

type MemoryLoader map[string]string

func (m MemoryLoader) Load(_ context.Context, name string) (string, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return "", ErrTemplateNotFound{name}
}

// FileLoader reads templates from disk. Absolute names are read as is;
// relative names are tried against each directory in Dirs, then against
// the working directory.
type FileLoader struct {
	Dirs []string
}

func (f FileLoader) Load(_ context.Context, name string) (string, error) {
	for _, p := range f.candidates(name) {
		b, err := os.ReadFile(p)
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read template %s: %w", p, err)
		}
	}
	return "", ErrTemplateNotFound{name}
}

// Resolve returns the file Load would read name from.
func (f FileLoader) Resolve(name string) (string, bool) {
	for _, p := range f.candidates(name) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

func (f FileLoader) candidates(name string) []string {
	if filepath.IsAbs(name) {
		return []string{name}
	}
	out := make([]string, 0, len(f.Dirs)+1)
	for _, dir := range f.Dirs {
		out = append(out, filepath.Join(dir, name))
	}
	return append(out, name)
}

// HTTPLoader fetches http(s) templates through a persistent cache.
type HTTPLoader struct {
	Cache *netcache.Cache
}

func (h HTTPLoader) Load(ctx context.Context, name string) (string, error) {
	if !IsURL(name) {
		return "", ErrTemplateNotFound{name}
	}
	if h.Cache == nil {
		return "", fmt.Errorf("fetch template %s: no HTTP cache configured", name)
	}
	path, _, err := h.Cache.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("fetch template %s: %w", name, err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IsURL reports whether name should be fetched over HTTP.
func IsURL(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}

// Resolver is implemented by loaders that read templates from local
// files. Resolve reports the path a name maps to.
type Resolver interface {
	Resolve(name string) (string, bool)
}

// Chain tries each loader in order and returns the first hit. Errors other
// than not-found stop the search.
type Chain []Loader

func (c Chain) Load(ctx context.Context, name string) (string, error) {
	for _, l := range c {
		s, err := l.Load(ctx, name)
		if err == nil {
			return s, nil
		}
		if !IsNotFound(err) {
			return "", err
		}
	}
	return "", ErrTemplateNotFound{name}
}

// Resolve asks each member that is a Resolver, in order.
func (c Chain) Resolve(name string) (string, bool) {
	for _, l := range c {
		if r, ok := l.(Resolver); ok {
			if p, ok := r.Resolve(name); ok {
				return p, true
			}
		}
	}
	return "", false
}

// New returns the standard loader: URLs go through an HTTPLoader backed by
// cache, everything else through a FileLoader over dirs.
func New(dirs []string, cache *netcache.Cache) Loader {
	return Chain{
		HTTPLoader{Cache: cache},
		FileLoader{Dirs: dirs},
	}
}
