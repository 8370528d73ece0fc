// Package project assembles the render context for a run from context
// files and command-line overrides.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/scriptgen/pkg/starlark"
	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"gopkg.in/yaml.v3"
)

// Load reads one context file. The format follows the extension: .yaml,
// .yml and .json are decoded as YAML, .star is executed as Starlark.
func Load(path string) (tmpl.ObjectValue, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		ctx, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return ctx, nil
	case ".star":
		ctx, err := starlark.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return ctx, nil
	default:
		return nil, fmt.Errorf("%s: unsupported context format %q", path, ext)
	}
}

// Decode parses a YAML or JSON document whose root is a mapping. An empty
// document yields an empty context.
func Decode(data []byte) (tmpl.ObjectValue, error) {
	var raw any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return tmpl.ObjectValue{}, nil
		}
		return nil, err
	}
	if raw == nil {
		return tmpl.ObjectValue{}, nil
	}
	v, err := tmpl.FromGo(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(tmpl.ObjectValue)
	if !ok {
		return nil, fmt.Errorf("context root must be a mapping, got %s", v.Kind())
	}
	return obj, nil
}

// LoadAll loads paths in order and merges them; later files win key by key.
func LoadAll(paths []string) (tmpl.ObjectValue, error) {
	ctx := tmpl.ObjectValue{}
	for _, path := range paths {
		next, err := Load(path)
		if err != nil {
			return nil, err
		}
		ctx = tmpl.Merge(ctx, next).(tmpl.ObjectValue)
	}
	return ctx, nil
}

// ParseSet splits a key=value override. The value is read as a YAML scalar
// or flow collection, so count=3 yields an integer and tags=[a,b] an array;
// an empty value is the empty string.
func ParseSet(expr string) (string, tmpl.Value, error) {
	key, raw, ok := strings.Cut(expr, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid override %q: want key=value", expr)
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return "", nil, fmt.Errorf("invalid override %q: %w", expr, err)
	}
	if decoded == nil {
		return key, tmpl.StringValue(raw), nil
	}
	v, err := tmpl.FromGo(decoded)
	if err != nil {
		return "", nil, fmt.Errorf("invalid override %q: %w", expr, err)
	}
	return key, v, nil
}

// ApplySets writes each key=value override into ctx.
func ApplySets(ctx tmpl.ObjectValue, sets []string) error {
	for _, expr := range sets {
		key, v, err := ParseSet(expr)
		if err != nil {
			return err
		}
		if err := tmpl.SetPath(ctx, key, v); err != nil {
			return fmt.Errorf("override %q: %w", expr, err)
		}
	}
	return nil
}

// Build loads the context files and applies overrides on top.
func Build(paths, sets []string) (tmpl.ObjectValue, error) {
	ctx, err := LoadAll(paths)
	if err != nil {
		return nil, err
	}
	if err := ApplySets(ctx, sets); err != nil {
		return nil, err
	}
	return ctx, nil
}
