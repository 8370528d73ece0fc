// Package lint checks rendered outputs before they are written. Each kind
// has a cheap structural check; none of them executes the output.
package lint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindNone       Kind = "none"
	KindDockerfile Kind = "dockerfile"
	KindYAML       Kind = "yaml"
	KindJSON       Kind = "json"
	KindShell      Kind = "shell"
)

// Kinds lists the values accepted in a target's lint field.
var Kinds = []Kind{KindNone, KindDockerfile, KindYAML, KindJSON, KindShell}

// Names returns Kinds as strings.
func Names() []string {
	out := make([]string, len(Kinds))
	for i, k := range Kinds {
		out[i] = string(k)
	}
	return out
}

// Detect picks a kind from an output file name.
func Detect(name string) Kind {
	base := filepath.Base(name)
	lower := strings.ToLower(base)
	switch {
	case lower == "dockerfile", strings.HasPrefix(lower, "dockerfile."), strings.HasSuffix(lower, ".dockerfile"):
		return KindDockerfile
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return KindYAML
	case strings.HasSuffix(lower, ".json"):
		return KindJSON
	case strings.HasSuffix(lower, ".sh"), strings.HasSuffix(lower, ".bash"):
		return KindShell
	}
	return KindNone
}

// Result holds non-fatal findings. A failed check is returned as an error
// instead.
type Result struct {
	Warnings []string
}

// Check validates content as kind.
func Check(kind Kind, content string) (Result, error) {
	switch kind {
	case KindNone, "":
		return Result{}, nil
	case KindDockerfile:
		return checkDockerfile(content)
	case KindYAML:
		return Result{}, checkYAML(content)
	case KindJSON:
		return Result{}, checkJSON(content)
	case KindShell:
		return checkShell(content)
	}
	return Result{}, fmt.Errorf("unknown lint kind %q", kind)
}

func checkDockerfile(content string) (Result, error) {
	res, err := parser.Parse(strings.NewReader(content))
	if err != nil {
		return Result{}, fmt.Errorf("dockerfile: %w", err)
	}
	var out Result
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Short)
	}
	// ARG may precede the first FROM; anything else may not.
	for _, child := range res.AST.Children {
		switch strings.ToLower(child.Value) {
		case "arg":
			continue
		case "from":
			return out, nil
		default:
			return out, fmt.Errorf("dockerfile: line %d: %s before FROM", child.StartLine, strings.ToUpper(child.Value))
		}
	}
	return out, fmt.Errorf("dockerfile: no FROM instruction")
}

func checkYAML(content string) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("yaml: %w", err)
		}
	}
}

func checkJSON(content string) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("json: trailing data after document")
	}
	return nil
}

func checkShell(content string) (Result, error) {
	first, _, _ := strings.Cut(content, "\n")
	if !strings.HasPrefix(first, "#!") {
		return Result{}, fmt.Errorf("shell: missing #! line")
	}
	var out Result
	if !strings.Contains(content, "set -e") {
		out.Warnings = append(out.Warnings, "shell: script does not enable errexit (set -e)")
	}
	return out, nil
}
