package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/neurodesk/scriptgen/pkg/lint"
	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
context:
  - project.yaml
set:
  db.port: 5432
  docker_required: true
output_dir: out
targets:
  - name: setup
    template: templates/setup.sh.tmpl
    output: scripts/setup-{{PROJECT_NAME}}.sh
    executable: true
  - template: templates/Dockerfile.tmpl
    output: Dockerfile
    when: docker_required
  - glob: "ci/**/*.tmpl"
    output: ci
    lint: yaml
`

func TestDecodeSample(t *testing.T) {
	m, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"project.yaml"}, m.Context)
	assert.Equal(t, "out", m.OutputDir)
	require.Len(t, m.Targets, 3)
	assert.True(t, m.Targets[0].Executable)
	assert.Equal(t, "docker_required", m.Targets[1].When)

	ctx := tmpl.ObjectValue{"db": tmpl.ObjectValue{"host": tmpl.StringValue("localhost")}}
	require.NoError(t, m.ApplySet(ctx))
	assert.Equal(t, tmpl.IntValue(5432), ctx["db"].(tmpl.ObjectValue)["port"])
	assert.Equal(t, tmpl.StringValue("localhost"), ctx["db"].(tmpl.ObjectValue)["host"])
	assert.Equal(t, tmpl.BoolValue(true), ctx["docker_required"])
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "targets:\n  - template: a\n    output: b\n    mode: 0755\n", "field mode not found"},
		{"no targets", "context: [a.yaml]\n", "targets must not be empty"},
		{"no source", "targets:\n  - output: b\n", "one of template or glob"},
		{"both sources", "targets:\n  - template: a\n    glob: '*.tmpl'\n    output: b\n", "mutually exclusive"},
		{"bad output template", "targets:\n  - template: a\n    output: '{{#if_x}}b'\n", "invalid template"},
		{"absolute output", "targets:\n  - template: a\n    output: /etc/motd\n", "must be relative"},
		{"escaping output", "targets:\n  - template: a\n    output: ../b\n", "must not leave"},
		{"bad when", "targets:\n  - template: a\n    output: b\n    when: 'not a flag'\n", "identifier"},
		{"bad lint", "targets:\n  - template: a\n    output: b\n    lint: toml\n", "lint must be one of"},
		{"bad glob", "targets:\n  - glob: 'a/[b'\n    output: b\n", "not a valid pattern"},
		{"duplicate outputs", "targets:\n  - template: a\n    output: b\n  - template: c\n    output: ./b\n", "duplicate"},
		{"bad set key", "set:\n  'a..b': 1\ntargets:\n  - template: a\n    output: b\n", "dotted path"},
		{"templated context", "context: ['{{x}}.yaml']\ntargets:\n  - template: a\n    output: b\n", "template tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, m.Dir)
	assert.Equal(t, []string{filepath.Join(dir, "project.yaml")}, m.ContextPaths())
	assert.Equal(t, filepath.Join(dir, "out"), m.Root())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateNamesFailingTarget(t *testing.T) {
	_, err := Decode(strings.NewReader("targets:\n  - template: a\n    output: b\n  - name: deploy\n    template: c\n    output: /abs\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `item 1: target "deploy": output must be relative`)

	_, err = Decode(strings.NewReader("targets:\n  - template: a\n    output: b\n    lint: toml\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `item 0: target "a":`)
}

func TestJobsExpandsGlobs(t *testing.T) {
	m, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	m.Dir = "proj"

	fsys := fstest.MapFS{
		"templates/setup.sh.tmpl":   {Data: []byte("#!/bin/sh\n")},
		"ci/build.yaml.tmpl":        {Data: []byte("steps: []")},
		"ci/nested/deploy.yml.tmpl": {Data: []byte("env: {{env}}")},
		"ci/README.md":              {Data: []byte("not a template")},
	}
	jobs, err := m.Jobs(fsys)
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	assert.Equal(t, "setup", jobs[0].Target)
	assert.Equal(t, filepath.Join("proj", "templates", "setup.sh.tmpl"), jobs[0].Template)
	assert.Equal(t, "templates/Dockerfile.tmpl", jobs[1].Target)
	// Not under the manifest dir, so left for the loader's search path.
	assert.Equal(t, "templates/Dockerfile.tmpl", jobs[1].Template)

	assert.Equal(t, filepath.Join("proj", "ci", "build.yaml.tmpl"), jobs[2].Template)
	assert.Equal(t, "build.yaml", jobs[2].Suffix)
	assert.Equal(t, "nested/deploy.yml", jobs[3].Suffix)
	assert.Equal(t, lint.KindYAML, jobs[3].Lint)

	out, err := jobs[3].OutputPath(tmpl.ObjectValue{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("ci", "nested", "deploy.yml"), out)

	sources := m.Sources(jobs, nil)
	assert.Contains(t, sources, filepath.Join("proj", "project.yaml"))
	assert.Contains(t, sources, filepath.Join("proj", "ci", "build.yaml.tmpl"))
	assert.Contains(t, sources, "templates/Dockerfile.tmpl")

	sources = m.Sources(jobs, func(name string) string { return filepath.Join("/shared", name) })
	assert.Contains(t, sources, filepath.Join("/shared", "templates/Dockerfile.tmpl"))
	assert.Contains(t, sources, filepath.Join("proj", "project.yaml"))
}

func TestJobsEmptyGlob(t *testing.T) {
	m, err := Decode(strings.NewReader("targets:\n  - glob: 'x/*.tmpl'\n    output: out\n"))
	require.NoError(t, err)
	_, err = m.Jobs(fstest.MapFS{})
	assert.ErrorContains(t, err, "matched no files")
}

func TestJobOutputPath(t *testing.T) {
	j := Job{Output: "scripts/{{name}}.sh"}

	out, err := j.OutputPath(tmpl.ObjectValue{"name": tmpl.StringValue("setup")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("scripts", "setup.sh"), out)
	assert.Equal(t, lint.KindShell, j.LintKind(out))

	_, err = j.OutputPath(tmpl.ObjectValue{"name": tmpl.StringValue("../../etc/x")})
	assert.ErrorContains(t, err, "must not leave")

	_, err = j.OutputPath(tmpl.ObjectValue{})
	assert.ErrorIs(t, err, tmpl.ErrUndefined)
}
