package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRenderToStdout(t *testing.T) {
	dir := t.TempDir()
	tpl := write(t, dir, "hello.tmpl", "Hello {{name}}!{{#if_loud}} !!{{/if_loud}}")
	ctx := write(t, dir, "ctx.yaml", "name: World\nloud: false\n")

	out, err := runCLI(t, "render", tpl, "--context", ctx, "--set", "loud=yes")
	require.NoError(t, err)
	assert.Equal(t, "Hello World! !!", out)
}

func TestRenderToExecutableFile(t *testing.T) {
	dir := t.TempDir()
	tpl := write(t, dir, "setup.sh.tmpl", "#!/usr/bin/env bash\nset -e\n{{#each DOCKER_SERVICES}}echo {{name}}\n{{/each}}")
	ctx := write(t, dir, "ctx.star", "DOCKER_SERVICES = [{'name': 'mongodb'}, {'name': 'redis'}]\n")
	dst := filepath.Join(dir, "bin", "setup.sh")

	out, err := runCLI(t, "render", tpl, "-c", ctx, "-o", dst, "--executable")
	require.NoError(t, err)
	assert.Empty(t, out)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env bash\nset -e\necho mongodb\necho redis\n", string(b))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestRenderLintFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	tpl := write(t, dir, "run.tmpl", "echo {{name}}\n")
	dst := filepath.Join(dir, "run.sh")

	_, err := runCLI(t, "render", tpl, "--set", "name=x", "-o", dst)
	assert.ErrorContains(t, err, "missing #! line")
	assert.NoFileExists(t, dst)

	_, err = runCLI(t, "render", tpl, "--set", "name=x", "-o", dst, "--lint", "none")
	require.NoError(t, err)
	assert.FileExists(t, dst)
}

func TestRenderErrorFormat(t *testing.T) {
	dir := t.TempDir()
	tpl := write(t, dir, "broken.tmpl", "line one\n  {{missing}}")

	_, err := runCLI(t, "render", tpl)
	require.Error(t, err)
	assert.Equal(t, tpl+`:2:3: render: undefined variable "missing"`, err.Error())
	assert.ErrorIs(t, err, tmpl.ErrUndefined)

	tpl = write(t, dir, "dangling.tmpl", "{{#each x}}{{/if_y}}")
	_, err = runCLI(t, "render", tpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), tpl+":1:12: parse: ")
	assert.ErrorIs(t, err, tmpl.ErrDanglingClose)
}

func TestCheckListsReferences(t *testing.T) {
	dir := t.TempDir()
	good := write(t, dir, "good.tmpl", "{{PROJECT_NAME}}{{#if_docker}}{{#each services}}{{name}}{{/each}}{{/if_docker}}")
	bad := write(t, dir, "bad.tmpl", "{{#if_x}}")

	out, err := runCLI(t, "check", good)
	require.NoError(t, err)
	assert.Equal(t, good+": ok\n  vars: PROJECT_NAME, name\n  flags: docker\n  arrays: services\n", out)

	_, err = runCLI(t, "check", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad+":1:1: parse: ")
	assert.ErrorIs(t, err, tmpl.ErrUnclosedBlock)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	tpl := write(t, dir, "a.tmpl", "hi {{name}}")

	out, err := runCLI(t, "inspect", tpl)
	require.NoError(t, err)
	assert.Contains(t, out, "Sequence")
	assert.Contains(t, out, "Var(name)")

	out, err = runCLI(t, "inspect", "--tokens", tpl)
	require.NoError(t, err)
	assert.Contains(t, out, "1:4\t")
	assert.Contains(t, out, `"name"`)
}

func TestGenerateAndCheck(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "project.yaml", "PROJECT_NAME: api\n")
	write(t, dir, "templates/compose.yaml.tmpl", "name: {{PROJECT_NAME}}\n")
	manifestPath := write(t, dir, "scriptgen.yaml", `
context: [project.yaml]
targets:
  - template: templates/compose.yaml.tmpl
    output: docker-compose.yaml
`)

	out, err := runCLI(t, "generate", "--manifest", manifestPath, "--check")
	assert.ErrorContains(t, err, "out of date")
	assert.Contains(t, out, "stale: ")

	out, err = runCLI(t, "generate", "-m", manifestPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote ")
	b, err := os.ReadFile(filepath.Join(dir, "docker-compose.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: api\n", string(b))

	_, err = runCLI(t, "generate", "-m", manifestPath, "--check")
	require.NoError(t, err)

	_, err = runCLI(t, "generate", "-m", manifestPath, "--check", "--set", "PROJECT_NAME=web")
	assert.ErrorContains(t, err, "out of date")
}

func TestGenerateErrorNamesTemplate(t *testing.T) {
	dir := t.TempDir()
	tplPath := write(t, dir, "t.tmpl", "{{nope}}")
	manifestPath := write(t, dir, "scriptgen.yaml", "targets:\n  - template: t.tmpl\n    output: out.txt\n")

	_, err := runCLI(t, "generate", "-m", manifestPath)
	require.Error(t, err)
	var te *templateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, tplPath+`:1:1: render: undefined variable "nope"`, err.Error())
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "shared/greeting.tmpl", "hi {{who}}")
	cfg := write(t, dir, "scriptgen.config.yaml", "template_dirs: [shared]\nstrict_lint: true\n")

	out, err := runCLI(t, "--config", cfg, "render", "greeting.tmpl", "--set", "who=there")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)

	_, err = runCLI(t, "--config", filepath.Join(dir, "missing.yaml"), "render", "greeting.tmpl")
	assert.ErrorContains(t, err, "loading config")

	bad := write(t, dir, "bad.config.yaml", "templates: [x]\n")
	_, err = runCLI(t, "--config", bad, "render", "greeting.tmpl")
	assert.ErrorContains(t, err, "decoding config file")
}
