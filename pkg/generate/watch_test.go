package generate

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/neurodesk/scriptgen/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalesces(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string
	d := NewDebouncer(30*time.Millisecond, 100, func(paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
	})
	defer d.Stop()

	d.Add("a")
	d.Add("b")
	d.Add("a")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b"}, batches[0])
	mu.Unlock()
}

func TestDebouncerMaxBatch(t *testing.T) {
	flushed := make(chan []string, 1)
	d := NewDebouncer(time.Hour, 2, func(paths []string) { flushed <- paths })
	defer d.Stop()

	d.Add("a")
	d.Add("b")
	select {
	case paths := <-flushed:
		assert.Len(t, paths, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("batch limit should flush immediately")
	}

	d.Stop()
	d.Add("c")
	select {
	case paths := <-flushed:
		t.Fatalf("stopped debouncer flushed %v", paths)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchRerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, projectTree())

	runs := make(chan []Output, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(Options{}).Watch(ctx, filepath.Join(dir, "scriptgen.yaml"), WatchOptions{
			Debounce: 20 * time.Millisecond,
			OnRun: func(outputs []Output, err error) {
				if err == nil {
					runs <- outputs
				}
			},
		})
	}()

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not happen")
	}

	dockerfile := filepath.Join(dir, "out", "Dockerfile")
	b, err := os.ReadFile(dockerfile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "project=api")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.yaml"), []byte("PROJECT_NAME: web\ndocker_required: true\nDOCKER_SERVICES: []\n"), 0o644))

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(dockerfile)
		return err == nil && string(b) == "FROM alpine\nLABEL project=web\n"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchRelevance(t *testing.T) {
	w := &watchState{
		opts:         WatchOptions{Ignore: DefaultIgnore},
		manifestPath: "/p/scriptgen.yaml",
		sources:      map[string]bool{"/p/project.yaml": true},
		outputs:      map[string]bool{"/p/out/run.sh": true},
		globs:        []string{"ci/**/*.tmpl"},
	}
	assert.True(t, w.relevant("/p/scriptgen.yaml"))
	assert.True(t, w.relevant("/p/project.yaml"))
	assert.True(t, w.relevant("/p/ci/new/deploy.yaml.tmpl"))
	assert.False(t, w.relevant("/p/out/run.sh"))
	assert.False(t, w.relevant("/p/out/run.sh.tmp"))
	assert.False(t, w.relevant("/p/.git/index"))
	assert.False(t, w.relevant("/p/notes.txt"))
}

func TestWatchTracksTemplatesInSearchDirs(t *testing.T) {
	dir := t.TempDir()
	shared := t.TempDir()
	writeTree(t, shared, map[string]string{"setup.sh.tmpl": "#!/bin/sh\nset -e\necho v1\n"})
	writeTree(t, dir, map[string]string{
		"scriptgen.yaml": "targets:\n  - template: setup.sh.tmpl\n    output: setup.sh\n",
	})

	runs := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	g := New(Options{Loader: source.FileLoader{Dirs: []string{shared}}})
	go func() {
		done <- g.Watch(ctx, filepath.Join(dir, "scriptgen.yaml"), WatchOptions{
			Debounce: 20 * time.Millisecond,
			OnRun: func(_ []Output, err error) {
				if err == nil {
					runs <- struct{}{}
				}
			},
		})
	}()

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not happen")
	}

	out := filepath.Join(dir, "setup.sh")
	require.NoError(t, os.WriteFile(filepath.Join(shared, "setup.sh.tmpl"), []byte("#!/bin/sh\nset -e\necho v2\n"), 0o644))
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(out)
		return err == nil && string(b) == "#!/bin/sh\nset -e\necho v2\n"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
