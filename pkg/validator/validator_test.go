package validator

import (
	"errors"
	"strings"
	"testing"
)

type item struct{ name string }

func (i item) Validate() error { return NotEmpty(i.name, "name") }

func TestAllReturnsFirstError(t *testing.T) {
	first := errors.New("first")
	if err := All(nil, first, errors.New("second")); err != first {
		t.Fatalf("got %v", err)
	}
	if err := All(nil, nil); err != nil {
		t.Fatalf("got %v", err)
	}
}

func TestEachAndMap(t *testing.T) {
	err := Each([]item{{"a"}, {""}})
	if err == nil || !strings.HasPrefix(err.Error(), "item 1:") {
		t.Fatalf("got %v", err)
	}
	err = Map([]string{"ok", "{{x}}"}, HasNoTemplate, "context")
	if err == nil || !strings.Contains(err.Error(), "context[1]") {
		t.Fatalf("got %v", err)
	}
}

func TestMapDictIsOrdered(t *testing.T) {
	seen := []string{}
	err := MapDict(map[string]int{"b": 2, "a": 1, "c": 3}, func(k string, v int) error {
		seen = append(seen, k)
		if v >= 2 {
			return errors.New("too big")
		}
		return nil
	}, "set")
	if err == nil || err.Error() != "set[b]: too big" {
		t.Fatalf("got %v", err)
	}
	if strings.Join(seen, "") != "ab" {
		t.Fatalf("visited %v", seen)
	}
}

func TestChecks(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"no duplicates", NoDuplicates([]string{"a", "b"}, "outputs"), false},
		{"duplicates", NoDuplicates([]string{"a", "a"}, "outputs"), true},
		{"allowed", MatchesAllowed("shell", []string{"shell", "yaml"}, "lint"), false},
		{"not allowed", MatchesAllowed("toml", []string{"shell", "yaml"}, "lint"), true},
		{"identifier", Identifier("docker_required", "when"), false},
		{"identifier dash", Identifier("use-tls", "when"), false},
		{"identifier digit", Identifier("1x", "when"), true},
		{"dotted", DottedPath("db.host", "set"), false},
		{"dotted empty segment", DottedPath("db..host", "set"), true},
		{"relative", RelativePath("scripts/run.sh", "output"), false},
		{"absolute", RelativePath("/etc/passwd", "output"), true},
		{"escape", RelativePath("../out", "output"), true},
		{"inner dots", RelativePath("a/../b", "output"), false},
		{"no template", HasNoTemplate("plain", "glob"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", tt.err, tt.wantErr)
			}
		})
	}
}
