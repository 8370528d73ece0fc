// Package validator holds small composable checks used by Validate methods.
// Each check returns nil or a plain error naming the offending field; All
// returns the first failure.
package validator

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

type Validatable interface {
	Validate() error
}

func Each[T Validatable](items []T) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func Map[T any](items []T, f func(T, string) error, description string) error {
	for i, item := range items {
		if err := f(item, fmt.Sprintf("%s[%d]", description, i)); err != nil {
			return err
		}
	}
	return nil
}

// MapDict applies f to every entry in key order so the reported failure is
// stable between runs.
func MapDict[T any](items map[string]T, f func(string, T) error, description string) error {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := f(key, items[key]); err != nil {
			return fmt.Errorf("%s[%s]: %w", description, key, err)
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func NoDuplicates[T comparable](slice []T, description string) error {
	seen := make(map[T]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

// HasNoTemplate rejects fields that are taken literally but contain
// template tags.
func HasNoTemplate(field string, description string) error {
	if strings.Contains(field, "{{") {
		return fmt.Errorf("%s must not contain template tags", description)
	}
	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Identifier checks the names usable as flags and variables in templates.
func Identifier(field, description string) error {
	if !identRe.MatchString(field) {
		return fmt.Errorf("%s must be an identifier ([A-Za-z_][A-Za-z0-9_-]*), got %q", description, field)
	}
	return nil
}

// DottedPath checks a context path such as db.host.
func DottedPath(field, description string) error {
	for _, seg := range strings.Split(field, ".") {
		if !identRe.MatchString(seg) {
			return fmt.Errorf("%s must be a dotted path of identifiers, got %q", description, field)
		}
	}
	return nil
}

// RelativePath rejects absolute paths and paths escaping their base
// directory.
func RelativePath(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	if filepath.IsAbs(field) {
		return fmt.Errorf("%s must be relative, got %q", description, field)
	}
	clean := filepath.Clean(field)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s must not leave the output directory, got %q", description, field)
	}
	return nil
}
