package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/renato0307/kscope/internal/k8s"
)

// globFilter is an immutable compiled name filter. The zero value matches
// everything.
type globFilter struct {
	pattern string
	g       glob.Glob
}

func compileGlob(pattern string) (*globFilter, error) {
	if pattern == "" {
		return &globFilter{}, nil
	}
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	return &globFilter{pattern: pattern, g: g}, nil
}

func (f *globFilter) match(name string) bool {
	if f.g == nil {
		return true
	}
	return f.g.Match(strings.ToLower(name))
}

// apply returns a new slice with the items whose name matches, in their
// original order
func (f *globFilter) apply(items []k8s.Item) []k8s.Item {
	if f.g == nil {
		return slices.Clone(items)
	}
	out := make([]k8s.Item, 0, len(items))
	for _, item := range items {
		if f.match(item.Name) {
			out = append(out, item)
		}
	}
	return out
}

// SetGlob sets the name filter applied on read. Matching is case-insensitive;
// an empty pattern clears the filter. Filtering never triggers a fetch.
func (s *Store) SetGlob(pattern string) error {
	if cur := s.glob.Load(); cur.pattern == pattern {
		return nil
	}
	f, err := compileGlob(pattern)
	if err != nil {
		return err
	}
	s.glob.Store(f)
	return nil
}

// Glob returns the active filter pattern
func (s *Store) Glob() string {
	return s.glob.Load().pattern
}
