// Package pathid implements the slash-separated absolute path identifiers
// used to name groups, applications and pods in the orchestrator's
// hierarchical namespace.
package pathid

import (
	"sort"
	"strings"
)

// Path is a slash-separated absolute identifier, e.g. "/prod/web/api".
// The root group lives at Path("/").
type Path string

// Root is the path of the root group.
const Root Path = "/"

// Clean normalizes a path: collapses repeated slashes, trims trailing
// slashes (except for the root), and ensures a single leading slash.
func Clean(p string) Path {
	if p == "" {
		return Root
	}
	segments := splitNonEmpty(p)
	if len(segments) == 0 {
		return Root
	}
	return Path("/" + strings.Join(segments, "/"))
}

// Canonicalize resolves p against base the way a relative reference would
// resolve against a base URL: an absolute p (leading "/") is returned
// cleaned as-is; a relative p is joined under base.
func Canonicalize(base Path, p string) Path {
	if strings.HasPrefix(p, "/") {
		return Clean(p)
	}
	return Clean(string(base) + "/" + p)
}

// Segments returns the path's non-empty components in order.
func (p Path) Segments() []string {
	return splitNonEmpty(string(p))
}

// Parent returns the path one level up. Parent of Root is Root.
func (p Path) Parent() Path {
	segs := p.Segments()
	if len(segs) == 0 {
		return Root
	}
	return Clean(strings.Join(segs[:len(segs)-1], "/"))
}

// Base returns the final path component ("" for root).
func (p Path) Base() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// IsRoot reports whether p names the root group.
func (p Path) IsRoot() bool {
	return p.Clean() == Root
}

// Clean returns the cleaned form of p.
func (p Path) Clean() Path {
	return Clean(string(p))
}

// IsChildOf reports whether p is an immediate child of parent.
func (p Path) IsChildOf(parent Path) bool {
	return p.Parent() == parent.Clean()
}

// HasPrefix reports whether p is equal to or a descendant of ancestor.
func (p Path) HasPrefix(ancestor Path) bool {
	a := ancestor.Clean()
	c := p.Clean()
	if a == Root {
		return true
	}
	return c == a || strings.HasPrefix(string(c), string(a)+"/")
}

// Less orders paths lexicographically by segment, giving a stable,
// deterministic ordering for plan generation and topological tie-breaks.
func (p Path) Less(other Path) bool {
	as, bs := p.Segments(), other.Segments()
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}

// SortPaths sorts paths in place using Path.Less.
func SortPaths(paths []Path) {
	sort.Slice(paths, func(i, j int) bool { return paths[i].Less(paths[j]) })
}

func splitNonEmpty(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
