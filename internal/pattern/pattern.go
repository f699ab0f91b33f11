// Package pattern implements the pkgsrc pattern algebra: alternatives
// (csh-style brace expansion), version ranges, and fnmatch-style globs,
// matched against an ordered set of package names.
package pattern

import (
	"fmt"
	"path"
	"strings"

	"pkgtool/internal/pkgname"
)

// Pattern matches against an ordered set of package names.
type Pattern interface {
	// ForEach invokes fn for each matching entry until fn returns false.
	// Version-range and glob patterns visit matches in ascending order; an
	// AlternativesPattern visits each sub-pattern's matches in turn,
	// skipping names already seen, so its overall order is not ascending.
	ForEach(idx *pkgname.NameIndex, fn func(pkgname.Pkgname) bool)
	// Best returns the lexicographically greatest match, or (zero, false)
	// if nothing matches.
	Best(idx *pkgname.NameIndex) (pkgname.Pkgname, bool)
}

// ForEach is the free-function form of Pattern.ForEach.
func ForEach(p Pattern, idx *pkgname.NameIndex, fn func(pkgname.Pkgname) bool) {
	p.ForEach(idx, fn)
}

// Best is the free-function form of Pattern.Best.
func Best(p Pattern, idx *pkgname.NameIndex) (pkgname.Pkgname, bool) {
	return p.Best(idx)
}

// ParsePattern classifies and parses s into a Pattern.
func ParsePattern(s string) (Pattern, error) {
	if strings.ContainsAny(s, "{}") {
		expansions, err := expandAlternatives(s)
		if err != nil {
			return nil, err
		}
		subs := make([]Pattern, 0, len(expansions))
		for _, e := range expansions {
			sub, err := parseNonAlternative(e)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		return AlternativesPattern{Subs: subs}, nil
	}
	return parseNonAlternative(s)
}

func parseNonAlternative(s string) (Pattern, error) {
	if vr, ok, err := tryParseVersionRange(s); err != nil {
		return nil, err
	} else if ok {
		return vr, nil
	}
	return GlobPattern{Raw: s}, nil
}

// AlternativesPattern is the brace-expanded union of sub-patterns.
type AlternativesPattern struct {
	Subs []Pattern
}

func (a AlternativesPattern) ForEach(idx *pkgname.NameIndex, fn func(pkgname.Pkgname) bool) {
	seen := make(map[string]bool)
	for _, sub := range a.Subs {
		stop := false
		sub.ForEach(idx, func(n pkgname.Pkgname) bool {
			key := n.Format()
			if seen[key] {
				return true
			}
			seen[key] = true
			if !fn(n) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}

func (a AlternativesPattern) Best(idx *pkgname.NameIndex) (pkgname.Pkgname, bool) {
	var best pkgname.Pkgname
	found := false
	for _, sub := range a.Subs {
		if n, ok := sub.Best(idx); ok {
			if !found || pkgname.CompareNames(n, best) > 0 {
				best = n
				found = true
			}
		}
	}
	return best, found
}

// versionRangeOps, longest-match-first so "<=" is tried before "<".
var versionRangeOps = []string{"<=", ">=", "==", "!=", "<", ">"}

type opMatch struct {
	idx int
	op  string
}

func scanOps(s string) []opMatch {
	var out []opMatch
	for i := 0; i < len(s); i++ {
		for _, op := range versionRangeOps {
			if strings.HasPrefix(s[i:], op) {
				out = append(out, opMatch{idx: i, op: op})
				i += len(op) - 1
				break
			}
		}
	}
	return out
}

// VersionRangePattern is "BASE op VER [op2 VER2]".
type VersionRangePattern struct {
	Base pkgname.Pkgbase
	Op1  string
	Ver1 pkgname.Version
	Op2  string // "" if no second bound
	Ver2 pkgname.Version
}

// tryParseVersionRange reports ok=false (no error) if s contains no
// version-range operator at all, so callers fall back to glob parsing.
// If an operator is present but the operand is missing, it is a parse
// error.
func tryParseVersionRange(s string) (VersionRangePattern, bool, error) {
	matches := scanOps(s)
	if len(matches) == 0 {
		return VersionRangePattern{}, false, nil
	}
	if len(matches) > 2 {
		return VersionRangePattern{}, false, fmt.Errorf("pattern: too many operators in version range %q", s)
	}

	base := s[:matches[0].idx]
	if base == "" {
		return VersionRangePattern{}, false, fmt.Errorf("pattern: missing base in version range %q", s)
	}

	if len(matches) == 1 {
		ver1 := s[matches[0].idx+len(matches[0].op):]
		if ver1 == "" {
			return VersionRangePattern{}, false, fmt.Errorf("pattern: missing operand in %q", s)
		}
		return VersionRangePattern{
			Base: pkgname.Pkgbase(base),
			Op1:  matches[0].op,
			Ver1: pkgname.ParseVersion(ver1),
		}, true, nil
	}

	op1 := matches[0].op
	if op1 != ">" && op1 != ">=" {
		return VersionRangePattern{}, false, fmt.Errorf("pattern: only '>' and '>=' may carry a second bound, got %q in %q", op1, s)
	}
	op2 := matches[1].op
	if op2 != "<" && op2 != "<=" {
		return VersionRangePattern{}, false, fmt.Errorf("pattern: second bound must be '<' or '<=', got %q in %q", op2, s)
	}
	ver1 := s[matches[0].idx+len(op1) : matches[1].idx]
	ver2 := s[matches[1].idx+len(op2):]
	if ver1 == "" || ver2 == "" {
		return VersionRangePattern{}, false, fmt.Errorf("pattern: missing operand in %q", s)
	}
	return VersionRangePattern{
		Base: pkgname.Pkgbase(base),
		Op1:  op1,
		Ver1: pkgname.ParseVersion(ver1),
		Op2:  op2,
		Ver2: pkgname.ParseVersion(ver2),
	}, true, nil
}

func opCompare(op string, v, bound pkgname.Version) bool {
	c := pkgname.Compare(v, bound)
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "==":
		return c == 0
	case "!=":
		return c != 0
	}
	return false
}

func (p VersionRangePattern) matches(n pkgname.Pkgname) bool {
	if n.Base != p.Base {
		return false
	}
	if !opCompare(p.Op1, n.Version, p.Ver1) {
		return false
	}
	if p.Op2 != "" && !opCompare(p.Op2, n.Version, p.Ver2) {
		return false
	}
	return true
}

func (p VersionRangePattern) ForEach(idx *pkgname.NameIndex, fn func(pkgname.Pkgname) bool) {
	idx.RangeFromBase(p.Base, func(n pkgname.Pkgname) bool {
		if p.matches(n) {
			return fn(n)
		}
		return true
	})
}

func (p VersionRangePattern) Best(idx *pkgname.NameIndex) (pkgname.Pkgname, bool) {
	var best pkgname.Pkgname
	found := false
	p.ForEach(idx, func(n pkgname.Pkgname) bool {
		if !found || pkgname.CompareNames(n, best) > 0 {
			best = n
			found = true
		}
		return true
	})
	return best, found
}

// GlobPattern matches a literal fnmatch(3)-style pattern against the full
// "base-version" string.
type GlobPattern struct {
	Raw string
}

// literalPrefix returns the longest literal run before any meta-character,
// trimmed at the last '-' so it narrows to a base-scoped prefix.
func literalPrefix(raw string) string {
	metaIdx := strings.IndexAny(raw, "*?[")
	prefix := raw
	if metaIdx >= 0 {
		prefix = raw[:metaIdx]
	}
	if i := strings.LastIndex(prefix, "-"); i >= 0 {
		return prefix[:i+1]
	}
	return ""
}

func (g GlobPattern) candidates(idx *pkgname.NameIndex, raw string) []pkgname.Pkgname {
	prefix := literalPrefix(raw)
	var out []pkgname.Pkgname
	for _, n := range idx.All() {
		full := n.Format()
		if prefix != "" && !strings.HasPrefix(full, prefix) {
			continue
		}
		if ok, _ := path.Match(raw, full); ok {
			out = append(out, n)
		}
	}
	return out
}

// effectiveMatches finds matches for Raw, retrying with "-[0-9]*" appended
// if the first attempt matches nothing.
func (g GlobPattern) effectiveMatches(idx *pkgname.NameIndex) []pkgname.Pkgname {
	matches := g.candidates(idx, g.Raw)
	if len(matches) == 0 {
		matches = g.candidates(idx, g.Raw+"-[0-9]*")
	}
	return matches
}

func (g GlobPattern) ForEach(idx *pkgname.NameIndex, fn func(pkgname.Pkgname) bool) {
	for _, n := range g.effectiveMatches(idx) {
		if !fn(n) {
			return
		}
	}
}

func (g GlobPattern) Best(idx *pkgname.NameIndex) (pkgname.Pkgname, bool) {
	matches := g.effectiveMatches(idx)
	if len(matches) == 0 {
		return pkgname.Pkgname{}, false
	}
	best := matches[0]
	for _, n := range matches[1:] {
		if pkgname.CompareNames(n, best) > 0 {
			best = n
		}
	}
	return best, true
}
