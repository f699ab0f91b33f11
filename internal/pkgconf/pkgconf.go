// Package pkgconf parses the tagged, declarative package-list grammar
// chk/rr's config file uses to select which pkgpaths are in scope, and
// evaluates the tag-pattern algebra (conjunction, negation, disjunction)
// described in spec.md's C10.
//
// Grounded on the teacher's config.parseINI (line-oriented scanning,
// '#'/';' comment handling, trimming) generalized from INI sections to
// this grammar's "TAG = alternatives" / "PKGPATH alternatives" lines.
package pkgconf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Def is one line of the config file: either a tag definition (IsTag) or
// a pkgpath selector, guarded by a whitespace-separated list of
// alternative tag-patterns (each itself an '+'-conjunction of possibly
// negated tags). An empty Patterns list matches unconditionally.
type Def struct {
	IsTag    bool
	Name     string // tag name, if IsTag
	PkgPath  string // pkgpath, if !IsTag
	Patterns []Pattern
}

// Pattern is one whitespace-delimited alternative: a conjunction of
// possibly-negated tag terms. It matches if every term's sign agrees
// with the term's presence in the effective tag set.
type Pattern struct {
	Terms []Term
}

// Term is a single tag name within a conjunction, possibly negated.
type Term struct {
	Tag     string
	Negated bool
}

// Matches reports whether p is satisfied by tags (the included ∪
// platform tag set).
func (p Pattern) Matches(tags map[string]bool) bool {
	for _, t := range p.Terms {
		present := tags[t.Tag]
		if t.Negated && present {
			return false
		}
		if !t.Negated && !present {
			return false
		}
	}
	return true
}

// parsePattern splits a single alternative (e.g. "a+b+-c") into terms.
func parsePattern(alt string) Pattern {
	var p Pattern
	for _, part := range strings.Split(alt, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		term := Term{Tag: part}
		if strings.HasPrefix(part, "-") {
			term.Negated = true
			term.Tag = part[1:]
		}
		p.Terms = append(p.Terms, term)
	}
	return p
}

func parsePatterns(fields []string) []Pattern {
	var pats []Pattern
	for _, f := range fields {
		pats = append(pats, parsePattern(f))
	}
	return pats
}

// File is a parsed config file: an ordered list of Defs.
type File struct {
	Defs []Def
}

// Parse reads the line-oriented grammar:
//
//	# comment
//	TAG = PAT1 PAT2 ...
//	category/subdir PAT1 PAT2 ...
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if idx := strings.Index(line, "="); idx >= 0 && isTagDefLine(line, idx) {
			name := strings.TrimSpace(line[:idx])
			rest := strings.Fields(line[idx+1:])
			f.Defs = append(f.Defs, Def{IsTag: true, Name: name, Patterns: parsePatterns(rest)})
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		pkgpath := fields[0]
		if !strings.Contains(pkgpath, "/") {
			return nil, fmt.Errorf("pkgconf: line %d: expected TAG = ... or category/subdir ..., got %q", lineNo, line)
		}
		f.Defs = append(f.Defs, Def{PkgPath: pkgpath, Patterns: parsePatterns(fields[1:])})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pkgconf: %w", err)
	}
	return f, nil
}

// isTagDefLine distinguishes "TAG = ..." from a pkgpath line that merely
// happens to contain an '=' in one of its patterns (patterns never
// legitimately contain '=', so any '=' before the first whitespace-
// delimited field boundary marks a tag definition).
func isTagDefLine(line string, eqIdx int) bool {
	name := strings.TrimSpace(line[:eqIdx])
	return name != "" && !strings.ContainsAny(name, " \t/")
}

// Tags collects every TAG name defined in f, in file order.
func (f *File) Tags() []string {
	var out []string
	seen := map[string]bool{}
	for _, d := range f.Defs {
		if d.IsTag && !seen[d.Name] {
			seen[d.Name] = true
			out = append(out, d.Name)
		}
	}
	return out
}

// effectiveTags expands tag definitions against the base (included ∪
// platform) tag set. A composite tag is effective iff any of its
// alternatives matches the tag set built up so far; expansion iterates
// to a fixed point since a tag definition may reference another tag
// defined earlier in the file.
func effectiveTags(f *File, base map[string]bool) map[string]bool {
	eff := map[string]bool{}
	for k, v := range base {
		eff[k] = v
	}

	for i := 0; i < len(f.Defs)+1; i++ {
		changed := false
		for _, d := range f.Defs {
			if !d.IsTag || eff[d.Name] {
				continue
			}
			if matchesAny(d.Patterns, eff) {
				eff[d.Name] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return eff
}

func matchesAny(pats []Pattern, tags map[string]bool) bool {
	if len(pats) == 0 {
		return true
	}
	for _, p := range pats {
		if p.Matches(tags) {
			return true
		}
	}
	return false
}

// Filter evaluates f against (includedTags ∪ platformTags, excludedTags)
// and returns the set of pkgpaths whose selector matches.
func Filter(f *File, includedTags, platformTags, excludedTags []string) map[string]bool {
	excluded := map[string]bool{}
	for _, t := range excludedTags {
		excluded[t] = true
	}

	base := map[string]bool{}
	for _, t := range includedTags {
		if !excluded[t] {
			base[t] = true
		}
	}
	for _, t := range platformTags {
		if !excluded[t] {
			base[t] = true
		}
	}
	eff := effectiveTags(f, base)
	for t := range excluded {
		delete(eff, t)
	}

	result := map[string]bool{}
	for _, d := range f.Defs {
		if d.IsTag {
			continue
		}
		if matchesAny(d.Patterns, eff) {
			result[d.PkgPath] = true
		}
	}
	return result
}
